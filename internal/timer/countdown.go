// Package timer keeps a per-session countdown in step with the scoring API:
// an absolute resync from the server every SyncInterval and a local decrement
// every TickInterval in between.
package timer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonathan/digiready/internal/logging"
	"github.com/jonathan/digiready/internal/types"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Default loop intervals.
const (
	DefaultSyncInterval = 10 * time.Second
	DefaultTickInterval = time.Second
)

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("countdown already started")

// ErrNoRemaining is returned by Sync when the server response carries no
// remaining time. The local value is left as it was.
var ErrNoRemaining = errors.New("time left response has no remaining_seconds")

// TimeSource reports the server-side remaining time of a session.
type TimeSource interface {
	TimeLeft(ctx context.Context, sessionID string) (*types.TimeLeft, error)
}

// Options configures a Countdown.
type Options struct {
	Clock        clockwork.Clock
	SyncInterval time.Duration
	TickInterval time.Duration
	Logger       *zerolog.Logger

	// OnExpire is called once, from a loop goroutine, when the countdown first
	// reaches zero.
	OnExpire func()
	// OnChange is called with the new value whenever it changes.
	OnChange func(remaining int)
}

// Countdown is the remaining time for one mounted stage.
type Countdown struct {
	source    TimeSource
	sessionID string
	clock     clockwork.Clock
	syncEvery time.Duration
	tickEvery time.Duration
	logger    *zerolog.Logger
	onExpire  func()
	onChange  func(int)

	mu        sync.Mutex
	remaining int
	known     bool
	expired   bool
	started   bool
	cancel    context.CancelFunc
	group     *errgroup.Group
}

// New creates a countdown for sessionID. It does nothing until Start.
func New(source TimeSource, sessionID string, opts *Options) *Countdown {
	if opts == nil {
		opts = &Options{}
	}
	c := &Countdown{
		source:    source,
		sessionID: sessionID,
		clock:     opts.Clock,
		syncEvery: opts.SyncInterval,
		tickEvery: opts.TickInterval,
		logger:    logging.OrNop(opts.Logger),
		onExpire:  opts.OnExpire,
		onChange:  opts.OnChange,
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
	if c.syncEvery <= 0 {
		c.syncEvery = DefaultSyncInterval
	}
	if c.tickEvery <= 0 {
		c.tickEvery = DefaultTickInterval
	}
	return c
}

// Start fetches the remaining time once and then runs the resync and tick
// loops until ctx is cancelled or Stop is called. A failed initial fetch is
// logged; the countdown stays unknown until a later sync succeeds.
func (c *Countdown) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	if err := c.Sync(ctx); err != nil && ctx.Err() == nil {
		c.logger.Warn().Err(err).Str("session_id", c.sessionID).Msg("initial time sync failed")
	}

	// Tickers are created before the loops start so that a fake clock can be
	// advanced as soon as Start returns.
	syncTicker := c.clock.NewTicker(c.syncEvery)
	tickTicker := c.clock.NewTicker(c.tickEvery)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer syncTicker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-syncTicker.Chan():
				if err := c.Sync(gctx); err != nil && gctx.Err() == nil {
					c.logger.Warn().Err(err).Str("session_id", c.sessionID).Msg("time sync failed")
				}
			}
		}
	})
	g.Go(func() error {
		defer tickTicker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-tickTicker.Chan():
				if gctx.Err() != nil {
					return nil
				}
				c.Tick()
			}
		}
	})

	c.mu.Lock()
	c.group = g
	c.mu.Unlock()
	return nil
}

// Stop cancels both loops and waits for them to exit. Safe to call more than once.
func (c *Countdown) Stop() {
	c.mu.Lock()
	cancel, g := c.cancel, c.group
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if g != nil {
		_ = g.Wait()
	}
}

// Sync fetches the remaining time from the server and overrides the local value.
// A response without a remaining time is treated as a failed sync.
func (c *Countdown) Sync(ctx context.Context) error {
	tl, err := c.source.TimeLeft(ctx, c.sessionID)
	if err != nil {
		return fmt.Errorf("failed to fetch time left: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if tl == nil || !tl.Known() {
		return ErrNoRemaining
	}
	c.Set(tl.Seconds())
	return nil
}

// Set overrides the remaining time with an absolute value.
func (c *Countdown) Set(seconds int) {
	if seconds < 0 {
		seconds = 0
	}
	c.mu.Lock()
	changed := !c.known || c.remaining != seconds
	c.remaining = seconds
	c.known = true
	fire := c.markExpiredLocked()
	c.mu.Unlock()

	c.notify(changed, seconds, fire)
}

// Tick decrements the local value by one second, never below zero. It has no
// effect until a value is known.
func (c *Countdown) Tick() {
	c.mu.Lock()
	if !c.known || c.remaining <= 0 {
		c.mu.Unlock()
		return
	}
	c.remaining--
	remaining := c.remaining
	fire := c.markExpiredLocked()
	c.mu.Unlock()

	c.notify(true, remaining, fire)
}

func (c *Countdown) markExpiredLocked() bool {
	if c.known && c.remaining == 0 && !c.expired {
		c.expired = true
		return true
	}
	return false
}

func (c *Countdown) notify(changed bool, remaining int, expired bool) {
	if changed && c.onChange != nil {
		c.onChange(remaining)
	}
	if expired {
		c.logger.Info().Str("session_id", c.sessionID).Msg("time is up")
		if c.onExpire != nil {
			c.onExpire()
		}
	}
}

// Remaining returns the current value and whether it is known yet.
func (c *Countdown) Remaining() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining, c.known
}

// Expired reports whether the countdown has reached zero.
func (c *Countdown) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

// Format renders seconds as MM:SS.
func Format(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
