// Package stage implements the interactive assessment stages: the caselet
// (one scenario, one written answer) and the adaptive interview (a growing
// list of questions answered one at a time).
package stage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonathan/digiready/internal/logging"
	"github.com/jonathan/digiready/internal/timer"
	"github.com/jonathan/digiready/internal/types"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Action errors. Callers treat them as "button disabled".
var (
	ErrNotMounted      = errors.New("stage is not mounted")
	ErrAlreadyMounted  = errors.New("stage already mounted")
	ErrUnmounted       = errors.New("stage was unmounted")
	ErrInFlight        = errors.New("a request is already in flight")
	ErrEmptyAnswer     = errors.New("answer is empty")
	ErrLocked          = errors.New("time is up; answers are locked")
	ErrNoQuestion      = errors.New("no current question")
	ErrExhausted       = errors.New("no more questions")
	ErrNothingToSubmit = errors.New("nothing to submit")
)

// ExpiryPolicy decides what happens when a stage's countdown reaches zero.
type ExpiryPolicy string

const (
	// ExpirySoft leaves the stage untouched.
	ExpirySoft ExpiryPolicy = "soft"
	// ExpiryLock freezes editing but still allows submitting.
	ExpiryLock ExpiryPolicy = "lock"
	// ExpirySubmit submits whatever has been written.
	ExpirySubmit ExpiryPolicy = "submit"
)

// ParseExpiryPolicy converts a config value. Empty means soft.
func ParseExpiryPolicy(s string) (ExpiryPolicy, error) {
	switch p := ExpiryPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return ExpirySoft, nil
	case ExpirySoft, ExpiryLock, ExpirySubmit:
		return p, nil
	default:
		return "", fmt.Errorf("unknown expiry policy %q", s)
	}
}

// API is the part of the scoring API the stages use.
type API interface {
	timer.TimeSource
	Caselet(ctx context.Context, sessionID string) (*types.CaseletContent, error)
	Questions(ctx context.Context, sessionID string) ([]types.Question, error)
	NextQuestion(ctx context.Context, sessionID, previousAnswer string) (*types.Question, error)
	Submit(ctx context.Context, sessionID string, req *types.SubmitRequest) (*types.SubmitResponse, error)
}

// SubmitHandler receives a successful final submission. It runs after the
// stage has released its lock, so it may unmount the stage.
type SubmitHandler func(ctx context.Context, resp *types.SubmitResponse)

// Options configures a stage.
type Options struct {
	Clock        clockwork.Clock
	SyncInterval time.Duration
	TickInterval time.Duration
	Expiry       ExpiryPolicy
	Logger       *zerolog.Logger

	// OnTimeChange receives countdown updates.
	OnTimeChange func(remaining int)
}

// WordCount counts whitespace-delimited tokens.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// base holds what both stages share: identity, lifecycle and the countdown.
type base struct {
	api       API
	sessionID string
	userID    string
	onSubmit  SubmitHandler
	opts      Options
	logger    *zerolog.Logger

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	countdown *timer.Countdown
	inFlight  bool
	locked    bool
	lastErr   error
}

func newBase(api API, sessionID, userID string, onSubmit SubmitHandler, opts *Options) base {
	if opts == nil {
		opts = &Options{}
	}
	o := *opts
	if o.Expiry == "" {
		o.Expiry = ExpirySoft
	}
	logger := logging.OrNop(o.Logger).With().Str("session_id", sessionID).Logger()
	return base{
		api:       api,
		sessionID: sessionID,
		userID:    userID,
		onSubmit:  onSubmit,
		opts:      o,
		logger:    &logger,
	}
}

// begin installs the mount context. The caller loads content afterwards.
func (b *base) begin(ctx context.Context) (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx != nil {
		return nil, ErrAlreadyMounted
	}
	b.ctx, b.cancel = context.WithCancel(ctx)
	return b.ctx, nil
}

// startTimer starts the countdown; onExpire runs on its own goroutine.
func (b *base) startTimer(ctx context.Context, onExpire func()) {
	cd := timer.New(b.api, b.sessionID, &timer.Options{
		Clock:        b.opts.Clock,
		SyncInterval: b.opts.SyncInterval,
		TickInterval: b.opts.TickInterval,
		Logger:       b.logger,
		OnChange:     b.opts.OnTimeChange,
		OnExpire: func() {
			if ctx.Err() != nil {
				return
			}
			go onExpire()
		},
	})

	b.mu.Lock()
	b.countdown = cd
	b.mu.Unlock()

	_ = cd.Start(ctx)
}

// Unmount cancels in-flight requests and stops the countdown. Responses that
// arrive afterwards are dropped.
func (b *base) Unmount() {
	b.mu.Lock()
	cancel, cd := b.cancel, b.countdown
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if cd != nil {
		cd.Stop()
	}
}

func (b *base) live() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ctx != nil && b.ctx.Err() == nil
}

func (b *base) mountContext() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return context.Background()
	}
	return b.ctx
}

// requestContext ties a caller context to the mount lifetime.
func (b *base) requestContext(ctx context.Context) (context.Context, context.CancelFunc, error) {
	b.mu.Lock()
	mountCtx := b.ctx
	b.mu.Unlock()
	if mountCtx == nil {
		return nil, nil, ErrNotMounted
	}
	if mountCtx.Err() != nil {
		return nil, nil, ErrUnmounted
	}

	reqCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(mountCtx, cancel)
	return reqCtx, func() {
		stop()
		cancel()
	}, nil
}

// submit sends the final answer. inFlight must already be set by the caller.
func (b *base) submit(ctx context.Context, text string, metadata map[string]any) error {
	reqCtx, done, err := b.requestContext(ctx)
	if err != nil {
		b.finishRequest(err)
		return err
	}
	defer done()

	resp, err := b.api.Submit(reqCtx, b.sessionID, &types.SubmitRequest{
		UserID:   b.userID,
		Text:     text,
		Metadata: metadata,
	})
	if !b.live() {
		return ErrUnmounted
	}
	if err != nil {
		b.logger.Error().Err(err).Msg("submission failed")
		b.finishRequest(err)
		return fmt.Errorf("failed to submit answer: %w", err)
	}

	b.logger.Info().Str("scoring_job_id", resp.ScoringJobID.String()).Msg("answer submitted")
	b.finishRequest(nil)
	if b.onSubmit != nil {
		b.onSubmit(ctx, resp)
	}
	return nil
}

func (b *base) finishRequest(err error) {
	b.mu.Lock()
	b.inFlight = false
	b.lastErr = err
	b.mu.Unlock()
}

// SessionID returns the session this stage belongs to.
func (b *base) SessionID() string {
	return b.sessionID
}

// Remaining returns the countdown value and whether it is known.
func (b *base) Remaining() (int, bool) {
	b.mu.Lock()
	cd := b.countdown
	b.mu.Unlock()
	if cd == nil {
		return 0, false
	}
	return cd.Remaining()
}

// Busy reports whether a request is in flight.
func (b *base) Busy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inFlight
}

// Locked reports whether editing has been frozen by the expiry policy.
func (b *base) Locked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.locked
}

// LastError returns the error of the most recent failed request, if any.
func (b *base) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// expire applies the lock part of the policy and reports whether an
// automatic submission should follow.
func (b *base) expire() bool {
	switch b.opts.Expiry {
	case ExpiryLock:
		b.mu.Lock()
		b.locked = true
		b.mu.Unlock()
		b.logger.Info().Msg("time is up; answers locked")
		return false
	case ExpirySubmit:
		b.mu.Lock()
		b.locked = true
		b.mu.Unlock()
		return true
	default:
		return false
	}
}
