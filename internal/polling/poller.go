// Package polling waits for a scoring job to finish and fetches its result.
package polling

import (
	"context"
	"sync"
	"time"

	"github.com/jonathan/digiready/internal/logging"
	"github.com/jonathan/digiready/internal/types"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// DefaultInterval is the time between status checks.
const DefaultInterval = 3 * time.Second

// API is the part of the scoring API the poller uses.
type API interface {
	Status(ctx context.Context, sessionID string) (*types.SessionStatus, error)
	Results(ctx context.Context, sessionID, jobID string) (*types.ResultEnvelope, error)
}

// Progress describes the poller after a check.
type Progress struct {
	Attempt int
	Status  string
	// ConnectionLost is set while requests are failing; polling continues.
	ConnectionLost bool
	Err            error
}

// Options configures a Poller.
type Options struct {
	Interval   time.Duration
	Clock      clockwork.Clock
	Logger     *zerolog.Logger
	OnProgress func(Progress)
}

// Poller polls a session's scoring status.
type Poller struct {
	api        API
	interval   time.Duration
	clock      clockwork.Clock
	logger     *zerolog.Logger
	onProgress func(Progress)

	mu   sync.Mutex
	last Progress
}

// New creates a Poller.
func New(api API, opts *Options) *Poller {
	if opts == nil {
		opts = &Options{}
	}
	p := &Poller{
		api:        api,
		interval:   opts.Interval,
		clock:      opts.Clock,
		logger:     logging.OrNop(opts.Logger),
		onProgress: opts.OnProgress,
	}
	if p.interval <= 0 {
		p.interval = DefaultInterval
	}
	if p.clock == nil {
		p.clock = clockwork.NewRealClock()
	}
	return p
}

// Run checks the status immediately and then every interval until it is
// terminal, then fetches the result once and returns it. Failures never stop
// the loop; only ctx does.
func (p *Poller) Run(ctx context.Context, sessionID, jobID string) (*types.ResultEnvelope, error) {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	logger := p.logger.With().Str("session_id", sessionID).Str("scoring_job_id", jobID).Logger()
	logger.Info().Msg("waiting for scoring")

	for attempt := 1; ; attempt++ {
		env, err := p.check(ctx, &logger, attempt, sessionID, jobID)
		if err != nil {
			return nil, err
		}
		if env != nil {
			return env, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.Chan():
		}
	}
}

// check performs one status check. It returns the result once scoring is done,
// nil to keep polling, or ctx's error.
func (p *Poller) check(ctx context.Context, logger *zerolog.Logger, attempt int, sessionID, jobID string) (*types.ResultEnvelope, error) {
	status, err := p.api.Status(ctx, sessionID)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		logger.Warn().Err(err).Int("attempt", attempt).Msg("status check failed; retrying")
		p.report(Progress{Attempt: attempt, ConnectionLost: true, Err: err})
		return nil, nil
	}

	if !status.Terminal() {
		logger.Debug().Int("attempt", attempt).Str("status", status.ScoringStatus).Msg("still scoring")
		p.report(Progress{Attempt: attempt, Status: status.ScoringStatus})
		return nil, nil
	}

	env, err := p.api.Results(ctx, sessionID, jobID)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		logger.Warn().Err(err).Int("attempt", attempt).Msg("results fetch failed; retrying")
		p.report(Progress{Attempt: attempt, Status: status.ScoringStatus, ConnectionLost: true, Err: err})
		return nil, nil
	}

	logger.Info().Int("attempt", attempt).Msg("scoring complete")
	p.report(Progress{Attempt: attempt, Status: status.ScoringStatus})
	return env, nil
}

func (p *Poller) report(progress Progress) {
	p.mu.Lock()
	p.last = progress
	p.mu.Unlock()
	if p.onProgress != nil {
		p.onProgress(progress)
	}
}

// Last returns the most recent progress.
func (p *Poller) Last() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}
