package assessment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonathan/digiready/internal/fetch"
	"github.com/jonathan/digiready/internal/logging"
	"github.com/jonathan/digiready/internal/polling"
	"github.com/jonathan/digiready/internal/schemas"
	"github.com/jonathan/digiready/internal/stage"
	"github.com/jonathan/digiready/internal/types"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// API is the scoring API as used across a whole run.
type API interface {
	stage.API
	polling.API
	StartSession(ctx context.Context, req *types.StartSessionRequest) (*types.StartSessionResponse, error)
}

// Gateway stores completed assessments.
type Gateway interface {
	SaveAssessment(ctx context.Context, req *types.SaveAssessmentRequest) (int64, error)
}

// Options configures an Orchestrator.
type Options struct {
	API API
	// Gateway and User are optional. Results are stored only when both are
	// set and the user is a participant.
	Gateway Gateway
	User    *types.User

	Clock        clockwork.Clock
	SyncInterval time.Duration
	TickInterval time.Duration
	PollInterval time.Duration
	Expiry       stage.ExpiryPolicy
	Logger       *zerolog.Logger

	// OnState is called after every transition, in order.
	OnState func(State)
	// OnTimeChange receives countdown updates of the mounted stage.
	OnTimeChange func(remaining int)
	// OnProgress receives every status check while polling.
	OnProgress func(polling.Progress)
	// OnPersist is called once after the save attempt.
	OnPersist func(assessmentID int64, err error)
}

// Orchestrator drives one assessment through its states.
type Orchestrator struct {
	api     API
	gateway Gateway
	user    *types.User
	opts    Options
	logger  *zerolog.Logger

	// stateMu serialises transitions and listener calls.
	stateMu sync.Mutex

	mu           sync.Mutex
	state        State
	starting     bool
	closed       bool
	ctx          context.Context
	cancel       context.CancelFunc
	run          StartOptions
	composite    *CompositeSession
	current      types.StageCode
	sessionID    string
	caselet      *stage.Caselet
	interview    *stage.Interview
	poller       *polling.Poller
	polled       string
	jobID        string
	result       *types.ResultEnvelope
	persisted    bool
	assessmentID int64
	done         chan struct{}
	wg           sync.WaitGroup
}

// New creates an orchestrator in the setup state.
func New(opts *Options) (*Orchestrator, error) {
	if opts == nil || opts.API == nil {
		return nil, errors.New("assessment: scoring API is required")
	}
	o := &Orchestrator{
		api:     opts.API,
		gateway: opts.Gateway,
		user:    opts.User,
		opts:    *opts,
		logger:  logging.OrNop(opts.Logger),
		state:   StateSetup,
		done:    make(chan struct{}),
	}
	if o.opts.Clock == nil {
		o.opts.Clock = clockwork.NewRealClock()
	}
	return o, nil
}

// Start creates the first scoring session and mounts its stage. ctx bounds the
// whole run, not just this call. On failure the orchestrator stays in setup
// and Start may be called again.
func (o *Orchestrator) Start(ctx context.Context, so StartOptions) error {
	o.mu.Lock()
	if o.state != StateSetup || o.starting || o.closed {
		state := o.state
		o.mu.Unlock()
		return fmt.Errorf("%w: cannot start from %s", ErrInvalidTransition, state)
	}
	o.starting = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.starting = false
		o.mu.Unlock()
	}()

	if !so.Stage.Valid() {
		return fmt.Errorf("unknown stage %d", so.Stage)
	}
	if so.AllocatedSeconds <= 0 {
		so.AllocatedSeconds = DefaultAllocation(so.Stage)
	}

	first := so.Stage.First()
	sessionID, err := o.createSession(ctx, so, first, so.AllocatedSeconds)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.ctx, o.cancel = runCtx, cancel
	o.run = so
	if so.Stage == types.StageComposite {
		o.composite = &CompositeSession{CaseletSessionID: sessionID}
	}
	o.mu.Unlock()

	o.logger.Info().
		Str("session_id", sessionID).
		Str("stage", so.Stage.String()).
		Int("allocated_seconds", so.AllocatedSeconds).
		Msg("assessment started")

	if err := o.mount(runCtx, first, sessionID); err != nil {
		cancel()
		return err
	}
	o.transition(StateActive)
	return nil
}

func (o *Orchestrator) createSession(ctx context.Context, so StartOptions, code types.StageCode, allocated int) (string, error) {
	resp, err := o.api.StartSession(ctx, &types.StartSessionRequest{
		UserID:           so.UserID,
		Section:          code,
		AllocatedSeconds: allocated,
		Profile:          so.Profile,
		Meta:             map[string]any{},
	})
	if err != nil {
		o.logger.Error().Err(err).Str("stage", code.String()).Msg("failed to start session")
		return "", &StartError{Stage: code, Message: fetch.Message(err), Err: err}
	}
	return resp.SessionID.String(), nil
}

func (o *Orchestrator) stageOptions() *stage.Options {
	return &stage.Options{
		Clock:        o.opts.Clock,
		SyncInterval: o.opts.SyncInterval,
		TickInterval: o.opts.TickInterval,
		Expiry:       o.opts.Expiry,
		Logger:       o.logger,
		OnTimeChange: o.opts.OnTimeChange,
	}
}

// mount creates and mounts the component for code. Only one stage is mounted
// at a time.
func (o *Orchestrator) mount(ctx context.Context, code types.StageCode, sessionID string) error {
	handler := o.submitted(code, sessionID)

	switch code {
	case types.StageCaselet:
		c := stage.NewCaselet(o.api, sessionID, o.run.UserID, handler, o.stageOptions())
		o.mu.Lock()
		o.caselet, o.interview = c, nil
		o.current, o.sessionID = code, sessionID
		o.mu.Unlock()
		return c.Mount(ctx)
	case types.StageInterview:
		iv := stage.NewInterview(o.api, sessionID, o.run.UserID, handler, o.stageOptions())
		o.mu.Lock()
		o.caselet, o.interview = nil, iv
		o.current, o.sessionID = code, sessionID
		o.mu.Unlock()
		return iv.Mount(ctx)
	default:
		return fmt.Errorf("stage %s cannot be mounted", code)
	}
}

func (o *Orchestrator) unmount() {
	o.mu.Lock()
	c, iv := o.caselet, o.interview
	o.caselet, o.interview = nil, nil
	o.mu.Unlock()

	if c != nil {
		c.Unmount()
	}
	if iv != nil {
		iv.Unmount()
	}
}

// submitted returns the handler a stage calls once its answer is accepted.
// The handler's ctx belongs to the stage and dies on unmount, so follow-up
// work runs on the orchestrator's own context.
func (o *Orchestrator) submitted(code types.StageCode, sessionID string) stage.SubmitHandler {
	return func(_ context.Context, resp *types.SubmitResponse) {
		jobID := resp.ScoringJobID.String()

		o.mu.Lock()
		if o.closed || o.state != StateActive || o.sessionID != sessionID {
			o.mu.Unlock()
			o.logger.Debug().Str("session_id", sessionID).Msg("ignoring submission from inactive stage")
			return
		}
		composite := o.composite
		runCtx := o.ctx
		o.mu.Unlock()

		if composite != nil && code == types.StageCaselet {
			o.mu.Lock()
			composite.CaseletJobID = jobID
			o.mu.Unlock()
			o.handoff(runCtx, sessionID, jobID)
			return
		}

		if composite != nil {
			o.mu.Lock()
			composite.InterviewJobID = jobID
			o.mu.Unlock()
		}
		o.unmount()
		o.startPolling(sessionID, jobID)
	}
}

// handoff moves a composite run from the caselet to the interview. If the
// interview session cannot be created, the caselet job is scored alone.
func (o *Orchestrator) handoff(ctx context.Context, caseletSession, caseletJob string) {
	o.transition(StateTransitioning)
	o.unmount()

	if ctx.Err() != nil {
		return
	}

	interviewSession, err := o.createSession(ctx, o.run, types.StageInterview, DefaultAllocation(types.StageInterview))
	if err == nil {
		o.mu.Lock()
		o.composite.InterviewSessionID = interviewSession
		o.mu.Unlock()
		o.logger.Info().Str("session_id", interviewSession).Msg("caselet complete; starting interview")

		if err = o.mount(ctx, types.StageInterview, interviewSession); err == nil {
			o.transition(StateActive)
			return
		}
	}
	if ctx.Err() != nil {
		return
	}

	o.logger.Warn().Err(err).
		Str("session_id", caseletSession).
		Msg("could not start interview; scoring caselet only")
	o.mu.Lock()
	o.composite.Degraded = true
	o.mu.Unlock()
	o.startPolling(caseletSession, caseletJob)
}

func (o *Orchestrator) startPolling(sessionID, jobID string) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	ctx := o.ctx
	o.polled, o.jobID = sessionID, jobID
	o.poller = polling.New(o.api, &polling.Options{
		Interval:   o.opts.PollInterval,
		Clock:      o.opts.Clock,
		Logger:     o.logger,
		OnProgress: o.opts.OnProgress,
	})
	poller := o.poller
	o.wg.Add(1)
	o.mu.Unlock()

	o.transition(StatePolling)

	go func() {
		defer o.wg.Done()
		env, err := poller.Run(ctx, sessionID, jobID)
		if err != nil {
			o.logger.Debug().Err(err).Msg("polling stopped")
			return
		}
		o.complete(ctx, env)
	}()
}

// complete records the result, notifies listeners and stores the assessment.
func (o *Orchestrator) complete(ctx context.Context, env *types.ResultEnvelope) {
	o.mu.Lock()
	if o.result != nil {
		o.mu.Unlock()
		return
	}
	o.result = env
	o.mu.Unlock()

	if err := schemas.ValidateResult(env.Raw); err != nil {
		o.logger.Warn().Err(err).Msg("result does not match the expected shape")
	}

	o.transition(StateResults)
	o.persist(ctx, env)
	close(o.done)
}

// persist stores the result at most once. Failures are logged only.
func (o *Orchestrator) persist(ctx context.Context, env *types.ResultEnvelope) {
	o.mu.Lock()
	if o.persisted || o.gateway == nil || !o.user.IsParticipant() {
		o.mu.Unlock()
		return
	}
	o.persisted = true
	sessionID := o.polled
	if o.composite != nil {
		sessionID = o.composite.PolledSession()
	}
	req := &types.SaveAssessmentRequest{
		ParticipantID: o.user.ID,
		SessionID:     sessionID,
		Section:       o.run.Stage,
		Results:       env.Raw,
	}
	o.mu.Unlock()

	id, err := o.gateway.SaveAssessment(ctx, req)
	if err != nil {
		o.logger.Error().Err(err).Str("session_id", req.SessionID).Msg("failed to save assessment")
	} else {
		o.mu.Lock()
		o.assessmentID = id
		o.mu.Unlock()
		o.logger.Info().Int64("assessment_id", id).Msg("assessment saved")
	}
	if o.opts.OnPersist != nil {
		o.opts.OnPersist(id, err)
	}
}

func (o *Orchestrator) transition(to State) {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()

	o.mu.Lock()
	from := o.state
	if from == to || from == StateResults {
		o.mu.Unlock()
		return
	}
	o.state = to
	o.mu.Unlock()

	o.logger.Debug().Str("from", string(from)).Str("to", string(to)).Msg("state changed")
	if o.opts.OnState != nil {
		o.opts.OnState(to)
	}
}

// Close stops the countdown, any request in flight and the poller. No state
// changes after Close returns.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	cancel := o.cancel
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.unmount()
	o.wg.Wait()
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Done is closed once the result has arrived and the save attempt finished.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// Result returns the scored result, or nil before the results state.
func (o *Orchestrator) Result() *types.ResultEnvelope {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result
}

// Composite returns a copy of the composite run record, or nil for a single
// stage run.
func (o *Orchestrator) Composite() *CompositeSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.composite == nil {
		return nil
	}
	c := *o.composite
	return &c
}

// Section returns the stage code of the whole run.
func (o *Orchestrator) Section() types.StageCode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.run.Stage
}

// CurrentStage returns the stage being taken or last taken.
func (o *Orchestrator) CurrentStage() types.StageCode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// SessionID returns the session of the current stage.
func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionID
}

// Job returns the polled session and scoring job, once polling has begun.
func (o *Orchestrator) Job() (sessionID, jobID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.polled, o.jobID
}

// Caselet returns the mounted caselet, or nil.
func (o *Orchestrator) Caselet() *stage.Caselet {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.caselet
}

// Interview returns the mounted interview, or nil.
func (o *Orchestrator) Interview() *stage.Interview {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.interview
}

// PollStatus returns the latest polling progress.
func (o *Orchestrator) PollStatus() polling.Progress {
	o.mu.Lock()
	p := o.poller
	o.mu.Unlock()
	if p == nil {
		return polling.Progress{}
	}
	return p.Last()
}

// AssessmentID returns the stored assessment's ID and whether it was saved.
func (o *Orchestrator) AssessmentID() (int64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.assessmentID, o.assessmentID != 0
}
