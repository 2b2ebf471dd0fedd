package assessment

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jonathan/digiready/internal/scoring/scoringtest"
	"github.com/jonathan/digiready/internal/stage"
	"github.com/jonathan/digiready/internal/types"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	mu    sync.Mutex
	calls []types.SaveAssessmentRequest
	err   error
}

func (g *fakeGateway) SaveAssessment(_ context.Context, req *types.SaveAssessmentRequest) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, *req)
	if g.err != nil {
		return 0, g.err
	}
	return int64(len(g.calls)), nil
}

func (g *fakeGateway) Calls() []types.SaveAssessmentRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]types.SaveAssessmentRequest(nil), g.calls...)
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) States() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

var participant = &types.User{ID: 17, Role: types.RoleParticipant, Email: "p@example.com"}

func newOrchestrator(t *testing.T, srv *scoringtest.Server, gw Gateway, user *types.User, rec *stateRecorder) *Orchestrator {
	t.Helper()
	opts := &Options{
		API:     srv.Client(t),
		User:    user,
		Clock:   clockwork.NewFakeClock(),
		OnState: rec.record,
	}
	if gw != nil {
		opts.Gateway = gw
	}
	o, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(o.Close)
	return o
}

func waitDone(t *testing.T, o *Orchestrator) {
	t.Helper()
	select {
	case <-o.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("assessment did not complete; state %s", o.State())
	}
}

func startOptions(code types.StageCode) StartOptions {
	return StartOptions{
		UserID:           "user-1",
		Stage:            code,
		AllocatedSeconds: 1200,
		Profile:          types.Profile{Level: 2, Industry: "retail"},
	}
}

func TestNew_RequiresAPI(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
	_, err = New(&Options{})
	assert.Error(t, err)
}

func TestOrchestrator_CaseletRun(t *testing.T) {
	srv := scoringtest.NewServer(t, scoringtest.Script{Caselet: "A retailer is losing share."})
	gw := &fakeGateway{}
	rec := &stateRecorder{}
	o := newOrchestrator(t, srv, gw, participant, rec)

	assert.Equal(t, StateSetup, o.State())
	require.NoError(t, o.Start(context.Background(), startOptions(types.StageCaselet)))
	assert.Equal(t, StateActive, o.State())
	assert.Equal(t, types.StageCaselet, o.CurrentStage())
	assert.Nil(t, o.Composite())
	assert.Nil(t, o.Interview())

	c := o.Caselet()
	require.NotNil(t, c)
	assert.Equal(t, "A retailer is losing share.", c.Content())
	require.NoError(t, c.SetAnswer("Segment the customers and test pricing."))
	require.NoError(t, c.Submit(context.Background()))

	waitDone(t, o)
	assert.Equal(t, StateResults, o.State())
	assert.Equal(t, []State{StateActive, StatePolling, StateResults}, rec.States())
	assert.Nil(t, o.Caselet(), "stage is unmounted once submitted")

	res := o.Result()
	require.NotNil(t, res)
	assert.Equal(t, 75.0, res.Result.DigitalAdaptability.Score)

	session, job := o.Job()
	assert.Equal(t, "sess-1", session)
	assert.Equal(t, "job-sess-1", job)

	calls := gw.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, int64(17), calls[0].ParticipantID)
	assert.Equal(t, "sess-1", calls[0].SessionID)
	assert.Equal(t, types.StageCaselet, calls[0].Section)
	assert.JSONEq(t, scoringtest.DefaultResult, string(calls[0].Results))

	id, saved := o.AssessmentID()
	assert.True(t, saved)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, 1, srv.ResultCalls())

	starts := srv.Starts()
	require.Len(t, starts, 1)
	assert.Equal(t, types.StageCaselet, starts[0].Section)
	assert.Equal(t, 2, starts[0].Level)
}

func TestOrchestrator_CompositeRun(t *testing.T) {
	srv := scoringtest.NewServer(t, scoringtest.Script{
		Caselet:   "Scenario",
		Questions: []types.Question{{ID: "q1", Text: "Tell me about a change you led."}},
	})
	gw := &fakeGateway{}
	rec := &stateRecorder{}
	o := newOrchestrator(t, srv, gw, participant, rec)

	require.NoError(t, o.Start(context.Background(), startOptions(types.StageComposite)))
	assert.Equal(t, types.StageComposite, o.Section())

	c := o.Caselet()
	require.NotNil(t, c)
	require.NoError(t, c.SetAnswer("My caselet answer"))
	require.NoError(t, c.Submit(context.Background()))

	assert.Equal(t, StateActive, o.State())
	assert.Nil(t, o.Caselet())
	iv := o.Interview()
	require.NotNil(t, iv)
	assert.Equal(t, types.StageInterview, o.CurrentStage())
	assert.Equal(t, "sess-2", o.SessionID())

	comp := o.Composite()
	require.NotNil(t, comp)
	assert.Equal(t, "sess-1", comp.CaseletSessionID)
	assert.Equal(t, "job-sess-1", comp.CaseletJobID)
	assert.Equal(t, "sess-2", comp.InterviewSessionID)
	assert.False(t, comp.Degraded)

	require.NoError(t, iv.SetAnswer("I led a migration."))
	require.NoError(t, iv.Advance(context.Background()))

	waitDone(t, o)
	assert.Equal(t, []State{StateActive, StateTransitioning, StateActive, StatePolling, StateResults}, rec.States())

	starts := srv.Starts()
	require.Len(t, starts, 2)
	assert.Equal(t, types.StageCaselet, starts[0].Section)
	assert.Equal(t, 1200, starts[0].AllocatedSeconds)
	assert.Equal(t, types.StageInterview, starts[1].Section)
	assert.Equal(t, DefaultInterviewSeconds, starts[1].AllocatedSeconds)
	assert.Equal(t, "user-1", starts[1].UserID)
	assert.Equal(t, starts[0].Profile, starts[1].Profile)

	comp = o.Composite()
	assert.Equal(t, "job-sess-2", comp.InterviewJobID)
	assert.Equal(t, "sess-2", comp.PolledSession())

	calls := gw.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "sess-2", calls[0].SessionID)
	assert.Equal(t, types.StageComposite, calls[0].Section)
}

func TestOrchestrator_CompositeDegradesWhenInterviewCannotStart(t *testing.T) {
	srv := scoringtest.NewServer(t, scoringtest.Script{
		Caselet:   "Scenario",
		FailStart: map[types.StageCode]int{types.StageInterview: http.StatusInternalServerError},
	})
	gw := &fakeGateway{}
	rec := &stateRecorder{}
	o := newOrchestrator(t, srv, gw, participant, rec)

	require.NoError(t, o.Start(context.Background(), startOptions(types.StageComposite)))
	c := o.Caselet()
	require.NotNil(t, c)
	require.NoError(t, c.SetAnswer("answer"))
	require.NoError(t, c.Submit(context.Background()))

	waitDone(t, o)
	assert.Equal(t, []State{StateActive, StateTransitioning, StatePolling, StateResults}, rec.States())
	assert.Nil(t, o.Interview())

	comp := o.Composite()
	require.NotNil(t, comp)
	assert.True(t, comp.Degraded)
	assert.Empty(t, comp.InterviewSessionID)
	assert.Equal(t, "sess-1", comp.PolledSession())

	session, job := o.Job()
	assert.Equal(t, "sess-1", session)
	assert.Equal(t, "job-sess-1", job)

	calls := gw.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "sess-1", calls[0].SessionID)
	assert.Equal(t, types.StageComposite, calls[0].Section)
}

func TestOrchestrator_StartFailureStaysInSetup(t *testing.T) {
	srv := scoringtest.NewServer(t, scoringtest.Script{
		FailStart: map[types.StageCode]int{types.StageInterview: http.StatusUnprocessableEntity},
	})
	rec := &stateRecorder{}
	o := newOrchestrator(t, srv, nil, nil, rec)

	err := o.Start(context.Background(), startOptions(types.StageInterview))
	require.Error(t, err)
	var startErr *StartError
	require.True(t, errors.As(err, &startErr))
	assert.Equal(t, "Server Error: cannot start section 4", err.Error())
	assert.Equal(t, StateSetup, o.State())
	assert.Empty(t, rec.States())

	require.NoError(t, o.Start(context.Background(), startOptions(types.StageCaselet)))
	assert.Equal(t, StateActive, o.State())
}

func TestOrchestrator_StartTwiceIsInvalid(t *testing.T) {
	srv := scoringtest.NewServer(t, scoringtest.Script{})
	o := newOrchestrator(t, srv, nil, nil, &stateRecorder{})

	require.NoError(t, o.Start(context.Background(), startOptions(types.StageCaselet)))
	assert.ErrorIs(t, o.Start(context.Background(), startOptions(types.StageCaselet)), ErrInvalidTransition)
}

func TestOrchestrator_StartRejectsUnknownStage(t *testing.T) {
	srv := scoringtest.NewServer(t, scoringtest.Script{})
	o := newOrchestrator(t, srv, nil, nil, &stateRecorder{})

	assert.Error(t, o.Start(context.Background(), StartOptions{UserID: "u", Stage: 7}))
	assert.Empty(t, srv.Starts())
}

func TestOrchestrator_NoPersistenceWithoutParticipant(t *testing.T) {
	srv := scoringtest.NewServer(t, scoringtest.Script{})
	gw := &fakeGateway{}
	admin := &types.User{ID: 3, Role: types.RoleAdmin}
	o := newOrchestrator(t, srv, gw, admin, &stateRecorder{})

	require.NoError(t, o.Start(context.Background(), startOptions(types.StageCaselet)))
	c := o.Caselet()
	require.NoError(t, c.SetAnswer("answer"))
	require.NoError(t, c.Submit(context.Background()))

	waitDone(t, o)
	assert.Empty(t, gw.Calls())
	_, saved := o.AssessmentID()
	assert.False(t, saved)
}

func TestOrchestrator_PersistenceFailureIsNotFatal(t *testing.T) {
	srv := scoringtest.NewServer(t, scoringtest.Script{})
	gw := &fakeGateway{err: errors.New("backend down")}
	var persistErr error
	var persistCalls int

	o, err := New(&Options{
		API:     srv.Client(t),
		Gateway: gw,
		User:    participant,
		Clock:   clockwork.NewFakeClock(),
		OnPersist: func(_ int64, err error) {
			persistCalls++
			persistErr = err
		},
	})
	require.NoError(t, err)
	defer o.Close()

	require.NoError(t, o.Start(context.Background(), startOptions(types.StageCaselet)))
	c := o.Caselet()
	require.NoError(t, c.SetAnswer("answer"))
	require.NoError(t, c.Submit(context.Background()))

	waitDone(t, o)
	assert.Equal(t, StateResults, o.State())
	assert.NotNil(t, o.Result())
	assert.Len(t, gw.Calls(), 1)
	assert.Equal(t, 1, persistCalls)
	assert.EqualError(t, persistErr, "backend down")
}

func TestOrchestrator_CloseStopsStage(t *testing.T) {
	srv := scoringtest.NewServer(t, scoringtest.Script{})
	rec := &stateRecorder{}
	o := newOrchestrator(t, srv, nil, nil, rec)

	require.NoError(t, o.Start(context.Background(), startOptions(types.StageCaselet)))
	c := o.Caselet()
	require.NotNil(t, c)

	o.Close()
	require.NoError(t, c.SetAnswer("late answer"))
	assert.ErrorIs(t, c.Submit(context.Background()), stage.ErrUnmounted)
	assert.Equal(t, StateActive, o.State())
	assert.Empty(t, srv.Submits())
	assert.ErrorIs(t, o.Start(context.Background(), startOptions(types.StageCaselet)), ErrInvalidTransition)
}

func TestOrchestrator_PollStatusBeforePolling(t *testing.T) {
	srv := scoringtest.NewServer(t, scoringtest.Script{})
	o := newOrchestrator(t, srv, nil, nil, &stateRecorder{})
	assert.Zero(t, o.PollStatus().Attempt)
}

func TestCompositeSession_PolledSession(t *testing.T) {
	c := &CompositeSession{CaseletSessionID: "a", CaseletJobID: "ja"}
	assert.Equal(t, "a", c.PolledSession())
	c.InterviewSessionID = "b"
	assert.Equal(t, "a", c.PolledSession())
	c.InterviewJobID = "jb"
	assert.Equal(t, "b", c.PolledSession())
}

func TestStartError(t *testing.T) {
	cause := errors.New("boom")
	err := &StartError{Stage: types.StageCaselet, Message: "Invalid level", Err: cause}
	assert.Equal(t, "Server Error: Invalid level", err.Error())
	assert.ErrorIs(t, err, cause)
}
