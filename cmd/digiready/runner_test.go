package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jonathan/digiready/internal/assessment"
	"github.com/jonathan/digiready/internal/config"
	"github.com/jonathan/digiready/internal/observability"
	"github.com/jonathan/digiready/internal/scoring/scoringtest"
	"github.com/jonathan/digiready/internal/types"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testApp(out *bytes.Buffer) *app {
	logger := zerolog.Nop()
	w := &syncWriter{w: out}
	return &app{
		cfg:     &config.Config{},
		logger:  &logger,
		out:     w,
		printer: observability.NewPrinter(w),
	}
}

func feed(lines ...string) <-chan string {
	ch := make(chan string, len(lines))
	for _, l := range lines {
		ch <- l
	}
	close(ch)
	return ch
}

func startRun(t *testing.T, srv *scoringtest.Server, code types.StageCode) (*assessment.Orchestrator, chan assessment.State) {
	t.Helper()
	states := make(chan assessment.State, 16)
	o, err := assessment.New(&assessment.Options{
		API:   srv.Client(t),
		Clock: clockwork.NewFakeClock(),
		OnState: func(s assessment.State) {
			states <- s
		},
	})
	require.NoError(t, err)
	t.Cleanup(o.Close)

	require.NoError(t, o.Start(context.Background(), assessment.StartOptions{
		UserID:           "user-1",
		Stage:            code,
		AllocatedSeconds: 1200,
		Profile:          types.Profile{Level: 3},
	}))
	return o, states
}

func runWithTimeout(t *testing.T, r *runner) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.run(ctx)
}

func TestRunner_Caselet(t *testing.T) {
	srv := scoringtest.NewServer(t, scoringtest.Script{Caselet: "A retailer is losing share."})
	o, states := startRun(t, srv, types.StageCaselet)

	var out bytes.Buffer
	r := newRunner(o, testApp(&out), feed(":submit", "First line", "second line", ":time", ":submit"), states)
	require.NoError(t, runWithTimeout(t, r))

	submits := srv.Submits()
	require.Len(t, submits, 1)
	assert.Equal(t, "First line\nsecond line", submits[0].Request.Text)
	assert.Equal(t, "user-1", submits[0].Request.UserID)

	output := out.String()
	assert.Contains(t, output, "A retailer is losing share.")
	assert.Contains(t, output, "Type an answer first.")
	assert.Contains(t, output, "Time left: 20:00")
	assert.Contains(t, output, "Waiting for scoring")
	assert.Equal(t, assessment.StateResults, o.State())
}

func TestRunner_Interview(t *testing.T) {
	srv := scoringtest.NewServer(t, scoringtest.Script{
		Questions:     []types.Question{{ID: "q1", Text: "Describe a change you led."}},
		NextQuestions: []types.Question{{ID: "q2", Text: "What would you do differently?"}},
	})
	o, states := startRun(t, srv, types.StageInterview)

	var out bytes.Buffer
	r := newRunner(o, testApp(&out), feed(":finish", "I led a migration.", ":next", "Plan earlier.", ":next"), states)
	require.NoError(t, runWithTimeout(t, r))

	assert.Equal(t, []string{"I led a migration.", "Plan earlier."}, srv.NextCalls())
	submits := srv.Submits()
	require.Len(t, submits, 1)
	assert.Equal(t,
		"Q: Describe a change you led.\nA: I led a migration.\n\nQ: What would you do differently?\nA: Plan earlier.",
		submits[0].Request.Text)

	output := out.String()
	assert.Contains(t, output, "QUESTION 1")
	assert.Contains(t, output, "QUESTION 2")
	assert.Contains(t, output, "Answer at least one question before finishing.")
}

func TestRunner_Composite(t *testing.T) {
	srv := scoringtest.NewServer(t, scoringtest.Script{
		Caselet:   "Scenario",
		Questions: []types.Question{{ID: "q1", Text: "Tell me more."}},
	})
	o, states := startRun(t, srv, types.StageComposite)

	var out bytes.Buffer
	r := newRunner(o, testApp(&out), feed("caselet answer", ":submit", "interview answer", ":next"), states)
	require.NoError(t, runWithTimeout(t, r))

	submits := srv.Submits()
	require.Len(t, submits, 2)
	assert.Equal(t, "sess-1", submits[0].SessionID)
	assert.Equal(t, "caselet answer", submits[0].Request.Text)
	assert.Equal(t, "sess-2", submits[1].SessionID)
	assert.Equal(t, "Q: Tell me more.\nA: interview answer", submits[1].Request.Text)
	assert.Contains(t, out.String(), "Preparing the interview")
}

func TestRunner_Quit(t *testing.T) {
	srv := scoringtest.NewServer(t, scoringtest.Script{})
	o, states := startRun(t, srv, types.StageCaselet)

	var out bytes.Buffer
	r := newRunner(o, testApp(&out), feed("half an answer", ":quit"), states)
	assert.ErrorIs(t, runWithTimeout(t, r), errAbandoned)
	assert.Empty(t, srv.Submits())
}

func TestRunner_InputEndsEarly(t *testing.T) {
	srv := scoringtest.NewServer(t, scoringtest.Script{})
	o, states := startRun(t, srv, types.StageCaselet)

	var out bytes.Buffer
	r := newRunner(o, testApp(&out), feed("an answer"), states)
	err := runWithTimeout(t, r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input ended")
}

func TestRunner_UnknownCommand(t *testing.T) {
	srv := scoringtest.NewServer(t, scoringtest.Script{})
	o, states := startRun(t, srv, types.StageCaselet)

	var out bytes.Buffer
	r := newRunner(o, testApp(&out), feed(":bogus", ":next", "answer", ":clear", ":submit", "again", ":submit"), states)
	require.NoError(t, runWithTimeout(t, r))

	output := out.String()
	assert.Contains(t, output, "Unknown command :bogus.")
	assert.Contains(t, output, "There is no interview question to answer.")
	assert.Contains(t, output, "Answer cleared.")
	assert.Equal(t, 1, strings.Count(output, "Type an answer first."))
	require.Len(t, srv.Submits(), 1)
	assert.Equal(t, "again", srv.Submits()[0].Request.Text)
}

func TestReadLines(t *testing.T) {
	lines := readLines(context.Background(), strings.NewReader("one\ntwo\n"))
	var got []string
	for l := range lines {
		got = append(got, l)
	}
	assert.Equal(t, []string{"one", "two"}, got)
}
