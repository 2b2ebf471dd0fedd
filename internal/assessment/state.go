// Package assessment runs an assessment from setup to results: it creates the
// scoring sessions, hands control to the stage components, waits for scoring
// and stores the outcome.
package assessment

import (
	"errors"

	"github.com/jonathan/digiready/internal/types"
)

// State is the orchestrator's position in an assessment.
type State string

// States only move forward: setup, active, optionally transitioning and back
// to active for a composite run, then polling and results.
const (
	StateSetup         State = "setup"
	StateActive        State = "active"
	StateTransitioning State = "transitioning"
	StatePolling       State = "polling"
	StateResults       State = "results"
)

// ErrInvalidTransition is returned when an operation is not allowed in the
// current state.
var ErrInvalidTransition = errors.New("invalid state transition")

// CompositeSession ties together the two scoring sessions of a Caselet plus
// Interview run.
type CompositeSession struct {
	CaseletSessionID   string
	CaseletJobID       string
	InterviewSessionID string
	InterviewJobID     string
	// Degraded is set when the interview session could not be created and
	// the run fell back to scoring the caselet alone.
	Degraded bool
}

// PolledSession returns the session whose scoring job decides the result.
func (c *CompositeSession) PolledSession() string {
	if c.InterviewJobID != "" {
		return c.InterviewSessionID
	}
	return c.CaseletSessionID
}

// StartError reports a failed session creation with the server's message.
type StartError struct {
	Stage   types.StageCode
	Message string
	Err     error
}

func (e *StartError) Error() string {
	return "Server Error: " + e.Message
}

func (e *StartError) Unwrap() error {
	return e.Err
}
