package types

import (
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Scoring job statuses reported by the session status endpoint.
const (
	StatusProcessing = "processing"
	StatusDone       = "done"
)

// Profile holds the optional attributes the scorer uses to calibrate a session.
// Unset fields are omitted from the request body.
type Profile struct {
	Level     int    `json:"level,omitempty" yaml:"level,omitempty" validate:"omitempty,min=1,max=4"`
	Industry  string `json:"industry,omitempty" yaml:"industry,omitempty"`
	Company   string `json:"company,omitempty" yaml:"company,omitempty"`
	Geography string `json:"geography,omitempty" yaml:"geography,omitempty"`
	Function  string `json:"function,omitempty" yaml:"function,omitempty"`
	Division  string `json:"division,omitempty" yaml:"division,omitempty"`
}

// StartSessionRequest is the body of the session start call.
type StartSessionRequest struct {
	UserID           string    `json:"user_id" validate:"required"`
	Section          StageCode `json:"section" validate:"oneof=3 4"`
	AllocatedSeconds int       `json:"allocated_seconds" validate:"gt=0"`
	Profile
	Meta map[string]any `json:"meta"`
}

// Validate validates the StartSessionRequest using the validator.
func (r *StartSessionRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// StartSessionResponse is returned by the session start call.
type StartSessionResponse struct {
	SessionID ID `json:"session_id"`
}

// CaseletContent is the scenario served for a caselet session.
type CaseletContent struct {
	Text string `json:"caselet_text"`
}

// Question is one interview prompt.
type Question struct {
	ID                    ID       `json:"question_id"`
	Text                  string   `json:"question_text"`
	SuggestedCompetencies []string `json:"suggested_competencies,omitempty"`
}

// QuestionList is the initial interview question set.
type QuestionList struct {
	Questions []Question `json:"questions"`
}

// NextQuestionRequest carries the previous answer as context for the next prompt.
type NextQuestionRequest struct {
	PreviousAnswer string `json:"previous_answer"`
}

// TimeLeft reports the server-side remaining time for a session.
// RemainingSeconds is nil when the server omitted the field.
type TimeLeft struct {
	RemainingSeconds *float64 `json:"remaining_seconds"`
}

// Known reports whether the server sent a remaining time.
func (t TimeLeft) Known() bool {
	return t.RemainingSeconds != nil
}

// Seconds returns the remaining time as whole seconds, never negative.
func (t TimeLeft) Seconds() int {
	if t.RemainingSeconds == nil || *t.RemainingSeconds <= 0 {
		return 0
	}
	return int(math.Floor(*t.RemainingSeconds))
}

// QAPair is one committed interview answer.
type QAPair struct {
	QuestionID   ID     `json:"question_id"`
	QuestionText string `json:"question_text"`
	Answer       string `json:"answer"`
}

// SubmitRequest is the final answer payload for a session.
type SubmitRequest struct {
	UserID   string         `json:"user_id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// SubmitResponse references the scoring job created by a submission.
type SubmitResponse struct {
	ScoringJobID ID `json:"scoring_job_id"`
}

// SessionStatus is the scoring status of a session.
type SessionStatus struct {
	ScoringStatus string `json:"scoring_status"`
}

// Terminal reports whether scoring has finished.
func (s SessionStatus) Terminal() bool {
	return strings.EqualFold(strings.TrimSpace(s.ScoringStatus), StatusDone)
}
