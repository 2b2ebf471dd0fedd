package types

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Portal roles carried in the token's "type" claim.
const (
	RoleAdmin       = "admin"
	RoleParticipant = "participant"
)

// LoginRequest represents the login request. Role selects the login endpoint and
// is not sent in the body.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"-" validate:"required,oneof=admin participant"`
}

// Validate validates the LoginRequest using the validator.
func (r *LoginRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// User is the authenticated portal account. Participants carry the stored
// assessment profile; admins are company accounts.
type User struct {
	ID            int64  `json:"id"`
	ParticipantID int64  `json:"participant_id,omitempty"`
	CompanyID     int64  `json:"company_id,omitempty"`
	Name          string `json:"name,omitempty"`
	FirstName     string `json:"firstname,omitempty"`
	LastName      string `json:"lastname,omitempty"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	Designation   string `json:"designation,omitempty"`
	Level         string `json:"level,omitempty"`
	Section       string `json:"section,omitempty"`
	Industry      string `json:"industry,omitempty"`
	Geography     string `json:"geography,omitempty"`
	Company       string `json:"company,omitempty"`
	Function      string `json:"function,omitempty"`
	Division      string `json:"division,omitempty"`
	Status        *int   `json:"status,omitempty"`
}

// UnmarshalJSON fills ID and Name from the raw row fields when the backend
// returns a bare database row (as the "me" endpoint does).
func (u *User) UnmarshalJSON(data []byte) error {
	type alias User
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*u = User(a)
	u.normalize()
	return nil
}

func (u *User) normalize() {
	if u.ID == 0 {
		if u.Role == RoleParticipant || (u.Role == "" && u.ParticipantID != 0) {
			u.ID = u.ParticipantID
		} else {
			u.ID = u.CompanyID
		}
	}
	if u.Name == "" {
		u.Name = strings.TrimSpace(u.FirstName + " " + u.LastName)
	}
}

// IsParticipant reports whether the user takes assessments.
func (u *User) IsParticipant() bool {
	return u != nil && u.Role == RoleParticipant
}

// LoginResponse represents the login response with user data and authentication token.
type LoginResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// SaveAssessmentRequest is the body of the save-assessment call. Results holds
// the scorer's "result" object verbatim.
type SaveAssessmentRequest struct {
	ParticipantID int64           `json:"participant_id"`
	SessionID     string          `json:"session_id"`
	Section       StageCode       `json:"section"`
	Results       json.RawMessage `json:"results"`
}

// SaveAssessmentResponse is returned by the save-assessment call.
type SaveAssessmentResponse struct {
	Message      string `json:"message"`
	AssessmentID int64  `json:"assessmentId"`
}

// AssessmentRecord is one stored assessment.
type AssessmentRecord struct {
	ID              int64     `json:"assessment_id"`
	ParticipantID   int64     `json:"participant_id"`
	SessionID       string    `json:"session_id"`
	Section         StageCode `json:"section"`
	OverallScore    Number    `json:"overall_score"`
	Confidence      Number    `json:"confidence"`
	OverallComments string    `json:"overall_comments"`
	CreatedAt       time.Time `json:"created_at"`
}

// CompetencyRecord is one stored competency row of an assessment.
type CompetencyRecord struct {
	ID           int64    `json:"id,omitempty"`
	AssessmentID int64    `json:"assessment_id,omitempty"`
	Name         string   `json:"name"`
	Score        Number   `json:"score"`
	Rationale    string   `json:"rationale"`
	Evidence     Evidence `json:"evidence"`
	Type         string   `json:"type"`
}

// AssessmentDetail is an assessment together with its competencies.
type AssessmentDetail struct {
	AssessmentRecord
	Competencies []CompetencyRecord `json:"competencies"`
}

// Evidence is a list of evidence snippets. The backend stores it as JSON text,
// so it may arrive either as an array or as a string holding an array.
type Evidence []string

// UnmarshalJSON accepts an array, a JSON-encoded array string, a plain string or null.
func (e *Evidence) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*e = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		var list []string
		if err := json.Unmarshal([]byte(s), &list); err == nil {
			*e = list
			return nil
		}
		if s == "" {
			*e = nil
			return nil
		}
		*e = Evidence{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*e = list
	return nil
}
