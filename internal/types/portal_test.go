package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginRequest_Validation(t *testing.T) {
	tests := []struct {
		name    string
		request LoginRequest
		wantErr bool
	}{
		{"valid participant", LoginRequest{Email: "p@example.com", Password: "secret", Role: RoleParticipant}, false},
		{"valid admin", LoginRequest{Email: "a@example.com", Password: "secret", Role: RoleAdmin}, false},
		{"bad email", LoginRequest{Email: "nope", Password: "secret", Role: RoleAdmin}, true},
		{"missing password", LoginRequest{Email: "a@example.com", Role: RoleAdmin}, true},
		{"unknown role", LoginRequest{Email: "a@example.com", Password: "x", Role: "guest"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.request.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoginRequest_RoleNotSerialized(t *testing.T) {
	data, err := json.Marshal(LoginRequest{Email: "a@example.com", Password: "x", Role: RoleAdmin})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "role")
}

func TestUser_UnmarshalParticipantRow(t *testing.T) {
	body := `{
		"participant_id": 12, "company_id": 3, "firstname": "Asha", "lastname": "Rao",
		"email": "asha@example.com", "level": "Level 2 - Manager", "section": "Caselet + BEI",
		"industry": "Retail", "role": "participant"
	}`

	var u User
	require.NoError(t, json.Unmarshal([]byte(body), &u))
	assert.Equal(t, int64(12), u.ID)
	assert.Equal(t, "Asha Rao", u.Name)
	assert.True(t, u.IsParticipant())
}

func TestUser_UnmarshalAdminRow(t *testing.T) {
	var u User
	require.NoError(t, json.Unmarshal([]byte(`{"company_id": 3, "firstname": "Ravi", "lastname": "K", "role": "admin"}`), &u))
	assert.Equal(t, int64(3), u.ID)
	assert.False(t, u.IsParticipant())
}

func TestUser_ExplicitIDWins(t *testing.T) {
	var u User
	require.NoError(t, json.Unmarshal([]byte(`{"id": 99, "participant_id": 12, "name": "Given", "role": "participant"}`), &u))
	assert.Equal(t, int64(99), u.ID)
	assert.Equal(t, "Given", u.Name)
}

func TestAssessmentDetail_Unmarshal(t *testing.T) {
	body := `{
		"assessment_id": 5, "participant_id": 12, "session_id": "s-1", "section": 34,
		"overall_score": "75.00", "confidence": 82, "overall_comments": "Solid",
		"created_at": "2026-03-01T10:00:00.000Z",
		"competencies": [
			{"id": 1, "name": "Curiosity", "score": "88.00", "rationale": "r", "evidence": "[\"a\",\"b\"]", "type": "mindset"},
			{"id": 2, "name": "Automation", "score": 64, "rationale": "r", "evidence": ["c"], "type": "competence"},
			{"id": 3, "name": "Plain", "score": 1, "evidence": "just text", "type": "competence"}
		]
	}`

	var d AssessmentDetail
	require.NoError(t, json.Unmarshal([]byte(body), &d))
	assert.Equal(t, int64(5), d.ID)
	assert.Equal(t, StageComposite, d.Section)
	assert.Equal(t, Number(75), d.OverallScore)
	require.Len(t, d.Competencies, 3)
	assert.Equal(t, Evidence{"a", "b"}, d.Competencies[0].Evidence)
	assert.Equal(t, Number(88), d.Competencies[0].Score)
	assert.Equal(t, Evidence{"c"}, d.Competencies[1].Evidence)
	assert.Equal(t, Evidence{"just text"}, d.Competencies[2].Evidence)
}

func TestNumber_Invalid(t *testing.T) {
	var n Number
	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &n))
	require.NoError(t, json.Unmarshal([]byte(`null`), &n))
	assert.Equal(t, Number(0), n)
}
