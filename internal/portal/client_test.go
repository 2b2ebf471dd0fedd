package portal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/jonathan/digiready/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loggedInClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	store := &MemoryTokenStore{}
	require.NoError(t, store.Save(signToken(t, 5, types.RoleParticipant, testNow.Add(time.Hour))))
	mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": 5, "role": "participant", "email": "p@example.com"}`))
	})
	s := newTestSession(t, mux, store)
	require.NoError(t, s.Load(context.Background()))
	return NewClient(s)
}

func TestClient_SaveAssessment(t *testing.T) {
	var body map[string]json.RawMessage
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/assessments/save", func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"message":"Assessment saved successfully","assessmentId":31}`))
	})
	c := loggedInClient(t, mux)

	id, err := c.SaveAssessment(context.Background(), &types.SaveAssessmentRequest{
		ParticipantID: 5,
		SessionID:     "sess-1",
		Section:       types.StageComposite,
		Results:       json.RawMessage(`{"digital_adaptability":{"score":70}}`),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(31), id)
	assert.JSONEq(t, `5`, string(body["participant_id"]))
	assert.JSONEq(t, `"sess-1"`, string(body["session_id"]))
	assert.JSONEq(t, `34`, string(body["section"]))
	assert.JSONEq(t, `{"digital_adaptability":{"score":70}}`, string(body["results"]))
}

func TestClient_SaveAssessmentRejectsBadInput(t *testing.T) {
	c := loggedInClient(t, http.NewServeMux())

	_, err := c.SaveAssessment(context.Background(), &types.SaveAssessmentRequest{ParticipantID: 5})
	assert.Error(t, err)

	_, err = c.SaveAssessment(context.Background(), &types.SaveAssessmentRequest{
		ParticipantID: 5, Results: json.RawMessage(`{not json`),
	})
	assert.Error(t, err)

	_, err = c.SaveAssessment(context.Background(), &types.SaveAssessmentRequest{
		Results: json.RawMessage(`{}`),
	})
	assert.Error(t, err)
}

func TestClient_ListParticipantAssessments(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/assessments/participant/5", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"assessment_id": 2, "participant_id": 5, "session_id": "s2", "section": 34,
			 "overall_score": "72.50", "confidence": "81.00", "overall_comments": "ok",
			 "created_at": "2025-02-01T10:00:00Z"},
			{"assessment_id": 1, "participant_id": 5, "session_id": "s1", "section": 3,
			 "overall_score": 60, "confidence": null, "created_at": "2025-01-01T10:00:00Z"}
		]`))
	})
	c := loggedInClient(t, mux)

	records, err := c.ListParticipantAssessments(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, types.Number(72.5), records[0].OverallScore)
	assert.Equal(t, types.StageComposite, records[0].Section)
	assert.Equal(t, types.Number(0), records[1].Confidence)
}

func TestClient_GetAssessment(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/assessments/2", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"assessment_id": 2, "participant_id": 5, "section": 4,
			"overall_score": "80.00", "created_at": "2025-02-01T10:00:00Z",
			"competencies": [{"name": "Curiosity", "score": "90.00", "rationale": "asks",
			 "evidence": "[\"asked why\"]", "type": "mindset"}]}`))
	})
	mux.HandleFunc("GET /api/assessments/404", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Assessment not found"}`))
	})
	c := loggedInClient(t, mux)

	detail, err := c.GetAssessment(context.Background(), 2)
	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, int64(2), detail.ID)
	require.Len(t, detail.Competencies, 1)
	assert.Equal(t, types.Evidence{"asked why"}, detail.Competencies[0].Evidence)

	missing, err := c.GetAssessment(context.Background(), 404)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestClient_ListAssessmentsForbidden(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/assessments", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"Admins only"}`))
	})
	c := loggedInClient(t, mux)

	_, err := c.ListAssessments(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Admins only")
}
