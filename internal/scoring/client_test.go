package scoring

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jonathan/digiready/internal/fetch"
	"github.com/jonathan/digiready/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := New(server.URL+"/", nil)
	require.NoError(t, err)
	return c
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	data, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))
	return body
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New("::nope", nil)
	assert.Error(t, err)
}

func TestStartSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/session/start", r.URL.Path)

		body := decodeBody(t, r)
		assert.Equal(t, "user-1", body["user_id"])
		assert.Equal(t, float64(3), body["section"])
		assert.Equal(t, float64(1200), body["allocated_seconds"])
		assert.Equal(t, "retail", body["industry"])
		assert.Equal(t, map[string]any{}, body["meta"])
		assert.NotContains(t, body, "division")

		_, _ = w.Write([]byte(`{"session_id": "sess-1"}`))
	})

	resp, err := c.StartSession(context.Background(), &types.StartSessionRequest{
		UserID:           "user-1",
		Section:          types.StageCaselet,
		AllocatedSeconds: 1200,
		Profile:          types.Profile{Industry: "retail"},
	})
	require.NoError(t, err)
	assert.Equal(t, types.ID("sess-1"), resp.SessionID)
}

func TestStartSession_RejectsComposite(t *testing.T) {
	c := newTestClient(t, func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("composite code must not reach the server")
	})

	_, err := c.StartSession(context.Background(), &types.StartSessionRequest{
		UserID: "user-1", Section: types.StageComposite, AllocatedSeconds: 1200,
	})
	assert.Error(t, err)
}

func TestStartSession_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail": [{"msg": "value is not a valid uuid"}]}`))
	})

	_, err := c.StartSession(context.Background(), &types.StartSessionRequest{
		UserID: "not-a-uuid", Section: types.StageCaselet, AllocatedSeconds: 1200,
	})
	require.Error(t, err)
	assert.Equal(t, "value is not a valid uuid", fetch.Message(err))
}

func TestStartSession_MissingSessionID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := c.StartSession(context.Background(), &types.StartSessionRequest{
		UserID: "u", Section: types.StageInterview, AllocatedSeconds: 1800,
	})
	assert.ErrorContains(t, err, "no session_id")
}

func TestCaselet(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/session/sess-1/caselet", r.URL.Path)
		_, _ = w.Write([]byte(`{"caselet_text": "A retailer is losing share..."}`))
	})

	content, err := c.Caselet(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "A retailer is losing share...", content.Text)
}

func TestQuestions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/session/sess-2/bei-questions", r.URL.Path)
		_, _ = w.Write([]byte(`{"questions": [
			{"question_id": "q1", "question_text": "Tell me about a change you led", "suggested_competencies": ["Change"]},
			{"question_id": 2, "question_text": "Second"}
		]}`))
	})

	qs, err := c.Questions(context.Background(), "sess-2")
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, types.ID("q1"), qs[0].ID)
	assert.Equal(t, []string{"Change"}, qs[0].SuggestedCompetencies)
	assert.Equal(t, types.ID("2"), qs[1].ID)
}

func TestNextQuestion(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/session/sess-2/bei-next-question", r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, "I led a migration", body["previous_answer"])
		_, _ = w.Write([]byte(`{"question_id": "q2", "question_text": "What went wrong?"}`))
	})

	q, err := c.NextQuestion(context.Background(), "sess-2", "I led a migration")
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.Equal(t, types.ID("q2"), q.ID)
}

func TestNextQuestion_NoMore(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"empty object", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{}`)) }},
		{"null", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`null`)) }},
		{"no content", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }},
		{"empty id", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"question_id": "", "question_text": "ignored"}`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			q, err := c.NextQuestion(context.Background(), "s", "answer")
			require.NoError(t, err)
			assert.Nil(t, q)
		})
	}
}

func TestTimeLeft(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/session/sess-1/time-left", r.URL.Path)
		_, _ = w.Write([]byte(`{"remaining_seconds": 1187}`))
	})

	tl, err := c.TimeLeft(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 1187, tl.Seconds())
}

func TestTimeLeft_MissingField(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	tl, err := c.TimeLeft(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.False(t, tl.Known())
}

func TestSubmit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/session/sess-1/submit", r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, "user-1", body["user_id"])
		assert.Equal(t, "X", body["text"])
		assert.Equal(t, map[string]any{}, body["metadata"])
		_, _ = w.Write([]byte(`{"scoring_job_id": "J1"}`))
	})

	resp, err := c.Submit(context.Background(), "sess-1", &types.SubmitRequest{UserID: "user-1", Text: "X"})
	require.NoError(t, err)
	assert.Equal(t, types.ID("J1"), resp.ScoringJobID)
}

func TestSubmit_Failure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("upstream unavailable"))
	})

	_, err := c.Submit(context.Background(), "sess-1", &types.SubmitRequest{UserID: "u", Text: "X"})
	require.Error(t, err)
	assert.Equal(t, "upstream unavailable", fetch.Message(err))
}

func TestStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/session/sess-1/status", r.URL.Path)
		_, _ = w.Write([]byte(`{"scoring_status": "done"}`))
	})

	st, err := c.Status(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.True(t, st.Terminal())
}

func TestResults(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/session/sess-1/results/J1", r.URL.Path)
		_, _ = w.Write([]byte(`{"result": {"session_id": "sess-1", "digital_competence": {}, "digital_mindset": {}, "digital_adaptability": {"score": 70}, "confidence": 0.9, "overall_comments": "ok"}}`))
	})

	env, err := c.Results(context.Background(), "sess-1", "J1")
	require.NoError(t, err)
	assert.Equal(t, float64(70), env.Result.DigitalAdaptability.Score)
	assert.Contains(t, string(env.Raw), `"overall_comments": "ok"`)
}

func TestSessionPath_Escapes(t *testing.T) {
	assert.Equal(t, "session/a%2Fb/status", sessionPath("a/b", "status"))
}
