// Package scoringtest provides a scripted in-process scoring API for tests.
package scoringtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/jonathan/digiready/internal/scoring"
	"github.com/jonathan/digiready/internal/types"
)

// DefaultResult is a minimal well-formed result object.
const DefaultResult = `{
  "session_id": "sess-1",
  "digital_competence": {"Data Literacy": {"score": 72, "rationale": "Uses metrics", "evidence": ["tracked KPIs"]}},
  "digital_mindset": {"Curiosity": {"score": 88, "rationale": "Asks why", "evidence": ["explored options"]}},
  "digital_adaptability": {"score": 75},
  "confidence": 0.82,
  "overall_comments": "Solid"
}`

// Script controls how the fake API answers. Zero values mean success with
// defaults.
type Script struct {
	// FailStart maps a stage to the HTTP status its session start returns.
	FailStart map[types.StageCode]int

	Caselet       string
	FailCaselet   int
	Questions     []types.Question
	NextQuestions []types.Question // served in order, then "no more"
	FailNext      int

	RemainingSeconds []int // served in order, last value repeats
	FailTimeLeft     int
	OmitTimeLeft     bool // serve {} for time-left

	FailSubmit int
	JobID      string // defaults to "job-<session>"

	Statuses     []string // served in order, last value repeats; default "done"
	FailStatuses int      // number of leading status calls that fail with 503
	Result       string   // raw result object; defaults to DefaultResult
	FailResults  int      // number of leading results calls that fail with 503
}

// SubmitCall records one submission.
type SubmitCall struct {
	SessionID string
	Request   types.SubmitRequest
}

// Server is a fake scoring API.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	script      Script
	sessions    int
	starts      []types.StartSessionRequest
	submits     []SubmitCall
	nextCalls   []string
	nextServed  int
	timeCalls   int
	statusCalls int
	resultCalls int
	order       []string
}

// NewServer starts a fake scoring API that is closed when the test ends.
func NewServer(t *testing.T, script Script) *Server {
	t.Helper()
	s := &Server{script: script}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Client returns a scoring client pointed at the fake.
func (s *Server) Client(t *testing.T) *scoring.Client {
	t.Helper()
	c, err := scoring.New(s.URL+"/", nil)
	if err != nil {
		t.Fatalf("failed to create scoring client: %v", err)
	}
	return c
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 2 || parts[0] != "session" {
		http.NotFound(w, r)
		return
	}
	if parts[1] == "start" && r.Method == http.MethodPost {
		s.order = append(s.order, "start")
		s.start(w, r)
		return
	}
	if len(parts) < 3 {
		http.NotFound(w, r)
		return
	}

	sessionID := parts[1]
	endpoint := parts[2]
	s.order = append(s.order, endpoint)

	switch endpoint {
	case "caselet":
		if s.script.FailCaselet != 0 {
			fail(w, s.script.FailCaselet, "caselet unavailable")
			return
		}
		writeJSON(w, types.CaseletContent{Text: s.script.Caselet})
	case "bei-questions":
		writeJSON(w, types.QuestionList{Questions: s.script.Questions})
	case "bei-next-question":
		var body types.NextQuestionRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.nextCalls = append(s.nextCalls, body.PreviousAnswer)
		if s.script.FailNext != 0 {
			fail(w, s.script.FailNext, "next question failed")
			return
		}
		if s.nextServed >= len(s.script.NextQuestions) {
			writeJSON(w, map[string]any{})
			return
		}
		q := s.script.NextQuestions[s.nextServed]
		s.nextServed++
		writeJSON(w, q)
	case "time-left":
		s.timeCalls++
		if s.script.FailTimeLeft != 0 {
			fail(w, s.script.FailTimeLeft, "timer unavailable")
			return
		}
		if s.script.OmitTimeLeft {
			writeJSON(w, struct{}{})
			return
		}
		remaining := float64(pick(s.script.RemainingSeconds, s.timeCalls, 1200))
		writeJSON(w, types.TimeLeft{RemainingSeconds: &remaining})
	case "submit":
		data, _ := io.ReadAll(r.Body)
		var req types.SubmitRequest
		_ = json.Unmarshal(data, &req)
		s.submits = append(s.submits, SubmitCall{SessionID: sessionID, Request: req})
		if s.script.FailSubmit != 0 {
			fail(w, s.script.FailSubmit, "submission rejected")
			return
		}
		job := s.script.JobID
		if job == "" {
			job = "job-" + sessionID
		}
		writeJSON(w, types.SubmitResponse{ScoringJobID: types.ID(job)})
	case "status":
		s.statusCalls++
		if s.statusCalls <= s.script.FailStatuses {
			fail(w, http.StatusServiceUnavailable, "status unavailable")
			return
		}
		statuses := s.script.Statuses
		if len(statuses) == 0 {
			statuses = []string{types.StatusDone}
		}
		idx := s.statusCalls - s.script.FailStatuses - 1
		if idx >= len(statuses) {
			idx = len(statuses) - 1
		}
		writeJSON(w, types.SessionStatus{ScoringStatus: statuses[idx]})
	case "results":
		s.resultCalls++
		if s.resultCalls <= s.script.FailResults {
			fail(w, http.StatusServiceUnavailable, "results unavailable")
			return
		}
		result := s.script.Result
		if result == "" {
			result = DefaultResult
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"result": %s}`, result)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	var req types.StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "bad body")
		return
	}
	s.starts = append(s.starts, req)
	if code := s.script.FailStart[req.Section]; code != 0 {
		fail(w, code, fmt.Sprintf("cannot start section %d", req.Section))
		return
	}
	s.sessions++
	writeJSON(w, types.StartSessionResponse{SessionID: types.ID(fmt.Sprintf("sess-%d", s.sessions))})
}

func pick(values []int, call, fallback int) int {
	if len(values) == 0 {
		return fallback
	}
	if call > len(values) {
		return values[len(values)-1]
	}
	return values[call-1]
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func fail(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": msg})
}

// Starts returns the recorded session start requests.
func (s *Server) Starts() []types.StartSessionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.StartSessionRequest(nil), s.starts...)
}

// Submits returns the recorded submissions.
func (s *Server) Submits() []SubmitCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SubmitCall(nil), s.submits...)
}

// NextCalls returns the previous answers sent to the next-question endpoint.
func (s *Server) NextCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.nextCalls...)
}

// StatusCalls returns how many status checks were made.
func (s *Server) StatusCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusCalls
}

// ResultCalls returns how many results fetches were made.
func (s *Server) ResultCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resultCalls
}

// TimeCalls returns how many time-left fetches were made.
func (s *Server) TimeCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeCalls
}

// Order returns the endpoints hit, in order.
func (s *Server) Order() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}
