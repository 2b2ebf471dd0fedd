// Package scoring is the client for the external DigiReady scoring API:
// session creation, stage content, timing, submission, status and results.
package scoring

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/jonathan/digiready/internal/fetch"
	"github.com/jonathan/digiready/internal/types"
)

// Client talks to the scoring API.
type Client struct {
	http *fetch.Client
}

// New creates a scoring API client for baseURL.
func New(baseURL string, opts *fetch.Options) (*Client, error) {
	c, err := fetch.NewClient(baseURL, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create scoring client: %w", err)
	}
	return &Client{http: c}, nil
}

func sessionPath(sessionID string, parts ...string) string {
	p := "session/" + url.PathEscape(sessionID)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

// StartSession creates a session. The composite stage code is rejected by
// validation; callers must start each stage separately.
func (c *Client) StartSession(ctx context.Context, req *types.StartSessionRequest) (*types.StartSessionResponse, error) {
	if req.Meta == nil {
		req.Meta = map[string]any{}
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session request: %w", err)
	}

	var resp types.StartSessionResponse
	if err := c.http.JSON(ctx, http.MethodPost, "session/start", req, &resp); err != nil {
		return nil, err
	}
	if resp.SessionID == "" {
		return nil, fmt.Errorf("session start returned no session_id")
	}
	return &resp, nil
}

// Caselet fetches the scenario text for a caselet session.
func (c *Client) Caselet(ctx context.Context, sessionID string) (*types.CaseletContent, error) {
	var resp types.CaseletContent
	if err := c.http.JSON(ctx, http.MethodGet, sessionPath(sessionID, "caselet"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Questions fetches the initial interview questions.
func (c *Client) Questions(ctx context.Context, sessionID string) ([]types.Question, error) {
	var resp types.QuestionList
	if err := c.http.JSON(ctx, http.MethodGet, sessionPath(sessionID, "bei-questions"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Questions, nil
}

// NextQuestion asks for the follow-up question given the previous answer. It
// returns nil, nil when the server has no more questions.
func (c *Client) NextQuestion(ctx context.Context, sessionID, previousAnswer string) (*types.Question, error) {
	var q types.Question
	body := types.NextQuestionRequest{PreviousAnswer: previousAnswer}
	if err := c.http.JSON(ctx, http.MethodPost, sessionPath(sessionID, "bei-next-question"), body, &q); err != nil {
		return nil, err
	}
	if q.ID == "" {
		return nil, nil
	}
	return &q, nil
}

// TimeLeft fetches the server-side remaining time.
func (c *Client) TimeLeft(ctx context.Context, sessionID string) (*types.TimeLeft, error) {
	var resp types.TimeLeft
	if err := c.http.JSON(ctx, http.MethodGet, sessionPath(sessionID, "time-left"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Submit sends the final answer for a session and returns the scoring job.
func (c *Client) Submit(ctx context.Context, sessionID string, req *types.SubmitRequest) (*types.SubmitResponse, error) {
	if req.Metadata == nil {
		req.Metadata = map[string]any{}
	}

	var resp types.SubmitResponse
	if err := c.http.JSON(ctx, http.MethodPost, sessionPath(sessionID, "submit"), req, &resp); err != nil {
		return nil, err
	}
	if resp.ScoringJobID == "" {
		return nil, fmt.Errorf("submit returned no scoring_job_id")
	}
	return &resp, nil
}

// Status fetches the scoring status of a session.
func (c *Client) Status(ctx context.Context, sessionID string) (*types.SessionStatus, error) {
	var resp types.SessionStatus
	if err := c.http.JSON(ctx, http.MethodGet, sessionPath(sessionID, "status"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Results fetches the scored result for a finished job.
func (c *Client) Results(ctx context.Context, sessionID, jobID string) (*types.ResultEnvelope, error) {
	data, err := c.http.Do(ctx, http.MethodGet, sessionPath(sessionID, "results", url.PathEscape(jobID)), nil)
	if err != nil {
		return nil, err
	}
	return types.DecodeResultEnvelope(data)
}
