package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jonathan/digiready/internal/fetch"
	"github.com/jonathan/digiready/internal/types"
)

// Client is the persistence gateway for assessment results. Every call goes
// out with the session's bearer token.
type Client struct {
	session *Session
}

// NewClient returns a gateway bound to the session.
func NewClient(session *Session) *Client {
	return &Client{session: session}
}

// SaveAssessment stores a scored result and returns the new assessment ID.
func (c *Client) SaveAssessment(ctx context.Context, req *types.SaveAssessmentRequest) (int64, error) {
	if req == nil || len(req.Results) == 0 {
		return 0, errors.New("save request has no results")
	}
	if req.ParticipantID == 0 {
		return 0, errors.New("save request has no participant")
	}
	if !json.Valid(req.Results) {
		return 0, errors.New("save request results are not valid JSON")
	}

	var resp types.SaveAssessmentResponse
	if err := c.session.HTTP().JSON(ctx, http.MethodPost, "assessments/save", req, &resp); err != nil {
		return 0, fmt.Errorf("failed to save assessment: %w", err)
	}
	return resp.AssessmentID, nil
}

// ListParticipantAssessments lists a participant's assessments, newest first.
func (c *Client) ListParticipantAssessments(ctx context.Context, participantID int64) ([]types.AssessmentRecord, error) {
	path := "assessments/participant/" + url.PathEscape(strconv.FormatInt(participantID, 10))
	var records []types.AssessmentRecord
	if err := c.session.HTTP().JSON(ctx, http.MethodGet, path, nil, &records); err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}
	return records, nil
}

// GetAssessment returns one assessment with its competency rows, or nil if the
// backend does not know it.
func (c *Client) GetAssessment(ctx context.Context, id int64) (*types.AssessmentDetail, error) {
	path := "assessments/" + url.PathEscape(strconv.FormatInt(id, 10))
	var detail types.AssessmentDetail
	if err := c.session.HTTP().JSON(ctx, http.MethodGet, path, nil, &detail); err != nil {
		if fetch.IsStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}
	return &detail, nil
}

// ListAssessments lists every assessment visible to an admin.
func (c *Client) ListAssessments(ctx context.Context) ([]types.AssessmentRecord, error) {
	var records []types.AssessmentRecord
	if err := c.session.HTTP().JSON(ctx, http.MethodGet, "assessments", nil, &records); err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}
	return records, nil
}
