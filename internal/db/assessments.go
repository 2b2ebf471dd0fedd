package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jonathan/digiready/internal/types"
)

// -----------------------------------------------------------------------------
// Assessment Methods
// -----------------------------------------------------------------------------

const assessmentColumns = `assessment_id, participant_id, session_id, section,
	overall_score, confidence, overall_comments, created_at`

// SaveAssessment flattens a scored result and stores it with its competency
// rows in one transaction. It returns the new assessment ID.
func (db *DB) SaveAssessment(ctx context.Context, req *types.SaveAssessmentRequest) (int64, error) {
	flat, err := FlattenResult(req)
	if err != nil {
		return 0, err
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer db.rollback(ctx, tx)

	a := flat.Assessment
	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO assessments (participant_id, session_id, section, overall_score, confidence, overall_comments)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING assessment_id`,
		a.ParticipantID, a.SessionID, int(a.Section), float64(a.OverallScore), float64(a.Confidence), a.OverallComments,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert assessment: %w", err)
	}

	for _, c := range flat.Competencies {
		evidence, err := encodeEvidence(c.Evidence)
		if err != nil {
			return 0, err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO competencies (assessment_id, name, score, rationale, evidence, type)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			id, c.Name, float64(c.Score), c.Rationale, evidence, c.Type,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert competency %q: %w", c.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit assessment: %w", err)
	}
	return id, nil
}

// ListParticipantAssessments returns a participant's assessments, newest first.
func (db *DB) ListParticipantAssessments(ctx context.Context, participantID int64) ([]types.AssessmentRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+assessmentColumns+` FROM assessments
		 WHERE participant_id = $1
		 ORDER BY created_at DESC`,
		participantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}
	return collectAssessments(rows)
}

// ListAssessments returns every stored assessment, newest first.
func (db *DB) ListAssessments(ctx context.Context) ([]types.AssessmentRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+assessmentColumns+` FROM assessments ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}
	return collectAssessments(rows)
}

// GetAssessment returns an assessment with its competencies, or nil if absent.
func (db *DB) GetAssessment(ctx context.Context, id int64) (*types.AssessmentDetail, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+assessmentColumns+` FROM assessments WHERE assessment_id = $1`,
		id,
	)
	a, err := scanAssessment(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT id, assessment_id, name, score, rationale, evidence, type
		 FROM competencies WHERE assessment_id = $1
		 ORDER BY id`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get competencies: %w", err)
	}
	defer rows.Close()

	detail := &types.AssessmentDetail{AssessmentRecord: *a}
	for rows.Next() {
		var c types.CompetencyRecord
		var score float64
		var rationale, evidence *string
		if err := rows.Scan(&c.ID, &c.AssessmentID, &c.Name, &score, &rationale, &evidence, &c.Type); err != nil {
			return nil, fmt.Errorf("failed to scan competency: %w", err)
		}
		c.Score = types.Number(score)
		if rationale != nil {
			c.Rationale = *rationale
		}
		c.Evidence = decodeEvidence(evidence)
		detail.Competencies = append(detail.Competencies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating competencies: %w", err)
	}
	return detail, nil
}

func collectAssessments(rows pgx.Rows) ([]types.AssessmentRecord, error) {
	defer rows.Close()

	var out []types.AssessmentRecord
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assessment: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assessments: %w", err)
	}
	return out, nil
}

func scanAssessment(row pgx.Row) (*types.AssessmentRecord, error) {
	var a types.AssessmentRecord
	var section int
	var score, confidence *float64
	var comments *string
	var createdAt time.Time
	if err := row.Scan(&a.ID, &a.ParticipantID, &a.SessionID, &section,
		&score, &confidence, &comments, &createdAt); err != nil {
		return nil, err
	}
	a.Section = types.StageCode(section)
	if score != nil {
		a.OverallScore = types.Number(*score)
	}
	if confidence != nil {
		a.Confidence = types.Number(*confidence)
	}
	if comments != nil {
		a.OverallComments = *comments
	}
	a.CreatedAt = createdAt
	return &a, nil
}
