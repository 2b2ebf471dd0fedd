package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jonathan/digiready/internal/types"
)

// GetParticipant loads a participant with the stored assessment profile, or
// nil if there is no such participant.
func (db *DB) GetParticipant(ctx context.Context, id int64) (*types.User, error) {
	var u types.User
	var companyID *int64
	var designation, level, section, industry, geography, company, function, division *string
	err := db.pool.QueryRow(ctx,
		`SELECT participant_id, company_id, firstname, lastname, email, designation,
		        level, section, industry, geography, company, function, division, status
		 FROM participants WHERE participant_id = $1`,
		id,
	).Scan(&u.ParticipantID, &companyID, &u.FirstName, &u.LastName, &u.Email, &designation,
		&level, &section, &industry, &geography, &company, &function, &division, &u.Status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}

	u.ID = u.ParticipantID
	u.Role = types.RoleParticipant
	u.Name = joinName(u.FirstName, u.LastName)
	if companyID != nil {
		u.CompanyID = *companyID
	}
	u.Designation = deref(designation)
	u.Level = deref(level)
	u.Section = deref(section)
	u.Industry = deref(industry)
	u.Geography = deref(geography)
	u.Company = deref(company)
	u.Function = deref(function)
	u.Division = deref(division)
	return &u, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	default:
		return first + " " + last
	}
}
