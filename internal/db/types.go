package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/jonathan/digiready/internal/types"
)

// FlattenedAssessment is a scored result split into the assessment row and
// its competency rows, the way the portal stores it.
type FlattenedAssessment struct {
	Assessment   types.AssessmentRecord
	Competencies []types.CompetencyRecord
}

// FlattenResult maps a save request onto table rows:
//   - overall_score is digital_adaptability.score
//   - confidence is the 0-1 confidence scaled to a percentage
//   - each competence and mindset entry becomes one competency row
func FlattenResult(req *types.SaveAssessmentRequest) (*FlattenedAssessment, error) {
	if req == nil || len(req.Results) == 0 {
		return nil, errors.New("no results to flatten")
	}

	var wire struct {
		DigitalCompetence   map[string]types.CompetencyScore `json:"digital_competence"`
		DigitalMindset      map[string]types.CompetencyScore `json:"digital_mindset"`
		DigitalAdaptability *types.AdaptabilityScore         `json:"digital_adaptability"`
		Confidence          float64                          `json:"confidence"`
		OverallComments     string                           `json:"overall_comments"`
	}
	if err := json.Unmarshal(req.Results, &wire); err != nil {
		return nil, fmt.Errorf("failed to parse results: %w", err)
	}
	if wire.DigitalAdaptability == nil {
		return nil, errors.New("results have no digital_adaptability score")
	}

	out := &FlattenedAssessment{
		Assessment: types.AssessmentRecord{
			ParticipantID:   req.ParticipantID,
			SessionID:       req.SessionID,
			Section:         req.Section,
			OverallScore:    types.Number(wire.DigitalAdaptability.Score),
			Confidence:      types.Number(math.Round(wire.Confidence*100*100) / 100),
			OverallComments: wire.OverallComments,
		},
	}
	out.Competencies = append(out.Competencies, competencyRows(wire.DigitalCompetence, types.CategoryCompetence)...)
	out.Competencies = append(out.Competencies, competencyRows(wire.DigitalMindset, types.CategoryMindset)...)
	return out, nil
}

func competencyRows(scores map[string]types.CompetencyScore, category string) []types.CompetencyRecord {
	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]types.CompetencyRecord, 0, len(names))
	for _, name := range names {
		s := scores[name]
		rows = append(rows, types.CompetencyRecord{
			Name:      name,
			Score:     types.Number(s.Score),
			Rationale: s.Rationale,
			Evidence:  types.Evidence(s.Evidence),
			Type:      category,
		})
	}
	return rows
}

// encodeEvidence renders evidence as the JSON text stored in the evidence column.
func encodeEvidence(e types.Evidence) (string, error) {
	if e == nil {
		e = types.Evidence{}
	}
	data, err := json.Marshal([]string(e))
	if err != nil {
		return "", fmt.Errorf("failed to encode evidence: %w", err)
	}
	return string(data), nil
}

// decodeEvidence parses the evidence column, tolerating legacy plain text.
func decodeEvidence(text *string) types.Evidence {
	if text == nil || *text == "" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(*text), &list); err == nil {
		return list
	}
	return types.Evidence{*text}
}
