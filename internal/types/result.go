package types

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Competency categories as stored by the portal.
const (
	CategoryCompetence = "competence"
	CategoryMindset    = "mindset"
)

// Score bands used when presenting scores.
const (
	BandExcellent = "excellent"
	BandGood      = "good"
	BandFair      = "fair"
	BandNeedsWork = "needs work"
)

// CompetencyScore is the scorer's verdict for a single named competency.
type CompetencyScore struct {
	Score     float64  `json:"score"`
	Rationale string   `json:"rationale,omitempty"`
	Evidence  []string `json:"evidence,omitempty"`
}

// AdaptabilityScore is the aggregate score.
type AdaptabilityScore struct {
	Score float64 `json:"score"`
}

// Result is the scored outcome of a session.
type Result struct {
	SessionID           string                     `json:"session_id"`
	DigitalCompetence   map[string]CompetencyScore `json:"digital_competence"`
	DigitalMindset      map[string]CompetencyScore `json:"digital_mindset"`
	DigitalAdaptability AdaptabilityScore          `json:"digital_adaptability"`
	Confidence          float64                    `json:"confidence"`
	OverallComments     string                     `json:"overall_comments"`
}

// NamedCompetency is a competency score tagged with its name and category.
type NamedCompetency struct {
	Name     string
	Category string
	CompetencyScore
}

// Competencies merges both categories for display, ordered by name. A mindset
// entry replaces a competence entry of the same name.
func (r *Result) Competencies() []NamedCompetency {
	merged := make(map[string]NamedCompetency, len(r.DigitalCompetence)+len(r.DigitalMindset))
	for name, score := range r.DigitalCompetence {
		merged[name] = NamedCompetency{Name: name, Category: CategoryCompetence, CompetencyScore: score}
	}
	for name, score := range r.DigitalMindset {
		merged[name] = NamedCompetency{Name: name, Category: CategoryMindset, CompetencyScore: score}
	}

	out := make([]NamedCompetency, 0, len(merged))
	for _, c := range merged {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ConfidencePercent returns the confidence scaled to 0-100.
func (r *Result) ConfidencePercent() float64 {
	return r.Confidence * 100
}

// ScoreBand classifies a 0-100 score.
func ScoreBand(score float64) string {
	switch {
	case score >= 85:
		return BandExcellent
	case score >= 70:
		return BandGood
	case score >= 50:
		return BandFair
	default:
		return BandNeedsWork
	}
}

// ResultEnvelope is the body of the results endpoint. Raw keeps the "result"
// object byte-for-byte so it can be persisted verbatim.
type ResultEnvelope struct {
	Raw    json.RawMessage
	Result Result
}

// DecodeResultEnvelope parses a results response body.
func DecodeResultEnvelope(data []byte) (*ResultEnvelope, error) {
	var wire struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("failed to parse results envelope: %w", err)
	}
	if len(wire.Result) == 0 || string(wire.Result) == "null" {
		return nil, fmt.Errorf("results envelope has no result")
	}

	env := &ResultEnvelope{Raw: wire.Result}
	if err := json.Unmarshal(wire.Result, &env.Result); err != nil {
		return nil, fmt.Errorf("failed to parse result: %w", err)
	}
	return env, nil
}
