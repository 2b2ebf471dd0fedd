package assessment

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jonathan/digiready/internal/types"
)

// Default allocations in seconds.
const (
	DefaultCaseletSeconds   = 1200
	DefaultInterviewSeconds = 1800
)

// Defaults for participant fields the portal left blank.
const (
	DefaultLevel     = 3
	DefaultIndustry  = "retail"
	DefaultGeography = "india"
	DefaultCompany   = "ExampleCo"
	DefaultFunction  = "Operations"
	DefaultDivision  = "E-commerce"
)

// DurationChoices are the allocations offered to participants.
var DurationChoices = []int{1200, 1800, 3600, 5400}

// StartOptions describe the assessment to start.
type StartOptions struct {
	UserID           string
	Stage            types.StageCode
	AllocatedSeconds int
	Profile          types.Profile
}

// DefaultAllocation returns the default time for a stage.
func DefaultAllocation(stage types.StageCode) int {
	if stage == types.StageInterview {
		return DefaultInterviewSeconds
	}
	return DefaultCaseletSeconds
}

// DefaultSetup returns the defaults of the manual setup form.
func DefaultSetup() StartOptions {
	return StartOptions{
		UserID:           uuid.NewString(),
		Stage:            types.StageCaselet,
		AllocatedSeconds: DefaultCaseletSeconds,
		Profile: types.Profile{
			Level:     DefaultLevel,
			Industry:  "General",
			Geography: DefaultGeography,
		},
	}
}

// ParseLevel maps a stored level label such as "Level 2 - Manager" to the
// scorer's 1-4 scale. Level 5 is scored as 4.
func ParseLevel(label string) int {
	for n := 1; n <= 5; n++ {
		if strings.Contains(label, fmt.Sprintf("Level %d", n)) {
			return min(n, 4)
		}
	}
	return DefaultLevel
}

// ParseSection maps a stored section label to a stage code.
func ParseSection(label string) types.StageCode {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "bei only"):
		return types.StageInterview
	case strings.Contains(l, "caselet only"):
		return types.StageCaselet
	case strings.Contains(l, "caselet") && strings.Contains(l, "bei"):
		return types.StageComposite
	default:
		return types.StageCaselet
	}
}

// ValidDuration reports whether seconds is one of DurationChoices.
func ValidDuration(seconds int) bool {
	return slices.Contains(DurationChoices, seconds)
}

// DurationLabel renders an allocation the way the duration picker shows it.
func DurationLabel(seconds int) string {
	return fmt.Sprintf("%d Minutes", seconds/60)
}

// ProfileFromParticipant derives the start options for a logged-in
// participant. Each run gets a fresh scorer user id. allocated is used when
// positive; otherwise the 20 minute default applies.
func ProfileFromParticipant(user *types.User, allocated int) StartOptions {
	if allocated <= 0 {
		allocated = DefaultCaseletSeconds
	}
	opts := StartOptions{
		UserID:           uuid.NewString(),
		Stage:            types.StageCaselet,
		AllocatedSeconds: allocated,
		Profile: types.Profile{
			Level:     DefaultLevel,
			Industry:  DefaultIndustry,
			Geography: DefaultGeography,
			Company:   DefaultCompany,
			Function:  DefaultFunction,
			Division:  DefaultDivision,
		},
	}
	if user == nil {
		return opts
	}

	if user.Level != "" {
		opts.Profile.Level = ParseLevel(user.Level)
	}
	if user.Section != "" {
		opts.Stage = ParseSection(user.Section)
	}
	if user.Industry != "" {
		opts.Profile.Industry = strings.ToLower(user.Industry)
	}
	if user.Geography != "" {
		opts.Profile.Geography = strings.ToLower(user.Geography)
	}
	if user.Company != "" {
		opts.Profile.Company = user.Company
	}
	if user.Function != "" {
		opts.Profile.Function = user.Function
	}
	if user.Division != "" {
		opts.Profile.Division = user.Division
	}
	return opts
}
