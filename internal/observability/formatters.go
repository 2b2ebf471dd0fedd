// Package observability renders assessment views and results for the terminal.
package observability

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/digiready/internal/assessment"
	"github.com/jonathan/digiready/internal/polling"
	"github.com/jonathan/digiready/internal/stage"
	"github.com/jonathan/digiready/internal/timer"
	"github.com/jonathan/digiready/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 72
	// maxEvidenceToShow is the number of evidence snippets listed per competency
	maxEvidenceToShow = 2
)

// Printer handles formatted output for the assessment CLI
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content. Long lines wrap.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	inner := boxWidth - 4
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %s │\n", pad(title, inner))
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		for _, wrapped := range wrap(line, inner) {
			fmt.Fprintf(p.out, "│ %s │\n", pad(wrapped, inner))
		}
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

func pad(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

// wrap splits line on spaces so each piece fits width. Words longer than
// width are cut.
func wrap(line string, width int) []string {
	if utf8.RuneCountInString(line) <= width {
		return []string{line}
	}
	indent := line[:len(line)-len(strings.TrimLeft(line, " "))]

	var out []string
	current := ""
	for _, word := range strings.Fields(line) {
		for utf8.RuneCountInString(word) > width-len(indent) {
			if current != "" {
				out = append(out, current)
				current = ""
			}
			r := []rune(word)
			out = append(out, indent+string(r[:width-len(indent)]))
			word = string(r[width-len(indent):])
		}
		switch {
		case current == "":
			current = indent + word
		case utf8.RuneCountInString(current)+1+utf8.RuneCountInString(word) <= width:
			current += " " + word
		default:
			out = append(out, current)
			current = indent + word
		}
	}
	if current != "" {
		out = append(out, current)
	}
	return out
}

// TimerText renders the countdown the way the stage header shows it.
func TimerText(remaining int, known bool) string {
	switch {
	case !known:
		return "Time left: --:--"
	case remaining <= 0:
		return "Time left: 00:00 (time is up)"
	default:
		return "Time left: " + timer.Format(remaining)
	}
}

// PrintStart outputs the session being started.
func (p *Printer) PrintStart(code types.StageCode, allocated int, profile types.Profile) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Stage:     %s\n", code))
	sb.WriteString(fmt.Sprintf("Duration:  %s\n", assessment.DurationLabel(allocated)))
	if profile.Level != 0 {
		sb.WriteString(fmt.Sprintf("Level:     %d\n", profile.Level))
	}
	for _, f := range []struct{ label, value string }{
		{"Industry", profile.Industry},
		{"Company", profile.Company},
		{"Geography", profile.Geography},
		{"Function", profile.Function},
		{"Division", profile.Division},
	} {
		if f.value != "" {
			sb.WriteString(fmt.Sprintf("%-10s %s\n", f.label+":", f.value))
		}
	}
	p.printBox("STARTING ASSESSMENT", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintCaselet outputs the scenario with the countdown.
func (p *Printer) PrintCaselet(c *stage.Caselet) {
	if c == nil {
		return
	}
	remaining, known := c.Remaining()

	var sb strings.Builder
	sb.WriteString(TimerText(remaining, known))
	sb.WriteString("\n\n")
	sb.WriteString(c.DisplayContent())
	p.printBox("CASELET", sb.String())
}

// PrintQuestion outputs the current interview question.
func (p *Printer) PrintQuestion(iv *stage.Interview) {
	if iv == nil {
		return
	}
	remaining, known := iv.Remaining()
	q := iv.Current()

	var sb strings.Builder
	sb.WriteString(TimerText(remaining, known))
	sb.WriteString("\n\n")
	if q == nil {
		sb.WriteString("No question is available.")
		p.printBox("INTERVIEW", sb.String())
		return
	}

	title := fmt.Sprintf("QUESTION %d", iv.QuestionNumber())
	if iv.PotentiallyFinal() {
		title += " (potentially final)"
	}
	sb.WriteString(q.Text)
	if len(q.SuggestedCompetencies) > 0 {
		sb.WriteString("\n\nConsider: ")
		sb.WriteString(strings.Join(q.SuggestedCompetencies, ", "))
	}
	p.printBox(title, sb.String())
}

// PrintPollStatus outputs a one-line scoring indicator.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintPollStatus(progress polling.Progress) {
	if progress.ConnectionLost {
		fmt.Fprintf(p.out, "Connection lost; retrying (check %d)...\n", progress.Attempt)
		return
	}
	status := progress.Status
	if status == "" {
		status = types.StatusProcessing
	}
	fmt.Fprintf(p.out, "Scoring your answers: %s (check %d)\n", status, progress.Attempt)
}

// PrintResult outputs the scored result with bands per competency.
func (p *Printer) PrintResult(result *types.Result) {
	if result == nil {
		return
	}

	var sb strings.Builder
	overall := result.DigitalAdaptability.Score
	sb.WriteString(fmt.Sprintf("Digital adaptability: %.0f/100 (%s)\n", overall, types.ScoreBand(overall)))
	sb.WriteString(fmt.Sprintf("Confidence:           %.0f%%\n", result.ConfidencePercent()))

	competencies := result.Competencies()
	if len(competencies) > 0 {
		sb.WriteString("\nCompetencies:\n")
		for _, c := range competencies {
			sb.WriteString(fmt.Sprintf("  • %s [%s]: %.0f (%s)\n", c.Name, c.Category, c.Score, types.ScoreBand(c.Score)))
			if c.Rationale != "" {
				sb.WriteString(fmt.Sprintf("      %s\n", c.Rationale))
			}
			count := min(len(c.Evidence), maxEvidenceToShow)
			for i := 0; i < count; i++ {
				sb.WriteString(fmt.Sprintf("      \"%s\"\n", c.Evidence[i]))
			}
		}
	}

	if result.OverallComments != "" {
		sb.WriteString("\nComments:\n")
		sb.WriteString(result.OverallComments)
	}

	p.printBox("ASSESSMENT RESULTS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintUser outputs the logged-in account.
func (p *Printer) PrintUser(user *types.User) {
	if user == nil {
		return
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Name:   %s\n", user.Name))
	sb.WriteString(fmt.Sprintf("Email:  %s\n", user.Email))
	sb.WriteString(fmt.Sprintf("Role:   %s\n", user.Role))
	if user.IsParticipant() {
		if user.Level != "" {
			sb.WriteString(fmt.Sprintf("Level:  %s\n", user.Level))
		}
		if user.Section != "" {
			sb.WriteString(fmt.Sprintf("Section: %s\n", user.Section))
		}
	}
	p.printBox("ACCOUNT", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintHistory outputs a table of stored assessments.
func (p *Printer) PrintHistory(records []types.AssessmentRecord) {
	if len(records) == 0 {
		p.printBox("ASSESSMENT HISTORY", "No assessments yet.")
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-6s %-12s %-20s %6s %6s\n", "ID", "Date", "Stage", "Score", "Conf"))
	for _, r := range records {
		sb.WriteString(fmt.Sprintf("%-6d %-12s %-20s %6.1f %5.0f%%\n",
			r.ID, r.CreatedAt.Format("2006-01-02"), r.Section, float64(r.OverallScore), float64(r.Confidence)))
	}
	p.printBox("ASSESSMENT HISTORY", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintAssessment outputs a stored assessment with its competency rows.
func (p *Printer) PrintAssessment(detail *types.AssessmentDetail) {
	if detail == nil {
		return
	}

	var sb strings.Builder
	score := float64(detail.OverallScore)
	sb.WriteString(fmt.Sprintf("Session:  %s\n", detail.SessionID))
	sb.WriteString(fmt.Sprintf("Stage:    %s\n", detail.Section))
	sb.WriteString(fmt.Sprintf("Taken:    %s\n", detail.CreatedAt.Format("2006-01-02 15:04")))
	sb.WriteString(fmt.Sprintf("Score:    %.1f (%s)\n", score, types.ScoreBand(score)))
	sb.WriteString(fmt.Sprintf("Confidence: %.0f%%\n", float64(detail.Confidence)))

	if len(detail.Competencies) > 0 {
		sb.WriteString("\nCompetencies:\n")
		for _, c := range detail.Competencies {
			s := float64(c.Score)
			sb.WriteString(fmt.Sprintf("  • %s [%s]: %.0f (%s)\n", c.Name, c.Type, s, types.ScoreBand(s)))
		}
	}
	if detail.OverallComments != "" {
		sb.WriteString("\nComments:\n")
		sb.WriteString(detail.OverallComments)
	}

	p.printBox(fmt.Sprintf("ASSESSMENT #%d", detail.ID), strings.TrimSuffix(sb.String(), "\n"))
}
