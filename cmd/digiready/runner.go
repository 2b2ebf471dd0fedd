package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/digiready/internal/assessment"
	"github.com/jonathan/digiready/internal/observability"
	"github.com/jonathan/digiready/internal/stage"
)

// errAbandoned is returned when the participant quits mid-assessment.
var errAbandoned = errors.New("assessment abandoned")

// readLines feeds input lines to a channel that is closed at EOF.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// runner is the terminal loop for one assessment. Typed lines build the
// answer; lines starting with ':' are commands.
type runner struct {
	o       *assessment.Orchestrator
	out     io.Writer
	printer *observability.Printer
	lines   <-chan string
	states  <-chan assessment.State
	buf     []string
}

func newRunner(o *assessment.Orchestrator, a *app, lines <-chan string, states <-chan assessment.State) *runner {
	return &runner{o: o, out: a.out, printer: a.printer, lines: lines, states: states}
}

// run handles input until the result is in.
func (r *runner) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.o.Done():
			return nil
		case s := <-r.states:
			r.stateChanged(s)
		case line, ok := <-r.lines:
			if !ok {
				r.lines = nil
				if r.o.State() == assessment.StateActive {
					return errors.New("input ended before the assessment was submitted")
				}
				continue
			}
			if err := r.handle(ctx, line); err != nil {
				return err
			}
		}
	}
}

//nolint:errcheck // writing to stdout; errors are not recoverable
func (r *runner) stateChanged(s assessment.State) {
	switch s {
	case assessment.StateActive:
		r.buf = nil
		r.show()
	case assessment.StateTransitioning:
		fmt.Fprintln(r.out, "Caselet submitted. Preparing the interview...")
	case assessment.StatePolling:
		fmt.Fprintln(r.out, "Answers submitted. Waiting for scoring...")
	}
}

// drainStates applies pending transitions so a line is never credited to a
// stage that has already been replaced.
func (r *runner) drainStates() {
	for {
		select {
		case s := <-r.states:
			r.stateChanged(s)
		default:
			return
		}
	}
}

func (r *runner) show() {
	if c := r.o.Caselet(); c != nil {
		r.printer.PrintCaselet(c)
		return
	}
	if iv := r.o.Interview(); iv != nil {
		r.printer.PrintQuestion(iv)
	}
}

//nolint:errcheck // writing to stdout; errors are not recoverable
func (r *runner) handle(ctx context.Context, line string) error {
	r.drainStates()
	cmd := strings.TrimSpace(line)
	if !strings.HasPrefix(cmd, ":") {
		if r.o.State() != assessment.StateActive {
			return nil
		}
		r.buf = append(r.buf, line)
		r.setAnswer()
		return nil
	}

	c, iv := r.o.Caselet(), r.o.Interview()
	switch strings.ToLower(cmd) {
	case ":quit", ":q":
		return errAbandoned
	case ":show":
		r.show()
	case ":time":
		remaining, known := r.remaining()
		fmt.Fprintln(r.out, observability.TimerText(remaining, known))
	case ":clear":
		r.buf = nil
		r.setAnswer()
		fmt.Fprintln(r.out, "Answer cleared.")
	case ":submit":
		if c == nil {
			fmt.Fprintln(r.out, "Nothing to submit here; use :next or :finish in the interview.")
			return nil
		}
		r.report(c.Submit(ctx))
	case ":next":
		if iv == nil {
			fmt.Fprintln(r.out, "There is no interview question to answer.")
			return nil
		}
		if err := iv.Advance(ctx); err != nil {
			r.report(err)
			return nil
		}
		if r.o.Interview() == iv && !iv.Exhausted() {
			r.buf = nil
			r.printer.PrintQuestion(iv)
		}
	case ":finish":
		if iv == nil {
			fmt.Fprintln(r.out, "There is no interview to finish.")
			return nil
		}
		r.report(iv.Finish(ctx))
	default:
		fmt.Fprintf(r.out, "Unknown command %s.\n", cmd)
	}
	return nil
}

//nolint:errcheck // writing to stdout; errors are not recoverable
func (r *runner) setAnswer() {
	text := strings.Join(r.buf, "\n")
	var err error
	if c := r.o.Caselet(); c != nil {
		err = c.SetAnswer(text)
	} else if iv := r.o.Interview(); iv != nil {
		err = iv.SetAnswer(text)
	}
	if errors.Is(err, stage.ErrLocked) {
		fmt.Fprintln(r.out, "Time is up; your answer can no longer be changed.")
	}
}

func (r *runner) remaining() (int, bool) {
	if c := r.o.Caselet(); c != nil {
		return c.Remaining()
	}
	if iv := r.o.Interview(); iv != nil {
		return iv.Remaining()
	}
	return 0, false
}

// report prints a user-facing message for a failed action.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (r *runner) report(err error) {
	switch {
	case err == nil:
	case errors.Is(err, stage.ErrEmptyAnswer):
		fmt.Fprintln(r.out, "Type an answer first.")
	case errors.Is(err, stage.ErrInFlight):
		fmt.Fprintln(r.out, "Still sending; please wait.")
	case errors.Is(err, stage.ErrNothingToSubmit):
		fmt.Fprintln(r.out, "Answer at least one question before finishing.")
	case errors.Is(err, stage.ErrUnmounted), errors.Is(err, stage.ErrNotMounted):
	default:
		fmt.Fprintf(r.out, "Could not submit: %v. Your answer is kept; try again.\n", err)
	}
}
