package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonathan/digiready/internal/types"
)

// PotentiallyFinalQuestion is the question number the UI flags as possibly the last.
const PotentiallyFinalQuestion = 5

// Interview is the adaptive question-and-answer stage.
type Interview struct {
	base

	shown     []types.Question
	current   *types.Question
	answer    string
	committed []types.QAPair
	exhausted bool
}

// NewInterview creates an interview stage for sessionID.
func NewInterview(api API, sessionID, userID string, onSubmit SubmitHandler, opts *Options) *Interview {
	return &Interview{base: newBase(api, sessionID, userID, onSubmit, opts)}
}

// Mount loads the initial questions and starts the countdown. The first
// question becomes current. A failed or empty load is logged and leaves no
// current question.
func (iv *Interview) Mount(ctx context.Context) error {
	mountCtx, err := iv.begin(ctx)
	if err != nil {
		return err
	}

	questions, err := iv.api.Questions(mountCtx, iv.sessionID)
	switch {
	case err != nil:
		iv.logger.Warn().Err(err).Msg("failed to load interview questions")
	case len(questions) == 0:
		iv.logger.Warn().Msg("interview returned no questions")
	case mountCtx.Err() == nil:
		first := questions[0]
		iv.mu.Lock()
		iv.current = &first
		iv.shown = append(iv.shown, first)
		iv.mu.Unlock()
	}

	iv.startTimer(mountCtx, iv.onExpire)
	return nil
}

// Current returns the question being answered, or nil.
func (iv *Interview) Current() *types.Question {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	if iv.current == nil {
		return nil
	}
	q := *iv.current
	return &q
}

// QuestionNumber is the 1-based position of the current question.
func (iv *Interview) QuestionNumber() int {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	return len(iv.shown)
}

// PotentiallyFinal reports whether the UI should label the current question as
// possibly the last one.
func (iv *Interview) PotentiallyFinal() bool {
	return iv.QuestionNumber() >= PotentiallyFinalQuestion
}

// Shown returns every question shown so far, in order.
func (iv *Interview) Shown() []types.Question {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	return append([]types.Question(nil), iv.shown...)
}

// Committed returns the committed question/answer pairs, in order.
func (iv *Interview) Committed() []types.QAPair {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	return append([]types.QAPair(nil), iv.committed...)
}

// Exhausted reports whether the server has run out of questions.
func (iv *Interview) Exhausted() bool {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	return iv.exhausted
}

// SetAnswer replaces the answer buffer for the current question.
func (iv *Interview) SetAnswer(text string) error {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	if iv.locked {
		return ErrLocked
	}
	iv.answer = text
	return nil
}

// Answer returns the uncommitted answer buffer.
func (iv *Interview) Answer() string {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	return iv.answer
}

// WordCount counts the words in the answer buffer.
func (iv *Interview) WordCount() int {
	return WordCount(iv.Answer())
}

// CanAdvance reports whether the "next" action is enabled.
func (iv *Interview) CanAdvance() bool {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	return iv.canAdvanceLocked() == nil
}

func (iv *Interview) canAdvanceLocked() error {
	switch {
	case iv.inFlight:
		return ErrInFlight
	case iv.locked:
		return ErrLocked
	case iv.exhausted:
		return ErrExhausted
	case iv.current == nil:
		return ErrNoQuestion
	case strings.TrimSpace(iv.answer) == "":
		return ErrEmptyAnswer
	}
	return nil
}

// CanFinish reports whether "finish & submit" is enabled.
func (iv *Interview) CanFinish() bool {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	return !iv.inFlight && len(iv.committed) > 0
}

// Advance commits the current answer and asks for the next question. If the
// server has none, or the request fails, the committed answers are submitted
// as final.
func (iv *Interview) Advance(ctx context.Context) error {
	iv.mu.Lock()
	if err := iv.canAdvanceLocked(); err != nil {
		iv.mu.Unlock()
		return err
	}
	answer := iv.answer
	iv.committed = append(iv.committed, types.QAPair{
		QuestionID:   iv.current.ID,
		QuestionText: iv.current.Text,
		Answer:       answer,
	})
	iv.inFlight = true
	iv.mu.Unlock()

	reqCtx, done, err := iv.requestContext(ctx)
	if err != nil {
		iv.finishRequest(err)
		return err
	}
	next, err := iv.api.NextQuestion(reqCtx, iv.sessionID, answer)
	done()
	if !iv.live() {
		return ErrUnmounted
	}

	if err == nil && next != nil && next.ID != "" {
		iv.mu.Lock()
		iv.current = next
		iv.shown = append(iv.shown, *next)
		iv.answer = ""
		iv.inFlight = false
		iv.lastErr = nil
		iv.mu.Unlock()
		return nil
	}
	if err != nil {
		iv.logger.Warn().Err(err).Msg("next question request failed; submitting answers")
	} else {
		iv.logger.Info().Msg("no more questions; submitting answers")
	}

	iv.mu.Lock()
	iv.exhausted = true
	iv.answer = ""
	pairs := append([]types.QAPair(nil), iv.committed...)
	iv.mu.Unlock()

	return iv.submitPairs(ctx, pairs)
}

// Finish submits the committed answers, plus the uncommitted buffer if it has
// text, without asking for another question.
func (iv *Interview) Finish(ctx context.Context) error {
	return iv.finish(ctx, false)
}

// ForceFinish is Finish without the "at least one committed answer" rule.
func (iv *Interview) ForceFinish(ctx context.Context) error {
	return iv.finish(ctx, true)
}

func (iv *Interview) finish(ctx context.Context, force bool) error {
	iv.mu.Lock()
	if iv.inFlight {
		iv.mu.Unlock()
		return ErrInFlight
	}
	if !force && len(iv.committed) == 0 {
		iv.mu.Unlock()
		return ErrNothingToSubmit
	}
	pairs := append([]types.QAPair(nil), iv.committed...)
	if strings.TrimSpace(iv.answer) != "" {
		trailing := types.QAPair{Answer: iv.answer}
		if iv.current != nil {
			trailing.QuestionID = iv.current.ID
			trailing.QuestionText = iv.current.Text
		}
		pairs = append(pairs, trailing)
	}
	if len(pairs) == 0 {
		iv.mu.Unlock()
		return ErrNothingToSubmit
	}
	iv.inFlight = true
	iv.mu.Unlock()

	return iv.submitPairs(ctx, pairs)
}

func (iv *Interview) submitPairs(ctx context.Context, pairs []types.QAPair) error {
	text, metadata := Transcript(pairs)
	return iv.submit(ctx, text, metadata)
}

// Transcript renders answers as the combined submission text and its
// structured metadata.
func Transcript(pairs []types.QAPair) (string, map[string]any) {
	blocks := make([]string, 0, len(pairs))
	for _, p := range pairs {
		blocks = append(blocks, fmt.Sprintf("Q: %s\nA: %s", p.QuestionText, p.Answer))
	}
	answers := append([]types.QAPair{}, pairs...)
	return strings.Join(blocks, "\n\n"), map[string]any{"answers": answers}
}

func (iv *Interview) onExpire() {
	if !iv.expire() {
		return
	}
	iv.logger.Info().Msg("time is up; submitting interview answers")
	if err := iv.ForceFinish(iv.mountContext()); err != nil {
		iv.logger.Warn().Err(err).Msg("automatic submission failed")
	}
}
