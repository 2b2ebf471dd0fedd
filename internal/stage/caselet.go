package stage

import (
	"context"
	"strings"
)

// PlaceholderScenario is shown when the scenario could not be loaded.
const PlaceholderScenario = "Scenario text goes here..."

// Caselet is the single-scenario written stage.
type Caselet struct {
	base

	content string
	answer  string
}

// NewCaselet creates a caselet stage for sessionID. onSubmit receives the
// scoring job once the answer is accepted.
func NewCaselet(api API, sessionID, userID string, onSubmit SubmitHandler, opts *Options) *Caselet {
	return &Caselet{base: newBase(api, sessionID, userID, onSubmit, opts)}
}

// Mount loads the scenario and starts the countdown. A failed scenario fetch is
// logged and leaves the content empty.
func (c *Caselet) Mount(ctx context.Context) error {
	mountCtx, err := c.begin(ctx)
	if err != nil {
		return err
	}

	content, err := c.api.Caselet(mountCtx, c.sessionID)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to load caselet")
	} else if mountCtx.Err() == nil {
		c.mu.Lock()
		c.content = content.Text
		c.mu.Unlock()
	}

	c.startTimer(mountCtx, c.onExpire)
	return nil
}

// Content returns the scenario text, or "" if it failed to load.
func (c *Caselet) Content() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.content
}

// DisplayContent returns the scenario text or the placeholder.
func (c *Caselet) DisplayContent() string {
	if content := c.Content(); content != "" {
		return content
	}
	return PlaceholderScenario
}

// SetAnswer replaces the answer buffer.
func (c *Caselet) SetAnswer(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locked {
		return ErrLocked
	}
	c.answer = text
	return nil
}

// Answer returns the answer buffer.
func (c *Caselet) Answer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.answer
}

// WordCount counts the words in the answer buffer.
func (c *Caselet) WordCount() int {
	return WordCount(c.Answer())
}

// CanSubmit reports whether the submit action is enabled.
func (c *Caselet) CanSubmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canSubmitLocked() == nil
}

func (c *Caselet) canSubmitLocked() error {
	if c.inFlight {
		return ErrInFlight
	}
	if strings.TrimSpace(c.answer) == "" {
		return ErrEmptyAnswer
	}
	return nil
}

// Submit sends the answer. On failure the buffer is kept and the error is
// returned; nothing is retried.
func (c *Caselet) Submit(ctx context.Context) error {
	c.mu.Lock()
	if err := c.canSubmitLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.inFlight = true
	text := c.answer
	c.mu.Unlock()

	return c.submit(ctx, text, map[string]any{})
}

func (c *Caselet) onExpire() {
	if !c.expire() {
		return
	}
	if !c.CanSubmit() {
		c.logger.Info().Msg("time is up with nothing to submit")
		return
	}
	c.logger.Info().Msg("time is up; submitting caselet answer")
	if err := c.Submit(c.mountContext()); err != nil {
		c.logger.Warn().Err(err).Msg("automatic submission failed")
	}
}
