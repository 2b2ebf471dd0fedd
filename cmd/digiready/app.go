package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jonathan/digiready/internal/config"
	"github.com/jonathan/digiready/internal/db"
	"github.com/jonathan/digiready/internal/fetch"
	"github.com/jonathan/digiready/internal/logging"
	"github.com/jonathan/digiready/internal/observability"
	"github.com/jonathan/digiready/internal/portal"
	"github.com/jonathan/digiready/internal/scoring"
	"github.com/jonathan/digiready/internal/types"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// assessmentStore is what the history commands read from and what a finished
// assessment is written to. Both the portal client and the Postgres store
// satisfy it.
type assessmentStore interface {
	SaveAssessment(ctx context.Context, req *types.SaveAssessmentRequest) (int64, error)
	ListParticipantAssessments(ctx context.Context, participantID int64) ([]types.AssessmentRecord, error)
	ListAssessments(ctx context.Context) ([]types.AssessmentRecord, error)
	GetAssessment(ctx context.Context, id int64) (*types.AssessmentDetail, error)
}

// app bundles what every command needs.
type app struct {
	cfg     *config.Config
	logger  *zerolog.Logger
	out     io.Writer
	printer *observability.Printer
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Resolve(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	out := &syncWriter{w: cmd.OutOrStdout()}
	return &app{
		cfg:     cfg,
		logger:  &logger,
		out:     out,
		printer: observability.NewPrinter(out),
	}, nil
}

func (a *app) httpTimeout() time.Duration {
	return time.Duration(a.cfg.HTTPTimeoutSeconds) * time.Second
}

func (a *app) session() (*portal.Session, error) {
	return portal.NewSession(a.cfg.PortalURL, &portal.FileTokenStore{Path: a.cfg.TokenFile}, &portal.Options{
		Timeout: a.httpTimeout(),
		Logger:  a.logger,
	})
}

func (a *app) scoringClient() (*scoring.Client, error) {
	opts := fetch.DefaultOptions()
	if t := a.httpTimeout(); t > 0 {
		opts.Timeout = t
	}
	return scoring.New(a.cfg.APIURL, opts)
}

// store opens the Postgres store when a database URL is configured, and the
// portal gateway otherwise. The returned func releases it.
func (a *app) store(ctx context.Context, session *portal.Session) (assessmentStore, func(), error) {
	if a.cfg.DatabaseURL != "" {
		database, err := db.Connect(ctx, a.cfg.DatabaseURL, a.logger)
		if err != nil {
			return nil, nil, err
		}
		a.logger.Debug().Msg("using direct database store")
		return database, database.Close, nil
	}
	if session == nil || !session.Authenticated() {
		return nil, nil, portal.ErrNotAuthenticated
	}
	return portal.NewClient(session), func() {}, nil
}

// syncWriter serialises writes from the input loop and background callbacks.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
