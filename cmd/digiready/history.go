package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonathan/digiready/internal/portal"
	"github.com/jonathan/digiready/internal/types"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// maxDetailFetches bounds concurrent detail requests for --details.
const maxDetailFetches = 4

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored assessments",
	Long: `List the logged-in participant's assessments, newest first. Admins can pass
--participant to list one participant or --all to list every assessment.

When DATABASE_URL is set the assessments are read from Postgres directly.`,
	RunE: runHistory,
}

var (
	historyParticipant int64
	historyAll         bool
	historyDetails     bool
)

func init() {
	historyCmd.Flags().Int64Var(&historyParticipant, "participant", 0, "Participant ID to list (admins)")
	historyCmd.Flags().BoolVar(&historyAll, "all", false, "List every assessment (admins)")
	historyCmd.Flags().BoolVar(&historyDetails, "details", false, "Also show each assessment's competencies")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	session, err := a.session()
	if err != nil {
		return err
	}
	if err := session.Load(ctx); err != nil && a.cfg.DatabaseURL == "" {
		if errors.Is(err, portal.ErrNotAuthenticated) {
			return fmt.Errorf("not logged in; run 'digiready login' first")
		}
		return err
	}

	store, closeStore, err := a.store(ctx, session)
	if err != nil {
		return err
	}
	defer closeStore()

	records, err := listHistory(ctx, store, session.User())
	if err != nil {
		return err
	}
	a.printer.PrintHistory(records)

	if !historyDetails || len(records) == 0 {
		return nil
	}
	details, err := fetchDetails(ctx, store, records)
	if err != nil {
		return err
	}
	for _, d := range details {
		a.printer.PrintAssessment(d)
	}
	return nil
}

func listHistory(ctx context.Context, store assessmentStore, user *types.User) ([]types.AssessmentRecord, error) {
	switch {
	case historyAll:
		return store.ListAssessments(ctx)
	case historyParticipant != 0:
		return store.ListParticipantAssessments(ctx, historyParticipant)
	case user.IsParticipant():
		return store.ListParticipantAssessments(ctx, user.ID)
	default:
		return nil, fmt.Errorf("pass --participant or --all to list assessments")
	}
}

// fetchDetails loads every record's detail concurrently, keeping the order of
// records. Assessments deleted in the meantime are skipped.
func fetchDetails(ctx context.Context, store assessmentStore, records []types.AssessmentRecord) ([]*types.AssessmentDetail, error) {
	details := make([]*types.AssessmentDetail, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxDetailFetches)
	for i, r := range records {
		i, r := i, r
		g.Go(func() error {
			d, err := store.GetAssessment(gctx, r.ID)
			if err != nil {
				return fmt.Errorf("failed to load assessment %d: %w", r.ID, err)
			}
			details[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := details[:0]
	for _, d := range details {
		if d != nil {
			out = append(out, d)
		}
	}
	return out, nil
}
