package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <assessment-id>",
	Short: "Show one stored assessment with its competencies",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid assessment id %q", args[0])
	}

	ctx := context.Background()
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	session, err := a.session()
	if err != nil {
		return err
	}
	if a.cfg.DatabaseURL == "" {
		if err := session.Load(ctx); err != nil {
			return fmt.Errorf("not logged in; run 'digiready login' first")
		}
	}

	store, closeStore, err := a.store(ctx, session)
	if err != nil {
		return err
	}
	defer closeStore()

	detail, err := store.GetAssessment(ctx, id)
	if err != nil {
		return err
	}
	if detail == nil {
		return fmt.Errorf("assessment %d not found", id)
	}
	a.printer.PrintAssessment(detail)
	return nil
}
