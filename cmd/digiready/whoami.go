package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonathan/digiready/internal/assessment"
	"github.com/jonathan/digiready/internal/portal"
	"github.com/spf13/cobra"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in account and the assessment it would start",
	RunE:  runWhoami,
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	session, err := a.session()
	if err != nil {
		return err
	}
	if err := session.Load(context.Background()); err != nil {
		if errors.Is(err, portal.ErrNotAuthenticated) {
			fmt.Fprintln(a.out, "Not logged in. Run 'digiready login' first.")
			return nil
		}
		return err
	}

	user := session.User()
	a.printer.PrintUser(user)
	if user.IsParticipant() {
		so := assessment.ProfileFromParticipant(user, a.cfg.AllocatedSeconds)
		a.printer.PrintStart(so.Stage, so.AllocatedSeconds, so.Profile)
	}
	return nil
}
