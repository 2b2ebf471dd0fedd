package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/digiready/internal/assessment"
	"github.com/jonathan/digiready/internal/db"
	"github.com/jonathan/digiready/internal/polling"
	"github.com/jonathan/digiready/internal/portal"
	"github.com/jonathan/digiready/internal/stage"
	"github.com/jonathan/digiready/internal/types"
	"github.com/spf13/cobra"
)

var assessCmd = &cobra.Command{
	Use:   "assess",
	Short: "Take an assessment",
	Long: `Start an assessment session and answer it in the terminal.

A logged-in participant gets the stage, level and profile stored on their portal
account, and the result is saved when scoring completes. Without a login, or with
--manual, the setup comes from the config file and the flags below.

Type your answer over as many lines as you need, then use a command:
  :submit   submit the caselet answer
  :next     commit the interview answer and get the next question
  :finish   submit the interview answers so far
  :show     show the scenario or question again
  :time     show the time left
  :clear    clear the answer
  :quit     abandon the assessment`,
	RunE: runAssess,
}

var (
	assessStage     int
	assessDuration  int
	assessLevel     int
	assessIndustry  string
	assessCompany   string
	assessGeography string
	assessFunction  string
	assessDivision  string
	assessUserID    string
	assessExpiry    string
	assessManual    bool
	assessNoSave    bool
)

func init() {
	assessCmd.Flags().IntVarP(&assessStage, "stage", "s", 0, "Stage: 3 (caselet), 4 (interview) or 34 (both)")
	assessCmd.Flags().IntVarP(&assessDuration, "duration", "d", 0, "Allocated time in minutes: 20, 30, 60 or 90")
	assessCmd.Flags().IntVar(&assessLevel, "level", 0, "Role level 1-4")
	assessCmd.Flags().StringVar(&assessIndustry, "industry", "", "Industry")
	assessCmd.Flags().StringVar(&assessCompany, "company", "", "Company")
	assessCmd.Flags().StringVar(&assessGeography, "geography", "", "Geography")
	assessCmd.Flags().StringVar(&assessFunction, "function", "", "Function")
	assessCmd.Flags().StringVar(&assessDivision, "division", "", "Division")
	assessCmd.Flags().StringVar(&assessUserID, "user-id", "", "Scorer user id (defaults to a fresh UUID)")
	assessCmd.Flags().StringVar(&assessExpiry, "expiry", "", "What happens when time runs out: soft, lock or submit")
	assessCmd.Flags().BoolVar(&assessManual, "manual", false, "Ignore the portal profile and use config and flags")
	assessCmd.Flags().BoolVar(&assessNoSave, "no-save", false, "Do not save the result")
	rootCmd.AddCommand(assessCmd)
}

func runAssess(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	expiry := a.cfg.Expiry
	if assessExpiry != "" {
		expiry = assessExpiry
	}
	policy, err := stage.ParseExpiryPolicy(expiry)
	if err != nil {
		return err
	}

	user, gateway, closeGateway := a.identity(ctx)
	defer closeGateway()

	so, err := a.startOptions(user)
	if err != nil {
		return err
	}

	api, err := a.scoringClient()
	if err != nil {
		return err
	}

	states := make(chan assessment.State, 16)
	opts := &assessment.Options{
		API:          api,
		User:         user,
		SyncInterval: time.Duration(a.cfg.TimerSyncSeconds) * time.Second,
		PollInterval: time.Duration(a.cfg.PollSeconds) * time.Second,
		Expiry:       policy,
		Logger:       a.logger,
		OnState: func(s assessment.State) {
			select {
			case states <- s:
			default:
			}
		},
		OnTimeChange: timeWarnings(a),
		OnProgress:   func(p polling.Progress) { a.printer.PrintPollStatus(p) },
		OnPersist: func(id int64, err error) {
			if err != nil {
				fmt.Fprintln(a.out, "Your result could not be saved to the portal.")
				return
			}
			fmt.Fprintf(a.out, "Result saved as assessment #%d.\n", id)
		},
	}
	if gateway != nil && !assessNoSave {
		opts.Gateway = gateway
	}

	o, err := assessment.New(opts)
	if err != nil {
		return err
	}
	defer o.Close()

	a.printer.PrintStart(so.Stage, so.AllocatedSeconds, so.Profile)
	if err := o.Start(ctx, so); err != nil {
		return err
	}

	r := newRunner(o, a, readLines(ctx, cmd.InOrStdin()), states)
	if err := r.run(ctx); err != nil {
		return err
	}

	if res := o.Result(); res != nil {
		a.printer.PrintResult(&res.Result)
	}
	return nil
}

// identity resolves the logged-in user and the store results are saved to.
// Failures degrade to an anonymous run.
func (a *app) identity(ctx context.Context) (*types.User, assessment.Gateway, func()) {
	noop := func() {}
	session, err := a.session()
	if err != nil {
		a.logger.Warn().Err(err).Msg("portal unavailable")
		return nil, nil, noop
	}
	if err := session.Load(ctx); err != nil {
		if !errors.Is(err, portal.ErrNotAuthenticated) {
			a.logger.Warn().Err(err).Msg("could not load portal session")
		}
		return nil, nil, noop
	}

	user := session.User()
	store, closeStore, err := a.store(ctx, session)
	if err != nil {
		a.logger.Warn().Err(err).Msg("results will not be saved")
		return user, nil, noop
	}

	// The portal's me endpoint can lag behind profile edits; prefer the row.
	if database, ok := store.(*db.DB); ok && user.IsParticipant() {
		if row, err := database.GetParticipant(ctx, user.ID); err == nil && row != nil {
			user = row
		}
	}
	return user, store, closeStore
}

// startOptions builds the run setup from the participant profile, or from
// config and flags.
func (a *app) startOptions(user *types.User) (assessment.StartOptions, error) {
	var so assessment.StartOptions
	allocated := a.cfg.AllocatedSeconds
	if assessDuration > 0 {
		allocated = assessDuration * 60
	}

	if user.IsParticipant() && !assessManual {
		so = assessment.ProfileFromParticipant(user, allocated)
	} else {
		so = assessment.DefaultSetup()
		if a.cfg.Stage != 0 {
			so.Stage = types.StageCode(a.cfg.Stage)
		}
		if allocated > 0 {
			so.AllocatedSeconds = allocated
		} else {
			so.AllocatedSeconds = assessment.DefaultAllocation(so.Stage)
		}
		mergeProfile(&so.Profile, a.cfg.Profile)
	}

	if assessStage != 0 {
		so.Stage = types.StageCode(assessStage)
		if assessDuration == 0 && a.cfg.AllocatedSeconds == 0 {
			so.AllocatedSeconds = assessment.DefaultAllocation(so.Stage)
		}
	}
	mergeProfile(&so.Profile, types.Profile{
		Level:     assessLevel,
		Industry:  assessIndustry,
		Company:   assessCompany,
		Geography: assessGeography,
		Function:  assessFunction,
		Division:  assessDivision,
	})
	if assessUserID != "" {
		so.UserID = assessUserID
	}

	if !so.Stage.Valid() {
		return so, fmt.Errorf("--stage must be 3, 4 or 34")
	}
	if so.Profile.Level < 1 || so.Profile.Level > 4 {
		return so, fmt.Errorf("--level must be between 1 and 4")
	}
	if !assessment.ValidDuration(so.AllocatedSeconds) {
		return so, fmt.Errorf("--duration must be one of %s minutes", durationMinutes())
	}
	return so, nil
}

func durationMinutes() string {
	parts := make([]string, len(assessment.DurationChoices))
	for i, s := range assessment.DurationChoices {
		parts[i] = strconv.Itoa(s / 60)
	}
	return strings.Join(parts, ", ")
}

// mergeProfile copies the set fields of override onto p.
func mergeProfile(p *types.Profile, override types.Profile) {
	if override.Level != 0 {
		p.Level = override.Level
	}
	if override.Industry != "" {
		p.Industry = override.Industry
	}
	if override.Company != "" {
		p.Company = override.Company
	}
	if override.Geography != "" {
		p.Geography = override.Geography
	}
	if override.Function != "" {
		p.Function = override.Function
	}
	if override.Division != "" {
		p.Division = override.Division
	}
}

// timeWarnings prints a notice at one minute left and when time runs out.
func timeWarnings(a *app) func(int) {
	return func(remaining int) {
		switch remaining {
		case 60:
			fmt.Fprintln(a.out, "One minute left.")
		case 0:
			fmt.Fprintln(a.out, "Time is up.")
		}
	}
}
