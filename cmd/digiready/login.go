package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jonathan/digiready/internal/fetch"
	"github.com/jonathan/digiready/internal/types"
	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the assessment portal",
	Long: `Log in as a participant (default) or as a company admin. The token is stored in
the token file and used by assess, whoami, history and show.

The password is read from --password, then DIGIREADY_PASSWORD, then standard input.`,
	RunE: runLogin,
}

var (
	loginEmail    string
	loginPassword string
	loginAdmin    bool
)

func init() {
	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", "", "Account email")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Account password")
	loginCmd.Flags().BoolVar(&loginAdmin, "admin", false, "Log in as a company admin")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	in := bufio.NewReader(cmd.InOrStdin())
	email := loginEmail
	if email == "" {
		if email, err = prompt(cmd, in, "Email: "); err != nil {
			return err
		}
	}
	password := loginPassword
	if password == "" {
		password = os.Getenv("DIGIREADY_PASSWORD")
	}
	if password == "" {
		if password, err = prompt(cmd, in, "Password: "); err != nil {
			return err
		}
	}

	role := types.RoleParticipant
	if loginAdmin {
		role = types.RoleAdmin
	}

	session, err := a.session()
	if err != nil {
		return err
	}
	user, err := session.Login(context.Background(), &types.LoginRequest{
		Email:    email,
		Password: password,
		Role:     role,
	})
	if err != nil {
		return fmt.Errorf("login failed: %s", fetch.Message(err))
	}

	a.printer.PrintUser(user)
	return nil
}

// prompt writes label and reads one trimmed line.
func prompt(cmd *cobra.Command, in *bufio.Reader, label string) (string, error) {
	fmt.Fprint(cmd.OutOrStdout(), label)
	line, err := in.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" && err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return line, nil
}
