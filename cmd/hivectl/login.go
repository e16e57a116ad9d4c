package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/hivetrace/hivectl/internal/session"
	"github.com/spf13/cobra"
)

var loginFlags struct {
	clientConfig
	key string
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate against the monitoring service",
	Long: `Authenticate with the admin key. A fresh CSRF token is obtained
before the credentials are submitted; the token and session cookie are
used by all other commands.`,
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)

	addClientFlags(loginCmd, &loginFlags.clientConfig)
	loginCmd.Flags().StringVar(&loginFlags.key, "key", os.Getenv("HIVECTL_ADMIN_KEY"), "admin key")
}

func runLogin(cmd *cobra.Command, args []string) error {
	if loginFlags.key == "" {
		return fmt.Errorf("admin key required (use --key flag or HIVECTL_ADMIN_KEY env var)")
	}

	env, err := loginFlags.open()
	if err != nil {
		return err
	}
	defer env.Close()

	err = env.sess.Login(cmd.Context(), loginFlags.key)

	var le *session.LoginError
	var ce *session.ConnectError
	switch {
	case err == nil:
		fmt.Fprintln(cmd.OutOrStdout(), "Login successful.")
		return nil
	case errors.Is(err, session.ErrEmptyAdminKey):
		return fmt.Errorf("admin key required (use --key flag or HIVECTL_ADMIN_KEY env var)")
	case errors.As(err, &le):
		return fmt.Errorf("login failed: %s", le.Reason)
	case errors.As(err, &ce):
		return fmt.Errorf("could not reach the monitoring service, check your connection: %w", ce.Err)
	default:
		return err
	}
}
