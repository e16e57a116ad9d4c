package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logoutFlags struct {
	clientConfig
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the current operator session",
	RunE:  runLogout,
}

func init() {
	rootCmd.AddCommand(logoutCmd)

	addClientFlags(logoutCmd, &logoutFlags.clientConfig)
}

func runLogout(cmd *cobra.Command, args []string) error {
	env, err := logoutFlags.open()
	if err != nil {
		return err
	}
	defer env.Close()

	if err := env.sess.Logout(cmd.Context()); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
	return nil
}
