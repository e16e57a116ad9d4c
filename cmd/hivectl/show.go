package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var showFlags struct {
	clientConfig
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Fetch one interaction record by id",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)

	addClientFlags(showCmd, &showFlags.clientConfig)
}

func runShow(cmd *cobra.Command, args []string) error {
	env, err := showFlags.open()
	if err != nil {
		return err
	}
	defer env.Close()

	_ = env.store.SetView("details")

	path := env.eps.Interactions + "/" + args[0]
	resp, err := env.client.Do(cmd.Context(), http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if resp.AuthExpired() {
		return fmt.Errorf("not authenticated, run 'hivectl login'")
	}
	if !resp.OK {
		return fmt.Errorf("service error: %s", resp.ErrorReason(fmt.Sprintf("status %d", resp.Status)))
	}

	// Re-indent whatever the service sent; the record shape is opaque.
	var record any
	if err := json.Unmarshal(resp.Body, &record); err != nil {
		return fmt.Errorf("malformed record response: %w", err)
	}
	b, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))

	return nil
}
