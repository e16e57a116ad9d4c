package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/hivetrace/hivectl/internal/api"
	"github.com/hivetrace/hivectl/internal/client"
	"github.com/hivetrace/hivectl/internal/console"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var statsFlags struct {
	clientConfig
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show capture analytics and detailed statistics",
	Long: `Fetch the dashboard analytics and detailed statistics. The two
fetches run concurrently and are not ordered relative to each other; a
failure of the detailed statistics degrades the output rather than
failing the command.`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	addClientFlags(statsCmd, &statsFlags.clientConfig)
}

func runStats(cmd *cobra.Command, args []string) error {
	env, err := statsFlags.open()
	if err != nil {
		return err
	}
	defer env.Close()

	_ = env.store.SetView("overview")

	coord := console.NewCoordinator(logger)

	// Each view's outcome lives in the coordinator; the bodies are the
	// only results carried out of the goroutines directly.
	fetch := func(ctx context.Context, view console.View, path string) []byte {
		ticket := coord.Begin(view)
		resp, err := env.client.DoRetry(ctx, client.DefaultRetryPolicy, http.MethodGet, path, nil)
		if err == nil && resp.AuthExpired() {
			err = fmt.Errorf("not authenticated, run 'hivectl login'")
		}
		if err == nil && !resp.OK {
			err = fmt.Errorf("service error: %s", resp.ErrorReason(fmt.Sprintf("status %d", resp.Status)))
		}
		if !coord.Complete(view, ticket, err) || err != nil {
			return nil
		}
		return resp.Body
	}

	var (
		wg            sync.WaitGroup
		analyticsBody []byte
		statsBody     []byte
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		analyticsBody = fetch(cmd.Context(), console.ViewOverview, env.eps.Analytics)
	}()
	go func() {
		defer wg.Done()
		statsBody = fetch(cmd.Context(), console.ViewDetails, env.eps.Stats)
	}()
	wg.Wait()

	if coord.Phase(console.ViewOverview) != console.PhaseLoaded {
		return coord.Err(console.ViewOverview)
	}

	var analytics api.CombinedAnalytics
	if err := json.Unmarshal(analyticsBody, &analytics); err != nil {
		return fmt.Errorf("malformed analytics response: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Total attempts: %d\n", analytics.TotalAttempts)

	if phase := coord.Phase(console.ViewDetails); phase != console.PhaseLoaded {
		err := coord.Err(console.ViewDetails)
		logger.Warn("detailed statistics unavailable", zap.Error(err))
		fmt.Fprintf(cmd.OutOrStdout(), "detailed statistics: %s (%v)\n", phase, err)
		return nil
	}

	var stats api.DetailedStats
	if err := json.Unmarshal(statsBody, &stats); err != nil {
		logger.Warn("malformed detailed statistics response", zap.Error(err))
		fmt.Fprintln(cmd.OutOrStdout(), "detailed statistics: malformed response")
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Unique IPs: %d\n", stats.UniqueIPs)

	if len(stats.TopPaths) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"PATH", "HITS"})
		for _, p := range stats.TopPaths {
			t.AppendRow(table.Row{p.Name, p.Count})
		}
		t.Render()
	}

	if len(stats.TopCategories) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"CATEGORY", "HITS"})
		for _, c := range stats.TopCategories {
			t.AppendRow(table.Row{c.Name, c.Count})
		}
		t.Render()
	}

	return nil
}
