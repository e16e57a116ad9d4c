package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hivetrace/hivectl/internal/client"
	"github.com/hivetrace/hivectl/internal/query"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var interactionsFlags struct {
	clientConfig
	page     int
	limit    int
	sort     string
	order    string
	filter   string
	category string
	jsonOut  bool
}

var interactionsCmd = &cobra.Command{
	Use:   "interactions",
	Short: "List captured intrusion attempts",
	Long: `List captured intrusion-attempt records with pagination, sorting,
and filtering. Filters narrow the result set server-side; the query is
canonical, so identical flags always issue identical requests.`,
	RunE: runInteractions,
}

func init() {
	rootCmd.AddCommand(interactionsCmd)

	addClientFlags(interactionsCmd, &interactionsFlags.clientConfig)
	interactionsCmd.Flags().IntVar(&interactionsFlags.page, "page", 1, "page number")
	interactionsCmd.Flags().IntVar(&interactionsFlags.limit, "limit", query.DefaultLimit, "records per page")
	interactionsCmd.Flags().StringVar(&interactionsFlags.sort, "sort", query.DefaultSortField, "sort field")
	interactionsCmd.Flags().StringVar(&interactionsFlags.order, "order", query.OrderDesc, "sort order (asc|desc)")
	interactionsCmd.Flags().StringVar(&interactionsFlags.filter, "filter", "", "free-text filter")
	interactionsCmd.Flags().StringVar(&interactionsFlags.category, "category", query.CategoryAll, "page-type category filter")
	interactionsCmd.Flags().BoolVar(&interactionsFlags.jsonOut, "json", false, "print raw records as JSON")
}

func runInteractions(cmd *cobra.Command, args []string) error {
	if interactionsFlags.order != query.OrderAsc && interactionsFlags.order != query.OrderDesc {
		return fmt.Errorf("invalid --order %q (want asc or desc)", interactionsFlags.order)
	}
	if !query.ValidSortField(interactionsFlags.sort) {
		return fmt.Errorf("invalid --sort %q (want one of %s)", interactionsFlags.sort, strings.Join(query.SortFields, ", "))
	}

	env, err := interactionsFlags.open()
	if err != nil {
		return err
	}
	defer env.Close()

	_ = env.store.SetView("interactions")

	criteria := query.Default().
		WithLimit(interactionsFlags.limit).
		WithFilter(interactionsFlags.filter).
		WithCategory(interactionsFlags.category)
	criteria.SortField = interactionsFlags.sort
	criteria.SortOrder = interactionsFlags.order
	criteria = criteria.WithPage(interactionsFlags.page)

	path := env.eps.Interactions + "?" + criteria.Encode()
	resp, err := env.client.DoRetry(cmd.Context(), client.DefaultRetryPolicy, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if resp.RedirectDetected {
		return fmt.Errorf("api endpoint answered with a redirect (status %d)", resp.Status)
	}
	if resp.AuthExpired() {
		return fmt.Errorf("not authenticated, run 'hivectl login'")
	}
	if !resp.OK {
		return fmt.Errorf("service error: %s", resp.ErrorReason(fmt.Sprintf("status %d", resp.Status)))
	}

	result := query.ParseResult(resp.Body, logger)

	if interactionsFlags.jsonOut {
		b, err := json.MarshalIndent(result.Records, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(b))
		return nil
	}

	if len(result.Records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No interactions found.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"TIME", "SOURCE", "PATH", "CATEGORY", "ACTION"})
	for _, rec := range result.Records {
		t.AppendRow(table.Row{formatTimestamp(rec.Timestamp), rec.IPAddress, rec.Path, rec.Category, rec.Action})
	}
	t.Render()

	last := query.LastPage(result.Total, criteria.Limit)
	fmt.Fprintf(cmd.OutOrStdout(), "page %d of %d (%d interactions)\n", criteria.Page, last, result.Total)

	return nil
}

func formatTimestamp(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}
