package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/pffise-create/PinhighAI-sub003/internal/projection"
	"github.com/spf13/cobra"
)

func newStatusCmd(a *app) *cobra.Command {
	var (
		userID   string
		watch    bool
		interval time.Duration
	)
	c := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the client-facing status of an analysis",
		Long: `Poll an analysis the same way the mobile client does. A poll may start
a recovery attempt on the server when a stalled job is eligible.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/analyses/" + url.PathEscape(args[0])
			if userID != "" {
				path += "?user_id=" + url.QueryEscape(userID)
			}

			for {
				var view projection.View
				if err := a.client().do(cmd.Context(), "GET", path, nil, &view); err != nil {
					return err
				}
				if err := printView(a, view); err != nil {
					return err
				}
				if !watch || terminal(view.Status) {
					return nil
				}
				if err := sleep(cmd.Context(), interval); err != nil {
					return nil
				}
			}
		},
	}
	c.Flags().StringVar(&userID, "user", "", "owner id to check the job against")
	c.Flags().BoolVarP(&watch, "watch", "w", false, "keep polling until the analysis completes or fails")
	c.Flags().DurationVar(&interval, "interval", 5*time.Second, "poll interval with --watch")
	return c
}

func terminal(status string) bool {
	return status == projection.StatusCompleted || status == projection.StatusFailed
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func printView(a *app, view projection.View) error {
	if a.jsonOutput() {
		return printJSON(a.out, view)
	}

	table := tablewriter.NewWriter(a.out)
	table.Header("Field", "Value")
	table.Append("Job ID", view.JobID)
	table.Append("Status", view.Status)
	table.Append("Message", view.Message)
	table.Append("Updated At", view.UpdatedAt.Format(time.RFC3339))
	if r := view.AIAnalysis; r != nil {
		table.Append("Frames Analyzed", strconv.Itoa(r.FramesAnalyzed))
		table.Append("Batches", strconv.Itoa(r.BatchesProcessed))
		table.Append("Tokens Used", strconv.Itoa(r.TokensUsed))
		table.Append("Provider", r.Provider)
		table.Append("Fallback", strconv.FormatBool(r.FallbackTriggered))
	}
	if err := table.Render(); err != nil {
		return err
	}
	if view.AIAnalysis != nil && view.AIAnalysis.Narrative != "" {
		fmt.Fprintf(a.out, "\n%s\n", view.AIAnalysis.Narrative)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
