package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/roomscout/collector-cli/internal/model"
	"github.com/roomscout/collector-cli/internal/store"
)

// fmtDurUnit is the rounding granularity for durations in CLI output.
const fmtDurUnit = time.Second

var (
	runsStatus string
	runsMode   string
	runsLimit  int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect past collection runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(runsStatus),
			Mode:   model.RunMode(runsMode),
			Limit:  runsLimit,
		})
		if err != nil {
			return eris.Wrap(err, "runs: list")
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run with its full report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs: get")
		}
		if run == nil {
			return eris.Errorf("runs: run not found: %s", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func init() {
	runsListCmd.Flags().StringVar(&runsStatus, "status", "", "filter by status (pending, collecting, complete, failed, cancelled)")
	runsListCmd.Flags().StringVar(&runsMode, "mode", "", "filter by mode (region-query, single-id, nationwide-auto)")
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum rows to show")
	runsCmd.AddCommand(runsListCmd, runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

func formatRunsList(out *os.File, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tMODE\tTARGET\tSTATUS\tVENUES\tCREATED\tDURATION")
	for _, run := range runs {
		venues := "-"
		duration := "-"
		if r := run.Report; r != nil {
			venues = fmt.Sprintf("%d/%d", r.VenuesPersisted, r.VenuesDiscovered)
			if !r.FinishedAt.IsZero() {
				duration = r.FinishedAt.Sub(r.StartedAt).Round(fmtDurUnit).String()
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(run.ID),
			run.Mode,
			truncateTarget(run.Target),
			run.Status,
			venues,
			run.CreatedAt.Local().Format("2006-01-02 15:04"),
			duration,
		)
	}
	_ = w.Flush()
}

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncateTarget(target string) string {
	if target == "" {
		return "-"
	}
	r := []rune(target)
	if len(r) > 16 {
		return string(r[:15]) + "…"
	}
	return target
}
