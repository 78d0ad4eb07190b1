package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/roomscout/collector-cli/internal/collector"
	"github.com/roomscout/collector-cli/internal/discovery"
	"github.com/roomscout/collector-cli/internal/extract"
	"github.com/roomscout/collector-cli/internal/fetch"
	"github.com/roomscout/collector-cli/internal/model"
	"github.com/roomscout/collector-cli/pkg/anthropic"
	"github.com/roomscout/collector-cli/pkg/naver"
)

var (
	collectMode   string
	collectTarget string
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run one collection pass",
	Long: `Runs the discover-fetch-extract-reconcile pipeline once.

Modes:
  region-query     collect venues matching one map query (--target "마포구")
  single-id        collect one business by booking ID (--target 522011)
  nationwide-auto  iterate the built-in or configured region list`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("collect"); err != nil {
			return err
		}

		mode := model.RunMode(collectMode)
		switch mode {
		case model.ModeRegionQuery, model.ModeSingleID:
			if collectTarget == "" {
				return eris.Errorf("collect: mode %s requires --target", mode)
			}
		case model.ModeNationwideAuto:
		default:
			return eris.Errorf("collect: unknown mode %q", collectMode)
		}

		params := collector.Params{Mode: mode, Target: collectTarget}
		if mode == model.ModeNationwideAuto {
			regions, err := discovery.Regions(cfg.Discovery.RegionsFile)
			if err != nil {
				return err
			}
			params.Regions = regions
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		client := naver.NewClient(
			naver.WithBaseURL(cfg.Naver.BaseURL),
			naver.WithRateLimit(cfg.Naver.RequestsPerSec, cfg.Naver.Burst),
		)

		c := collector.New(
			st,
			discovery.New(cfg.Discovery),
			fetch.New(client, cfg.Fetch),
			newExtractor(),
			cfg.Collect,
		)

		run, err := c.Run(ctx, params)
		if err != nil {
			return eris.Wrap(err, "collect")
		}

		formatRunReport(os.Stdout, run)
		if run.Status == model.RunStatusFailed {
			return eris.Errorf("collect: run %s failed", run.ID)
		}
		return nil
	},
}

func init() {
	collectCmd.Flags().StringVar(&collectMode, "mode", string(model.ModeRegionQuery), "run mode (region-query, single-id, nationwide-auto)")
	collectCmd.Flags().StringVar(&collectTarget, "target", "", "region query or business ID, depending on mode")
	rootCmd.AddCommand(collectCmd)
}

// newExtractor builds the configured extraction dispatcher: Claude primary
// with pattern fallback, or pattern-only.
func newExtractor() *extract.Dispatcher {
	if cfg.Extract.Primary != "llm" {
		return extract.NewDispatcher(nil)
	}
	claude := extract.NewClaudeExtractor(
		anthropic.NewClient(cfg.Anthropic.Key),
		extract.NewGate(cfg.Extract.MaxConcurrent),
		extract.ClaudeConfig{
			Model:          cfg.Anthropic.Model,
			MaxTokens:      cfg.Anthropic.MaxTokens,
			RoomsPerPrompt: cfg.Extract.RoomsPerPrompt,
		},
	)
	return extract.NewDispatcher(claude)
}

// formatRunReport writes the run outcome as a compact table.
func formatRunReport(out *os.File, run *model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", run.ID)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", run.Status)

	r := run.Report
	if r == nil {
		_ = w.Flush()
		return
	}
	if r.Regions > 0 {
		_, _ = fmt.Fprintf(w, "Regions:\t%d (%d failed)\n", r.Regions, r.RegionsFailed)
	}
	_, _ = fmt.Fprintf(w, "Venues discovered:\t%d\n", r.VenuesDiscovered)
	_, _ = fmt.Fprintf(w, "Venues fetched:\t%d\n", r.VenuesFetched)
	if r.VenuesSkipped > 0 {
		_, _ = fmt.Fprintf(w, "Venues skipped:\t%d (delisted)\n", r.VenuesSkipped)
	}
	_, _ = fmt.Fprintf(w, "Rooms extracted:\t%d\n", r.RoomsExtracted)
	_, _ = fmt.Fprintf(w, "Venues persisted:\t%d\n", r.VenuesPersisted)
	_, _ = fmt.Fprintf(w, "Venues failed:\t%d\n", r.VenuesFailed)
	for _, field := range model.FieldNames {
		derived := r.FieldsDerived[field]
		defaulted := r.FieldsDefaulted[field]
		if derived+defaulted > 0 {
			_, _ = fmt.Fprintf(w, "  %s:\t%d derived / %d defaulted\n", field, derived, defaulted)
		}
	}
	if !r.FinishedAt.IsZero() {
		_, _ = fmt.Fprintf(w, "Duration:\t%s\n", r.FinishedAt.Sub(r.StartedAt).Round(fmtDurUnit))
	}
	_ = w.Flush()
}
