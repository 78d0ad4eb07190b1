package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/roomscout/collector-cli/internal/availability"
	"github.com/roomscout/collector-cli/pkg/naver"
)

var (
	checkBusiness string
	checkDate     string
	checkStart    string
	checkEnd      string
	checkCapacity int
	checkParallel int
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check live availability for a collected venue",
	Long: `Checks the booking schedule for every room of one collected venue
over an inclusive hour window. Rooms below the requested capacity are
skipped; rooms whose schedule cannot be read show as unknown.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("runs"); err != nil {
			return err
		}
		if checkBusiness == "" {
			return eris.New("check: --business is required")
		}
		if checkDate == "" {
			checkDate = time.Now().Format("2006-01-02")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rooms, err := st.ListRoomsByBusiness(ctx, checkBusiness)
		if err != nil {
			return eris.Wrap(err, "check: list rooms")
		}
		if len(rooms) == 0 {
			return eris.Errorf("check: no collected rooms for business %s", checkBusiness)
		}

		client := naver.NewClient(
			naver.WithBaseURL(cfg.Naver.BaseURL),
			naver.WithRateLimit(cfg.Naver.RequestsPerSec, cfg.Naver.Burst),
		)
		svc := availability.New(client, checkParallel)

		report, err := svc.Check(ctx, availability.Request{
			Date:      checkDate,
			StartHour: checkStart,
			EndHour:   checkEnd,
			Capacity:  checkCapacity,
		}, rooms)
		if err != nil {
			return eris.Wrap(err, "check")
		}

		formatAvailability(os.Stdout, report)
		return nil
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkBusiness, "business", "", "business ID of the venue to check")
	checkCmd.Flags().StringVar(&checkDate, "date", "", "date to check, YYYY-MM-DD (default today)")
	checkCmd.Flags().StringVar(&checkStart, "start", "18:00", "window start hour, HH:MM")
	checkCmd.Flags().StringVar(&checkEnd, "end", "20:00", "window end hour, HH:MM (inclusive)")
	checkCmd.Flags().IntVar(&checkCapacity, "capacity", 0, "minimum room capacity (0 = no filter)")
	checkCmd.Flags().IntVar(&checkParallel, "parallel", 4, "concurrent schedule lookups")
	rootCmd.AddCommand(checkCmd)
}

func formatAvailability(out *os.File, report *availability.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Date:\t%s\n", report.Date)
	_, _ = fmt.Fprintf(w, "Slots:\t%s\n\n", strings.Join(report.HourSlots, ", "))

	_, _ = fmt.Fprintln(w, "ROOM\tSTATUS\tPRICE\tNOTES")
	for _, res := range report.Results {
		price := "-"
		if res.EstimatedPrice != nil {
			price = fmt.Sprintf("%d원", *res.EstimatedPrice)
		}
		notes := make([]string, 0, len(res.Warnings))
		for _, warn := range res.Warnings {
			notes = append(notes, warn.Message)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			res.Name, res.Status, price, strings.Join(notes, " "))
	}

	if len(report.BranchSummary) > 0 {
		_, _ = fmt.Fprintln(w)
		ids := make([]string, 0, len(report.BranchSummary))
		for id := range report.BranchSummary {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			stats := report.BranchSummary[id]
			_, _ = fmt.Fprintf(w, "Branch %s:\t%d available, from %d원/h\n",
				id, stats.AvailableCount, stats.MinPrice)
		}
	}
	_ = w.Flush()
}
