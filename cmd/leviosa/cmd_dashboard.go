package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"leviosa/internal/cs"
	"leviosa/internal/dashboard"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Inquiry statistics and automation activity",
}

var dashboardStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show inquiry counts for a period",
	RunE: func(cmd *cobra.Command, args []string) error {
		period, _ := cmd.Flags().GetString("period")
		switch cs.DashboardPeriod(period) {
		case cs.PeriodToday, cs.Period7d, cs.Period30d, cs.PeriodAll:
		default:
			return fmt.Errorf("period must be one of today, 7d, 30d, all")
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()
		a, err := newApp(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		res, err := a.api.Dashboard.Stats(ctx, cs.DashboardPeriod(period))
		if err != nil {
			return err
		}
		s := res.Data
		tw := newTable(cmd.OutOrStdout())
		fmt.Fprintf(tw, "total\t%s\n", humanize.Comma(int64(s.TotalInquiries)))
		fmt.Fprintf(tw, "auto-posted\t%s\n", humanize.Comma(int64(s.AutoPosted)))
		fmt.Fprintf(tw, "needs review\t%s\n", humanize.Comma(int64(s.NeedsReview)))
		fmt.Fprintf(tw, "manually posted\t%s\n", humanize.Comma(int64(s.ManuallyPosted)))
		fmt.Fprintf(tw, "rejected\t%s\n", humanize.Comma(int64(s.Rejected)))
		fmt.Fprintf(tw, "failed\t%s\n", humanize.Comma(int64(s.Failed)))
		if s.TotalInquiries > 0 {
			rate := float64(s.AutoPosted) / float64(s.TotalInquiries)
			fmt.Fprintf(tw, "automation rate\t%s\n", dashboard.FormatPercentage(&rate))
		}
		return tw.Flush()
	},
}

var dashboardActivityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Show recent poll cycles",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		ctx, cancel := commandContext(cmd)
		defer cancel()
		a, err := newApp(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		res, err := a.api.Dashboard.Activity(ctx, limit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		points := dashboard.FormatActivityData(res.Data, time.Local)
		if len(points) == 0 {
			fmt.Fprintln(out, "No activity yet.")
			return nil
		}
		tw := newTable(out)
		fmt.Fprintln(tw, "TIME\tFETCHED\tAUTO-POSTED")
		for _, p := range points {
			fmt.Fprintf(tw, "%s\t%d\t%d\n", p.Time, p.Fetched, p.AutoPosted)
		}
		return tw.Flush()
	},
}

func init() {
	dashboardStatsCmd.Flags().String("period", string(cs.Period7d), "today, 7d, 30d or all")
	dashboardActivityCmd.Flags().Int("limit", cs.DefaultActivityLimit, "Number of events")
	dashboardCmd.AddCommand(dashboardStatsCmd, dashboardActivityCmd)
	rootCmd.AddCommand(dashboardCmd)
}
