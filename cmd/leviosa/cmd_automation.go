package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"leviosa/internal/cs"
	"leviosa/internal/dashboard"
)

var automationCmd = &cobra.Command{
	Use:   "automation",
	Short: "Inspect and tune inquiry automation",
}

var automationShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the automation config",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		a, err := newApp(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		res, err := a.api.Automation.GetConfig(ctx)
		if err != nil {
			return err
		}
		printAutomation(cmd.OutOrStdout(), res.Data)
		return nil
	},
}

var automationSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update automation settings (only the flags given are changed)",
	Example: `  leviosa automation set --auto-post=true --confidence 0.85
  leviosa automation set --policy "$(cat policy.txt)"`,
	RunE: runAutomationSet,
}

var automationEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Turn automation on",
	RunE: func(cmd *cobra.Command, args []string) error {
		return toggleAutomation(cmd, true)
	},
}

var automationDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Turn automation off",
	RunE: func(cmd *cobra.Command, args []string) error {
		return toggleAutomation(cmd, false)
	},
}

func init() {
	f := automationSetCmd.Flags()
	f.Bool("auto-post", false, "Post confident answers automatically")
	f.Float64("confidence", 0, "Confidence threshold for auto-posting (0-1)")
	f.Int("poll-interval", 0, "Inquiry poll interval in minutes")
	f.Int("max-posts", 0, "Maximum auto-posts per poll cycle")
	f.String("policy", "", "Store policy text given to the answer model")
	f.String("faq", "", "FAQ JSON given to the answer model")
	f.Bool("test-mode", false, "Draft answers without posting")
	f.Float64("fee-rate", 0, "Naver fee rate (fraction)")
	f.Float64("margin-rate", 0, "Minimum margin rate (fraction)")

	automationCmd.AddCommand(automationShowCmd, automationSetCmd, automationEnableCmd, automationDisableCmd)
	rootCmd.AddCommand(automationCmd)
}

// automationUpdate collects only the flags the user actually set.
func automationUpdate(cmd *cobra.Command) (cs.AutomationConfigUpdate, bool, error) {
	var u cs.AutomationConfigUpdate
	f := cmd.Flags()
	changed := false

	if f.Changed("auto-post") {
		v, _ := f.GetBool("auto-post")
		u.AutoPostEnabled = &v
		changed = true
	}
	if f.Changed("confidence") {
		v, _ := f.GetFloat64("confidence")
		if v < 0 || v > 1 {
			return u, false, fmt.Errorf("confidence must be between 0 and 1")
		}
		u.ConfidenceThreshold = &v
		changed = true
	}
	if f.Changed("poll-interval") {
		v, _ := f.GetInt("poll-interval")
		u.PollIntervalMinutes = &v
		changed = true
	}
	if f.Changed("max-posts") {
		v, _ := f.GetInt("max-posts")
		u.MaxAutoPostsPerCycle = &v
		changed = true
	}
	if f.Changed("policy") {
		v, _ := f.GetString("policy")
		u.PolicyText = &v
		changed = true
	}
	if f.Changed("faq") {
		v, _ := f.GetString("faq")
		u.FAQJSON = &v
		changed = true
	}
	if f.Changed("test-mode") {
		v, _ := f.GetBool("test-mode")
		u.TestMode = &v
		changed = true
	}
	if f.Changed("fee-rate") {
		v, _ := f.GetFloat64("fee-rate")
		u.NaverFeeRate = &v
		changed = true
	}
	if f.Changed("margin-rate") {
		v, _ := f.GetFloat64("margin-rate")
		u.MinMarginRate = &v
		changed = true
	}
	return u, changed, nil
}

func runAutomationSet(cmd *cobra.Command, args []string) error {
	update, changed, err := automationUpdate(cmd)
	if err != nil {
		return err
	}
	if !changed {
		return fmt.Errorf("nothing to update; see 'leviosa automation set --help'")
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()
	a, err := newApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	res, err := a.api.Automation.UpdateConfig(ctx, update)
	if err != nil {
		return err
	}
	printAutomation(cmd.OutOrStdout(), res.Data)
	return nil
}

func toggleAutomation(cmd *cobra.Command, enabled bool) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	a, err := newApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	res, err := a.api.Automation.Toggle(ctx, enabled)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Automation enabled: %s\n", yesNo(res.Data.IsEnabled))
	return nil
}

func printAutomation(w io.Writer, c cs.AutomationConfig) {
	tw := newTable(w)
	fmt.Fprintf(tw, "enabled\t%s\n", yesNo(c.IsEnabled))
	fmt.Fprintf(tw, "auto-post\t%s\n", yesNo(c.AutoPostEnabled))
	fmt.Fprintf(tw, "confidence threshold\t%.2f\n", c.ConfidenceThreshold)
	fmt.Fprintf(tw, "poll interval\t%d min\n", c.PollIntervalMinutes)
	fmt.Fprintf(tw, "max auto-posts/cycle\t%d\n", c.MaxAutoPostsPerCycle)
	fmt.Fprintf(tw, "test mode\t%s\n", yesNo(c.TestMode))
	fmt.Fprintf(tw, "naver fee rate\t%.1f%%\n", c.NaverFeeRate*100)
	fmt.Fprintf(tw, "min margin rate\t%.1f%%\n", c.MinMarginRate*100)
	fmt.Fprintf(tw, "policy\t%s\n", dashboard.TruncateText(deref(c.PolicyText, "-"), 60))
	fmt.Fprintf(tw, "updated\t%s\n", dashboard.FormatDateTime(c.UpdatedAt, nil))
	tw.Flush()
}
