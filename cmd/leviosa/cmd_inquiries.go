package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"leviosa/internal/cs"
	"leviosa/internal/dashboard"
)

var inquiriesCmd = &cobra.Command{
	Use:     "inquiries",
	Aliases: []string{"inq"},
	Short:   "Review customer inquiries and AI-drafted answers",
}

var inquiriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List inquiries",
	Example: `  leviosa inquiries list --status needs_review
  leviosa inquiries list --type talktalk --page 2`,
	RunE: runInquiriesList,
}

var inquiriesShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show an inquiry with its drafted answer",
	Args:  cobra.ExactArgs(1),
	RunE:  runInquiriesShow,
}

var inquiriesApproveCmd = &cobra.Command{
	Use:   "approve [id]",
	Short: "Post the drafted answer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		a, err := newApp(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		res, err := a.api.Inquiries.Approve(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Answer posted (%s).\n", res.Data.PostedAnswerID)
		return nil
	},
}

var inquiriesRejectCmd = &cobra.Command{
	Use:   "reject [id]",
	Short: "Reject the drafted answer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		a, err := newApp(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		res, err := a.api.Inquiries.Reject(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Inquiry %s is now %s.\n", res.Data.ID, res.Data.Status)
		return nil
	},
}

var inquiriesEditCmd = &cobra.Command{
	Use:   "edit [id]",
	Short: "Replace the drafted answer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		answer, _ := cmd.Flags().GetString("answer")
		if strings.TrimSpace(answer) == "" {
			return fmt.Errorf("--answer must not be empty")
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()
		a, err := newApp(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		if _, err := a.api.Inquiries.Edit(ctx, args[0], answer); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Answer updated. Run 'leviosa inquiries approve' to post it.")
		return nil
	},
}

func init() {
	inquiriesListCmd.Flags().String("status", "", "Filter by status (pending, needs_review, auto_posted, ...)")
	inquiriesListCmd.Flags().String("type", "", "Filter by type (customer_inquiry, product_qna, talktalk)")
	inquiriesListCmd.Flags().Int("page", 0, "Page number")
	inquiriesListCmd.Flags().Int("page-size", 0, "Page size")

	inquiriesEditCmd.Flags().String("answer", "", "New answer text (required)")
	inquiriesEditCmd.MarkFlagRequired("answer")

	inquiriesCmd.AddCommand(inquiriesListCmd, inquiriesShowCmd, inquiriesApproveCmd, inquiriesRejectCmd, inquiriesEditCmd)
	rootCmd.AddCommand(inquiriesCmd)
}

func inquiryParams(cmd *cobra.Command) (cs.InquiryListParams, error) {
	status, _ := cmd.Flags().GetString("status")
	typ, _ := cmd.Flags().GetString("type")
	page, _ := cmd.Flags().GetInt("page")
	size, _ := cmd.Flags().GetInt("page-size")

	p := cs.InquiryListParams{
		Status:      cs.InquiryStatus(status),
		InquiryType: cs.InquiryType(typ),
		Page:        page,
		PageSize:    size,
	}
	if status != "" && !p.Status.Valid() {
		return p, fmt.Errorf("unknown status %q", status)
	}
	if typ != "" && !p.InquiryType.Valid() {
		return p, fmt.Errorf("unknown inquiry type %q", typ)
	}
	return p, nil
}

func runInquiriesList(cmd *cobra.Command, args []string) error {
	params, err := inquiryParams(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()
	a, err := newApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	res, err := a.api.Inquiries.List(ctx, params)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(res.Data) == 0 {
		fmt.Fprintln(out, "No inquiries.")
		return nil
	}
	now := time.Now()
	tw := newTable(out)
	fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tRECEIVED\tMESSAGE")
	for _, inq := range res.Data {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			inq.ID, inq.InquiryType, inq.Status,
			dashboard.FormatTimeAgo(inq.CreatedAt, now),
			dashboard.TruncateText(strings.ReplaceAll(inq.MessageText, "\n", " "), 60))
	}
	tw.Flush()
	fmt.Fprintf(out, "page %d, %d of %s total\n", res.Page, len(res.Data), humanize.Comma(int64(res.Total)))
	return nil
}

func runInquiriesShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	a, err := newApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	res, err := a.api.Inquiries.Detail(ctx, args[0])
	if err != nil {
		return err
	}
	printInquiry(cmd.OutOrStdout(), res.Data, time.Now())
	return nil
}

func printInquiry(w io.Writer, d cs.InquiryDetail, now time.Time) {
	inq := d.Inquiry
	fmt.Fprintf(w, "%s  [%s / %s]\n", inq.ID, inq.InquiryType, inq.Status)
	fmt.Fprintf(w, "received %s (%s)\n", dashboard.FormatDateTime(inq.CreatedAt, now.Location()),
		dashboard.FormatRelativeTime(inq.CreatedAt, now))
	if inq.Title != nil {
		fmt.Fprintf(w, "title: %s\n", *inq.Title)
	}
	if inq.ProductInfo != nil {
		fmt.Fprintf(w, "product: %s\n", *inq.ProductInfo)
	}
	fmt.Fprintf(w, "\n%s\n", inq.MessageText)

	if d.AIResponse == nil {
		fmt.Fprintln(w, "\n(no drafted answer yet)")
		return
	}
	ai := d.AIResponse
	risk := "-"
	if ai.RiskLevel != nil {
		risk = string(*ai.RiskLevel)
	}
	fmt.Fprintf(w, "\n--- drafted answer (confidence %s, risk %s, category %s) ---\n",
		dashboard.FormatPercentage(ai.Confidence), risk, deref(ai.Category, "-"))
	fmt.Fprintln(w, ai.Answer)
	if ai.Reasoning != nil {
		fmt.Fprintf(w, "\nreasoning: %s\n", *ai.Reasoning)
	}
	if ai.SafetyOverridden {
		fmt.Fprintf(w, "safety override: %s\n", deref(ai.SafetyNote, "yes"))
	}
}
