package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/spf13/cobra"

	"leviosa/internal/dashboard"
	"leviosa/internal/pricing"
	"leviosa/internal/sourcing"
)

var errNoSession = errors.New("no sourcing session; run 'leviosa sourcing search' first")

// errLimitSkipped marks items skipped after the usage limit was hit mid-run.
var errLimitSkipped = errors.New("skipped: usage limit reached")

var sourcingCmd = &cobra.Command{
	Use:     "sourcing",
	Aliases: []string{"src"},
	Short:   "Search, review, optimize and upload wholesale products",
	Long: `The sourcing workflow keeps one session under the state directory:

  1. search     find products and start a new session
  2. review     accept or skip products one at a time (or accept-all)
  3. price      compute marketplace prices for the accepted products
  4. names      generate SEO names (usage-metered)
  5. covers     generate cover images (usage-metered)
  6. upload     send the accepted products to Naver

Bulk steps work on the accepted products; with nothing accepted yet every
product is accepted first.`,
}

var sourcingSearchCmd = &cobra.Command{
	Use:   "search [keyword]",
	Short: "Search products and start a new session",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSourcingSearch,
}

var sourcingReviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Accept or skip products one at a time",
	RunE:  runSourcingReview,
}

var sourcingAcceptAllCmd = &cobra.Command{
	Use:   "accept-all",
	Short: "Accept every product in the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, sess, err := openSession(cmd)
		if err != nil {
			return err
		}
		sess.AcceptAll()
		a.sessions.Save(sess)
		fmt.Fprintf(cmd.OutOrStdout(), "Accepted all %d products.\n", len(sess.Accepted))
		return nil
	},
}

var sourcingPriceCmd = &cobra.Command{
	Use:   "price",
	Short: "Compute marketplace prices for the accepted products",
	RunE:  runSourcingPrice,
}

var sourcingNamesCmd = &cobra.Command{
	Use:   "names",
	Short: "Generate SEO product names",
	RunE:  runSourcingNames,
}

var sourcingCoversCmd = &cobra.Command{
	Use:   "covers",
	Short: "Generate cover images",
	RunE:  runSourcingCovers,
}

var sourcingUploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload the accepted products to Naver",
	RunE:  runSourcingUpload,
}

var sourcingSessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Show the current session",
	RunE:  runSourcingSession,
}

var sourcingResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Discard the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		a.sessions.Clear()
		fmt.Fprintln(cmd.OutOrStdout(), "Sourcing session cleared.")
		return nil
	},
}

func init() {
	sourcingSearchCmd.Flags().String("min", "", "Minimum price")
	sourcingSearchCmd.Flags().String("max", "", "Maximum price")
	sourcingSearchCmd.Flags().Bool("free-shipping", false, "Only products with free shipping")
	sourcingSearchCmd.Flags().String("sort", sourcing.DefaultSort, "Sort order")

	sourcingReviewCmd.Flags().Bool("restart", false, "Clear earlier decisions and start from the first product")

	for _, c := range []*cobra.Command{sourcingPriceCmd, sourcingUploadCmd} {
		c.Flags().Float64("fee", -1, "Naver fee rate in percent (default from config)")
		c.Flags().Float64("margin", -1, "Minimum margin rate in percent (default from config)")
	}
	sourcingNamesCmd.Flags().Bool("all", false, "Regenerate names that already exist")
	sourcingCoversCmd.Flags().Bool("all", false, "Regenerate covers that already exist")
	sourcingSessionCmd.Flags().Bool("json", false, "Print the raw session")

	sourcingCmd.AddCommand(
		sourcingSearchCmd,
		sourcingReviewCmd,
		sourcingAcceptAllCmd,
		sourcingPriceCmd,
		sourcingNamesCmd,
		sourcingCoversCmd,
		sourcingUploadCmd,
		sourcingSessionCmd,
		sourcingResetCmd,
	)
	rootCmd.AddCommand(sourcingCmd)
}

func openSession(cmd *cobra.Command) (*app, *sourcing.Session, error) {
	a, err := newApp(cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	sess, ok := a.sessions.Load()
	if !ok {
		return nil, nil, errNoSession
	}
	return a, sess, nil
}

// rates returns the fee and margin percentages from flags or config.
func rates(cmd *cobra.Command) (fee, margin float64) {
	fee, _ = cmd.Flags().GetFloat64("fee")
	margin, _ = cmd.Flags().GetFloat64("margin")
	if fee < 0 {
		fee = cfg.Sourcing.FeeRate
	}
	if margin < 0 {
		margin = cfg.Sourcing.MarginRate
	}
	return fee, margin
}

func runSourcingSearch(cmd *cobra.Command, args []string) error {
	keyword := strings.Join(args, " ")
	minPrice, _ := cmd.Flags().GetString("min")
	maxPrice, _ := cmd.Flags().GetString("max")
	free, _ := cmd.Flags().GetBool("free-shipping")
	sortBy, _ := cmd.Flags().GetString("sort")

	req, err := sourcing.BuildSearchRequest(keyword, minPrice, maxPrice, free, sortBy)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()
	a, err := newApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	res, err := a.sourcing.Search(ctx, req)
	if err != nil {
		return err
	}

	products := res.Results()
	sess := sourcing.NewSession(req.Keyword, minPrice, maxPrice, free, sortBy, products)
	a.sessions.Save(sess)

	out := cmd.OutOrStdout()
	if len(products) == 0 {
		msg := res.Message
		if msg == "" {
			msg = "No products found."
		}
		fmt.Fprintln(out, msg)
		return nil
	}
	printProducts(out, sess, products)
	fmt.Fprintf(out, "\n%d products. Next: 'leviosa sourcing review' or 'leviosa sourcing accept-all'.\n", len(products))
	if len(products) > sourcing.MaxPersistedProducts {
		fmt.Fprintf(out, "Only the first %d products are kept in the saved session.\n", sourcing.MaxPersistedProducts)
	}
	return nil
}

func printProducts(w io.Writer, sess *sourcing.Session, products []sourcing.Product) {
	tw := newTable(w)
	fmt.Fprintln(tw, "\tNO\tNAME\tPRICE\tOPTIMIZED\tRATING")
	for _, p := range products {
		mark := " "
		if sess.IsAccepted(p.ProductNo) {
			mark = "✓"
		}
		optimized := "-"
		if r, ok := sess.OptimizedPrices[p.ProductNo]; ok {
			optimized = pricing.FormatKRW(r.Price)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.1f (%d)\n",
			mark, p.ProductNo, dashboard.TruncateText(p.Name, 40), pricing.FormatKRW(p.Price),
			optimized, p.Rating, p.ReviewCount)
	}
	tw.Flush()
}

func runSourcingReview(cmd *cobra.Command, args []string) error {
	a, sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	if restart, _ := cmd.Flags().GetBool("restart"); restart {
		sess.ResetDecisions()
		a.sessions.Save(sess)
	}

	out := cmd.OutOrStdout()
	in := bufio.NewScanner(cmd.InOrStdin())
	for {
		p, ok := sess.CurrentProduct()
		if !ok {
			break
		}
		fmt.Fprintf(out, "\n[%d/%d] %s\n", sess.ReviewIndex+1, len(sess.Products), p.Name)
		fmt.Fprintf(out, "  price %s  →  %s\n", pricing.FormatKRW(p.Price),
			pricing.FormatKRW(sourcing.PriceFor(p, cfg.Sourcing.FeeRate, cfg.Sourcing.MarginRate).Price))
		if p.Category != "" {
			fmt.Fprintf(out, "  category %s\n", p.Category)
		}
		if p.ShippingInfo != "" {
			fmt.Fprintf(out, "  shipping %s\n", p.ShippingInfo)
		}
		fmt.Fprintf(out, "  %s\n", p.URL)
		fmt.Fprint(out, "[a]ccept  [s]kip  [q]uit > ")

		if !in.Scan() {
			break
		}
		switch strings.ToLower(strings.TrimSpace(in.Text())) {
		case "a", "accept", "y":
			sess.Accept()
		case "s", "skip", "n":
			sess.Skip()
		case "q", "quit":
			a.sessions.Save(sess)
			fmt.Fprintf(out, "Saved. %d accepted so far.\n", len(sess.Accepted))
			return nil
		default:
			fmt.Fprintln(out, "Please answer a, s or q.")
			continue
		}
		a.sessions.Save(sess)
	}

	if sess.ReviewComplete() {
		fmt.Fprintf(out, "\nReview complete: %d of %d accepted.\n", len(sess.Accepted), len(sess.Products))
	}
	return in.Err()
}

func runSourcingPrice(cmd *cobra.Command, args []string) error {
	a, sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	fee, margin := rates(cmd)
	n := sess.OptimizeAllPrices(fee, margin)
	a.sessions.Save(sess)

	out := cmd.OutOrStdout()
	printProducts(out, sess, sess.AcceptedProducts())
	fmt.Fprintf(out, "\nPriced %d products (fee %.1f%%, margin %.1f%%).\n", n, fee, margin)
	return nil
}

// bulkTargets filters out products that already have a result unless all is set.
func bulkTargets(sess *sourcing.Session, done map[string]string, all bool) []sourcing.Product {
	targets := sess.BulkTargets()
	if all {
		return targets
	}
	out := targets[:0:0]
	for _, p := range targets {
		if done[p.ProductNo] == "" {
			out = append(out, p)
		}
	}
	return out
}

func isLimitReached(err error) bool {
	var apiErr *sourcing.APIError
	return errors.As(err, &apiErr) && apiErr.IsLimitReached()
}

func runSourcingNames(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	a, sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	all, _ := cmd.Flags().GetBool("all")
	targets := bulkTargets(sess, sess.OptimizedNames, all)
	if len(targets) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Every accepted product already has a name. Use --all to regenerate.")
		return nil
	}

	var limitHit atomic.Bool
	report := sourcing.RunBatches(ctx, targets, func(ctx context.Context, p sourcing.Product) (string, error) {
		if limitHit.Load() {
			return "", errLimitSkipped
		}
		name, err := a.sourcing.OptimizeName(ctx, p.Name, p.Category)
		if err != nil {
			if isLimitReached(err) {
				limitHit.Store(true)
			}
			return "", err
		}
		return name, nil
	}, sess.SetName)
	a.sessions.Save(sess)

	printBulkReport(cmd.OutOrStdout(), "names", report, limitHit.Load())
	return nil
}

func runSourcingCovers(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	a, sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	all, _ := cmd.Flags().GetBool("all")
	targets := bulkTargets(sess, sess.CoverImages, all)
	if len(targets) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Every accepted product already has a cover. Use --all to regenerate.")
		return nil
	}

	names := sess.OptimizedNames
	var limitHit atomic.Bool
	report := sourcing.RunBatches(ctx, targets, func(ctx context.Context, p sourcing.Product) (string, error) {
		if limitHit.Load() {
			return "", errLimitSkipped
		}
		if p.ImageURL == "" {
			return "", errors.New("product has no image")
		}
		name := names[p.ProductNo]
		if name == "" {
			name = p.Name
		}
		cover, err := a.sourcing.OptimizeCover(ctx, p.ImageURL, name)
		if err != nil {
			if isLimitReached(err) {
				limitHit.Store(true)
			}
			return "", err
		}
		return cover, nil
	}, sess.SetCover)
	a.sessions.Save(sess)

	printBulkReport(cmd.OutOrStdout(), "covers", report, limitHit.Load())
	return nil
}

func printBulkReport(w io.Writer, what string, r sourcing.BatchReport, limitHit bool) {
	fmt.Fprintf(w, "%s: %d succeeded, %d failed (%d of %d processed)\n", what, r.Succeeded, r.Failed, r.Processed, r.Total)
	if r.Canceled {
		fmt.Fprintln(w, "Canceled. Completed batches were saved; re-run to continue.")
	}
	if limitHit {
		fmt.Fprintln(w, "Usage limit reached. Remaining products were skipped.")
	}
	if len(r.Errors) == 0 {
		return
	}
	ids := make([]string, 0, len(r.Errors))
	for id := range r.Errors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "  %s: %s\n", id, userMessage(r.Errors[id]))
	}
}

func runSourcingUpload(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	a, sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	items := sess.UploadItems()
	a.sessions.Save(sess)
	if len(items) == 0 {
		return errors.New("nothing to upload")
	}

	fee, margin := rates(cmd)
	res, err := a.sourcing.Upload(ctx, sourcing.NewUploadRequest(items, fee, margin))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	tw := newTable(out)
	for _, r := range res.Results {
		if r.Success {
			origin := "-"
			if r.OriginProductNo != nil {
				origin = fmt.Sprint(*r.OriginProductNo)
			}
			fmt.Fprintf(tw, "%s\tok\tnaver #%s\n", r.ProductNo, origin)
		} else {
			fmt.Fprintf(tw, "%s\tfailed\t%s\n", r.ProductNo, deref(r.Error, "unknown error"))
		}
	}
	tw.Flush()
	ok, failed := res.Counts()
	fmt.Fprintf(out, "\nUploaded %d, failed %d.\n", ok, failed)
	if res.Message != "" {
		fmt.Fprintln(out, res.Message)
	}
	return nil
}

func runSourcingSession(cmd *cobra.Command, args []string) error {
	_, sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(out, sess)
	}

	tw := newTable(out)
	fmt.Fprintf(tw, "keyword\t%s\n", sess.Keyword)
	fmt.Fprintf(tw, "price range\t%s ~ %s\n", orDash(sess.MinPrice), orDash(sess.MaxPrice))
	fmt.Fprintf(tw, "free shipping\t%s\n", yesNo(sess.FreeShipping))
	fmt.Fprintf(tw, "sort\t%s\n", orDash(sess.Sort))
	fmt.Fprintf(tw, "reviewed\t%d / %d\n", sess.ReviewIndex, len(sess.Products))
	fmt.Fprintf(tw, "accepted\t%d\n", len(sess.Accepted))
	fmt.Fprintf(tw, "priced\t%d\n", len(sess.OptimizedPrices))
	fmt.Fprintf(tw, "named\t%d\n", len(sess.OptimizedNames))
	fmt.Fprintf(tw, "covers\t%d\n", len(sess.CoverImages))
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
