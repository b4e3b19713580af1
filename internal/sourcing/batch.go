package sourcing

import (
	"context"

	"golang.org/x/sync/errgroup"

	"leviosa/internal/logging"
)

// BatchSize is how many products a bulk operation works on at once.
const BatchSize = 3

// BatchReport summarizes a bulk run.
type BatchReport struct {
	Total     int
	Processed int
	Succeeded int
	Failed    int
	Canceled  bool
	Errors    map[string]error
}

// RunBatches applies work to products BatchSize at a time. Items within a
// batch run concurrently and a failed item does not stop its siblings. The
// context is checked before each batch, and a batch's results are committed
// only if the context is still live when it finishes, so a canceled batch
// commits nothing.
func RunBatches[R any](ctx context.Context, products []Product, work func(context.Context, Product) (R, error), commit func(productNo string, result R)) BatchReport {
	report := BatchReport{Total: len(products), Errors: map[string]error{}}

	type outcome struct {
		result R
		err    error
	}

	for start := 0; start < len(products); start += BatchSize {
		if ctx.Err() != nil {
			report.Canceled = true
			break
		}

		end := start + BatchSize
		if end > len(products) {
			end = len(products)
		}
		batch := products[start:end]
		outcomes := make([]outcome, len(batch))

		var g errgroup.Group
		for i, p := range batch {
			g.Go(func() error {
				r, err := work(ctx, p)
				outcomes[i] = outcome{result: r, err: err}
				return nil
			})
		}
		_ = g.Wait()

		if ctx.Err() != nil {
			report.Canceled = true
			break
		}

		for i, p := range batch {
			o := outcomes[i]
			if o.err != nil {
				report.Failed++
				report.Errors[p.ProductNo] = o.err
				logging.SourcingWarn("bulk item %s failed: %v", p.ProductNo, o.err)
				continue
			}
			if commit != nil {
				commit(p.ProductNo, o.result)
			}
			report.Succeeded++
		}
		report.Processed += len(batch)
	}

	if report.Canceled {
		logging.Sourcing("bulk run canceled after %d/%d products", report.Processed, report.Total)
	}
	return report
}
