package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchcryptid/wildfire-water-etl/internal/domain"
	"github.com/gammazero/workerpool"
)

type dateResult struct {
	values  []float64
	elapsed float64
	err     error
}

// extractDates reduces every composite over the feature with DateWorkers
// reductions in flight. Records come back in composite (date) order. A date
// whose reduction fails is skipped; the returned error joins those failures.
func (r *Runner) extractDates(ctx context.Context, f domain.Feature, composites []domain.Image) ([]domain.Record, error) {
	results := make([]dateResult, len(composites))
	bands := domain.OutputBands()

	wp := workerpool.New(r.opts.DateWorkers)
	for i, c := range composites {
		wp.Submit(func() {
			if ctx.Err() != nil {
				results[i].err = ctx.Err()
				return
			}
			results[i] = r.reduceDate(ctx, f, c, bands)
		})
	}
	wp.StopWait()

	var (
		records []domain.Record
		errs    []error
	)
	for i, c := range composites {
		res := results[i]
		if res.err != nil {
			r.metrics.DateErrors.Inc()
			r.logger.Warn("date skipped", "feature_id", f.ID, "date", c.Date, "error", res.err)
			errs = append(errs, fmt.Errorf("date %s: %w", c.Date, res.err))
			continue
		}
		rec := domain.NewRecord(f, c.Date, res.values, res.elapsed)
		if domain.IsDegenerate(rec.Values) {
			r.metrics.DegenerateRecords.Inc()
			r.logger.Debug("degenerate record dropped", "feature_id", f.ID, "date", c.Date)
			continue
		}
		r.logger.Info("date extracted",
			"feature_id", f.ID,
			"date", rec.Date,
			"sources", c.Sources,
			"values", rec.Values,
			"elapsed", rec.Elapsed,
		)
		records = append(records, rec)
	}
	return records, errors.Join(errs...)
}

func (r *Runner) reduceDate(ctx context.Context, f domain.Feature, c domain.Image, bands []string) dateResult {
	rctx := ctx
	if r.opts.ReduceTimeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, r.opts.ReduceTimeout)
		defer cancel()
	}
	start := domain.Clock().Now()
	values, err := r.imagery.ReduceRegion(rctx, c, f.Geometry, bands, domain.Median)
	elapsed := domain.Clock().Since(start).Seconds()
	r.metrics.RemoteCallDuration.WithLabelValues("reduce").Observe(elapsed)
	return dateResult{values: values, elapsed: elapsed, err: err}
}
