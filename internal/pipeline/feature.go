package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/couchcryptid/wildfire-water-etl/internal/domain"
	"github.com/couchcryptid/wildfire-water-etl/internal/imagery"
	"github.com/couchcryptid/wildfire-water-etl/internal/store"
)

// ProcessFeature runs the whole job for one feature and reports how it
// ended. It never returns an error: every failure is folded into the outcome
// and, where the policy asks for it, into the output file.
func (r *Runner) ProcessFeature(ctx context.Context, f domain.Feature) domain.Outcome {
	start := domain.Clock().Now()
	o := r.process(ctx, f)
	o.RunID = r.opts.RunID
	o.FeatureID = f.ID
	o.FinishedAt = domain.Clock().Now().UTC()
	o.Duration = domain.Clock().Since(start).Seconds()

	r.metrics.FeaturesProcessed.WithLabelValues(string(o.Status)).Inc()
	r.metrics.FeatureDuration.Observe(o.Duration)
	r.record(o)
	r.publish(ctx, o)

	level := r.logger.Info
	switch o.Status {
	case domain.StatusFailed, domain.StatusRetryable, domain.StatusLocalError:
		level = r.logger.Warn
	}
	level("feature finished",
		"feature_id", f.ID,
		"status", o.Status,
		"reason", o.Reason,
		"images", o.Images,
		"composites", o.Composites,
		"records", o.Records,
		"duration_seconds", domain.Round(o.Duration, domain.ElapsedDigits),
	)
	return o
}

func (r *Runner) process(ctx context.Context, f domain.Feature) domain.Outcome {
	if done, o := r.alreadyDone(f.ID); done {
		return o
	}
	if !r.opts.Schema.Eligible(f) {
		return domain.Outcome{Status: domain.StatusIneligible, Reason: fmt.Sprintf("area %g above %g", f.Area, r.opts.Schema.MaxArea)}
	}

	release, err := r.out.Claim(f.ID, r.opts.RunID)
	if errors.Is(err, store.ErrClaimed) {
		return domain.Outcome{Status: domain.StatusClaimed, Reason: err.Error()}
	}
	if err != nil {
		return domain.Outcome{Status: domain.StatusLocalError, Reason: err.Error()}
	}
	defer func() {
		if err := release(); err != nil {
			r.logger.Warn("release claim", "feature_id", f.ID, "error", err)
		}
	}()
	// Another process may have finished the feature between the check and
	// the claim.
	if done, o := r.alreadyDone(f.ID); done {
		return o
	}

	return r.extract(ctx, f)
}

// alreadyDone reports whether the feature needs no work: its output exists
// or the ledger holds a terminal state. An unreadable output directory stops
// the job without touching the ledger.
func (r *Runner) alreadyDone(id string) (bool, domain.Outcome) {
	exists, err := r.out.Exists(id)
	if err != nil {
		return true, domain.Outcome{Status: domain.StatusLocalError, Reason: err.Error()}
	}
	if exists {
		return true, domain.Outcome{Status: domain.StatusSkipped, Reason: "output exists"}
	}
	if e, ok := r.ledger.Get(id); ok && r.terminal(e.State) {
		return true, domain.Outcome{Status: domain.StatusSkipped, Reason: "ledger state " + string(e.State)}
	}
	return false, domain.Outcome{}
}

// terminal reports whether a ledger state means the feature is finished.
// Empty and ineligible features are evaluated again on every run.
func (r *Runner) terminal(s domain.State) bool {
	switch s {
	case domain.StateDone:
		return true
	case domain.StateFailed:
		return r.opts.FailurePolicy == PolicyRecord
	default:
		return false
	}
}

func (r *Runner) extract(ctx context.Context, f domain.Feature) domain.Outcome {
	window, err := domain.EventWindow(f, r.opts.Schema.MarginMonths)
	if err != nil {
		return r.fail(f, err)
	}

	images, err := r.search(ctx, f, window)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return domain.Outcome{Status: domain.StatusCancelled, Reason: ctx.Err().Error()}
		case imagery.IsRetryable(err):
			return domain.Outcome{Status: domain.StatusRetryable, Reason: err.Error()}
		default:
			return r.fail(f, err)
		}
	}
	r.metrics.ImagesRetrieved.Add(float64(len(images)))

	usable := r.prepare(f, images)
	composites, err := domain.CompositeByDate(usable)
	if err != nil {
		return r.fail(f, err)
	}
	r.metrics.CompositesPerFeature.Observe(float64(len(composites)))
	o := domain.Outcome{Images: len(images), Composites: len(composites)}
	if len(composites) == 0 {
		o.Status = domain.StatusEmpty
		o.Reason = "no usable composite"
		return o
	}

	records, dateErr := r.extractDates(ctx, f, composites)
	if ctx.Err() != nil {
		o.Status = domain.StatusCancelled
		o.Reason = ctx.Err().Error()
		return o
	}
	if len(records) == 0 {
		if dateErr != nil && imagery.IsRetryable(dateErr) {
			o.Status = domain.StatusRetryable
			o.Reason = dateErr.Error()
			return o
		}
		o.Status = domain.StatusEmpty
		o.Reason = "no non-degenerate record"
		return o
	}

	content := r.render(f, composites, records)
	if err := r.write(ctx, f.ID, content); err != nil {
		o.Status = domain.StatusLocalError
		o.Reason = err.Error()
		return o
	}
	r.metrics.RecordsWritten.Add(float64(len(records)))
	o.Status = domain.StatusDone
	o.Records = len(records)
	return o
}

func (r *Runner) search(ctx context.Context, f domain.Feature, window domain.TimeWindow) ([]domain.Image, error) {
	qctx := ctx
	if r.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, r.opts.QueryTimeout)
		defer cancel()
	}
	start := domain.Clock().Now()
	images, err := r.imagery.Search(qctx, imagery.Query{Geometry: f.Geometry, Window: window})
	r.metrics.RemoteCallDuration.WithLabelValues("search").Observe(domain.Clock().Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("query imagery for %s: %w", window, err)
	}
	return images, nil
}

// prepare drops cloudy scenes, then masks low-quality and non-water pixels.
func (r *Runner) prepare(f domain.Feature, images []domain.Image) []domain.Image {
	var out []domain.Image
	for _, img := range images {
		cov, err := domain.CloudCoverage(img, f.Geometry)
		if err != nil {
			r.logger.Warn("cloud coverage", "feature_id", f.ID, "image", img.ID, "error", err)
			r.metrics.ImagesCloudFiltered.Inc()
			continue
		}
		// NaN never passes the comparison, so scenes without valid quality
		// pixels are dropped too.
		if !(cov < r.opts.CloudThreshold) {
			r.logger.Debug("image too cloudy", "feature_id", f.ID, "image", img.ID, "cloud_coverage", cov)
			r.metrics.ImagesCloudFiltered.Inc()
			continue
		}
		img.CloudCoverage = cov

		masked, err := domain.ApplyQualityMask(img)
		if err == nil {
			masked, err = domain.ApplyWaterMask(masked, domain.GreenBand, domain.SWIR1Band)
		}
		if err != nil {
			r.logger.Warn("mask image", "feature_id", f.ID, "image", img.ID, "error", err)
			continue
		}
		out = append(out, masked)
	}
	return out
}

// fail applies the failure policy to a non-retryable feature error.
func (r *Runner) fail(f domain.Feature, cause error) domain.Outcome {
	o := domain.Outcome{Status: domain.StatusFailed, Reason: cause.Error()}
	if r.opts.FailurePolicy != PolicyRecord {
		return o
	}
	if err := r.write(context.Background(), f.ID, []byte(domain.ErrorLine(cause)+"\n")); err != nil {
		// Not persisted: a failure without its error file is retried.
		o.Status = domain.StatusLocalError
		o.Reason = fmt.Sprintf("%s; write error file: %v", o.Reason, err)
	}
	return o
}

func (r *Runner) render(f domain.Feature, composites []domain.Image, records []domain.Record) []byte {
	var b strings.Builder
	if r.opts.Schema.WriteHeader {
		b.WriteString(domain.HeaderLine(r.opts.Schema.HeaderLabel, f.ID, len(composites)))
		b.WriteByte('\n')
	}
	for _, rec := range records {
		b.WriteString(rec.Line())
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func (r *Runner) write(ctx context.Context, id string, content []byte) error {
	if err := r.out.Write(id, content); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if r.mirror != nil {
		if err := r.mirror.Mirror(context.WithoutCancel(ctx), id, content); err != nil {
			r.logger.Warn("mirror output", "feature_id", id, "error", err)
		}
	}
	return nil
}

func (r *Runner) record(o domain.Outcome) {
	state, ok := o.State()
	if !ok {
		return
	}
	err := r.ledger.Put(o.FeatureID, store.Entry{
		State:     state,
		Reason:    o.Reason,
		Records:   o.Records,
		RunID:     o.RunID,
		UpdatedAt: o.FinishedAt,
	})
	if err != nil {
		r.logger.Error("update ledger", "feature_id", o.FeatureID, "error", err)
	}
}

func (r *Runner) publish(ctx context.Context, o domain.Outcome) {
	if r.publisher == nil || o.Status == domain.StatusSkipped {
		return
	}
	if err := r.publisher.Publish(context.WithoutCancel(ctx), o); err != nil {
		r.logger.Warn("publish outcome", "feature_id", o.FeatureID, "error", err)
	}
}
