package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/wildfire-water-etl/internal/catalog"
	"github.com/couchcryptid/wildfire-water-etl/internal/domain"
	"github.com/couchcryptid/wildfire-water-etl/internal/imagery"
	"github.com/couchcryptid/wildfire-water-etl/internal/observability"
	"github.com/couchcryptid/wildfire-water-etl/internal/store"
	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"
)

// Imagery searches scenes and reduces composites over a feature.
type Imagery interface {
	Search(ctx context.Context, q imagery.Query) ([]domain.Image, error)
	ReduceRegion(ctx context.Context, img domain.Image, geom orb.Geometry, bands []string, r domain.Reducer) ([]float64, error)
}

// OutputStore holds one output file per feature plus its claim lock.
type OutputStore interface {
	Exists(featureID string) (bool, error)
	Write(featureID string, content []byte) error
	Claim(featureID, owner string) (release func() error, err error)
}

// Ledger records the job state of every feature.
type Ledger interface {
	Get(featureID string) (store.Entry, bool)
	Put(featureID string, e store.Entry) error
}

// Publisher announces feature outcomes.
type Publisher interface {
	Publish(ctx context.Context, o domain.Outcome) error
}

// Mirror copies written output files to secondary storage.
type Mirror interface {
	Mirror(ctx context.Context, featureID string, content []byte) error
}

// Progress is advanced once per finished feature.
type Progress interface {
	Add(n int) error
}

// FailurePolicy decides what a failed imagery query leaves behind.
type FailurePolicy string

const (
	// PolicyRecord writes an "Error:" output file, which marks the feature done.
	PolicyRecord FailurePolicy = "record"
	// PolicyRetry records the failure only in the ledger so the next run retries.
	PolicyRetry FailurePolicy = "retry"
)

// Options configure a Runner.
type Options struct {
	Schema         catalog.Schema
	Workers        int
	DateWorkers    int
	QueryTimeout   time.Duration
	ReduceTimeout  time.Duration
	CloudThreshold float64
	FailurePolicy  FailurePolicy
	RunID          string
}

// Runner extracts per-date band statistics for each feature of a catalog.
type Runner struct {
	imagery   Imagery
	out       OutputStore
	ledger    Ledger
	publisher Publisher
	mirror    Mirror
	progress  Progress
	logger    *slog.Logger
	metrics   *observability.Metrics
	opts      Options
	ready     atomic.Bool
}

// New creates a Runner. Zero options fall back to one worker, the 0.5 cloud
// threshold and the record failure policy.
func New(img Imagery, out OutputStore, ledger Ledger, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.DateWorkers <= 0 {
		opts.DateWorkers = 1
	}
	if opts.CloudThreshold <= 0 {
		opts.CloudThreshold = 0.5
	}
	if opts.FailurePolicy == "" {
		opts.FailurePolicy = PolicyRecord
	}
	return &Runner{
		imagery: img,
		out:     out,
		ledger:  ledger,
		logger:  logger,
		metrics: metrics,
		opts:    opts,
	}
}

// WithPublisher enables outcome events.
func (r *Runner) WithPublisher(p Publisher) *Runner {
	r.publisher = p
	return r
}

// WithMirror enables mirroring of written output files.
func (r *Runner) WithMirror(m Mirror) *Runner {
	r.mirror = m
	return r
}

// WithProgress reports finished features to p.
func (r *Runner) WithProgress(p Progress) *Runner {
	r.progress = p
	return r
}

// CheckReadiness returns nil once a run has started.
func (r *Runner) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("extraction has not started yet")
	}
	return nil
}

// Run processes features with at most Workers jobs in flight. A cancelled
// context stops scheduling new features; jobs in flight finish as cancelled.
func (r *Runner) Run(ctx context.Context, features []domain.Feature) (Summary, error) {
	r.logger.Info("extraction started",
		"run_id", r.opts.RunID,
		"features", len(features),
		"workers", r.opts.Workers,
		"failure_policy", r.opts.FailurePolicy,
	)
	r.metrics.PipelineRunning.Set(1)
	defer r.metrics.PipelineRunning.Set(0)
	r.ready.Store(true)

	start := domain.Clock().Now()
	summary := newSummary(len(features))
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(r.opts.Workers)
	for _, f := range features {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			o := r.ProcessFeature(ctx, f)
			mu.Lock()
			summary.add(o)
			mu.Unlock()
			if r.progress != nil {
				r.progress.Add(1) //nolint:errcheck // progress output is best-effort
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck // jobs report through outcomes, never errors

	summary.Duration = domain.Clock().Since(start)
	r.logger.Info("all tasks are completed", summary.LogAttrs()...)
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}
