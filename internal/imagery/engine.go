// Package imagery is the facade over the remote imagery backend: scene
// search by date and bounds, band loading onto the feature grid, and zonal
// reductions under the pixel budget.
package imagery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"time"

	"github.com/couchcryptid/wildfire-water-etl/internal/domain"
	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"
)

// Backend limits.
const (
	DefaultScale     = 30.0
	DefaultMaxPixels = 1e9
)

// ErrTooManyPixels is returned when a feature grid exceeds the pixel budget.
var ErrTooManyPixels = errors.New("grid exceeds pixel budget")

// Query selects the scenes intersecting Geometry and acquired inside Window.
type Query struct {
	Geometry orb.Geometry
	Window   domain.TimeWindow
}

// Scene is one catalog entry: an acquisition with a URL per band.
type Scene struct {
	ID         string
	Time       time.Time
	CloudCover float64
	Assets     map[string]string
}

// SceneCatalog finds scenes by bounding box and time window.
type SceneCatalog interface {
	Search(ctx context.Context, bound orb.Bound, window domain.TimeWindow) ([]Scene, error)
}

// SceneLoader reads the given bands of a scene resampled onto grid.
type SceneLoader interface {
	Load(ctx context.Context, scene Scene, grid domain.Grid, bands []string) (domain.Image, error)
}

// Options tune the engine.
type Options struct {
	Bands       []string
	Scale       float64
	MaxPixels   float64
	LoadWorkers int
}

// Engine implements the imagery facade.
type Engine struct {
	catalog SceneCatalog
	loader  SceneLoader
	logger  *slog.Logger
	opts    Options
}

// NewEngine wires a catalog and a loader. Zero options take the HLS defaults:
// Fmask plus B2..B7 at 30 m.
func NewEngine(c SceneCatalog, l SceneLoader, logger *slog.Logger, opts Options) *Engine {
	if len(opts.Bands) == 0 {
		opts.Bands = append([]string{domain.QualityBand}, domain.OutputBands()...)
	}
	if opts.Scale <= 0 {
		opts.Scale = DefaultScale
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = DefaultMaxPixels
	}
	if opts.LoadWorkers <= 0 {
		opts.LoadWorkers = 1
	}
	return &Engine{catalog: c, loader: l, logger: logger, opts: opts}
}

// Grid returns the fixed-scale grid covering geom.
func (e *Engine) Grid(geom orb.Geometry) (domain.Grid, error) {
	if geom == nil {
		return domain.Grid{}, errors.New("nil geometry")
	}
	g := domain.NewGrid(geom.Bound(), e.opts.Scale)
	if float64(g.Len()) > e.opts.MaxPixels {
		return domain.Grid{}, fmt.Errorf("%w: %dx%d pixels", ErrTooManyPixels, g.Width, g.Height)
	}
	return g, nil
}

// Search returns every scene intersecting the query, loaded onto the
// feature grid, ordered by acquisition time.
func (e *Engine) Search(ctx context.Context, q Query) ([]domain.Image, error) {
	grid, err := e.Grid(q.Geometry)
	if err != nil {
		return nil, err
	}

	scenes, err := e.catalog.Search(ctx, q.Geometry.Bound(), q.Window)
	if err != nil {
		return nil, fmt.Errorf("search scenes: %w", err)
	}

	var kept []Scene
	for _, s := range scenes {
		if q.Window.Contains(s.Time) {
			kept = append(kept, s)
		}
	}
	e.logger.Debug("scenes found", "count", len(kept), "window", q.Window.String())

	images := make([]domain.Image, len(kept))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.LoadWorkers)
	for i, s := range kept {
		g.Go(func() error {
			img, err := e.loader.Load(gctx, s, grid, e.opts.Bands)
			if err != nil {
				return fmt.Errorf("load scene %s: %w", s.ID, err)
			}
			images[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(images, func(i, j int) bool { return images[i].Time.Before(images[j].Time) })
	return images, nil
}

// ReduceRegion computes the reducer over img inside geom, band by band.
func (e *Engine) ReduceRegion(ctx context.Context, img domain.Image, geom orb.Geometry, bands []string, r domain.Reducer) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if float64(img.Grid.Len()) > e.opts.MaxPixels {
		return nil, fmt.Errorf("%w: image %s", ErrTooManyPixels, img.ID)
	}

	type result struct {
		values []float64
		err    error
	}
	done := make(chan result, 1)
	go func() {
		v, err := domain.ReduceRegion(img, geom, bands, r)
		done <- result{v, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		return res.values, res.err
	}
}

// IsRetryable reports whether err is a timeout rather than a data error.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
