package imagery

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/wildfire-water-etl/internal/domain"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var square = orb.Polygon{{{10, 0}, {10.01, 0}, {10.01, 0.01}, {10, 0.01}, {10, 0}}}

type fakeCatalog struct {
	scenes []Scene
	err    error
	bound  orb.Bound
	window domain.TimeWindow
}

func (f *fakeCatalog) Search(_ context.Context, bound orb.Bound, window domain.TimeWindow) ([]Scene, error) {
	f.bound, f.window = bound, window
	return f.scenes, f.err
}

type fakeLoader struct {
	mu    sync.Mutex
	calls []string
	fail  string
	bands []string
}

func (f *fakeLoader) Load(_ context.Context, s Scene, grid domain.Grid, bands []string) (domain.Image, error) {
	f.mu.Lock()
	f.calls = append(f.calls, s.ID)
	f.bands = bands
	f.mu.Unlock()
	if s.ID == f.fail {
		return domain.Image{}, errors.New("corrupt COG")
	}
	return domain.Image{ID: s.ID, Time: s.Time, Grid: grid, Bands: map[string][]float64{}}, nil
}

func window() domain.TimeWindow {
	return domain.TimeWindow{
		Start: time.Date(2021, 4, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2021, 8, 20, 0, 0, 0, 0, time.UTC),
	}
}

func TestEngine_SearchLoadsScenesInTimeOrder(t *testing.T) {
	cat := &fakeCatalog{scenes: []Scene{
		{ID: "late", Time: time.Date(2021, 6, 15, 18, 0, 0, 0, time.UTC)},
		{ID: "early", Time: time.Date(2021, 6, 15, 10, 0, 0, 0, time.UTC)},
		{ID: "outside", Time: time.Date(2021, 8, 20, 0, 0, 0, 0, time.UTC)},
	}}
	loader := &fakeLoader{}
	e := NewEngine(cat, loader, slog.Default(), Options{LoadWorkers: 2})

	images, err := e.Search(context.Background(), Query{Geometry: square, Window: window()})
	require.NoError(t, err)

	require.Len(t, images, 2)
	assert.Equal(t, "early", images[0].ID)
	assert.Equal(t, "late", images[1].ID)
	assert.ElementsMatch(t, []string{"early", "late"}, loader.calls)
	assert.Equal(t, square.Bound(), cat.bound)
	assert.Equal(t, window(), cat.window)
	assert.Equal(t, []string{"Fmask", "B2", "B3", "B4", "B5", "B6", "B7"}, loader.bands)
	assert.Equal(t, 38, images[0].Grid.Width)
}

func TestEngine_SearchEmpty(t *testing.T) {
	e := NewEngine(&fakeCatalog{}, &fakeLoader{}, slog.Default(), Options{})
	images, err := e.Search(context.Background(), Query{Geometry: square, Window: window()})
	require.NoError(t, err)
	assert.Empty(t, images)
}

func TestEngine_SearchErrors(t *testing.T) {
	t.Run("catalog", func(t *testing.T) {
		e := NewEngine(&fakeCatalog{err: errors.New("503")}, &fakeLoader{}, slog.Default(), Options{})
		_, err := e.Search(context.Background(), Query{Geometry: square, Window: window()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "search scenes")
	})

	t.Run("loader", func(t *testing.T) {
		cat := &fakeCatalog{scenes: []Scene{{ID: "bad", Time: window().Start}}}
		e := NewEngine(cat, &fakeLoader{fail: "bad"}, slog.Default(), Options{})
		_, err := e.Search(context.Background(), Query{Geometry: square, Window: window()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "load scene bad")
	})

	t.Run("pixel budget", func(t *testing.T) {
		e := NewEngine(&fakeCatalog{}, &fakeLoader{}, slog.Default(), Options{MaxPixels: 100})
		_, err := e.Search(context.Background(), Query{Geometry: square, Window: window()})
		assert.ErrorIs(t, err, ErrTooManyPixels)
	})

	t.Run("nil geometry", func(t *testing.T) {
		e := NewEngine(&fakeCatalog{}, &fakeLoader{}, slog.Default(), Options{})
		_, err := e.Search(context.Background(), Query{Window: window()})
		require.Error(t, err)
	})
}

func TestEngine_ReduceRegion(t *testing.T) {
	grid := domain.Grid{MinX: 0, MaxY: 2, DX: 1, DY: 1, Width: 2, Height: 2}
	img := domain.Image{ID: "c", Grid: grid, Bands: map[string][]float64{"B2": {1, 2, 3, 4}}}
	geom := orb.Polygon{{{0, 0}, {2, 0}, {2, 2}, {0, 2}, {0, 0}}}
	e := NewEngine(&fakeCatalog{}, &fakeLoader{}, slog.Default(), Options{})

	got, err := e.ReduceRegion(context.Background(), img, geom, []string{"B2"}, domain.Median)
	require.NoError(t, err)
	assert.Equal(t, []float64{2.5}, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.ReduceRegion(ctx, img, geom, []string{"B2"}, domain.Median)
	assert.ErrorIs(t, err, context.Canceled)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.True(t, IsRetryable(errors.Join(errors.New("search scenes"), context.DeadlineExceeded)))
	assert.True(t, IsRetryable(timeoutErr{}))
	assert.False(t, IsRetryable(errors.New("collection not found")))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(nil))
}
