package domain

import (
	"math"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testGrid is a 2x2 grid of unit pixels over [0,2]x[0,2].
var testGrid = Grid{MinX: 0, MaxY: 2, DX: 1, DY: 1, Width: 2, Height: 2}

var testSquare = orb.Polygon{{{0, 0}, {2, 0}, {2, 2}, {0, 2}, {0, 0}}}

func nan() float64 { return math.NaN() }

// uniformImage builds an image whose bands hold the same value at every pixel.
func uniformImage(id string, at time.Time, values map[string]float64) Image {
	bands := make(map[string][]float64, len(values))
	for name, v := range values {
		b := make([]float64, testGrid.Len())
		for i := range b {
			b[i] = v
		}
		bands[name] = b
	}
	return Image{ID: id, Time: at, Grid: testGrid, Bands: bands}
}

func TestNewGrid(t *testing.T) {
	bound := orb.Bound{Min: orb.Point{10, 0}, Max: orb.Point{10.01, 0.01}}
	g := NewGrid(bound, 30)

	assert.InDelta(t, 30/metersPerDegree, g.DY, 1e-12)
	assert.Equal(t, 38, g.Height)
	assert.Equal(t, 38, g.Width)
	assert.True(t, g.Bound().Contains(bound.Min))
	assert.True(t, g.Bound().Contains(bound.Max))
}

func TestNewGrid_Degenerate(t *testing.T) {
	g := NewGrid(orb.Bound{Min: orb.Point{5, 5}, Max: orb.Point{5, 5}}, 30)
	assert.Equal(t, 1, g.Width)
	assert.Equal(t, 1, g.Height)
}

func TestGrid_Footprint(t *testing.T) {
	g := Grid{MinX: 0, MaxY: 3, DX: 1, DY: 1, Width: 3, Height: 3}

	t.Run("polygon", func(t *testing.T) {
		// Lower-left 2x2 block.
		poly := orb.Polygon{{{0, 0}, {2, 0}, {2, 2}, {0, 2}, {0, 0}}}
		assert.Equal(t, []int{3, 4, 6, 7}, g.Footprint(poly))
	})

	t.Run("polygon with hole", func(t *testing.T) {
		poly := orb.Polygon{
			{{0, 0}, {3, 0}, {3, 3}, {0, 3}, {0, 0}},
			{{1, 1}, {2, 1}, {2, 2}, {1, 2}, {1, 1}},
		}
		fp := g.Footprint(poly)
		assert.Len(t, fp, 8)
		assert.NotContains(t, fp, 4)
	})

	t.Run("multipolygon", func(t *testing.T) {
		mp := orb.MultiPolygon{
			{{{0, 2}, {1, 2}, {1, 3}, {0, 3}, {0, 2}}},
			{{{2, 0}, {3, 0}, {3, 1}, {2, 1}, {2, 0}}},
		}
		assert.Equal(t, []int{0, 8}, g.Footprint(mp))
	})

	t.Run("outside", func(t *testing.T) {
		poly := orb.Polygon{{{10, 10}, {11, 10}, {11, 11}, {10, 11}, {10, 10}}}
		assert.Empty(t, g.Footprint(poly))
	})

	t.Run("nil", func(t *testing.T) {
		assert.Empty(t, g.Footprint(nil))
	})
}

func TestImage_Band(t *testing.T) {
	img := uniformImage("a", time.Time{}, map[string]float64{"B2": 1})
	_, err := img.Band("B3")
	require.Error(t, err)

	img.Bands["B4"] = []float64{1}
	_, err = img.Band("B4")
	require.Error(t, err)
}

func TestImage_UpdateMaskDoesNotAlias(t *testing.T) {
	img := uniformImage("a", time.Time{}, map[string]float64{"B2": 1, "B3": 2})
	masked := img.UpdateMask([]bool{true, false, true, false})

	assert.True(t, math.IsNaN(masked.Bands["B2"][1]))
	assert.True(t, math.IsNaN(masked.Bands["B3"][3]))
	assert.Equal(t, 1.0, masked.Bands["B2"][0])
	assert.Equal(t, 1.0, img.Bands["B2"][1], "input must stay untouched")
}

func TestImage_NormalizedDifference(t *testing.T) {
	img := Image{ID: "nd", Grid: testGrid, Bands: map[string][]float64{
		"B3": {3, 0, nan(), 1},
		"B6": {1, 0, 1, 3},
	}}
	nd, err := img.NormalizedDifference("B3", "B6")
	require.NoError(t, err)

	assert.InDelta(t, 0.5, nd[0], 1e-12)
	assert.Equal(t, 0.0, nd[1])
	assert.True(t, math.IsNaN(nd[2]))
	assert.InDelta(t, -0.5, nd[3], 1e-12)
}
