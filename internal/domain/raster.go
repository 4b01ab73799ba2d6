package domain

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// metersPerDegree is the length of one degree of latitude on the WGS-84
// ellipsoid, rounded.
const metersPerDegree = 111_320.0

// ErrGridMismatch is returned when images that must share a pixel grid do not.
var ErrGridMismatch = errors.New("images are not on the same grid")

// Grid is a north-up raster grid in WGS-84 degrees. Pixel (col, row) covers
// [MinX+col*DX, MinX+(col+1)*DX) x (MaxY-(row+1)*DY, MaxY-row*DY].
type Grid struct {
	MinX   float64 `json:"min_x"`
	MaxY   float64 `json:"max_y"`
	DX     float64 `json:"dx"`
	DY     float64 `json:"dy"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
}

// NewGrid covers bound with square pixels of scale meters. The longitude
// step is widened by the cosine of the bound's central latitude so pixels
// stay roughly square on the ground.
func NewGrid(bound orb.Bound, scale float64) Grid {
	dy := scale / metersPerDegree
	lat := (bound.Min.Lat() + bound.Max.Lat()) / 2
	dx := dy / math.Max(math.Cos(lat*math.Pi/180), 1e-6)

	width := int(math.Ceil((bound.Max.Lon() - bound.Min.Lon()) / dx))
	height := int(math.Ceil((bound.Max.Lat() - bound.Min.Lat()) / dy))
	return Grid{
		MinX:   bound.Min.Lon(),
		MaxY:   bound.Max.Lat(),
		DX:     dx,
		DY:     dy,
		Width:  max(width, 1),
		Height: max(height, 1),
	}
}

// Len is the number of pixels in the grid.
func (g Grid) Len() int { return g.Width * g.Height }

// Bound is the geographic extent of the grid.
func (g Grid) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{g.MinX, g.MaxY - float64(g.Height)*g.DY},
		Max: orb.Point{g.MinX + float64(g.Width)*g.DX, g.MaxY},
	}
}

// Center returns the coordinate of the center of pixel i (row-major index).
func (g Grid) Center(i int) orb.Point {
	col, row := i%g.Width, i/g.Width
	return orb.Point{
		g.MinX + (float64(col)+0.5)*g.DX,
		g.MaxY - (float64(row)+0.5)*g.DY,
	}
}

// Footprint returns the indices of the pixels whose centers fall inside geom.
// Supported geometries are Polygon, MultiPolygon, Bound and Collection.
func (g Grid) Footprint(geom orb.Geometry) []int {
	if geom == nil {
		return nil
	}
	bound := geom.Bound()
	var idx []int
	for i := range g.Len() {
		p := g.Center(i)
		if !bound.Contains(p) {
			continue
		}
		if contains(geom, p) {
			idx = append(idx, i)
		}
	}
	return idx
}

func contains(geom orb.Geometry, p orb.Point) bool {
	switch v := geom.(type) {
	case orb.Polygon:
		return planar.PolygonContains(v, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(v, p)
	case orb.Bound:
		return v.Contains(p)
	case orb.Ring:
		return planar.RingContains(v, p)
	case orb.Collection:
		for _, c := range v {
			if contains(c, p) {
				return true
			}
		}
	}
	return false
}

// Image is one acquisition (or one date composite) resampled onto a Grid.
// Every band holds Grid.Len() values in row-major order; NaN marks a masked
// pixel.
type Image struct {
	ID   string
	Time time.Time
	Grid Grid

	Bands map[string][]float64

	// Date is the YYYY-MM-DD label of a composite. Empty for raw scenes.
	Date string
	// Sources counts the scenes averaged into a composite.
	Sources int
	// CloudCoverage is the fraction of footprint pixels flagged by the
	// quality bitmask, set by the coverage filter.
	CloudCoverage float64
}

// Band returns the named band or an error when it is missing or sized wrong.
func (img Image) Band(name string) ([]float64, error) {
	b, ok := img.Bands[name]
	if !ok {
		return nil, fmt.Errorf("image %s has no band %q", img.ID, name)
	}
	if len(b) != img.Grid.Len() {
		return nil, fmt.Errorf("image %s band %q has %d pixels, grid has %d", img.ID, name, len(b), img.Grid.Len())
	}
	return b, nil
}

// Clone deep-copies the band data so masking never aliases the input.
func (img Image) Clone() Image {
	out := img
	out.Bands = make(map[string][]float64, len(img.Bands))
	for name, b := range img.Bands {
		out.Bands[name] = append([]float64(nil), b...)
	}
	return out
}

// UpdateMask marks every pixel where keep is false as missing in all bands.
func (img Image) UpdateMask(keep []bool) Image {
	out := img.Clone()
	for _, b := range out.Bands {
		for i := range b {
			if i < len(keep) && !keep[i] {
				b[i] = math.NaN()
			}
		}
	}
	return out
}

// NormalizedDifference computes (a - b) / (a + b) per pixel. A missing input
// gives a missing output; a zero denominator gives 0.
func (img Image) NormalizedDifference(a, b string) ([]float64, error) {
	ba, err := img.Band(a)
	if err != nil {
		return nil, err
	}
	bb, err := img.Band(b)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(ba))
	for i := range ba {
		switch {
		case math.IsNaN(ba[i]) || math.IsNaN(bb[i]):
			out[i] = math.NaN()
		case ba[i]+bb[i] == 0:
			out[i] = 0
		default:
			out[i] = (ba[i] - bb[i]) / (ba[i] + bb[i])
		}
	}
	return out, nil
}
