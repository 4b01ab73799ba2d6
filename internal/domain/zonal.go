package domain

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// ErrNoData is returned by a zonal reduction when a band has no valid pixel
// inside the footprint.
var ErrNoData = errors.New("no valid pixels in footprint")

// Reducer selects the zonal statistic.
type Reducer string

const (
	Mean   Reducer = "mean"
	Median Reducer = "median"
)

// ReduceRegion computes the reducer over the pixels of img whose centers fall
// inside geom, once per band, in the order of bands.
func ReduceRegion(img Image, geom orb.Geometry, bands []string, r Reducer) ([]float64, error) {
	footprint := img.Grid.Footprint(geom)
	out := make([]float64, len(bands))
	for k, name := range bands {
		b, err := img.Band(name)
		if err != nil {
			return nil, err
		}
		values := make([]float64, 0, len(footprint))
		for _, i := range footprint {
			if !math.IsNaN(b[i]) {
				values = append(values, b[i])
			}
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("band %s of %s: %w", name, img.ID, ErrNoData)
		}
		switch r {
		case Mean:
			out[k] = mean(values)
		case Median:
			out[k] = median(values)
		default:
			return nil, fmt.Errorf("unknown reducer %q", r)
		}
	}
	return out, nil
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// median sorts values in place. Even counts average the two middle values.
func median(values []float64) float64 {
	sort.Float64s(values)
	n := len(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}

// Round rounds v to the given number of decimal digits, half away from zero.
func Round(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}

// RoundValues rounds every value to digits decimals.
func RoundValues(values []float64, digits int) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = Round(v, digits)
	}
	return out
}

// IsDegenerate reports whether every value is zero, which marks a date whose
// pixels were masked out rather than a real measurement.
func IsDegenerate(values []float64) bool {
	for _, v := range values {
		if v != 0 {
			return false
		}
	}
	return true
}
