package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// DateString is the UTC calendar date of an acquisition, the grouping key
// for same-day deduplication.
func DateString(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// CompositeByDate reduces same-day acquisitions to one pixel-wise mean
// composite per distinct date. Composites are returned in ascending date
// order. An empty input yields an empty result, not an error.
//
// Bands are averaged only over non-missing values; a pixel missing in every
// image of a date stays missing. Only bands present in every image of a date
// are kept.
func CompositeByDate(images []Image) ([]Image, error) {
	if len(images) == 0 {
		return nil, nil
	}

	groups := make(map[string][]Image)
	for _, img := range images {
		if img.Grid != images[0].Grid {
			return nil, fmt.Errorf("%w: %s vs %s", ErrGridMismatch, img.ID, images[0].ID)
		}
		date := DateString(img.Time)
		groups[date] = append(groups[date], img)
	}

	dates := make([]string, 0, len(groups))
	for d := range groups {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	composites := make([]Image, 0, len(dates))
	for _, d := range dates {
		c, err := meanComposite(d, groups[d])
		if err != nil {
			return nil, err
		}
		composites = append(composites, c)
	}
	return composites, nil
}

func meanComposite(date string, group []Image) (Image, error) {
	midnight, err := ParseDate(date)
	if err != nil {
		return Image{}, err
	}

	grid := group[0].Grid
	bands := make(map[string][]float64)
	for name := range group[0].Bands {
		if !inAll(group, name) {
			continue
		}
		sum := make([]float64, grid.Len())
		n := make([]int, grid.Len())
		for _, img := range group {
			b, err := img.Band(name)
			if err != nil {
				return Image{}, err
			}
			for i, v := range b {
				if math.IsNaN(v) {
					continue
				}
				sum[i] += v
				n[i]++
			}
		}
		mean := make([]float64, grid.Len())
		for i := range mean {
			if n[i] == 0 {
				mean[i] = math.NaN()
				continue
			}
			mean[i] = sum[i] / float64(n[i])
		}
		bands[name] = mean
	}

	return Image{
		ID:      "composite-" + date,
		Time:    midnight,
		Grid:    grid,
		Bands:   bands,
		Date:    date,
		Sources: len(group),
	}, nil
}

func inAll(group []Image, band string) bool {
	for _, img := range group {
		if _, ok := img.Bands[band]; !ok {
			return false
		}
	}
	return true
}
