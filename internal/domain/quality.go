package domain

import (
	"math"

	"github.com/paulmach/orb"
)

// QualityBand is the name of the HLS per-pixel quality bitmask band.
const QualityBand = "Fmask"

// Fmask bits that disqualify a pixel.
const (
	CloudBit       = 1 << 1
	CloudShadowBit = 1 << 3
	SnowBit        = 1 << 4
)

// QualityKeep reports whether a quality bitmask value has the cloud,
// cloud-shadow and snow bits all clear. A missing value is never kept.
func QualityKeep(fmask float64) bool {
	if math.IsNaN(fmask) || fmask < 0 {
		return false
	}
	bits := uint16(fmask)
	return bits&CloudBit == 0 && bits&CloudShadowBit == 0 && bits&SnowBit == 0
}

// QualityMask evaluates QualityKeep for every pixel of the image.
func QualityMask(img Image) ([]bool, error) {
	fmask, err := img.Band(QualityBand)
	if err != nil {
		return nil, err
	}
	keep := make([]bool, len(fmask))
	for i, v := range fmask {
		keep[i] = QualityKeep(v)
	}
	return keep, nil
}

// ApplyQualityMask removes cloud, cloud-shadow and snow pixels from every band.
func ApplyQualityMask(img Image) (Image, error) {
	keep, err := QualityMask(img)
	if err != nil {
		return Image{}, err
	}
	return img.UpdateMask(keep), nil
}

// CloudCoverage is the mean of the "bad pixel" indicator over the footprint
// of geom, counting only pixels with a valid quality value. It returns NaN
// when the footprint holds no such pixel.
func CloudCoverage(img Image, geom orb.Geometry) (float64, error) {
	fmask, err := img.Band(QualityBand)
	if err != nil {
		return math.NaN(), err
	}
	var bad, n int
	for _, i := range img.Grid.Footprint(geom) {
		v := fmask[i]
		if math.IsNaN(v) {
			continue
		}
		n++
		if !QualityKeep(v) {
			bad++
		}
	}
	if n == 0 {
		return math.NaN(), nil
	}
	return float64(bad) / float64(n), nil
}
