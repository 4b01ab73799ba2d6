package domain

// Bands used for the water index.
const (
	GreenBand = "B3"
	SWIR1Band = "B6"
)

// WaterMask classifies pixels as water where the normalized difference of
// the green and SWIR1 bands (MNDWI) is strictly positive.
func WaterMask(img Image, green, swir string) ([]bool, error) {
	mndwi, err := img.NormalizedDifference(green, swir)
	if err != nil {
		return nil, err
	}
	water := make([]bool, len(mndwi))
	for i, v := range mndwi {
		// NaN > 0 is false, so missing pixels stay excluded.
		water[i] = v > 0
	}
	return water, nil
}

// ApplyWaterMask restricts every band to water pixels.
func ApplyWaterMask(img Image, green, swir string) (Image, error) {
	water, err := WaterMask(img, green, swir)
	if err != nil {
		return Image{}, err
	}
	return img.UpdateMask(water), nil
}
