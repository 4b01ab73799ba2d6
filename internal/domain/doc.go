// Package domain models the water-quality extraction for wildfire-affected
// lakes and river reaches from Harmonized Landsat Sentinel-2 (HLS) imagery.
//
// # Data Source
//
// Scenes come from the NASA HLS L30 v2.0 collection (Landsat 8/9 OLI surface
// reflectance on a 30 m grid). Each scene carries the spectral bands B1..B7
// and a per-pixel quality bitmask band named Fmask. The adapters resample
// every scene onto a feature-specific [Grid] so that scenes of one feature
// line up pixel for pixel.
//
// # Missing Pixels
//
// A masked pixel is stored as NaN in every band of an [Image]. Reductions
// (mean composites, zonal medians, cloud coverage) skip NaN values, so a
// masked pixel is treated as missing, never as zero.
//
// # Quality Bitmask
//
//	bit 1  cloud
//	bit 3  cloud shadow
//	bit 4  snow / ice
//
// A pixel is usable only when all three bits are clear. See [QualityKeep].
//
// # Water Pixels
//
// The modified normalized difference water index
//
//	MNDWI = (B3 - B6) / (B3 + B6)
//
// classifies a pixel as water when MNDWI > 0. See [ApplyWaterMask].
//
// # Date Composites
//
// Overlapping path/rows produce several acquisitions on one calendar day.
// They are averaged into one composite per UTC date string (YYYY-MM-DD),
// stamped at midnight of that date. See [CompositeByDate].
//
// # Output Lines
//
// One line per retained composite:
//
//	2020-03-01 2020-03-10 1234 2020-04-02 [0.0123,0.0456,0.0789,0.1011,0.1213,0.1415] 1.27
//
// event start, event end, feature id, composite date, the rounded band medians
// (4 decimals) and the seconds spent extracting that date (2 decimals).
// A job that failed at the feature level writes the single line
//
//	Error: <message>
package domain
