// Package gdal loads HLS band rasters and feature shapefiles through GDAL.
package gdal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/couchcryptid/wildfire-water-etl/internal/domain"
	"github.com/couchcryptid/wildfire-water-etl/internal/imagery"
	"golang.org/x/oauth2"
)

// ReflectanceScale converts stored HLS surface reflectance integers to
// reflectance.
const ReflectanceScale = 0.0001

var registerOnce sync.Once

func register() {
	registerOnce.Do(godal.RegisterAll)
}

// RasterLoader implements imagery.SceneLoader by warping each band asset
// onto the feature grid in geographic coordinates.
type RasterLoader struct {
	tokens oauth2.TokenSource
	logger *slog.Logger
}

// NewRasterLoader creates a loader. tokens may be nil for public assets.
func NewRasterLoader(tokens oauth2.TokenSource, logger *slog.Logger) *RasterLoader {
	register()
	return &RasterLoader{tokens: tokens, logger: logger}
}

// Load implements imagery.SceneLoader.
func (l *RasterLoader) Load(ctx context.Context, scene imagery.Scene, grid domain.Grid, bands []string) (domain.Image, error) {
	cfg, err := l.config()
	if err != nil {
		return domain.Image{}, err
	}

	img := domain.Image{
		ID:    scene.ID,
		Time:  scene.Time,
		Grid:  grid,
		Bands: make(map[string][]float64, len(bands)),
	}
	for _, band := range bands {
		if err := ctx.Err(); err != nil {
			return domain.Image{}, err
		}
		href, ok := scene.Assets[band]
		if !ok {
			return domain.Image{}, fmt.Errorf("scene %s has no %s asset", scene.ID, band)
		}
		values, err := l.readBand(href, grid, cfg)
		if err != nil {
			return domain.Image{}, fmt.Errorf("band %s: %w", band, err)
		}
		if band != domain.QualityBand {
			for i, v := range values {
				values[i] = v * ReflectanceScale
			}
		}
		img.Bands[band] = values
	}
	return img, nil
}

func (l *RasterLoader) readBand(href string, grid domain.Grid, cfg []string) ([]float64, error) {
	src, err := godal.Open(datasetPath(href), godal.ConfigOption(cfg...), godal.ErrLogger(errHandler(l.logger)))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", href, err)
	}
	defer src.Close()

	warped, err := src.Warp("", warpSwitches(grid), godal.ConfigOption(cfg...), godal.ErrLogger(errHandler(l.logger)))
	if err != nil {
		return nil, fmt.Errorf("warp %s: %w", href, err)
	}
	defer warped.Close()

	rasterBands := warped.Bands()
	if len(rasterBands) == 0 {
		return nil, fmt.Errorf("%s has no raster band", href)
	}
	b := rasterBands[0]
	values := make([]float64, grid.Len())
	if err := b.Read(0, 0, values, grid.Width, grid.Height); err != nil {
		return nil, fmt.Errorf("read %s: %w", href, err)
	}
	if nodata, ok := b.NoData(); ok && !math.IsNaN(nodata) {
		for i, v := range values {
			if v == nodata {
				values[i] = math.NaN()
			}
		}
	}
	return values, nil
}

func (l *RasterLoader) config() ([]string, error) {
	cfg := []string{
		"GDAL_DISABLE_READDIR_ON_OPEN=EMPTY_DIR",
		"CPL_VSIL_CURL_ALLOWED_EXTENSIONS=.tif,.TIF",
	}
	if l.tokens == nil {
		return cfg, nil
	}
	tok, err := l.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("earthdata token: %w", err)
	}
	return append(cfg, "GDAL_HTTP_HEADERS=Authorization: Bearer "+tok.AccessToken), nil
}

// datasetPath routes remote assets through GDAL's HTTP virtual file system.
func datasetPath(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return "/vsicurl/" + href
	}
	return href
}

// warpSwitches resamples onto grid in EPSG:4326 with missing pixels as NaN.
func warpSwitches(grid domain.Grid) []string {
	b := grid.Bound()
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return []string{
		"-of", "MEM",
		"-t_srs", "EPSG:4326",
		"-te", f(b.Min.X()), f(b.Min.Y()), f(b.Max.X()), f(b.Max.Y()),
		"-ts", strconv.Itoa(grid.Width), strconv.Itoa(grid.Height),
		"-r", "near",
		"-ot", "Float64",
		"-dstnodata", "nan",
	}
}

// errHandler downgrades GDAL warnings to debug logs and fails on errors.
func errHandler(logger *slog.Logger) godal.ErrorHandler {
	return func(ec godal.ErrorCategory, code int, msg string) error {
		if ec <= godal.CE_Warning {
			logger.Debug("gdal warning", "code", code, "msg", msg)
			return nil
		}
		return errors.New(msg)
	}
}
