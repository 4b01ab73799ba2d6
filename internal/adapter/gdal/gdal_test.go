//go:build gdal

package gdal

import (
	"context"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/couchcryptid/wildfire-water-etl/internal/catalog"
	"github.com/couchcryptid/wildfire-water-etl/internal/domain"
	"github.com/couchcryptid/wildfire-water-etl/internal/imagery"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeBand creates a 2x2 EPSG:4326 GeoTIFF over [0,2]x[0,2].
func writeBand(t *testing.T, dir, name string, values []int16, nodata float64) string {
	t.Helper()
	register()
	path := filepath.Join(dir, name)
	ds, err := godal.Create(godal.GTiff, path, 1, godal.Int16, 2, 2)
	require.NoError(t, err)
	require.NoError(t, ds.SetGeoTransform([6]float64{0, 1, 0, 2, 0, -1}))
	sr, err := godal.NewSpatialRefFromEPSG(4326)
	require.NoError(t, err)
	defer sr.Close()
	require.NoError(t, ds.SetSpatialRef(sr))
	band := ds.Bands()[0]
	require.NoError(t, band.SetNoData(nodata))
	require.NoError(t, band.Write(0, 0, values, 2, 2))
	require.NoError(t, ds.Close())
	return path
}

func TestRasterLoader_LoadScalesAndMasksNoData(t *testing.T) {
	dir := t.TempDir()
	scene := imagery.Scene{
		ID:   "HLS.L30.TEST",
		Time: time.Date(2021, 6, 15, 18, 0, 0, 0, time.UTC),
		Assets: map[string]string{
			"B2":    writeBand(t, dir, "B02.tif", []int16{100, 200, -9999, 400}, -9999),
			"Fmask": writeBand(t, dir, "Fmask.tif", []int16{0, 2, 255, 64}, 255),
		},
	}
	grid := domain.Grid{MinX: 0, MaxY: 2, DX: 1, DY: 1, Width: 2, Height: 2}

	img, err := NewRasterLoader(nil, slog.Default()).Load(context.Background(), scene, grid, []string{"Fmask", "B2"})
	require.NoError(t, err)

	b2 := img.Bands["B2"]
	assert.InDelta(t, 0.01, b2[0], 1e-12)
	assert.InDelta(t, 0.04, b2[3], 1e-12)
	assert.True(t, math.IsNaN(b2[2]))

	fmask := img.Bands["Fmask"]
	assert.Equal(t, 2.0, fmask[1])
	assert.True(t, math.IsNaN(fmask[2]))
	assert.Equal(t, scene.Time, img.Time)
}

func TestRasterLoader_MissingAsset(t *testing.T) {
	grid := domain.Grid{MinX: 0, MaxY: 2, DX: 1, DY: 1, Width: 2, Height: 2}
	_, err := NewRasterLoader(nil, slog.Default()).Load(context.Background(), imagery.Scene{ID: "x"}, grid, []string{"B2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no B2 asset")
}

func TestVectorSource_Geometries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lakes.geojson")
	require.NoError(t, os.WriteFile(path, []byte(`{"type":"FeatureCollection","features":[
	  {"type":"Feature","properties":{"Hylak_id":101,"Lake_area":12.5},
	   "geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}}]}`), 0o644))

	geoms, err := NewVectorSource(path).Geometries(context.Background(), catalog.LakeSchema())
	require.NoError(t, err)

	g, ok := geoms["101"]
	require.True(t, ok)
	assert.True(t, g.HasArea)
	assert.Equal(t, 12.5, g.Area)
	assert.Equal(t, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}, g.Geometry.Bound())
}

func TestWarpSwitches(t *testing.T) {
	grid := domain.Grid{MinX: 10, MaxY: 1, DX: 0.5, DY: 0.25, Width: 4, Height: 2}
	assert.Equal(t, []string{
		"-of", "MEM", "-t_srs", "EPSG:4326",
		"-te", "10", "0.5", "12", "1",
		"-ts", "4", "2",
		"-r", "near", "-ot", "Float64", "-dstnodata", "nan",
	}, warpSwitches(grid))
}

func TestDatasetPath(t *testing.T) {
	assert.Equal(t, "/vsicurl/https://data.lpdaac/B02.tif", datasetPath("https://data.lpdaac/B02.tif"))
	assert.Equal(t, "/tmp/B02.tif", datasetPath("/tmp/B02.tif"))
}
