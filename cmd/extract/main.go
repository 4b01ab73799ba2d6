// Command extract runs per-feature HLS water reflectance extraction around
// wildfire events.
//
// Usage:
//
//	extract run --kind lake --catalog fires_lakes.csv --geometries HydroLAKES_polys.shp --out output
//	extract status --out output
//	extract unlock --all --out output
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/couchcryptid/wildfire-water-etl/internal/adapter/gdal"
	"github.com/couchcryptid/wildfire-water-etl/internal/catalog"
	"github.com/couchcryptid/wildfire-water-etl/internal/cli"
	"github.com/couchcryptid/wildfire-water-etl/internal/imagery"
	"golang.org/x/oauth2"
)

func main() {
	backends := cli.Backends{
		NewLoader: func(tokens oauth2.TokenSource, logger *slog.Logger) imagery.SceneLoader {
			return gdal.NewRasterLoader(tokens, logger)
		},
		NewVectorSource: func(path string) catalog.GeometrySource {
			return gdal.NewVectorSource(path)
		},
	}
	if err := cli.Execute(backends); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
