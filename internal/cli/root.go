// Package cli implements the extract command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/couchcryptid/wildfire-water-etl/internal/catalog"
	"github.com/couchcryptid/wildfire-water-etl/internal/config"
	"github.com/couchcryptid/wildfire-water-etl/internal/imagery"
	"github.com/couchcryptid/wildfire-water-etl/internal/observability"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

// Backends supplies the raster and vector readers that need cgo. main wires
// the GDAL implementations.
type Backends struct {
	NewLoader       func(tokens oauth2.TokenSource, logger *slog.Logger) imagery.SceneLoader
	NewVectorSource func(path string) catalog.GeometrySource
}

// flagValues are command-line overrides of the environment configuration.
type flagValues struct {
	envFile    string
	kind       string
	catalog    string
	geometries string
	out        string
	profile    string
	policy     string
	workers    int
}

type app struct {
	backends   Backends
	flags      flagValues
	cfg        *config.Config
	newMetrics func() *observability.Metrics
}

// Execute runs the extract command line.
func Execute(b Backends) error {
	return newApp(b).rootCmd().ExecuteContext(context.Background())
}

func newApp(b Backends) *app {
	return &app{backends: b, newMetrics: observability.NewMetrics}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "extract",
		Short: "Per-feature HLS reflectance extraction around wildfire events",
		Long: `extract queries Harmonized Landsat Sentinel-2 imagery for every lake or
river reach of a wildfire event catalog, masks clouds and non-water pixels,
and writes one text file of per-date median band reflectances per feature.

Configuration comes from the environment (and an optional .env file);
flags override it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	pf.StringVar(&a.flags.kind, "kind", "", "feature kind, lake or river (FEATURE_KIND)")
	pf.StringVar(&a.flags.catalog, "catalog", "", "event catalog CSV (CATALOG_PATH)")
	pf.StringVar(&a.flags.geometries, "geometries", "", "feature geometries, GeoJSON or any OGR vector file (GEOMETRY_PATH)")
	pf.StringVarP(&a.flags.out, "out", "o", "", "output directory (OUTPUT_DIR)")
	pf.StringVar(&a.flags.profile, "profile", "", "YAML schema profile (PROFILE_PATH)")
	pf.StringVar(&a.flags.policy, "policy", "", "failure policy, record or retry (FAILURE_POLICY)")
	pf.IntVarP(&a.flags.workers, "workers", "w", 0, "features processed concurrently (WORKERS)")

	root.AddCommand(a.runCmd(), a.statusCmd(), a.unlockCmd())
	return root
}

func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := loadEnvFile(a.flags.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	a.applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

// applyFlags overrides cfg with every flag set on the command line.
func (a *app) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("kind") {
		cfg.FeatureKind = a.flags.kind
	}
	if f.Changed("catalog") {
		cfg.CatalogPath = a.flags.catalog
	}
	if f.Changed("geometries") {
		cfg.GeometryPath = a.flags.geometries
	}
	if f.Changed("out") {
		cfg.OutputDir = a.flags.out
	}
	if f.Changed("profile") {
		cfg.ProfilePath = a.flags.profile
	}
	if f.Changed("policy") {
		cfg.FailurePolicy = a.flags.policy
	}
	if f.Changed("workers") {
		cfg.Workers = a.flags.workers
	}
}

// loadEnvFile loads path into the environment. A missing file is ignored;
// variables already set win over the file.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
