package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	httpadapter "github.com/couchcryptid/wildfire-water-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/wildfire-water-etl/internal/adapter/kafka"
	"github.com/couchcryptid/wildfire-water-etl/internal/adapter/objectstore"
	"github.com/couchcryptid/wildfire-water-etl/internal/adapter/stac"
	"github.com/couchcryptid/wildfire-water-etl/internal/catalog"
	"github.com/couchcryptid/wildfire-water-etl/internal/config"
	"github.com/couchcryptid/wildfire-water-etl/internal/imagery"
	"github.com/couchcryptid/wildfire-water-etl/internal/observability"
	"github.com/couchcryptid/wildfire-water-etl/internal/pipeline"
	"github.com/couchcryptid/wildfire-water-etl/internal/store"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func (a *app) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Extract every feature of the catalog that has no output yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.run(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

func (a *app) run(ctx context.Context, stdout, stderr io.Writer) error {
	cfg := a.cfg
	if err := cfg.RequireInputs(); err != nil {
		return err
	}

	logger, closeLog := observability.NewLogger(cfg)
	defer closeLog() //nolint:errcheck // nothing left to log to
	metrics := a.newMetrics()

	schema, err := loadSchema(cfg)
	if err != nil {
		return err
	}
	cat, err := catalog.Load(ctx, cfg.CatalogPath, a.geometrySource(cfg.GeometryPath), schema)
	if err != nil {
		return err
	}
	if missing := cat.Missing(); len(missing) > 0 {
		logger.Warn("catalog features without geometry are not processed", "count", len(missing), "ids", missing)
	}
	if dups := cat.Duplicates(); len(dups) > 0 {
		logger.Warn("duplicate catalog rows ignored", "count", len(dups), "ids", dups)
	}

	out, err := store.NewOutputStore(cfg.OutputDir)
	if err != nil {
		return err
	}
	if locks, err := out.Locks(); err == nil && len(locks) > 0 {
		logger.Warn("features locked by another or a killed run", "count", len(locks), "ids", locks,
			"hint", "run 'extract unlock' once no other run is active")
	}
	ledger, err := store.OpenLedger(filepath.Join(cfg.OutputDir, store.LedgerFile))
	if err != nil {
		return err
	}

	engine := a.newEngine(ctx, cfg, logger)
	runID := uuid.NewString()
	runner := pipeline.New(engine, out, ledger, logger, metrics, pipeline.Options{
		Schema:         schema,
		Workers:        cfg.Workers,
		DateWorkers:    cfg.DateWorkers,
		QueryTimeout:   cfg.QueryTimeout,
		ReduceTimeout:  cfg.ReduceTimeout,
		CloudThreshold: cfg.CloudThreshold,
		FailurePolicy:  pipeline.FailurePolicy(cfg.FailurePolicy),
		RunID:          runID,
	})

	features := cat.Features()
	runner.WithProgress(progressbar.NewOptions64(int64(len(features)),
		progressbar.OptionSetWriter(stderr),
		progressbar.OptionSetDescription("extracting"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(stderr) }),
	))

	if cfg.PublishEnabled() {
		w := kafkaadapter.NewWriter(cfg, logger)
		defer func() {
			if err := w.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		runner.WithPublisher(w)
		logger.Info("publishing outcomes", "brokers", strings.Join(cfg.KafkaBrokers, ","), "topic", cfg.KafkaTopic)
	}

	if cfg.MirrorEnabled() {
		m, err := objectstore.NewMirror(objectstore.Options{
			Endpoint:  cfg.ObjectStoreEndpoint,
			Bucket:    cfg.ObjectStoreBucket,
			AccessKey: cfg.ObjectStoreAccessKey,
			SecretKey: cfg.ObjectStoreSecretKey,
			UseSSL:    cfg.ObjectStoreUseSSL,
			Prefix:    string(schema.Kind),
			RunID:     runID,
		}, logger)
		if err != nil {
			return err
		}
		if err := m.EnsureBucket(ctx); err != nil {
			return err
		}
		runner.WithMirror(m)
	}

	if cfg.HTTPAddr != "" {
		srv := httpadapter.NewServer(cfg.HTTPAddr, runner, ledger, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown error", "error", err)
			}
		}()
	}

	logger.Info("catalog loaded",
		"run_id", runID,
		"kind", schema.Kind,
		"features", len(features),
		"output_dir", cfg.OutputDir,
	)
	if _, err := runner.Run(ctx, features); err != nil {
		return fmt.Errorf("extraction interrupted: %w", err)
	}
	fmt.Fprintln(stdout, "All tasks are completed.")
	return nil
}

func (a *app) newEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) *imagery.Engine {
	auth := stac.Auth{
		Token:        cfg.EarthdataToken,
		ClientID:     cfg.EarthdataClientID,
		ClientSecret: cfg.EarthdataClientSecret,
		TokenURL:     cfg.EarthdataTokenURL,
	}
	tokens := auth.TokenSource(ctx)
	client := stac.NewClient(cfg.STACURL, cfg.STACCollection, stac.NewHTTPClient(ctx, tokens, cfg.QueryTimeout), logger)
	return imagery.NewEngine(client, a.backends.NewLoader(tokens, logger), logger, imagery.Options{
		LoadWorkers: cfg.LoadWorkers,
	})
}

// geometrySource reads GeoJSON natively and everything else through the
// vector backend.
func (a *app) geometrySource(path string) catalog.GeometrySource {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		return catalog.GeoJSONSource{Path: path}
	default:
		return a.backends.NewVectorSource(path)
	}
}

func loadSchema(cfg *config.Config) (catalog.Schema, error) {
	schema, err := catalog.SchemaFor(catalog.Kind(cfg.FeatureKind))
	if err != nil {
		return catalog.Schema{}, err
	}
	if cfg.ProfilePath == "" {
		return schema, nil
	}
	return catalog.LoadProfile(cfg.ProfilePath, schema)
}
