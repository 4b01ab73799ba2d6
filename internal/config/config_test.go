package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "lake", cfg.FeatureKind)
	assert.Equal(t, "output", cfg.OutputDir)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, 4, cfg.DateWorkers)
	assert.Equal(t, 4, cfg.LoadWorkers)
	assert.Equal(t, 5*time.Minute, cfg.QueryTimeout)
	assert.Equal(t, 2*time.Minute, cfg.ReduceTimeout)
	assert.Equal(t, 0.5, cfg.CloudThreshold)
	assert.Equal(t, PolicyRecord, cfg.FailurePolicy)
	assert.Equal(t, "https://cmr.earthdata.nasa.gov/stac/LPCLOUD", cfg.STACURL)
	assert.Equal(t, "HLSL30_2.0", cfg.STACCollection)
	assert.Empty(t, cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.PublishEnabled())
	assert.False(t, cfg.MirrorEnabled())
	assert.True(t, cfg.ObjectStoreUseSSL)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("FEATURE_KIND", "river")
	t.Setenv("CATALOG_PATH", "reach_id_dates.csv")
	t.Setenv("GEOMETRY_PATH", "reaches.shp")
	t.Setenv("OUTPUT_DIR", "/data/River")
	t.Setenv("WORKERS", "8")
	t.Setenv("DATE_WORKERS", "2")
	t.Setenv("QUERY_TIMEOUT", "90s")
	t.Setenv("CLOUD_THRESHOLD", "0.3")
	t.Setenv("FAILURE_POLICY", "retry")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("OBJECT_STORE_ENDPOINT", "minio:9000")
	t.Setenv("OBJECT_STORE_ACCESS_KEY", "access")
	t.Setenv("OBJECT_STORE_SECRET_KEY", "secret")
	t.Setenv("OBJECT_STORE_USE_SSL", "false")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.RequireInputs())

	assert.Equal(t, "river", cfg.FeatureKind)
	assert.Equal(t, "/data/River", cfg.OutputDir)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 2, cfg.DateWorkers)
	assert.Equal(t, 90*time.Second, cfg.QueryTimeout)
	assert.Equal(t, 0.3, cfg.CloudThreshold)
	assert.Equal(t, PolicyRetry, cfg.FailurePolicy)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.PublishEnabled())
	assert.True(t, cfg.MirrorEnabled())
	assert.False(t, cfg.ObjectStoreUseSSL)
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := map[string]string{
		"WORKERS":              "0",
		"DATE_WORKERS":         "many",
		"QUERY_TIMEOUT":        "-1s",
		"REDUCE_TIMEOUT":       "soon",
		"CLOUD_THRESHOLD":      "half",
		"OBJECT_STORE_USE_SSL": "maybe",
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(name, value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), name)
		})
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"kind", map[string]string{"FEATURE_KIND": "ocean"}, "FEATURE_KIND"},
		{"threshold out of range", map[string]string{"CLOUD_THRESHOLD": "1.5"}, "CLOUD_THRESHOLD"},
		{"policy", map[string]string{"FAILURE_POLICY": "ignore"}, "FAILURE_POLICY"},
		{"client id without secret", map[string]string{"EARTHDATA_CLIENT_ID": "id"}, "EARTHDATA_CLIENT_SECRET"},
		{"client credentials without token url", map[string]string{
			"EARTHDATA_CLIENT_ID": "id", "EARTHDATA_CLIENT_SECRET": "secret",
		}, "EARTHDATA_TOKEN_URL"},
		{"object store without keys", map[string]string{"OBJECT_STORE_ENDPOINT": "minio:9000"}, "OBJECT_STORE_ACCESS_KEY"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestRequireInputs(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	err = cfg.RequireInputs()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CATALOG_PATH")
	assert.Contains(t, err.Error(), "GEOMETRY_PATH")
}
