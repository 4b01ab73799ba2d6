package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Failure policies for features whose imagery query fails.
const (
	PolicyRecord = "record"
	PolicyRetry  = "retry"
)

// Config holds all extraction settings, populated from environment variables.
type Config struct {
	FeatureKind  string
	CatalogPath  string
	GeometryPath string
	OutputDir    string
	ProfilePath  string

	Workers        int
	DateWorkers    int
	LoadWorkers    int
	QueryTimeout   time.Duration
	ReduceTimeout  time.Duration
	CloudThreshold float64
	FailurePolicy  string

	// Imagery backend.
	STACURL               string
	STACCollection        string
	EarthdataToken        string
	EarthdataClientID     string
	EarthdataClientSecret string
	EarthdataTokenURL     string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	LogFile         string
	ShutdownTimeout time.Duration

	// Outcome events. Empty brokers disable publishing.
	KafkaBrokers []string
	KafkaTopic   string

	// Output mirror. Empty endpoint disables mirroring.
	ObjectStoreEndpoint  string
	ObjectStoreBucket    string
	ObjectStoreAccessKey string
	ObjectStoreSecretKey string
	ObjectStoreUseSSL    bool
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	var errs []error
	workers := parsePositiveInt("WORKERS", 1, &errs)
	dateWorkers := parsePositiveInt("DATE_WORKERS", 4, &errs)
	loadWorkers := parsePositiveInt("LOAD_WORKERS", 4, &errs)
	queryTimeout := parsePositiveDuration("QUERY_TIMEOUT", "5m", &errs)
	reduceTimeout := parsePositiveDuration("REDUCE_TIMEOUT", "2m", &errs)
	cloudThreshold := parseFloat("CLOUD_THRESHOLD", 0.5, &errs)
	useSSL := parseBool("OBJECT_STORE_USE_SSL", true, &errs)
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}

	cfg := &Config{
		FeatureKind:  sharedcfg.EnvOrDefault("FEATURE_KIND", "lake"),
		CatalogPath:  os.Getenv("CATALOG_PATH"),
		GeometryPath: os.Getenv("GEOMETRY_PATH"),
		OutputDir:    sharedcfg.EnvOrDefault("OUTPUT_DIR", "output"),
		ProfilePath:  os.Getenv("PROFILE_PATH"),

		Workers:        workers,
		DateWorkers:    dateWorkers,
		LoadWorkers:    loadWorkers,
		QueryTimeout:   queryTimeout,
		ReduceTimeout:  reduceTimeout,
		CloudThreshold: cloudThreshold,
		FailurePolicy:  sharedcfg.EnvOrDefault("FAILURE_POLICY", PolicyRecord),

		STACURL:               sharedcfg.EnvOrDefault("STAC_URL", "https://cmr.earthdata.nasa.gov/stac/LPCLOUD"),
		STACCollection:        sharedcfg.EnvOrDefault("STAC_COLLECTION", "HLSL30_2.0"),
		EarthdataToken:        os.Getenv("EARTHDATA_TOKEN"),
		EarthdataClientID:     os.Getenv("EARTHDATA_CLIENT_ID"),
		EarthdataClientSecret: os.Getenv("EARTHDATA_CLIENT_SECRET"),
		EarthdataTokenURL:     os.Getenv("EARTHDATA_TOKEN_URL"),

		HTTPAddr:        os.Getenv("HTTP_ADDR"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "text"),
		LogFile:         os.Getenv("LOG_FILE"),
		ShutdownTimeout: shutdownTimeout,

		KafkaBrokers: brokers,
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "wildfire-water-outcomes"),

		ObjectStoreEndpoint:  os.Getenv("OBJECT_STORE_ENDPOINT"),
		ObjectStoreBucket:    sharedcfg.EnvOrDefault("OBJECT_STORE_BUCKET", "wildfire-water"),
		ObjectStoreAccessKey: os.Getenv("OBJECT_STORE_ACCESS_KEY"),
		ObjectStoreSecretKey: os.Getenv("OBJECT_STORE_SECRET_KEY"),
		ObjectStoreUseSSL:    useSSL,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that can also be changed by command-line flags.
func (c *Config) Validate() error {
	var errs []error
	if c.FeatureKind != "lake" && c.FeatureKind != "river" {
		errs = append(errs, fmt.Errorf("FEATURE_KIND must be lake or river, got %q", c.FeatureKind))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("OUTPUT_DIR is required"))
	}
	if c.Workers <= 0 {
		errs = append(errs, errors.New("WORKERS must be positive"))
	}
	if c.CloudThreshold <= 0 || c.CloudThreshold > 1 {
		errs = append(errs, errors.New("CLOUD_THRESHOLD must be in (0, 1]"))
	}
	if c.FailurePolicy != PolicyRecord && c.FailurePolicy != PolicyRetry {
		errs = append(errs, fmt.Errorf("FAILURE_POLICY must be %s or %s, got %q", PolicyRecord, PolicyRetry, c.FailurePolicy))
	}
	if (c.EarthdataClientID != "") != (c.EarthdataClientSecret != "") {
		errs = append(errs, errors.New("EARTHDATA_CLIENT_ID and EARTHDATA_CLIENT_SECRET must be set together"))
	}
	if c.EarthdataClientID != "" && c.EarthdataTokenURL == "" {
		errs = append(errs, errors.New("EARTHDATA_TOKEN_URL is required with client credentials"))
	}
	if c.ObjectStoreEndpoint != "" && (c.ObjectStoreAccessKey == "" || c.ObjectStoreSecretKey == "") {
		errs = append(errs, errors.New("OBJECT_STORE_ENDPOINT requires OBJECT_STORE_ACCESS_KEY and OBJECT_STORE_SECRET_KEY"))
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set"))
	}
	return errors.Join(errs...)
}

// RequireInputs checks the settings a run needs beyond Validate.
func (c *Config) RequireInputs() error {
	var errs []error
	if c.CatalogPath == "" {
		errs = append(errs, errors.New("CATALOG_PATH is required"))
	}
	if c.GeometryPath == "" {
		errs = append(errs, errors.New("GEOMETRY_PATH is required"))
	}
	return errors.Join(errs...)
}

// PublishEnabled reports whether outcome events go to Kafka.
func (c *Config) PublishEnabled() bool { return len(c.KafkaBrokers) > 0 }

// MirrorEnabled reports whether output files are mirrored to object storage.
func (c *Config) MirrorEnabled() bool { return c.ObjectStoreEndpoint != "" }

func parsePositiveInt(name string, def int, errs *[]error) int {
	s := os.Getenv(name)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		*errs = append(*errs, fmt.Errorf("invalid %s: %q", name, s))
		return def
	}
	return n
}

func parsePositiveDuration(name, def string, errs *[]error) time.Duration {
	s := sharedcfg.EnvOrDefault(name, def)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		*errs = append(*errs, fmt.Errorf("invalid %s: %q", name, s))
		return 0
	}
	return d
}

func parseFloat(name string, def float64, errs *[]error) float64 {
	s := os.Getenv(name)
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %q", name, s))
		return def
	}
	return v
}

func parseBool(name string, def bool, errs *[]error) bool {
	s := os.Getenv(name)
	if s == "" {
		return def
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %q", name, s))
		return def
	}
	return v
}
