package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Storage backends.
const (
	StorageFS    = "fs"
	StorageMinio = "minio"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	BatchSize       int

	Cities []string

	StorageBackend string
	DataDir        string

	// MinIO / S3 configuration.
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// Object keys. Patterns contain a {city} placeholder.
	DeliveryKeyPattern string
	WeatherKeyPattern  string
	EnrichedKeyPattern string
	ExternalKey        string
	OutputKey          string

	SchemaFile string
	MaxRows    int

	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string

	SQLitePath string

	// RunInterval > 0 keeps the service running and repeats the pipeline.
	RunInterval    time.Duration
	PushgatewayURL string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	maxRows, err := parseNonNegativeInt("MAX_ROWS", 0)
	if err != nil {
		return nil, err
	}

	runInterval, err := parseDuration("RUN_INTERVAL", 0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		BatchSize:       batchSize,

		Cities: parseList(sharedcfg.EnvOrDefault("CITIES", "jl,yt,hz,cq,sh")),

		StorageBackend: sharedcfg.EnvOrDefault("STORAGE_BACKEND", StorageFS),
		DataDir:        sharedcfg.EnvOrDefault("DATA_DIR", "data"),

		MinioEndpoint:  sharedcfg.EnvOrDefault("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    sharedcfg.EnvOrDefault("MINIO_BUCKET", "delivery-data"),
		MinioUseSSL:    os.Getenv("MINIO_USE_SSL") == "true",

		DeliveryKeyPattern: sharedcfg.EnvOrDefault("DELIVERY_KEY_PATTERN", "Pickup_and_delivery_data/delivery/delivery_{city}.csv"),
		WeatherKeyPattern:  sharedcfg.EnvOrDefault("WEATHER_KEY_PATTERN", "Pickup_and_delivery_data/weather/{city}_weather.csv"),
		EnrichedKeyPattern: sharedcfg.EnvOrDefault("ENRICHED_KEY_PATTERN", "Pickup_and_delivery_data/Enriched/enriched_{city}.csv"),
		ExternalKey:        sharedcfg.EnvOrDefault("EXTERNAL_KEY", "amazon_delivery.csv"),
		OutputKey:          sharedcfg.EnvOrDefault("OUTPUT_KEY", "Pickup_and_delivery_data/Final/aligned_deliveries.csv"),

		SchemaFile: os.Getenv("SCHEMA_FILE"),
		MaxRows:    maxRows,

		KafkaEnabled: os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "canonical-deliveries"),

		SQLitePath: os.Getenv("SQLITE_PATH"),

		RunInterval:    runInterval,
		PushgatewayURL: os.Getenv("PUSHGATEWAY_URL"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Cities) == 0 {
		return errors.New("CITIES is required")
	}
	switch c.StorageBackend {
	case StorageFS:
		if c.DataDir == "" {
			return errors.New("DATA_DIR is required for the fs storage backend")
		}
	case StorageMinio:
		if c.MinioAccessKey == "" || c.MinioSecretKey == "" {
			return errors.New("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required for the minio storage backend")
		}
		if c.MinioBucket == "" {
			return errors.New("MINIO_BUCKET is required")
		}
	default:
		return fmt.Errorf("invalid STORAGE_BACKEND %q: must be %s or %s", c.StorageBackend, StorageFS, StorageMinio)
	}
	for name, pattern := range map[string]string{
		"DELIVERY_KEY_PATTERN": c.DeliveryKeyPattern,
		"WEATHER_KEY_PATTERN":  c.WeatherKeyPattern,
		"ENRICHED_KEY_PATTERN": c.EnrichedKeyPattern,
	} {
		if !strings.Contains(pattern, "{city}") {
			return fmt.Errorf("%s must contain {city}", name)
		}
	}
	if c.ExternalKey == "" {
		return errors.New("EXTERNAL_KEY is required")
	}
	if c.OutputKey == "" {
		return errors.New("OUTPUT_KEY is required")
	}
	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if c.KafkaTopic == "" {
			return errors.New("KAFKA_TOPIC is required when KAFKA_ENABLED is true")
		}
	}
	return nil
}

func parseList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseNonNegativeInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative integer", key, s)
	}
	return n, nil
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return d, nil
}
