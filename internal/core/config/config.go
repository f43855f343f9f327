package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrMissingCredential is returned when a provider API key is not configured.
var ErrMissingCredential = errors.New("missing credential")

type InvalidationCfg struct {
	Enabled bool
	Topic   string
	Brokers string
	GroupID string
}

type LookupEventsCfg struct {
	Enabled bool
	Topic   string
	Brokers string
	Queue   int
}

type MetricsCfg struct {
	Enabled bool
	Addr    string
	Path    string
}

type Config struct {
	Addr       string
	LogLevel   string
	LogConsole bool
	LogSampleN int

	LibraryAPIKey string
	VWorldAPIKey  string

	CatalogBaseURL       string
	CatalogSearchTimeout time.Duration
	AvailabilityTimeout  time.Duration
	CatalogRPS           float64
	CatalogBurst         int

	GeocoderBaseURL string
	GeocoderDomain  string
	GeocoderLayer   string
	GeocoderTimeout time.Duration

	RegionCacheTTL     time.Duration
	RegionCacheRadiusM float64

	AvailabilityMaxConcurrent int

	SearchCache     string
	SearchCacheTTL  time.Duration
	SearchCacheSize int
	RedisAddr       string
	CacheOpTimeout  time.Duration

	Invalidation InvalidationCfg
	LookupEvents LookupEventsCfg

	LogCellRes int

	Metrics MetricsCfg
}

func FromEnv() Config {
	brokers := getenv("KAFKA_BROKERS", "localhost:9092")

	return Config{
		Addr:       getenv("ADDR", ":8090"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogConsole: getbool("LOG_CONSOLE", false),
		LogSampleN: getint("LOG_SAMPLE_N", 0),

		LibraryAPIKey: strings.TrimSpace(os.Getenv("LIBRARY_API_KEY")),
		VWorldAPIKey:  strings.TrimSpace(os.Getenv("VWORLD_API_KEY")),

		CatalogBaseURL:       getenv("CATALOG_BASE_URL", "http://data4library.kr/api"),
		CatalogSearchTimeout: getduration("CATALOG_SEARCH_TIMEOUT", 50*time.Second),
		AvailabilityTimeout:  getduration("AVAILABILITY_TIMEOUT", 3*time.Second),
		CatalogRPS:           getfloat("CATALOG_RPS", 20),
		CatalogBurst:         getint("CATALOG_BURST", 5),

		GeocoderBaseURL: getenv("GEOCODER_BASE_URL", "https://api.vworld.kr/req/data"),
		GeocoderDomain:  getenv("GEOCODER_DOMAIN", ""),
		GeocoderLayer:   getenv("GEOCODER_LAYER", "LT_C_ADSIGG_INFO"),
		GeocoderTimeout: getduration("GEOCODER_TIMEOUT", 10*time.Second),

		RegionCacheTTL:     getduration("REGION_CACHE_TTL", 30*time.Minute),
		RegionCacheRadiusM: getfloat("REGION_CACHE_RADIUS_M", 100),

		AvailabilityMaxConcurrent: getint("AVAILABILITY_MAX_CONCURRENT", 8),

		SearchCache:     strings.ToLower(getenv("SEARCH_CACHE", "none")),
		SearchCacheTTL:  getduration("SEARCH_CACHE_TTL", 10*time.Minute),
		SearchCacheSize: getint("SEARCH_CACHE_SIZE", 1024),
		RedisAddr:       getenv("REDIS_ADDR", "localhost:6379"),
		CacheOpTimeout:  getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),

		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Topic:   getenv("KAFKA_TOPIC", "library-holdings"),
			Brokers: brokers,
			GroupID: getenv("KAFKA_GROUP_ID", "library-locator"),
		},
		LookupEvents: LookupEventsCfg{
			Enabled: getbool("LOOKUP_EVENTS_ENABLED", false),
			Topic:   getenv("LOOKUP_EVENTS_TOPIC", "library-lookups"),
			Brokers: brokers,
			Queue:   getint("LOOKUP_EVENTS_QUEUE", 1024),
		},

		LogCellRes: getint("LOG_CELL_RES", 7),

		Metrics: MetricsCfg{
			Enabled: getbool("METRICS_ENABLED", true),
			Addr:    getenv("METRICS_ADDR", ""),
			Path:    getenv("METRICS_PATH", "/metrics"),
		},
	}
}

// Validate reports configuration that makes the service unusable.
func (c Config) Validate() error {
	var errs []error
	if c.LibraryAPIKey == "" {
		errs = append(errs, fmt.Errorf("%w: LIBRARY_API_KEY", ErrMissingCredential))
	}
	if c.VWorldAPIKey == "" {
		errs = append(errs, fmt.Errorf("%w: VWORLD_API_KEY", ErrMissingCredential))
	}
	switch c.SearchCache {
	case "none", "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("SEARCH_CACHE must be none|memory|redis (got %q)", c.SearchCache))
	}
	if c.AvailabilityMaxConcurrent <= 0 {
		errs = append(errs, errors.New("AVAILABILITY_MAX_CONCURRENT must be > 0"))
	}
	if c.LogCellRes < 0 || c.LogCellRes > 15 {
		errs = append(errs, errors.New("LOG_CELL_RES must be in [0,15]"))
	}
	return errors.Join(errs...)
}

// SplitCSV splits a comma separated list, dropping blanks.
func SplitCSV(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
