package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/geojson-viewer/internal/ingest"
)

const (
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

type ViewEventsCfg struct {
	Enabled   bool
	Brokers   []string
	Topic     string
	QueueSize int
}

type MetricsCfg struct {
	Enabled bool
	Path    string
}

type Config struct {
	Addr       string
	LogLevel   string
	LogConsole bool
	LogSampleN int

	StoreDriver    string
	RedisAddr      string
	StoreOpTimeout time.Duration
	MemStoreSize   int

	SessionTTL         time.Duration
	MaxSessions        int
	SeriesCacheSize    int
	PickH3Res          int
	MaxCellsPerFeature int

	MaxDocumentBytes  int64
	FetchTimeout      time.Duration
	// hosts remote documents may come from; empty disables fetching
	FetchAllowedHosts []string

	Ingest     ingest.Config
	ViewEvents ViewEventsCfg
	Metrics    MetricsCfg
}

func FromEnv() Config {
	res := getint("PICK_H3_RES", 7)
	if res < 0 || res > 15 {
		res = 7
	}

	driver := strings.ToLower(getenv("STORE_DRIVER", StoreRedis))
	if driver != StoreRedis && driver != StoreMemory {
		driver = StoreRedis
	}

	brokers := ingest.Split(getenv("KAFKA_BROKERS", "localhost:9092"))

	return Config{
		Addr:       getenv("ADDR", ":8090"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogConsole: getbool("LOG_CONSOLE", false),
		LogSampleN: getint("LOG_SAMPLE_N", 0),

		StoreDriver:    driver,
		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		StoreOpTimeout: getduration("STORE_OP_TIMEOUT", 2*time.Second),
		MemStoreSize:   getint("MEM_STORE_SIZE", 8192),

		SessionTTL:         getduration("SESSION_TTL", 24*time.Hour),
		MaxSessions:        getint("MAX_SESSIONS", 1024),
		SeriesCacheSize:    getint("SERIES_CACHE_SIZE", 4096),
		PickH3Res:          res,
		MaxCellsPerFeature: getint("PICK_MAX_CELLS", 4096),

		MaxDocumentBytes:  int64(getint("MAX_DOCUMENT_BYTES", 64<<20)),
		FetchTimeout:      getduration("FETCH_TIMEOUT", 30*time.Second),
		FetchAllowedHosts: ingest.Split(getenv("FETCH_ALLOWED_HOSTS", "")),

		Ingest: ingest.FromEnv(),
		ViewEvents: ViewEventsCfg{
			Enabled:   getbool("VIEW_EVENTS_ENABLED", false),
			Brokers:   brokers,
			Topic:     getenv("VIEW_EVENTS_TOPIC", "viewer.selections"),
			QueueSize: getint("VIEW_EVENTS_QUEUE", 1024),
		},
		Metrics: MetricsCfg{
			Enabled: getbool("METRICS_ENABLED", true),
			Path:    getenv("METRICS_PATH", "/metrics"),
		},
	}
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

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
