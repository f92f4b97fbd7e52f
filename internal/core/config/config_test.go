package config

import (
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"ADDR", "STORE_DRIVER", "PICK_H3_RES", "SESSION_TTL", "INGEST_ENABLED", "METRICS_ENABLED", "FETCH_ALLOWED_HOSTS"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()
	if cfg.Addr != ":8090" || cfg.StoreDriver != StoreRedis || cfg.PickH3Res != 7 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.SessionTTL != 24*time.Hour || cfg.MaxDocumentBytes != 64<<20 {
		t.Fatalf("ttl=%v max=%d", cfg.SessionTTL, cfg.MaxDocumentBytes)
	}
	if len(cfg.FetchAllowedHosts) != 0 {
		t.Fatalf("fetch allowlist must default to empty: %v", cfg.FetchAllowedHosts)
	}
	if cfg.Ingest.Enabled || !cfg.Metrics.Enabled || cfg.ViewEvents.Enabled {
		t.Fatalf("toggles: ingest=%v metrics=%v events=%v", cfg.Ingest.Enabled, cfg.Metrics.Enabled, cfg.ViewEvents.Enabled)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("ADDR", ":9999")
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("PICK_H3_RES", "9")
	t.Setenv("SESSION_TTL", "90m")
	t.Setenv("LOG_CONSOLE", "yes")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("VIEW_EVENTS_ENABLED", "true")
	t.Setenv("INGEST_ENABLED", "true")
	t.Setenv("FETCH_ALLOWED_HOSTS", "data.example.com, .tiles.org")

	cfg := FromEnv()
	if cfg.Addr != ":9999" || cfg.StoreDriver != StoreMemory || cfg.PickH3Res != 9 {
		t.Fatalf("unexpected: %+v", cfg)
	}
	if cfg.SessionTTL != 90*time.Minute || !cfg.LogConsole {
		t.Fatalf("ttl=%v console=%v", cfg.SessionTTL, cfg.LogConsole)
	}
	if len(cfg.ViewEvents.Brokers) != 2 || !cfg.ViewEvents.Enabled || !cfg.Ingest.Enabled {
		t.Fatalf("kafka: %+v %+v", cfg.ViewEvents, cfg.Ingest)
	}
	if len(cfg.FetchAllowedHosts) != 2 || cfg.FetchAllowedHosts[1] != ".tiles.org" {
		t.Fatalf("fetch hosts=%q", cfg.FetchAllowedHosts)
	}
}

func TestFromEnv_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("PICK_H3_RES", "22")
	t.Setenv("STORE_DRIVER", "etcd")
	t.Setenv("SESSION_TTL", "soon")
	t.Setenv("MAX_SESSIONS", "many")

	cfg := FromEnv()
	if cfg.PickH3Res != 7 || cfg.StoreDriver != StoreRedis || cfg.SessionTTL != 24*time.Hour || cfg.MaxSessions != 1024 {
		t.Fatalf("fallbacks not applied: %+v", cfg)
	}
}
