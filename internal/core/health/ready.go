package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

type ReadinessReporter interface {
	Readiness() (ready bool, partitions []int32)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

const pingTimeout = time.Second

// Readiness is ready when the session store answers a ping and, if rr is
// set, the ingest consumer owns its partitions.
func Readiness(store Pinger, rr ReadinessReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type resp struct {
			Status     string  `json:"status"`
			Store      string  `json:"store"`
			Ingest     string  `json:"ingest,omitempty"`
			Partitions []int32 `json:"partitions,omitempty"`
		}
		out := resp{Status: "ready", Store: "ok"}
		ready := true

		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			ready = false
			out.Store = err.Error()
		}

		if rr != nil {
			ok, parts := rr.Readiness()
			out.Ingest = "ready"
			if ok {
				out.Partitions = parts
			} else {
				ready = false
				out.Ingest = "not_ready"
			}
		}

		if !ready {
			out.Status = "not_ready"
		}
		w.Header().Set("Content-Type", "application/json")
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}
