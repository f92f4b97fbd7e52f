// Package router exposes viewing sessions over HTTP.
package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/geojson-viewer/internal/core/middleware"
	"github.com/mohammed-shakir/geojson-viewer/internal/core/observability"
	"github.com/mohammed-shakir/geojson-viewer/internal/geojson"
	"github.com/mohammed-shakir/geojson-viewer/internal/session"
	"github.com/mohammed-shakir/geojson-viewer/internal/state"
	"github.com/mohammed-shakir/geojson-viewer/internal/timeseries"
)

// Sessions is implemented by session.Registry.
type Sessions interface {
	Create(ctx context.Context) (string, state.State, error)
	Get(ctx context.Context, id string) (state.State, error)
	Dispatch(ctx context.Context, id string, actions ...state.Action) (state.State, error)
	LoadDocument(ctx context.Context, id string, req session.LoadRequest) (state.State, error)
	Series(ctx context.Context, id, featureID string, kind timeseries.Kind) ([]timeseries.Point, error)
	Pick(ctx context.Context, id string, lon, lat float64) (geojson.Collection, state.State, error)
	Delete(ctx context.Context, id string) error
}

// Fetcher downloads a remote document.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, maxBytes int64) ([]byte, error)
}

type API struct {
	sessions Sessions
	fetcher  Fetcher
	maxBytes int64
	log      *slog.Logger
}

func NewAPI(s Sessions, f Fetcher, maxDocumentBytes int64, log *slog.Logger) *API {
	if log == nil {
		log = slog.Default()
	}
	if maxDocumentBytes <= 0 {
		maxDocumentBytes = 64 << 20
	}
	return &API{sessions: s, fetcher: f, maxBytes: maxDocumentBytes, log: log}
}

// Routes registers the session endpoints on r.
func (a *API) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(instrument)

		r.Post("/sessions", a.createSession)
		r.Route("/sessions/{"+middleware.SessionParam+"}", func(r chi.Router) {
			r.Use(middleware.Session)
			r.Get("/", a.getSession)
			r.Delete("/", a.deleteSession)

			r.Get("/document", a.getDocument)
			r.Put("/document", a.putDocument(session.ModeLoad))
			r.Post("/document", a.putDocument(session.ModeAppend))
			r.Post("/document/fetch", a.fetchDocument)

			r.Get("/features", a.listFeatures)
			r.Get("/features/{fid}", a.getFeature)
			r.Get("/features/{fid}/series/{kind}", a.getSeries)

			r.Post("/actions", a.postActions)
			r.Get("/pick", a.pick)
		})
	})
}

// instrument records request metrics labelled by route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
