package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/mohammed-shakir/geojson-viewer/internal/core/observability"
	"github.com/mohammed-shakir/geojson-viewer/internal/geojson"
	"github.com/mohammed-shakir/geojson-viewer/internal/logger"
	"github.com/mohammed-shakir/geojson-viewer/internal/state"
)

type Mode string

const (
	ModeLoad   Mode = "load"
	ModeAppend Mode = "append"
)

func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeLoad, ModeAppend:
		return Mode(s), true
	case "":
		return ModeLoad, true
	}
	return "", false
}

// Document sources, used as a metrics label.
const (
	SourceHTTP  = "http"
	SourceFetch = "fetch"
	SourceKafka = "kafka"
)

type LoadRequest struct {
	Mode   Mode
	Source string
	Body   []byte
	// CreateMissing opens the session when the id is unknown.
	CreateMissing bool
}

// LoadDocument parses req.Body and loads or appends it. An invalid document
// returns an error wrapping geojson.ErrInvalidDocument and leaves the
// session unchanged.
func (r *Registry) LoadDocument(ctx context.Context, id string, req LoadRequest) (state.State, error) {
	if req.Mode == "" {
		req.Mode = ModeLoad
	}
	lg := logger.FromContext(logger.WithSession(ctx, id), r.log)

	doc, err := geojson.Parse(req.Body)
	if err != nil {
		observability.ObserveDocument(req.Source, string(req.Mode), "invalid", 0)
		lg.Info().Err(err).Str("source", req.Source).Int("bytes", len(req.Body)).Msg("document rejected")
		return state.State{}, err
	}

	var action state.Action = state.Load{Document: doc}
	if req.Mode == ModeAppend {
		action = state.Append{Document: doc}
	}

	st, err := r.update(ctx, id, req.CreateMissing, func(s state.State) (state.State, error) {
		return state.Reduce(s, action), nil
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			observability.ObserveDocument(req.Source, string(req.Mode), "error", 0)
		}
		return state.State{}, fmt.Errorf("%s document: %w", req.Mode, err)
	}

	observability.ObserveDocument(req.Source, string(req.Mode), "ok", len(st.Features))
	lg.Info().
		Str("source", req.Source).
		Str("mode", string(req.Mode)).
		Str("kind", doc.Kind.String()).
		Int("features", len(st.Features)).
		Uint64("version", st.Version).
		Msg("document applied")
	return st, nil
}
