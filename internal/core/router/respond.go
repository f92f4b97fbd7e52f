package router

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mohammed-shakir/geojson-viewer/internal/core/httpclient"
	"github.com/mohammed-shakir/geojson-viewer/internal/geojson"
	"github.com/mohammed-shakir/geojson-viewer/internal/logger"
	"github.com/mohammed-shakir/geojson-viewer/internal/session"
)

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg, detail string) {
	writeJSON(w, code, errorBody{Error: msg, Detail: detail})
}

// fail maps domain errors to statuses.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	var tooBig *http.MaxBytesError
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found", "")
	case errors.Is(err, session.ErrFeatureNotFound):
		writeError(w, http.StatusNotFound, "feature not found", "")
	case errors.Is(err, geojson.ErrInvalidDocument):
		writeError(w, http.StatusBadRequest, "invalid document", err.Error())
	case errors.As(err, &tooBig), errors.Is(err, httpclient.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "document too large", "")
	default:
		a.log.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "request_id", logger.RequestID(r.Context()), "err", err)
		writeError(w, http.StatusInternalServerError, "internal error", "")
	}
}
