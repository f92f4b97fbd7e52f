package router

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/geojson-viewer/internal/logger"
	"github.com/mohammed-shakir/geojson-viewer/internal/session"
	"github.com/mohammed-shakir/geojson-viewer/internal/state"
	"github.com/mohammed-shakir/geojson-viewer/internal/viewport"
)

// sessionView is the session summary returned by most endpoints. Features
// are listed separately.
type sessionView struct {
	ID            string          `json:"id"`
	Version       uint64          `json:"version"`
	HasDocument   bool            `json:"has_document"`
	FeatureCount  int             `json:"feature_count"`
	SelectedID    string          `json:"selected_id,omitempty"`
	HighlightedID string          `json:"highlighted_id,omitempty"`
	SearchQuery   string          `json:"search_query"`
	Camera        viewport.Camera `json:"camera"`
	Layout        viewport.Layout `json:"layout"`
}

func viewOf(id string, st state.State) sessionView {
	return sessionView{
		ID:            id,
		Version:       st.Version,
		HasDocument:   st.Document != nil,
		FeatureCount:  len(st.Features),
		SelectedID:    st.SelectedID,
		HighlightedID: st.HighlightedID,
		SearchQuery:   st.SearchQuery,
		Camera:        st.Camera,
		Layout:        st.Layout,
	}
}

func sid(r *http.Request) string { return chi.URLParam(r, "sid") }

func (a *API) createSession(w http.ResponseWriter, r *http.Request) {
	id, st, err := a.sessions.Create(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/sessions/"+id)
	writeJSON(w, http.StatusCreated, viewOf(id, st))
}

func (a *API) getSession(w http.ResponseWriter, r *http.Request) {
	id := sid(r)
	st, err := a.sessions.Get(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(id, st))
}

func (a *API) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := a.sessions.Delete(r.Context(), sid(r)); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// getDocument returns the canonical document used for rendering.
func (a *API) getDocument(w http.ResponseWriter, r *http.Request) {
	st, err := a.sessions.Get(r.Context(), sid(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if st.Document == nil {
		writeError(w, http.StatusNotFound, "no document loaded", "")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("ETag", fmt.Sprintf(`"v%d"`, st.Version))
	if err := writeDocument(w, st); err != nil {
		a.log.WarnContext(r.Context(), "write document", "err", err)
	}
}

func writeDocument(w io.Writer, st state.State) error {
	b, err := st.Document.MarshalJSON()
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func (a *API) putDocument(mode session.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, a.maxBytes))
		if err != nil {
			a.fail(w, r, err)
			return
		}
		a.applyDocument(w, r, session.LoadRequest{Mode: mode, Source: session.SourceHTTP, Body: body})
	}
}

func (a *API) fetchDocument(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target := strings.TrimSpace(q.Get("url"))
	if target == "" {
		writeError(w, http.StatusBadRequest, "missing required parameter: url", "")
		return
	}
	mode, ok := session.ParseMode(q.Get("mode"))
	if !ok {
		writeError(w, http.StatusBadRequest, "mode must be load or append", "")
		return
	}
	if a.fetcher == nil {
		writeError(w, http.StatusNotImplemented, "remote documents are disabled", "")
		return
	}
	// the session must exist before anything is downloaded
	if _, err := a.sessions.Get(r.Context(), sid(r)); err != nil {
		a.fail(w, r, err)
		return
	}

	body, err := a.fetcher.Fetch(r.Context(), target, a.maxBytes)
	if err != nil {
		a.log.InfoContext(logger.WithSession(r.Context(), sid(r)), "document fetch failed", "err", err)
		a.failFetch(w, r, err)
		return
	}
	a.applyDocument(w, r, session.LoadRequest{Mode: mode, Source: session.SourceFetch, Body: body})
}

func (a *API) applyDocument(w http.ResponseWriter, r *http.Request, req session.LoadRequest) {
	id := sid(r)
	st, err := a.sessions.LoadDocument(r.Context(), id, req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(id, st))
}
