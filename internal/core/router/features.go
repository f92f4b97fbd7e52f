package router

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/geojson-viewer/internal/bounds"
	"github.com/mohammed-shakir/geojson-viewer/internal/core/httpclient"
	"github.com/mohammed-shakir/geojson-viewer/internal/geojson"
	"github.com/mohammed-shakir/geojson-viewer/internal/search"
	"github.com/mohammed-shakir/geojson-viewer/internal/state"
	"github.com/mohammed-shakir/geojson-viewer/internal/style"
	"github.com/mohammed-shakir/geojson-viewer/internal/timeseries"
)

type featureSummary struct {
	ID    geojson.FeatureID `json:"id"`
	Label string            `json:"label"`
	Style style.Style       `json:"style"`
	// [minLon, minLat, maxLon, maxLat]
	BBox []float64 `json:"bbox,omitempty"`
}

type featureDetail struct {
	featureSummary
	Properties []search.Property `json:"properties"`
	Feature    geojson.Feature   `json:"feature"`
}

func bbox(b orb.Bound) []float64 {
	return []float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()}
}

func summarize(st state.State, f geojson.Feature) featureSummary {
	s := featureSummary{
		ID:    f.ID,
		Label: search.Label(f),
		Style: style.Resolve(f, st.SelectedID, st.HighlightedID),
	}
	if b, ok := bounds.Of(f); ok {
		s.BBox = bbox(b)
	}
	return s
}

func summaries(st state.State, fs geojson.Collection) []featureSummary {
	out := make([]featureSummary, 0, len(fs))
	for _, f := range fs {
		out = append(out, summarize(st, f))
	}
	return out
}

// listFeatures filters by the q parameter when given and by the session's
// search query otherwise.
func (a *API) listFeatures(w http.ResponseWriter, r *http.Request) {
	st, err := a.sessions.Get(r.Context(), sid(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	query := st.SearchQuery
	if q, ok := r.URL.Query()["q"]; ok {
		query = q[0]
	}
	matched := search.Filter(st.Features, query)

	resp := struct {
		Query    string           `json:"query"`
		Total    int              `json:"total"`
		Features []featureSummary `json:"features"`
		BBox     []float64        `json:"bbox,omitempty"`
	}{Query: query, Total: len(st.Features), Features: summaries(st, matched)}
	if b, ok := bounds.OfCollection(st.Features); ok {
		resp.BBox = bbox(b)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) getFeature(w http.ResponseWriter, r *http.Request) {
	st, err := a.sessions.Get(r.Context(), sid(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	f, ok := st.Features.Find(chi.URLParam(r, "fid"))
	if !ok {
		writeError(w, http.StatusNotFound, "feature not found", "")
		return
	}
	writeJSON(w, http.StatusOK, featureDetail{
		featureSummary: summarize(st, f),
		Properties:     search.DisplayProperties(f),
		Feature:        f,
	})
}

func (a *API) getSeries(w http.ResponseWriter, r *http.Request) {
	kind, ok := timeseries.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		writeError(w, http.StatusBadRequest, "series kind must be altitude or speed", "")
		return
	}
	fid := chi.URLParam(r, "fid")
	pts, err := a.sessions.Series(r.Context(), sid(r), fid, kind)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		FeatureID string             `json:"feature_id"`
		Kind      timeseries.Kind    `json:"kind"`
		Points    []timeseries.Point `json:"points"`
	}{fid, kind, pts})
}

func (a *API) pick(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lon, err1 := strconv.ParseFloat(q.Get("lon"), 64)
	lat, err2 := strconv.ParseFloat(q.Get("lat"), 64)
	if err1 != nil || err2 != nil || lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		writeError(w, http.StatusBadRequest, "lon and lat must be valid WGS84 coordinates", "")
		return
	}
	picked, st, err := a.sessions.Pick(r.Context(), sid(r), lon, lat)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Features []featureSummary `json:"features"`
	}{summaries(st, picked)})
}

func (a *API) failFetch(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, httpclient.ErrTooLarge):
		a.fail(w, r, err)
		return
	case errors.Is(err, httpclient.ErrInvalidURL):
		writeError(w, http.StatusBadRequest, "url must be an absolute http or https URL", "")
		return
	case errors.Is(err, httpclient.ErrHostNotAllowed):
		writeError(w, http.StatusForbidden, "document host not allowed", err.Error())
		return
	}
	writeError(w, http.StatusBadGateway, "document fetch failed", err.Error())
}
