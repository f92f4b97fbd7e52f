// Package session keeps the view state of every open viewing session. Each
// session holds an immutable state.State snapshot; updates run through
// state.Reduce and replace the snapshot, so readers never see a partial
// update. Snapshots are written through to a cache.Store so a session can
// be restored after it falls out of memory or the process restarts.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/mohammed-shakir/geojson-viewer/internal/cache"
	"github.com/mohammed-shakir/geojson-viewer/internal/cache/keys"
	"github.com/mohammed-shakir/geojson-viewer/internal/core/observability"
	"github.com/mohammed-shakir/geojson-viewer/internal/geojson"
	"github.com/mohammed-shakir/geojson-viewer/internal/logger"
	"github.com/mohammed-shakir/geojson-viewer/internal/mapper"
	"github.com/mohammed-shakir/geojson-viewer/internal/pickindex"
	"github.com/mohammed-shakir/geojson-viewer/internal/search"
	"github.com/mohammed-shakir/geojson-viewer/internal/state"
	"github.com/mohammed-shakir/geojson-viewer/internal/timeseries"
	"github.com/mohammed-shakir/geojson-viewer/internal/viewevents"
)

var (
	ErrNotFound        = errors.New("session not found")
	ErrFeatureNotFound = errors.New("feature not found")
)

type Config struct {
	TTL                time.Duration
	MaxSessions        int
	SeriesCacheSize    int
	MaxCellsPerFeature int
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = 24 * time.Hour
	}
	if c.MaxSessions <= 0 {
		c.MaxSessions = 1024
	}
	if c.SeriesCacheSize <= 0 {
		c.SeriesCacheSize = 4096
	}
	return c
}

// EventSink receives selection events. viewevents.Publisher implements it.
type EventSink interface {
	Publish(ev viewevents.Event)
}

type Option func(*Registry)

func WithEvents(sink EventSink) Option {
	return func(r *Registry) { r.events = sink }
}

type Registry struct {
	cfg    Config
	store  cache.Store
	mapper mapper.Interface
	log    *zerolog.Logger
	events EventSink

	// guards lookup-or-insert on sessions
	mu       sync.Mutex
	sessions *expirable.LRU[string, *entry]
	series   *lru.Cache[seriesKey, []timeseries.Point]
}

type entry struct {
	// random per insert; a session recreated under the same id never
	// shares series cache entries with its predecessor
	gen string

	// serializes writers; readers use snap
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

type snapshot struct {
	state state.State
	// fingerprint of the stored document, empty without one
	docFP string

	once    sync.Once
	pick    *pickindex.Index
	pickErr error
}

type seriesKey struct {
	session string
	gen     string
	version uint64
	feature string
	kind    timeseries.Kind
}

func New(store cache.Store, m mapper.Interface, cfg Config, log *zerolog.Logger, opts ...Option) (*Registry, error) {
	cfg = cfg.withDefaults()
	series, err := lru.New[seriesKey, []timeseries.Point](cfg.SeriesCacheSize)
	if err != nil {
		return nil, fmt.Errorf("series cache: %w", err)
	}
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	r := &Registry{
		cfg:    cfg,
		store:  store,
		mapper: m,
		log:    log,
		series: series,
	}
	r.sessions = expirable.NewLRU[string, *entry](cfg.MaxSessions, nil, cfg.TTL)
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Len reports the sessions held in memory.
func (r *Registry) Len() int { return r.sessions.Len() }

// Create opens a session in the initial state.
func (r *Registry) Create(ctx context.Context) (string, state.State, error) {
	id := logger.NewID()
	st := state.Initial()
	if _, err := r.persist(ctx, id, st, "", false); err != nil {
		return "", state.State{}, err
	}
	r.insert(id, st, "")
	logger.FromContext(logger.WithSession(ctx, id), r.log).Debug().Msg("session created")
	return id, st, nil
}

func (r *Registry) insert(id string, st state.State, docFP string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions.Get(id); ok {
		return e
	}
	e := &entry{gen: logger.NewID()}
	e.snap.Store(&snapshot{state: st, docFP: docFP})
	r.sessions.Add(id, e)
	observability.SetSessions(r.sessions.Len())
	return e
}

// lookup finds a session in memory or restores it from the store. With
// create set, an unknown id opens a new session under that id.
func (r *Registry) lookup(ctx context.Context, id string, create bool) (*entry, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	if e, ok := r.sessions.Get(id); ok {
		return e, nil
	}
	st, fp, err := r.restore(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound) && create:
		st, fp = state.Initial(), ""
		if _, err := r.persist(ctx, id, st, "", false); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}
	return r.insert(id, st, fp), nil
}

func (r *Registry) Get(ctx context.Context, id string) (state.State, error) {
	e, err := r.lookup(ctx, id, false)
	if err != nil {
		return state.State{}, err
	}
	return e.snap.Load().state, nil
}

// Dispatch applies the actions in order and stores the result. Nothing is
// changed when persisting fails.
func (r *Registry) Dispatch(ctx context.Context, id string, actions ...state.Action) (state.State, error) {
	return r.update(ctx, id, false, func(s state.State) (state.State, error) {
		for _, a := range actions {
			s = state.Reduce(s, a)
		}
		return s, nil
	})
}

func (r *Registry) update(ctx context.Context, id string, create bool, fn func(state.State) (state.State, error)) (state.State, error) {
	e, err := r.lookup(ctx, id, create)
	if err != nil {
		return state.State{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.snap.Load()
	prev := cur.state
	next, err := fn(prev)
	if err != nil {
		return prev, err
	}
	fp, err := r.persist(ctx, id, next, cur.docFP, next.Version != prev.Version)
	if err != nil {
		return prev, err
	}
	e.snap.Store(&snapshot{state: next, docFP: fp})
	// re-adding refreshes the in-memory ttl
	r.sessions.Add(id, e)

	if next.SelectedID != "" && next.SelectedID != prev.SelectedID {
		r.publishSelection(id, next)
	}
	return next, nil
}

func (r *Registry) publishSelection(id string, st state.State) {
	if r.events == nil {
		return
	}
	f, ok := st.Selected()
	if !ok {
		return
	}
	r.events.Publish(viewevents.Event{
		Session:   id,
		FeatureID: st.SelectedID,
		Label:     search.Label(f),
		Kind:      viewevents.KindSelect,
	})
}

// Delete drops the session from memory and from the store.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.sessions.Remove(id)
	observability.SetSessions(r.sessions.Len())
	if err := r.store.Del(ctx, keys.Session(id, keys.PartDocument), keys.Session(id, keys.PartView)); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// Series returns the altitude or speed series of one feature, memoized per
// feature set version.
func (r *Registry) Series(ctx context.Context, id, featureID string, kind timeseries.Kind) ([]timeseries.Point, error) {
	e, err := r.lookup(ctx, id, false)
	if err != nil {
		return nil, err
	}
	st := e.snap.Load().state

	k := seriesKey{session: id, gen: e.gen, version: st.Version, feature: featureID, kind: kind}
	if pts, ok := r.series.Get(k); ok {
		observability.IncSeriesCache(string(kind), true)
		return pts, nil
	}
	observability.IncSeriesCache(string(kind), false)

	f, ok := st.Features.Find(featureID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFeatureNotFound, featureID)
	}
	var pts []timeseries.Point
	switch kind {
	case timeseries.KindSpeed:
		pts = timeseries.Speed(f)
	default:
		pts = timeseries.Altitude(f)
	}
	if pts == nil {
		pts = []timeseries.Point{}
	}
	r.series.Add(k, pts)
	return pts, nil
}

// Pick returns the features whose bounds contain the point together with
// the state they were picked from. The index is built on first use for
// each snapshot.
func (r *Registry) Pick(ctx context.Context, id string, lon, lat float64) (geojson.Collection, state.State, error) {
	e, err := r.lookup(ctx, id, false)
	if err != nil {
		return nil, state.State{}, err
	}
	snap := e.snap.Load()
	snap.once.Do(func() {
		snap.pick, snap.pickErr = pickindex.Build(snap.state.Features, r.mapper, r.cfg.MaxCellsPerFeature)
	})
	if snap.pickErr != nil {
		return nil, state.State{}, fmt.Errorf("build pick index: %w", snap.pickErr)
	}
	fs, err := snap.pick.Pick(lon, lat)
	if err != nil {
		return nil, state.State{}, err
	}
	return fs, snap.state, nil
}

// view is the persisted form of everything but the document.
type view struct {
	SelectedID    string          `json:"selected_id,omitempty"`
	HighlightedID string          `json:"highlighted_id,omitempty"`
	SearchQuery   string          `json:"search_query,omitempty"`
	Camera        json.RawMessage `json:"camera"`
	Layout        json.RawMessage `json:"layout"`
	Version       uint64          `json:"version"`
	Document      string          `json:"document_fingerprint,omitempty"`
}

// persist writes st and returns the fingerprint of the stored document.
// Unless the feature set changed only the view is rewritten and the
// document ttl extended.
func (r *Registry) persist(ctx context.Context, id string, st state.State, docFP string, docChanged bool) (string, error) {
	docKey, viewKey := keys.Session(id, keys.PartDocument), keys.Session(id, keys.PartView)

	v, err := encodeView(st)
	if err != nil {
		return "", fmt.Errorf("encode view: %w", err)
	}

	if docChanged && st.Document != nil {
		doc, err := json.Marshal(st.Document)
		if err != nil {
			return "", fmt.Errorf("encode document: %w", err)
		}
		v.Document = keys.Fingerprint(doc)
		vb, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode view: %w", err)
		}
		if err := r.store.MSetWithTTL(ctx, map[string][]byte{docKey: doc, viewKey: vb}, r.cfg.TTL); err != nil {
			return "", fmt.Errorf("persist session %s: %w", id, err)
		}
		return v.Document, nil
	}

	v.Document = docFP
	vb, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode view: %w", err)
	}
	if err := r.store.Set(ctx, viewKey, vb, r.cfg.TTL); err != nil {
		return "", fmt.Errorf("persist session %s: %w", id, err)
	}
	if docFP != "" {
		if err := r.store.Expire(ctx, r.cfg.TTL, docKey); err != nil {
			return "", fmt.Errorf("persist session %s: %w", id, err)
		}
	}
	return docFP, nil
}

func encodeView(st state.State) (view, error) {
	cam, err := json.Marshal(st.Camera)
	if err != nil {
		return view{}, err
	}
	lay, err := json.Marshal(st.Layout)
	if err != nil {
		return view{}, err
	}
	return view{
		SelectedID:    st.SelectedID,
		HighlightedID: st.HighlightedID,
		SearchQuery:   st.SearchQuery,
		Camera:        cam,
		Layout:        lay,
		Version:       st.Version,
	}, nil
}

func (r *Registry) restore(ctx context.Context, id string) (state.State, string, error) {
	docKey, viewKey := keys.Session(id, keys.PartDocument), keys.Session(id, keys.PartView)
	got, err := r.store.MGet(ctx, []string{docKey, viewKey})
	if err != nil {
		return state.State{}, "", fmt.Errorf("restore session %s: %w", id, err)
	}
	vb, ok := got[viewKey]
	if !ok {
		return state.State{}, "", ErrNotFound
	}

	var v view
	if err := json.Unmarshal(vb, &v); err != nil {
		return state.State{}, "", fmt.Errorf("restore session %s: decode view: %w", id, err)
	}
	st := state.Initial()
	st.SelectedID = v.SelectedID
	st.HighlightedID = v.HighlightedID
	st.SearchQuery = v.SearchQuery
	st.Version = v.Version
	if err := json.Unmarshal(v.Camera, &st.Camera); err != nil {
		return state.State{}, "", fmt.Errorf("restore session %s: decode camera: %w", id, err)
	}
	if err := json.Unmarshal(v.Layout, &st.Layout); err != nil {
		return state.State{}, "", fmt.Errorf("restore session %s: decode layout: %w", id, err)
	}

	if v.Document == "" {
		return st, "", nil
	}
	db, ok := got[docKey]
	if !ok || keys.Fingerprint(db) != v.Document {
		logger.FromContext(logger.WithSession(ctx, id), r.log).Warn().
			Bool("document_present", ok).
			Msg("stored document missing or stale; session dropped")
		return state.State{}, "", ErrNotFound
	}
	doc, err := geojson.Parse(db)
	if err != nil {
		return state.State{}, "", fmt.Errorf("restore session %s: %w", id, err)
	}
	res := geojson.Normalize(doc)
	st.Document = &res.Document
	st.Features = res.Features
	return st, v.Document, nil
}
