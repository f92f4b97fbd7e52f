package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/geojson-viewer/internal/cache"
	"github.com/mohammed-shakir/geojson-viewer/internal/cache/keys"
	"github.com/mohammed-shakir/geojson-viewer/internal/cache/memstore"
	"github.com/mohammed-shakir/geojson-viewer/internal/cache/redisstore"
	"github.com/mohammed-shakir/geojson-viewer/internal/geojson"
	h3mapper "github.com/mohammed-shakir/geojson-viewer/internal/mapper/h3"
	"github.com/mohammed-shakir/geojson-viewer/internal/state"
	"github.com/mohammed-shakir/geojson-viewer/internal/timeseries"
	"github.com/mohammed-shakir/geojson-viewer/internal/viewevents"
)

const track = `{"type":"FeatureCollection","features":[
 {"type":"Feature","id":"flight-1","properties":{"name":"SQ 22"},"geometry":{"type":"LineString","coordinates":[
   [103.98,1.35,1000,1700000000000],[104.08,1.45,2000,1700000060000],[104.18,1.55,3500,1700000120000]]}},
 {"type":"Feature","properties":{"key":"gate"},"geometry":{"type":"Point","coordinates":[103.99,1.36]}}
]}`

const extra = `{"type":"Feature","id":"tower","properties":{},"geometry":{"type":"Point","coordinates":[103.80,1.30]}}`

type recorder struct {
	mu     sync.Mutex
	events []viewevents.Event
}

func (r *recorder) Publish(ev viewevents.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func newRegistry(t *testing.T, store cache.Store, opts ...Option) *Registry {
	t.Helper()
	m, err := h3mapper.New(7)
	if err != nil {
		t.Fatalf("mapper: %v", err)
	}
	r, err := New(store, m, Config{TTL: time.Hour, MaxSessions: 8, SeriesCacheSize: 16}, nil, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func mustCreate(t *testing.T, r *Registry) string {
	t.Helper()
	id, _, err := r.Create(t.Context())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return id
}

func mustLoad(t *testing.T, r *Registry, id string, mode Mode, body string) state.State {
	t.Helper()
	st, err := r.LoadDocument(t.Context(), id, LoadRequest{Mode: mode, Source: SourceHTTP, Body: []byte(body)})
	if err != nil {
		t.Fatalf("LoadDocument(%s): %v", mode, err)
	}
	return st
}

func TestCreateAndGet(t *testing.T) {
	r := newRegistry(t, memstore.New(64, time.Hour))
	id := mustCreate(t, r)

	st, err := r.Get(t.Context(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if st.Camera.Zoom != state.InitialZoom || len(st.Features) != 0 || st.Document != nil {
		t.Fatalf("unexpected initial state: %+v", st)
	}
	if r.Len() != 1 {
		t.Fatalf("Len=%d want 1", r.Len())
	}

	if _, err := r.Get(t.Context(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
}

func TestLoadDocument_LoadAppendAndReject(t *testing.T) {
	r := newRegistry(t, memstore.New(64, time.Hour))
	id := mustCreate(t, r)

	st := mustLoad(t, r, id, ModeLoad, track)
	if len(st.Features) != 2 || st.Version != 1 {
		t.Fatalf("features=%d version=%d", len(st.Features), st.Version)
	}
	if got := st.Features[1].ID.String(); got != "feature-1" {
		t.Fatalf("synthetic id=%q want feature-1", got)
	}

	st = mustLoad(t, r, id, ModeAppend, extra)
	if len(st.Features) != 3 || st.Features[2].ID.String() != "tower" || st.Version != 2 {
		t.Fatalf("after append: %d features version %d", len(st.Features), st.Version)
	}

	_, err := r.LoadDocument(t.Context(), id, LoadRequest{Mode: ModeLoad, Body: []byte(`{"type":"Nope"}`)})
	if !errors.Is(err, geojson.ErrInvalidDocument) {
		t.Fatalf("err=%v want ErrInvalidDocument", err)
	}
	after, _ := r.Get(t.Context(), id)
	if len(after.Features) != 3 || after.Version != 2 {
		t.Fatalf("invalid document changed state: %d features version %d", len(after.Features), after.Version)
	}
}

func TestLoadDocument_CreateMissing(t *testing.T) {
	r := newRegistry(t, memstore.New(64, time.Hour))

	_, err := r.LoadDocument(t.Context(), "feed-1", LoadRequest{Body: []byte(extra)})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
	st, err := r.LoadDocument(t.Context(), "feed-1", LoadRequest{Body: []byte(extra), CreateMissing: true})
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if len(st.Features) != 1 {
		t.Fatalf("features=%d want 1", len(st.Features))
	}
}

func TestDispatch_SelectionPublishesEvent(t *testing.T) {
	rec := &recorder{}
	r := newRegistry(t, memstore.New(64, time.Hour), WithEvents(rec))
	id := mustCreate(t, r)
	mustLoad(t, r, id, ModeLoad, track)

	st, err := r.Dispatch(t.Context(), id, state.Select{ID: "flight-1"}, state.Highlight{ID: "feature-1"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if st.SelectedID != "flight-1" || st.HighlightedID != "feature-1" {
		t.Fatalf("state=%+v", st)
	}
	// same selection again does not publish
	if _, err := r.Dispatch(t.Context(), id, state.Select{ID: "flight-1"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	// clearing does not publish
	if _, err := r.Dispatch(t.Context(), id, state.Select{ID: ""}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if len(rec.events) != 1 {
		t.Fatalf("events=%d want 1", len(rec.events))
	}
	ev := rec.events[0]
	if ev.Session != id || ev.FeatureID != "flight-1" || ev.Label != "SQ 22" || ev.Kind != viewevents.KindSelect {
		t.Fatalf("event=%+v", ev)
	}
}

func TestRestore_FromRedisAfterRestart(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	store, err := redisstore.New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("redisstore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	r1 := newRegistry(t, store)
	id := mustCreate(t, r1)
	mustLoad(t, r1, id, ModeLoad, track)
	if _, err := r1.Dispatch(t.Context(), id, state.Select{ID: "feature-1"}, state.Search{Query: "gate"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	want, _ := r1.Get(t.Context(), id)

	if ttl := mr.TTL(keys.Session(id, keys.PartDocument)); ttl != time.Hour {
		t.Fatalf("document ttl=%v want 1h", ttl)
	}

	r2 := newRegistry(t, store)
	got, err := r2.Get(t.Context(), id)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got.Version != want.Version || got.SelectedID != "feature-1" || got.SearchQuery != "gate" {
		t.Fatalf("restored=%+v want %+v", got, want)
	}
	if len(got.Features) != 2 || got.Features[1].ID.String() != "feature-1" {
		t.Fatalf("restored features lost identity: %v", got.Features)
	}
	if got.Camera.Longitude != want.Camera.Longitude || got.Camera.Zoom != want.Camera.Zoom {
		t.Fatalf("camera=%+v want %+v", got.Camera, want.Camera)
	}

	// a missing document invalidates the stored session
	mr.Del(keys.Session(id, keys.PartDocument))
	r3 := newRegistry(t, store)
	if _, err := r3.Get(t.Context(), id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
}

// failingStore fails writes once armed.
type failingStore struct {
	cache.Store
	fail bool
}

func (f *failingStore) Set(ctx context.Context, k string, v []byte, ttl time.Duration) error {
	if f.fail {
		return fmt.Errorf("store down")
	}
	return f.Store.Set(ctx, k, v, ttl)
}

func (f *failingStore) MSetWithTTL(ctx context.Context, kv map[string][]byte, ttl time.Duration) error {
	if f.fail {
		return fmt.Errorf("store down")
	}
	return f.Store.MSetWithTTL(ctx, kv, ttl)
}

func TestUpdate_StoreFailureKeepsPreviousState(t *testing.T) {
	fs := &failingStore{Store: memstore.New(64, time.Hour)}
	r := newRegistry(t, fs)
	id := mustCreate(t, r)
	mustLoad(t, r, id, ModeLoad, track)

	fs.fail = true
	if _, err := r.LoadDocument(t.Context(), id, LoadRequest{Mode: ModeAppend, Body: []byte(extra)}); err == nil {
		t.Fatalf("expected store error")
	}
	if _, err := r.Dispatch(t.Context(), id, state.Select{ID: "flight-1"}); err == nil {
		t.Fatalf("expected store error")
	}
	st, _ := r.Get(t.Context(), id)
	if len(st.Features) != 2 || st.SelectedID != "" {
		t.Fatalf("state changed despite failure: %d features selected=%q", len(st.Features), st.SelectedID)
	}
}

func TestSeries_MemoizedPerVersion(t *testing.T) {
	r := newRegistry(t, memstore.New(64, time.Hour))
	id := mustCreate(t, r)
	mustLoad(t, r, id, ModeLoad, track)

	alt, err := r.Series(t.Context(), id, "flight-1", timeseries.KindAltitude)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if len(alt) != 3 || alt[2].Value != 35 {
		t.Fatalf("altitude=%v", alt)
	}
	again, _ := r.Series(t.Context(), id, "flight-1", timeseries.KindAltitude)
	if &again[0] != &alt[0] {
		t.Fatalf("second lookup should come from the cache")
	}

	speed, err := r.Series(t.Context(), id, "flight-1", timeseries.KindSpeed)
	if err != nil || len(speed) != 3 {
		t.Fatalf("speed=%v err=%v", speed, err)
	}

	gate, err := r.Series(t.Context(), id, "feature-1", timeseries.KindAltitude)
	if err != nil || gate == nil || len(gate) != 0 {
		t.Fatalf("point feature series=%v err=%v", gate, err)
	}

	if _, err := r.Series(t.Context(), id, "missing", timeseries.KindSpeed); !errors.Is(err, ErrFeatureNotFound) {
		t.Fatalf("err=%v want ErrFeatureNotFound", err)
	}

	// a reload bumps the version so the cache is bypassed
	mustLoad(t, r, id, ModeLoad, track)
	fresh, _ := r.Series(t.Context(), id, "flight-1", timeseries.KindAltitude)
	if &fresh[0] == &alt[0] {
		t.Fatalf("series must be recomputed for a new version")
	}
}

func TestSeries_NotSharedWithRecreatedSession(t *testing.T) {
	r := newRegistry(t, memstore.New(64, time.Hour))
	ctx := t.Context()
	const id = "replayed"
	first := `{"type":"Feature","id":"f","properties":{},"geometry":{"type":"LineString","coordinates":[[0,0,1000,1000],[1,1,2000,2000]]}}`
	second := `{"type":"Feature","id":"f","properties":{},"geometry":{"type":"LineString","coordinates":[[0,0,9900,1000]]}}`

	if _, err := r.LoadDocument(ctx, id, LoadRequest{Mode: ModeLoad, Source: SourceKafka, Body: []byte(first), CreateMissing: true}); err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	before, err := r.Series(ctx, id, "f", timeseries.KindAltitude)
	if err != nil || len(before) != 2 || before[0].Value != 10 {
		t.Fatalf("altitude=%v err=%v", before, err)
	}
	if err := r.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	st, err := r.LoadDocument(ctx, id, LoadRequest{Mode: ModeLoad, Source: SourceKafka, Body: []byte(second), CreateMissing: true})
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if st.Version != 1 {
		t.Fatalf("unexpected version %d", st.Version)
	}
	after, err := r.Series(ctx, id, "f", timeseries.KindAltitude)
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if len(after) != 1 || after[0].Value != 99 {
		t.Fatalf("altitude after recreate=%v want one point of 99", after)
	}
}

func TestPick(t *testing.T) {
	r := newRegistry(t, memstore.New(64, time.Hour))
	id := mustCreate(t, r)
	mustLoad(t, r, id, ModeLoad, track)

	got, st, err := r.Pick(t.Context(), id, 104.0, 1.4)
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if len(got) != 1 || got[0].ID.String() != "flight-1" {
		t.Fatalf("picked %v", got)
	}
	if st.Version != 1 || len(st.Features) != 2 {
		t.Fatalf("pick state version=%d features=%d", st.Version, len(st.Features))
	}
	got, _, _ = r.Pick(t.Context(), id, 0, 0)
	if len(got) != 0 {
		t.Fatalf("picked %v want none", got)
	}
}

func TestDelete(t *testing.T) {
	store := memstore.New(64, time.Hour)
	r := newRegistry(t, store)
	id := mustCreate(t, r)
	mustLoad(t, r, id, ModeLoad, track)

	if err := r.Delete(t.Context(), id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := r.Get(t.Context(), id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
	if store.Len() != 0 {
		t.Fatalf("store still holds %d keys", store.Len())
	}
}

func TestDispatch_ConcurrentWritersSerialize(t *testing.T) {
	r := newRegistry(t, memstore.New(64, time.Hour))
	id := mustCreate(t, r)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.LoadDocument(context.Background(), id, LoadRequest{Mode: ModeAppend, Body: []byte(extra)})
			if err != nil {
				t.Errorf("append: %v", err)
			}
		}()
	}
	wg.Wait()

	st, _ := r.Get(t.Context(), id)
	if len(st.Features) != n || st.Version != n {
		t.Fatalf("features=%d version=%d want %d", len(st.Features), st.Version, n)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
		ok   bool
	}{
		{"", ModeLoad, true},
		{"load", ModeLoad, true},
		{"append", ModeAppend, true},
		{"merge", "", false},
	}
	for _, tc := range tests {
		got, ok := ParseMode(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ParseMode(%q)=(%q,%v) want (%q,%v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
