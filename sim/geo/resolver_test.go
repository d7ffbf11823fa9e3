package geo

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streetsim/streetsim/sim/graph"
)

// fakeOSM serves a 3-node street: 1 - 2 - 3, with way 11 repeating 2 - 1.
type fakeOSM struct {
	geocodes  atomic.Int32
	overpass  atomic.Int32
	floods    atomic.Int32
	lastQuery atomic.Value
	places    map[string]nominatimResult
}

func newFakeOSM() *fakeOSM {
	return &fakeOSM{places: map[string]nominatimResult{
		"town":    {Lat: "34.0005", Lon: "134.0005", BoundingBox: []string{"34.0", "34.001", "134.0", "134.002"}},
		"station": {Lat: "34.0001", Lon: "134.0019"},
		"far":     {Lat: "35.0", Lon: "135.0"},
	}}
}

func (f *fakeOSM) server(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		f.geocodes.Add(1)
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		res := []nominatimResult{}
		if p, ok := f.places[r.URL.Query().Get("q")]; ok {
			res = append(res, p)
		}
		_ = json.NewEncoder(w).Encode(res)
	})
	mux.HandleFunc("/interpreter", func(w http.ResponseWriter, r *http.Request) {
		f.overpass.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		f.lastQuery.Store(string(body))
		_, _ = io.WriteString(w, `{"elements": [
			{"type": "node", "id": 1, "lat": 34.0, "lon": 134.0, "tags": {"name": "corner"}},
			{"type": "node", "id": 2, "lat": 34.0, "lon": 134.001},
			{"type": "node", "id": 3, "lat": 34.0, "lon": 134.002},
			{"type": "way", "id": 10, "nodes": [1, 2, 3], "tags": {"highway": "residential"}},
			{"type": "way", "id": 11, "nodes": [2, 1, 99]}
		]}`)
	})
	mux.HandleFunc("/GetMaxDepth", func(w http.ResponseWriter, r *http.Request) {
		f.floods.Add(1)
		q := r.URL.Query()
		assert.Equal(t, "34", q.Get("lat"))
		switch {
		case q.Get("lon") == "134" && q.Get("CSVScale") == "0":
			_, _ = io.WriteString(w, `{"Depth": 1.5}`)
		case q.Get("lon") == "134" && q.Get("CSVScale") == "1":
			_, _ = io.WriteString(w, `{"Depth": "0.5"}`)
		default:
			_, _ = io.WriteString(w, `{"Message": "no data"}`)
		}
	})
	mux.HandleFunc("/broken/interpreter", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too busy", http.StatusTooManyRequests)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestResolver(t *testing.T, f *fakeOSM) *Resolver {
	t.Helper()
	srv := f.server(t)
	c, err := OpenCache(testContext(t), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	r := NewResolver(c)
	r.Client = srv.Client()
	r.NominatimURL = srv.URL + "/search"
	r.OverpassURL = srv.URL + "/interpreter"
	r.FloodURL = srv.URL + "/GetMaxDepth"
	return r
}

func TestResolveGraph_BuildsAndCaches(t *testing.T) {
	f := newFakeOSM()
	r := newTestResolver(t, f)

	g, err := r.ResolveGraph(testContext(t), "town", false)
	require.NoError(t, err)
	assert.Equal(t, `[out:json][timeout:10];way(34,134,34.001,134.002)["highway"];(._;>;);out body;`, f.lastQuery.Load())

	assert.Equal(t, 3, g.NodeCount())
	require.Len(t, g.Links(), 2, "the repeated 2-1 pair and the dangling node are dropped")
	l, ok := g.EdgeBetween("2", "1")
	require.True(t, ok)
	w, ok := l.Weight()
	require.True(t, ok)
	assert.InDelta(t, graph.Geodesic(34, 134, 34, 134.001), w, 1e-9)
	assert.Equal(t, "town", g.Attrs()["query"])
	area, ok := GraphArea(g)
	require.True(t, ok)
	assert.Equal(t, Area{N: 34.001, S: 34.0, E: 134.002, W: 134.0}, area)
	n, _ := g.Node("1")
	assert.Equal(t, map[string]any{"name": "corner"}, n.Attrs["tags"])

	// second call is served from the cache
	again, err := r.ResolveGraph(testContext(t), "town", false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.geocodes.Load())
	assert.Equal(t, int32(1), f.overpass.Load())
	assert.Equal(t, g.NodeLinkData().Nodes[0]["id"], again.NodeLinkData().Nodes[0]["id"])
	cachedArea, ok := GraphArea(again)
	require.True(t, ok)
	assert.Equal(t, area, cachedArea)

	// force refetches
	_, err = r.ResolveGraph(testContext(t), "town", true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.overpass.Load())
}

func TestResolveGraph_Failures(t *testing.T) {
	f := newFakeOSM()
	r := newTestResolver(t, f)

	var le *LookupError
	_, err := r.ResolveGraph(testContext(t), "atlantis", false)
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "atlantis", le.Query)

	r.OverpassURL = r.NominatimURL[:len(r.NominatimURL)-len("/search")] + "/broken/interpreter"
	_, err = r.ResolveGraph(testContext(t), "town", false)
	require.True(t, errors.As(err, &le))
	assert.Contains(t, err.Error(), "429")
}

func TestResolveNode(t *testing.T) {
	f := newFakeOSM()
	r := newTestResolver(t, f)
	g, err := r.ResolveGraph(testContext(t), "town", false)
	require.NoError(t, err)

	id, err := r.ResolveNode(testContext(t), g, "station", false)
	require.NoError(t, err)
	assert.Equal(t, graph.NodeID("3"), id)

	calls := f.geocodes.Load()
	id, err = r.ResolveNode(testContext(t), g, "station", false)
	require.NoError(t, err)
	assert.Equal(t, graph.NodeID("3"), id)
	assert.Equal(t, calls, f.geocodes.Load(), "cached node lookup should not geocode")

	var le *LookupError
	_, err = r.ResolveNode(testContext(t), g, "far", false)
	assert.True(t, errors.As(err, &le), "points outside the area are rejected")

	_, err = r.ResolveNode(testContext(t), graph.Empty(), "station", false)
	assert.True(t, errors.As(err, &le))
}

func TestNearest_TiesGoToFirstNode(t *testing.T) {
	g, err := graph.Build([]graph.Node{{ID: "a", Lon: -1}, {ID: "b", Lon: 1}}, nil, graph.Options{})
	require.NoError(t, err)
	assert.Equal(t, graph.NodeID("a"), Nearest(g, 0, 0))
	assert.Equal(t, graph.NodeID("b"), Nearest(g, 0, 0.5))
}

func TestMaxFloodDepth_CachesPerNodeAndGroup(t *testing.T) {
	f := newFakeOSM()
	r := newTestResolver(t, f)
	g, err := r.ResolveGraph(testContext(t), "town", false)
	require.NoError(t, err)

	d, ok, err := r.MaxFloodDepth(testContext(t), g, "1", FloodMax, false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1.5, d)
	assert.Equal(t, int32(1), f.floods.Load())

	// cache hit
	d, ok, err = r.MaxFloodDepth(testContext(t), g, "1", FloodMax, false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1.5, d)
	assert.Equal(t, int32(1), f.floods.Load())

	// force refetches
	_, _, err = r.MaxFloodDepth(testContext(t), g, "1", FloodMax, true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.floods.Load())

	// another group is another entry; string depths are accepted
	d, ok, err = r.MaxFloodDepth(testContext(t), g, "1", FloodPlanned, false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0.5, d)
	assert.Equal(t, int32(3), f.floods.Load())
}

func TestMaxFloodDepth_MissingDepthAndErrors(t *testing.T) {
	f := newFakeOSM()
	r := newTestResolver(t, f)
	g, err := r.ResolveGraph(testContext(t), "town", false)
	require.NoError(t, err)

	// a response without Depth is "unknown", and is asked again next time
	for i := 0; i < 2; i++ {
		d, ok, err := r.MaxFloodDepth(testContext(t), g, "3", FloodMax, false)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Zero(t, d)
	}
	assert.Equal(t, int32(2), f.floods.Load())

	var le *LookupError
	_, _, err = r.MaxFloodDepth(testContext(t), g, "99", FloodMax, false)
	assert.True(t, errors.As(err, &le))

	_, _, err = r.MaxFloodDepth(testContext(t), g, "1", FloodGroup("worst"), false)
	assert.Error(t, err)
}

func TestAnnotateFloodDepth(t *testing.T) {
	f := newFakeOSM()
	r := newTestResolver(t, f)
	g, err := r.ResolveGraph(testContext(t), "town", false)
	require.NoError(t, err)

	annotated, err := r.AnnotateFloodDepth(testContext(t), g, FloodMax, false)
	require.NoError(t, err)

	n1, _ := annotated.Node("1")
	assert.Equal(t, 1.5, n1.Attrs[FloodDepthKey])
	assert.Equal(t, map[string]any{"name": "corner"}, n1.Attrs["tags"])
	n3, _ := annotated.Node("3")
	assert.NotContains(t, n3.Attrs, FloodDepthKey)
	assert.Len(t, annotated.Links(), len(g.Links()))
	assert.Equal(t, "town", annotated.Attrs()["query"])
}
