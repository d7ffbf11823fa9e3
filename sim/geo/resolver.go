// Package geo acquires street graphs and node positions for place names
// from OpenStreetMap services: Nominatim for geocoding and Overpass for the
// highway ways inside a bounding box. Results are kept in a Cache.
package geo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/streetsim/streetsim/sim/graph"
)

const (
	DefaultNominatimURL = "https://nominatim.openstreetmap.org/search"
	DefaultOverpassURL  = "https://overpass-api.de/api/interpreter"
	DefaultFloodURL     = "https://suiboumap.gsi.go.jp/shinsuimap/Api/Public/GetMaxDepth"
	DefaultUserAgent    = "streetsim/1 (+https://github.com/streetsim/streetsim)"
)

// LookupError reports a failed place lookup.
type LookupError struct {
	Query string
	Err   error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("lookup %q: %v", e.Query, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// Area is a geographic bounding box in degrees.
type Area struct {
	N, S, E, W float64
}

// Contains reports whether (lat, lon) lies inside the box, edges included.
func (a Area) Contains(lat, lon float64) bool {
	return lat <= a.N && lat >= a.S && lon <= a.E && lon >= a.W
}

// Resolver resolves place queries. A nil Cache disables caching.
type Resolver struct {
	Client       *http.Client
	NominatimURL string
	OverpassURL  string
	FloodURL     string
	UserAgent    string
	Cache        *Cache
}

// NewResolver returns a Resolver for the public OpenStreetMap endpoints.
func NewResolver(cache *Cache) *Resolver {
	return &Resolver{
		Client:       &http.Client{Timeout: 60 * time.Second},
		NominatimURL: DefaultNominatimURL,
		OverpassURL:  DefaultOverpassURL,
		FloodURL:     DefaultFloodURL,
		UserAgent:    DefaultUserAgent,
		Cache:        cache,
	}
}

// ResolveGraph geocodes query and downloads the street graph of its
// bounding box. force skips the cached result and refreshes it.
func (r *Resolver) ResolveGraph(ctx context.Context, query string, force bool) (*graph.Graph, error) {
	if !force {
		if data, ok := r.cached(ctx, KindGraph, query); ok {
			g, err := graph.ReadNodeLinkData(bytes.NewReader(data))
			if err == nil {
				logrus.Debugf("geo: graph %q served from cache", query)
				return g, nil
			}
			logrus.Warnf("geo: discarding unreadable cached graph %q: %v", query, err)
		}
	}

	place, err := r.geocode(ctx, query)
	if err != nil {
		return nil, &LookupError{Query: query, Err: err}
	}
	if !place.hasArea {
		return nil, &LookupError{Query: query, Err: errors.New("nominatim: result has no bounding box")}
	}
	g, err := r.areaGraph(ctx, place.area, query)
	if err != nil {
		return nil, &LookupError{Query: query, Err: err}
	}
	logrus.Infof("geo: resolved %q to %d nodes and %d links", query, g.NodeCount(), len(g.Links()))

	var buf bytes.Buffer
	if err := graph.WriteNodeLinkData(&buf, g); err != nil {
		return nil, err
	}
	r.store(ctx, KindGraph, query, buf.Bytes())
	return g, nil
}

// ResolveNode geocodes query and returns the node of g nearest to it. The
// point must fall inside the graph's area when g records one.
func (r *Resolver) ResolveNode(ctx context.Context, g *graph.Graph, query string, force bool) (graph.NodeID, error) {
	key := graphQuery(g) + "|" + query
	if !force {
		if data, ok := r.cached(ctx, KindNode, key); ok && g.HasNode(graph.NodeID(data)) {
			return graph.NodeID(data), nil
		}
	}
	if g.NodeCount() == 0 {
		return "", &LookupError{Query: query, Err: errors.New("graph has no nodes")}
	}

	place, err := r.geocode(ctx, query)
	if err != nil {
		return "", &LookupError{Query: query, Err: err}
	}
	if area, ok := GraphArea(g); ok && !area.Contains(place.lat, place.lon) {
		return "", &LookupError{Query: query, Err: fmt.Errorf("(%v, %v) is outside the graph area", place.lat, place.lon)}
	}
	id := Nearest(g, place.lat, place.lon)
	r.store(ctx, KindNode, key, []byte(id))
	return id, nil
}

// Nearest returns the node closest to (lat, lon) in plain degree space.
// Ties go to the node listed first.
func Nearest(g *graph.Graph, lat, lon float64) graph.NodeID {
	var best graph.NodeID
	bestD := -1.0
	for _, n := range g.Nodes() {
		dlat, dlon := lat-n.Lat, lon-n.Lon
		d := dlat*dlat + dlon*dlon
		if bestD < 0 || d < bestD {
			best, bestD = n.ID, d
		}
	}
	return best
}

// GraphArea reads the "area" attribute of g.
func GraphArea(g *graph.Graph) (Area, bool) {
	m, ok := g.Attrs()["area"].(map[string]any)
	if !ok {
		return Area{}, false
	}
	var a Area
	for k, dst := range map[string]*float64{"n": &a.N, "s": &a.S, "e": &a.E, "w": &a.W} {
		f, ok := number(m[k])
		if !ok {
			return Area{}, false
		}
		*dst = f
	}
	return a, true
}

type place struct {
	lat, lon float64
	area     Area
	hasArea  bool
}

type nominatimResult struct {
	Lat         string   `json:"lat"`
	Lon         string   `json:"lon"`
	BoundingBox []string `json:"boundingbox"`
}

func (r *Resolver) geocode(ctx context.Context, query string) (place, error) {
	u, err := url.Parse(r.NominatimURL)
	if err != nil {
		return place{}, err
	}
	q := u.Query()
	q.Set("format", "json")
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return place{}, err
	}
	var results []nominatimResult
	if err := r.do(req, &results); err != nil {
		return place{}, fmt.Errorf("nominatim: %w", err)
	}
	if len(results) == 0 {
		return place{}, errors.New("nominatim: no match")
	}
	res := results[0]
	var p place
	switch len(res.BoundingBox) {
	case 0:
	case 4:
		// boundingbox is [south, north, west, east]
		var bb [4]float64
		for i, s := range res.BoundingBox {
			if bb[i], err = strconv.ParseFloat(s, 64); err != nil {
				return place{}, fmt.Errorf("nominatim: bounding box: %w", err)
			}
		}
		p.area = Area{S: bb[0], N: bb[1], W: bb[2], E: bb[3]}
		p.hasArea = true
	default:
		return place{}, fmt.Errorf("nominatim: bounding box has %d values", len(res.BoundingBox))
	}
	if p.lat, err = strconv.ParseFloat(res.Lat, 64); err != nil {
		return place{}, fmt.Errorf("nominatim: lat: %w", err)
	}
	if p.lon, err = strconv.ParseFloat(res.Lon, 64); err != nil {
		return place{}, fmt.Errorf("nominatim: lon: %w", err)
	}
	return p, nil
}

// OverpassElement is one node or way of an Overpass JSON response.
type OverpassElement struct {
	Type  string            `json:"type"`
	ID    int64             `json:"id"`
	Lat   float64           `json:"lat"`
	Lon   float64           `json:"lon"`
	Nodes []int64           `json:"nodes"`
	Tags  map[string]string `json:"tags"`
}

// OverpassQuery is the query fetching highway ways and their nodes in a.
func OverpassQuery(a Area) string {
	return fmt.Sprintf(`[out:json][timeout:10];way(%v,%v,%v,%v)["highway"];(._;>;);out body;`, a.S, a.W, a.N, a.E)
}

func (r *Resolver) areaGraph(ctx context.Context, area Area, query string) (*graph.Graph, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.OverpassURL, bytes.NewBufferString(OverpassQuery(area)))
	if err != nil {
		return nil, err
	}
	var body struct {
		Elements []OverpassElement `json:"elements"`
	}
	if err := r.do(req, &body); err != nil {
		return nil, fmt.Errorf("overpass: %w", err)
	}
	return BuildAreaGraph(body.Elements, area, query)
}

// BuildAreaGraph turns Overpass elements into an undirected graph. Every
// consecutive pair of way nodes becomes a link weighted by its geodesic
// length; pairs repeated across ways are linked once.
func BuildAreaGraph(elements []OverpassElement, area Area, query string) (*graph.Graph, error) {
	var nodes []graph.Node
	coords := make(map[int64]graph.Node)
	for _, el := range elements {
		if el.Type != "node" {
			continue
		}
		n := graph.Node{ID: graph.NodeID(strconv.FormatInt(el.ID, 10)), Lat: el.Lat, Lon: el.Lon}
		if len(el.Tags) > 0 {
			tags := make(map[string]any, len(el.Tags))
			for k, v := range el.Tags {
				tags[k] = v
			}
			n.Attrs = graph.Attrs{"tags": tags}
		}
		if _, dup := coords[el.ID]; dup {
			continue
		}
		coords[el.ID] = n
		nodes = append(nodes, n)
	}

	type pair struct{ a, b int64 }
	seen := make(map[pair]bool)
	var links []graph.Link
	for _, el := range elements {
		if el.Type != "way" {
			continue
		}
		for i := 1; i < len(el.Nodes); i++ {
			a, b := el.Nodes[i-1], el.Nodes[i]
			na, okA := coords[a]
			nb, okB := coords[b]
			if a == b || !okA || !okB {
				continue
			}
			k := pair{min(a, b), max(a, b)}
			if seen[k] {
				continue
			}
			seen[k] = true
			links = append(links, graph.Link{
				Source: na.ID,
				Target: nb.ID,
				Attrs:  graph.Attrs{graph.WeightKey: graph.Geodesic(na.Lat, na.Lon, nb.Lat, nb.Lon)},
			})
		}
	}

	return graph.Build(nodes, links, graph.Options{Attrs: graph.Attrs{
		"query": query,
		"area":  map[string]any{"n": area.N, "s": area.S, "e": area.E, "w": area.W},
	}})
}

func (r *Resolver) do(req *http.Request, v any) error {
	req.Header.Set("User-Agent", r.UserAgent)
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (r *Resolver) cached(ctx context.Context, kind, query string) ([]byte, bool) {
	if r.Cache == nil {
		return nil, false
	}
	data, ok, err := r.Cache.Get(ctx, kind, query)
	if err != nil {
		logrus.Warnf("geo: cache read %s %q: %v", kind, query, err)
		return nil, false
	}
	return data, ok
}

func (r *Resolver) store(ctx context.Context, kind, query string, value []byte) {
	if r.Cache == nil {
		return
	}
	if err := r.Cache.Put(ctx, kind, query, value); err != nil {
		logrus.Warnf("geo: cache write %s %q: %v", kind, query, err)
	}
}

func graphQuery(g *graph.Graph) string {
	if q, ok := g.Attrs()["query"].(string); ok {
		return q
	}
	return ""
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}
