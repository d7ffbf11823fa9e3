package scenario

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streetsim/streetsim/sim"
	"github.com/streetsim/streetsim/sim/behavior"
	"github.com/streetsim/streetsim/sim/graph"
)

const squareGraph = `{"directed": false, "multigraph": false, "graph": {"query": "square"},
  "nodes": [
    {"id": 1, "lat": 34.0000, "lon": 134.0000},
    {"id": 2, "lat": 34.0000, "lon": 134.0010},
    {"id": 3, "lat": 34.0010, "lon": 134.0010},
    {"id": 4, "lat": 34.0010, "lon": 134.0000}
  ],
  "links": [
    {"source": 1, "target": 2}, {"source": 2, "target": 3},
    {"source": 3, "target": 4}, {"source": 4, "target": 1}
  ]}`

func writeGraph(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "square.json"), []byte(squareGraph), 0o644))
	return dir
}

type fakeResolver struct {
	graphs  int
	nodes   []string
	lastFor bool
}

func (f *fakeResolver) ResolveGraph(_ context.Context, query string, force bool) (*graph.Graph, error) {
	f.graphs++
	f.lastFor = force
	return graph.ReadNodeLinkData(strings.NewReader(squareGraph))
}

func (f *fakeResolver) ResolveNode(_ context.Context, _ *graph.Graph, query string, force bool) (graph.NodeID, error) {
	f.nodes = append(f.nodes, query)
	return "3", nil
}

func TestLoad_StrictAndValidated(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unknown top-level field", "timelimit: 1\nhorizon: 3\n"},
		{"negative timelimit", "timelimit: -1\n"},
		{"bad error policy", "timelimit: 1\nerror_policy: retry\n"},
		{"file and place together", "graph: {file: g.json, place: town}\n"},
		{"group without behavior", "agents: [{count: 1}]\n"},
		{"zero count", "agents: [{behavior: wealth, count: 0}]\n"},
		{"node start without node", "agents: [{behavior: wealth, count: 1, start: node}]\n"},
		{"unknown start", "agents: [{behavior: wealth, count: 1, start: teleport}]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.src))
			assert.Error(t, err)
		})
	}
}

func TestAssemble_FileGraphWithPlacements(t *testing.T) {
	dir := writeGraph(t)
	src := `
version: "1"
seed: 42
timelimit: 600
error_policy: abort
graph:
  file: square.json
agents:
  - behavior: escaper
    count: 3
    start: random
    params: {goal: "3", speed: 1.4}
  - behavior: wanderer
    count: 1
    start: node
    node: "1"
  - behavior: wealth
    count: 2
`
	sc, err := Load(strings.NewReader(src))
	require.NoError(t, err)

	asm, err := sc.Assemble(testContext(t), dir, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, asm.Graph.NodeCount())
	require.Len(t, asm.Agents, 6)
	for _, spec := range asm.Agents[:3] {
		assert.True(t, asm.Graph.HasNode(spec.Node))
		require.IsType(t, &behavior.Escaper{}, spec.Behavior)
		assert.Equal(t, 1.4, spec.Behavior.(*behavior.Escaper).Speed)
	}
	assert.Equal(t, graph.NodeID("1"), asm.Agents[3].Node)
	assert.Equal(t, graph.NodeID(""), asm.Agents[4].Node)
	assert.Equal(t, sim.Config{Timelimit: 600, ErrorPolicy: sim.ErrorPolicyAbort, Seed: 42}, asm.Config)

	// same seed, same placement
	again, err := sc.Assemble(testContext(t), dir, nil)
	require.NoError(t, err)
	for i := range asm.Agents {
		assert.Equal(t, asm.Agents[i].Node, again.Agents[i].Node)
	}

	out, err := sim.Simulate(testContext(t), asm.Agents, asm.Graph, asm.Config.Timelimit,
		sim.WithSeed(asm.Config.Seed), sim.WithErrorPolicy(asm.Config.ErrorPolicy))
	require.NoError(t, err)
	assert.Len(t, out.Agents, 6)
}

func TestAssemble_PlaceQueriesGoThroughResolver(t *testing.T) {
	src := `
timelimit: 10
graph: {place: "square town", force: true}
agents:
  - behavior: escaper
    count: 2
    start: place
    place: "north gate"
    params: {goal_place: "city hall"}
`
	sc, err := Load(strings.NewReader(src))
	require.NoError(t, err)

	res := &fakeResolver{}
	asm, err := sc.Assemble(testContext(t), "", res)
	require.NoError(t, err)

	assert.Equal(t, 1, res.graphs)
	assert.True(t, res.lastFor)
	assert.Equal(t, []string{"north gate", "city hall", "north gate", "city hall"}, res.nodes)
	assert.Equal(t, graph.NodeID("3"), asm.Agents[0].Node)

	_, err = sc.Assemble(testContext(t), "", nil)
	assert.Error(t, err, "place queries without a resolver")
}

func TestAssemble_Errors(t *testing.T) {
	dir := writeGraph(t)
	tests := []struct {
		name string
		src  string
	}{
		{"missing graph file", "graph: {file: nope.json}\n"},
		{"unknown behavior", "agents: [{behavior: teleporter, count: 1}]\n"},
		{"start node not in graph", "graph: {file: square.json}\nagents: [{behavior: wealth, count: 1, start: node, node: \"9\"}]\n"},
		{"random start on empty graph", "agents: [{behavior: wealth, count: 1, start: random}]\n"},
		{"bad behavior params", "graph: {file: square.json}\nagents: [{behavior: wanderer, count: 1, params: {speed: -2}}]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, err := Load(strings.NewReader(tt.src))
			require.NoError(t, err)
			_, err = sc.Assemble(testContext(t), dir, nil)
			assert.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timelimit: 5\n"), 0o644))
	sc, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 5.0, sc.Timelimit)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
