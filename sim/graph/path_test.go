package graph

import (
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortestPath_PrefersCheaperDetour(t *testing.T) {
	// A-B is expensive; A-C-B is cheaper
	g, err := Build(
		[]Node{{ID: "A"}, {ID: "B"}, {ID: "C"}, {ID: "D"}},
		[]Link{
			{Source: "A", Target: "B", Attrs: Attrs{"weight": 10.0}},
			{Source: "A", Target: "C", Attrs: Attrs{"weight": 1.0}},
			{Source: "C", Target: "B", Attrs: Attrs{"weight": 1.0}},
		},
		Options{},
	)
	require.NoError(t, err)

	p, err := g.ShortestPath("A", "B")
	require.NoError(t, err)
	assert.Equal(t, []NodeID{"A", "C", "B"}, p)

	// undirected: the reverse works too
	p, err = g.ShortestPath("B", "A")
	require.NoError(t, err)
	assert.Equal(t, []NodeID{"B", "C", "A"}, p)

	p, err = g.ShortestPath("A", "A")
	require.NoError(t, err)
	assert.Equal(t, []NodeID{"A"}, p)
}

func TestShortestPath_DisconnectedIsNoPathError(t *testing.T) {
	g, err := Build([]Node{{ID: "A"}, {ID: "B"}, {ID: "C"}}, []Link{{Source: "A", Target: "B"}}, Options{Directed: true})
	require.NoError(t, err)

	tests := []struct{ from, to NodeID }{
		{"A", "C"},
		{"B", "A"}, // directed: no way back
		{"A", "missing"},
	}
	for _, tt := range tests {
		_, err := g.ShortestPath(tt.from, tt.to)
		var npe *NoPathError
		assert.True(t, errors.As(err, &npe), "%s->%s: got %v", tt.from, tt.to, err)
	}
}

func TestShortestPath_MultigraphUsesCheapestParallelLink(t *testing.T) {
	g, err := Build(
		[]Node{{ID: "A"}, {ID: "B"}, {ID: "C"}},
		[]Link{
			{Source: "A", Target: "B", Attrs: Attrs{"weight": 9.0}},
			{Source: "A", Target: "B", Attrs: Attrs{"weight": 1.0}},
			{Source: "A", Target: "C", Attrs: Attrs{"weight": 2.0}},
			{Source: "C", Target: "B", Attrs: Attrs{"weight": 2.0}},
		},
		Options{Multigraph: true},
	)
	require.NoError(t, err)
	p, err := g.ShortestPath("A", "B")
	require.NoError(t, err)
	assert.Equal(t, []NodeID{"A", "B"}, p)
}

// TestGraphInvariants checks that every built graph only holds links whose
// endpoints resolve, and that construction fails otherwise.
func TestGraphInvariants(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping property-based test in short mode")
	}
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("links resolve or construction fails", prop.ForAll(
		func(nodeCount int, ends []int) bool {
			nodes := make([]Node, nodeCount)
			for i := range nodes {
				nodes[i] = Node{ID: NodeID(fmt.Sprint(i))}
			}
			var links []Link
			dangling := false
			for i := 0; i+1 < len(ends); i += 2 {
				if ends[i] >= nodeCount || ends[i+1] >= nodeCount {
					dangling = true
				}
				links = append(links, Link{Source: NodeID(fmt.Sprint(ends[i])), Target: NodeID(fmt.Sprint(ends[i+1]))})
			}
			g, err := Build(nodes, links, Options{Directed: true, Multigraph: true})
			if dangling {
				var gie *GraphIntegrityError
				return errors.As(err, &gie)
			}
			if err != nil {
				return false
			}
			for _, l := range g.Links() {
				if !g.HasNode(l.Source) || !g.HasNode(l.Target) {
					return false
				}
			}
			return len(g.Links()) == len(links)
		},
		gen.IntRange(0, 8),
		gen.SliceOf(gen.IntRange(0, 10)),
	))

	properties.TestingRun(t)
}
