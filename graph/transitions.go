package graph

import (
	"fmt"

	"github.com/stratgov/researchgraph/core"
)

// transitions is the guarded transition table. Any edge not listed here is a
// programming error, not a runtime condition; the executor refuses to take
// it.
var transitions = map[core.Node][]core.Node{
	core.NodeThink:      {core.NodeSearch, core.NodeSynthesize},
	core.NodeSearch:     {core.NodeDownload, core.NodeThink, core.NodeSynthesize},
	core.NodeDownload:   {core.NodeDistill, core.NodeThink, core.NodeSynthesize},
	core.NodeDistill:    {core.NodeThink, core.NodeSynthesize},
	core.NodeSynthesize: {core.NodeEnd},
}

// validTransition reports whether from -> to is an edge of the graph.
func validTransition(from, to core.Node) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// errInvalidTransition builds the error for a rejected edge.
func errInvalidTransition(from, to core.Node) error {
	return fmt.Errorf("graph: invalid transition %s -> %s", from, to)
}
