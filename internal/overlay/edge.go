package overlay

import (
	"fmt"

	"netembed/internal/template"
)

// Edge is a routed connection between two instances, derived from a template
// arc. There is at most one edge between any pair of instances.
type Edge struct {
	Arc       *template.Arc
	Source    *Instance
	Dest      *Instance
	Direction template.Direction

	// Paths holds the substrate node sequences the edge is routed over. The
	// builder always assigns exactly one shortest path; the per-path data
	// rate split stays in place for the latent multi-path signature.
	Paths [][]string

	// Flows lists the flows mapped onto the edge.
	Flows []*Flow
}

// NewEdge creates an edge between the two instances and registers it in their
// edge indexes.
func NewEdge(arc *template.Arc, source, dest *Instance) *Edge {
	e := &Edge{
		Arc:       arc,
		Source:    source,
		Dest:      dest,
		Direction: arc.Direction,
	}
	source.EdgesOut[dest] = e
	dest.EdgesIn[source] = e
	return e
}

// String renders the edge with its flows, backward edges with a reversed arrow.
func (e *Edge) String() string {
	if e.Direction == template.Backward {
		return fmt.Sprintf("%s<-%s:%v", e.Dest, e.Source, e.Flows)
	}
	return fmt.Sprintf("%s->%s:%v", e.Source, e.Dest, e.Flows)
}

// FlowDR returns the total data rate of all flows currently on the edge.
func (e *Edge) FlowDR() float64 {
	var sum float64
	for _, f := range e.Flows {
		sum += f.DR[e]
	}
	return sum
}

// HasFlow reports whether a flow with the given id is mapped onto the edge.
func (e *Edge) HasFlow(id string) bool {
	for _, f := range e.Flows {
		if f.ID == id {
			return true
		}
	}
	return false
}

// RemoveFlow unmaps the flow with the given id from the edge, including its
// data rate entry. Unknown ids are ignored.
func (e *Edge) RemoveFlow(f *Flow) {
	for idx, mapped := range e.Flows {
		if mapped.ID == f.ID {
			e.Flows = append(e.Flows[:idx], e.Flows[idx+1:]...)
			delete(mapped.DR, e)
			return
		}
	}
}
