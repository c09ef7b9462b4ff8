package overlay

import (
	"netembed/internal/template"
)

// Overlay is the embedding of one template: its placed instances and the
// routed edges between them. The instance and edge slices keep insertion
// order; all traversals iterate them in order so results stay reproducible.
type Overlay struct {
	Template  *template.Template
	Instances []*Instance
	Edges     []*Edge
}

// New creates an empty overlay for the template.
func New(t *template.Template) *Overlay {
	return &Overlay{Template: t}
}

// Empty reports whether the overlay has neither instances nor edges.
func (o *Overlay) Empty() bool {
	return len(o.Instances) == 0 && len(o.Edges) == 0
}

// InstanceAt returns the overlay's instance of the component at the node, or
// nil. Component matching is by name.
func (o *Overlay) InstanceAt(j *template.Component, location string) *Instance {
	for _, i := range o.Instances {
		if i.Component.Is(j) && i.Location == location {
			return i
		}
	}
	return nil
}

// ContainsEdge reports whether the edge belongs to the overlay.
func (o *Overlay) ContainsEdge(e *Edge) bool {
	for _, candidate := range o.Edges {
		if candidate == e {
			return true
		}
	}
	return false
}

// AddInstance appends the instance to the overlay.
func (o *Overlay) AddInstance(i *Instance) {
	o.Instances = append(o.Instances, i)
}

// AddEdge appends the edge to the overlay.
func (o *Overlay) AddEdge(e *Edge) {
	o.Edges = append(o.Edges, e)
}

// TopologicalInstances returns the overlay's instances ordered along the
// template's topological component order: forward direction first, switching
// to backward after the last end component. Non-source instances are included
// while they carry traffic in the current direction or have no ingoing edges
// yet (freshly placed).
func (o *Overlay) TopologicalInstances() []*Instance {
	instances, _ := o.topologicalOrder()
	return instances
}

// TopologicalEdges returns the overlay's edges ordered by their destination
// instance's topological position and direction.
func (o *Overlay) TopologicalEdges() []*Edge {
	_, edges := o.topologicalOrder()
	return edges
}

func (o *Overlay) topologicalOrder() ([]*Instance, []*Edge) {
	var instanceOrder []*Instance
	var edgeOrder []*Edge

	direction := template.Forward
	endReached := false
	for _, j := range o.Template.ComponentOrder() {
		if j.End {
			endReached = true
		}
		if endReached && !j.End {
			direction = template.Backward
		}

		var currInstances []*Instance
		for _, i := range o.Instances {
			if !i.Component.Is(j) {
				continue
			}
			// sources are ordered independently of their ingoing edges
			if j.Source || i.Used(direction, o) || len(i.EdgesIn) == 0 {
				currInstances = append(currInstances, i)
			}
		}
		instanceOrder = append(instanceOrder, currInstances...)

		for _, e := range o.Edges {
			if e.Direction != direction {
				continue
			}
			for _, i := range currInstances {
				if e.Dest == i {
					edgeOrder = append(edgeOrder, e)
					break
				}
			}
		}
	}

	return instanceOrder, edgeOrder
}

// DeepCopy clones the overlay: fresh instances and flows first, then fresh
// edges added in topological order so that the edge indexes and the flows'
// per-edge data rates and stateful bookkeeping rebuild naturally. The
// template and its components stay shared; they are immutable during solving.
func (o *Overlay) DeepCopy() *Overlay {
	clone := New(o.Template)
	instanceOf := make(map[*Instance]*Instance, len(o.Instances))
	flowOf := map[*Flow]*Flow{}

	for _, i := range o.Instances {
		var newInstance *Instance
		if i.SrcFlows != nil {
			newFlows := make([]*Flow, 0, len(i.SrcFlows))
			for _, f := range i.SrcFlows {
				nf := NewFlow(f.ID, f.SrcDR)
				flowOf[f] = nf
				newFlows = append(newFlows, nf)
			}
			newInstance = NewSourceInstance(i.Component, i.Location, newFlows)
		} else {
			newInstance = NewInstance(i.Component, i.Location)
		}
		newInstance.Fixed = i.Fixed
		clone.AddInstance(newInstance)
		instanceOf[i] = newInstance
	}

	for _, e := range o.TopologicalEdges() {
		newEdge := NewEdge(e.Arc, instanceOf[e.Source], instanceOf[e.Dest])
		newEdge.Paths = make([][]string, 0, len(e.Paths))
		for _, p := range e.Paths {
			newEdge.Paths = append(newEdge.Paths, append([]string{}, p...))
		}
		for _, f := range e.Flows {
			nf := flowOf[f]
			if nf == nil {
				continue
			}
			newEdge.Flows = append(newEdge.Flows, nf)
			nf.DR[newEdge] = f.DR[e]
			if newEdge.Source.Component.Stateful {
				nf.PassedStateful[newEdge.Source.Component.Name] = newEdge.Source
			} else if newEdge.Dest.Component.Stateful {
				nf.PassedStateful[newEdge.Dest.Component.Name] = newEdge.Dest
			}
		}
		clone.AddEdge(newEdge)
	}

	return clone
}
