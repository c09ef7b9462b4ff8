// Package overlay holds the mutable runtime state of one embedded template:
// component instances bound to substrate nodes, routed edges between them and
// the unsplittable flows mapped onto those edges.
//
// Identity rules (matching the data model, not pointer identity): flows are
// identified by ID, instances by (component name, location), edges by their
// two endpoint instances. Within a single overlay, instances and edges are
// unique under those keys, so pointer-keyed maps stay consistent as long as
// lookups go through the key-aware helpers.
package overlay

// Flow is an atomic, non-splittable unit of traffic emitted by a source.
type Flow struct {
	// ID uniquely identifies the flow across the whole request.
	ID string

	// SrcDR is the data rate with which the flow leaves its source.
	SrcDR float64

	// DR is the data rate the flow contributes to each edge it traverses.
	DR map[*Edge]float64

	// PassedStateful records, per stateful component name, the instance the
	// flow traversed in forward direction. The backward pass must return the
	// flow through the same instances.
	PassedStateful map[string]*Instance
}

// NewFlow creates a flow with the given id and source data rate.
func NewFlow(id string, srcDR float64) *Flow {
	return &Flow{
		ID:             id,
		SrcDR:          srcDR,
		DR:             map[*Edge]float64{},
		PassedStateful: map[string]*Instance{},
	}
}

// String returns the flow id.
func (f *Flow) String() string { return f.ID }
