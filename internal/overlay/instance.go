package overlay

import (
	"fmt"

	"netembed/internal/template"
)

// InstanceKey is the identity of an instance: at most one instance per
// component and node exists in an overlay.
type InstanceKey struct {
	Component string
	Location  string
}

// String renders the key as "(component,location)".
func (k InstanceKey) String() string {
	return fmt.Sprintf("(%s,%s)", k.Component, k.Location)
}

// Instance is a component placed at a substrate node.
type Instance struct {
	Component *template.Component
	Location  string

	// SrcFlows is set for source instances only and owns the flows the
	// source emits.
	SrcFlows []*Flow

	// Fixed instances are pinned to their location and survive rebuilds.
	Fixed bool

	// EdgesIn and EdgesOut index the instance's edges by the instance at the
	// other end.
	EdgesIn  map[*Instance]*Edge
	EdgesOut map[*Instance]*Edge
}

// NewInstance places a non-source component at a node.
func NewInstance(j *template.Component, location string) *Instance {
	return &Instance{
		Component: j,
		Location:  location,
		EdgesIn:   map[*Instance]*Edge{},
		EdgesOut:  map[*Instance]*Edge{},
	}
}

// NewFixedInstance places a pinned instance at a node.
func NewFixedInstance(j *template.Component, location string) *Instance {
	i := NewInstance(j, location)
	i.Fixed = true
	return i
}

// NewSourceInstance places a source component emitting the given flows.
// The flows' stateful bookkeeping is initialized to this instance.
func NewSourceInstance(j *template.Component, location string, srcFlows []*Flow) *Instance {
	i := NewInstance(j, location)
	if srcFlows == nil {
		srcFlows = []*Flow{}
	}
	i.SrcFlows = srcFlows
	for _, f := range srcFlows {
		f.PassedStateful[j.Name] = i
	}
	return i
}

// Key returns the instance identity.
func (i *Instance) Key() InstanceKey {
	return InstanceKey{Component: i.Component.Name, Location: i.Location}
}

// Is reports identity with another instance: same component and location.
func (i *Instance) Is(other *Instance) bool {
	return other != nil && i.Component.Is(other.Component) && i.Location == other.Location
}

// String renders the instance as its key, with flows for sources.
func (i *Instance) String() string {
	if i.SrcFlows != nil {
		return fmt.Sprintf("%s:%v", i.Key(), i.SrcFlows)
	}
	return i.Key().String()
}

// InputDR returns the ingoing data rate per input as a vector over all ingoing
// edges: forward inputs first, then backward inputs.
func (i *Instance) InputDR() []float64 {
	inDR := make([]float64, 0, i.Component.Inputs+i.Component.InputsBack)
	for k := 0; k < i.Component.Inputs; k++ {
		var sum float64
		for _, e := range i.EdgesIn {
			if e.Direction == template.Forward && e.Arc.DestIn == k {
				sum += e.FlowDR()
			}
		}
		inDR = append(inDR, sum)
	}
	for k := 0; k < i.Component.InputsBack; k++ {
		var sum float64
		for _, e := range i.EdgesIn {
			if e.Direction == template.Backward && e.Arc.DestIn == k {
				sum += e.FlowDR()
			}
		}
		inDR = append(inDR, sum)
	}
	return inDR
}

// ConsumedCPU returns the CPU consumed by the instance given its ingoing
// edges. The idle term is skipped when the instance's component is the one
// named by ignoreIdle.
func (i *Instance) ConsumedCPU(ignoreIdle *template.Component) float64 {
	return i.Component.CPUReq(i.InputDR(), ignoreIdle)
}

// ConsumedMem is ConsumedCPU for memory.
func (i *Instance) ConsumedMem(ignoreIdle *template.Component) float64 {
	return i.Component.MemReq(i.InputDR(), ignoreIdle)
}

// updatePassedStateful records this instance on all flows arriving in forward
// direction when the component is stateful. The backward pass traverses the
// same instance, so no update is needed there.
func (i *Instance) updatePassedStateful(direction template.Direction) {
	if !i.Component.Stateful || direction != template.Forward {
		return
	}
	for _, e := range i.EdgesIn {
		if e.Direction != direction {
			continue
		}
		for _, f := range e.Flows {
			f.PassedStateful[i.Component.Name] = i
		}
	}
}

// OutFlows computes, for every output of the instance in the given direction,
// which flows leave that output and with what data rate, by applying the
// component's per-output linear rate functions to each ingoing flow
// individually. Source instances emit their own flows at SrcDR; end instances
// answer in backward direction from their forward ingoing edges.
func (i *Instance) OutFlows(direction template.Direction) []map[*Flow]float64 {
	i.updatePassedStateful(direction)

	j := i.Component
	switch direction {
	case template.Forward:
		out := newOutFlowSlots(j.Outputs)
		switch {
		case j.Source:
			if len(out) == 0 {
				out = newOutFlowSlots(1)
			}
			for _, f := range i.SrcFlows {
				out[0][f] = f.SrcDR
			}
			return out
		case j.End:
			return nil
		default:
			for _, e := range i.EdgesIn {
				if e.Direction != template.Forward {
					continue
				}
				for _, f := range e.Flows {
					inDR := singleInputVector(j.Inputs, e.Arc.DestIn, f.DR[e])
					for kOut := 0; kOut < j.Outputs; kOut++ {
						if dr := j.Outgoing(inDR, kOut); dr > 0 {
							out[kOut][f] += dr
						}
					}
				}
			}
			return out
		}

	case template.Backward:
		out := newOutFlowSlots(j.OutputsBack)
		switch {
		case j.Source:
			return nil
		case j.End:
			// end instances turn forward ingoing flows around
			for _, e := range i.EdgesIn {
				if e.Direction != template.Forward {
					continue
				}
				for _, f := range e.Flows {
					inDR := singleInputVector(j.Inputs, e.Arc.DestIn, f.DR[e])
					for kOut := 0; kOut < j.OutputsBack; kOut++ {
						if dr := j.OutgoingBack(inDR, kOut); dr > 0 {
							out[kOut][f] += dr
						}
					}
				}
			}
			return out
		default:
			for _, e := range i.EdgesIn {
				if e.Direction != template.Backward {
					continue
				}
				for _, f := range e.Flows {
					inDR := singleInputVector(j.InputsBack, e.Arc.DestIn, f.DR[e])
					for kOut := 0; kOut < j.OutputsBack; kOut++ {
						if dr := j.OutgoingBack(inDR, kOut); dr > 0 {
							out[kOut][f] += dr
						}
					}
				}
			}
			return out
		}
	}
	return nil
}

func newOutFlowSlots(n int) []map[*Flow]float64 {
	out := make([]map[*Flow]float64, n)
	for k := range out {
		out[k] = map[*Flow]float64{}
	}
	return out
}

// singleInputVector builds an input vector that is nonzero only at the
// arrival input of one flow.
func singleInputVector(inputs, at int, dr float64) []float64 {
	in := make([]float64, inputs)
	if at < inputs {
		in[at] = dr
	}
	return in
}

// Used reports whether the instance carries traffic: source instances always
// do, end instances whenever they have forward ingoing flows, all others when
// an ingoing edge of the given direction has a positive total data rate.
func (i *Instance) Used(direction template.Direction, o *Overlay) bool {
	if i.SrcFlows != nil {
		return true
	}
	if i.Component.End {
		direction = template.Forward
	}
	for _, e := range i.EdgesIn {
		if e.Direction != direction || !o.ContainsEdge(e) {
			continue
		}
		if e.FlowDR() > 0 {
			return true
		}
	}
	return false
}
