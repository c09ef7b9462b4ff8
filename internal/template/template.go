package template

import (
	"log/slog"

	"netembed/pkg/apperror"
)

// Template is a directed VNF graph describing one service: a set of
// components and the arcs connecting their ports in both directions.
// Templates are compared by name; all templates of one request need unique
// names.
type Template struct {
	Name       string
	Components []*Component
	Arcs       []*Arc
}

// String returns the template name.
func (t *Template) String() string { return t.Name }

// Source returns the template's source component, or nil if there is none.
func (t *Template) Source() *Component {
	for _, j := range t.Components {
		if j.Source {
			return j
		}
	}
	return nil
}

// Component returns the named component of the template, or nil.
func (t *Template) Component(name string) *Component {
	for _, j := range t.Components {
		if j.Name == name {
			return j
		}
	}
	return nil
}

// Contains reports whether a component of the given name belongs to the template.
func (t *Template) Contains(j *Component) bool {
	return j != nil && t.Component(j.Name) != nil
}

// Validate checks the structural invariants that must hold before any
// embedding work: exactly one source component and a valid direction on every
// arc. Port/arc consistency is checked by AdaptForReuse.
func (t *Template) Validate() error {
	sources := 0
	for _, j := range t.Components {
		if j.Source {
			sources++
		}
	}
	if sources != 1 {
		return apperror.Newf(apperror.CodeMissingSource,
			"template %s has %d source components, want exactly 1", t.Name, sources)
	}
	for _, a := range t.Arcs {
		if !a.Direction.Valid() {
			return apperror.Newf(apperror.CodeInvalidDirection,
				"template %s: arc %s has direction %q", t.Name, a, a.Direction)
		}
		if !t.Contains(a.Source) || !t.Contains(a.Dest) {
			return apperror.Newf(apperror.CodeUnknownComponent,
				"template %s: arc %s references a component outside the template", t.Name, a)
		}
	}
	return nil
}

// DemoteUnusedStateful clears the stateful flag on components that are not
// traversed in both directions; the return-to-same-instance constraint is
// meaningless for them. Returns the names of the demoted components so the
// caller can surface the warning.
func (t *Template) DemoteUnusedStateful(log *slog.Logger) []string {
	var demoted []string
	for _, j := range t.Components {
		if !j.Stateful {
			continue
		}
		usedForward, usedBackward := false, false
		for _, a := range t.Arcs {
			if a.Direction == Forward && a.Source.Is(j) {
				usedForward = true
			}
			if a.Direction == Backward && a.Dest.Is(j) {
				usedBackward = true
			}
		}
		if !usedForward || !usedBackward {
			j.Stateful = false
			demoted = append(demoted, j.Name)
			if log != nil {
				log.Warn("stateful component not used bidirectionally, demoted to non-stateful",
					"template", t.Name, "component", j.Name)
			}
		}
	}
	return demoted
}

// ComponentOrder returns the components in topological order: breadth-first
// along forward arcs from the source, then breadth-first along backward arcs
// from the end components. Duplicates within a direction keep their last
// occurrence, so every component appears after all of its predecessors.
func (t *Template) ComponentOrder() []*Component {
	var fwdOrder, bwdOrder, currLevel []*Component

	src := t.Source()
	currLevel = append(currLevel, src)
	fwdOrder = append(fwdOrder, src)

	for len(currLevel) > 0 {
		var nextLevel []*Component
		for _, j := range currLevel {
			for _, a := range t.Arcs {
				if a.Direction == Forward && a.Source.Is(j) {
					nextLevel = append(nextLevel, a.Dest)
					fwdOrder = append(fwdOrder, a.Dest)
				}
			}
		}
		currLevel = nextLevel
	}

	// backward direction starts from the end components
	currLevel = nil
	for _, j := range fwdOrder {
		if j.End {
			currLevel = append(currLevel, j)
		}
	}
	fwdOrder = append(fwdOrder, currLevel...)

	for len(currLevel) > 0 {
		var nextLevel []*Component
		for _, j := range currLevel {
			for _, a := range t.Arcs {
				if a.Direction == Backward && a.Source.Is(j) {
					nextLevel = append(nextLevel, a.Dest)
					bwdOrder = append(bwdOrder, a.Dest)
				}
			}
		}
		currLevel = nextLevel
	}

	return append(dedupKeepLast(fwdOrder), dedupKeepLast(bwdOrder)...)
}

// dedupKeepLast removes duplicates keeping the last occurrence of each
// component, preserving relative order otherwise.
func dedupKeepLast(order []*Component) []*Component {
	seen := make(map[string]bool, len(order))
	result := make([]*Component, 0, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		if !seen[order[i].Name] {
			seen[order[i].Name] = true
			result = append(result, order[i])
		}
	}
	// reverse back into original orientation
	for l, r := 0, len(result)-1; l < r; l, r = l+1, r-1 {
		result[l], result[r] = result[r], result[l]
	}
	return result
}

// Weight estimates the resource footprint of embedding the template for the
// given total source data rate: a single simulated flow is pushed through the
// topological order (forward first, then backward from the end components),
// and the resulting CPU, memory and outgoing data rates are summed up.
// Used only to schedule the heaviest templates first.
func (t *Template) Weight(srcDR float64) float64 {
	type outKey struct {
		component string
		direction Direction
		output    int
	}
	outDR := map[outKey]float64{}

	var totalCPU, totalMem, totalDR float64
	record := func(j *Component, d Direction, out int, dr float64) {
		outDR[outKey{j.Name, d, out}] = dr
		totalDR += dr
	}

	direction := Forward
	endReached := false
	for _, j := range t.ComponentOrder() {
		if j.End {
			endReached = true
		}
		if endReached && !j.End {
			direction = Backward
		}

		if j.Source {
			if direction == Forward {
				record(j, Forward, 0, srcDR)
			}
			continue
		}

		if direction == Forward {
			inDRFwd := make([]float64, j.Inputs)
			for kIn := 0; kIn < j.Inputs; kIn++ {
				// ports adapted for another template have no arc here and stay 0
				for _, a := range t.Arcs {
					if a.EndsIn(Forward, kIn, j) {
						inDRFwd[kIn] = outDR[outKey{a.Source.Name, Forward, a.SrcOut}]
						break
					}
				}
			}
			inDRBwd := make([]float64, j.InputsBack)

			in := append(append([]float64{}, inDRFwd...), inDRBwd...)
			totalCPU += j.CPUReq(in, nil)
			totalMem += j.MemReq(in, nil)

			// end components only have backward outputs
			if j.End {
				for kOut := 0; kOut < j.OutputsBack; kOut++ {
					record(j, Backward, kOut, j.OutgoingBack(inDRFwd, kOut))
				}
			} else {
				for kOut := 0; kOut < j.Outputs; kOut++ {
					record(j, Forward, kOut, j.Outgoing(inDRFwd, kOut))
				}
			}
			continue
		}

		// backward direction
		inDRFwd := make([]float64, j.Inputs)
		inDRBwd := make([]float64, j.InputsBack)
		for kIn := 0; kIn < j.InputsBack; kIn++ {
			for _, a := range t.Arcs {
				if a.EndsIn(Backward, kIn, j) {
					inDRBwd[kIn] = outDR[outKey{a.Source.Name, Backward, a.SrcOut}]
					break
				}
			}
		}

		in := append(append([]float64{}, inDRFwd...), inDRBwd...)
		totalCPU += j.CPUReq(in, nil)
		totalMem += j.MemReq(in, nil)

		for kOut := 0; kOut < j.OutputsBack; kOut++ {
			record(j, Backward, kOut, j.OutgoingBack(inDRBwd, kOut))
		}
	}

	return totalCPU + totalMem + totalDR
}
