package template

import (
	"reflect"

	"netembed/pkg/apperror"
)

// AdaptForReuse rewrites the given templates so that components referenced by
// more than one template get disjoint port ranges per template.
//
// For every component the number of reuses is derived from the arcs touching
// its ports; all ports must be used the same number of times. Reused
// components are expanded (see Component.Adapt), then each template's arcs are
// shifted by a per-template offset onto the expanded ports. Same-named
// components must be defined identically across templates.
//
// The rewrite happens in place and is idempotent for single-use components.
func AdaptForReuse(templates []*Template) error {
	var arcs []*Arc
	for _, t := range templates {
		arcs = append(arcs, t.Arcs...)
	}

	// find reused components and expand them
	componentReuses := map[string]int{}
	var reusedComponents []*Component // duplicates on purpose: one entry per defining template
	for _, t := range templates {
		for _, j := range t.Components {
			uses, err := reuses(j, arcs)
			if err != nil {
				return err
			}
			if uses > 1 {
				if j.Source {
					return apperror.Newf(apperror.CodeSourceReused,
						"source component %s cannot be reused", j.Name)
				}
				j.Adapt(uses)
				componentReuses[j.Name] = uses
				reusedComponents = append(reusedComponents, j)
			}
		}
	}
	if err := checkConsistency(reusedComponents); err != nil {
		return err
	}

	// shift each template's arcs onto its own port range
	for name, uses := range componentReuses {
		portOffset := 0
		for _, t := range templates {
			arcShifted := false
			for _, a := range t.Arcs {
				if a.Dest.Name == name {
					a.DestIn += portOffset
					arcShifted = true
				}
				if a.Source.Name == name {
					a.SrcOut += portOffset
					arcShifted = true
				}
			}
			if arcShifted {
				if portOffset >= uses {
					return apperror.Newf(apperror.CodeInvalidPortOffset,
						"component %s: port offset %d exceeds %d reuses", name, portOffset, uses)
				}
				portOffset++
			}
		}
	}

	return nil
}

// reuses counts how often each port of the component is referenced by an arc
// and requires the count to be uniform across all ports.
func reuses(j *Component, arcs []*Arc) (int, error) {
	times := map[int]bool{}
	countPort := func(match func(a *Arc) bool) {
		n := 0
		for _, a := range arcs {
			if match(a) {
				n++
			}
		}
		times[n] = true
	}

	for k := 0; k < j.Inputs; k++ {
		k := k
		countPort(func(a *Arc) bool { return a.EndsIn(Forward, k, j) })
	}
	for k := 0; k < j.Outputs; k++ {
		k := k
		countPort(func(a *Arc) bool { return a.StartsAt(Forward, k, j) })
	}
	for k := 0; k < j.InputsBack; k++ {
		k := k
		countPort(func(a *Arc) bool { return a.EndsIn(Backward, k, j) })
	}
	for k := 0; k < j.OutputsBack; k++ {
		k := k
		countPort(func(a *Arc) bool { return a.StartsAt(Backward, k, j) })
	}

	if len(times) != 1 {
		return 0, apperror.Newf(apperror.CodeNonUniformReuse,
			"not all ports of %s are (re-)used the same number of times", j.Name)
	}
	for n := range times {
		return n, nil
	}
	return 0, nil
}

// checkConsistency requires all definitions of a same-named component to
// agree on every attribute.
func checkConsistency(components []*Component) error {
	for _, j1 := range components {
		for _, j2 := range components {
			if j1.Name == j2.Name && !sameDefinition(j1, j2) {
				return apperror.Newf(apperror.CodeInconsistentReuse,
					"inconsistent definition of reused component %s", j1.Name)
			}
		}
	}
	return nil
}

func sameDefinition(j1, j2 *Component) bool {
	return j1.Source == j2.Source && j1.End == j2.End && j1.Stateful == j2.Stateful &&
		j1.Inputs == j2.Inputs && j1.InputsBack == j2.InputsBack &&
		j1.Outputs == j2.Outputs && j1.OutputsBack == j2.OutputsBack &&
		j1.VNFDelay == j2.VNFDelay &&
		reflect.DeepEqual(j1.CPU, j2.CPU) && reflect.DeepEqual(j1.Mem, j2.Mem) &&
		reflect.DeepEqual(j1.DR, j2.DR) && reflect.DeepEqual(j1.DRBack, j2.DRBack)
}
