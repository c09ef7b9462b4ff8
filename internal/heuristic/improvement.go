package heuristic

import (
	"netembed/internal/overlay"
	"netembed/internal/template"
)

// improve runs the tabu search with mild simulated annealing over the initial
// solution: per outer iteration each template's overlay is perturbed by
// setting one random non-source, non-fixed instance tabu, cutting the overlay
// back to the topological prefix before it and rebuilding from there. Better
// solutions become the incumbent; slightly worse ones (within the worsening
// threshold) are accepted with the configured probability. The search stops
// after MaxUnsuccessful outer iterations without a new best solution.
func (e *Engine) improve(st *solveState, overlays map[*template.Template]*overlay.Overlay) map[*template.Template]*overlay.Overlay {
	best := deepCopyOverlays(overlays)
	incumbent := deepCopyOverlays(overlays)

	totalIterations := 0
	unsuccessful := 0
	for unsuccessful < e.opts.MaxUnsuccessful {
		totalIterations++
		unsuccessful++

		// reset to the incumbent once per outer iteration
		modified := deepCopyOverlays(incumbent)

		for _, t := range st.templates {
			ol, ok := modified[t]
			if !ok {
				// the overlay was dropped for lack of sources
				continue
			}

			var movable []*overlay.Instance
			for _, i := range ol.Instances {
				if !i.Component.Source && !i.Fixed {
					movable = append(movable, i)
				}
			}
			if len(movable) == 0 {
				e.log.Debug("skipping overlay modification, all instances fixed", "template", t.Name)
				continue
			}
			randInstance := movable[e.rng.Intn(len(movable))]
			tabu := TabuSet{{Component: randInstance.Component.Name, Node: randInstance.Location}: {}}

			e.log.Debug("modifying overlay with tabu instance",
				"iteration", totalIterations, "template", t.Name, "tabu", randInstance.String())

			if !resetOverlay(ol, randInstance) {
				continue
			}
			rebuilt, err := build(st.nodes, st.links, st.templates, modified, st.sources, st.fixed,
				st.sp, tabu, e.rng, e.log)
			if err != nil {
				e.log.Warn("rebuild with tabu failed, modification discarded", "error", err)
				modified = deepCopyOverlays(incumbent)
				continue
			}
			modified = rebuilt

			newValue := st.eval.value(modified)
			incumbentValue := st.eval.value(incumbent)
			switch {
			case newValue < incumbentValue:
				e.log.Debug("improved objective value, new incumbent", "value", newValue)
				incumbent = deepCopyOverlays(modified)
				if newValue < st.eval.value(best) {
					e.log.Debug("new best solution", "value", newValue)
					best = deepCopyOverlays(modified)
					unsuccessful = 0
				}
			case newValue <= e.opts.WorseningThreshold*incumbentValue:
				// accept slight worsening with a coin flip to escape local optima
				if e.rng.Float64() < e.opts.WorseningProbability {
					e.log.Debug("slightly worse objective value accepted as incumbent", "value", newValue)
					incumbent = deepCopyOverlays(modified)
				} else {
					e.log.Debug("slightly worse objective value discarded", "value", newValue)
				}
			default:
				e.log.Debug("worse objective value, modification discarded", "value", newValue)
			}
		}
	}

	e.log.Info("improvement finished", "outer_iterations", totalIterations)
	return best
}

// resetOverlay cuts the overlay back to the instances strictly before the
// given instance in topological order, dropping everything that follows and
// pruning the edge indexes and flow bookkeeping down to the surviving prefix.
// Returns false when the instance is not part of the topological order.
func resetOverlay(ol *overlay.Overlay, inst *overlay.Instance) bool {
	order := ol.TopologicalInstances()
	index := -1
	for idx, i := range order {
		if i == inst {
			index = idx
			break
		}
	}
	if index < 0 {
		return false
	}

	keep := map[*overlay.Instance]bool{}
	for _, i := range order[:index] {
		keep[i] = true
	}

	instances := ol.Instances[:0]
	for _, i := range ol.Instances {
		if keep[i] {
			instances = append(instances, i)
		}
	}
	ol.Instances = instances

	edges := ol.Edges[:0]
	for _, e := range ol.Edges {
		if keep[e.Source] && keep[e.Dest] {
			edges = append(edges, e)
		}
	}
	ol.Edges = edges

	surviving := map[*overlay.Edge]bool{}
	for _, e := range ol.Edges {
		surviving[e] = true
	}
	for _, i := range ol.Instances {
		for other, e := range i.EdgesIn {
			if !surviving[e] {
				delete(i.EdgesIn, other)
			}
		}
		for other, e := range i.EdgesOut {
			if !surviving[e] {
				delete(i.EdgesOut, other)
			}
		}
	}

	for _, i := range ol.Instances {
		for _, f := range i.SrcFlows {
			for e := range f.DR {
				if !surviving[e] {
					delete(f.DR, e)
				}
			}
			for name, passed := range f.PassedStateful {
				if !keep[passed] {
					delete(f.PassedStateful, name)
				}
			}
		}
	}

	return true
}

// deepCopyOverlays snapshots a full solution. Overlays are webs of
// cross-references, so preserving the incumbent and best solutions across
// modifications requires real deep copies; shallow copies would alias
// instances, flows and edges.
func deepCopyOverlays(overlays map[*template.Template]*overlay.Overlay) map[*template.Template]*overlay.Overlay {
	copied := make(map[*template.Template]*overlay.Overlay, len(overlays))
	for t, ol := range overlays {
		copied[t] = ol.DeepCopy()
	}
	return copied
}
