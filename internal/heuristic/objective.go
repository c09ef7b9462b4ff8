// Package heuristic implements the placement engine: topology-driven initial
// embedding of service templates onto the substrate plus tabu-guided
// iterative improvement, evaluated under a configurable multi-criteria
// objective.
package heuristic

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"netembed/internal/model"
	"netembed/internal/overlay"
	"netembed/internal/paths"
	"netembed/internal/template"
	"netembed/pkg/apperror"
)

// Objective selects what the search minimizes.
type Objective int

const (
	// ObjectiveCombined combines all criteria lexicographically by weight.
	ObjectiveCombined Objective = iota
	// ObjectiveOverSub minimizes the maximum over-subscription alone.
	ObjectiveOverSub
	// ObjectiveChanged minimizes the instances changed against the previous embedding.
	ObjectiveChanged
	// ObjectiveResources minimizes the total resource consumption.
	ObjectiveResources
	// ObjectiveDelay minimizes the total delay.
	ObjectiveDelay
)

// Weights of the combined objective. They keep the criteria lexicographically
// separated as long as the raw terms stay below their nominal ceilings:
// fewer than 100 changed instances, total resources below 1000 and total
// delay below 1000. Identical to the weights of the exact solver formulation.
const (
	weightOverSub   = 100 * 1000 * 1000
	weightChanged   = 1000 * 1000
	weightResources = 1000
)

// ParseObjective maps the configuration string to an Objective.
func ParseObjective(s string) (Objective, error) {
	switch s {
	case "combined":
		return ObjectiveCombined, nil
	case "over-sub":
		return ObjectiveOverSub, nil
	case "changed":
		return ObjectiveChanged, nil
	case "resources":
		return ObjectiveResources, nil
	case "delay":
		return ObjectiveDelay, nil
	default:
		return 0, apperror.Newf(apperror.CodeInvalidArgument, "objective %q unknown", s)
	}
}

// String returns the configuration name of the objective.
func (o Objective) String() string {
	switch o {
	case ObjectiveCombined:
		return "combined"
	case ObjectiveOverSub:
		return "over-sub"
	case ObjectiveChanged:
		return "changed"
	case ObjectiveResources:
		return "resources"
	case ObjectiveDelay:
		return "delay"
	default:
		return "unknown"
	}
}

// Evaluation is the full breakdown of one solution's objective.
type Evaluation struct {
	// Value is the objective value; +Inf when the solution is infeasible.
	Value float64

	// Infeasible is set when any edge path exceeds its arc's delay bound.
	Infeasible bool

	MaxCPUOver float64
	MaxMemOver float64
	MaxDROver  float64

	// Changed lists the instances added or removed against the previous
	// embedding, sorted for stable output.
	Changed []overlay.InstanceKey

	TotalDelay float64
	TotalCPU   float64
	TotalMem   float64
	TotalDR    float64

	// Per-node and per-link consumption, for result reporting.
	ConsumedCPU map[string]float64
	ConsumedMem map[string]float64
	ConsumedDR  map[model.LinkID]float64
}

// evaluator computes objective values for overlay sets against fixed request
// state. Iteration always follows the templates slice and the substrate ID
// slices so that floating point accumulation order, and therefore the value,
// is identical for identical inputs.
type evaluator struct {
	nodes     *model.Nodes
	links     *model.Links
	templates []*template.Template
	prev      map[overlay.InstanceKey]bool
	objective Objective
	log       *slog.Logger
}

// value returns just the objective value.
func (ev *evaluator) value(overlays map[*template.Template]*overlay.Overlay) float64 {
	return ev.evaluate(overlays).Value
}

// evaluate computes the full breakdown for the given overlays.
func (ev *evaluator) evaluate(overlays map[*template.Template]*overlay.Overlay) *Evaluation {
	result := &Evaluation{}

	// delay feasibility of every edge path
	ev.eachOverlay(overlays, func(ol *overlay.Overlay) {
		for _, e := range ol.Edges {
			for _, path := range e.Paths {
				if paths.Delay(ev.links, path) > e.Arc.MaxDelay {
					ev.log.Warn("embedding infeasible: path delay exceeds arc bound",
						"edge", e.String(), "arc", e.Arc.String(), "max_delay", e.Arc.MaxDelay)
					result.Infeasible = true
				}
			}
		}
	})

	// changed instances against the previous embedding
	curr := map[overlay.InstanceKey]*overlay.Instance{}
	ev.eachOverlay(overlays, func(ol *overlay.Overlay) {
		for _, i := range ol.Instances {
			curr[i.Key()] = i
		}
	})
	for key := range curr {
		if !ev.prev[key] {
			result.Changed = append(result.Changed, key)
		}
	}
	for key := range ev.prev {
		if _, ok := curr[key]; !ok {
			result.Changed = append(result.Changed, key)
		}
	}
	sort.Slice(result.Changed, func(i, j int) bool {
		if result.Changed[i].Component != result.Changed[j].Component {
			return result.Changed[i].Component < result.Changed[j].Component
		}
		return result.Changed[i].Location < result.Changed[j].Location
	})

	// node resource consumption and over-subscription
	result.ConsumedCPU, result.ConsumedMem = consumedNodeResources(ev.nodes, ev.templates, overlays, nil)
	for _, v := range ev.nodes.IDs {
		if over := result.ConsumedCPU[v] - ev.nodes.CPU[v]; over > result.MaxCPUOver {
			result.MaxCPUOver = over
		}
		if over := result.ConsumedMem[v] - ev.nodes.Mem[v]; over > result.MaxMemOver {
			result.MaxMemOver = over
		}
	}

	// link consumption: edge data rate split equally among the edge's paths,
	// and every (arc, edge endpoints, link) combination counted once for the
	// delay sum
	result.ConsumedDR = map[model.LinkID]float64{}
	linkUsed := map[string]float64{}
	ev.eachOverlay(overlays, func(ol *overlay.Overlay) {
		for _, e := range ol.Edges {
			for _, path := range e.Paths {
				for i := 0; i < len(path)-1; i++ {
					if path[i] == path[i+1] {
						continue // co-located instances, no link traversed
					}
					link := model.LinkID{Src: path[i], Dst: path[i+1]}
					result.ConsumedDR[link] += e.FlowDR() / float64(len(e.Paths))
					useKey := fmt.Sprintf("%s|%s|%s|%s", e.Arc, e.Source.Location, e.Dest.Location, link)
					linkUsed[useKey] = ev.links.Delay[link]
				}
			}
		}
	})
	for _, l := range ev.links.IDs {
		if over := result.ConsumedDR[l] - ev.links.DR[l]; over > result.MaxDROver {
			result.MaxDROver = over
		}
	}

	// total delay over used links plus per-instance processing delays
	useKeys := make([]string, 0, len(linkUsed))
	for key := range linkUsed {
		useKeys = append(useKeys, key)
	}
	sort.Strings(useKeys)
	for _, key := range useKeys {
		result.TotalDelay += linkUsed[key]
	}
	currKeys := make([]overlay.InstanceKey, 0, len(curr))
	for key := range curr {
		currKeys = append(currKeys, key)
	}
	sort.Slice(currKeys, func(i, j int) bool {
		if currKeys[i].Component != currKeys[j].Component {
			return currKeys[i].Component < currKeys[j].Component
		}
		return currKeys[i].Location < currKeys[j].Location
	})
	for _, key := range currKeys {
		result.TotalDelay += curr[key].Component.VNFDelay
	}

	// total consumed resources
	for _, v := range ev.nodes.IDs {
		result.TotalCPU += result.ConsumedCPU[v]
		result.TotalMem += result.ConsumedMem[v]
	}
	for _, l := range ev.links.IDs {
		result.TotalDR += result.ConsumedDR[l]
	}

	result.Value = ev.objectiveValue(result)
	return result
}

func (ev *evaluator) objectiveValue(result *Evaluation) float64 {
	if result.Infeasible {
		return math.Inf(1)
	}
	switch ev.objective {
	case ObjectiveCombined:
		value := weightOverSub * (result.MaxCPUOver + result.MaxMemOver + result.MaxDROver)
		value += weightChanged * float64(len(result.Changed))
		value += weightResources * (result.TotalCPU + result.TotalMem + result.TotalDR)
		value += result.TotalDelay
		return value
	case ObjectiveOverSub:
		return result.MaxCPUOver + result.MaxMemOver + result.MaxDROver
	case ObjectiveChanged:
		return float64(len(result.Changed))
	case ObjectiveResources:
		return result.TotalCPU + result.TotalMem + result.TotalDR
	case ObjectiveDelay:
		return result.TotalDelay
	default:
		panic(apperror.Newf(apperror.CodeInvalidArgument, "objective %d unknown", ev.objective))
	}
}

// eachOverlay visits the overlays in template order, skipping templates whose
// overlay was dropped.
func (ev *evaluator) eachOverlay(overlays map[*template.Template]*overlay.Overlay, visit func(*overlay.Overlay)) {
	for _, t := range ev.templates {
		if ol, ok := overlays[t]; ok {
			visit(ol)
		}
	}
}

// consumedNodeResources sums the CPU and memory consumption of all instances
// per node. Instances reused across overlays exist once per overlay with
// different ingoing edges, so duplicates are counted on purpose. The idle
// consumption of instances of ignoreIdle is skipped.
func consumedNodeResources(nodes *model.Nodes, templates []*template.Template,
	overlays map[*template.Template]*overlay.Overlay, ignoreIdle *template.Component) (cpu, mem map[string]float64) {

	cpu = make(map[string]float64, len(nodes.IDs))
	mem = make(map[string]float64, len(nodes.IDs))
	for _, v := range nodes.IDs {
		cpu[v] = 0
		mem[v] = 0
	}
	for _, t := range templates {
		ol, ok := overlays[t]
		if !ok {
			continue
		}
		for _, i := range ol.Instances {
			cpu[i.Location] += i.ConsumedCPU(ignoreIdle)
			mem[i.Location] += i.ConsumedMem(ignoreIdle)
		}
	}
	return cpu, mem
}

// instanceKeys collects the identities of all instances across the overlays.
func instanceKeys(overlays map[*template.Template]*overlay.Overlay) map[overlay.InstanceKey]bool {
	keys := map[overlay.InstanceKey]bool{}
	for _, ol := range overlays {
		for _, i := range ol.Instances {
			keys[i.Key()] = true
		}
	}
	return keys
}
