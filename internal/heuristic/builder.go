package heuristic

import (
	"log/slog"
	"math"
	"math/rand"
	"sort"

	"netembed/internal/model"
	"netembed/internal/overlay"
	"netembed/internal/paths"
	"netembed/internal/template"
	"netembed/pkg/apperror"
)

// TabuKey forbids placing a component at a node during one builder run.
type TabuKey struct {
	Component string
	Node      string
}

// TabuSet is the set of forbidden (component, node) placements.
type TabuSet map[TabuKey]struct{}

// builder constructs or updates the overlays for one request. It walks each
// template's instances in topological order, forward first, and maps every
// outgoing flow onto a new or existing edge towards the best reachable node.
type builder struct {
	nodes     *model.Nodes
	links     *model.Links
	sp        paths.Table
	templates []*template.Template
	overlays  map[*template.Template]*overlay.Overlay
	tabu      TabuSet
	rng       *rand.Rand
	log       *slog.Logger
}

// build produces the embedding for the templates, inheriting whatever is
// still valid from the previous overlays. Templates must already be adapted
// for reuse and sorted; the tabu set may be nil.
func build(nodes *model.Nodes, links *model.Links, templates []*template.Template,
	prev map[*template.Template]*overlay.Overlay, sources []*overlay.Source,
	fixed []*overlay.FixedInstance, sp paths.Table, tabu TabuSet,
	rng *rand.Rand, log *slog.Logger) (map[*template.Template]*overlay.Overlay, error) {

	if tabu == nil {
		tabu = TabuSet{}
	}
	b := &builder{
		nodes:     nodes,
		links:     links,
		sp:        sp,
		templates: templates,
		overlays:  map[*template.Template]*overlay.Overlay{},
		tabu:      tabu,
		rng:       rng,
		log:       log,
	}

	// keep previous overlays of templates that still exist
	for _, t := range templates {
		if ol, ok := prev[t]; ok {
			b.overlays[t] = ol
		} else {
			b.overlays[t] = overlay.New(t)
			b.log.Debug("created empty overlay for new template", "template", t.Name)
		}
	}

	// remove all instances of fixed components; the current fixed instances
	// are re-added below at exactly their prescribed locations
	fixedComponents := map[string]bool{}
	for _, fi := range fixed {
		fixedComponents[fi.Component.Name] = true
	}
	for _, t := range templates {
		ol := b.overlays[t]
		for _, i := range snapshotInstances(ol.Instances) {
			if fixedComponents[i.Component.Name] {
				b.removeInstance(ol, i)
			}
		}
	}

	// embed templates sequentially in the given order
	for _, t := range templates {
		b.log.Debug("embedding template", "template", t.Name)
		ol := b.overlays[t]

		var ownSources []*overlay.Source
		for _, src := range sources {
			if t.Contains(src.Component) {
				ownSources = append(ownSources, src)
			}
		}
		b.updateSources(ol, ownSources)

		for _, fi := range fixed {
			if t.Contains(fi.Component) && ol.InstanceAt(fi.Component, fi.Location) == nil {
				ol.AddInstance(overlay.NewFixedInstance(fi.Component, fi.Location))
				b.log.Debug("added fixed instance", "component", fi.Component.Name, "node", fi.Location)
			}
		}

		if err := b.traverse(t, ol); err != nil {
			return nil, err
		}

		if ol.Empty() {
			delete(b.overlays, t)
			b.log.Debug("deleted empty overlay", "template", t.Name)
		}
	}

	return b.overlays, nil
}

// traverse walks the overlay's instances in topological order and updates the
// flow mapping of every output. The direction switches to backward at the
// first end instance; unused non-fixed instances are dropped along the way.
func (b *builder) traverse(t *template.Template, ol *overlay.Overlay) error {
	direction := template.Forward
	i := 0
	for {
		order := ol.TopologicalInstances()
		if i >= len(order) {
			return nil
		}
		inst := order[i]

		if !inst.Fixed && !inst.Used(direction, ol) {
			b.log.Debug("removed unused instance", "instance", inst.String(), "template", t.Name)
			b.removeInstance(ol, inst)
			continue
		}

		if inst.Component.End {
			direction = template.Backward
		}

		outFlows := inst.OutFlows(direction)
		for k := range outFlows {
			arc, err := outArc(t, inst.Component, k, direction)
			if err != nil {
				return err
			}
			if arc == nil {
				// after reuse adaptation this output's arc belongs to another template
				continue
			}
			if err := b.updateFlowMapping(ol, inst, arc, outFlows[k]); err != nil {
				return err
			}
		}

		i++
	}
}

// outArc returns the template's arc leaving the component at the given output
// in the given direction, nil when the output is not used by this template.
func outArc(t *template.Template, j *template.Component, output int, direction template.Direction) (*template.Arc, error) {
	var found *template.Arc
	for _, a := range t.Arcs {
		if a.StartsAt(direction, output, j) {
			if found != nil {
				return nil, apperror.Newf(apperror.CodeAmbiguousArc,
					"multiple %s arcs leave %s at output %d of template %s", direction, j.Name, output, t.Name)
			}
			found = a
		}
	}
	return found, nil
}

// updateSources reconciles the overlay's source instances and flows with the
// current set of sources: stale flows and source instances disappear, new
// ones are added and the stateful bookkeeping of every mapped flow is reset
// for the upcoming traversal.
func (b *builder) updateSources(ol *overlay.Overlay, sources []*overlay.Source) {
	srcFlowIDs := map[string]bool{}
	for _, src := range sources {
		for _, f := range src.Flows {
			srcFlowIDs[f.ID] = true
		}
	}

	// every flow mapped to an edge or declared by a source: reset the
	// stateful bookkeeping and drop flows no longer emitted by any source
	seen := map[string]bool{}
	var mappedFlows []*overlay.Flow
	for _, e := range ol.Edges {
		for _, f := range e.Flows {
			if !seen[f.ID] {
				seen[f.ID] = true
				mappedFlows = append(mappedFlows, f)
			}
		}
	}
	for _, src := range sources {
		for _, f := range src.Flows {
			if !seen[f.ID] {
				seen[f.ID] = true
				mappedFlows = append(mappedFlows, f)
			}
		}
	}
	for _, f := range mappedFlows {
		clear(f.PassedStateful)
		if !srcFlowIDs[f.ID] {
			b.removeFlow(ol, f)
		}
	}

	// add or update a source instance per source
	for _, src := range sources {
		existing := ol.InstanceAt(src.Component, src.Location)
		if existing == nil {
			ol.AddInstance(overlay.NewSourceInstance(src.Component, src.Location,
				append([]*overlay.Flow{}, src.Flows...)))
			b.log.Debug("added new source instance", "component", src.Component.Name, "node", src.Location)
			continue
		}

		// drop flows the source no longer emits, including their edge mappings
		kept := existing.SrcFlows[:0]
		for _, f := range existing.SrcFlows {
			if srcHasFlow(src, f.ID) {
				kept = append(kept, f)
				continue
			}
			for e := range f.DR {
				removeFlowFromEdge(e, f)
			}
			clear(f.DR)
			clear(f.PassedStateful)
		}
		existing.SrcFlows = kept

		// refresh kept flows, adopt new ones
		for _, f := range src.Flows {
			if cur := flowByID(existing.SrcFlows, f.ID); cur != nil {
				cur.SrcDR = f.SrcDR
				cur.PassedStateful[existing.Component.Name] = existing
			} else {
				existing.SrcFlows = append(existing.SrcFlows, f)
				f.PassedStateful[existing.Component.Name] = existing
			}
		}
		b.log.Debug("updated source instance flows", "instance", existing.String())
	}

	// remove source instances whose source is gone
	for _, i := range snapshotInstances(ol.Instances) {
		if !i.Component.Source {
			continue
		}
		matched := false
		for _, src := range sources {
			if src.Component.Is(i.Component) && src.Location == i.Location {
				matched = true
				break
			}
		}
		if !matched {
			b.log.Debug("removed source instance without source", "instance", i.String())
			b.removeInstance(ol, i)
		}
	}
}

// updateFlowMapping updates the mapping of the flows leaving the instance
// along the given arc: stale mappings are removed, backward arcs into a
// stateful component route every flow back to the instance it passed forward,
// everything else is mapped in a deterministically shuffled order, and edges
// left without flows are dropped.
func (b *builder) updateFlowMapping(ol *overlay.Overlay, inst *overlay.Instance,
	arc *template.Arc, outFlows map[*overlay.Flow]float64) error {

	mapped := map[string]*overlay.Edge{}
	for _, e := range inst.EdgesOut {
		if !sameArc(e.Arc, arc) {
			continue
		}
		for _, f := range e.Flows {
			mapped[f.ID] = e
		}
	}

	outByID := make(map[string]bool, len(outFlows))
	for f := range outFlows {
		outByID[f.ID] = true
	}

	// remove outdated flows
	for id, e := range mapped {
		if !outByID[id] {
			removeFlowID(e, id)
			delete(mapped, id)
		}
	}

	if arc.Direction == template.Backward && (arc.Dest.Stateful || arc.Dest.Source) {
		// flows must return through the stateful instances passed forward;
		// flows entering a source return to their own source instance, which
		// is tracked the same way
		if err := b.mapFlowsToStateful(ol, inst, arc, outFlows); err != nil {
			return err
		}
	} else {
		// sorted by id for reproducibility, then shuffled so that different
		// iterations map the flows in different orders
		ordered := make([]*overlay.Flow, 0, len(outFlows))
		for f := range outFlows {
			ordered = append(ordered, f)
		}
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })
		b.rng.Shuffle(len(ordered), func(i, j int) { ordered[i], ordered[j] = ordered[j], ordered[i] })

		for _, f := range ordered {
			if e, ok := mapped[f.ID]; ok {
				f.DR[e] = outFlows[f]
			} else if err := b.mapFlowToEdge(ol, inst, arc, f, outFlows[f]); err != nil {
				return err
			}
		}
	}

	// drop edges without flows along this arc
	for _, e := range snapshotEdges(inst.EdgesOut) {
		if sameArc(e.Arc, arc) && len(e.Flows) == 0 {
			b.log.Debug("removed empty edge", "edge", e.String())
			b.removeEdge(ol, e)
		}
	}
	return nil
}

// mapFlowsToStateful maps the outgoing flows onto edges back to the same
// stateful instances the flows traversed in forward direction, creating the
// edges as needed.
func (b *builder) mapFlowsToStateful(ol *overlay.Overlay, inst *overlay.Instance,
	arc *template.Arc, outFlows map[*overlay.Flow]float64) error {

	// existing mappings along the arc are rebuilt from scratch
	for _, e := range inst.EdgesOut {
		if sameArc(e.Arc, arc) {
			e.Flows = nil
		}
	}

	ordered := make([]*overlay.Flow, 0, len(outFlows))
	for f := range outFlows {
		ordered = append(ordered, f)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	for _, f := range ordered {
		destInst := f.PassedStateful[arc.Dest.Name]
		if destInst == nil {
			return apperror.Newf(apperror.CodeInternal,
				"flow %s reached backward arc %s without passing stateful %s forward", f.ID, arc, arc.Dest.Name)
		}
		edge, ok := inst.EdgesOut[destInst]
		if !ok {
			edge = overlay.NewEdge(arc, inst, destInst)
			edge.Paths = append(edge.Paths, copyPath(b.sp[paths.Pair{Src: inst.Location, Dst: destInst.Location}].Path))
			ol.AddEdge(edge)
		}
		f.DR[edge] = outFlows[f]
		edge.Flows = append(edge.Flows, f)
		b.log.Debug("mapped flow back to stateful instance", "flow", f.ID, "edge", edge.String(), "new", !ok)
	}
	return nil
}

// mapFlowToEdge maps one flow onto a possibly new edge from the instance
// along the arc, placing a new destination instance if necessary.
func (b *builder) mapFlowToEdge(ol *overlay.Overlay, inst *overlay.Instance,
	arc *template.Arc, f *overlay.Flow, flowDR float64) error {

	// fixed destination instances cannot be added or moved, only reused
	fixed := false
	for _, i := range ol.Instances {
		if i.Component.Is(arc.Dest) && i.Fixed {
			fixed = true
			break
		}
	}

	bestNode, err := b.findBestNode(ol, inst.Location, arc, flowDR, fixed)
	if err != nil {
		return err
	}

	destInst := ol.InstanceAt(arc.Dest, bestNode)
	instanceExists := destInst != nil
	if !instanceExists {
		destInst = overlay.NewInstance(arc.Dest, bestNode)
		ol.AddInstance(destInst)
		b.log.Debug("added new instance at best node", "instance", destInst.String())
	}

	var edge *overlay.Edge
	if instanceExists {
		edge = inst.EdgesOut[destInst]
	}
	if edge == nil {
		edge = overlay.NewEdge(arc, inst, destInst)
		edge.Paths = append(edge.Paths, copyPath(b.sp[paths.Pair{Src: inst.Location, Dst: destInst.Location}].Path))
		ol.AddEdge(edge)
	}

	f.DR[edge] = flowDR
	edge.Flows = append(edge.Flows, f)
	b.log.Debug("mapped flow to edge", "flow", f.ID, "dr", flowDR, "edge", edge.String())
	return nil
}

// findBestNode returns the node to connect to from the start location along
// the arc: among the candidates with enough remaining capacity the one with
// the lowest path weight, or, when none remain, the reachable node with the
// lowest over-subscription, tie-broken by path weight.
func (b *builder) findBestNode(ol *overlay.Overlay, startLocation string,
	arc *template.Arc, deltaDR float64, fixed bool) (string, error) {

	candidates := b.candidateNodes(startLocation, arc, deltaDR)

	// fixed instances enforce reuse: only their nodes are allowed
	var fixedNodes []string
	if fixed {
		for _, i := range ol.Instances {
			if i.Component.Is(arc.Dest) &&
				b.sp[paths.Pair{Src: startLocation, Dst: i.Location}].Delay <= arc.MaxDelay {
				fixedNodes = append(fixedNodes, i.Location)
			}
		}
		candidates = intersect(candidates, fixedNodes)
	}

	if len(candidates) > 0 {
		best := ""
		bestWeight := math.Inf(1)
		for _, v := range candidates {
			if w := b.sp[paths.Pair{Src: startLocation, Dst: v}].Weight; w < bestWeight {
				best = v
				bestWeight = w
			}
		}
		return best, nil
	}

	// no node has enough remaining capacity: pick the reachable node with the
	// lowest over-subscription
	b.log.Debug("no candidate node with remaining resources, falling back to lowest over-subscription",
		"component", arc.Dest.Name)
	consumedCPU, consumedMem := consumedNodeResources(b.nodes, b.templates, b.overlays, nil)
	allowed := b.allowedNodes(startLocation, arc)
	if fixed {
		allowed = fixedNodes
	}

	best := ""
	minOverSub := math.Inf(1)
	minWeight := math.Inf(1)
	for _, v := range allowed {
		overSub := (consumedCPU[v] - b.nodes.CPU[v]) + (consumedMem[v] - b.nodes.Mem[v])
		if overSub <= minOverSub {
			weight := b.sp[paths.Pair{Src: startLocation, Dst: v}].Weight
			if overSub < minOverSub || weight < minWeight {
				best = v
				minOverSub = overSub
				minWeight = weight
			}
		}
	}
	if best == "" {
		return "", apperror.Newf(apperror.CodeNoCandidateNode,
			"no node within delay %v of %s is allowed for component %s", arc.MaxDelay, startLocation, arc.Dest.Name)
	}
	return best, nil
}

// candidateNodes returns the ids, in substrate order, of the reachable,
// non-tabu nodes that can still fit the destination component's requirement
// at the increased ingoing data rate. Remaining capacities are not returned.
func (b *builder) candidateNodes(startLocation string, arc *template.Arc, deltaDR float64) []string {
	// increased ingoing data rate: deltaDR at the arc's input, 0 elsewhere
	inputs := arc.Dest.Inputs + arc.Dest.InputsBack
	deltaIn := make([]float64, inputs)
	if arc.Direction == template.Forward {
		deltaIn[arc.DestIn] = deltaDR
	} else {
		deltaIn[arc.Dest.Inputs+arc.DestIn] = deltaDR
	}

	// current consumption without the idle share of existing destination
	// instances, so that reusing one of them is not penalized twice
	consumedCPU, consumedMem := consumedNodeResources(b.nodes, b.templates, b.overlays, arc.Dest)

	cpuReq := arc.Dest.CPUReq(deltaIn, nil)
	memReq := arc.Dest.MemReq(deltaIn, nil)

	var candidates []string
	for _, v := range b.allowedNodes(startLocation, arc) {
		remainingCPU := b.nodes.CPU[v] - consumedCPU[v]
		remainingMem := b.nodes.Mem[v] - consumedMem[v]
		if remainingCPU-cpuReq >= 0 && remainingMem-memReq >= 0 {
			b.log.Debug("candidate node", "component", arc.Dest.Name, "node", v,
				"remaining_cpu", remainingCPU, "remaining_mem", remainingMem)
			candidates = append(candidates, v)
		}
	}
	return candidates
}

// allowedNodes lists the nodes within the arc's delay bound that are not tabu
// for the destination component, in substrate order.
func (b *builder) allowedNodes(startLocation string, arc *template.Arc) []string {
	var allowed []string
	for _, v := range b.nodes.IDs {
		if b.sp[paths.Pair{Src: startLocation, Dst: v}].Delay > arc.MaxDelay {
			continue
		}
		if _, tabu := b.tabu[TabuKey{Component: arc.Dest.Name, Node: v}]; tabu {
			continue
		}
		allowed = append(allowed, v)
	}
	return allowed
}

// removeInstance removes the instance and its edges from the overlay and
// clears it from the stateful bookkeeping of the overlay's flows.
func (b *builder) removeInstance(ol *overlay.Overlay, inst *overlay.Instance) {
	for _, e := range ol.Edges {
		for _, f := range e.Flows {
			for name, passed := range f.PassedStateful {
				if passed == inst {
					delete(f.PassedStateful, name)
				}
			}
		}
	}

	kept := ol.Instances[:0]
	for _, i := range ol.Instances {
		if i != inst {
			kept = append(kept, i)
		}
	}
	ol.Instances = kept
	b.log.Debug("removed instance from overlay", "instance", inst.String(), "template", ol.Template.Name)

	for _, e := range snapshotEdgeSlice(ol.Edges) {
		if e.Source == inst || e.Dest == inst {
			b.removeEdge(ol, e)
		}
	}
}

// removeEdge removes the edge from the overlay, from the instances' edge
// indexes and from the data rate maps of its flows.
func (b *builder) removeEdge(ol *overlay.Overlay, e *overlay.Edge) {
	for _, f := range e.Flows {
		delete(f.DR, e)
	}
	kept := ol.Edges[:0]
	for _, candidate := range ol.Edges {
		if candidate != e {
			kept = append(kept, candidate)
		}
	}
	ol.Edges = kept
	for _, i := range ol.Instances {
		for other, candidate := range i.EdgesIn {
			if candidate == e {
				delete(i.EdgesIn, other)
			}
		}
		for other, candidate := range i.EdgesOut {
			if candidate == e {
				delete(i.EdgesOut, other)
			}
		}
	}
	b.log.Debug("removed edge", "edge", e.String())
}

// removeFlow unmaps the flow everywhere in the overlay and drops edges left
// without flows.
func (b *builder) removeFlow(ol *overlay.Overlay, f *overlay.Flow) {
	b.log.Debug("removing outdated flow and empty edges", "flow", f.ID)
	for _, e := range snapshotEdgeSlice(ol.Edges) {
		removeFlowID(e, f.ID)
		if len(e.Flows) == 0 {
			b.removeEdge(ol, e)
		}
	}
}

// sameArc compares arcs by value; arcs of re-read templates compare equal to
// their originals.
func sameArc(a, b *template.Arc) bool {
	if a == b {
		return true
	}
	return a.Direction == b.Direction && a.Source.Is(b.Source) && a.SrcOut == b.SrcOut &&
		a.Dest.Is(b.Dest) && a.DestIn == b.DestIn && a.MaxDelay == b.MaxDelay
}

func srcHasFlow(src *overlay.Source, id string) bool {
	for _, f := range src.Flows {
		if f.ID == id {
			return true
		}
	}
	return false
}

func flowByID(flows []*overlay.Flow, id string) *overlay.Flow {
	for _, f := range flows {
		if f.ID == id {
			return f
		}
	}
	return nil
}

// removeFlowFromEdge removes the flow with this flow's ID from the edge without
// touching its data rate map; the caller clears that wholesale.
func removeFlowFromEdge(e *overlay.Edge, f *overlay.Flow) {
	kept := e.Flows[:0]
	for _, mapped := range e.Flows {
		if mapped.ID != f.ID {
			kept = append(kept, mapped)
		}
	}
	e.Flows = kept
}

// removeFlowID unmaps the flow with the given id from the edge, including its
// data rate entry.
func removeFlowID(e *overlay.Edge, id string) {
	kept := e.Flows[:0]
	for _, mapped := range e.Flows {
		if mapped.ID == id {
			delete(mapped.DR, e)
			continue
		}
		kept = append(kept, mapped)
	}
	e.Flows = kept
}

func snapshotInstances(instances []*overlay.Instance) []*overlay.Instance {
	return append([]*overlay.Instance{}, instances...)
}

func snapshotEdgeSlice(edges []*overlay.Edge) []*overlay.Edge {
	return append([]*overlay.Edge{}, edges...)
}

// snapshotEdges copies the values of an edge index in a stable order.
func snapshotEdges(index map[*overlay.Instance]*overlay.Edge) []*overlay.Edge {
	edges := make([]*overlay.Edge, 0, len(index))
	for _, e := range index {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Dest.Component.Name != edges[j].Dest.Component.Name {
			return edges[i].Dest.Component.Name < edges[j].Dest.Component.Name
		}
		return edges[i].Dest.Location < edges[j].Dest.Location
	})
	return edges
}

func intersect(candidates []string, allowed []string) []string {
	allowedSet := make(map[string]bool, len(allowed))
	for _, v := range allowed {
		allowedSet[v] = true
	}
	var result []string
	for _, v := range candidates {
		if allowedSet[v] {
			result = append(result, v)
		}
	}
	return result
}

func copyPath(path []string) []string {
	return append([]string{}, path...)
}
