package heuristic

import (
	"context"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"netembed/internal/model"
	"netembed/internal/overlay"
	"netembed/internal/paths"
	"netembed/internal/template"
	"netembed/pkg/apperror"
)

// Options configure one engine. The zero value is not usable; start from
// DefaultOptions.
type Options struct {
	// Objective selects the criterion the search minimizes.
	Objective Objective

	// Seed initializes the engine's RNG. One seeded generator drives the
	// flow shuffle, the tabu instance selection and the acceptance coin, so
	// identical inputs with an identical seed produce identical overlays and
	// objective values.
	Seed int64

	// MaxUnsuccessful stops the improvement loop after this many outer
	// iterations without a new best solution.
	MaxUnsuccessful int

	// WorseningThreshold bounds the slightly-worse solutions the improvement
	// loop may still accept, as a factor on the incumbent's value.
	WorseningThreshold float64

	// WorseningProbability is the chance of accepting such a solution.
	WorseningProbability float64
}

// DefaultOptions returns the engine defaults: combined objective, seed 0,
// 20 unsuccessful iterations, 1.1 worsening threshold, 0.5 probability.
func DefaultOptions() Options {
	return Options{
		Objective:            ObjectiveCombined,
		Seed:                 0,
		MaxUnsuccessful:      20,
		WorseningThreshold:   1.1,
		WorseningProbability: 0.5,
	}
}

// Request carries one embedding problem. Templates must be validated; the
// engine adapts them for component reuse itself.
type Request struct {
	Nodes     *model.Nodes
	Links     *model.Links
	Templates []*template.Template

	// Previous optionally warm-starts the embedding with the overlays of an
	// earlier solve. Entries for templates no longer requested are ignored.
	Previous map[*template.Template]*overlay.Overlay

	Sources []*overlay.Source
	Fixed   []*overlay.FixedInstance
}

// Result is a complete solve outcome.
type Result struct {
	// InitTime is the time spent precomputing shortest paths.
	InitTime time.Duration
	// Runtime is the time spent in the heuristic itself.
	Runtime time.Duration

	// Evaluation is the objective breakdown of the returned solution.
	Evaluation *Evaluation

	// Changed lists the instances added or removed against Previous.
	Changed []overlay.InstanceKey

	// Overlays is the embedding per template; templates without flows are
	// dropped from the map.
	Overlays map[*template.Template]*overlay.Overlay

	// Warnings surfaces non-fatal input repairs such as stateful demotion.
	Warnings []string
}

// Engine solves embedding requests. An engine is single-threaded and owns its
// RNG; run concurrent solves on separate engines.
type Engine struct {
	opts Options
	rng  *rand.Rand
	log  *slog.Logger
}

// NewEngine creates an engine with its own seeded RNG.
func NewEngine(opts Options, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		opts: opts,
		rng:  rand.New(rand.NewSource(opts.Seed)),
		log:  log,
	}
}

// solveState bundles the per-request inputs shared by the builder, the
// improvement loop and the evaluator.
type solveState struct {
	nodes     *model.Nodes
	links     *model.Links
	templates []*template.Template
	sources   []*overlay.Source
	fixed     []*overlay.FixedInstance
	sp        paths.Table
	eval      *evaluator
}

// Solve validates and adapts the request, computes all-pairs shortest paths,
// produces the initial embedding (heaviest template first) and improves it
// iteratively. The call is synchronous; ctx is accepted for the caller's
// benefit but the engine itself runs to completion.
func (e *Engine) Solve(ctx context.Context, req *Request) (*Result, error) {
	warnings, err := e.prepare(req)
	if err != nil {
		return nil, err
	}

	// previous placement, for the changed-instances criterion
	prevKeys := instanceKeys(req.Previous)

	startInit := time.Now()
	sp := paths.AllPairs(req.Nodes, req.Links)
	initTime := time.Since(startInit)
	e.log.Info("precomputed all-pairs shortest paths", "nodes", len(req.Nodes.IDs), "duration", initTime)

	startHeuristic := time.Now()

	// total source data rate per source component, for the template weights
	srcDRs := map[string]float64{}
	for _, src := range req.Sources {
		srcDRs[src.Component.Name] += src.TotalFlowDR()
	}

	// embed the heaviest, most difficult templates first
	templates := append([]*template.Template{}, req.Templates...)
	weights := make(map[*template.Template]float64, len(templates))
	for _, t := range templates {
		weights[t] = t.Weight(srcDRs[t.Source().Name])
		e.log.Debug("template weight", "template", t.Name, "weight", weights[t])
	}
	sort.SliceStable(templates, func(i, j int) bool { return weights[templates[i]] > weights[templates[j]] })

	st := &solveState{
		nodes:     req.Nodes,
		links:     req.Links,
		templates: templates,
		sources:   req.Sources,
		fixed:     req.Fixed,
		sp:        sp,
		eval: &evaluator{
			nodes:     req.Nodes,
			links:     req.Links,
			templates: templates,
			prev:      prevKeys,
			objective: e.opts.Objective,
			log:       e.log,
		},
	}

	e.log.Info("computing initial solution", "templates", len(templates))
	overlays, err := build(st.nodes, st.links, st.templates, req.Previous, st.sources, st.fixed,
		st.sp, nil, e.rng, e.log)
	if err != nil {
		return nil, err
	}
	e.log.Info("initial solution ready", "objective_value", st.eval.value(overlays))

	// iterative improvement is pointless when there is nowhere to move to
	if len(req.Nodes.IDs) > 1 {
		overlays = e.improve(st, overlays)
	} else {
		e.log.Info("skipping iterative improvement for single-node network")
	}

	evaluation := st.eval.evaluate(overlays)
	runtime := time.Since(startHeuristic)
	e.log.Info("solve finished", "objective_value", evaluation.Value, "runtime", runtime,
		"changed_instances", len(evaluation.Changed))

	return &Result{
		InitTime:   initTime,
		Runtime:    runtime,
		Evaluation: evaluation,
		Changed:    evaluation.Changed,
		Overlays:   overlays,
		Warnings:   warnings,
	}, nil
}

// prepare fail-fast validates the request and rewrites the templates for
// component reuse. Returns the accumulated non-fatal warnings.
func (e *Engine) prepare(req *Request) ([]string, error) {
	if req == nil {
		return nil, apperror.New(apperror.CodeNilInput, "request is nil")
	}
	if req.Nodes == nil || len(req.Nodes.IDs) == 0 {
		return nil, apperror.New(apperror.CodeEmptyNetwork, "substrate network has no nodes")
	}
	if e.opts.MaxUnsuccessful <= 0 {
		return nil, apperror.New(apperror.CodeInvalidArgument, "max unsuccessful iterations must be positive")
	}

	var warnings []string
	for _, t := range req.Templates {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		for _, name := range t.DemoteUnusedStateful(e.log) {
			warnings = append(warnings, "stateful component "+name+" of template "+t.Name+
				" is not used bidirectionally and was demoted to non-stateful")
		}
	}
	if err := template.AdaptForReuse(req.Templates); err != nil {
		return nil, err
	}

	seenSources := map[InstancePlacement]bool{}
	for _, src := range req.Sources {
		if !req.Nodes.Contains(src.Location) {
			return nil, apperror.Newf(apperror.CodeUnknownNode,
				"source of %s placed at unknown node %s", src.Component.Name, src.Location)
		}
		placement := InstancePlacement{Component: src.Component.Name, Node: src.Location}
		if seenSources[placement] {
			return nil, apperror.Newf(apperror.CodeDuplicateSource,
				"duplicate source of %s at node %s", src.Component.Name, src.Location)
		}
		seenSources[placement] = true
	}

	for _, fi := range req.Fixed {
		if fi.Component.Source {
			return nil, apperror.Newf(apperror.CodeFixedSource,
				"source component %s cannot be fixed", fi.Component.Name)
		}
		if !req.Nodes.Contains(fi.Location) {
			return nil, apperror.Newf(apperror.CodeUnknownNode,
				"fixed instance of %s placed at unknown node %s", fi.Component.Name, fi.Location)
		}
	}

	return warnings, nil
}

// InstancePlacement names a component placed at a node, for input validation.
type InstancePlacement struct {
	Component string
	Node      string
}
