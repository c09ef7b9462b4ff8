package heuristic

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netembed/internal/overlay"
	"netembed/internal/template"
)

func (fx *fixture) evaluator(obj Objective, prev map[overlay.InstanceKey]bool) *evaluator {
	if prev == nil {
		prev = map[overlay.InstanceKey]bool{}
	}
	return &evaluator{
		nodes:     fx.nodes,
		links:     fx.links,
		templates: fx.templates,
		prev:      prev,
		objective: obj,
		log:       testLogger(),
	}
}

func TestParseObjective(t *testing.T) {
	for name, want := range map[string]Objective{
		"combined":  ObjectiveCombined,
		"over-sub":  ObjectiveOverSub,
		"changed":   ObjectiveChanged,
		"resources": ObjectiveResources,
		"delay":     ObjectiveDelay,
	} {
		got, err := ParseObjective(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, name, got.String())
	}

	_, err := ParseObjective("fastest")
	assert.Error(t, err)
}

func TestEvaluate_ColocatedChain(t *testing.T) {
	fx := newFixture(t, defaultFixtureOptions())
	overlays := fx.build(t, nil, nil)

	eval := fx.evaluator(ObjectiveCombined, nil).evaluate(overlays)

	assert.False(t, eval.Infeasible)
	assert.Zero(t, eval.MaxCPUOver)
	assert.Zero(t, eval.MaxMemOver)
	assert.Zero(t, eval.MaxDROver)
	assert.Zero(t, eval.TotalDelay, "co-located instances traverse no link")
	assert.Zero(t, eval.TotalDR)
	assert.Len(t, eval.Changed, 3)

	// the combined value decomposes into the weighted criteria
	expected := weightChanged*float64(len(eval.Changed)) +
		weightResources*(eval.TotalCPU+eval.TotalMem+eval.TotalDR) +
		eval.TotalDelay
	assert.InDelta(t, expected, eval.Value, 1e-9)

	// the raw terms stay far below the weights' nominal ceilings
	assert.Less(t, float64(len(eval.Changed)), 100.0)
	assert.Less(t, eval.TotalCPU+eval.TotalMem+eval.TotalDR, 1000.0)
	assert.Less(t, eval.TotalDelay, 1000.0)
}

func TestEvaluate_ScalarVariants(t *testing.T) {
	fx := newFixture(t, defaultFixtureOptions())
	overlays := fx.build(t, nil, nil)

	assert.Equal(t, 3.0, fx.evaluator(ObjectiveChanged, nil).value(overlays))
	assert.Zero(t, fx.evaluator(ObjectiveOverSub, nil).value(overlays))
	assert.Zero(t, fx.evaluator(ObjectiveDelay, nil).value(overlays))

	resources := fx.evaluator(ObjectiveResources, nil).evaluate(overlays)
	assert.InDelta(t, resources.TotalCPU+resources.TotalMem+resources.TotalDR, resources.Value, 1e-9)
}

func TestEvaluate_PreviousPlacementReducesChanged(t *testing.T) {
	fx := newFixture(t, defaultFixtureOptions())
	overlays := fx.build(t, nil, nil)

	prev := instanceKeys(overlays)
	eval := fx.evaluator(ObjectiveCombined, prev).evaluate(overlays)
	assert.Empty(t, eval.Changed)

	// a vanished previous instance counts as changed too
	prev[overlay.InstanceKey{Component: "vnf1", Location: "B"}] = true
	eval = fx.evaluator(ObjectiveCombined, prev).evaluate(overlays)
	assert.Len(t, eval.Changed, 1)
}

func TestEvaluate_DelayViolationIsInfeasible(t *testing.T) {
	opts := defaultFixtureOptions()
	opts.delay = 10 // link delay above the arcs' max delay of 5
	fx := newFixture(t, opts)

	// force a routed edge: src at A, vnf1 pinned at B by hand
	ol := overlay.New(fx.template)
	flow := overlay.NewFlow("f0", 1)
	srcInst := overlay.NewSourceInstance(fx.template.Component("src"), "A", []*overlay.Flow{flow})
	vnf1Inst := overlay.NewInstance(fx.template.Component("vnf1"), "B")
	ol.AddInstance(srcInst)
	ol.AddInstance(vnf1Inst)
	e := overlay.NewEdge(fx.template.Arcs[0], srcInst, vnf1Inst)
	e.Paths = append(e.Paths, []string{"A", "B"})
	e.Flows = append(e.Flows, flow)
	flow.DR[e] = 1
	ol.AddEdge(e)

	overlays := map[*template.Template]*overlay.Overlay{fx.template: ol}
	eval := fx.evaluator(ObjectiveCombined, nil).evaluate(overlays)

	assert.True(t, eval.Infeasible)
	assert.True(t, math.IsInf(eval.Value, 1))
}

func TestEvaluate_OverSubscription(t *testing.T) {
	opts := defaultFixtureOptions()
	// nothing fits anywhere: every node is far too small for vnf1
	opts.nodeCPU = map[string]float64{"A": 0.25, "B": 0.25}
	opts.vnf1CPU = 2
	fx := newFixture(t, opts)

	overlays, err := build(fx.nodes, fx.links, fx.templates, nil, fx.sources, nil,
		fx.sp, nil, rand.New(rand.NewSource(1)), testLogger())
	require.NoError(t, err)

	eval := fx.evaluator(ObjectiveOverSub, nil).evaluate(overlays)
	assert.Greater(t, eval.MaxCPUOver, 0.0, "placement proceeds with over-subscription")
	assert.False(t, eval.Infeasible)
	assert.InDelta(t, eval.MaxCPUOver+eval.MaxMemOver+eval.MaxDROver, eval.Value, 1e-9)
}

func TestEvaluate_ConsumptionAccounting(t *testing.T) {
	fx := newFixture(t, defaultFixtureOptions())
	overlays := fx.build(t, nil, nil)

	eval := fx.evaluator(ObjectiveCombined, nil).evaluate(overlays)

	// src consumes nothing, vnf1 and end one unit each for the unit flow
	assert.InDelta(t, 0+1+1, eval.ConsumedCPU["A"], 1e-9)
	assert.Zero(t, eval.ConsumedCPU["B"])
	assert.InDelta(t, eval.ConsumedCPU["A"], eval.TotalCPU, 1e-9)
}
