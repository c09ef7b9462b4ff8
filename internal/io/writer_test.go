package io

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netembed/internal/heuristic"
	"netembed/internal/model"
	"netembed/internal/overlay"
	"netembed/internal/template"
)

func sampleResult(t *testing.T) (*model.Links, *template.Template, *heuristic.Result) {
	t.Helper()

	tmpl, _, err := ReadTemplate(writeFile(t, "chain.yaml", templateYAML), nil)
	require.NoError(t, err)

	ab := model.LinkID{Src: "A", Dst: "B"}
	ba := model.LinkID{Src: "B", Dst: "A"}
	links := model.NewLinks([]model.LinkID{ab, ba},
		map[model.LinkID]float64{ab: 10, ba: 10},
		map[model.LinkID]float64{ab: 1, ba: 1})

	flow := overlay.NewFlow("f0", 1)
	srcInst := overlay.NewSourceInstance(tmpl.Component("src"), "A", []*overlay.Flow{flow})
	vnf1Inst := overlay.NewInstance(tmpl.Component("vnf1"), "B")
	ol := overlay.New(tmpl)
	ol.AddInstance(srcInst)
	ol.AddInstance(vnf1Inst)
	e := overlay.NewEdge(tmpl.Arcs[0], srcInst, vnf1Inst)
	e.Paths = append(e.Paths, []string{"A", "B"})
	e.Flows = append(e.Flows, flow)
	flow.DR[e] = 1
	ol.AddEdge(e)

	res := &heuristic.Result{
		InitTime: 2 * time.Millisecond,
		Runtime:  5 * time.Millisecond,
		Evaluation: &heuristic.Evaluation{
			Value:       42,
			ConsumedCPU: map[string]float64{"A": 0, "B": 1},
			ConsumedMem: map[string]float64{"A": 0, "B": 1},
			ConsumedDR:  map[model.LinkID]float64{ab: 1},
			TotalCPU:    1,
			TotalMem:    1,
			TotalDR:     1,
			TotalDelay:  1,
		},
		Changed: []overlay.InstanceKey{
			{Component: "src", Location: "A"},
			{Component: "vnf1", Location: "B"},
		},
		Overlays: map[*template.Template]*overlay.Overlay{tmpl: ol},
	}
	return links, tmpl, res
}

func TestBuildResult(t *testing.T) {
	links, _, res := sampleResult(t)

	doc := BuildResult("test-scenario", "combined", 7, links, res)

	assert.Equal(t, "test-scenario", doc.Scenario)
	assert.Equal(t, int64(7), doc.Seed)
	assert.InDelta(t, 42, doc.Metrics.ObjectiveValue, 1e-9)
	assert.Equal(t, []string{"(src,A)", "(vnf1,B)"}, doc.Metrics.Changed)

	require.Len(t, doc.Embedding, 1)
	require.Len(t, doc.Embedding[0].Instances, 2)
	require.Len(t, doc.Embedding[0].Edges, 1)
	edge := doc.Embedding[0].Edges[0]
	assert.Equal(t, []string{"A", "B"}, edge.Path)
	assert.InDelta(t, 1, edge.Delay, 1e-9)
	require.Len(t, edge.Flows, 1)
	assert.Equal(t, "f0", edge.Flows[0].ID)

	require.Len(t, doc.Metrics.LinkConsumption, 1)
	assert.Equal(t, "A", doc.Metrics.LinkConsumption[0].Src)
}

// The written embedding section round-trips through the previous-embedding
// reader, so results can seed the next solve.
func TestWriteResult_RoundTripsAsWarmStart(t *testing.T) {
	links, tmpl, res := sampleResult(t)

	doc := BuildResult("test-scenario", "combined", 7, links, res)
	path := filepath.Join(t.TempDir(), "result.yaml")
	require.NoError(t, WriteResult(doc, path))

	prev, err := ReadPreviousEmbedding(path, []*template.Template{tmpl})
	require.NoError(t, err)
	require.Len(t, prev, 1)

	ol := prev[tmpl]
	require.NotNil(t, ol)
	assert.NotNil(t, ol.InstanceAt(tmpl.Component("src"), "A"))
	assert.NotNil(t, ol.InstanceAt(tmpl.Component("vnf1"), "B"))
}
