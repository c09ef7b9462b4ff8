package heuristic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netembed/internal/overlay"
	"netembed/internal/template"
)

func TestResetOverlay_KeepsTopologicalPrefix(t *testing.T) {
	fx := newFixture(t, defaultFixtureOptions())
	overlays := fx.build(t, nil, nil)
	ol := overlays[fx.template]
	require.NotNil(t, ol)

	vnf1Inst := ol.InstanceAt(fx.template.Component("vnf1"), "A")
	require.NotNil(t, vnf1Inst)

	require.True(t, resetOverlay(ol, vnf1Inst))

	// only the source survives; every edge touched the removed suffix
	require.Len(t, ol.Instances, 1)
	assert.Equal(t, "src", ol.Instances[0].Component.Name)
	assert.Empty(t, ol.Edges)

	// flow bookkeeping is pruned down to the surviving prefix
	for _, f := range ol.Instances[0].SrcFlows {
		assert.Empty(t, f.DR)
		for _, passed := range f.PassedStateful {
			assert.True(t, passed == ol.Instances[0])
		}
	}
	assert.Empty(t, ol.Instances[0].EdgesOut)
	assert.Empty(t, ol.Instances[0].EdgesIn)
}

func TestResetOverlay_UnknownInstance(t *testing.T) {
	fx := newFixture(t, defaultFixtureOptions())
	overlays := fx.build(t, nil, nil)
	ol := overlays[fx.template]

	stranger := overlay.NewInstance(fx.template.Component("vnf1"), "B")
	assert.False(t, resetOverlay(ol, stranger))
}

func TestDeepCopyOverlays_Isolation(t *testing.T) {
	fx := newFixture(t, defaultFixtureOptions())
	overlays := fx.build(t, nil, nil)

	snapshot := deepCopyOverlays(overlays)
	require.Len(t, snapshot, 1)

	// mutating the working solution leaves the snapshot intact
	ol := overlays[fx.template]
	vnf1Inst := ol.InstanceAt(fx.template.Component("vnf1"), "A")
	require.True(t, resetOverlay(ol, vnf1Inst))

	copied := snapshot[fx.template]
	assert.Len(t, copied.Instances, 3)
	assert.NotEmpty(t, copied.Edges)
}

// Flow conservation: every flow leaves its source with exactly its declared
// data rate, independent of where the chain was placed.
func TestBuild_FlowConservation(t *testing.T) {
	for name, opts := range map[string]fixtureOptions{
		"colocated": defaultFixtureOptions(),
		"split": func() fixtureOptions {
			o := defaultFixtureOptions()
			o.nodeCPU = map[string]float64{"A": 1, "B": 10}
			o.vnf1CPU = 2
			return o
		}(),
	} {
		t.Run(name, func(t *testing.T) {
			fx := newFixture(t, opts)
			overlays := fx.build(t, nil, nil)
			ol := overlays[fx.template]
			require.NotNil(t, ol)

			srcInst := ol.InstanceAt(fx.template.Component("src"), "A")
			require.NotNil(t, srcInst)
			for _, f := range srcInst.SrcFlows {
				var out float64
				for _, e := range srcInst.EdgesOut {
					if e.Direction == template.Forward && e.HasFlow(f.ID) {
						out += f.DR[e]
					}
				}
				assert.InDelta(t, f.SrcDR, out, 1e-9, "flow %s", f.ID)
			}

			// every mapped flow carries a positive rate
			for _, e := range ol.Edges {
				for _, f := range e.Flows {
					assert.Greater(t, f.DR[e], 0.0)
				}
			}
		})
	}
}
