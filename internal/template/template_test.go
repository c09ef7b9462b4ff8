package template

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bidirectionalChain builds src -> vnf1 -> end with the matching backward
// arcs, all linear pass-through rates.
func bidirectionalChain(t *testing.T) *Template {
	t.Helper()

	src, err := NewComponent("src", KindSource, false, 0, 1, 1, 0,
		[]float64{0, 0}, []float64{0, 0}, nil, nil)
	require.NoError(t, err)
	vnf1, err := NewComponent("vnf1", KindNormal, true, 1, 1, 1, 1,
		[]float64{1, 0, 0}, []float64{1, 0, 0},
		[][]float64{{1, 0}}, [][]float64{{1, 0}})
	require.NoError(t, err)
	end, err := NewComponent("end", KindEnd, false, 1, 0, 0, 1,
		[]float64{1, 0}, []float64{1, 0}, nil, [][]float64{{1, 0}})
	require.NoError(t, err)

	tmpl := &Template{
		Name:       "chain",
		Components: []*Component{src, vnf1, end},
		Arcs: []*Arc{
			{Direction: Forward, Source: src, SrcOut: 0, Dest: vnf1, DestIn: 0, MaxDelay: 5},
			{Direction: Forward, Source: vnf1, SrcOut: 0, Dest: end, DestIn: 0, MaxDelay: 5},
			{Direction: Backward, Source: end, SrcOut: 0, Dest: vnf1, DestIn: 0, MaxDelay: 5},
			{Direction: Backward, Source: vnf1, SrcOut: 0, Dest: src, DestIn: 0, MaxDelay: 5},
		},
	}
	require.NoError(t, tmpl.Validate())
	return tmpl
}

func TestTemplate_Validate(t *testing.T) {
	tmpl := bidirectionalChain(t)
	assert.NoError(t, tmpl.Validate())

	noSource := &Template{Name: "broken", Components: tmpl.Components[1:]}
	assert.Error(t, noSource.Validate())
}

func TestTemplate_ComponentOrder(t *testing.T) {
	tmpl := bidirectionalChain(t)

	var names []string
	for _, j := range tmpl.ComponentOrder() {
		names = append(names, j.Name)
	}
	// forward chain, then the backward chain from the end component
	assert.Equal(t, []string{"src", "vnf1", "end", "vnf1", "src"}, names)
}

func TestTemplate_Weight(t *testing.T) {
	tmpl := bidirectionalChain(t)

	// pass-through chain at rate 1: cpu 1 (vnf1 fwd) + 1 (end) + 0 (vnf1 bwd),
	// mem the same, outgoing rates 1 at src, vnf1 fwd, end bwd, vnf1 bwd
	assert.InDelta(t, 2+2+4, tmpl.Weight(1), 1e-9)

	// heavier source rate means heavier template
	assert.Greater(t, tmpl.Weight(2), tmpl.Weight(1))
}

func TestTemplate_DemoteUnusedStateful(t *testing.T) {
	src, err := NewComponent("src", KindSource, false, 0, 0, 1, 0,
		[]float64{0}, []float64{0}, nil, nil)
	require.NoError(t, err)
	oneway, err := NewComponent("oneway", KindNormal, true, 1, 0, 1, 0,
		[]float64{1, 0}, []float64{1, 0}, [][]float64{{1, 0}}, nil)
	require.NoError(t, err)
	end, err := NewComponent("end", KindEnd, false, 1, 0, 0, 0,
		[]float64{1, 0}, []float64{1, 0}, nil, nil)
	require.NoError(t, err)

	tmpl := &Template{
		Name:       "oneway-chain",
		Components: []*Component{src, oneway, end},
		Arcs: []*Arc{
			{Direction: Forward, Source: src, SrcOut: 0, Dest: oneway, DestIn: 0, MaxDelay: 5},
			{Direction: Forward, Source: oneway, SrcOut: 0, Dest: end, DestIn: 0, MaxDelay: 5},
		},
	}

	demoted := tmpl.DemoteUnusedStateful(slog.New(slog.DiscardHandler))
	assert.Equal(t, []string{"oneway"}, demoted)
	assert.False(t, oneway.Stateful)

	// idempotent: nothing left to demote
	assert.Empty(t, tmpl.DemoteUnusedStateful(nil))
}
