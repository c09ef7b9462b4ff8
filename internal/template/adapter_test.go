package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netembed/pkg/apperror"
)

// sharedComponent returns a fresh definition of the shared component, one per
// template file, as the loaders produce them.
func sharedComponent(t *testing.T) *Component {
	t.Helper()
	j, err := NewComponent("shared", KindNormal, false, 1, 0, 1, 0,
		[]float64{1, 2}, []float64{1, 2}, [][]float64{{1, 0}}, nil)
	require.NoError(t, err)
	return j
}

// templateUsing wires src -> shared -> end in forward direction only.
func templateUsing(t *testing.T, name string, shared *Component) *Template {
	t.Helper()
	src, err := NewComponent("src-"+name, KindSource, false, 0, 0, 1, 0,
		[]float64{0}, []float64{0}, nil, nil)
	require.NoError(t, err)
	end, err := NewComponent("end-"+name, KindEnd, false, 1, 0, 0, 0,
		[]float64{1, 0}, []float64{1, 0}, nil, nil)
	require.NoError(t, err)

	return &Template{
		Name:       name,
		Components: []*Component{src, shared, end},
		Arcs: []*Arc{
			{Direction: Forward, Source: src, SrcOut: 0, Dest: shared, DestIn: 0, MaxDelay: 5},
			{Direction: Forward, Source: shared, SrcOut: 0, Dest: end, DestIn: 0, MaxDelay: 5},
		},
	}
}

func TestAdaptForReuse_ExpandsSharedComponent(t *testing.T) {
	shared1 := sharedComponent(t)
	shared2 := sharedComponent(t)
	t1 := templateUsing(t, "t1", shared1)
	t2 := templateUsing(t, "t2", shared2)

	require.NoError(t, AdaptForReuse([]*Template{t1, t2}))

	// both definitions expanded to 2 inputs x 2 outputs
	for _, shared := range []*Component{shared1, shared2} {
		assert.Equal(t, 2, shared.Inputs)
		assert.Equal(t, 2, shared.Outputs)
		assert.Equal(t, []float64{1, 1, 2}, shared.CPU)
		assert.Equal(t, [][]float64{{1, 0, 0}, {0, 1, 0}}, shared.DR)
	}

	// the first template keeps port 0, the second is shifted to port 1
	assert.Equal(t, 0, t1.Arcs[0].DestIn)
	assert.Equal(t, 0, t1.Arcs[1].SrcOut)
	assert.Equal(t, 1, t2.Arcs[0].DestIn)
	assert.Equal(t, 1, t2.Arcs[1].SrcOut)

	// unshared components stay untouched
	assert.Equal(t, 1, t1.Component("end-t1").Inputs)
}

func TestAdaptForReuse_SingleUseIdempotent(t *testing.T) {
	shared := sharedComponent(t)
	t1 := templateUsing(t, "only", shared)

	require.NoError(t, AdaptForReuse([]*Template{t1}))

	assert.Equal(t, 1, shared.Inputs)
	assert.Equal(t, 0, t1.Arcs[0].DestIn)
}

func TestAdaptForReuse_NonUniformReuse(t *testing.T) {
	shared := sharedComponent(t)
	t1 := templateUsing(t, "t1", shared)
	// second arc into the same input, but the output port is used only once
	extra, err := NewComponent("extra", KindSource, false, 0, 0, 1, 0,
		[]float64{0}, []float64{0}, nil, nil)
	require.NoError(t, err)
	t1.Components = append(t1.Components, extra)
	t1.Arcs = append(t1.Arcs, &Arc{Direction: Forward, Source: extra, SrcOut: 0, Dest: shared, DestIn: 0, MaxDelay: 5})

	err = AdaptForReuse([]*Template{t1})
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeNonUniformReuse), "got %v", err)
}

func TestAdaptForReuse_SourceCannotBeReused(t *testing.T) {
	src, err := NewComponent("src", KindSource, false, 0, 0, 1, 0,
		[]float64{0}, []float64{0}, nil, nil)
	require.NoError(t, err)

	makeTemplate := func(name string) *Template {
		end, err := NewComponent("end-"+name, KindEnd, false, 1, 0, 0, 0,
			[]float64{1, 0}, []float64{1, 0}, nil, nil)
		require.NoError(t, err)
		return &Template{
			Name:       name,
			Components: []*Component{src, end},
			Arcs:       []*Arc{{Direction: Forward, Source: src, SrcOut: 0, Dest: end, DestIn: 0, MaxDelay: 5}},
		}
	}

	err = AdaptForReuse([]*Template{makeTemplate("a"), makeTemplate("b")})
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeSourceReused), "got %v", err)
}

func TestAdaptForReuse_InconsistentDefinitions(t *testing.T) {
	shared1 := sharedComponent(t)
	shared2 := sharedComponent(t)
	shared2.CPU = []float64{9, 9} // same name, different definition

	err := AdaptForReuse([]*Template{
		templateUsing(t, "t1", shared1),
		templateUsing(t, "t2", shared2),
	})
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeInconsistentReuse), "got %v", err)
}
