package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netembed/pkg/apperror"
)

func newTestComponent(t *testing.T) *Component {
	t.Helper()
	j, err := NewComponent("proc", KindNormal, false, 1, 1, 1, 1,
		[]float64{2, 1, 0.5}, []float64{1, 1, 0.25},
		[][]float64{{0.8, 0}}, [][]float64{{1, 0}})
	require.NoError(t, err)
	return j
}

func TestNewComponent_Validation(t *testing.T) {
	tests := []struct {
		name string
		make func() (*Component, error)
		code apperror.ErrorCode
	}{
		{
			name: "invalid kind",
			make: func() (*Component, error) {
				return NewComponent("x", "weird", false, 0, 0, 1, 0,
					[]float64{0}, []float64{0}, [][]float64{{1, 0}}, nil)
			},
			code: apperror.CodeInvalidTemplate,
		},
		{
			name: "cpu length mismatch",
			make: func() (*Component, error) {
				return NewComponent("x", KindNormal, false, 1, 0, 1, 0,
					[]float64{1}, []float64{1, 0}, [][]float64{{1, 0}}, nil)
			},
			code: apperror.CodeCoefficientLength,
		},
		{
			name: "mem length mismatch",
			make: func() (*Component, error) {
				return NewComponent("x", KindNormal, false, 1, 0, 1, 0,
					[]float64{1, 0}, []float64{1, 0, 0}, [][]float64{{1, 0}}, nil)
			},
			code: apperror.CodeCoefficientLength,
		},
		{
			name: "missing forward rate function",
			make: func() (*Component, error) {
				return NewComponent("x", KindNormal, false, 1, 0, 2, 0,
					[]float64{1, 0}, []float64{1, 0}, [][]float64{{1, 0}}, nil)
			},
			code: apperror.CodeCoefficientLength,
		},
		{
			name: "source with forward inputs",
			make: func() (*Component, error) {
				return NewComponent("x", KindSource, false, 1, 0, 1, 0,
					[]float64{1, 0}, []float64{1, 0}, nil, nil)
			},
			code: apperror.CodeInvalidTemplate,
		},
		{
			name: "end with forward outputs",
			make: func() (*Component, error) {
				return NewComponent("x", KindEnd, false, 1, 0, 1, 1,
					[]float64{1, 0}, []float64{1, 0}, [][]float64{{1, 0}}, [][]float64{{1, 0}})
			},
			code: apperror.CodeInvalidTemplate,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.make()
			require.Error(t, err)
			assert.True(t, apperror.Is(err, tc.code), "got %v", err)
		})
	}
}

func TestNewComponent_SourceWithBackwardInput(t *testing.T) {
	// the backward chain may terminate at the source
	j, err := NewComponent("src", KindSource, false, 0, 1, 1, 0,
		[]float64{0, 0}, []float64{0, 0}, nil, nil)
	require.NoError(t, err)
	assert.True(t, j.Source)
	assert.Equal(t, 1, j.InputsBack)
}

func TestComponent_Requirements(t *testing.T) {
	j := newTestComponent(t)

	// cpu = 2*fwd + 1*bwd + 0.5 idle
	assert.InDelta(t, 2*3+1*2+0.5, j.CPUReq([]float64{3, 2}, nil), 1e-9)
	assert.InDelta(t, 1*3+1*2+0.25, j.MemReq([]float64{3, 2}, nil), 1e-9)

	// idle is skipped when the component itself is excluded
	assert.InDelta(t, 2*3+1*2, j.CPUReq([]float64{3, 2}, j), 1e-9)

	// another component with the same name matches by name
	other := &Component{Name: "proc"}
	assert.InDelta(t, 2*3+1*2, j.CPUReq([]float64{3, 2}, other), 1e-9)
}

func TestComponent_Outgoing(t *testing.T) {
	j := newTestComponent(t)

	assert.InDelta(t, 0.8*5, j.Outgoing([]float64{5}, 0), 1e-9)
	assert.InDelta(t, 1*4, j.OutgoingBack([]float64{4}, 0), 1e-9)

	assert.Panics(t, func() { j.Outgoing([]float64{5}, 1) })
	assert.Panics(t, func() { j.CPUReq([]float64{1}, nil) })
}

func TestComponent_Adapt(t *testing.T) {
	j, err := NewComponent("shared", KindNormal, false, 1, 1, 1, 1,
		[]float64{1, 2, 5}, []float64{3, 4, 6},
		[][]float64{{0.8, 3}}, [][]float64{{0.9, 2}})
	require.NoError(t, err)

	j.Adapt(2)

	assert.Equal(t, 2, j.Inputs)
	assert.Equal(t, 2, j.Outputs)
	assert.Equal(t, 2, j.InputsBack)
	assert.Equal(t, 2, j.OutputsBack)

	// each input coefficient duplicated, idle preserved
	assert.Equal(t, []float64{1, 1, 2, 2, 5}, j.CPU)
	assert.Equal(t, []float64{3, 3, 4, 4, 6}, j.Mem)

	// diagonal expansion: output i depends only on input i
	assert.Equal(t, [][]float64{{0.8, 0, 3}, {0, 0.8, 3}}, j.DR)
	assert.Equal(t, [][]float64{{0.9, 0, 2}, {0, 0.9, 2}}, j.DRBack)
}

func TestComponent_AdaptSingleUseIsNoop(t *testing.T) {
	j := newTestComponent(t)
	cpuBefore := append([]float64{}, j.CPU...)

	j.Adapt(1)

	assert.Equal(t, 1, j.Inputs)
	assert.Equal(t, cpuBefore, j.CPU)
}
