// Package template models service templates: typed VNF components connected
// by directed arcs in forward and backward data-plane direction, together with
// the on-the-fly adaptation that lets several templates share one component.
//
// Components are compared by name everywhere: two parsed copies of the same
// component (one per template file) are the same component. Code in this
// module must therefore never compare component pointers.
package template

import (
	"netembed/pkg/apperror"
)

// Direction of an arc or edge in the data plane.
type Direction string

const (
	// Forward is the direction from the source towards the end components.
	Forward Direction = "forward"
	// Backward is the direction from the end components back to the source.
	Backward Direction = "backward"
)

// Valid reports whether d is one of the two known directions.
func (d Direction) Valid() bool {
	return d == Forward || d == Backward
}

// Component is a VNF node of a template graph.
//
// Resource consumption and outgoing data rates are linear functions of the
// ingoing data rates. CPU and Mem have one coefficient per input (forward
// inputs first, then backward) plus a trailing idle term. DR and DRBack hold
// one coefficient vector per output, each with one coefficient per input of
// the matching direction plus a trailing idle term.
type Component struct {
	Name     string
	Source   bool
	End      bool
	Stateful bool

	Inputs      int // forward inputs
	InputsBack  int // backward inputs
	Outputs     int // forward outputs
	OutputsBack int // backward outputs

	CPU    []float64
	Mem    []float64
	DR     [][]float64 // outgoing rate per forward output
	DRBack [][]float64 // outgoing rate per backward output

	// VNFDelay is the per-instance processing delay added to the total delay.
	VNFDelay float64

	// Image optionally names the container image used by external MANOs.
	Image string
}

// Component kinds accepted by NewComponent.
const (
	KindSource = "source"
	KindNormal = "normal"
	KindEnd    = "end"
)

// NewComponent validates and builds a component.
//
// The coefficient vectors must match the port counts: len(cpu) == len(mem) ==
// inputs+inputsBack+1, one dr vector per forward output (except for sources,
// whose single output carries the flow rate directly) and one per backward
// output.
func NewComponent(name, kind string, stateful bool, inputs, inputsBack, outputs, outputsBack int,
	cpu, mem []float64, dr, drBack [][]float64) (*Component, error) {

	j := &Component{
		Name:        name,
		Stateful:    stateful,
		Inputs:      inputs,
		InputsBack:  inputsBack,
		Outputs:     outputs,
		OutputsBack: outputsBack,
		CPU:         cpu,
		Mem:         mem,
		DR:          dr,
		DRBack:      drBack,
	}

	switch kind {
	case KindSource:
		j.Source = true
	case KindNormal:
	case KindEnd:
		j.End = true
	default:
		return nil, apperror.Newf(apperror.CodeInvalidTemplate, "invalid component type %q for %s", kind, name)
	}

	// the backward chain may terminate at the source, so backward inputs stay legal
	if j.Source && j.Inputs != 0 {
		return nil, apperror.Newf(apperror.CodeInvalidTemplate, "source component %s must not have forward inputs", name)
	}
	if j.End && j.Outputs != 0 {
		return nil, apperror.Newf(apperror.CodeInvalidTemplate, "end component %s must not have forward outputs", name)
	}

	totalInputs := j.Inputs + j.InputsBack
	if len(j.CPU) != totalInputs+1 { // always need idle consumption (can be 0)
		return nil, apperror.Newf(apperror.CodeCoefficientLength,
			"component %s: cpu function has %d coefficients, want %d inputs + idle", name, len(j.CPU), totalInputs)
	}
	if len(j.Mem) != totalInputs+1 {
		return nil, apperror.Newf(apperror.CodeCoefficientLength,
			"component %s: mem function has %d coefficients, want %d inputs + idle", name, len(j.Mem), totalInputs)
	}
	if !j.Source && len(j.DR) != j.Outputs {
		return nil, apperror.Newf(apperror.CodeCoefficientLength,
			"component %s: %d forward outputs but %d outgoing rate functions", name, j.Outputs, len(j.DR))
	}
	if len(j.DRBack) != j.OutputsBack {
		return nil, apperror.Newf(apperror.CodeCoefficientLength,
			"component %s: %d backward outputs but %d outgoing rate functions", name, j.OutputsBack, len(j.DRBack))
	}
	return j, nil
}

// String returns the component name.
func (j *Component) String() string { return j.Name }

// Is reports component identity: equality by name only.
func (j *Component) Is(other *Component) bool {
	return other != nil && j.Name == other.Name
}

// Kind returns the component kind string.
func (j *Component) Kind() string {
	switch {
	case j.Source:
		return KindSource
	case j.End:
		return KindEnd
	default:
		return KindNormal
	}
}

// CPUReq returns the CPU requirement for the given ingoing data rates (forward
// inputs first, then backward). The idle term is skipped when the component is
// the one named by ignoreIdle, so that capacity checks do not count an already
// placed instance's idle consumption twice.
func (j *Component) CPUReq(incoming []float64, ignoreIdle *Component) float64 {
	return j.linearReq(j.CPU, incoming, ignoreIdle)
}

// MemReq is CPUReq for memory.
func (j *Component) MemReq(incoming []float64, ignoreIdle *Component) float64 {
	return j.linearReq(j.Mem, incoming, ignoreIdle)
}

func (j *Component) linearReq(coeffs, incoming []float64, ignoreIdle *Component) float64 {
	inputs := j.Inputs + j.InputsBack
	if len(incoming) != inputs {
		// Validated template graphs always hand over full input vectors.
		panic(apperror.Newf(apperror.CodeInvalidInputVector,
			"component %s: %d ingoing data rates for %d inputs", j.Name, len(incoming), inputs))
	}
	requirement := coeffs[inputs] // idle consumption
	if ignoreIdle != nil && j.Is(ignoreIdle) {
		requirement = 0
	}
	for i := 0; i < inputs; i++ {
		requirement += coeffs[i] * incoming[i]
	}
	return requirement
}

// Outgoing returns the data rate leaving the given forward output for the
// given forward ingoing data rates.
func (j *Component) Outgoing(in []float64, output int) float64 {
	if output >= j.Outputs {
		panic(apperror.Newf(apperror.CodeInvalidOutput,
			"component %s: output %d not one of %d forward outputs", j.Name, output, j.Outputs))
	}
	fn := j.DR[output]
	out := fn[len(fn)-1] // idle data rate
	for i := 0; i < j.Inputs; i++ {
		out += fn[i] * in[i]
	}
	return out
}

// OutgoingBack returns the data rate leaving the given backward output.
// At end components the ingoing vector comes from the forward direction, so
// its length — not InputsBack — bounds the iteration.
func (j *Component) OutgoingBack(in []float64, output int) float64 {
	if output >= j.OutputsBack {
		panic(apperror.Newf(apperror.CodeInvalidOutput,
			"component %s: output %d not one of %d backward outputs", j.Name, output, j.OutputsBack))
	}
	fn := j.DRBack[output]
	out := fn[len(fn)-1]
	for i := 0; i < len(in); i++ {
		out += fn[i] * in[i]
	}
	return out
}

// Adapt splits every port of the component into reuses-many ports so that each
// template using the component addresses a disjoint port range. Coefficients
// of the resource functions are duplicated per new input; each output's rate
// function is expanded diagonally, so new output i depends only on new input i.
// A component used by a single template is left untouched.
func (j *Component) Adapt(reuses int) {
	if reuses < 2 {
		return
	}

	inputs := j.Inputs + j.InputsBack
	newCPU := make([]float64, 0, inputs*reuses+1)
	newMem := make([]float64, 0, inputs*reuses+1)
	for k := 0; k < inputs; k++ {
		for i := 0; i < reuses; i++ {
			newCPU = append(newCPU, j.CPU[k])
			newMem = append(newMem, j.Mem[k])
		}
	}
	newCPU = append(newCPU, j.CPU[inputs]) // keep idle consumption
	newMem = append(newMem, j.Mem[inputs])
	j.CPU = newCPU
	j.Mem = newMem

	j.DR = expandDiagonal(j.DR, j.Inputs, reuses)
	j.DRBack = expandDiagonal(j.DRBack, j.InputsBack, reuses)

	j.Inputs *= reuses
	j.Outputs *= reuses
	j.InputsBack *= reuses
	j.OutputsBack *= reuses
}

// expandDiagonal turns each output's rate function into reuses-many functions
// over the multiplied inputs, connecting the i-th new input to the i-th new
// output and zeroing the cross terms.
func expandDiagonal(outgoing [][]float64, inputs, reuses int) [][]float64 {
	expanded := make([][]float64, 0, len(outgoing)*reuses)
	for oldOut := range outgoing {
		for newOut := 0; newOut < reuses; newOut++ {
			fn := make([]float64, 0, inputs*reuses+1)
			for oldIn := 0; oldIn < inputs; oldIn++ {
				for newIn := 0; newIn < reuses; newIn++ {
					if newOut == newIn {
						fn = append(fn, outgoing[oldOut][oldIn])
					} else {
						fn = append(fn, 0)
					}
				}
			}
			fn = append(fn, outgoing[oldOut][len(outgoing[oldOut])-1]) // idle data rate
			expanded = append(expanded, fn)
		}
	}
	return expanded
}
