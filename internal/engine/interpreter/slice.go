package interpreter

import (
	"github.com/implicitcad/carve/internal/engine"
	"github.com/implicitcad/carve/internal/ir"
)

type sliceKernel struct {
	point *pointKernel
}

// NewFloatSliceKernel returns an interpreting float-slice kernel. The
// interpreter evaluates element-wise through the point script; packing is a
// property of the native backend, not of the contract.
func NewFloatSliceKernel(t *ir.Tape, storage engine.Storage) (engine.FloatSliceKernel, error) {
	p, err := NewPointKernel(t, storage)
	if err != nil {
		return nil, err
	}
	return &sliceKernel{point: p.(*pointKernel)}, nil
}

// EvalSlice implements engine.FloatSliceKernel.
func (k *sliceKernel) EvalSlice(xs, ys, zs, out, vars []float32) {
	for i := range xs {
		out[i] = k.point.EvalPoint(xs[i], ys[i], zs[i], vars)
	}
}

// Take implements engine.FloatSliceKernel.
func (k *sliceKernel) Take() (engine.Storage, bool) {
	return k.point.Take()
}
