// Package engine defines the contract between the public evaluator wrappers
// and the evaluation backends (the JIT compiler and the portable
// interpreter): one kernel interface per evaluation mode, plus the Storage
// bundle that moves reusable resources between evaluators.
package engine

import (
	"github.com/implicitcad/carve/api"
	"github.com/implicitcad/carve/internal/asm"
)

// Storage is the reclaimable resource bundle of a discarded evaluator: the
// executable mapping its code lived in (nil for interpreter kernels) and
// scratch capacity. Donating it to a new evaluator of the same mode skips
// the mmap/mprotect churn of a fresh construction.
type Storage struct {
	Seg     *asm.CodeSegment
	Scratch []float32
}

// PointKernel evaluates a tape at single points.
type PointKernel interface {
	EvalPoint(x, y, z float32, vars []float32) float32
	// Take relinquishes the kernel's storage. It returns false if the
	// storage was already taken; the kernel is unusable afterwards.
	Take() (Storage, bool)
}

// IntervalKernel evaluates a tape over axis-aligned regions, recording
// which side of each min/max the region proves redundant.
type IntervalKernel interface {
	// EvalInterval ORs one Choice per choice op into choices (which must
	// have length equal to the tape's choice count) and sets *simplify
	// whenever a Left or Right choice was observed.
	EvalInterval(x, y, z api.Interval, vars []float32, choices []api.Choice, simplify *bool) api.Interval
	Take() (Storage, bool)
}

// FloatSliceKernel evaluates a tape at many points in one call.
type FloatSliceKernel interface {
	EvalSlice(xs, ys, zs, out, vars []float32)
	Take() (Storage, bool)
}

// GradKernel evaluates a tape's value and partial derivatives.
type GradKernel interface {
	EvalGrad(x, y, z float32, vars []float32) api.Grad
	Take() (Storage, bool)
}

// segPool is a bounded pool of released executable mappings. Segments enter
// it only through ReleaseSegment, which the compiler kernels call when a
// build fails; a discarded evaluator does not return its segment here, so
// its mapping is reused only through explicit storage donation. Overflow is
// unmapped rather than hoarded.
var segPool = make(chan *asm.CodeSegment, 8)

// PooledSegment returns a released segment, or nil when the pool is empty.
func PooledSegment() *asm.CodeSegment {
	select {
	case seg := <-segPool:
		return seg
	default:
		return nil
	}
}

// ReleaseSegment offers a finalized or partially written segment back to
// the pool.
func ReleaseSegment(seg *asm.CodeSegment) {
	if seg == nil {
		return
	}
	select {
	case segPool <- seg:
	default:
		_ = seg.Unmap()
	}
}
