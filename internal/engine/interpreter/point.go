package interpreter

import (
	"math"

	"github.com/implicitcad/carve/internal/engine"
	"github.com/implicitcad/carve/internal/ir"
	"github.com/implicitcad/carve/internal/moremath"
)

type pointKernel struct {
	s     *script
	buf   []float32 // registers followed by spill slots
	taken bool
}

// NewPointKernel returns an interpreting point kernel for the tape,
// reusing donated scratch capacity when it suffices.
func NewPointKernel(t *ir.Tape, storage engine.Storage) (engine.PointKernel, error) {
	checkTape(t)
	s := newScript(t)
	return &pointKernel{s: s, buf: scratchFloats(storage, s.regCount+s.slotCount)}, nil
}

// EvalPoint implements engine.PointKernel.
func (k *pointKernel) EvalPoint(x, y, z float32, vars []float32) float32 {
	if k.taken {
		panic("interpreter: evaluator used after Take")
	}
	regs := k.buf[:k.s.regCount]
	slots := k.buf[k.s.regCount:]
	for _, r := range k.s.recs {
		var v float32
		switch r.kind {
		case recInput:
			switch r.aux {
			case 0:
				v = x
			case 1:
				v = y
			default:
				v = z
			}
		case recVar:
			v = vars[r.aux]
		case recImm:
			v = r.imm
		case recCopy:
			v = regs[r.lhs]
		case recNeg:
			v = -regs[r.lhs]
		case recAbs:
			v = moremath.Abs32(regs[r.lhs])
		case recRecip:
			v = 1 / regs[r.lhs]
		case recSqrt:
			v = float32(math.Sqrt(float64(regs[r.lhs])))
		case recSquare:
			v = regs[r.lhs] * regs[r.lhs]
		case recAdd:
			v = regs[r.lhs] + regs[r.rhs]
		case recSub:
			v = regs[r.lhs] - regs[r.rhs]
		case recMul:
			v = regs[r.lhs] * regs[r.rhs]
		case recDiv:
			v = regs[r.lhs] / regs[r.rhs]
		case recMin:
			// Second-operand-on-ties-and-NaN, matching MINSS so the JIT
			// and interpreter agree bit for bit.
			if a, b := regs[r.lhs], regs[r.rhs]; a < b {
				v = a
			} else {
				v = b
			}
		case recMax:
			if a, b := regs[r.lhs], regs[r.rhs]; a > b {
				v = a
			} else {
				v = b
			}
		case recFma:
			v = regs[r.dst] + regs[r.lhs]*regs[r.rhs]
		case recLoad:
			v = slots[r.aux]
		case recStore:
			slots[r.aux] = regs[r.lhs]
			continue
		}
		regs[r.dst] = v
	}
	return regs[k.s.result]
}

// Take implements engine.PointKernel.
func (k *pointKernel) Take() (engine.Storage, bool) {
	if k.taken {
		return engine.Storage{}, false
	}
	k.taken = true
	return engine.Storage{Scratch: k.buf}, true
}

// scratchFloats reuses donated scratch when it is large enough.
func scratchFloats(storage engine.Storage, n int) []float32 {
	if cap(storage.Scratch) >= n {
		return storage.Scratch[:n]
	}
	return make([]float32, n)
}
