package interpreter

import (
	"github.com/implicitcad/carve/api"
	"github.com/implicitcad/carve/internal/engine"
	"github.com/implicitcad/carve/internal/interval"
	"github.com/implicitcad/carve/internal/ir"
)

type intervalKernel struct {
	s     *script
	regs  []api.Interval
	slots []api.Interval
	taken bool
}

// NewIntervalKernel returns an interpreting interval kernel for the tape.
func NewIntervalKernel(t *ir.Tape, storage engine.Storage) (engine.IntervalKernel, error) {
	checkTape(t)
	s := newScript(t)
	return &intervalKernel{
		s:     s,
		regs:  make([]api.Interval, s.regCount),
		slots: make([]api.Interval, s.slotCount),
	}, nil
}

// EvalInterval implements engine.IntervalKernel.
func (k *intervalKernel) EvalInterval(x, y, z api.Interval, vars []float32, choices []api.Choice, simplify *bool) api.Interval {
	if k.taken {
		panic("interpreter: evaluator used after Take")
	}
	regs, slots := k.regs, k.slots
	for _, r := range k.s.recs {
		var v api.Interval
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
			v = api.PointInterval(vars[r.aux])
		case recImm:
			v = api.PointInterval(r.imm)
		case recCopy:
			v = regs[r.lhs]
		case recNeg:
			v = interval.Neg(regs[r.lhs])
		case recAbs:
			v = interval.Abs(regs[r.lhs])
		case recRecip:
			v = interval.Recip(regs[r.lhs])
		case recSqrt:
			v = interval.Sqrt(regs[r.lhs])
		case recSquare:
			v = interval.Square(regs[r.lhs])
		case recAdd:
			v = interval.Add(regs[r.lhs], regs[r.rhs])
		case recSub:
			v = interval.Sub(regs[r.lhs], regs[r.rhs])
		case recMul:
			v = interval.Mul(regs[r.lhs], regs[r.rhs])
		case recDiv:
			v = interval.Div(regs[r.lhs], regs[r.rhs])
		case recMin, recMax:
			var c api.Choice
			if r.kind == recMin {
				v, c = interval.MinChoice(regs[r.lhs], regs[r.rhs])
			} else {
				v, c = interval.MaxChoice(regs[r.lhs], regs[r.rhs])
			}
			choices[r.aux] |= c
			if c == api.ChoiceLeft || c == api.ChoiceRight {
				*simplify = true
			}
		case recFma:
			v = interval.Add(regs[r.dst], interval.Mul(regs[r.lhs], regs[r.rhs]))
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

// Take implements engine.IntervalKernel.
func (k *intervalKernel) Take() (engine.Storage, bool) {
	if k.taken {
		return engine.Storage{}, false
	}
	k.taken = true
	return engine.Storage{}, true
}
