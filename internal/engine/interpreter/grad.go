package interpreter

import (
	"math"

	"github.com/implicitcad/carve/api"
	"github.com/implicitcad/carve/internal/engine"
	"github.com/implicitcad/carve/internal/ir"
)

type gradKernel struct {
	s     *script
	regs  []api.Grad
	slots []api.Grad
	taken bool
}

// NewGradKernel returns an interpreting gradient kernel for the tape.
func NewGradKernel(t *ir.Tape, storage engine.Storage) (engine.GradKernel, error) {
	checkTape(t)
	s := newScript(t)
	return &gradKernel{
		s:     s,
		regs:  make([]api.Grad, s.regCount),
		slots: make([]api.Grad, s.slotCount),
	}, nil
}

// Take implements engine.GradKernel.
func (k *gradKernel) Take() (engine.Storage, bool) {
	if k.taken {
		return engine.Storage{}, false
	}
	k.taken = true
	return engine.Storage{}, true
}

// EvalGrad implements engine.GradKernel. Derivatives are forward-mode dual
// numbers: each register carries the value and its three partials.
func (k *gradKernel) EvalGrad(x, y, z float32, vars []float32) api.Grad {
	if k.taken {
		panic("interpreter: evaluator used after Take")
	}
	regs, slots := k.regs, k.slots
	for _, r := range k.s.recs {
		var v api.Grad
		switch r.kind {
		case recInput:
			switch r.aux {
			case 0:
				v = api.Grad{V: x, Dx: 1}
			case 1:
				v = api.Grad{V: y, Dy: 1}
			default:
				v = api.Grad{V: z, Dz: 1}
			}
		case recVar:
			v = api.Grad{V: vars[r.aux]}
		case recImm:
			v = api.Grad{V: r.imm}
		case recCopy:
			v = regs[r.lhs]
		case recNeg:
			a := regs[r.lhs]
			v = api.Grad{V: -a.V, Dx: -a.Dx, Dy: -a.Dy, Dz: -a.Dz}
		case recAbs:
			a := regs[r.lhs]
			if a.V < 0 {
				v = api.Grad{V: -a.V, Dx: -a.Dx, Dy: -a.Dy, Dz: -a.Dz}
			} else {
				v = a
			}
		case recRecip:
			a := regs[r.lhs]
			vv := a.V * a.V
			v = api.Grad{V: a.V / vv, Dx: -(a.Dx / vv), Dy: -(a.Dy / vv), Dz: -(a.Dz / vv)}
		case recSqrt:
			a := regs[r.lhs]
			s := float32(math.Sqrt(float64(a.V)))
			den := s + s
			v = api.Grad{V: s, Dx: a.Dx / den, Dy: a.Dy / den, Dz: a.Dz / den}
		case recSquare:
			a := regs[r.lhs]
			v = api.Grad{V: a.V * a.V, Dx: 2 * a.V * a.Dx, Dy: 2 * a.V * a.Dy, Dz: 2 * a.V * a.Dz}
		case recAdd:
			a, b := regs[r.lhs], regs[r.rhs]
			v = api.Grad{V: a.V + b.V, Dx: a.Dx + b.Dx, Dy: a.Dy + b.Dy, Dz: a.Dz + b.Dz}
		case recSub:
			a, b := regs[r.lhs], regs[r.rhs]
			v = api.Grad{V: a.V - b.V, Dx: a.Dx - b.Dx, Dy: a.Dy - b.Dy, Dz: a.Dz - b.Dz}
		case recMul:
			v = gradMul(regs[r.lhs], regs[r.rhs])
		case recDiv:
			a, b := regs[r.lhs], regs[r.rhs]
			vv := b.V * b.V
			v = api.Grad{
				V:  a.V / b.V,
				Dx: (b.V*a.Dx - a.V*b.Dx) / vv,
				Dy: (b.V*a.Dy - a.V*b.Dy) / vv,
				Dz: (b.V*a.Dz - a.V*b.Dz) / vv,
			}
		case recMin:
			a, b := regs[r.lhs], regs[r.rhs]
			if b.V < a.V {
				v = b
			} else {
				v = a
			}
		case recMax:
			a, b := regs[r.lhs], regs[r.rhs]
			if b.V > a.V {
				v = b
			} else {
				v = a
			}
		case recFma:
			m := gradMul(regs[r.lhs], regs[r.rhs])
			d := regs[r.dst]
			v = api.Grad{V: d.V + m.V, Dx: d.Dx + m.Dx, Dy: d.Dy + m.Dy, Dz: d.Dz + m.Dz}
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

func gradMul(a, b api.Grad) api.Grad {
	return api.Grad{
		V:  a.V * b.V,
		Dx: a.V*b.Dx + b.V*a.Dx,
		Dy: a.V*b.Dy + b.V*a.Dy,
		Dz: a.V*b.Dz + b.V*a.Dz,
	}
}
