package ir

import (
	"fmt"

	"github.com/implicitcad/carve/api"
)

// Simplify rewrites the program under a choice trail gathered from an
// interval evaluation: wherever the trail proves one side of a min or max
// redundant on the evaluated region, the operation collapses into its
// surviving operand and everything reachable only through the dead side is
// dropped.
//
// The result computes the same value as p at every point of the region the
// trail was produced on, and never carries more choice ops than p. Collapsed
// operands substitute directly into their consumers (the copy-short-circuit
// of a separate Copy pass, folded into emission), so the output contains no
// Copy chains; a min or max whose operands become identical collapses too.
//
// The trail length must equal p.ChoiceCount; anything else is a caller bug
// and panics.
func (p *Program) Simplify(choices []api.Choice) *Program {
	if len(choices) != p.ChoiceCount {
		panic(fmt.Sprintf("ir: trail length %d, program has %d choice ops", len(choices), p.ChoiceCount))
	}

	n := len(p.Ops)
	live := make([]bool, n)
	// forwarded[i] is the operand a collapsed choice op resolves to, valid
	// when collapse[i] is set.
	forwarded := make([]uint32, n)
	collapse := make([]bool, n)

	live[n-1] = true
	choiceIdx := p.ChoiceCount
	for i := n - 1; i >= 0; i-- {
		op := p.Ops[i]
		if op.Code.IsChoice() {
			choiceIdx--
		}
		if !live[i] {
			continue
		}
		if op.Code.IsChoice() {
			switch choices[choiceIdx] {
			case api.ChoiceLeft:
				collapse[i] = true
				forwarded[i] = op.LHS
				live[op.LHS] = true
				continue
			case api.ChoiceRight:
				collapse[i] = true
				forwarded[i] = op.RHS
				live[op.RHS] = true
				continue
			}
		}
		lhs, rhs := op.Code.RegOperands()
		if lhs {
			live[op.LHS] = true
		}
		if rhs {
			live[op.RHS] = true
		}
	}

	out := &Program{VarCount: p.VarCount}
	newIdx := make([]uint32, n)
	for i := 0; i < n; i++ {
		if !live[i] {
			continue
		}
		if collapse[i] {
			newIdx[i] = newIdx[forwarded[i]]
			continue
		}
		op := p.Ops[i]
		hasLHS, hasRHS := op.Code.RegOperands()
		if hasLHS {
			op.LHS = newIdx[op.LHS]
		}
		if hasRHS {
			op.RHS = newIdx[op.RHS]
		}
		if op.Code.IsChoice() && op.LHS == op.RHS {
			// min(x, x) == max(x, x) == x after substitution.
			newIdx[i] = op.LHS
			continue
		}
		if op.Code.IsChoice() {
			out.ChoiceCount++
		}
		op.Out = uint32(len(out.Ops))
		newIdx[i] = op.Out
		out.Ops = append(out.Ops, op)
	}
	return out
}
