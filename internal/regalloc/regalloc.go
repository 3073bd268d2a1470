// Package regalloc schedules SSA programs onto a fixed budget of physical
// registers, spilling to numbered stack slots when the budget runs out.
//
// The walk runs in reverse program order: operand liveness is tracked from
// the consumer side, so the last use of a value (seen first in reverse)
// allocates its register and the definition (seen last) frees it. Loads are
// emitted at eviction points, stores at definitions of spilled values, and
// the whole stream is reversed into a forward-ordered tape at the end.
package regalloc

import (
	"errors"
	"fmt"

	"github.com/implicitcad/carve/internal/ir"
)

// ErrRegisterLimit is returned when a program cannot be scheduled under the
// requested budget: fewer than two registers can never host binary ops, and
// families that disallow spilling fail as soon as a value must leave the
// register file.
var ErrRegisterLimit = errors.New("regalloc: register budget too small")

const unassigned = ^uint32(0)

type allocator struct {
	p        *ir.Program
	regLimit uint32
	spill    bool

	// reg[v] is the physical register of virtual register v, slot[v] its
	// spill slot. Both can be set at once: between a value's definition and
	// the eviction point that pushed it out, it lives in the slot and in
	// whatever register a use below the eviction reclaimed for it.
	reg  []uint32
	slot []uint32
	// regVreg[r] is the virtual register currently bound to register r.
	regVreg  []uint32
	freeRegs []uint32
	// nextUse[v] is the earliest forward-order position at which v is still
	// needed, seen from the current reverse-walk position. Spill victims
	// are the values needed farthest in the future.
	nextUse []uint32

	freeSlots []uint32
	slotCount int

	// out accumulates emitted ops in reverse program order.
	out []ir.Op
}

// Allocate lowers p onto regLimit physical registers. When spill is false
// the program must fit the register file exactly or ErrRegisterLimit is
// returned; default evaluator families always spill.
func Allocate(p *ir.Program, regLimit uint8, spill bool) (*ir.Tape, error) {
	if regLimit < 2 {
		return nil, fmt.Errorf("%w: %d registers", ErrRegisterLimit, regLimit)
	}
	n := len(p.Ops)
	if n == 0 {
		return nil, errors.New("regalloc: empty program")
	}
	a := &allocator{
		p:        p,
		regLimit: uint32(regLimit),
		spill:    spill,
		reg:      make([]uint32, n),
		slot:     make([]uint32, n),
		regVreg:  make([]uint32, regLimit),
		nextUse:  make([]uint32, n),
		out:      make([]ir.Op, 0, n),
	}
	for i := range a.reg {
		a.reg[i] = unassigned
		a.slot[i] = unassigned
	}
	for r := int(regLimit) - 1; r >= 0; r-- {
		a.regVreg[r] = unassigned
		a.freeRegs = append(a.freeRegs, uint32(r))
	}

	root := p.Root()
	a.nextUse[root] = root
	resultReg, err := a.allocReg(root, root)
	if err != nil {
		return nil, err
	}

	for i := n - 1; i >= 0; i-- {
		if err := a.lowerOp(uint32(i)); err != nil {
			return nil, err
		}
	}

	// Reverse into forward order.
	ops := a.out
	for i, j := 0, len(ops)-1; i < j; i, j = i+1, j-1 {
		ops[i], ops[j] = ops[j], ops[i]
	}
	return &ir.Tape{
		Ops:         ops,
		ResultReg:   resultReg,
		RegLimit:    regLimit,
		SlotCount:   a.slotCount,
		VarCount:    p.VarCount,
		ChoiceCount: p.ChoiceCount,
		SSA:         p,
	}, nil
}

func (a *allocator) lowerOp(v uint32) error {
	op := a.p.Ops[v]

	// Resolve where the definition computes to. A value that only lives in
	// a spill slot here still needs a register to be computed into.
	dst := a.reg[v]
	if dst == unassigned {
		if a.slot[v] == unassigned {
			// Dead op: lowering emits only live code.
			return fmt.Errorf("regalloc: op %d (%s) has no consumer", v, op)
		}
		var err error
		dst, err = a.allocReg(v, v)
		if err != nil {
			return err
		}
	}
	// A spilled value is written to its slot right after it is computed;
	// the loads reading the slot were already emitted at eviction points.
	if s := a.slot[v]; s != unassigned {
		a.out = append(a.out, ir.Op{Code: ir.OpStore, Out: s, LHS: dst})
		a.slot[v] = unassigned
		a.freeSlots = append(a.freeSlots, s)
	}
	// The definition ends the value's lifetime in reverse order. Operands
	// may reclaim dst, making the op compute in place.
	a.freeReg(dst)

	hasLHS, hasRHS := op.Code.RegOperands()
	emitted := ir.Op{Code: op.Code, Out: dst, LHS: op.LHS, RHS: op.RHS, Imm: op.Imm}
	if hasLHS {
		r, err := a.operandReg(op.LHS, v)
		if err != nil {
			return err
		}
		emitted.LHS = r
	}
	if hasRHS {
		if op.RHS == op.LHS {
			emitted.RHS = emitted.LHS
		} else {
			r, err := a.operandReg(op.RHS, v)
			if err != nil {
				return err
			}
			emitted.RHS = r
		}
	}
	a.out = append(a.out, emitted)
	return nil
}

// operandReg returns the register in which vreg must sit at position pos.
func (a *allocator) operandReg(vreg, pos uint32) (uint32, error) {
	a.nextUse[vreg] = pos
	if r := a.reg[vreg]; r != unassigned {
		return r, nil
	}
	// Not in a register here, possibly in a slot. Either way the value is
	// (re)bound to a register that its definition will eventually fill; if
	// a slot binding exists it stays, and the definition stores there too.
	return a.allocReg(vreg, pos)
}

// allocReg binds vreg to a free register. When the file is full it spills
// the bound value whose next use is farthest, skipping values used at the
// current position (the other operand of the op being lowered).
func (a *allocator) allocReg(vreg, pos uint32) (uint32, error) {
	if k := len(a.freeRegs); k > 0 {
		r := a.freeRegs[k-1]
		a.freeRegs = a.freeRegs[:k-1]
		a.regVreg[r] = vreg
		a.reg[vreg] = r
		return r, nil
	}
	if !a.spill {
		return 0, fmt.Errorf("%w: %d registers with spilling disabled", ErrRegisterLimit, a.regLimit)
	}

	victimReg := unassigned
	var victimUse uint32
	for r := uint32(0); r < a.regLimit; r++ {
		w := a.regVreg[r]
		if a.nextUse[w] == pos {
			continue
		}
		if u := a.nextUse[w]; victimReg == unassigned || u > victimUse {
			victimReg, victimUse = r, u
		}
	}
	if victimReg == unassigned {
		return 0, fmt.Errorf("%w: %d registers cannot hold one op's operands", ErrRegisterLimit, a.regLimit)
	}
	w := a.regVreg[victimReg]

	// In forward order the victim sits in its slot from its definition up
	// to this point, where it returns to the register file for the uses
	// above. The load is appended before the current op in the reverse
	// stream, so it lands just after it in forward order.
	s := a.slot[w]
	if s == unassigned {
		s = a.allocSlot()
	}
	a.out = append(a.out, ir.Op{Code: ir.OpLoad, Out: victimReg, LHS: s})
	a.slot[w] = s
	a.reg[w] = unassigned

	a.regVreg[victimReg] = vreg
	a.reg[vreg] = victimReg
	return victimReg, nil
}

func (a *allocator) freeReg(r uint32) {
	if w := a.regVreg[r]; w != unassigned {
		a.reg[w] = unassigned
	}
	a.regVreg[r] = unassigned
	a.freeRegs = append(a.freeRegs, r)
}

func (a *allocator) allocSlot() uint32 {
	if k := len(a.freeSlots); k > 0 {
		s := a.freeSlots[k-1]
		a.freeSlots = a.freeSlots[:k-1]
		return s
	}
	s := uint32(a.slotCount)
	a.slotCount++
	return s
}
