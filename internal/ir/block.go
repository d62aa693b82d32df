package ir

// BasicBlock is an ordered list of instructions ending, once complete, in a
// terminator. Blocks are values of label type so block addresses and branch
// targets can refer to them.
type BasicBlock struct {
	valueBase
	Parent *Function
	Instrs []*Instruction
}

// NewBasicBlock creates a block appended to fn.
func NewBasicBlock(ctx *Context, fn *Function) *BasicBlock {
	bb := &BasicBlock{Parent: fn}
	bb.typ = ctx.Label()
	fn.Blocks = append(fn.Blocks, bb)
	return bb
}

// Append adds inst at the end of the block.
func (bb *BasicBlock) Append(inst *Instruction) {
	inst.Parent = bb
	bb.Instrs = append(bb.Instrs, inst)
}

// InsertAt places inst at position i.
func (bb *BasicBlock) InsertAt(i int, inst *Instruction) {
	inst.Parent = bb
	bb.Instrs = append(bb.Instrs, nil)
	copy(bb.Instrs[i+1:], bb.Instrs[i:])
	bb.Instrs[i] = inst
}

func (bb *BasicBlock) remove(inst *Instruction) {
	for i, in := range bb.Instrs {
		if in == inst {
			bb.Instrs = append(bb.Instrs[:i], bb.Instrs[i+1:]...)
			return
		}
	}
}

// Empty reports whether the block has no instructions.
func (bb *BasicBlock) Empty() bool { return len(bb.Instrs) == 0 }

// Last returns the final instruction, or nil.
func (bb *BasicBlock) Last() *Instruction {
	if len(bb.Instrs) == 0 {
		return nil
	}
	return bb.Instrs[len(bb.Instrs)-1]
}

// Terminator returns the block's terminator, or nil if the block is not yet
// terminated.
func (bb *BasicBlock) Terminator() *Instruction {
	last := bb.Last()
	if last != nil && last.IsTerminator() {
		return last
	}
	return nil
}

// Successors returns the successor blocks of the terminator.
func (bb *BasicBlock) Successors() []*BasicBlock {
	term := bb.Terminator()
	if term == nil {
		return nil
	}
	return term.Succs
}

// FirstNonPhi returns the index of the first non-phi instruction.
func (bb *BasicBlock) FirstNonPhi() int {
	for i, inst := range bb.Instrs {
		if inst.Op != OpPhi {
			return i
		}
	}
	return len(bb.Instrs)
}

// IsLandingPad reports whether the first non-phi instruction is a landing
// pad.
func (bb *BasicBlock) IsLandingPad() bool {
	i := bb.FirstNonPhi()
	return i < len(bb.Instrs) && bb.Instrs[i].Op == OpLandingPad
}

// Predecessors returns the blocks whose terminators target bb. Computed by
// scanning the parent function.
func (bb *BasicBlock) Predecessors() []*BasicBlock {
	if bb.Parent == nil {
		return nil
	}
	var preds []*BasicBlock
	for _, other := range bb.Parent.Blocks {
		for _, s := range other.Successors() {
			if s == bb {
				preds = append(preds, other)
				break
			}
		}
	}
	return preds
}
