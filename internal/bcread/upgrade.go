package bcread

import (
	"fmt"
	"strings"

	"bcread/internal/ir"
)

// Intrinsic names of the retired exception-handling model.
const (
	ehExceptionName    = "llvm.eh.exception"
	ehSelectorName     = "llvm.eh.selector"
	ehResumeName       = "llvm.eh.resume"
	ehCatchAllName     = "llvm.eh.catch.all.value"
	gccPersonalityName = "__gcc_personality_v0"
)

// lpadSlotType is the {i8*, i32} pair every rebuilt landing pad produces.
func lpadSlotType(ctx *ir.Context) *ir.Type {
	return ctx.Struct([]*ir.Type{ctx.Pointer(ctx.Int8(), 0), ctx.Int32()}, false)
}

// upgradeUnwindTerminator rebuilds the removed stack-unwind terminator as a
// cleanup landing pad in bb whose value the caller feeds into a resume.
func (r *Reader) upgradeUnwindTerminator(fn *ir.Function, bb *ir.BasicBlock) *ir.Instruction {
	persSig := r.ctx.Function(r.ctx.Int32(), nil, true)
	persFn := r.module.OrInsertFunc(gccPersonalityName, persSig)

	lp := ir.NewInstruction(ir.OpLandingPad, lpadSlotType(r.ctx), persFn)
	lp.PersonalityFn = persFn
	lp.Cleanup = true
	bb.Append(lp)
	return lp
}

// ehUpgradeSite associates one invoke with the exception and selector calls
// reachable from its unwind destination.
type ehUpgradeSite struct {
	invoke   *ir.Instruction
	exn, sel *ir.Instruction
}

// fnSlots is the per-function pair of stack slots the rebuilt landing pads
// store into.
type fnSlots struct {
	exnSlot, selSlot *ir.Instruction
}

// upgradeExceptionHandling rewrites the retired intrinsic-call exception
// model into landing pads. Runs once, after every body is resident; running
// it again finds no convertible invokes and is a no-op.
func upgradeExceptionHandling(m *ir.Module) error {
	ehException := m.Func(ehExceptionName)
	ehSelector := m.Func(ehSelectorName)
	if ehException == nil || ehSelector == nil {
		return nil
	}

	ctx := m.Ctx
	slotTy := lpadSlotType(ctx)

	// Pair every invoke that still unwinds to a pre-landing-pad block with
	// its exception and selector calls.
	var sites []ehUpgradeSite
	for _, fn := range m.Funcs {
		for _, bb := range fn.Blocks {
			term := bb.Terminator()
			if term == nil || term.Op != ir.OpInvoke {
				continue
			}
			unwindDest := term.UnwindDest()
			if unwindDest.IsLandingPad() {
				continue // already converted
			}
			exn, sel, err := findExnAndSelCalls(unwindDest, ehException, ehSelector)
			if err != nil {
				return err
			}
			sites = append(sites, ehUpgradeSite{invoke: term, exn: exn, sel: sel})
		}
	}

	slots := make(map[*ir.Function]fnSlots)
	dead := make(map[*ir.Instruction]bool)

	for _, site := range sites {
		unwindDest := site.invoke.UnwindDest()
		fn := unwindDest.Parent

		s, ok := slots[fn]
		if !ok {
			// Allocate the exception and selector slots in front of the
			// entry terminator.
			entry := fn.Entry()
			exnSlot := ir.NewInstruction(ir.OpAlloca, ctx.Pointer(ctx.Pointer(ctx.Int8(), 0), 0), ctx.ConstInt(ctx.Int32(), 1))
			exnSlot.AllocatedType = ctx.Pointer(ctx.Int8(), 0)
			exnSlot.SetName("exn")
			selSlot := ir.NewInstruction(ir.OpAlloca, ctx.Pointer(ctx.Int32(), 0), ctx.ConstInt(ctx.Int32(), 1))
			selSlot.AllocatedType = ctx.Int32()
			selSlot.SetName("sel")
			entry.InsertAt(len(entry.Instrs)-1, exnSlot)
			entry.InsertAt(len(entry.Instrs)-1, selSlot)
			s = fnSlots{exnSlot: exnSlot, selSlot: selSlot}
			slots[fn] = s
		}

		if len(unwindDest.Predecessors()) > 1 {
			// Interpose a dedicated single-predecessor pad block.
			newBB := ir.NewBasicBlock(ctx, fn)
			newBB.SetName("new.lpad")
			br := ir.NewInstruction(ir.OpBr, ctx.Void())
			br.Succs = []*ir.BasicBlock{unwindDest}
			newBB.Append(br)
			invokeBB := site.invoke.Parent
			site.invoke.SetUnwindDest(newBB)

			// Incoming edges from the invoke's block now come through the
			// new pad.
			for _, instr := range unwindDest.Instrs {
				if instr.Op != ir.OpPhi {
					break
				}
				for i, in := range instr.Incoming {
					if in == invokeBB {
						instr.Incoming[i] = newBB
					}
				}
			}
			unwindDest = newBB
		}

		persFn := site.sel.Args()[1]
		lp := ir.NewInstruction(ir.OpLandingPad, slotTy, persFn)
		lp.PersonalityFn = persFn
		exnVal := ir.NewInstruction(ir.OpExtractValue, ctx.Pointer(ctx.Int8(), 0), lp)
		exnVal.Indices = []uint32{0}
		selVal := ir.NewInstruction(ir.OpExtractValue, ctx.Int32(), lp)
		selVal.Indices = []uint32{1}
		storeExn := ir.NewInstruction(ir.OpStore, ctx.Void(), exnVal, s.exnSlot)
		storeSel := ir.NewInstruction(ir.OpStore, ctx.Void(), selVal, s.selSlot)

		at := unwindDest.FirstNonPhi()
		unwindDest.InsertAt(at, lp)
		unwindDest.InsertAt(at+1, exnVal)
		unwindDest.InsertAt(at+2, selVal)
		unwindDest.InsertAt(at+3, storeExn)
		unwindDest.InsertAt(at+4, storeSel)

		transferClausesToLandingPad(lp, site.sel)

		dead[site.exn] = true
		dead[site.sel] = true
	}

	// The intrinsic call results are now loads from the slots.
	for _, site := range sites {
		s := slots[site.exn.Parent.Parent]

		loadExn := ir.NewInstruction(ir.OpLoad, ctx.Pointer(ctx.Int8(), 0), s.exnSlot)
		loadExn.SetName("exn.load")
		loadSel := ir.NewInstruction(ir.OpLoad, ctx.Int32(), s.selSlot)
		loadSel.SetName("sel.load")

		parent := site.exn.Parent
		at := indexOf(parent.Instrs, site.exn)
		parent.InsertAt(at, loadExn)
		parent.InsertAt(at+1, loadSel)

		ir.ReplaceAllUsesWith(site.exn, loadExn)
		ir.ReplaceAllUsesWith(site.sel, loadSel)
	}

	for inst := range dead {
		inst.EraseFromParent()
	}

	// Calls to the resume intrinsic become resume terminators over the
	// rebuilt {exn, sel} pair; everything after them in the block dies.
	ehResume := m.Func(ehResumeName)
	if ehResume == nil {
		return nil
	}
	for {
		uses := ir.Uses(ehResume)
		var call *ir.Instruction
		for _, u := range uses {
			if inst, ok := u.User.(*ir.Instruction); ok && inst.Op == ir.OpCall && inst.CalledFunction() == ehResume {
				call = inst
				break
			}
		}
		if call == nil {
			break
		}
		bb := call.Parent
		args := call.Args()

		agg1 := ir.NewInstruction(ir.OpInsertValue, slotTy, ctx.Undef(slotTy), args[0])
		agg1.Indices = []uint32{0}
		agg1.SetName("lpad.val")
		agg2 := ir.NewInstruction(ir.OpInsertValue, slotTy, agg1, args[1])
		agg2.Indices = []uint32{1}
		agg2.SetName("lpad.val")
		res := ir.NewInstruction(ir.OpResume, ctx.Void(), agg2)

		at := indexOf(bb.Instrs, call)
		bb.InsertAt(at, agg1)
		bb.InsertAt(at+1, agg2)
		bb.InsertAt(at+2, res)

		// Erase the call and everything after the resume.
		for _, tail := range append([]*ir.Instruction(nil), bb.Instrs[at+3:]...) {
			ir.ReplaceAllUsesWith(tail, ctx.Undef(tail.Type()))
			tail.EraseFromParent()
		}
	}
	return nil
}

// findExnAndSelCalls locates the unique exception and selector calls
// reachable from bb. The search walks successors with an explicit work
// list; pad regions are small but recursion depth tracks CFG size.
func findExnAndSelCalls(bb *ir.BasicBlock, ehException, ehSelector *ir.Function) (exn, sel *ir.Instruction, err error) {
	visited := make(map[*ir.BasicBlock]bool)
	work := []*ir.BasicBlock{bb}
	for len(work) > 0 && (exn == nil || sel == nil) {
		cur := work[len(work)-1]
		work = work[:len(work)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true

		for _, inst := range cur.Instrs {
			if inst.Op != ir.OpCall {
				continue
			}
			switch inst.CalledFunction() {
			case ehException:
				if exn != nil {
					return nil, nil, fmt.Errorf("multiple exception calls reachable from %q: %w", bb.Name(), ErrInvalidValue)
				}
				exn = inst
			case ehSelector:
				if sel != nil {
					return nil, nil, fmt.Errorf("multiple selector calls reachable from %q: %w", bb.Name(), ErrInvalidValue)
				}
				sel = inst
			}
			if exn != nil && sel != nil {
				return exn, sel, nil
			}
		}
		work = append(work, cur.Successors()...)
	}
	if exn == nil || sel == nil {
		return nil, nil, fmt.Errorf("cannot find exception and selector calls from %q: %w", bb.Name(), ErrInvalidValue)
	}
	return exn, sel, nil
}

// transferClausesToLandingPad converts the selector call's clause arguments
// into landing-pad clauses. Arguments are scanned from the tail: an integer
// N introduces a filter of the next N-1 operands (zero marks a cleanup);
// remaining leading arguments become catch clauses. The symbolic catch-all
// global resolves to its initializer.
func transferClausesToLandingPad(lp *ir.Instruction, sel *ir.Instruction) {
	ctx := lp.Parent.Parent.Parent.Ctx
	args := sel.Args()
	n := len(args)

	addCatch := func(v ir.Value) {
		if gv, ok := v.(*ir.GlobalVariable); ok && gv.Name() == ehCatchAllName {
			lp.Clauses = append(lp.Clauses, ir.Clause{Kind: ir.CatchClause, Value: gv.Initializer()})
			return
		}
		if c, ok := v.(ir.Constant); ok {
			lp.Clauses = append(lp.Clauses, ir.Clause{Kind: ir.CatchClause, Value: c})
		}
	}

	for i := n - 1; i > 1; i-- {
		ci, ok := args[i].(*ir.ConstantInt)
		if !ok {
			continue
		}
		filterLength := int(ci.Value())
		firstCatch := i + filterLength
		if filterLength == 0 {
			firstCatch++
		}
		for j := firstCatch; j < n; j++ {
			addCatch(args[j])
		}

		if filterLength == 0 {
			lp.Cleanup = true
		} else {
			tyInfo := make([]ir.Value, 0, filterLength-1)
			for j := i + 1; j < firstCatch; j++ {
				tyInfo = append(tyInfo, args[j])
			}
			eltTy := ctx.Pointer(ctx.Int8(), 0)
			if len(tyInfo) > 0 {
				eltTy = tyInfo[0].Type()
			}
			arrTy := ctx.Array(eltTy, uint64(len(tyInfo)))
			lp.Clauses = append(lp.Clauses, ir.Clause{Kind: ir.FilterClause, Value: ctx.ConstAggregate(arrTy, tyInfo)})
		}
		n = i
	}

	for j := 2; j < n; j++ {
		addCatch(args[j])
	}
}

func indexOf(list []*ir.Instruction, inst *ir.Instruction) int {
	for i, in := range list {
		if in == inst {
			return i
		}
	}
	return len(list)
}

// stripDebugIntrinsics removes the calls to a retired debug intrinsic and
// the declaration itself.
func stripDebugIntrinsics(m *ir.Module, name string) {
	fn := m.Func(name)
	if fn == nil {
		return
	}
	eraseAllCalls(fn)
	fn.EraseFromParent()
}

func eraseAllCalls(fn *ir.Function) {
	for {
		var call *ir.Instruction
		for _, u := range ir.Uses(fn) {
			if inst, ok := u.User.(*ir.Instruction); ok && inst.Op == ir.OpCall && inst.Parent != nil {
				call = inst
				break
			}
		}
		if call == nil {
			return
		}
		ir.ReplaceAllUsesWith(call, fn.Parent.Ctx.Undef(call.Type()))
		call.EraseFromParent()
	}
}

// checkDebugInfoIntrinsics strips the four retired region intrinsics, and
// drops declare calls whose operands are not metadata nodes.
func checkDebugInfoIntrinsics(m *ir.Module) {
	stripDebugIntrinsics(m, "llvm.dbg.func.start")
	stripDebugIntrinsics(m, "llvm.dbg.stoppoint")
	stripDebugIntrinsics(m, "llvm.dbg.region.start")
	stripDebugIntrinsics(m, "llvm.dbg.region.end")

	declare := m.Func("llvm.dbg.declare")
	if declare == nil {
		return
	}
	for _, u := range ir.Uses(declare) {
		inst, ok := u.User.(*ir.Instruction)
		if !ok || inst.Op != ir.OpCall {
			continue
		}
		args := inst.Args()
		if len(args) >= 2 {
			_, okA := args[0].(*ir.MDNode)
			_, okB := args[1].(*ir.MDNode)
			if okA && okB {
				return // well-formed; keep everything
			}
		}
		break
	}
	eraseAllCalls(declare)
	declare.EraseFromParent()
}

// upgradeIntrinsicFunction recognizes intrinsic declarations whose
// signature changed after generation 3.0 and creates the replacement
// declaration. Calls are rewritten per function at materialization.
func upgradeIntrinsicFunction(m *ir.Module, fn *ir.Function) (*ir.Function, bool) {
	name := fn.Name()
	if !strings.HasPrefix(name, "llvm.") {
		return nil, false
	}
	ctx := m.Ctx
	switch {
	case strings.HasPrefix(name, "llvm.ctlz.") || strings.HasPrefix(name, "llvm.cttz."):
		// The count intrinsics gained an is-zero-defined flag operand.
		if len(fn.Sig.Params) != 1 {
			return nil, false
		}
		params := []*ir.Type{fn.Sig.Params[0], ctx.Int1()}
		sig := ctx.Function(fn.Sig.Return, params, false)
		old := fn.Name()
		fn.SetName(old + ".old")
		return ir.NewFunction(m, sig, ir.ExternalLinkage, old), true
	case strings.HasPrefix(name, "llvm.memcpy.i") || strings.HasPrefix(name, "llvm.memmove.i") || strings.HasPrefix(name, "llvm.memset.i"):
		// The memory intrinsics were renamed over pointer overloads and
		// gained an is-volatile flag operand.
		if len(fn.Sig.Params) != 4 {
			return nil, false
		}
		params := append(append([]*ir.Type(nil), fn.Sig.Params...), ctx.Int1())
		sig := ctx.Function(fn.Sig.Return, params, false)
		dot := strings.LastIndexByte(name, '.')
		suffix := name[dot:] // ".i32" or ".i64"
		var newName string
		switch {
		case strings.HasPrefix(name, "llvm.memcpy."):
			newName = "llvm.memcpy.p0i8.p0i8" + suffix
		case strings.HasPrefix(name, "llvm.memmove."):
			newName = "llvm.memmove.p0i8.p0i8" + suffix
		default:
			newName = "llvm.memset.p0i8" + suffix
		}
		fn.SetName(name + ".old")
		return ir.NewFunction(m, sig, ir.ExternalLinkage, newName), true
	}
	return nil, false
}

// upgradeIntrinsicCall rewrites one call of an upgraded intrinsic to the
// replacement declaration, synthesizing the appended flag operand.
func upgradeIntrinsicCall(ctx *ir.Context, call *ir.Instruction, newFn *ir.Function) {
	bb := call.Parent
	if bb == nil {
		return
	}
	args := append([]ir.Value{newFn}, call.Args()...)
	switch {
	case strings.HasPrefix(newFn.Name(), "llvm.ctlz.") || strings.HasPrefix(newFn.Name(), "llvm.cttz."):
		args = append(args, ctx.ConstInt(ctx.Int1(), 1))
	case strings.HasPrefix(newFn.Name(), "llvm.memcpy.") || strings.HasPrefix(newFn.Name(), "llvm.memmove.") || strings.HasPrefix(newFn.Name(), "llvm.memset."):
		args = append(args, ctx.ConstInt(ctx.Int1(), 0))
	}
	newCall := ir.NewInstruction(ir.OpCall, newFn.Sig.Return, args...)
	newCall.CallConv = call.CallConv
	newCall.Attrs = call.Attrs
	newCall.DebugLoc = call.DebugLoc

	at := indexOf(bb.Instrs, call)
	bb.InsertAt(at, newCall)
	ir.ReplaceAllUsesWith(call, newCall)
	call.EraseFromParent()
}

// upgradeGlobalVariable fixes globals written under retired names.
func upgradeGlobalVariable(gv *ir.GlobalVariable) {
	if gv.Name() == "."+ehCatchAllName {
		gv.SetName(ehCatchAllName)
	}
}
