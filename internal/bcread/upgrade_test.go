package bcread

import (
	"testing"

	"github.com/stretchr/testify/require"

	"bcread/internal/ir"
)

// ehFixture builds a module in the retired exception-handling shape: an
// invoke whose unwind block calls the exception and selector intrinsics
// with one catch clause.
func ehFixture(t *testing.T) (*ir.Module, *ir.Function, *ir.BasicBlock) {
	t.Helper()
	ctx := ir.NewContext()
	m := ir.NewModule(ctx, "eh")

	i8p := ctx.Pointer(ctx.Int8(), 0)
	i32 := ctx.Int32()

	ehExc := ir.NewFunction(m, ctx.Function(i8p, nil, false), ir.ExternalLinkage, "llvm.eh.exception")
	ehSel := ir.NewFunction(m, ctx.Function(i32, nil, true), ir.ExternalLinkage, "llvm.eh.selector")
	pers := ir.NewFunction(m, ctx.Function(i32, nil, true), ir.ExternalLinkage, "__my_personality")
	callee := ir.NewFunction(m, ctx.Function(ctx.Void(), nil, false), ir.ExternalLinkage, "may_throw")
	typeinfo := ir.NewGlobalVariable(m, ctx.Int8(), true, ir.ExternalLinkage, 0, "typeinfo")

	fn := ir.NewFunction(m, ctx.Function(ctx.Void(), nil, false), ir.ExternalLinkage, "f")
	entry := ir.NewBasicBlock(ctx, fn)
	lpad := ir.NewBasicBlock(ctx, fn)
	cont := ir.NewBasicBlock(ctx, fn)

	invoke := ir.NewInstruction(ir.OpInvoke, ctx.Void(), callee)
	invoke.Succs = []*ir.BasicBlock{cont, lpad}
	entry.Append(invoke)

	exn := ir.NewInstruction(ir.OpCall, i8p, ehExc)
	sel := ir.NewInstruction(ir.OpCall, i32, ehSel, exn, pers, typeinfo)
	lpad.Append(exn)
	lpad.Append(sel)
	lpad.Append(ir.NewInstruction(ir.OpUnreachable, ctx.Void()))

	cont.Append(ir.NewInstruction(ir.OpRet, ctx.Void()))

	return m, fn, lpad
}

func TestUpgradeExceptionHandling_RebuildsLandingPad(t *testing.T) {
	m, fn, lpad := ehFixture(t)

	require.NoError(t, upgradeExceptionHandling(m))

	// The unwind block now opens with a landing pad carrying one catch
	// clause for the typeinfo, not marked cleanup.
	require.True(t, lpad.IsLandingPad())
	lp := lpad.Instrs[0]
	require.Equal(t, ir.OpLandingPad, lp.Op)
	require.False(t, lp.Cleanup)
	require.Len(t, lp.Clauses, 1)
	require.Equal(t, ir.CatchClause, lp.Clauses[0].Kind)
	require.Equal(t, "typeinfo", lp.Clauses[0].Value.Name())
	require.Equal(t, "__my_personality", lp.PersonalityFn.Name())

	// The intrinsic calls are gone; their consumers read the entry-block
	// slots instead.
	for _, bb := range fn.Blocks {
		for _, inst := range bb.Instrs {
			if inst.Op == ir.OpCall {
				name := inst.CalledFunction().Name()
				require.NotEqual(t, "llvm.eh.exception", name)
				require.NotEqual(t, "llvm.eh.selector", name)
			}
		}
	}

	// Stores of the extracted pair follow the landing pad.
	require.Equal(t, ir.OpExtractValue, lpad.Instrs[1].Op)
	require.Equal(t, ir.OpExtractValue, lpad.Instrs[2].Op)
	require.Equal(t, ir.OpStore, lpad.Instrs[3].Op)
	require.Equal(t, ir.OpStore, lpad.Instrs[4].Op)

	// The slots live in the entry block.
	var allocas int
	for _, inst := range fn.Entry().Instrs {
		if inst.Op == ir.OpAlloca {
			allocas++
		}
	}
	require.Equal(t, 2, allocas)
}

func TestUpgradeExceptionHandling_CatchAllAndCleanup(t *testing.T) {
	m, _, lpad := ehFixture(t)
	ctx := m.Ctx

	// Rebuild the selector args: a zero filter length marks a cleanup,
	// and the symbolic catch-all global resolves to its initializer.
	catchAll := ir.NewGlobalVariable(m, ctx.Pointer(ctx.Int8(), 0), true, ir.ExternalLinkage, 0, "llvm.eh.catch.all.value")
	catchAll.SetInitializer(ctx.Zero(ctx.Pointer(ctx.Int8(), 0)))

	sel := lpad.Instrs[1]
	require.Equal(t, "llvm.eh.selector", sel.CalledFunction().Name())
	sel.SetOperand(3, ctx.ConstInt(ctx.Int32(), 0)) // filter length 0
	newSel := ir.NewInstruction(ir.OpCall, ctx.Int32(),
		append([]ir.Value{sel.CalledValue()}, append(sel.Args(), catchAll)...)...)
	lpad.InsertAt(2, newSel)
	ir.ReplaceAllUsesWith(sel, newSel)
	sel.EraseFromParent()

	require.NoError(t, upgradeExceptionHandling(m))

	lp := lpad.Instrs[0]
	require.Equal(t, ir.OpLandingPad, lp.Op)
	require.True(t, lp.Cleanup)
	require.Len(t, lp.Clauses, 1)
	// The catch-all clause carries the initializer, not the global.
	require.Equal(t, ir.Constant(ctx.Zero(ctx.Pointer(ctx.Int8(), 0))), lp.Clauses[0].Value)
}

func TestUpgradeExceptionHandling_MultiPredecessorInterposes(t *testing.T) {
	m, fn, lpad := ehFixture(t)
	ctx := m.Ctx

	// A second plain branch into the unwind block forces the upgrade to
	// interpose a dedicated pad block.
	extra := ir.NewBasicBlock(ctx, fn)
	br := ir.NewInstruction(ir.OpBr, ctx.Void())
	br.Succs = []*ir.BasicBlock{lpad}
	extra.Append(br)

	invoke := fn.Entry().Terminator()
	require.NoError(t, upgradeExceptionHandling(m))

	newDest := invoke.UnwindDest()
	require.NotEqual(t, lpad, newDest)
	require.True(t, newDest.IsLandingPad())
	require.Equal(t, ir.OpBr, newDest.Terminator().Op)
	require.Equal(t, lpad, newDest.Successors()[0])
}

func TestUpgradeExceptionHandling_Idempotent(t *testing.T) {
	m, _, _ := ehFixture(t)
	require.NoError(t, upgradeExceptionHandling(m))

	count := func() int {
		n := 0
		for _, fn := range m.Funcs {
			for _, bb := range fn.Blocks {
				n += len(bb.Instrs)
			}
		}
		return n
	}
	first := count()
	require.NoError(t, upgradeExceptionHandling(m))
	require.Equal(t, first, count())
}

func TestUpgradeExceptionHandling_ResumeCalls(t *testing.T) {
	m, _, _ := ehFixture(t)
	ctx := m.Ctx
	i8p := ctx.Pointer(ctx.Int8(), 0)

	ehResume := ir.NewFunction(m, ctx.Function(ctx.Void(), []*ir.Type{i8p, ctx.Int32()}, false), ir.ExternalLinkage, "llvm.eh.resume")
	h := ir.NewFunction(m, ctx.Function(ctx.Void(), nil, false), ir.ExternalLinkage, "h")
	bb := ir.NewBasicBlock(ctx, h)
	call := ir.NewInstruction(ir.OpCall, ctx.Void(), ehResume, ctx.Undef(i8p), ctx.Undef(ctx.Int32()))
	bb.Append(call)
	bb.Append(ir.NewInstruction(ir.OpUnreachable, ctx.Void()))

	require.NoError(t, upgradeExceptionHandling(m))

	require.Len(t, bb.Instrs, 3)
	require.Equal(t, ir.OpInsertValue, bb.Instrs[0].Op)
	require.Equal(t, ir.OpInsertValue, bb.Instrs[1].Op)
	require.Equal(t, ir.OpResume, bb.Instrs[2].Op)
}

func TestCheckDebugInfoIntrinsics_Strips(t *testing.T) {
	ctx := ir.NewContext()
	m := ir.NewModule(ctx, "dbg")

	stop := ir.NewFunction(m, ctx.Function(ctx.Void(), nil, true), ir.ExternalLinkage, "llvm.dbg.stoppoint")
	fn := ir.NewFunction(m, ctx.Function(ctx.Void(), nil, false), ir.ExternalLinkage, "f")
	bb := ir.NewBasicBlock(ctx, fn)
	bb.Append(ir.NewInstruction(ir.OpCall, ctx.Void(), stop))
	bb.Append(ir.NewInstruction(ir.OpRet, ctx.Void()))

	checkDebugInfoIntrinsics(m)

	require.Nil(t, m.Func("llvm.dbg.stoppoint"))
	require.Len(t, bb.Instrs, 1)
	require.Equal(t, ir.OpRet, bb.Instrs[0].Op)
}

func TestUpgradeIntrinsicFunction_Ctlz(t *testing.T) {
	ctx := ir.NewContext()
	m := ir.NewModule(ctx, "up")
	i32 := ctx.Int32()

	old := ir.NewFunction(m, ctx.Function(i32, []*ir.Type{i32}, false), ir.ExternalLinkage, "llvm.ctlz.i32")
	newFn, upgraded := upgradeIntrinsicFunction(m, old)
	require.True(t, upgraded)
	require.Equal(t, "llvm.ctlz.i32", newFn.Name())
	require.Equal(t, "llvm.ctlz.i32.old", old.Name())
	require.Len(t, newFn.Sig.Params, 2)

	// A call is rewritten with the appended flag operand.
	fn := ir.NewFunction(m, ctx.Function(ctx.Void(), nil, false), ir.ExternalLinkage, "f")
	bb := ir.NewBasicBlock(ctx, fn)
	call := ir.NewInstruction(ir.OpCall, i32, old, ctx.ConstInt(i32, 7))
	bb.Append(call)
	bb.Append(ir.NewInstruction(ir.OpRet, ctx.Void()))

	upgradeIntrinsicCall(ctx, call, newFn)
	require.Len(t, bb.Instrs, 2)
	rewritten := bb.Instrs[0]
	require.Equal(t, ir.Value(newFn), rewritten.CalledValue())
	require.Len(t, rewritten.Args(), 2)
}

func TestUpgradeGlobalVariable_CatchAllRename(t *testing.T) {
	ctx := ir.NewContext()
	m := ir.NewModule(ctx, "g")
	gv := ir.NewGlobalVariable(m, ctx.Int8(), true, ir.InternalLinkage, 0, ".llvm.eh.catch.all.value")
	upgradeGlobalVariable(gv)
	require.Equal(t, "llvm.eh.catch.all.value", gv.Name())
}
