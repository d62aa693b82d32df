package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContext_TypeUniquing(t *testing.T) {
	ctx := NewContext()

	require.Same(t, ctx.Int(32), ctx.Int(32))
	require.NotSame(t, ctx.Int(32), ctx.Int(64))

	p1 := ctx.Pointer(ctx.Int(8), 0)
	p2 := ctx.Pointer(ctx.Int(8), 0)
	require.Same(t, p1, p2)
	require.NotSame(t, p1, ctx.Pointer(ctx.Int(8), 1))

	f1 := ctx.Function(ctx.Void(), []*Type{ctx.Int(32)}, false)
	f2 := ctx.Function(ctx.Void(), []*Type{ctx.Int(32)}, false)
	require.Same(t, f1, f2)
	require.NotSame(t, f1, ctx.Function(ctx.Void(), []*Type{ctx.Int(32)}, true))

	s1 := ctx.Struct([]*Type{ctx.Int(8), ctx.Int(16)}, false)
	s2 := ctx.Struct([]*Type{ctx.Int(8), ctx.Int(16)}, false)
	require.Same(t, s1, s2)
	require.NotSame(t, s1, ctx.Struct([]*Type{ctx.Int(8), ctx.Int(16)}, true))
}

func TestContext_NamedStructIdentity(t *testing.T) {
	ctx := NewContext()
	a := ctx.NamedStruct("pair")
	b := ctx.NamedStruct("pair")
	require.NotSame(t, a, b)
	require.True(t, a.Opaque)

	a.SetBody([]*Type{ctx.Int(32)}, false)
	require.False(t, a.Opaque)
	require.Equal(t, ctx.Int(32), a.FieldAt(0))
}

func TestType_String(t *testing.T) {
	ctx := NewContext()
	tests := []struct {
		ty   *Type
		want string
	}{
		{ctx.Int(1), "i1"},
		{ctx.Pointer(ctx.Int(8), 0), "i8*"},
		{ctx.Array(ctx.Int(32), 4), "[4 x i32]"},
		{ctx.Vector(ctx.Float(), 2), "<2 x float>"},
		{ctx.Function(ctx.Void(), []*Type{ctx.Int(32)}, true), "void (i32, ...)"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, tt.ty.String())
	}
}

func TestContext_ConstantInterning(t *testing.T) {
	ctx := NewContext()
	i32 := ctx.Int(32)

	require.Same(t, ctx.ConstInt(i32, 42), ctx.ConstInt(i32, 42))
	require.NotSame(t, ctx.ConstInt(i32, 42), ctx.ConstInt(i32, 43))
	require.Same(t, ctx.Zero(i32), ctx.Zero(i32))
	require.Same(t, ctx.Undef(i32), ctx.Undef(i32))

	arrTy := ctx.Array(i32, 2)
	a1 := ctx.ConstAggregate(arrTy, []Value{ctx.ConstInt(i32, 1), ctx.ConstInt(i32, 2)})
	a2 := ctx.ConstAggregate(arrTy, []Value{ctx.ConstInt(i32, 1), ctx.ConstInt(i32, 2)})
	require.Same(t, a1, a2)
}

func TestConstantInt_WidthTruncation(t *testing.T) {
	ctx := NewContext()
	c := ctx.ConstInt(ctx.Int(8), 0x1FF)
	require.Equal(t, []uint64{0xFF}, c.Words)

	wide := ctx.ConstIntWords(ctx.Int(128), []uint64{1, 2})
	require.Equal(t, []uint64{1, 2}, wide.Words)
}

func TestReplaceAllUsesWith(t *testing.T) {
	ctx := NewContext()
	i32 := ctx.Int(32)

	a := NewArgument(i32)
	b := NewArgument(i32)
	add := NewInstruction(OpAdd, i32, a, a)

	require.Len(t, Uses(a), 2)
	ReplaceAllUsesWith(a, b)
	require.Empty(t, Uses(a))
	require.Equal(t, []Value{b, b}, add.Operands())
	require.Len(t, Uses(b), 2)
}

func TestWithOperands_ReUniques(t *testing.T) {
	ctx := NewContext()
	i32 := ctx.Int(32)
	arrTy := ctx.Array(i32, 2)

	ph := ctx.NewPlaceholder(i32)
	agg := ctx.ConstAggregate(arrTy, []Value{ph, ctx.ConstInt(i32, 7)})

	resolved := ctx.WithOperands(agg, []Value{ctx.ConstInt(i32, 3), ctx.ConstInt(i32, 7)})
	direct := ctx.ConstAggregate(arrTy, []Value{ctx.ConstInt(i32, 3), ctx.ConstInt(i32, 7)})
	require.Same(t, direct, resolved)
}

func TestDestroy_Evicts(t *testing.T) {
	ctx := NewContext()
	i32 := ctx.Int(32)
	arrTy := ctx.Array(i32, 1)

	one := ctx.ConstInt(i32, 1)
	agg := ctx.ConstAggregate(arrTy, []Value{one})
	require.Len(t, Uses(one), 1)

	ctx.Destroy(agg)
	require.Empty(t, Uses(one))
	// A rebuilt aggregate is a fresh object.
	require.NotSame(t, agg, ctx.ConstAggregate(arrTy, []Value{one}))
}

func TestBasicBlock_TerminatorAndPreds(t *testing.T) {
	ctx := NewContext()
	m := NewModule(ctx, "m")
	sig := ctx.Function(ctx.Void(), nil, false)
	fn := NewFunction(m, sig, ExternalLinkage, "f")

	entry := NewBasicBlock(ctx, fn)
	exit := NewBasicBlock(ctx, fn)

	br := NewInstruction(OpBr, ctx.Void())
	br.Succs = []*BasicBlock{exit}
	entry.Append(br)
	ret := NewInstruction(OpRet, ctx.Void())
	exit.Append(ret)

	require.Equal(t, br, entry.Terminator())
	require.Equal(t, []*BasicBlock{exit}, entry.Successors())
	require.Equal(t, []*BasicBlock{entry}, exit.Predecessors())
}

func TestFunction_DeleteBody(t *testing.T) {
	ctx := NewContext()
	m := NewModule(ctx, "m")
	sig := ctx.Function(ctx.Int(32), nil, false)
	fn := NewFunction(m, sig, ExternalLinkage, "f")

	bb := NewBasicBlock(ctx, fn)
	one := ctx.ConstInt(ctx.Int(32), 1)
	add := NewInstruction(OpAdd, ctx.Int(32), one, one)
	bb.Append(add)
	ret := NewInstruction(OpRet, ctx.Void(), add)
	bb.Append(ret)

	require.False(t, fn.IsDeclaration())
	fn.DeleteBody()
	require.True(t, fn.IsDeclaration())
	require.Empty(t, Uses(add))
}

func TestGlobalVariable_Initializer(t *testing.T) {
	ctx := NewContext()
	m := NewModule(ctx, "m")
	gv := NewGlobalVariable(m, ctx.Int(32), true, InternalLinkage, 0, "g")

	require.Nil(t, gv.Initializer())
	c := ctx.ConstInt(ctx.Int(32), 9)
	gv.SetInitializer(c)
	require.Equal(t, c, gv.Initializer())
	require.Len(t, Uses(c), 1)

	gv.EraseFromParent()
	require.Empty(t, m.Globals)
	require.Empty(t, Uses(c))
}

func TestModule_MDKindID(t *testing.T) {
	ctx := NewContext()
	m := NewModule(ctx, "m")
	dbg := m.MDKindID("dbg")
	require.Equal(t, dbg, m.MDKindID("dbg"))
	require.NotEqual(t, dbg, m.MDKindID("tbaa"))
}

func TestMDNode_TemporaryResolution(t *testing.T) {
	ctx := NewContext()
	tmp := ctx.NewTemporaryMDNode()
	user := ctx.NewMDNode([]Value{tmp}, false)

	real := ctx.NewMDNode([]Value{ctx.NewMDString("x")}, false)
	ReplaceAllUsesWith(tmp, real)
	tmp.DeleteTemporary()

	require.Equal(t, real, user.Operands()[0])
}

func TestGEPResultType(t *testing.T) {
	ctx := NewContext()
	i32 := ctx.Int(32)
	inner := ctx.Struct([]*Type{i32, ctx.Array(ctx.Int(8), 4)}, false)
	base := ctx.Pointer(inner, 0)

	zero := ctx.ConstInt(i32, 0)
	one := ctx.ConstInt(i32, 1)

	// &base[0].field1[2] has type i8*.
	got := ctx.GEPResultType(base, []Value{zero, one, ctx.ConstInt(i32, 2)})
	require.Equal(t, ctx.Pointer(ctx.Int(8), 0), got)

	// A lone pointer index stays at the pointee.
	require.Equal(t, base, ctx.GEPResultType(base, []Value{zero}))
}
