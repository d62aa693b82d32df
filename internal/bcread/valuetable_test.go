package bcread

import (
	"testing"

	"github.com/stretchr/testify/require"

	"bcread/internal/ir"
)

func TestValueTable_AssignAndShrink(t *testing.T) {
	ctx := ir.NewContext()
	vt := newValueTable(ctx)

	one := ctx.ConstInt(ctx.Int(32), 1)
	vt.push(one)
	require.Equal(t, 1, vt.size())

	baseline := vt.size()
	vt.push(ctx.ConstInt(ctx.Int(32), 2))
	vt.push(ctx.ConstInt(ctx.Int(32), 3))
	vt.shrinkTo(baseline)
	require.Equal(t, baseline, vt.size())
	require.Equal(t, ir.Value(one), vt.at(0))
}

func TestValueTable_ConstantFwdRefInstallsPlaceholder(t *testing.T) {
	ctx := ir.NewContext()
	vt := newValueTable(ctx)

	c, err := vt.constantFwdRef(3, ctx.Int(32))
	require.NoError(t, err)
	require.True(t, ir.IsPlaceholder(c))
	require.Equal(t, 4, vt.size())

	// A second reference to the same slot returns the same placeholder.
	again, err := vt.constantFwdRef(3, ctx.Int(32))
	require.NoError(t, err)
	require.Same(t, c, again)
}

func TestValueTable_ValueFwdRefNeedsType(t *testing.T) {
	ctx := ir.NewContext()
	vt := newValueTable(ctx)

	_, err := vt.valueFwdRef(0, nil)
	require.ErrorIs(t, err, ErrInvalidRecord)

	v, err := vt.valueFwdRef(0, ctx.Int(32))
	require.NoError(t, err)
	arg, ok := v.(*ir.Argument)
	require.True(t, ok)
	require.Nil(t, arg.Parent)
}

func TestValueTable_AssignOverArgumentRewritesUses(t *testing.T) {
	ctx := ir.NewContext()
	vt := newValueTable(ctx)

	fwd, err := vt.valueFwdRef(0, ctx.Int(32))
	require.NoError(t, err)
	user := ir.NewInstruction(ir.OpAdd, ctx.Int(32), fwd, fwd)

	real := ir.NewInstruction(ir.OpAdd, ctx.Int(32), ctx.ConstInt(ctx.Int(32), 1), ctx.ConstInt(ctx.Int(32), 2))
	vt.assign(real, 0)

	require.Equal(t, []ir.Value{real, real}, user.Operands())
	require.Same(t, ir.Value(real), vt.at(0))
}

// Shared-operand resolution: one aggregate holding two distinct forward
// references must be rebuilt exactly once, with both operands resolved.
func TestValueTable_ResolveConstantForwardRefs(t *testing.T) {
	ctx := ir.NewContext()
	vt := newValueTable(ctx)
	i32 := ctx.Int(32)
	arrTy := ctx.Array(i32, 3)

	phA, err := vt.constantFwdRef(1, i32)
	require.NoError(t, err)
	phB, err := vt.constantFwdRef(2, i32)
	require.NoError(t, err)

	agg := ctx.ConstAggregate(arrTy, []ir.Value{phA, phB, phA})
	vt.assign(agg, 0)

	// The real values arrive after the aggregate.
	vt.assign(ctx.ConstInt(i32, 10), 1)
	vt.assign(ctx.ConstInt(i32, 20), 2)

	// An instruction user of a placeholder is rewritten in place.
	inst := ir.NewInstruction(ir.OpRet, ctx.Void(), phA)

	vt.resolveConstantForwardRefs()

	require.Equal(t, ir.Value(ctx.ConstInt(i32, 10)), inst.Operands()[0])

	want := ctx.ConstAggregate(arrTy, []ir.Value{
		ctx.ConstInt(i32, 10), ctx.ConstInt(i32, 20), ctx.ConstInt(i32, 10),
	})
	// The original aggregate was destroyed and re-uniqued; its table slot
	// follows the replacement.
	require.Same(t, ir.Value(want), vt.at(0))
	for _, op := range want.Operands() {
		require.False(t, ir.IsPlaceholder(op))
	}
	require.Empty(t, ir.Uses(phA))
	require.Empty(t, ir.Uses(phB))
}

func TestMDValueTable_TemporaryResolution(t *testing.T) {
	ctx := ir.NewContext()
	mt := newMDValueTable(ctx)

	tmp := mt.valueFwdRef(0)
	node, ok := tmp.(*ir.MDNode)
	require.True(t, ok)
	require.True(t, node.Temporary)

	user := ctx.NewMDNode([]ir.Value{tmp}, false)

	real := ctx.NewMDNode(nil, false)
	mt.assign(real, 0)
	require.Equal(t, ir.Value(real), user.Operands()[0])
	require.Equal(t, ir.Value(real), mt.valueFwdRef(0))
}
