package bcread

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"bcread/internal/bcwire"
	"bcread/internal/ir"
	"bcread/internal/testkit"
)

// parseBuf opens a stream lazily and hands back both the module and the
// attached reader for white-box checks.
func parseBuf(t *testing.T, data []byte) (*ir.Module, *Reader) {
	t.Helper()
	m, err := Lazy(ir.NewContext(), data, "test.bc")
	require.NoError(t, err)
	r, ok := m.Materializer.(*Reader)
	require.True(t, ok)
	return m, r
}

func TestParse_EmptyModule(t *testing.T) {
	b := testkit.NewStream()
	b.EnterBlock(bcwire.ModuleBlockID, 3)
	b.Record(bcwire.ModuleCodeVersion, 0)
	b.EndBlock()

	m, err := Parse(ir.NewContext(), b.Bytes(), "empty.bc")
	require.NoError(t, err)
	require.Empty(t, m.Funcs)
	require.Empty(t, m.Globals)
}

func TestParse_SignatureRejection(t *testing.T) {
	b := testkit.NewStream()
	b.EnterBlock(bcwire.ModuleBlockID, 3)
	b.Record(bcwire.ModuleCodeVersion, 0)
	b.EndBlock()
	data := b.Bytes()
	data[0] = 'X'

	_, err := Parse(ir.NewContext(), data, "bad.bc")
	require.ErrorIs(t, err, ErrInvalidBitcodeSignature)
}

func TestParse_UnsupportedVersion(t *testing.T) {
	b := testkit.NewStream()
	b.EnterBlock(bcwire.ModuleBlockID, 3)
	b.Record(bcwire.ModuleCodeVersion, 1)
	b.EndBlock()

	_, err := Parse(ir.NewContext(), b.Bytes(), "v1.bc")
	require.ErrorIs(t, err, ErrInvalidValue)
}

func TestParse_TripleAndDataLayout(t *testing.T) {
	b := testkit.NewStream()
	b.EnterBlock(bcwire.ModuleBlockID, 3)
	b.Record(bcwire.ModuleCodeVersion, 0)
	b.StringRecord(bcwire.ModuleCodeTriple, nil, "armv7-none-linux-gnueabi")
	b.StringRecord(bcwire.ModuleCodeDataLayout, nil, "e-p:32:32")
	b.EndBlock()
	data := b.Bytes()

	m, err := Parse(ir.NewContext(), data, "t.bc")
	require.NoError(t, err)
	require.Equal(t, "armv7-none-linux-gnueabi", m.Triple)
	require.Equal(t, "e-p:32:32", m.DataLayout)

	triple, err := Triple(ir.NewContext(), data)
	require.NoError(t, err)
	require.Equal(t, "armv7-none-linux-gnueabi", triple)
}

func TestParse_ModernTypeTableComplete(t *testing.T) {
	b := testkit.NewStream()
	b.EnterBlock(bcwire.ModuleBlockID, 3)
	b.Record(bcwire.ModuleCodeVersion, 0)
	b.EnterBlock(bcwire.TypeBlockIDNew, 3)
	b.Record(bcwire.TypeCodeNumEntry, 5)
	b.Record(bcwire.TypeCodeInteger, 32)   // 0
	b.Record(bcwire.TypeCodePointer, 2, 0) // 1: pointer to the named struct below
	b.StringRecord(bcwire.TypeCodeStructName, nil, "node")
	b.Record(bcwire.TypeCodeStructNamed, 0, 0, 1) // 2: %node = { i32, %node* }
	b.Record(bcwire.TypeCodeStructAnon, 0, 0, 0)  // 3: { i32, i32 }
	b.Record(bcwire.TypeCodeArray, 4, 0)          // 4: [4 x i32]
	b.EndBlock()
	b.EndBlock()

	_, r := parseBuf(t, b.Bytes())
	require.Len(t, r.typeList, 5)
	for i, ty := range r.typeList {
		require.NotNil(t, ty, "slot %d", i)
	}
	require.Equal(t, "node", r.typeList[2].StructName)
	require.Equal(t, ir.ArrayKind, r.typeList[4].Kind)
}

// The legacy table carries no forward-reference discipline: the struct at
// slot 0 references the pointer at slot 1, which references the integer at
// slot 2. Multiple passes resolve it back to front.
func TestParse_LegacyTypeTableBackwardRef(t *testing.T) {
	b := testkit.NewStream()
	b.EnterBlock(bcwire.ModuleBlockID, 3)
	b.Record(bcwire.ModuleCodeVersion, 0)
	b.EnterBlock(bcwire.TypeBlockIDOld, 3)
	b.Record(bcwire.TypeCodeNumEntry, 3)
	b.Record(bcwire.TypeCodeStructOld, 0, 1) // 0: { slot1 }
	b.Record(bcwire.TypeCodePointer, 2)      // 1: slot2*
	b.Record(bcwire.TypeCodeInteger, 32)     // 2: i32
	b.EndBlock()
	b.EndBlock()

	m, r := parseBuf(t, b.Bytes())
	st := r.typeList[0]
	require.Equal(t, ir.StructKind, st.Kind)
	require.Len(t, st.Fields, 1)
	require.Equal(t, m.Ctx.Pointer(m.Ctx.Int(32), 0), st.Fields[0])
}

func TestParse_LegacyTypeTableNoProgress(t *testing.T) {
	b := testkit.NewStream()
	b.EnterBlock(bcwire.ModuleBlockID, 3)
	b.Record(bcwire.ModuleCodeVersion, 0)
	b.EnterBlock(bcwire.TypeBlockIDOld, 3)
	b.Record(bcwire.TypeCodeNumEntry, 2)
	b.Record(bcwire.TypeCodePointer, 1) // 0 needs 1
	b.Record(bcwire.TypeCodePointer, 0) // 1 needs 0
	b.EndBlock()
	b.EndBlock()

	_, err := Lazy(ir.NewContext(), b.Bytes(), "cycle.bc")
	require.ErrorIs(t, err, ErrInvalidTypeTable)
}

// Constant forward reference: an aggregate names value slots that are
// defined later in the same constants block. Resolution must leave the
// global initializer pointing at real integers.
func TestParse_ConstantForwardReference(t *testing.T) {
	b := testkit.NewStream()
	b.EnterBlock(bcwire.ModuleBlockID, 3)
	b.Record(bcwire.ModuleCodeVersion, 0)
	b.EnterBlock(bcwire.TypeBlockIDNew, 3)
	b.Record(bcwire.TypeCodeNumEntry, 3)
	b.Record(bcwire.TypeCodeInteger, 32)         // 0
	b.Record(bcwire.TypeCodeStructAnon, 0, 0, 0) // 1: { i32, i32 }
	b.Record(bcwire.TypeCodePointer, 1, 0)       // 2
	b.EndBlock()
	// @g = global { i32, i32 }, initializer is constant slot 1.
	b.Record(bcwire.ModuleCodeGlobalVar, 2, 1, 2, 0, 0, 0)
	b.EnterBlock(bcwire.ConstantsBlockID, 3)
	b.Record(bcwire.CstCodeSetType, 1)
	b.Record(bcwire.CstCodeAggregate, 2, 3) // refers to slots not yet read
	b.Record(bcwire.CstCodeSetType, 0)
	b.Record(bcwire.CstCodeInteger, testkit.SignRotate(42))
	b.Record(bcwire.CstCodeInteger, testkit.SignRotate(5))
	b.EndBlock()
	b.EndBlock()

	m, _ := parseBuf(t, b.Bytes())
	require.Len(t, m.Globals, 1)
	init := m.Globals[0].Initializer()
	agg, ok := init.(*ir.ConstantAggregate)
	require.True(t, ok, "initializer is %T", init)

	elems := agg.Elems()
	require.Len(t, elems, 2)
	first, ok := elems[0].(*ir.ConstantInt)
	require.True(t, ok, "first element is %T", elems[0])
	require.Equal(t, int64(42), first.Value())
	second, ok := elems[1].(*ir.ConstantInt)
	require.True(t, ok)
	require.Equal(t, int64(5), second.Value())
	for _, e := range elems {
		require.False(t, ir.IsPlaceholder(e))
	}
}

// twoFunctionStream builds a module with two void functions f and g whose
// bodies are a bare return, plus a global holding the address of f's entry
// block.
func twoFunctionStream(t *testing.T) []byte {
	t.Helper()
	b := testkit.NewStream()
	b.EnterBlock(bcwire.ModuleBlockID, 3)
	b.Record(bcwire.ModuleCodeVersion, 0)
	b.EnterBlock(bcwire.TypeBlockIDNew, 3)
	b.Record(bcwire.TypeCodeNumEntry, 5)
	b.Record(bcwire.TypeCodeVoid)          // 0
	b.Record(bcwire.TypeCodeFunction, 0, 0) // 1: void ()
	b.Record(bcwire.TypeCodePointer, 1, 0)  // 2
	b.Record(bcwire.TypeCodeInteger, 8)     // 3
	b.Record(bcwire.TypeCodePointer, 3, 0)  // 4: i8*
	b.EndBlock()
	// @ba = global i8* blockaddress(@f, 0); the constant lands in slot 3.
	b.Record(bcwire.ModuleCodeGlobalVar, 4, 1, 4, 0, 0, 0)
	b.Record(bcwire.ModuleCodeFunction, 2, 0, 0, 0, 0, 0, 0, 0) // @f
	b.Record(bcwire.ModuleCodeFunction, 2, 0, 0, 0, 0, 0, 0, 0) // @g
	b.EnterBlock(bcwire.ConstantsBlockID, 3)
	b.Record(bcwire.CstCodeBlockAddress, 2, 1, 0)
	b.EndBlock()
	b.EnterBlock(bcwire.ValueSymtabBlockID, 3)
	b.StringRecord(bcwire.ValueSymtabCodeEntry, []uint64{1}, "f")
	b.StringRecord(bcwire.ValueSymtabCodeEntry, []uint64{2}, "g")
	b.EndBlock()
	for i := 0; i < 2; i++ {
		b.EnterBlock(bcwire.FunctionBlockID, 3)
		b.Record(bcwire.FuncCodeDeclareBlocks, 1)
		b.Record(bcwire.FuncCodeInstRet)
		b.EndBlock()
	}
	b.EndBlock()
	return b.Bytes()
}

func TestParse_LazyMaterialization(t *testing.T) {
	m, _ := parseBuf(t, twoFunctionStream(t))

	f := m.Func("f")
	g := m.Func("g")
	require.NotNil(t, f)
	require.NotNil(t, g)

	mat := m.Materializer
	require.True(t, mat.IsMaterializable(f))
	require.True(t, mat.IsMaterializable(g))

	// Materialize only the second function.
	require.NoError(t, mat.Materialize(g))
	require.True(t, f.IsDeclaration())
	require.False(t, g.IsDeclaration())
	require.Len(t, g.Blocks, 1)
	require.Equal(t, ir.OpRet, g.Blocks[0].Terminator().Op)

	// Then the first.
	require.NoError(t, mat.Materialize(f))
	require.False(t, f.IsDeclaration())

	// Dematerialize drops the body but keeps it recoverable.
	mat.Dematerialize(f)
	require.True(t, f.IsDeclaration())
	require.True(t, mat.IsMaterializable(f))
	require.NoError(t, mat.Materialize(f))
	require.False(t, f.IsDeclaration())
}

func TestParse_BlockAddressFixup(t *testing.T) {
	m, _ := parseBuf(t, twoFunctionStream(t))
	f := m.Func("f")
	require.NoError(t, m.Materializer.Materialize(f))

	// The stand-in global has been replaced; only @ba itself remains.
	require.Len(t, m.Globals, 1)
	ba, ok := m.Globals[0].Initializer().(*ir.BlockAddress)
	require.True(t, ok, "initializer is %T", m.Globals[0].Initializer())
	require.Same(t, f, ba.Func)
	require.Same(t, f.Blocks[0], ba.Block)
}

func TestParse_ValueTableIsolation(t *testing.T) {
	m, r := parseBuf(t, twoFunctionStream(t))
	before := r.values.size()
	require.NoError(t, m.Materializer.Materialize(m.Func("f")))
	require.Equal(t, before, r.values.size())
	require.NoError(t, m.Materializer.Materialize(m.Func("g")))
	require.Equal(t, before, r.values.size())
}

func TestParseStream_PausesAndResumes(t *testing.T) {
	data := twoFunctionStream(t)
	m, err := ParseStream(ir.NewContext(), bytes.NewReader(data), "stream.bc")
	require.NoError(t, err)

	f := m.Func("f")
	g := m.Func("g")
	require.NotNil(t, f)
	require.NotNil(t, g)
	require.True(t, m.Materializer.IsMaterializable(f))

	// The second body has not been reached yet; materializing it forces
	// the paused module parse forward.
	require.NoError(t, m.Materializer.Materialize(g))
	require.False(t, g.IsDeclaration())

	require.NoError(t, m.MaterializeAll())
	require.False(t, f.IsDeclaration())
}

func TestParse_WrapperHeader(t *testing.T) {
	inner := twoFunctionStream(t)
	wrapped := make([]byte, bcwire.WrapperHeaderSize+len(inner))
	wrapped[0] = 0xDE
	wrapped[1] = 0xC0
	wrapped[2] = 0x17
	wrapped[3] = 0x0B
	wrapped[8] = byte(bcwire.WrapperHeaderSize)
	wrapped[12] = byte(len(inner))
	wrapped[13] = byte(len(inner) >> 8)
	copy(wrapped[bcwire.WrapperHeaderSize:], inner)

	m, err := Parse(ir.NewContext(), wrapped, "wrapped.bc")
	require.NoError(t, err)
	require.NotNil(t, m.Func("f"))
}

func TestParse_AtomicOrderingLegality(t *testing.T) {
	// @p = external global i32; the body loads it with an illegal
	// ordering.
	b := testkit.NewStream()
	b.EnterBlock(bcwire.ModuleBlockID, 3)
	b.Record(bcwire.ModuleCodeVersion, 0)
	b.EnterBlock(bcwire.TypeBlockIDNew, 3)
	b.Record(bcwire.TypeCodeNumEntry, 5)
	b.Record(bcwire.TypeCodeVoid)           // 0
	b.Record(bcwire.TypeCodeFunction, 0, 0) // 1
	b.Record(bcwire.TypeCodePointer, 1, 0)  // 2
	b.Record(bcwire.TypeCodeInteger, 32)    // 3
	b.Record(bcwire.TypeCodePointer, 3, 0)  // 4: i32*
	b.EndBlock()
	b.Record(bcwire.ModuleCodeGlobalVar, 4, 0, 0, 0, 0, 0)      // @p, value 0
	b.Record(bcwire.ModuleCodeFunction, 2, 0, 0, 0, 0, 0, 0, 0) // @f, value 1
	b.EnterBlock(bcwire.FunctionBlockID, 3)
	b.Record(bcwire.FuncCodeDeclareBlocks, 1)
	// LOADATOMIC %p, align 4, not volatile, release ordering: illegal.
	b.Record(bcwire.FuncCodeInstLoadAtomic, 0, 3, 0, bcwire.OrderingRelease, bcwire.SynchScopeCrossThread)
	b.Record(bcwire.FuncCodeInstRet)
	b.EndBlock()
	b.EndBlock()

	m, err := Lazy(ir.NewContext(), b.Bytes(), "atomic.bc")
	require.NoError(t, err)
	err = m.MaterializeAll()
	require.ErrorIs(t, err, ErrInvalidRecord)
}

func TestParse_FenceOrderingLegality(t *testing.T) {
	b := testkit.NewStream()
	b.EnterBlock(bcwire.ModuleBlockID, 3)
	b.Record(bcwire.ModuleCodeVersion, 0)
	b.EnterBlock(bcwire.TypeBlockIDNew, 3)
	b.Record(bcwire.TypeCodeNumEntry, 3)
	b.Record(bcwire.TypeCodeVoid)
	b.Record(bcwire.TypeCodeFunction, 0, 0)
	b.Record(bcwire.TypeCodePointer, 1, 0)
	b.EndBlock()
	b.Record(bcwire.ModuleCodeFunction, 2, 0, 0, 0, 0, 0, 0, 0)
	b.EnterBlock(bcwire.FunctionBlockID, 3)
	b.Record(bcwire.FuncCodeDeclareBlocks, 1)
	b.Record(bcwire.FuncCodeInstFence, bcwire.OrderingMonotonic, bcwire.SynchScopeCrossThread)
	b.Record(bcwire.FuncCodeInstRet)
	b.EndBlock()
	b.EndBlock()

	m, err := Lazy(ir.NewContext(), b.Bytes(), "fence.bc")
	require.NoError(t, err)
	require.ErrorIs(t, m.MaterializeAll(), ErrInvalidRecord)
}

// The removed stack-unwind terminator becomes a cleanup landing pad
// followed by a resume, with the fallback personality declared.
func TestParse_UnwindTerminatorUpgrade(t *testing.T) {
	b := testkit.NewStream()
	b.EnterBlock(bcwire.ModuleBlockID, 3)
	b.Record(bcwire.ModuleCodeVersion, 0)
	b.EnterBlock(bcwire.TypeBlockIDNew, 3)
	b.Record(bcwire.TypeCodeNumEntry, 3)
	b.Record(bcwire.TypeCodeVoid)
	b.Record(bcwire.TypeCodeFunction, 0, 0)
	b.Record(bcwire.TypeCodePointer, 1, 0)
	b.EndBlock()
	b.Record(bcwire.ModuleCodeFunction, 2, 0, 0, 0, 0, 0, 0, 0)
	b.EnterBlock(bcwire.FunctionBlockID, 3)
	b.Record(bcwire.FuncCodeDeclareBlocks, 1)
	b.Record(bcwire.FuncCodeInstUnwindOld)
	b.EndBlock()
	b.EndBlock()

	m, err := Parse(ir.NewContext(), b.Bytes(), "unwind.bc")
	require.NoError(t, err)

	fn := m.Funcs[0]
	require.Len(t, fn.Blocks, 1)
	instrs := fn.Blocks[0].Instrs
	require.Len(t, instrs, 2)
	require.Equal(t, ir.OpLandingPad, instrs[0].Op)
	require.True(t, instrs[0].Cleanup)
	require.Equal(t, ir.OpResume, instrs[1].Op)
	require.Equal(t, ir.Value(instrs[0]), instrs[1].Operands()[0])
	require.NotNil(t, m.Func("__gcc_personality_v0"))
}

func TestParse_Metadata(t *testing.T) {
	b := testkit.NewStream()
	b.EnterBlock(bcwire.ModuleBlockID, 3)
	b.Record(bcwire.ModuleCodeVersion, 0)
	b.EnterBlock(bcwire.TypeBlockIDNew, 3)
	b.Record(bcwire.TypeCodeNumEntry, 1)
	b.Record(bcwire.TypeCodeMetadata) // 0
	b.EndBlock()
	b.EnterBlock(bcwire.MetadataBlockID, 3)
	b.StringRecord(bcwire.MetadataCodeString, nil, "hello") // md 0
	b.Record(bcwire.MetadataCodeNode, 0, 0)                 // md 1: !{!"hello"}
	b.StringRecord(bcwire.MetadataCodeName, nil, "tag")
	b.Record(bcwire.MetadataCodeNamedNode, 1)
	b.EndBlock()
	b.EndBlock()

	m, err := Parse(ir.NewContext(), b.Bytes(), "md.bc")
	require.NoError(t, err)

	named := m.NamedMD["tag"]
	require.NotNil(t, named)
	require.Len(t, named.Ops, 1)
	node := named.Ops[0]
	require.Len(t, node.Operands(), 1)
	str, ok := node.Operands()[0].(*ir.MDString)
	require.True(t, ok)
	require.Equal(t, "hello", str.Str)
}

func TestParse_ConflictingMetadataKinds(t *testing.T) {
	b := testkit.NewStream()
	b.EnterBlock(bcwire.ModuleBlockID, 3)
	b.Record(bcwire.ModuleCodeVersion, 0)
	b.EnterBlock(bcwire.MetadataBlockID, 3)
	b.StringRecord(bcwire.MetadataCodeKind, []uint64{7}, "dbg")
	b.StringRecord(bcwire.MetadataCodeKind, []uint64{7}, "tbaa")
	b.EndBlock()
	b.EndBlock()

	_, err := Parse(ir.NewContext(), b.Bytes(), "kinds.bc")
	require.ErrorIs(t, err, ErrConflictingMetadataKindRecords)
}

func TestParse_UnknownSubblocksAndRecordsIgnored(t *testing.T) {
	b := testkit.NewStream()
	b.EnterBlock(bcwire.ModuleBlockID, 3)
	b.Record(bcwire.ModuleCodeVersion, 0)
	b.EnterBlock(77, 3) // unknown subblock, skipped whole
	b.Record(1, 2, 3)
	b.EndBlock()
	b.Record(63, 1, 2, 3) // unknown module record, ignored
	b.EndBlock()

	_, err := Parse(ir.NewContext(), b.Bytes(), "unknown.bc")
	require.NoError(t, err)
}

func TestParse_SecondModuleBlockRejected(t *testing.T) {
	b := testkit.NewStream()
	b.EnterBlock(bcwire.ModuleBlockID, 3)
	b.Record(bcwire.ModuleCodeVersion, 0)
	b.EndBlock()
	b.EnterBlock(bcwire.ModuleBlockID, 3)
	b.EndBlock()

	_, err := Parse(ir.NewContext(), b.Bytes(), "twice.bc")
	require.ErrorIs(t, err, ErrInvalidMultipleBlocks)
}

func TestParse_GlobalFields(t *testing.T) {
	b := testkit.NewStream()
	b.EnterBlock(bcwire.ModuleBlockID, 3)
	b.Record(bcwire.ModuleCodeVersion, 0)
	b.EnterBlock(bcwire.TypeBlockIDNew, 3)
	b.Record(bcwire.TypeCodeNumEntry, 2)
	b.Record(bcwire.TypeCodeInteger, 32)   // 0
	b.Record(bcwire.TypeCodePointer, 0, 0) // 1
	b.EndBlock()
	b.StringRecord(bcwire.ModuleCodeSectionName, nil, ".mysection")
	// internal linkage (3), align 8 (field 4), section 1, hidden
	// visibility, general-dynamic TLS, unnamed_addr.
	b.Record(bcwire.ModuleCodeGlobalVar, 1, 1, 0, 3, 4, 1, 1, 1, 1)
	b.EndBlock()

	m, err := Parse(ir.NewContext(), b.Bytes(), "gv.bc")
	require.NoError(t, err)
	require.Len(t, m.Globals, 1)
	gv := m.Globals[0]
	require.True(t, gv.IsConstant)
	require.Equal(t, ir.InternalLinkage, gv.Linkage)
	require.Equal(t, uint32(8), gv.Align)
	require.Equal(t, ".mysection", gv.Section)
	require.Equal(t, ir.HiddenVisibility, gv.Visibility)
	require.Equal(t, ir.GeneralDynamicTLS, gv.ThreadLocal)
	require.True(t, gv.UnnamedAddr)
}

func TestParse_FunctionBodyInstructions(t *testing.T) {
	// i32 @add(i32 %a, i32 %b): %c = add nsw %a, %b ; ret %c
	b := testkit.NewStream()
	b.EnterBlock(bcwire.ModuleBlockID, 3)
	b.Record(bcwire.ModuleCodeVersion, 0)
	b.EnterBlock(bcwire.TypeBlockIDNew, 3)
	b.Record(bcwire.TypeCodeNumEntry, 3)
	b.Record(bcwire.TypeCodeInteger, 32)       // 0
	b.Record(bcwire.TypeCodeFunction, 0, 0, 0, 0) // 1: i32 (i32, i32)
	b.Record(bcwire.TypeCodePointer, 1, 0)     // 2
	b.EndBlock()
	b.Record(bcwire.ModuleCodeFunction, 2, 0, 0, 0, 0, 0, 0, 0) // value 0
	b.EnterBlock(bcwire.FunctionBlockID, 3)
	b.Record(bcwire.FuncCodeDeclareBlocks, 1)
	// args are values 1 and 2; nextValueNo = 3
	b.Record(bcwire.FuncCodeInstBinOp, 1, 2, bcwire.BinOpAdd, 1<<bcwire.OBONoSignedWrap)
	b.Record(bcwire.FuncCodeInstRet, 3)
	b.EndBlock()
	b.EndBlock()

	m, err := Parse(ir.NewContext(), b.Bytes(), "add.bc")
	require.NoError(t, err)

	fn := m.Funcs[0]
	require.Len(t, fn.Params, 2)
	require.Len(t, fn.Blocks, 1)
	instrs := fn.Blocks[0].Instrs
	require.Len(t, instrs, 2)

	add := instrs[0]
	require.Equal(t, ir.OpAdd, add.Op)
	require.True(t, add.NSW)
	require.False(t, add.NUW)
	require.Equal(t, ir.Value(fn.Params[0]), add.Operands()[0])
	require.Equal(t, ir.Value(fn.Params[1]), add.Operands()[1])

	ret := instrs[1]
	require.Equal(t, ir.OpRet, ret.Op)
	require.Equal(t, ir.Value(add), ret.Operands()[0])
}

func TestParse_CallInstruction(t *testing.T) {
	// void @f() calls the declaration @g().
	b := testkit.NewStream()
	b.EnterBlock(bcwire.ModuleBlockID, 3)
	b.Record(bcwire.ModuleCodeVersion, 0)
	b.EnterBlock(bcwire.TypeBlockIDNew, 3)
	b.Record(bcwire.TypeCodeNumEntry, 3)
	b.Record(bcwire.TypeCodeVoid)           // 0
	b.Record(bcwire.TypeCodeFunction, 0, 0) // 1
	b.Record(bcwire.TypeCodePointer, 1, 0)  // 2
	b.EndBlock()
	b.Record(bcwire.ModuleCodeFunction, 2, 0, 0, 0, 0, 0, 0, 0) // @f, defined
	b.Record(bcwire.ModuleCodeFunction, 2, 0, 1, 0, 0, 0, 0, 0) // @g, declaration
	b.EnterBlock(bcwire.ValueSymtabBlockID, 3)
	b.StringRecord(bcwire.ValueSymtabCodeEntry, []uint64{0}, "f")
	b.StringRecord(bcwire.ValueSymtabCodeEntry, []uint64{1}, "g")
	b.EndBlock()
	b.EnterBlock(bcwire.FunctionBlockID, 3)
	b.Record(bcwire.FuncCodeDeclareBlocks, 1)
	b.Record(bcwire.FuncCodeInstCall, 0, 0, 1) // attrs 0, cc 0 (no tail), callee value 1
	b.Record(bcwire.FuncCodeInstRet)
	b.EndBlock()
	b.EndBlock()

	m, err := Parse(ir.NewContext(), b.Bytes(), "call.bc")
	require.NoError(t, err)

	f := m.Func("f")
	g := m.Func("g")
	require.False(t, f.IsDeclaration())
	require.True(t, g.IsDeclaration())

	call := f.Blocks[0].Instrs[0]
	require.Equal(t, ir.OpCall, call.Op)
	require.Same(t, g, call.CalledFunction())
	require.False(t, call.TailCall)
	require.Empty(t, call.Args())
}

func TestParse_UnresolvedLocalForwardRef(t *testing.T) {
	// A branch condition referencing a value that never materializes.
	b := testkit.NewStream()
	b.EnterBlock(bcwire.ModuleBlockID, 3)
	b.Record(bcwire.ModuleCodeVersion, 0)
	b.EnterBlock(bcwire.TypeBlockIDNew, 3)
	b.Record(bcwire.TypeCodeNumEntry, 4)
	b.Record(bcwire.TypeCodeVoid)           // 0
	b.Record(bcwire.TypeCodeFunction, 0, 0) // 1
	b.Record(bcwire.TypeCodePointer, 1, 0)  // 2
	b.Record(bcwire.TypeCodeInteger, 1)     // 3
	b.EndBlock()
	b.Record(bcwire.ModuleCodeFunction, 2, 0, 0, 0, 0, 0, 0, 0)
	b.EnterBlock(bcwire.FunctionBlockID, 3)
	b.Record(bcwire.FuncCodeDeclareBlocks, 2)
	b.Record(bcwire.FuncCodeInstBr, 0, 1, 5) // cond is value 5: never defined
	b.Record(bcwire.FuncCodeInstRet)
	b.EndBlock()
	b.EndBlock()

	m, err := Lazy(ir.NewContext(), b.Bytes(), "dangling.bc")
	require.NoError(t, err)
	require.ErrorIs(t, m.MaterializeAll(), ErrNeverResolvedValueFoundInFunction)
}
