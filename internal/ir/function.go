package ir

// Argument is a formal parameter of a function. An Argument with a nil
// Parent is a synthetic stand-in for a not-yet-defined local value.
type Argument struct {
	valueBase
	Parent *Function
	Index  int
}

// NewArgument creates a detached argument of type ty. The reader uses
// detached arguments as non-constant forward-reference placeholders.
func NewArgument(ty *Type) *Argument {
	a := &Argument{Index: -1}
	a.typ = ty
	return a
}

// Function is a function declaration or definition. Its value type is a
// pointer to its signature.
type Function struct {
	globalBase
	Sig      *Type // FunctionKind signature
	CallConv uint64
	Align    uint32
	Section  string
	GC       string
	Attrs    AttributeList
	Params   []*Argument
	Blocks   []*BasicBlock
}

// NewFunction creates a function of the given signature appended to m, with
// one Argument per signature parameter.
func NewFunction(m *Module, sig *Type, linkage Linkage, name string) *Function {
	fn := &Function{Sig: sig}
	fn.Linkage = linkage
	fn.typ = m.Ctx.Pointer(sig, 0)
	fn.name = name
	fn.ctx = m.Ctx
	fn.Parent = m
	fn.initUser(fn, nil)
	fn.Params = make([]*Argument, len(sig.Params))
	for i, pt := range sig.Params {
		a := &Argument{Parent: fn, Index: i}
		a.typ = pt
		fn.Params[i] = a
	}
	m.Funcs = append(m.Funcs, fn)
	return fn
}

// IsDeclaration reports whether fn has no body.
func (fn *Function) IsDeclaration() bool { return len(fn.Blocks) == 0 }

// Entry returns the entry block, or nil for a declaration.
func (fn *Function) Entry() *BasicBlock {
	if len(fn.Blocks) == 0 {
		return nil
	}
	return fn.Blocks[0]
}

// DeleteBody drops the function body, detaching every instruction so no
// dangling uses survive. The declaration remains.
func (fn *Function) DeleteBody() {
	for _, bb := range fn.Blocks {
		for _, inst := range bb.Instrs {
			ReplaceAllUsesWith(inst, fn.ctx.Undef(inst.Type()))
		}
	}
	for _, bb := range fn.Blocks {
		for _, inst := range bb.Instrs {
			inst.Parent = nil
			inst.dropOperands()
		}
		bb.Instrs = nil
	}
	fn.Blocks = nil
}

// EraseFromParent unlinks fn from its module.
func (fn *Function) EraseFromParent() {
	fn.DeleteBody()
	m := fn.Parent
	for i, f := range m.Funcs {
		if f == fn {
			m.Funcs = append(m.Funcs[:i], m.Funcs[i+1:]...)
			break
		}
	}
}

// Instructions calls visit for every instruction in the function. The
// snapshot order is block order then instruction order.
func (fn *Function) Instructions(visit func(*Instruction) bool) {
	for _, bb := range fn.Blocks {
		for _, inst := range append([]*Instruction(nil), bb.Instrs...) {
			if !visit(inst) {
				return
			}
		}
	}
}
