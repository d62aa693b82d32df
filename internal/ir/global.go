package ir

// Linkage describes how a global participates in linking.
type Linkage uint8

const (
	// ExternalLinkage is externally visible.
	ExternalLinkage Linkage = iota
	// WeakAnyLinkage may be overridden.
	WeakAnyLinkage
	// AppendingLinkage concatenates arrays across units.
	AppendingLinkage
	// InternalLinkage renames collisions, not externally visible.
	InternalLinkage
	// LinkOnceAnyLinkage keeps one copy, droppable if unused.
	LinkOnceAnyLinkage
	// ExternalWeakLinkage resolves to null if undefined.
	ExternalWeakLinkage
	// CommonLinkage is tentative-definition linkage.
	CommonLinkage
	// PrivateLinkage is invisible even in the symbol table.
	PrivateLinkage
	// WeakODRLinkage may be overridden but is one-definition-rule safe.
	WeakODRLinkage
	// LinkOnceODRLinkage keeps one ODR-safe copy.
	LinkOnceODRLinkage
	// AvailableExternallyLinkage is a definition for optimization only.
	AvailableExternallyLinkage
)

// Visibility describes symbol visibility.
type Visibility uint8

const (
	// DefaultVisibility is ordinary visibility.
	DefaultVisibility Visibility = iota
	// HiddenVisibility hides the symbol from other units.
	HiddenVisibility
	// ProtectedVisibility prevents preemption.
	ProtectedVisibility
)

// ThreadLocalMode describes thread-local storage of a global.
type ThreadLocalMode uint8

const (
	// NotThreadLocal is ordinary storage.
	NotThreadLocal ThreadLocalMode = iota
	// GeneralDynamicTLS is the fully general TLS model.
	GeneralDynamicTLS
	// LocalDynamicTLS assumes same-module access.
	LocalDynamicTLS
	// InitialExecTLS assumes the module is loaded at startup.
	InitialExecTLS
	// LocalExecTLS assumes same-executable access.
	LocalExecTLS
)

// GlobalValue is a named constant owned by a module: a global variable,
// function, or alias.
type GlobalValue interface {
	Constant
	isGlobalValue()
	LinkageKind() Linkage
}

// globalBase carries the state shared by all global values.
type globalBase struct {
	constBase
	Linkage     Linkage
	Visibility  Visibility
	UnnamedAddr bool
	Parent      *Module
}

func (*globalBase) isGlobalValue() {}

func (g *globalBase) LinkageKind() Linkage { return g.Linkage }

// GlobalVariable is a module-level variable. Its single operand, when
// present, is the initializer; its type is a pointer to ValueType.
type GlobalVariable struct {
	globalBase
	ValueType   *Type
	IsConstant  bool
	Align       uint32
	Section     string
	ThreadLocal ThreadLocalMode
	hasInit     bool
}

// NewGlobalVariable creates a global variable appended to m.
func NewGlobalVariable(m *Module, valueType *Type, isConst bool, linkage Linkage, addrSpace uint32, name string) *GlobalVariable {
	gv := &GlobalVariable{ValueType: valueType, IsConstant: isConst}
	gv.Linkage = linkage
	gv.typ = m.Ctx.Pointer(valueType, addrSpace)
	gv.name = name
	gv.ctx = m.Ctx
	gv.Parent = m
	gv.initUser(gv, []Value{nil})
	m.Globals = append(m.Globals, gv)
	return gv
}

// Initializer returns the initializer, or nil for a declaration.
func (gv *GlobalVariable) Initializer() Constant {
	if !gv.hasInit {
		return nil
	}
	c, _ := gv.ops[0].(Constant)
	return c
}

// SetInitializer installs the initializer.
func (gv *GlobalVariable) SetInitializer(c Constant) {
	gv.SetOperand(0, c)
	gv.hasInit = c != nil
}

// EraseFromParent unlinks gv from its module and detaches the initializer.
func (gv *GlobalVariable) EraseFromParent() {
	m := gv.Parent
	for i, g := range m.Globals {
		if g == gv {
			m.Globals = append(m.Globals[:i], m.Globals[i+1:]...)
			break
		}
	}
	gv.dropOperands()
}

// Alias is a module-level alias; its single operand is the aliasee.
type Alias struct {
	globalBase
}

// NewAlias creates an alias of the given pointer type appended to m.
func NewAlias(m *Module, ptrTy *Type, linkage Linkage, name string) *Alias {
	ga := &Alias{}
	ga.Linkage = linkage
	ga.typ = ptrTy
	ga.name = name
	ga.ctx = m.Ctx
	ga.Parent = m
	ga.initUser(ga, []Value{nil})
	m.Aliases = append(m.Aliases, ga)
	return ga
}

// Aliasee returns the alias target.
func (ga *Alias) Aliasee() Constant {
	c, _ := ga.ops[0].(Constant)
	return c
}

// SetAliasee installs the alias target.
func (ga *Alias) SetAliasee(c Constant) { ga.SetOperand(0, c) }
