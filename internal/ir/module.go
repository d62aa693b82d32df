package ir

// Materializer reads deferred function bodies on demand. A module parsed
// lazily keeps one attached until every body is resident.
type Materializer interface {
	// IsMaterializable reports whether gv is a declaration whose body can
	// be read from the source.
	IsMaterializable(gv GlobalValue) bool
	// Materialize reads the body of gv.
	Materialize(gv GlobalValue) error
	// MaterializeAll reads every deferred body and runs the finishing
	// passes.
	MaterializeAll() error
	// Dematerialize drops the body of gv; it can be materialized again.
	Dematerialize(gv GlobalValue)
}

// Module is a translation unit: globals, functions, aliases, and module
// metadata.
type Module struct {
	Ctx *Context

	Name       string
	Triple     string
	DataLayout string
	InlineAsm  string

	Globals []*GlobalVariable
	Funcs   []*Function
	Aliases []*Alias

	NamedMD map[string]*NamedMD
	mdKinds []string

	Materializer Materializer
}

// NewModule returns an empty module in ctx.
func NewModule(ctx *Context, name string) *Module {
	return &Module{
		Ctx:     ctx,
		Name:    name,
		NamedMD: make(map[string]*NamedMD),
	}
}

// Func returns the function with the given name, or nil.
func (m *Module) Func(name string) *Function {
	for _, f := range m.Funcs {
		if f.Name() == name {
			return f
		}
	}
	return nil
}

// Global returns the global variable with the given name, or nil.
func (m *Module) Global(name string) *GlobalVariable {
	for _, g := range m.Globals {
		if g.Name() == name {
			return g
		}
	}
	return nil
}

// OrInsertFunc returns the named function, creating an external declaration
// of the given signature if it does not exist.
func (m *Module) OrInsertFunc(name string, sig *Type) *Function {
	if f := m.Func(name); f != nil {
		return f
	}
	return NewFunction(m, sig, ExternalLinkage, name)
}

// OrInsertNamedMD returns the named metadata list, creating it on first
// use.
func (m *Module) OrInsertNamedMD(name string) *NamedMD {
	if n, ok := m.NamedMD[name]; ok {
		return n
	}
	n := &NamedMD{Name: name}
	m.NamedMD[name] = n
	return n
}

// MDKindID returns the stable ID of a metadata kind name, registering it on
// first use.
func (m *Module) MDKindID(name string) uint32 {
	for i, k := range m.mdKinds {
		if k == name {
			return uint32(i)
		}
	}
	m.mdKinds = append(m.mdKinds, name)
	return uint32(len(m.mdKinds) - 1)
}

// MaterializeAll reads every deferred function body through the attached
// materializer and detaches it.
func (m *Module) MaterializeAll() error {
	if m.Materializer == nil {
		return nil
	}
	if err := m.Materializer.MaterializeAll(); err != nil {
		return err
	}
	m.Materializer = nil
	return nil
}
