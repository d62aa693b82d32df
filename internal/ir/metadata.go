package ir

// MDString is a metadata string.
type MDString struct {
	valueBase
	Str string
}

// NewMDString returns the uniqued metadata string for s.
func (c *Context) NewMDString(s string) *MDString {
	if md, ok := c.mdStrings[s]; ok {
		return md
	}
	md := &MDString{Str: s}
	md.typ = c.Metadata()
	c.mdStrings[s] = md
	return md
}

// MDNode is a metadata node over arbitrary values. Temporary nodes stand in
// for forward references until the real node is assigned.
type MDNode struct {
	userBase
	FnLocal   bool
	Temporary bool
}

// NewMDNode returns a metadata node with the given elements, which may
// include nils.
func (c *Context) NewMDNode(elems []Value, fnLocal bool) *MDNode {
	md := &MDNode{FnLocal: fnLocal}
	md.typ = c.Metadata()
	md.initUser(md, elems)
	return md
}

// NewTemporaryMDNode returns an empty placeholder node.
func (c *Context) NewTemporaryMDNode() *MDNode {
	md := &MDNode{Temporary: true}
	md.typ = c.Metadata()
	md.initUser(md, nil)
	return md
}

// DeleteTemporary detaches a placeholder node after its uses have been
// rewritten.
func (md *MDNode) DeleteTemporary() {
	md.dropOperands()
}

// NamedMD is a named module-level metadata list.
type NamedMD struct {
	Name string
	Ops  []*MDNode
}

// AddOperand appends a node.
func (n *NamedMD) AddOperand(md *MDNode) {
	n.Ops = append(n.Ops, md)
}
