package ir

import (
	"fmt"
	"strings"
)

// Context owns the type and constant uniquing tables. Every module and every
// value built by one reader share a single Context; Contexts are not safe
// for concurrent use.
type Context struct {
	types     map[string]*Type
	constants map[string]Constant
	mdStrings map[string]*MDString

	void, half, float, double       *Type
	x86fp80, fp128, ppcfp128        *Type
	label, metadata, x86mmx         *Type
}

// NewContext returns an empty Context.
func NewContext() *Context {
	c := &Context{
		types:     make(map[string]*Type),
		constants: make(map[string]Constant),
		mdStrings: make(map[string]*MDString),
	}
	c.void = &Type{Kind: VoidKind}
	c.half = &Type{Kind: HalfKind}
	c.float = &Type{Kind: FloatKind}
	c.double = &Type{Kind: DoubleKind}
	c.x86fp80 = &Type{Kind: X86FP80Kind}
	c.fp128 = &Type{Kind: FP128Kind}
	c.ppcfp128 = &Type{Kind: PPCFP128Kind}
	c.label = &Type{Kind: LabelKind}
	c.metadata = &Type{Kind: MetadataKind}
	c.x86mmx = &Type{Kind: X86MMXKind}
	return c
}

// Void returns the void type.
func (c *Context) Void() *Type { return c.void }

// Half returns the 16-bit float type.
func (c *Context) Half() *Type { return c.half }

// Float returns the 32-bit float type.
func (c *Context) Float() *Type { return c.float }

// Double returns the 64-bit float type.
func (c *Context) Double() *Type { return c.double }

// X86FP80 returns the 80-bit extended float type.
func (c *Context) X86FP80() *Type { return c.x86fp80 }

// FP128 returns the 128-bit quad float type.
func (c *Context) FP128() *Type { return c.fp128 }

// PPCFP128 returns the PowerPC double-double type.
func (c *Context) PPCFP128() *Type { return c.ppcfp128 }

// Label returns the label type.
func (c *Context) Label() *Type { return c.label }

// Metadata returns the metadata type.
func (c *Context) Metadata() *Type { return c.metadata }

// X86MMX returns the MMX type.
func (c *Context) X86MMX() *Type { return c.x86mmx }

// Int returns the integer type of the given bit width.
func (c *Context) Int(bits uint32) *Type {
	key := fmt.Sprintf("i%d", bits)
	if t, ok := c.types[key]; ok {
		return t
	}
	t := &Type{Kind: IntegerKind, Bits: bits}
	c.types[key] = t
	return t
}

// Int1 returns the i1 type.
func (c *Context) Int1() *Type { return c.Int(1) }

// Int8 returns the i8 type.
func (c *Context) Int8() *Type { return c.Int(8) }

// Int32 returns the i32 type.
func (c *Context) Int32() *Type { return c.Int(32) }

// Pointer returns the pointer type to elem in the given address space.
func (c *Context) Pointer(elem *Type, addrSpace uint32) *Type {
	key := fmt.Sprintf("p%d:%p", addrSpace, elem)
	if t, ok := c.types[key]; ok {
		return t
	}
	t := &Type{Kind: PointerKind, Elem: elem, AddrSpace: addrSpace}
	c.types[key] = t
	return t
}

// Array returns the array type of n elements of elem.
func (c *Context) Array(elem *Type, n uint64) *Type {
	key := fmt.Sprintf("a%d:%p", n, elem)
	if t, ok := c.types[key]; ok {
		return t
	}
	t := &Type{Kind: ArrayKind, Elem: elem, Len: n}
	c.types[key] = t
	return t
}

// Vector returns the vector type of n elements of elem.
func (c *Context) Vector(elem *Type, n uint64) *Type {
	key := fmt.Sprintf("v%d:%p", n, elem)
	if t, ok := c.types[key]; ok {
		return t
	}
	t := &Type{Kind: VectorKind, Elem: elem, Len: n}
	c.types[key] = t
	return t
}

// Function returns the function type with the given signature.
func (c *Context) Function(ret *Type, params []*Type, varArg bool) *Type {
	var b strings.Builder
	fmt.Fprintf(&b, "f%p(", ret)
	for _, p := range params {
		fmt.Fprintf(&b, "%p,", p)
	}
	if varArg {
		b.WriteString("...")
	}
	b.WriteString(")")
	key := b.String()
	if t, ok := c.types[key]; ok {
		return t
	}
	t := &Type{Kind: FunctionKind, Return: ret, Params: append([]*Type(nil), params...), VarArg: varArg}
	c.types[key] = t
	return t
}

// Struct returns the literal (anonymous, uniqued) struct type.
func (c *Context) Struct(fields []*Type, packed bool) *Type {
	var b strings.Builder
	b.WriteString("s{")
	for _, f := range fields {
		fmt.Fprintf(&b, "%p,", f)
	}
	if packed {
		b.WriteString("}p")
	} else {
		b.WriteString("}")
	}
	key := b.String()
	if t, ok := c.types[key]; ok {
		return t
	}
	t := &Type{Kind: StructKind, Fields: append([]*Type(nil), fields...), Packed: packed}
	c.types[key] = t
	return t
}

// NamedStruct creates a fresh identity struct, opaque until SetBody is
// called. Name may be empty.
func (c *Context) NamedStruct(name string) *Type {
	return &Type{Kind: StructKind, StructName: name, Opaque: true, named: true}
}
