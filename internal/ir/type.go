package ir

import (
	"fmt"
	"strings"
)

// TypeKind enumerates type kinds.
type TypeKind uint8

const (
	// VoidKind represents the void type.
	VoidKind TypeKind = iota
	// HalfKind represents the 16-bit floating-point type.
	HalfKind
	// FloatKind represents the 32-bit floating-point type.
	FloatKind
	// DoubleKind represents the 64-bit floating-point type.
	DoubleKind
	// X86FP80Kind represents the x87 80-bit extended floating-point type.
	X86FP80Kind
	// FP128Kind represents the 128-bit quad floating-point type.
	FP128Kind
	// PPCFP128Kind represents the PowerPC double-double type.
	PPCFP128Kind
	// LabelKind represents basic-block labels.
	LabelKind
	// MetadataKind represents the metadata type.
	MetadataKind
	// X86MMXKind represents the MMX vector type.
	X86MMXKind
	// IntegerKind represents integer types of any width.
	IntegerKind
	// PointerKind represents pointer types.
	PointerKind
	// FunctionKind represents function signature types.
	FunctionKind
	// StructKind represents literal and named struct types.
	StructKind
	// ArrayKind represents array types.
	ArrayKind
	// VectorKind represents vector types.
	VectorKind
)

// Type is a kinded IR type. Compound types are uniqued by the Context that
// created them, so pointer equality is structural equality. Named structs
// are identity objects: two distinct named structs never compare equal even
// with identical bodies.
type Type struct {
	Kind TypeKind

	// IntegerKind
	Bits uint32

	// PointerKind, ArrayKind, VectorKind
	Elem      *Type
	AddrSpace uint32
	Len       uint64

	// FunctionKind
	Return *Type
	Params []*Type
	VarArg bool

	// StructKind
	StructName string
	Fields     []*Type
	Packed     bool
	Opaque     bool
	named      bool
}

// IsInteger reports whether t is an integer type.
func (t *Type) IsInteger() bool { return t.Kind == IntegerKind }

// IsFloatingPoint reports whether t is any scalar floating-point type.
func (t *Type) IsFloatingPoint() bool {
	switch t.Kind {
	case HalfKind, FloatKind, DoubleKind, X86FP80Kind, FP128Kind, PPCFP128Kind:
		return true
	}
	return false
}

// IsFPOrFPVector reports whether t is floating point or a vector thereof.
func (t *Type) IsFPOrFPVector() bool {
	if t.Kind == VectorKind {
		return t.Elem.IsFloatingPoint()
	}
	return t.IsFloatingPoint()
}

// IsIntOrIntVector reports whether t is an integer or a vector thereof.
func (t *Type) IsIntOrIntVector() bool {
	if t.Kind == VectorKind {
		return t.Elem.IsInteger()
	}
	return t.IsInteger()
}

// IsNamedStruct reports whether t is a named (identity) struct.
func (t *Type) IsNamedStruct() bool { return t.Kind == StructKind && t.named }

// FieldAt returns the aggregate element type for index i: field i of a
// struct, or the element type of an array or vector.
func (t *Type) FieldAt(i int) *Type {
	switch t.Kind {
	case StructKind:
		if i < len(t.Fields) {
			return t.Fields[i]
		}
		return nil
	case ArrayKind, VectorKind:
		return t.Elem
	}
	return nil
}

// SetBody fills in a named struct created opaque.
func (t *Type) SetBody(fields []*Type, packed bool) {
	t.Fields = fields
	t.Packed = packed
	t.Opaque = false
}

// SetStructName renames a named struct.
func (t *Type) SetStructName(name string) {
	t.StructName = name
}

// String renders t in the conventional assembly syntax.
func (t *Type) String() string {
	switch t.Kind {
	case VoidKind:
		return "void"
	case HalfKind:
		return "half"
	case FloatKind:
		return "float"
	case DoubleKind:
		return "double"
	case X86FP80Kind:
		return "x86_fp80"
	case FP128Kind:
		return "fp128"
	case PPCFP128Kind:
		return "ppc_fp128"
	case LabelKind:
		return "label"
	case MetadataKind:
		return "metadata"
	case X86MMXKind:
		return "x86_mmx"
	case IntegerKind:
		return fmt.Sprintf("i%d", t.Bits)
	case PointerKind:
		if t.AddrSpace != 0 {
			return fmt.Sprintf("%s addrspace(%d)*", t.Elem, t.AddrSpace)
		}
		return t.Elem.String() + "*"
	case FunctionKind:
		var b strings.Builder
		b.WriteString(t.Return.String())
		b.WriteString(" (")
		for i, p := range t.Params {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(p.String())
		}
		if t.VarArg {
			if len(t.Params) > 0 {
				b.WriteString(", ")
			}
			b.WriteString("...")
		}
		b.WriteString(")")
		return b.String()
	case StructKind:
		if t.named {
			if t.StructName != "" {
				return "%" + t.StructName
			}
			return "%<anon>"
		}
		var b strings.Builder
		if t.Packed {
			b.WriteString("<")
		}
		b.WriteString("{ ")
		for i, f := range t.Fields {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(f.String())
		}
		b.WriteString(" }")
		if t.Packed {
			b.WriteString(">")
		}
		return b.String()
	case ArrayKind:
		return fmt.Sprintf("[%d x %s]", t.Len, t.Elem)
	case VectorKind:
		return fmt.Sprintf("<%d x %s>", t.Len, t.Elem)
	}
	return "<badtype>"
}
