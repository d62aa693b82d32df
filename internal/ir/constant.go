package ir

import (
	"fmt"
	"strings"
)

// Constant is a Value whose identity is its content. Structurally identical
// constants built through the same Context are the same object, except for
// globals (which have their own identity), placeholders, block addresses,
// and inline asm.
type Constant interface {
	User
	isConstant()
}

// constBase is embedded by every constant. key remembers the interning key
// so Destroy can evict the constant.
type constBase struct {
	userBase
	ctx *Context
	key string
}

func (*constBase) isConstant() {}

// ConstantInt is an integer constant of arbitrary width. Words holds the
// two's-complement value in 64-bit little-endian limbs.
type ConstantInt struct {
	constBase
	Words []uint64
}

// Value returns the low 64 bits interpreted as a signed integer.
func (c *ConstantInt) Value() int64 { return int64(c.Words[0]) }

// IsZero reports whether the constant is zero.
func (c *ConstantInt) IsZero() bool {
	for _, w := range c.Words {
		if w != 0 {
			return false
		}
	}
	return true
}

// ConstantFP is a floating-point constant; Words holds the raw bit pattern
// in the semantics of the type.
type ConstantFP struct {
	constBase
	Words []uint64
}

// ConstantZero is the null value of its type.
type ConstantZero struct {
	constBase
}

// ConstantUndef is the undefined value of its type.
type ConstantUndef struct {
	constBase
}

// ConstantAggregate is a struct, array, or vector constant; the elements
// are its operands.
type ConstantAggregate struct {
	constBase
}

// Elems returns the element constants.
func (c *ConstantAggregate) Elems() []Value { return c.ops }

// ConstantExpr is a constant operation over constants. The OpPlaceholder
// opcode marks a forward-reference stand-in, which is never interned.
type ConstantExpr struct {
	constBase
	Op       Opcode
	Pred     Predicate
	NUW, NSW bool
	Exact    bool
	InBounds bool
}

// IsPlaceholder reports whether c is a forward-reference stand-in.
func (c *ConstantExpr) IsPlaceholder() bool { return c.Op == OpPlaceholder }

// BlockAddress is the address of a basic block.
type BlockAddress struct {
	constBase
	Func  *Function
	Block *BasicBlock
}

// InlineAsm is an inline-assembly callee.
type InlineAsm struct {
	constBase
	Asm           string
	Constraints   string
	SideEffects   bool
	AlignStack    bool
}

// IsPlaceholder reports whether v is a constant forward-reference
// placeholder.
func IsPlaceholder(v Value) bool {
	ce, ok := v.(*ConstantExpr)
	return ok && ce.IsPlaceholder()
}

func (c *Context) intern(key string, build func() Constant) Constant {
	if v, ok := c.constants[key]; ok {
		return v
	}
	v := build()
	c.constants[key] = v
	return v
}

// Destroy evicts an interned constant and detaches its operands. The caller
// must have rewritten any remaining uses.
func (c *Context) Destroy(v Constant) {
	switch cv := v.(type) {
	case *ConstantInt:
		c.evict(&cv.constBase)
	case *ConstantFP:
		c.evict(&cv.constBase)
	case *ConstantZero:
		c.evict(&cv.constBase)
	case *ConstantUndef:
		c.evict(&cv.constBase)
	case *ConstantAggregate:
		c.evict(&cv.constBase)
	case *ConstantExpr:
		c.evict(&cv.constBase)
	case *BlockAddress:
		c.evict(&cv.constBase)
	case *InlineAsm:
		c.evict(&cv.constBase)
	}
}

func (c *Context) evict(b *constBase) {
	if b.key != "" {
		delete(c.constants, b.key)
		b.key = ""
	}
	b.dropOperands()
}

// ConstInt returns the integer constant of ty with the given signed value.
func (c *Context) ConstInt(ty *Type, v int64) *ConstantInt {
	return c.ConstIntWords(ty, []uint64{uint64(v)})
}

// ConstIntWords returns the integer constant of ty with the given
// two's-complement limbs. Limbs beyond the type width are truncated.
func (c *Context) ConstIntWords(ty *Type, words []uint64) *ConstantInt {
	words = truncateToWidth(words, ty.Bits)
	var b strings.Builder
	fmt.Fprintf(&b, "int:%p:", ty)
	for _, w := range words {
		fmt.Fprintf(&b, "%x,", w)
	}
	key := b.String()
	return c.intern(key, func() Constant {
		ci := &ConstantInt{Words: words}
		ci.typ = ty
		ci.ctx = c
		ci.key = key
		ci.initUser(ci, nil)
		return ci
	}).(*ConstantInt)
}

func truncateToWidth(words []uint64, bits uint32) []uint64 {
	n := int((bits + 63) / 64)
	if n == 0 {
		n = 1
	}
	out := make([]uint64, n)
	copy(out, words)
	if rem := bits % 64; rem != 0 {
		out[n-1] &= (uint64(1) << rem) - 1
	}
	return out
}

// ConstFP returns the floating constant of ty with the given raw bits.
func (c *Context) ConstFP(ty *Type, words []uint64) *ConstantFP {
	var b strings.Builder
	fmt.Fprintf(&b, "fp:%p:", ty)
	for _, w := range words {
		fmt.Fprintf(&b, "%x,", w)
	}
	key := b.String()
	return c.intern(key, func() Constant {
		cf := &ConstantFP{Words: append([]uint64(nil), words...)}
		cf.typ = ty
		cf.ctx = c
		cf.key = key
		cf.initUser(cf, nil)
		return cf
	}).(*ConstantFP)
}

// Zero returns the null value of ty.
func (c *Context) Zero(ty *Type) Constant {
	key := fmt.Sprintf("zero:%p", ty)
	return c.intern(key, func() Constant {
		z := &ConstantZero{}
		z.typ = ty
		z.ctx = c
		z.key = key
		z.initUser(z, nil)
		return z
	})
}

// Undef returns the undefined value of ty.
func (c *Context) Undef(ty *Type) Constant {
	key := fmt.Sprintf("undef:%p", ty)
	return c.intern(key, func() Constant {
		u := &ConstantUndef{}
		u.typ = ty
		u.ctx = c
		u.key = key
		u.initUser(u, nil)
		return u
	})
}

func aggKey(tag string, ty *Type, elems []Value) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:%p:", tag, ty)
	for _, e := range elems {
		fmt.Fprintf(&b, "%p,", e)
	}
	return b.String()
}

// ConstAggregate returns the aggregate constant of ty (struct, array, or
// vector) with the given elements.
func (c *Context) ConstAggregate(ty *Type, elems []Value) *ConstantAggregate {
	key := aggKey("agg", ty, elems)
	return c.intern(key, func() Constant {
		a := &ConstantAggregate{}
		a.typ = ty
		a.ctx = c
		a.key = key
		a.initUser(a, elems)
		return a
	}).(*ConstantAggregate)
}

// ConstVector returns the vector constant of the given elements; the type
// is derived from the first element.
func (c *Context) ConstVector(elems []Value) *ConstantAggregate {
	ty := c.Vector(elems[0].Type(), uint64(len(elems)))
	return c.ConstAggregate(ty, elems)
}

func (c *Context) constExpr(ty *Type, e *ConstantExpr, ops []Value) *ConstantExpr {
	var b strings.Builder
	fmt.Fprintf(&b, "ce:%d:%p:%d:%t%t%t%t:", e.Op, ty, e.Pred, e.NUW, e.NSW, e.Exact, e.InBounds)
	for _, op := range ops {
		fmt.Fprintf(&b, "%p,", op)
	}
	key := b.String()
	return c.intern(key, func() Constant {
		e.typ = ty
		e.ctx = c
		e.key = key
		e.initUser(e, ops)
		return e
	}).(*ConstantExpr)
}

// NewPlaceholder allocates a fresh, non-interned forward-reference
// constant of ty.
func (c *Context) NewPlaceholder(ty *Type) *ConstantExpr {
	e := &ConstantExpr{Op: OpPlaceholder}
	e.typ = ty
	e.ctx = c
	e.initUser(e, nil)
	return e
}

// ConstExprBinOp returns the constant binary operation lhs op rhs.
func (c *Context) ConstExprBinOp(op Opcode, lhs, rhs Value, nuw, nsw, exact bool) *ConstantExpr {
	e := &ConstantExpr{Op: op, NUW: nuw, NSW: nsw, Exact: exact}
	return c.constExpr(lhs.Type(), e, []Value{lhs, rhs})
}

// ConstExprCast returns the constant cast of v to ty.
func (c *Context) ConstExprCast(op Opcode, v Value, ty *Type) *ConstantExpr {
	e := &ConstantExpr{Op: op}
	return c.constExpr(ty, e, []Value{v})
}

// ConstExprGEP returns the constant element-pointer computation over ops,
// where ops[0] is the base pointer and the rest are indices.
func (c *Context) ConstExprGEP(ops []Value, inBounds bool) *ConstantExpr {
	ty := c.gepResultType(ops[0].Type(), ops[1:])
	e := &ConstantExpr{Op: OpGetElementPtr, InBounds: inBounds}
	return c.constExpr(ty, e, ops)
}

// GEPResultType computes the pointer type produced by indexing base with
// the given indices.
func (c *Context) GEPResultType(base *Type, idxs []Value) *Type {
	return c.gepResultType(base, idxs)
}

// gepResultType computes the pointer type produced by indexing base with
// the given indices.
func (c *Context) gepResultType(base *Type, idxs []Value) *Type {
	if len(idxs) == 0 {
		return base
	}
	cur := base.Elem
	for _, idx := range idxs[1:] {
		switch cur.Kind {
		case StructKind:
			ci, ok := idx.(*ConstantInt)
			if !ok {
				return c.Pointer(c.Int8(), base.AddrSpace)
			}
			cur = cur.FieldAt(int(ci.Value()))
		case ArrayKind, VectorKind:
			cur = cur.Elem
		default:
			return c.Pointer(cur, base.AddrSpace)
		}
		if cur == nil {
			return c.Pointer(c.Int8(), base.AddrSpace)
		}
	}
	return c.Pointer(cur, base.AddrSpace)
}

// ConstExprSelect returns the constant select cond ? t : f.
func (c *Context) ConstExprSelect(cond, t, f Value) *ConstantExpr {
	e := &ConstantExpr{Op: OpSelect}
	return c.constExpr(t.Type(), e, []Value{cond, t, f})
}

// ConstExprExtractElement returns the constant vector element extraction.
func (c *Context) ConstExprExtractElement(vec, idx Value) *ConstantExpr {
	e := &ConstantExpr{Op: OpExtractElement}
	return c.constExpr(vec.Type().Elem, e, []Value{vec, idx})
}

// ConstExprInsertElement returns the constant vector element insertion.
func (c *Context) ConstExprInsertElement(vec, elt, idx Value) *ConstantExpr {
	e := &ConstantExpr{Op: OpInsertElement}
	return c.constExpr(vec.Type(), e, []Value{vec, elt, idx})
}

// ConstExprShuffleVector returns the constant shuffle of v1 and v2 by mask.
func (c *Context) ConstExprShuffleVector(v1, v2, mask Value) *ConstantExpr {
	ty := c.Vector(v1.Type().Elem, mask.Type().Len)
	e := &ConstantExpr{Op: OpShuffleVector}
	return c.constExpr(ty, e, []Value{v1, v2, mask})
}

// ConstExprCmp returns the constant comparison of lhs and rhs. The opcode
// is OpFCmp for floating operands and OpICmp otherwise; the result is i1 or
// a vector of i1.
func (c *Context) ConstExprCmp(pred Predicate, lhs, rhs Value) *ConstantExpr {
	op := OpICmp
	if lhs.Type().IsFPOrFPVector() {
		op = OpFCmp
	}
	ty := c.Int1()
	if lhs.Type().Kind == VectorKind {
		ty = c.Vector(ty, lhs.Type().Len)
	}
	e := &ConstantExpr{Op: op, Pred: pred}
	return c.constExpr(ty, e, []Value{lhs, rhs})
}

// NewBlockAddress returns the address constant of block bb in fn. Block
// addresses are not interned: the reader creates them only once per block.
func (c *Context) NewBlockAddress(fn *Function, bb *BasicBlock) *BlockAddress {
	ba := &BlockAddress{Func: fn, Block: bb}
	ba.typ = c.Pointer(c.Int8(), 0)
	ba.ctx = c
	ba.initUser(ba, nil)
	return ba
}

// NewInlineAsm returns an inline-asm callee of the given pointer-to-function
// type.
func (c *Context) NewInlineAsm(ptrTy *Type, asm, constraints string, sideEffects, alignStack bool) *InlineAsm {
	ia := &InlineAsm{Asm: asm, Constraints: constraints, SideEffects: sideEffects, AlignStack: alignStack}
	ia.typ = ptrTy
	ia.ctx = c
	ia.initUser(ia, nil)
	return ia
}

// WithOperands rebuilds an interned constant with new operands, returning
// the canonical constant for the result. Aggregates and expressions only.
func (c *Context) WithOperands(v Constant, ops []Value) Constant {
	switch cv := v.(type) {
	case *ConstantAggregate:
		return c.ConstAggregate(cv.Type(), ops)
	case *ConstantExpr:
		e := &ConstantExpr{Op: cv.Op, Pred: cv.Pred, NUW: cv.NUW, NSW: cv.NSW, Exact: cv.Exact, InBounds: cv.InBounds}
		return c.constExpr(cv.Type(), e, ops)
	}
	return v
}
