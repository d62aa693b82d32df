package bcread

import (
	"fmt"

	"bcread/internal/ir"
)

// resolveEntry pairs a constant placeholder with the table index holding
// (eventually) the real value.
type resolveEntry struct {
	placeholder *ir.ConstantExpr
	index       int
}

// valueTable is the index-addressed table of module and function values.
// Slots referenced before definition hold placeholders: a tagged constant
// expression for constant contexts, a detached synthetic argument otherwise.
type valueTable struct {
	ctx    *ir.Context
	values []ir.Value

	resolveConstants []resolveEntry
}

func newValueTable(ctx *ir.Context) *valueTable {
	return &valueTable{ctx: ctx}
}

func (t *valueTable) size() int { return len(t.values) }

func (t *valueTable) at(i int) ir.Value { return t.values[i] }

func (t *valueTable) push(v ir.Value) { t.values = append(t.values, v) }

func (t *valueTable) grow(n int) {
	for len(t.values) < n {
		t.values = append(t.values, nil)
	}
}

// assign installs v at idx. A constant placeholder in the slot is queued for
// bulk resolution; a synthetic argument is rewritten immediately.
func (t *valueTable) assign(v ir.Value, idx int) {
	if idx == len(t.values) {
		t.values = append(t.values, v)
		return
	}
	t.grow(idx + 1)

	old := t.values[idx]
	if old == nil {
		t.values[idx] = v
		return
	}
	if ph, ok := old.(*ir.ConstantExpr); ok && ph.IsPlaceholder() {
		t.resolveConstants = append(t.resolveConstants, resolveEntry{placeholder: ph, index: idx})
		t.values[idx] = v
		return
	}
	// A forward reference through a synthetic argument: rewrite every use
	// now and discard the stand-in.
	ir.ReplaceAllUsesWith(old, v)
	t.values[idx] = v
}

// constantFwdRef returns the constant at idx, or installs a placeholder of
// type ty.
func (t *valueTable) constantFwdRef(idx int, ty *ir.Type) (ir.Constant, error) {
	t.grow(idx + 1)
	if v := t.values[idx]; v != nil {
		c, ok := v.(ir.Constant)
		if !ok {
			return nil, fmt.Errorf("slot %d does not hold a constant: %w", idx, ErrExpectedConstant)
		}
		if v.Type() != ty {
			return nil, fmt.Errorf("slot %d has type %s, want %s: %w", idx, v.Type(), ty, ErrInvalidTypeForValue)
		}
		return c, nil
	}
	ph := t.ctx.NewPlaceholder(ty)
	t.values[idx] = ph
	return ph, nil
}

// valueFwdRef returns the value at idx. An absent slot with a known type
// yields a synthetic-argument placeholder; without a type the reference is
// invalid.
func (t *valueTable) valueFwdRef(idx int, ty *ir.Type) (ir.Value, error) {
	if idx < 0 {
		return nil, fmt.Errorf("negative value index: %w", ErrInvalidRecord)
	}
	t.grow(idx + 1)
	if v := t.values[idx]; v != nil {
		if ty != nil && v.Type() != ty {
			return nil, fmt.Errorf("slot %d has type %s, want %s: %w", idx, v.Type(), ty, ErrInvalidTypeForValue)
		}
		return v, nil
	}
	if ty == nil {
		return nil, fmt.Errorf("untyped forward reference to slot %d: %w", idx, ErrInvalidRecord)
	}
	a := ir.NewArgument(ty)
	t.values[idx] = a
	return a, nil
}

// shrinkTo truncates the table to n entries.
func (t *valueTable) shrinkTo(n int) {
	t.values = t.values[:n]
}

// resolveConstantForwardRefs rewrites every queued placeholder in bulk.
// Constants are interned by content, so rewriting a shared aggregate one
// placeholder at a time would re-unique it once per operand; instead every
// user is rebuilt once with all of its placeholder operands resolved
// together. Entries are processed in reverse insertion order.
func (t *valueTable) resolveConstantForwardRefs() {
	// Index the pending placeholders for the one-shot operand lookups.
	pending := make(map[*ir.ConstantExpr]int, len(t.resolveConstants))
	for _, e := range t.resolveConstants {
		pending[e.placeholder] = e.index
	}

	for len(t.resolveConstants) > 0 {
		e := t.resolveConstants[len(t.resolveConstants)-1]
		t.resolveConstants = t.resolveConstants[:len(t.resolveConstants)-1]
		real := t.values[e.index]

		for ir.HasUses(e.placeholder) {
			use := ir.Uses(e.placeholder)[0]
			u := use.User

			// Non-uniqued users (instructions, globals, metadata) are
			// rewritten in place.
			if !isUniquedConstant(u) {
				u.SetOperand(use.Index, real)
				continue
			}

			// A uniqued constant: rebuild it with every placeholder operand
			// resolved at once.
			uc := u.(ir.Constant)
			ops := uc.Operands()
			newOps := make([]ir.Value, len(ops))
			for i, op := range ops {
				ph, ok := op.(*ir.ConstantExpr)
				if !ok || !ph.IsPlaceholder() {
					newOps[i] = op
				} else if ph == e.placeholder {
					newOps[i] = real
				} else {
					newOps[i] = t.values[pending[ph]]
				}
			}
			newC := t.ctx.WithOperands(uc, newOps)
			ir.ReplaceAllUsesWith(uc, newC)
			// Table slots are not uses; point any slot holding the old
			// constant at its replacement before it is destroyed.
			for i, v := range t.values {
				if v == ir.Value(uc) {
					t.values[i] = newC
				}
			}
			t.ctx.Destroy(uc)
		}

		// Stray handles on the placeholder itself.
		ir.ReplaceAllUsesWith(e.placeholder, real)
		t.ctx.Destroy(e.placeholder)
		delete(pending, e.placeholder)
	}
}

// isUniquedConstant reports whether u is an interned constant, as opposed
// to an instruction, metadata node, or identity-bearing global.
func isUniquedConstant(u ir.User) bool {
	c, ok := u.(ir.Constant)
	if !ok {
		return false
	}
	if _, isGlobal := c.(ir.GlobalValue); isGlobal {
		return false
	}
	return true
}

// mdValueTable is the parallel table for metadata, using temporary nodes as
// placeholders.
type mdValueTable struct {
	ctx    *ir.Context
	values []ir.Value
}

func newMDValueTable(ctx *ir.Context) *mdValueTable {
	return &mdValueTable{ctx: ctx}
}

func (t *mdValueTable) size() int { return len(t.values) }

func (t *mdValueTable) grow(n int) {
	for len(t.values) < n {
		t.values = append(t.values, nil)
	}
}

// assign installs v at idx, resolving a temporary placeholder node if one
// was handed out.
func (t *mdValueTable) assign(v ir.Value, idx int) {
	if idx == len(t.values) {
		t.values = append(t.values, v)
		return
	}
	t.grow(idx + 1)
	old := t.values[idx]
	if old == nil {
		t.values[idx] = v
		return
	}
	tmp := old.(*ir.MDNode)
	ir.ReplaceAllUsesWith(tmp, v)
	tmp.DeleteTemporary()
	t.values[idx] = v
}

// valueFwdRef returns the node at idx, installing a temporary placeholder
// if the slot is empty.
func (t *mdValueTable) valueFwdRef(idx int) ir.Value {
	t.grow(idx + 1)
	if v := t.values[idx]; v != nil {
		return v
	}
	tmp := t.ctx.NewTemporaryMDNode()
	t.values[idx] = tmp
	return tmp
}

func (t *mdValueTable) shrinkTo(n int) {
	t.values = t.values[:n]
}
