package ir

// Value is anything that can appear as an operand: arguments, instructions,
// constants, globals, basic blocks (as labels), metadata.
type Value interface {
	Type() *Type
	Name() string
	SetName(string)

	base() *valueBase
}

// User is a Value with operands. Operand mutation keeps the operands'
// use lists consistent.
type User interface {
	Value
	Operands() []Value
	SetOperand(i int, v Value)
}

// Use records one operand slot of one user.
type Use struct {
	User  User
	Index int
}

// valueBase carries the state common to all values: type, name, and the use
// list of operand slots referring to this value.
type valueBase struct {
	typ  *Type
	name string
	uses []Use
}

func (v *valueBase) Type() *Type     { return v.typ }
func (v *valueBase) Name() string    { return v.name }
func (v *valueBase) SetName(s string) { v.name = s }
func (v *valueBase) base() *valueBase { return v }

func (v *valueBase) addUse(u User, idx int) {
	v.uses = append(v.uses, Use{User: u, Index: idx})
}

func (v *valueBase) removeUse(u User, idx int) {
	for i := range v.uses {
		if v.uses[i].User == u && v.uses[i].Index == idx {
			v.uses = append(v.uses[:i], v.uses[i+1:]...)
			return
		}
	}
}

// Uses returns a snapshot of the operand slots currently referring to v.
func Uses(v Value) []Use {
	return append([]Use(nil), v.base().uses...)
}

// HasUses reports whether any operand slot refers to v.
func HasUses(v Value) bool { return len(v.base().uses) > 0 }

// userBase implements operand storage with use bookkeeping. Embedders must
// call initUser with their own identity before operands are set.
type userBase struct {
	valueBase
	self User
	ops  []Value
}

func (u *userBase) initUser(self User, ops []Value) {
	u.self = self
	u.ops = make([]Value, len(ops))
	for i, op := range ops {
		u.ops[i] = op
		if op != nil {
			op.base().addUse(self, i)
		}
	}
}

func (u *userBase) Operands() []Value { return u.ops }

func (u *userBase) SetOperand(i int, v Value) {
	if old := u.ops[i]; old != nil {
		old.base().removeUse(u.self, i)
	}
	u.ops[i] = v
	if v != nil {
		v.base().addUse(u.self, i)
	}
}

// dropOperands detaches every operand, emptying the use lists that point
// back at u. Called when a user is destroyed.
func (u *userBase) dropOperands() {
	for i := range u.ops {
		u.SetOperand(i, nil)
	}
}

// ReplaceAllUsesWith rewrites every operand slot referring to old so it
// refers to new. The two values should have the same type.
func ReplaceAllUsesWith(old, new Value) {
	b := old.base()
	for len(b.uses) > 0 {
		use := b.uses[len(b.uses)-1]
		use.User.SetOperand(use.Index, new)
	}
}
