package ir

// FunctionAttrIndex is the slot index carrying function-level attributes.
const FunctionAttrIndex = ^uint32(0)

// ReturnAttrIndex is the slot index carrying return-value attributes.
const ReturnAttrIndex = uint32(0)

// Attributes is one decoded attribute set: a raw attribute bit mask plus an
// alignment carried out of band.
type Attributes struct {
	Raw       uint64
	Alignment uint32
}

// IsEmpty reports whether no attribute is present.
func (a Attributes) IsEmpty() bool { return a.Raw == 0 && a.Alignment == 0 }

// AttrSlot binds Attributes to a parameter index: 0 is the return value,
// positive N is parameter N, FunctionAttrIndex is the function itself.
type AttrSlot struct {
	Index uint32
	Attrs Attributes
}

// AttributeList is the ordered attribute slots of one function or call.
type AttributeList struct {
	Slots []AttrSlot
}

// IsEmpty reports whether the list carries no slots.
func (l AttributeList) IsEmpty() bool { return len(l.Slots) == 0 }
