package bitstream

import (
	"errors"

	"bcread/internal/bcwire"
)

// abbrevOp is one operand specifier of an abbreviation definition.
type abbrevOp struct {
	isLiteral bool
	litValue  uint64
	enc       uint8
	encData   uint64 // width for fixed and VBR encodings
}

// Abbrev is a decoded DEFINE_ABBREV operand list.
type Abbrev struct {
	ops []abbrevOp
}

// char6Decode expands the dense 6-bit identifier alphabet.
func char6Decode(v uint64) (byte, error) {
	switch {
	case v < 26:
		return byte('a' + v), nil
	case v < 52:
		return byte('A' + v - 26), nil
	case v < 62:
		return byte('0' + v - 52), nil
	case v == 62:
		return '.', nil
	case v == 63:
		return '_', nil
	}
	return 0, errors.New("bitstream: char6 value out of range")
}

// readAbbrevDef decodes a DEFINE_ABBREV record body.
func (c *Cursor) readAbbrevDef() (*Abbrev, error) {
	numOps, err := c.r.ReadVBR(5)
	if err != nil {
		return nil, err
	}
	ab := &Abbrev{ops: make([]abbrevOp, 0, numOps)}
	for i := uint64(0); i < numOps; i++ {
		isLit, err := c.r.Read(1)
		if err != nil {
			return nil, err
		}
		if isLit != 0 {
			v, err := c.r.ReadVBR(8)
			if err != nil {
				return nil, err
			}
			ab.ops = append(ab.ops, abbrevOp{isLiteral: true, litValue: v})
			continue
		}
		enc, err := c.r.Read(3)
		if err != nil {
			return nil, err
		}
		op := abbrevOp{enc: uint8(enc)}
		switch enc {
		case bcwire.EncFixed, bcwire.EncVBR:
			w, err := c.r.ReadVBR(5)
			if err != nil {
				return nil, err
			}
			op.encData = w
		case bcwire.EncArray, bcwire.EncChar6, bcwire.EncBlob:
			// No extra data.
		default:
			return nil, errors.New("bitstream: unknown abbreviation encoding")
		}
		ab.ops = append(ab.ops, op)
	}
	return ab, nil
}

// readAbbrevOperand decodes a single non-array, non-blob operand.
func (c *Cursor) readAbbrevOperand(op abbrevOp) (uint64, error) {
	if op.isLiteral {
		return op.litValue, nil
	}
	switch op.enc {
	case bcwire.EncFixed:
		if op.encData == 0 {
			return 0, nil
		}
		return c.r.Read(uint(op.encData))
	case bcwire.EncVBR:
		return c.r.ReadVBR(uint(op.encData))
	case bcwire.EncChar6:
		v, err := c.r.Read(6)
		if err != nil {
			return 0, err
		}
		ch, err := char6Decode(v)
		return uint64(ch), err
	}
	return 0, errors.New("bitstream: unexpected operand encoding")
}

// readAbbreviatedRecord decodes a record through ab. The first decoded value
// is the record code; the rest are appended to vals.
func (c *Cursor) readAbbreviatedRecord(ab *Abbrev, vals []uint64) (code uint64, out []uint64, err error) {
	out = vals
	first := true
	for i := 0; i < len(ab.ops); i++ {
		op := ab.ops[i]
		switch {
		case !op.isLiteral && op.enc == bcwire.EncArray:
			if i+1 >= len(ab.ops) {
				return 0, nil, errors.New("bitstream: array abbreviation without element operand")
			}
			elt := ab.ops[i+1]
			i++
			n, err := c.r.ReadVBR(6)
			if err != nil {
				return 0, nil, err
			}
			for j := uint64(0); j < n; j++ {
				v, err := c.readAbbrevOperand(elt)
				if err != nil {
					return 0, nil, err
				}
				if first {
					code = v
					first = false
				} else {
					out = append(out, v)
				}
			}
		case !op.isLiteral && op.enc == bcwire.EncBlob:
			n, err := c.r.ReadVBR(6)
			if err != nil {
				return 0, nil, err
			}
			c.r.Align32()
			for j := uint64(0); j < n; j++ {
				v, err := c.r.Read(8)
				if err != nil {
					return 0, nil, err
				}
				if first {
					code = v
					first = false
				} else {
					out = append(out, v)
				}
			}
			c.r.Align32()
		default:
			v, err := c.readAbbrevOperand(op)
			if err != nil {
				return 0, nil, err
			}
			if first {
				code = v
				first = false
			} else {
				out = append(out, v)
			}
		}
	}
	if first {
		return 0, nil, errors.New("bitstream: abbreviation produced no record code")
	}
	return code, out, nil
}
