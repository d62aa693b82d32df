package bitstream

import (
	"errors"
	"fmt"

	"bcread/internal/bcwire"
)

// EntryKind classifies what AdvanceSkippingSubblocks found next in the
// stream.
type EntryKind uint8

const (
	// EntrySubBlock marks an ENTER_SUBBLOCK whose ID has been read but not
	// entered.
	EntrySubBlock EntryKind = iota + 1
	// EntryEndBlock marks the end of the current block; the block has been
	// popped.
	EntryEndBlock
	// EntryRecord marks a record; ID carries the abbreviation ID to pass to
	// ReadRecord.
	EntryRecord
)

// Entry is the result of Advance.
type Entry struct {
	Kind EntryKind
	ID   uint64
}

// scope is one level of block nesting.
type scope struct {
	abbrevWidth uint
	abbrevs     []*Abbrev
}

// Cursor walks the block structure of a bitstream, maintaining per-block
// abbreviation state and the BLOCKINFO-registered abbreviations.
type Cursor struct {
	r *Reader

	scopes    []scope
	topWidth  uint
	blockInfo map[uint64][]*Abbrev
}

// NewCursor returns a cursor over src positioned at bit 0. The top-level
// abbreviation width is 2, per the container format.
func NewCursor(src Source) *Cursor {
	return &Cursor{
		r:         NewReader(src),
		topWidth:  2,
		blockInfo: make(map[uint64][]*Abbrev),
	}
}

// BitPos returns the current absolute bit offset.
func (c *Cursor) BitPos() uint64 { return c.r.BitPos() }

// AtEnd reports whether the underlying reader is exhausted.
func (c *Cursor) AtEnd() bool { return c.r.AtEnd() }

// Read exposes a raw bit read; used only for signature sniffing.
func (c *Cursor) Read(n uint) (uint64, error) { return c.r.Read(n) }

// JumpToBit repositions the cursor to an absolute bit offset recorded
// earlier. Block scope state is untouched: jumping is only valid to the
// start of a subblock body (right after its ID, as captured by BitPos
// before a SkipBlock), whose EnterSubBlock/ReadBlockEnd pair balances the
// scope stack again.
func (c *Cursor) JumpToBit(bit uint64) {
	c.r.JumpToBit(bit)
}

// Snapshot captures the complete cursor state for a later Restore. The
// legacy type table is parsed in multiple passes over the same block and
// needs to rewind.
func (c *Cursor) Snapshot() CursorState {
	st := CursorState{pos: c.r.BitPos(), scopes: make([]scope, len(c.scopes))}
	for i, s := range c.scopes {
		st.scopes[i] = scope{abbrevWidth: s.abbrevWidth, abbrevs: append([]*Abbrev(nil), s.abbrevs...)}
	}
	return st
}

// Restore rewinds the cursor to a prior Snapshot.
func (c *Cursor) Restore(st CursorState) {
	c.r.JumpToBit(st.pos)
	c.scopes = make([]scope, len(st.scopes))
	for i, s := range st.scopes {
		c.scopes[i] = scope{abbrevWidth: s.abbrevWidth, abbrevs: append([]*Abbrev(nil), s.abbrevs...)}
	}
}

// CursorState is an opaque snapshot of a Cursor.
type CursorState struct {
	pos    uint64
	scopes []scope
}

func (c *Cursor) abbrevWidth() uint {
	if len(c.scopes) == 0 {
		return c.topWidth
	}
	return c.scopes[len(c.scopes)-1].abbrevWidth
}

func (c *Cursor) curAbbrevs() []*Abbrev {
	if len(c.scopes) == 0 {
		return nil
	}
	return c.scopes[len(c.scopes)-1].abbrevs
}

// ReadCode reads the next abbreviation ID at the current width.
func (c *Cursor) ReadCode() (uint64, error) {
	return c.r.Read(c.abbrevWidth())
}

// ReadSubBlockID reads the block ID after an ENTER_SUBBLOCK code.
func (c *Cursor) ReadSubBlockID() (uint64, error) {
	return c.r.ReadVBR(8)
}

// EnterSubBlock enters the subblock whose ID was just read, pushing a new
// abbreviation scope seeded from BLOCKINFO.
func (c *Cursor) EnterSubBlock(blockID uint64) error {
	width, err := c.r.ReadVBR(4)
	if err != nil {
		return err
	}
	if width == 0 || width > 32 {
		return errors.New("bitstream: invalid abbreviation width")
	}
	c.r.Align32()
	if _, err := c.r.Read(32); err != nil { // block length in words, unused
		return err
	}
	c.scopes = append(c.scopes, scope{
		abbrevWidth: uint(width),
		abbrevs:     append([]*Abbrev(nil), c.blockInfo[blockID]...),
	})
	return nil
}

// ReadBlockEnd pops the current block at an END_BLOCK code.
func (c *Cursor) ReadBlockEnd() error {
	if len(c.scopes) == 0 {
		return errors.New("bitstream: END_BLOCK outside any block")
	}
	c.r.Align32()
	c.scopes = c.scopes[:len(c.scopes)-1]
	return nil
}

// SkipBlock skips the body of the subblock whose ID was just read.
func (c *Cursor) SkipBlock() error {
	if _, err := c.r.ReadVBR(4); err != nil {
		return err
	}
	c.r.Align32()
	words, err := c.r.Read(32)
	if err != nil {
		return err
	}
	c.r.JumpToBit(c.r.BitPos() + words*32)
	// Verify the destination is reachable so a bogus length fails now.
	if words > 0 {
		if _, err := c.r.src.Byte((c.r.BitPos() - 1) / 8); err != nil {
			return ErrEndOfStream
		}
	}
	return nil
}

// ReadAbbrevRecord decodes a DEFINE_ABBREV in the current block and appends
// it to the block's abbreviation table.
func (c *Cursor) ReadAbbrevRecord() error {
	ab, err := c.readAbbrevDef()
	if err != nil {
		return err
	}
	if len(c.scopes) == 0 {
		return errors.New("bitstream: DEFINE_ABBREV outside any block")
	}
	top := &c.scopes[len(c.scopes)-1]
	top.abbrevs = append(top.abbrevs, ab)
	return nil
}

// ReadRecord decodes the record introduced by abbrevID, appending operand
// values to vals (which may be nil) and returning the record code.
func (c *Cursor) ReadRecord(abbrevID uint64, vals []uint64) (uint64, []uint64, error) {
	if abbrevID == bcwire.UnabbrevRecord {
		code, err := c.r.ReadVBR(6)
		if err != nil {
			return 0, nil, err
		}
		n, err := c.r.ReadVBR(6)
		if err != nil {
			return 0, nil, err
		}
		for i := uint64(0); i < n; i++ {
			v, err := c.r.ReadVBR(6)
			if err != nil {
				return 0, nil, err
			}
			vals = append(vals, v)
		}
		return code, vals, nil
	}
	if abbrevID < bcwire.FirstApplAbbrev {
		return 0, nil, fmt.Errorf("bitstream: abbreviation ID %d is not a record", abbrevID)
	}
	abbrevs := c.curAbbrevs()
	idx := abbrevID - bcwire.FirstApplAbbrev
	if idx >= uint64(len(abbrevs)) {
		return 0, nil, fmt.Errorf("bitstream: abbreviation ID %d out of range", abbrevID)
	}
	return c.readAbbreviatedRecord(abbrevs[idx], vals)
}

// Advance moves to the next entry in the current block. END_BLOCK pops the
// block before returning. DEFINE_ABBREV records are processed transparently.
func (c *Cursor) Advance() (Entry, error) {
	for {
		code, err := c.ReadCode()
		if err != nil {
			return Entry{}, err
		}
		switch code {
		case bcwire.EndBlock:
			if err := c.ReadBlockEnd(); err != nil {
				return Entry{}, err
			}
			return Entry{Kind: EntryEndBlock}, nil
		case bcwire.EnterSubBlock:
			id, err := c.ReadSubBlockID()
			if err != nil {
				return Entry{}, err
			}
			return Entry{Kind: EntrySubBlock, ID: id}, nil
		case bcwire.DefineAbbrev:
			if err := c.ReadAbbrevRecord(); err != nil {
				return Entry{}, err
			}
		default:
			return Entry{Kind: EntryRecord, ID: code}, nil
		}
	}
}

// AdvanceSkippingSubblocks is Advance, except nested subblocks are skipped
// whole.
func (c *Cursor) AdvanceSkippingSubblocks() (Entry, error) {
	for {
		e, err := c.Advance()
		if err != nil {
			return Entry{}, err
		}
		if e.Kind == EntrySubBlock {
			if err := c.SkipBlock(); err != nil {
				return Entry{}, err
			}
			continue
		}
		return e, nil
	}
}

// ReadBlockInfoBlock consumes a BLOCKINFO block, registering abbreviations
// for the blocks it describes.
func (c *Cursor) ReadBlockInfoBlock() error {
	if err := c.EnterSubBlock(bcwire.BlockInfoBlockID); err != nil {
		return err
	}
	var curBID uint64
	haveBID := false
	var record []uint64
	for {
		code, err := c.ReadCode()
		if err != nil {
			return err
		}
		switch code {
		case bcwire.EndBlock:
			return c.ReadBlockEnd()
		case bcwire.EnterSubBlock:
			if _, err := c.ReadSubBlockID(); err != nil {
				return err
			}
			if err := c.SkipBlock(); err != nil {
				return err
			}
		case bcwire.DefineAbbrev:
			ab, err := c.readAbbrevDef()
			if err != nil {
				return err
			}
			if !haveBID {
				return errors.New("bitstream: abbreviation in BLOCKINFO before SETBID")
			}
			c.blockInfo[curBID] = append(c.blockInfo[curBID], ab)
		default:
			record = record[:0]
			rcode, rec, err := c.ReadRecord(code, record)
			if err != nil {
				return err
			}
			record = rec
			if rcode == bcwire.BlockInfoCodeSetBID {
				if len(record) < 1 {
					return errors.New("bitstream: SETBID without operand")
				}
				curBID = record[0]
				haveBID = true
			}
			// Other BLOCKINFO records (names) carry no semantics here.
		}
	}
}
