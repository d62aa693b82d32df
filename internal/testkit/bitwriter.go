// Package testkit provides test support for synthesizing bitcode streams:
// a bit-granular writer and a block builder emitting unabbreviated records.
// Production code never writes bitcode; only tests build streams.
package testkit

import (
	"encoding/binary"
	"fmt"

	"fortio.org/safecast"
)

// BitWriter appends bit fields least-significant-bit first, matching the
// on-disk bit order of the container.
type BitWriter struct {
	data []byte
	cur  uint64
	n    uint
}

// WriteBits appends the low width bits of v.
func (w *BitWriter) WriteBits(v uint64, width uint) {
	for width > 0 {
		take := 8 - w.n
		if take > width {
			take = width
		}
		w.cur |= (v & ((1 << take) - 1)) << w.n
		w.n += take
		v >>= take
		width -= take
		if w.n == 8 {
			w.data = append(w.data, byte(w.cur))
			w.cur = 0
			w.n = 0
		}
	}
}

// WriteVBR appends v in chunks of width bits with a continuation bit.
func (w *BitWriter) WriteVBR(v uint64, width uint) {
	mask := uint64(1)<<(width-1) - 1
	for {
		chunk := v & mask
		v >>= (width - 1)
		if v != 0 {
			chunk |= mask + 1
		}
		w.WriteBits(chunk, width)
		if v == 0 {
			return
		}
	}
}

// Align32 pads with zero bits to the next 32-bit boundary.
func (w *BitWriter) Align32() {
	if w.n != 0 {
		w.data = append(w.data, byte(w.cur))
		w.cur = 0
		w.n = 0
	}
	for len(w.data)%4 != 0 {
		w.data = append(w.data, 0)
	}
}

// BitPos returns the number of bits written.
func (w *BitWriter) BitPos() uint64 {
	return uint64(len(w.data))*8 + uint64(w.n)
}

// Bytes flushes and returns the stream, padded to a 32-bit boundary.
func (w *BitWriter) Bytes() []byte {
	w.Align32()
	return w.data
}

// StreamBuilder emits a well-formed container with unabbreviated records.
type StreamBuilder struct {
	W BitWriter

	widths  []uint   // abbreviation width per open block
	patches []int    // byte offset of each open block's length word
}

// NewStream starts a builder with the container signature in place.
func NewStream() *StreamBuilder {
	b := &StreamBuilder{}
	b.W.WriteBits('B', 8)
	b.W.WriteBits('C', 8)
	b.W.WriteBits(0x0, 4)
	b.W.WriteBits(0xC, 4)
	b.W.WriteBits(0xE, 4)
	b.W.WriteBits(0xD, 4)
	return b
}

func (b *StreamBuilder) width() uint {
	if len(b.widths) == 0 {
		return 2
	}
	return b.widths[len(b.widths)-1]
}

// EnterBlock opens a subblock with the given abbreviation width.
func (b *StreamBuilder) EnterBlock(blockID uint64, abbrevWidth uint) {
	b.W.WriteBits(1, b.width()) // ENTER_SUBBLOCK
	b.W.WriteVBR(blockID, 8)
	b.W.WriteVBR(uint64(abbrevWidth), 4)
	b.W.Align32()
	b.patches = append(b.patches, len(b.W.data))
	b.W.WriteBits(0, 32) // length placeholder, in words
	b.widths = append(b.widths, abbrevWidth)
}

// EndBlock closes the innermost block and patches its length word.
func (b *StreamBuilder) EndBlock() {
	b.W.WriteBits(0, b.width()) // END_BLOCK
	b.W.Align32()

	at := b.patches[len(b.patches)-1]
	b.patches = b.patches[:len(b.patches)-1]
	b.widths = b.widths[:len(b.widths)-1]

	words, err := safecast.Conv[uint32]((len(b.W.data) - at - 4) / 4)
	if err != nil {
		panic(fmt.Sprintf("block too large: %v", err))
	}
	binary.LittleEndian.PutUint32(b.W.data[at:], words)
}

// Record emits an unabbreviated record.
func (b *StreamBuilder) Record(code uint64, ops ...uint64) {
	b.W.WriteBits(3, b.width()) // UNABBREV_RECORD
	b.W.WriteVBR(code, 6)
	b.W.WriteVBR(uint64(len(ops)), 6)
	for _, op := range ops {
		b.W.WriteVBR(op, 6)
	}
}

// StringRecord emits a record whose tail operands are the bytes of s.
func (b *StreamBuilder) StringRecord(code uint64, lead []uint64, s string) {
	ops := append([]uint64(nil), lead...)
	for _, ch := range []byte(s) {
		ops = append(ops, uint64(ch))
	}
	b.Record(code, ops...)
}

// Bytes finishes the stream. All blocks must be closed.
func (b *StreamBuilder) Bytes() []byte {
	if len(b.widths) != 0 {
		panic("unclosed block")
	}
	return b.W.Bytes()
}

// SignRotate encodes a signed value with the sign in the low bit, the
// inverse of the reader's decoding.
func SignRotate(v int64) uint64 {
	if v >= 0 {
		return uint64(v) << 1
	}
	if v == -9223372036854775808 {
		return 1
	}
	return uint64(-v)<<1 | 1
}
