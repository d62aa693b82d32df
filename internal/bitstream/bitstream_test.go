package bitstream

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"bcread/internal/bcwire"
	"bcread/internal/testkit"
)

func TestReader_Read(t *testing.T) {
	tests := []struct {
		name  string
		data  []byte
		reads []uint
		want  []uint64
	}{
		{
			name:  "single_bytes",
			data:  []byte{0xAB, 0xCD},
			reads: []uint{8, 8},
			want:  []uint64{0xAB, 0xCD},
		},
		{
			name:  "nibbles_lsb_first",
			data:  []byte{0xAB},
			reads: []uint{4, 4},
			want:  []uint64{0xB, 0xA},
		},
		{
			name:  "straddling_bytes",
			data:  []byte{0xFF, 0x01},
			reads: []uint{4, 8},
			want:  []uint64{0xF, 0x1F},
		},
		{
			name:  "full_word",
			data:  []byte{0x78, 0x56, 0x34, 0x12},
			reads: []uint{32},
			want:  []uint64{0x12345678},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(NewBufferSource(tt.data))
			for i, n := range tt.reads {
				v, err := r.Read(n)
				require.NoError(t, err)
				require.Equal(t, tt.want[i], v, "read %d", i)
			}
		})
	}
}

func TestReader_ReadPastEnd(t *testing.T) {
	r := NewReader(NewBufferSource([]byte{0x01}))
	_, err := r.Read(8)
	require.NoError(t, err)
	_, err = r.Read(1)
	require.ErrorIs(t, err, ErrEndOfStream)
}

func TestReader_VBRRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 5, 31, 32, 127, 128, 1 << 20, 1<<40 + 12345, ^uint64(0)}
	for _, width := range []uint{2, 4, 6, 8} {
		var w testkit.BitWriter
		for _, v := range values {
			w.WriteVBR(v, width)
		}
		r := NewReader(NewBufferSource(w.Bytes()))
		for _, v := range values {
			got, err := r.ReadVBR(width)
			require.NoError(t, err)
			require.Equal(t, v, got, "width %d", width)
		}
	}
}

func TestReader_Align32(t *testing.T) {
	r := NewReader(NewBufferSource([]byte{0, 0, 0, 0, 0xAA, 0, 0, 0}))
	_, err := r.Read(3)
	require.NoError(t, err)
	r.Align32()
	require.Equal(t, uint64(32), r.BitPos())
	v, err := r.Read(8)
	require.NoError(t, err)
	require.Equal(t, uint64(0xAA), v)
}

func TestStreamSource_ReReads(t *testing.T) {
	data := make([]byte, 64*1024)
	for i := range data {
		data[i] = byte(i * 7)
	}
	src := NewStreamSource(bytes.NewReader(data))

	// Pull a late byte first, then read earlier ones again.
	b, err := src.Byte(50000)
	require.NoError(t, err)
	require.Equal(t, data[50000], b)

	b, err = src.Byte(3)
	require.NoError(t, err)
	require.Equal(t, data[3], b)

	_, err = src.Byte(uint64(len(data)))
	require.Error(t, err)
}

// buildSimpleBlock writes one block with two records, one nested skipped
// block, and returns the stream.
func buildSimpleBlock(t *testing.T) []byte {
	t.Helper()
	b := testkit.NewStream()
	b.EnterBlock(8, 3)
	b.Record(1, 10, 20)
	b.EnterBlock(99, 2)
	b.Record(7, 1)
	b.EndBlock()
	b.Record(2, 30)
	b.EndBlock()
	return b.Bytes()
}

func TestCursor_WalkBlocks(t *testing.T) {
	data := buildSimpleBlock(t)
	c := NewCursor(NewBufferSource(data))

	// Skip the signature.
	for _, bits := range []uint{8, 8, 4, 4, 4, 4} {
		_, err := c.Read(bits)
		require.NoError(t, err)
	}

	code, err := c.ReadCode()
	require.NoError(t, err)
	require.Equal(t, uint64(bcwire.EnterSubBlock), code)
	id, err := c.ReadSubBlockID()
	require.NoError(t, err)
	require.Equal(t, uint64(8), id)
	require.NoError(t, c.EnterSubBlock(id))

	// First record.
	entry, err := c.AdvanceSkippingSubblocks()
	require.NoError(t, err)
	require.Equal(t, EntryRecord, entry.Kind)
	rcode, vals, err := c.ReadRecord(entry.ID, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(1), rcode)
	require.Equal(t, []uint64{10, 20}, vals)

	// The nested block is skipped transparently; next comes record 2.
	entry, err = c.AdvanceSkippingSubblocks()
	require.NoError(t, err)
	require.Equal(t, EntryRecord, entry.Kind)
	rcode, vals, err = c.ReadRecord(entry.ID, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(2), rcode)
	require.Equal(t, []uint64{30}, vals)

	entry, err = c.AdvanceSkippingSubblocks()
	require.NoError(t, err)
	require.Equal(t, EntryEndBlock, entry.Kind)
	require.True(t, c.AtEnd())
}

func TestCursor_SnapshotRestore(t *testing.T) {
	data := buildSimpleBlock(t)
	c := NewCursor(NewBufferSource(data))
	for _, bits := range []uint{8, 8, 4, 4, 4, 4} {
		_, err := c.Read(bits)
		require.NoError(t, err)
	}
	code, err := c.ReadCode()
	require.NoError(t, err)
	require.Equal(t, uint64(bcwire.EnterSubBlock), code)
	if _, err := c.ReadSubBlockID(); err != nil {
		t.Fatal(err)
	}
	require.NoError(t, c.EnterSubBlock(8))

	snap := c.Snapshot()

	entry, err := c.AdvanceSkippingSubblocks()
	require.NoError(t, err)
	_, first, err := c.ReadRecord(entry.ID, nil)
	require.NoError(t, err)

	c.Restore(snap)

	entry, err = c.AdvanceSkippingSubblocks()
	require.NoError(t, err)
	_, again, err := c.ReadRecord(entry.ID, nil)
	require.NoError(t, err)
	require.Equal(t, first, again)
}

func TestCursor_AbbreviatedRecord(t *testing.T) {
	b := testkit.NewStream()
	b.EnterBlock(9, 3)
	w := &b.W

	// DEFINE_ABBREV: literal code 5, a VBR6 operand, then an array of
	// fixed-8 elements.
	w.WriteBits(bcwire.DefineAbbrev, 3)
	w.WriteVBR(4, 5)
	w.WriteBits(1, 1)
	w.WriteVBR(5, 8)
	w.WriteBits(0, 1)
	w.WriteBits(bcwire.EncVBR, 3)
	w.WriteVBR(6, 5)
	w.WriteBits(0, 1)
	w.WriteBits(bcwire.EncArray, 3)
	w.WriteBits(0, 1)
	w.WriteBits(bcwire.EncFixed, 3)
	w.WriteVBR(8, 5)

	// One record through the abbreviation.
	w.WriteBits(bcwire.FirstApplAbbrev, 3)
	w.WriteVBR(1234, 6)
	w.WriteVBR(3, 6) // array length
	w.WriteBits('a', 8)
	w.WriteBits('b', 8)
	w.WriteBits('c', 8)
	b.EndBlock()

	c := NewCursor(NewBufferSource(b.Bytes()))
	for _, bits := range []uint{8, 8, 4, 4, 4, 4} {
		_, err := c.Read(bits)
		require.NoError(t, err)
	}
	code, err := c.ReadCode()
	require.NoError(t, err)
	require.Equal(t, uint64(bcwire.EnterSubBlock), code)
	if _, err := c.ReadSubBlockID(); err != nil {
		t.Fatal(err)
	}
	require.NoError(t, c.EnterSubBlock(9))

	entry, err := c.Advance()
	require.NoError(t, err)
	require.Equal(t, EntryRecord, entry.Kind)
	require.Equal(t, uint64(bcwire.FirstApplAbbrev), entry.ID)

	rcode, vals, err := c.ReadRecord(entry.ID, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(5), rcode)
	require.Equal(t, []uint64{1234, 'a', 'b', 'c'}, vals)

	entry, err = c.Advance()
	require.NoError(t, err)
	require.Equal(t, EntryEndBlock, entry.Kind)
}

func TestWrapper_Detection(t *testing.T) {
	raw := []byte{'B', 'C', 0xC0, 0xDE}
	require.True(t, IsRawBitcode(raw))
	require.False(t, IsWrapper(raw))

	wrapped := make([]byte, 20+4)
	wrapped[0] = 0xDE
	wrapped[1] = 0xC0
	wrapped[2] = 0x17
	wrapped[3] = 0x0B
	wrapped[8] = 20 // offset
	wrapped[12] = 4 // size
	copy(wrapped[20:], raw)
	require.True(t, IsWrapper(wrapped))

	inner, err := StripWrapper(wrapped)
	require.NoError(t, err)
	require.Equal(t, raw, inner)
}

func TestWrapper_BadRegion(t *testing.T) {
	wrapped := make([]byte, 20)
	wrapped[0] = 0xDE
	wrapped[1] = 0xC0
	wrapped[2] = 0x17
	wrapped[3] = 0x0B
	wrapped[8] = 20
	wrapped[12] = 200 // reaches past the buffer
	_, err := StripWrapper(wrapped)
	require.Error(t, err)
}
