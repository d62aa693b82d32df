package bcread

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"bcread/internal/ir"
	"bcread/internal/testkit"
)

func TestDecodeSignRotatedValue_RoundTrip(t *testing.T) {
	values := []int64{0, 1, -1, 2, -2, 63, -64, 1 << 40, -(1 << 40), math.MaxInt64, math.MinInt64 + 1}
	for _, v := range values {
		got := int64(decodeSignRotatedValue(testkit.SignRotate(v)))
		require.Equal(t, v, got, "value %d", v)
	}
}

func TestDecodeSignRotatedValue_OneIsMinInt(t *testing.T) {
	require.Equal(t, uint64(1)<<63, decodeSignRotatedValue(1))
}

func TestDecodeAlignment(t *testing.T) {
	// The field stores log2(align)+1; zero means unspecified.
	cases := map[uint64]uint32{
		0: 0,
		1: 1,
		2: 2,
		3: 4,
		4: 8,
		5: 16,
	}
	for field, want := range cases {
		require.Equal(t, want, decodeAlignment(field), "field %d", field)
	}
}

func TestDecodeLinkage_Remap(t *testing.T) {
	tests := []struct {
		code uint64
		want ir.Linkage
	}{
		{0, ir.ExternalLinkage},
		{1, ir.WeakAnyLinkage},
		{2, ir.AppendingLinkage},
		{3, ir.InternalLinkage},
		{4, ir.LinkOnceAnyLinkage},
		{5, ir.ExternalLinkage}, // was dllimport
		{6, ir.ExternalLinkage}, // was dllexport
		{7, ir.ExternalWeakLinkage},
		{8, ir.CommonLinkage},
		{9, ir.PrivateLinkage},
		{10, ir.WeakODRLinkage},
		{11, ir.LinkOnceODRLinkage},
		{12, ir.AvailableExternallyLinkage},
		{13, ir.PrivateLinkage},      // was linker-private
		{14, ir.ExternalWeakLinkage}, // was linker-private-weak
		{15, ir.LinkOnceODRLinkage},  // was auto-hide
		{99, ir.ExternalLinkage},     // unknown
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, decodeLinkage(tt.code), "code %d", tt.code)
	}
}

func TestDecodeLegacyAttributes(t *testing.T) {
	// Alignment 16 in bits 16..31, low bits 0x3, high attr bits 0x5 above
	// bit 32.
	encoded := uint64(0x3) | uint64(16)<<16 | uint64(0x5)<<32
	attrs := decodeLegacyAttributes(encoded)
	require.Equal(t, uint32(16), attrs.Alignment)
	require.Equal(t, uint64(0x5)<<21|0x3, attrs.Raw)
}

func TestDecodeBinaryOpcode_FloatSelection(t *testing.T) {
	ctx := ir.NewContext()
	op, ok := decodeBinaryOpcode(0, ctx.Int(32))
	require.True(t, ok)
	require.Equal(t, ir.OpAdd, op)

	op, ok = decodeBinaryOpcode(0, ctx.Double())
	require.True(t, ok)
	require.Equal(t, ir.OpFAdd, op)

	op, ok = decodeBinaryOpcode(0, ctx.Vector(ctx.Float(), 4))
	require.True(t, ok)
	require.Equal(t, ir.OpFAdd, op)

	_, ok = decodeBinaryOpcode(99, ctx.Int(32))
	require.False(t, ok)
}
