package bccache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCache_PutGetRoundTrip(t *testing.T) {
	c, err := OpenAt(t.TempDir())
	require.NoError(t, err)

	buf := []byte("not really bitcode, but stable content")
	key := DigestOf(buf)

	idx := &Index{
		Triple: "armv7-none-linux-gnueabi",
		FuncOffsets: map[string]uint64{
			"f": 1184,
			"g": 1824,
		},
	}
	require.NoError(t, c.Put(key, idx))

	var got Index
	ok, err := c.Get(key, &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, idx.Triple, got.Triple)
	require.Equal(t, idx.FuncOffsets, got.FuncOffsets)
}

func TestCache_MissAndDrop(t *testing.T) {
	c, err := OpenAt(t.TempDir())
	require.NoError(t, err)

	var got Index
	ok, err := c.Get(DigestOf([]byte("absent")), &got)
	require.NoError(t, err)
	require.False(t, ok)

	key := DigestOf([]byte("present"))
	require.NoError(t, c.Put(key, &Index{Triple: "x"}))
	require.NoError(t, c.DropAll())

	ok, err = c.Get(key, &got)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDigestOf_ContentAddressed(t *testing.T) {
	require.Equal(t, DigestOf([]byte("a")), DigestOf([]byte("a")))
	require.NotEqual(t, DigestOf([]byte("a")), DigestOf([]byte("b")))
}
