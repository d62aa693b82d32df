// Package bccache persists the lazy-materialization index of a bitcode
// buffer: the bit offsets of every deferred function body, keyed by a
// digest of the buffer. A host reopening the same buffer can skip straight
// to the bodies it wants. The cache is advisory; the reader never needs it.
package bccache

import (
	"crypto/sha256"
	"errors"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// Current schema version - increment when Index format changes.
const indexSchemaVersion uint16 = 1

// Digest identifies a bitcode buffer by content.
type Digest [sha256.Size]byte

// DigestOf hashes a buffer.
func DigestOf(buf []byte) Digest {
	return sha256.Sum256(buf)
}

// Index is the cached per-module materialization metadata.
type Index struct {
	// Schema version for safe invalidation when the format changes.
	Schema uint16

	Triple string

	// Deferred function-body offsets, by function name. Offsets are
	// absolute bit positions into the unwrapped stream.
	FuncOffsets map[string]uint64
}

// Cache stores indexes on disk under a content digest.
type Cache struct {
	dir string
}

// Open initializes a cache at the standard user cache location.
func Open(app string) (*Cache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, app)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

// OpenAt initializes a cache rooted at dir.
func OpenAt(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

func (c *Cache) pathFor(key Digest) string {
	const hexdigits = "0123456789abcdef"
	hexKey := make([]byte, 0, 2*len(key))
	for _, b := range key {
		hexKey = append(hexKey, hexdigits[b>>4], hexdigits[b&0xf])
	}
	return filepath.Join(c.dir, "mods", string(hexKey)+".mp")
}

// Put serializes and writes an index, replacing it atomically.
func (c *Cache) Put(key Digest, idx *Index) error {
	if c == nil {
		return nil
	}
	idx.Schema = indexSchemaVersion

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	enc := msgpack.NewEncoder(f)
	if err := enc.Encode(idx); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), p)
}

// Get reads an index; ok is false on a miss or a schema mismatch.
func (c *Cache) Get(key Digest, out *Index) (bool, error) {
	if c == nil {
		return false, nil
	}
	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	dec := msgpack.NewDecoder(f)
	if err := dec.Decode(out); err != nil {
		return false, err
	}
	if out.Schema != indexSchemaVersion {
		return false, nil
	}
	return true, nil
}

// DropAll invalidates the cache, useful after format changes.
func (c *Cache) DropAll() error {
	if c == nil {
		return nil
	}
	return os.RemoveAll(filepath.Join(c.dir, "mods"))
}
