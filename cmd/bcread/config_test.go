package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig_FindsManifestUpwards(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	manifest := `[dump]
materialize = true
cache_dir = ".bccache"
`
	require.NoError(t, os.WriteFile(filepath.Join(root, "bcread.toml"), []byte(manifest), 0o644))

	cfg, err := loadConfig(sub)
	require.NoError(t, err)
	require.True(t, cfg.Dump.Materialize)
	require.Equal(t, ".bccache", cfg.Dump.CacheDir)
}

func TestLoadConfig_MissingIsZero(t *testing.T) {
	cfg, err := loadConfig(t.TempDir())
	require.NoError(t, err)
	require.False(t, cfg.Dump.Materialize)
	require.Empty(t, cfg.Dump.CacheDir)
}
