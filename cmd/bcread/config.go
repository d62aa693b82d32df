package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// dumpConfig is the optional bcread.toml found in the working directory or
// one of its parents. It
// carries defaults for the dump command so recurring invocations don't need
// the flags.
type dumpConfig struct {
	Dump dumpSection `toml:"dump"`
}

type dumpSection struct {
	// Materialize controls whether function bodies are read for the body
	// statistics.
	Materialize bool `toml:"materialize"`
	// CacheDir, when set, enables the sidecar offset index under this
	// directory.
	CacheDir string `toml:"cache_dir"`
}

// findConfig walks from startDir upwards looking for bcread.toml.
func findConfig(startDir string) (string, bool, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, "bcread.toml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// loadConfig reads bcread.toml if one is reachable from startDir.
func loadConfig(startDir string) (dumpConfig, error) {
	var cfg dumpConfig
	path, ok, err := findConfig(startDir)
	if err != nil || !ok {
		return cfg, err
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}
