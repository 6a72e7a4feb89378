package state

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultStatePath is where the file store keeps the configuration when no
// path is given.
func DefaultStatePath() string {
	xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfigHome == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		xdgConfigHome = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(xdgConfigHome, "bggeo-refresher", "state.json")
}

// DefaultBoltPath is the bbolt counterpart of DefaultStatePath.
func DefaultBoltPath() string {
	p := DefaultStatePath()
	if p == "" {
		return ""
	}
	return filepath.Join(filepath.Dir(p), "state.db")
}

func EnsureParentDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
