package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FSStore persists the configuration as a JSON file.
type FSStore struct {
	Path string

	mu      sync.Mutex
	commits committer
}

func NewFSStore(path string) *FSStore {
	return &FSStore{Path: path}
}

func (f *FSStore) Get(ctx context.Context) (*Configuration, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}
	return Decode(b)
}

func (f *FSStore) Set(ctx context.Context, cfg *Configuration, done func(CommitResult)) {
	f.commits.commit(ctx, cfg, f.write, done)
}

// write replaces the file through a rename so readers never observe a
// partially written document.
func (f *FSStore) write(_ context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := EnsureParentDir(f.Path); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.Path), ".state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp configuration file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set configuration file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close configuration file: %w", err)
	}
	if err := os.Rename(tmpName, f.Path); err != nil {
		return fmt.Errorf("failed to replace configuration file: %w", err)
	}
	return nil
}
