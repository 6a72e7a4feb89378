package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound is returned by Get when no configuration has been stored yet.
var ErrNotFound = errors.New("configuration not found")

// CommitResult acknowledges a Set.
type CommitResult struct {
	Err error
	// Superseded is set when a later Set on the same store was persisted
	// first and this write was skipped.
	Superseded bool
	At         time.Time
}

// OK reports whether the commit succeeded.
func (r CommitResult) OK() bool {
	return r.Err == nil
}

// Store reads and replaces the engine configuration. Get is synchronous; Set
// applies the whole document as one write and reports the outcome through
// done, possibly from another goroutine. done may be nil.
type Store interface {
	Get(ctx context.Context) (*Configuration, error)
	Set(ctx context.Context, cfg *Configuration, done func(CommitResult))
}

// writeFunc persists an encoded configuration.
type writeFunc func(ctx context.Context, data []byte) error

// committer orders a store's background writes. Each Set takes a sequence
// number on the caller's goroutine; writes run one at a time and a write
// older than one already persisted is dropped, so the store always ends on
// the most recent Set.
type committer struct {
	mu      sync.Mutex
	seq     uint64
	writeMu sync.Mutex
	written uint64
}

// commit encodes cfg on the caller's goroutine so later mutations by the
// caller cannot leak into the write, then runs write in the background.
func (c *committer) commit(ctx context.Context, cfg *Configuration, write writeFunc, done func(CommitResult)) {
	if done == nil {
		done = func(CommitResult) {}
	}
	data, err := Encode(cfg)
	if err != nil {
		go done(CommitResult{Err: err, At: time.Now()})
		return
	}

	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	go func() {
		c.writeMu.Lock()
		if seq < c.written {
			c.writeMu.Unlock()
			done(CommitResult{Superseded: true, At: time.Now()})
			return
		}
		err := write(ctx, data)
		if err == nil {
			c.written = seq
		}
		c.writeMu.Unlock()
		done(CommitResult{Err: err, At: time.Now()})
	}()
}

// SetSync calls Set and waits for its acknowledgment or ctx cancellation.
func SetSync(ctx context.Context, s Store, cfg *Configuration) error {
	result := make(chan CommitResult, 1)
	s.Set(ctx, cfg, func(r CommitResult) { result <- r })
	select {
	case r := <-result:
		return r.Err
	case <-ctx.Done():
		return fmt.Errorf("failed to commit configuration: %w", ctx.Err())
	}
}

// Seed stores cfg when the store is empty. It reports whether a write
// happened.
func Seed(ctx context.Context, s Store, cfg *Configuration) (bool, error) {
	_, err := s.Get(ctx)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, fmt.Errorf("failed to read configuration: %w", err)
	}
	if err := SetSync(ctx, s, cfg); err != nil {
		return false, fmt.Errorf("failed to seed configuration: %w", err)
	}
	return true, nil
}
