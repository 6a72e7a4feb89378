package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleConfig(t *testing.T) *Configuration {
	t.Helper()
	cfg, err := Decode([]byte(engineDoc))
	require.NoError(t, err)
	return cfg
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

// storeContract exercises the behaviour every backend shares.
func storeContract(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.Get(ctx)
	require.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	cfg := sampleConfig(t)
	require.NoError(t, SetSync(ctx, s, cfg))

	// Mutating after Set must not affect what was committed.
	cfg.SetBearer("MUTATED")

	got, err := s.Get(ctx)
	require.NoError(t, err)
	v, _ := got.Authorization()
	assert.Equal(t, "Bearer OLD", v)
	assert.Equal(t, "R1", got.Extras.Token.RefreshToken)

	got.SetBearer("NEW")
	done := make(chan CommitResult, 1)
	s.Set(ctx, got, func(r CommitResult) { done <- r })
	select {
	case r := <-done:
		require.True(t, r.OK(), "commit failed: %v", r.Err)
		assert.False(t, r.At.IsZero())
	case <-time.After(5 * time.Second):
		t.Fatal("commit was never acknowledged")
	}

	again, err := s.Get(ctx)
	require.NoError(t, err)
	v, _ = again.Authorization()
	assert.Equal(t, "Bearer NEW", v)

	// Back-to-back commits land in call order.
	const n = 20
	acks := make(chan CommitResult, n)
	for i := 0; i < n; i++ {
		next := again.Clone()
		next.SetBearer(fmt.Sprintf("T%d", i))
		s.Set(ctx, next, func(r CommitResult) { acks <- r })
	}
	for i := 0; i < n; i++ {
		select {
		case r := <-acks:
			require.NoError(t, r.Err)
		case <-time.After(5 * time.Second):
			t.Fatal("commit was never acknowledged")
		}
	}
	last, err := s.Get(ctx)
	require.NoError(t, err)
	v, _ = last.Authorization()
	assert.Equal(t, fmt.Sprintf("Bearer T%d", n-1), v)
}

func TestMemoryStore(t *testing.T) {
	s, err := NewMemoryStore(nil)
	require.NoError(t, err)
	storeContract(t, s)
}

func TestMemoryStoreInitial(t *testing.T) {
	s, err := NewMemoryStore(sampleConfig(t))
	require.NoError(t, err)
	got, err := s.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://x/refresh?x=1", got.Extras.RefreshURL)
}

func TestFSStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	storeContract(t, NewFSStore(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	dirInfo, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), dirInfo.Mode().Perm())
}

func TestFSStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0600))

	_, err := NewFSStore(path).Get(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestBoltStore(t *testing.T) {
	s, err := OpenBoltStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer s.Close()
	storeContract(t, s)
}

func TestRedisStore(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisStore(rdb, "")
	storeContract(t, s)

	assert.True(t, mr.Exists(DefaultRedisKey))
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	s := NewRedisStore(rdb, "custom:key")
	mr.Close()

	_, err = s.Get(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))

	err = SetSync(context.Background(), s, sampleConfig(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to store configuration in redis")
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryStore(nil)
	require.NoError(t, err)

	wrote, err := Seed(ctx, s, sampleConfig(t))
	require.NoError(t, err)
	assert.True(t, wrote)

	other := sampleConfig(t)
	other.Extras.RefreshURL = "https://other"
	wrote, err = Seed(ctx, s, other)
	require.NoError(t, err)
	assert.False(t, wrote)

	got, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://x/refresh?x=1", got.Extras.RefreshURL)
}

type blockingStore struct{}

func (blockingStore) Get(context.Context) (*Configuration, error) { return nil, ErrNotFound }
func (blockingStore) Set(context.Context, *Configuration, func(CommitResult)) {}

func TestSetSyncHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := SetSync(ctx, blockingStore{}, sampleConfig(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestDefaultPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/test-config")
	assert.Equal(t, "/tmp/test-config/bggeo-refresher/state.json", DefaultStatePath())
	assert.Equal(t, "/tmp/test-config/bggeo-refresher/state.db", DefaultBoltPath())
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "exists.json")
	require.NoError(t, os.WriteFile(existing, []byte("{}"), 0600))

	assert.True(t, FileExists(existing))
	assert.False(t, FileExists(filepath.Join(dir, "missing.json")))
}
