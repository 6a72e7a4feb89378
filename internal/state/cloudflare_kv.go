//go:build js && wasm

package state

import (
	"context"
	"fmt"
	"time"

	"github.com/syumai/workers/cloudflare/kv"
)

const (
	// KVNamespace is the binding name configured in wrangler.toml.
	KVNamespace = "bggeo_refresher_kv"
	kvKey       = "bggeo_config"
)

// KVStore keeps the configuration in Cloudflare Workers KV.
type KVStore struct {
	kvStore *kv.Namespace
}

func NewKVStore() (*KVStore, error) {
	kvStore, err := kv.NewNamespace(KVNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize KV namespace: %w", err)
	}
	return &KVStore{kvStore: kvStore}, nil
}

func (k *KVStore) Get(ctx context.Context) (*Configuration, error) {
	raw, err := k.kvStore.GetString(kvKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get configuration from KV: %w", err)
	}
	if raw == "" {
		return nil, ErrNotFound
	}
	return Decode([]byte(raw))
}

// Set writes synchronously: a Worker may be torn down once the request that
// triggered the refresh finishes, so the write cannot outlive the call.
func (k *KVStore) Set(ctx context.Context, cfg *Configuration, done func(CommitResult)) {
	if done == nil {
		done = func(CommitResult) {}
	}
	data, err := Encode(cfg)
	if err == nil {
		err = k.kvStore.PutString(kvKey, string(data), nil)
		if err != nil {
			err = fmt.Errorf("failed to store configuration in KV: %w", err)
		}
	}
	done(CommitResult{Err: err, At: time.Now()})
}
