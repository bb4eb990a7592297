package repository

import (
	"context"
	"sync"
)

// MemoryStore keeps values in process memory. It does not survive restarts
// and serves as the failover target and as the store for tests.
type MemoryStore struct {
	values sync.Map
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (r *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, ok := r.values.Load(key)
	if !ok {
		return nil, nil
	}
	stored := val.([]byte)
	out := make([]byte, len(stored))
	copy(out, stored)
	return out, nil
}

func (r *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	r.values.Store(key, stored)
	return nil
}

func (r *MemoryStore) Delete(ctx context.Context, key string) error {
	r.values.Delete(key)
	return nil
}
