package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"offersync/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverStore writes to primary until it fails, then serves from fallback
// and retries primary once per recoveryInterval.
type FailoverStore struct {
	primary  domain.KVStore
	fallback domain.KVStore
	logger   *zerolog.Logger
	isDown   atomic.Bool

	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverStore(primary, fallback domain.KVStore, logger *zerolog.Logger) *FailoverStore {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverStore) markDown(err error, op string) {
	r.logger.Error().Err(err).Str("op", op).Msg("Primary store failed, falling back to memory")
	r.isDown.Store(true)
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

// shouldProbe reports whether a down primary is due for another attempt.
func (r *FailoverStore) shouldProbe() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastCheck) <= recoveryInterval {
		return false
	}
	r.lastCheck = time.Now()
	return true
}

func (r *FailoverStore) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	if r.shouldProbe() {
		r.logger.Info().Msg("Retrying primary store")
		return true
	}
	return false
}

func (r *FailoverStore) Get(ctx context.Context, key string) ([]byte, error) {
	if r.usePrimary() {
		val, err := r.primary.Get(ctx, key)
		if err == nil {
			r.isDown.Store(false)
			return val, nil
		}
		r.markDown(err, "get")
	}

	return r.fallback.Get(ctx, key)
}

func (r *FailoverStore) Set(ctx context.Context, key string, value []byte) error {
	if r.usePrimary() {
		err := r.primary.Set(ctx, key, value)
		if err == nil {
			r.isDown.Store(false)
			return nil
		}
		r.markDown(err, "set")
	}

	return r.fallback.Set(ctx, key, value)
}

func (r *FailoverStore) Delete(ctx context.Context, key string) error {
	if r.usePrimary() {
		err := r.primary.Delete(ctx, key)
		if err == nil {
			r.isDown.Store(false)
			return nil
		}
		r.markDown(err, "delete")
	}

	return r.fallback.Delete(ctx, key)
}
