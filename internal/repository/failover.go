package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"umbrella/internal/domain"

	"github.com/rs/zerolog"
)

// FailoverStateRepository uses the primary until a call fails, then serves
// from the fallback and probes the primary again after retryAfter.
type FailoverStateRepository struct {
	primary    domain.StateRepository
	fallback   domain.StateRepository
	logger     *zerolog.Logger
	isDown     atomic.Bool
	mu         sync.Mutex
	lastCheck  time.Time
	retryAfter time.Duration
}

var _ domain.StateRepository = (*FailoverStateRepository)(nil)

func NewFailoverStateRepository(primary, fallback domain.StateRepository, logger *zerolog.Logger) *FailoverStateRepository {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverStateRepository{
		primary:    primary,
		fallback:   fallback,
		logger:     logger,
		retryAfter: time.Minute,
	}
}

// usePrimary reports whether the next call should go to the primary.
func (r *FailoverStateRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastCheck) > r.retryAfter {
		r.lastCheck = time.Now()
		return true
	}
	return false
}

func (r *FailoverStateRepository) markResult(err error) {
	if err == nil {
		if r.isDown.Swap(false) {
			r.logger.Info().Msg("Primary state repository recovered")
		}
		return
	}
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary state repository failed, falling back to memory")
	}
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

func (r *FailoverStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		r.markResult(err)
		if err == nil {
			return allowed, nil
		}
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}

func (r *FailoverStateRepository) GetIdempotencyKey(ctx context.Context, key string) (string, bool, error) {
	if r.usePrimary() {
		val, ok, err := r.primary.GetIdempotencyKey(ctx, key)
		r.markResult(err)
		if err == nil {
			return val, ok, nil
		}
	}
	return r.fallback.GetIdempotencyKey(ctx, key)
}

func (r *FailoverStateRepository) SetIdempotencyKey(ctx context.Context, key, value string, ttl time.Duration) error {
	if r.usePrimary() {
		err := r.primary.SetIdempotencyKey(ctx, key, value, ttl)
		r.markResult(err)
		if err == nil {
			return nil
		}
	}
	return r.fallback.SetIdempotencyKey(ctx, key, value, ttl)
}
