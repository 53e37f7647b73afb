package repository

import (
	"context"
	"sync"
	"time"

	"umbrella/internal/domain"
)

// MemoryStateRepository keeps limiter and idempotency state in process. It
// backs the Redis repository when Redis is down or not configured.
type MemoryStateRepository struct {
	mu         sync.Mutex
	rateLimits map[string]*rateLimitEntry
	keys       map[string]idempotencyEntry
	now        func() time.Time
}

var _ domain.StateRepository = (*MemoryStateRepository)(nil)

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

type idempotencyEntry struct {
	value     string
	expiresAt time.Time
}

func NewMemoryStateRepository() *MemoryStateRepository {
	return &MemoryStateRepository{
		rateLimits: make(map[string]*rateLimitEntry),
		keys:       make(map[string]idempotencyEntry),
		now:        time.Now,
	}
}

func (r *MemoryStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.rateLimits[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.rateLimits[key] = entry
	}
	entry.count++
	return entry.count <= limit, nil
}

func (r *MemoryStateRepository) GetIdempotencyKey(ctx context.Context, key string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.keys[key]
	if !ok {
		return "", false, nil
	}
	if r.now().After(entry.expiresAt) {
		delete(r.keys, key)
		return "", false, nil
	}
	return entry.value, true, nil
}

func (r *MemoryStateRepository) SetIdempotencyKey(ctx context.Context, key, value string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.keys[key] = idempotencyEntry{value: value, expiresAt: r.now().Add(ttl)}
	return nil
}

// StartSweeper calls Sweep every interval until ctx is done.
func (r *MemoryStateRepository) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweep drops expired entries.
func (r *MemoryStateRepository) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for k, e := range r.rateLimits {
		if now.After(e.expiresAt) {
			delete(r.rateLimits, k)
			removed++
		}
	}
	for k, e := range r.keys {
		if now.After(e.expiresAt) {
			delete(r.keys, k)
			removed++
		}
	}
	return removed
}
