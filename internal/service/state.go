package service

import (
	"context"
	"time"

	"umbrella/internal/domain"

	"github.com/rs/zerolog"
)

// StateService wraps the shared request state: per-user rate limits and
// idempotency keys for replayed requests. Repository failures never block a
// request; they are logged and treated as "allowed" / "not seen".
type StateService struct {
	stateRepo domain.StateRepository
	limit     int
	window    time.Duration
	ttl       time.Duration
	logger    *zerolog.Logger
}

func NewStateService(stateRepo domain.StateRepository, limit int, window, ttl time.Duration, logger *zerolog.Logger) *StateService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &StateService{
		stateRepo: stateRepo,
		limit:     limit,
		window:    window,
		ttl:       ttl,
		logger:    logger,
	}
}

// AllowUser counts one mutating request for userID.
func (s *StateService) AllowUser(ctx context.Context, userID string) bool {
	if s.stateRepo == nil || s.limit <= 0 || userID == "" {
		return true
	}
	allowed, err := s.stateRepo.CheckRateLimit(ctx, "user:"+userID, s.limit, s.window)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("failed to check rate limit")
		return true
	}
	return allowed
}

// LookupResponse returns the response stored for an idempotency key.
func (s *StateService) LookupResponse(ctx context.Context, key string) (string, bool) {
	if s.stateRepo == nil || key == "" {
		return "", false
	}
	val, ok, err := s.stateRepo.GetIdempotencyKey(ctx, key)
	if err != nil {
		s.logger.Error().Err(err).Str("idempotency_key", key).Msg("failed to read idempotency key")
		return "", false
	}
	return val, ok
}

func (s *StateService) RememberResponse(ctx context.Context, key, value string) {
	if s.stateRepo == nil || key == "" {
		return
	}
	if err := s.stateRepo.SetIdempotencyKey(ctx, key, value, s.ttl); err != nil {
		s.logger.Error().Err(err).Str("idempotency_key", key).Msg("failed to store idempotency key")
	}
}
