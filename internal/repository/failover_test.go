package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func (m *mockRepo) GetIdempotencyKey(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *mockRepo) SetIdempotencyKey(ctx context.Context, key, value string, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func TestFailoverStateRepository(t *testing.T) {
	primary := new(mockRepo)
	fallback := new(mockRepo)
	logger := zerolog.New(io.Discard)
	repo := NewFailoverStateRepository(primary, fallback, &logger)
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("CheckRateLimit", ctx, "user:1", 10, time.Minute).Return(true, nil).Once()

		allowed, err := repo.CheckRateLimit(ctx, "user:1", 10, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		primary.On("GetIdempotencyKey", ctx, "req-2").Return("", false, errors.New("fail")).Once()
		fallback.On("GetIdempotencyKey", ctx, "req-2").Return("7", true, nil).Once()

		val, ok, err := repo.GetIdempotencyKey(ctx, "req-2")
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "7", val)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("AlreadyDownSkipsPrimary", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck = time.Now()
		fallback.On("SetIdempotencyKey", ctx, "req-3", "v", time.Hour).Return(nil).Once()

		assert.NoError(t, repo.SetIdempotencyKey(ctx, "req-3", "v", time.Hour))
		fallback.AssertExpectations(t)
		primary.AssertNotCalled(t, "SetIdempotencyKey", ctx, "req-3", "v", time.Hour)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck = time.Now().Add(-2 * time.Minute)
		primary.On("CheckRateLimit", ctx, "user:3", 10, time.Minute).Return(true, nil).Once()

		allowed, err := repo.CheckRateLimit(ctx, "user:3", 10, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		assert.False(t, repo.isDown.Load())
		primary.AssertExpectations(t)
	})

	t.Run("RecoveryAttemptFail", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck = time.Now().Add(-2 * time.Minute)
		primary.On("CheckRateLimit", ctx, "user:33", 10, time.Minute).Return(false, errors.New("still fail")).Once()
		fallback.On("CheckRateLimit", ctx, "user:33", 10, time.Minute).Return(true, nil).Once()

		allowed, err := repo.CheckRateLimit(ctx, "user:33", 10, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("SetKeyFailover", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("SetIdempotencyKey", ctx, "req-4", "v", time.Hour).Return(errors.New("fail")).Once()
		fallback.On("SetIdempotencyKey", ctx, "req-4", "v", time.Hour).Return(nil).Once()

		assert.NoError(t, repo.SetIdempotencyKey(ctx, "req-4", "v", time.Hour))
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})
}

func TestFailoverWithMemoryFallback(t *testing.T) {
	primary := new(mockRepo)
	repo := NewFailoverStateRepository(primary, NewMemoryStateRepository(), nil)
	ctx := context.Background()

	primary.On("CheckRateLimit", ctx, "user:9", 1, time.Minute).Return(false, errors.New("redis down")).Once()

	allowed, err := repo.CheckRateLimit(ctx, "user:9", 1, time.Minute)
	assert.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = repo.CheckRateLimit(ctx, "user:9", 1, time.Minute)
	assert.NoError(t, err)
	assert.False(t, allowed)
	primary.AssertExpectations(t)
}
