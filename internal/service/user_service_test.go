package service

import (
	"context"
	"testing"

	"umbrella/internal/domain"
	"umbrella/internal/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserService_Register(t *testing.T) {
	f := newFixture(t, ":memory:")
	ctx := context.Background()

	u, err := f.users.RegisterUser(ctx, "  Siti Rahma ", "0812-9876-5432")
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "Siti Rahma", u.Name)
	assert.Equal(t, int64(0), u.Balance)

	got, err := f.users.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = f.users.RegisterUser(ctx, " ", "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = f.users.GetUser(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestUserService_TopUp(t *testing.T) {
	f := newFixture(t, ":memory:")
	u := f.user(t, 1000)
	ctx := context.Background()

	balance, err := f.users.TopUp(ctx, u.ID, 10000)
	require.NoError(t, err)
	assert.Equal(t, int64(11000), balance)
	assert.Equal(t, int64(11000), f.balance(t, u.ID))
	assert.Equal(t, []string{events.EventBalanceToppedUp}, f.events.Types())
	assert.Equal(t, int32(1), f.metrics.topUps)

	_, err = f.users.TopUp(ctx, u.ID, 7000)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.users.TopUp(ctx, "ghost", 5000)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	assert.Equal(t, int64(11000), f.balance(t, u.ID))
	assert.Equal(t, []int64{5000, 10000, 20000, 50000}, f.users.TopUpOptions())
}
