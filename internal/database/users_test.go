package database

import (
	"context"
	"testing"

	"umbrella/internal/domain"
	"umbrella/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGetUser(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	user := &models.User{Name: " Siti Rahma ", Phone: "0812", Balance: 10000}
	require.NoError(t, db.CreateUser(ctx, user))
	assert.NotEmpty(t, user.ID)
	assert.False(t, user.CreatedAt.IsZero())

	got, err := db.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Siti Rahma", got.Name)
	assert.Equal(t, "0812", got.Phone)
	assert.Equal(t, int64(10000), got.Balance)

	err = db.CreateUser(ctx, &models.User{ID: user.ID, Name: "dup"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	err = db.CreateUser(ctx, &models.User{Name: "neg", Balance: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = db.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestAdjustBalance(t *testing.T) {
	db := setupTestDB(t)
	user, _ := seedUserAndSpot(t, db, 5000)
	ctx := context.Background()

	adjust := func(userID string, delta int64) (int64, error) {
		var balance int64
		err := db.WithTx(ctx, func(tx domain.Tx) error {
			var err error
			balance, err = tx.AdjustBalance(ctx, userID, delta)
			return err
		})
		return balance, err
	}

	balance, err := adjust(user.ID, -2000)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), balance)

	balance, err = adjust(user.ID, 10000)
	require.NoError(t, err)
	assert.Equal(t, int64(13000), balance)

	_, err = adjust(user.ID, -13001)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	balance, err = adjust(user.ID, -13000)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	_, err = adjust("missing", 1000)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	got, err := db.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Balance)
}
