package database

import (
	"context"
	"testing"

	"umbrella/internal/domain"
	"umbrella/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncSpots(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	spots := []*models.RentalSpot{
		{ID: "gerbang-sbm", Name: "Gerbang SBM", UmbrellaCount: 10, Latitude: -6.8915, Longitude: 107.6107},
		{ID: "campus-center", Name: "Campus Center", UmbrellaCount: 15},
		{ID: "labtek-v", Name: "Labtek V", UmbrellaCount: 12},
	}
	require.NoError(t, db.SyncSpots(ctx, spots))

	list, err := db.ListSpots(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "gerbang-sbm", list[0].ID)
	assert.Equal(t, "campus-center", list[1].ID)
	assert.Equal(t, "labtek-v", list[2].ID)
	assert.InDelta(t, -6.8915, list[0].Latitude, 1e-9)

	spots[1].UmbrellaCount = 20
	require.NoError(t, db.SyncSpots(ctx, spots))

	got, err := db.GetSpot(ctx, "campus-center")
	require.NoError(t, err)
	assert.Equal(t, int64(20), got.UmbrellaCount)

	_, err = db.GetSpot(ctx, "unknown")
	assert.ErrorIs(t, err, domain.ErrSpotNotFound)
}

func TestUpsertSpot_Validation(t *testing.T) {
	db := setupTestDB(t)
	err := db.UpsertSpot(context.Background(), &models.RentalSpot{ID: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
