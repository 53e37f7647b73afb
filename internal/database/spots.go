package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"umbrella/internal/domain"
	"umbrella/internal/models"
)

const spotColumns = `id, name, umbrella_count, latitude, longitude`

// SyncSpots upserts the configured spot catalogue, keeping the given order.
func (db *DB) SyncSpots(ctx context.Context, spots []*models.RentalSpot) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return domain.StoreError("begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i, spot := range spots {
		if err := upsertSpot(ctx, tx, spot, i+1); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.StoreError("commit spots", err)
	}
	db.logger.Info().Int("count", len(spots)).Msg("Rental spots synced")
	return nil
}

func (db *DB) UpsertSpot(ctx context.Context, spot *models.RentalSpot) error {
	return upsertSpot(ctx, db, spot, 0)
}

func upsertSpot(ctx context.Context, q querier, spot *models.RentalSpot, order int) error {
	if spot.ID == "" || spot.Name == "" {
		return fmt.Errorf("%w: spot id and name are required", domain.ErrInvalidArgument)
	}
	query := `INSERT INTO rental_spots (` + spotColumns + `, sort_order) VALUES (?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                name = excluded.name,
                umbrella_count = excluded.umbrella_count,
                latitude = excluded.latitude,
                longitude = excluded.longitude,
                sort_order = excluded.sort_order`
	_, err := q.ExecContext(ctx, query,
		spot.ID, spot.Name, spot.UmbrellaCount, spot.Latitude, spot.Longitude, order,
	)
	if err != nil {
		return domain.StoreError("upsert spot", err)
	}
	return nil
}

func (db *DB) GetSpot(ctx context.Context, spotID string) (*models.RentalSpot, error) {
	return getSpot(ctx, db, spotID)
}

func (t *rentalTx) GetSpot(ctx context.Context, spotID string) (*models.RentalSpot, error) {
	return getSpot(ctx, t.tx, spotID)
}

func getSpot(ctx context.Context, q querier, spotID string) (*models.RentalSpot, error) {
	query := `SELECT ` + spotColumns + ` FROM rental_spots WHERE id = ?`
	var spot models.RentalSpot
	err := q.QueryRowContext(ctx, query, spotID).Scan(
		&spot.ID, &spot.Name, &spot.UmbrellaCount, &spot.Latitude, &spot.Longitude,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrSpotNotFound, spotID)
	}
	if err != nil {
		return nil, domain.StoreError("get spot", err)
	}
	return &spot, nil
}

func (db *DB) ListSpots(ctx context.Context) ([]*models.RentalSpot, error) {
	query := `SELECT ` + spotColumns + ` FROM rental_spots ORDER BY sort_order, name`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, domain.StoreError("list spots", err)
	}
	defer rows.Close()

	spots := make([]*models.RentalSpot, 0)
	for rows.Next() {
		var spot models.RentalSpot
		if err := rows.Scan(&spot.ID, &spot.Name, &spot.UmbrellaCount, &spot.Latitude, &spot.Longitude); err != nil {
			return nil, domain.StoreError("scan spot", err)
		}
		spots = append(spots, &spot)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StoreError("list spots", err)
	}
	return spots, nil
}
