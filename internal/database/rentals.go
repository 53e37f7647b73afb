package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"umbrella/internal/domain"
	"umbrella/internal/models"
)

const rentalColumns = `id, user_id, spot_id, start_time, end_time, allowed_duration_hours,
                       active, extra_charge, price, payment_method, reminded_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRental(row rowScanner) (*models.Rental, error) {
	var (
		r          models.Rental
		endTime    sql.NullTime
		remindedAt sql.NullTime
		method     string
	)
	err := row.Scan(
		&r.ID, &r.UserID, &r.SpotID, &r.StartTime, &endTime, &r.AllowedDurationHours,
		&r.Active, &r.ExtraCharge, &r.Price, &method, &remindedAt,
	)
	if err != nil {
		return nil, err
	}
	r.PaymentMethod = models.PaymentMethod(method)
	if endTime.Valid {
		t := endTime.Time
		r.EndTime = &t
	}
	if remindedAt.Valid {
		t := remindedAt.Time
		r.RemindedAt = &t
	}
	return &r, nil
}

func queryRentals(ctx context.Context, q querier, op, query string, args ...interface{}) ([]*models.Rental, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.StoreError(op, err)
	}
	defer rows.Close()

	rentals := make([]*models.Rental, 0)
	for rows.Next() {
		r, err := scanRental(rows)
		if err != nil {
			return nil, domain.StoreError(op, err)
		}
		rentals = append(rentals, r)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StoreError(op, err)
	}
	return rentals, nil
}

func getRental(ctx context.Context, q querier, id int64) (*models.Rental, error) {
	query := `SELECT ` + rentalColumns + ` FROM rentals WHERE id = ?`
	r, err := scanRental(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", domain.ErrRentalNotFound, id)
	}
	if err != nil {
		return nil, domain.StoreError("get rental", err)
	}
	return r, nil
}

func getActiveRental(ctx context.Context, q querier, userID string) (*models.Rental, error) {
	query := `SELECT ` + rentalColumns + ` FROM rentals WHERE user_id = ? AND active = 1`
	r, err := scanRental(q.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.StoreError("get active rental", err)
	}
	return r, nil
}

func (db *DB) GetRental(ctx context.Context, id int64) (*models.Rental, error) {
	return getRental(ctx, db, id)
}

func (t *rentalTx) GetRental(ctx context.Context, id int64) (*models.Rental, error) {
	return getRental(ctx, t.tx, id)
}

func (db *DB) GetActiveRental(ctx context.Context, userID string) (*models.Rental, error) {
	return getActiveRental(ctx, db, userID)
}

func (t *rentalTx) GetActiveRental(ctx context.Context, userID string) (*models.Rental, error) {
	return getActiveRental(ctx, t.tx, userID)
}

// CreateRental inserts an active rental. The partial unique index on active
// rentals turns a concurrent second start into ErrRentalAlreadyActive.
func (t *rentalTx) CreateRental(ctx context.Context, r *models.Rental) error {
	if !r.Active || r.EndTime != nil {
		return fmt.Errorf("%w: new rental must be active", domain.ErrInvalidArgument)
	}
	query := `INSERT INTO rentals (
				user_id, spot_id, start_time, end_time, allowed_duration_hours,
				active, extra_charge, price, payment_method, reminded_at
			) VALUES (?, ?, ?, NULL, ?, 1, 0, ?, ?, NULL)`
	result, err := t.tx.ExecContext(ctx, query,
		r.UserID,
		r.SpotID,
		r.StartTime.UTC(),
		r.AllowedDurationHours,
		r.Price,
		string(r.PaymentMethod),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrRentalAlreadyActive
		}
		return domain.StoreError("create rental", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return domain.StoreError("get last insert id", err)
	}
	r.ID = id
	r.ExtraCharge = 0
	return nil
}

// UpdateRental writes the end of a rental. The update only matches a row
// that is still active, so a rental cannot be ended twice.
func (t *rentalTx) UpdateRental(ctx context.Context, r *models.Rental) error {
	if r.Active || r.EndTime == nil {
		return fmt.Errorf("%w: rental %d has no end", domain.ErrInvalidArgument, r.ID)
	}
	query := `UPDATE rentals SET end_time = ?, active = 0, extra_charge = ?
              WHERE id = ? AND active = 1`
	result, err := t.tx.ExecContext(ctx, query, r.EndTime.UTC(), r.ExtraCharge, r.ID)
	if err != nil {
		return domain.StoreError("update rental", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return domain.StoreError("update rental", err)
	}
	if rows == 0 {
		return domain.ErrRentalNotActive
	}
	return nil
}

// GetUserRentals returns the newest rentals of a user first.
func (db *DB) GetUserRentals(ctx context.Context, userID string, limit int) ([]*models.Rental, error) {
	if limit <= 0 {
		limit = models.DefaultHistoryLimit
	}
	query := `SELECT ` + rentalColumns + ` FROM rentals
              WHERE user_id = ?
              ORDER BY start_time DESC, id DESC LIMIT ?`
	return queryRentals(ctx, db, "get user rentals", query, userID, limit)
}

// GetRentalsByRange returns rentals started in [from, to).
func (db *DB) GetRentalsByRange(ctx context.Context, from, to time.Time) ([]*models.Rental, error) {
	query := `SELECT ` + rentalColumns + ` FROM rentals
              WHERE start_time >= ? AND start_time < ?
              ORDER BY start_time, id`
	return queryRentals(ctx, db, "get rentals by range", query, from.UTC(), to.UTC())
}

// GetRentalsDueForReminder returns active, not yet reminded rentals whose
// deadline is at or before deadlineBefore.
func (db *DB) GetRentalsDueForReminder(ctx context.Context, deadlineBefore time.Time) ([]*models.Rental, error) {
	query := `SELECT ` + rentalColumns + ` FROM rentals
              WHERE active = 1 AND reminded_at IS NULL
              ORDER BY start_time`
	active, err := queryRentals(ctx, db, "get rentals due for reminder", query)
	if err != nil {
		return nil, err
	}

	due := make([]*models.Rental, 0, len(active))
	for _, r := range active {
		if !r.Deadline().After(deadlineBefore) {
			due = append(due, r)
		}
	}
	return due, nil
}

// MarkReminded claims the reminder of a rental. It reports false when the
// rental was already reminded or has ended.
func (db *DB) MarkReminded(ctx context.Context, rentalID int64, at time.Time) (bool, error) {
	query := `UPDATE rentals SET reminded_at = ?
              WHERE id = ? AND active = 1 AND reminded_at IS NULL`
	result, err := db.ExecContext(ctx, query, at.UTC(), rentalID)
	if err != nil {
		return false, domain.StoreError("mark reminded", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, domain.StoreError("mark reminded", err)
	}
	return rows == 1, nil
}
