package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"umbrella/internal/domain"
	"umbrella/internal/models"

	"github.com/google/uuid"
)

const userColumns = `id, name, phone, balance, created_at, updated_at`

func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Balance < 0 {
		return fmt.Errorf("%w: negative opening balance", domain.ErrInvalidAmount)
	}
	now := time.Now().UTC()
	query := `INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		user.ID,
		strings.TrimSpace(user.Name),
		user.Phone,
		user.Balance,
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: user %s already exists", domain.ErrInvalidArgument, user.ID)
		}
		return domain.StoreError("create user", err)
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (db *DB) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return getUser(ctx, db, userID)
}

func (t *rentalTx) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return getUser(ctx, t.tx, userID)
}

func getUser(ctx context.Context, q querier, userID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	var user models.User
	err := q.QueryRowContext(ctx, query, userID).Scan(
		&user.ID, &user.Name, &user.Phone, &user.Balance, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUserNotFound, userID)
	}
	if err != nil {
		return nil, domain.StoreError("get user", err)
	}
	return &user, nil
}

// AdjustBalance applies delta with a single conditional update, so two
// concurrent debits can never both pass a stale balance check.
func (t *rentalTx) AdjustBalance(ctx context.Context, userID string, delta int64) (int64, error) {
	query := `UPDATE users SET balance = balance + ?, updated_at = ?
              WHERE id = ? AND balance + ? >= 0
              RETURNING balance`
	var balance int64
	err := t.tx.QueryRowContext(ctx, query, delta, time.Now().UTC(), userID, delta).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		if isCheckViolation(err) {
			return 0, domain.ErrInsufficientBalance
		}
		return 0, domain.StoreError("adjust balance", err)
	}

	// nothing updated: either the user is missing or the balance is too low
	if _, err := getUser(ctx, t.tx, userID); err != nil {
		return 0, err
	}
	return 0, domain.ErrInsufficientBalance
}
