package database

import (
	"context"
	"database/sql"
	"time"

	"umbrella/internal/domain"
	"umbrella/internal/models"
)

var _ domain.NotificationLog = (*DB)(nil)

func (db *DB) LogNotification(ctx context.Context, n *models.Notification) error {
	if n.SentAt.IsZero() {
		n.SentAt = time.Now()
	}
	var rentalID sql.NullInt64
	if n.RentalID > 0 {
		rentalID = sql.NullInt64{Int64: n.RentalID, Valid: true}
	}

	query := `INSERT INTO wa_notifications (user_id, rental_id, phone, message, type, link, status, error, sent_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query,
		n.UserID,
		rentalID,
		n.Phone,
		n.Message,
		n.Type,
		n.Link,
		n.Status,
		n.Error,
		n.SentAt.UTC(),
	)
	if err != nil {
		return domain.StoreError("log notification", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return domain.StoreError("get last insert id", err)
	}
	n.ID = id
	return nil
}

func (db *DB) GetRentalNotifications(ctx context.Context, rentalID int64) ([]*models.Notification, error) {
	query := `SELECT id, user_id, rental_id, phone, message, type, link, status, error, sent_at
              FROM wa_notifications WHERE rental_id = ? ORDER BY sent_at, id`
	rows, err := db.QueryContext(ctx, query, rentalID)
	if err != nil {
		return nil, domain.StoreError("get notifications", err)
	}
	defer rows.Close()

	out := make([]*models.Notification, 0)
	for rows.Next() {
		var (
			n        models.Notification
			rental   sql.NullInt64
			link     sql.NullString
			errorMsg sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.UserID, &rental, &n.Phone, &n.Message, &n.Type, &link, &n.Status, &errorMsg, &n.SentAt); err != nil {
			return nil, domain.StoreError("scan notification", err)
		}
		n.RentalID = rental.Int64
		n.Link = link.String
		if errorMsg.Valid {
			msg := errorMsg.String
			n.Error = &msg
		}
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StoreError("get notifications", err)
	}
	return out, nil
}
