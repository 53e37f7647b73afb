package models

import "time"

const (
	NotificationRentalStart = "rental_start"
	NotificationReminder    = "reminder"
	NotificationReceipt     = "receipt"
)

const (
	NotificationStatusSent    = "sent"
	NotificationStatusFailed  = "failed"
	NotificationStatusSkipped = "skipped"
)

// Notification is one audit log row for an outgoing message.
type Notification struct {
	ID       int64     `json:"id"`
	UserID   string    `json:"user_id"`
	RentalID int64     `json:"rental_id"`
	Phone    string    `json:"phone"`
	Message  string    `json:"message"`
	Type     string    `json:"type"`
	Link     string    `json:"link,omitempty"`
	Status   string    `json:"status"`
	Error    *string   `json:"error,omitempty"`
	SentAt   time.Time `json:"sent_at"`
}
