package domain

import (
	"context"
	"time"

	"umbrella/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Tx is one unit of work against the rental store. Everything done through
// a Tx commits or rolls back together.
type Tx interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	// AdjustBalance adds delta to the balance in a single conditional update
	// and fails with ErrInsufficientBalance if the result would be negative.
	AdjustBalance(ctx context.Context, userID string, delta int64) (int64, error)
	GetSpot(ctx context.Context, spotID string) (*models.RentalSpot, error)
	// GetActiveRental returns nil, nil when the user has no active rental.
	GetActiveRental(ctx context.Context, userID string) (*models.Rental, error)
	GetRental(ctx context.Context, id int64) (*models.Rental, error)
	CreateRental(ctx context.Context, rental *models.Rental) error
	// UpdateRental persists the end of a rental. Only an active row is updated;
	// otherwise ErrRentalNotActive.
	UpdateRental(ctx context.Context, rental *models.Rental) error
}

type RentalStore interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	GetSpot(ctx context.Context, spotID string) (*models.RentalSpot, error)
	ListSpots(ctx context.Context) ([]*models.RentalSpot, error)
	UpsertSpot(ctx context.Context, spot *models.RentalSpot) error
	GetRental(ctx context.Context, id int64) (*models.Rental, error)
	GetActiveRental(ctx context.Context, userID string) (*models.Rental, error)
	GetUserRentals(ctx context.Context, userID string, limit int) ([]*models.Rental, error)
	GetRentalsByRange(ctx context.Context, from, to time.Time) ([]*models.Rental, error)
	GetRentalsDueForReminder(ctx context.Context, deadlineBefore time.Time) ([]*models.Rental, error)
	MarkReminded(ctx context.Context, rentalID int64, at time.Time) (bool, error)
	Ping(ctx context.Context) error
}

type NotificationLog interface {
	LogNotification(ctx context.Context, n *models.Notification) error
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SendResult describes one delivery attempt.
type SendResult struct {
	Delivered bool
	URL       string
	Reason    string
}

type NotificationSender interface {
	Send(ctx context.Context, phone, text string) (SendResult, error)
}

// OutgoingMessage is a composed message waiting for delivery.
type OutgoingMessage struct {
	UserID   string
	RentalID int64
	Phone    string
	Type     string
	Text     string
}

type NotificationQueue interface {
	Enqueue(ctx context.Context, msg OutgoingMessage) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type StateRepository interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	GetIdempotencyKey(ctx context.Context, key string) (string, bool, error)
	SetIdempotencyKey(ctx context.Context, key, value string, ttl time.Duration) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramService is the part of the Bot API the operations bot uses.
type TelegramService interface {
	TelegramSender
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}

type RentalLedgerWriter interface {
	AppendRental(ctx context.Context, rental *models.Rental, spotName string) error
}

type RentalService interface {
	StartRental(ctx context.Context, req StartRequest) (*models.Rental, error)
	EndRental(ctx context.Context, rentalID int64) (*models.Rental, error)
	GetRental(ctx context.Context, rentalID int64) (*models.Rental, error)
	ActiveRental(ctx context.Context, userID string) (*models.Rental, error)
	History(ctx context.Context, userID string, limit int) ([]*models.Rental, error)
	Quote(hours int) (*Quote, error)
	Durations() []Quote
	Spots(ctx context.Context) ([]*models.RentalSpot, error)
	RentalsBetween(ctx context.Context, from, to time.Time) ([]*models.Rental, error)
}

type UserService interface {
	RegisterUser(ctx context.Context, name, phone string) (*models.User, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
	TopUp(ctx context.Context, userID string, amount int64) (int64, error)
	TopUpOptions() []int64
}

type StartRequest struct {
	UserID        string
	SpotID        string
	DurationHours int
	PaymentMethod models.PaymentMethod
}

// Quote previews what a rental of a given duration costs.
type Quote struct {
	DurationHours      int       `json:"duration_hours"`
	Price              int64     `json:"price"`
	OverageRatePerHour int64     `json:"overage_rate_per_hour"`
	Deadline           time.Time `json:"deadline"`
}
