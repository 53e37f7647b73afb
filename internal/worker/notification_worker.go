package worker

import (
	"context"
	"errors"
	"time"

	"umbrella/internal/domain"
	"umbrella/internal/logging"
	"umbrella/internal/metrics"
	"umbrella/internal/models"

	"github.com/rs/zerolog"
)

var ErrQueueFull = errors.New("notification queue is full")

// NotificationWorker delivers composed messages off the request path,
// retrying with backoff and writing one audit row per message.
type NotificationWorker struct {
	sender domain.NotificationSender
	audit  domain.NotificationLog
	retry  RetryPolicy
	queue  chan domain.OutgoingMessage
	sleep  func(ctx context.Context, d time.Duration) bool
	logger *zerolog.Logger
}

var _ domain.NotificationQueue = (*NotificationWorker)(nil)

func NewNotificationWorker(
	sender domain.NotificationSender,
	audit domain.NotificationLog,
	retry RetryPolicy,
	queueSize int,
	logger *zerolog.Logger,
) *NotificationWorker {
	if queueSize <= 0 {
		queueSize = models.WorkerQueueSize
	}
	return &NotificationWorker{
		sender: sender,
		audit:  audit,
		retry:  retry.withDefaults(),
		queue:  make(chan domain.OutgoingMessage, queueSize),
		sleep:  sleepCtx,
		logger: logging.Component(logger, "notification_worker"),
	}
}

// Enqueue never blocks the caller; a full queue drops the message.
func (w *NotificationWorker) Enqueue(ctx context.Context, msg domain.OutgoingMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case w.queue <- msg:
		return nil
	default:
		w.logger.Warn().Str("type", msg.Type).Int64("rental_id", msg.RentalID).Msg("Notification queue full, message dropped")
		metrics.IncNotification(msg.Type, "dropped")
		return ErrQueueFull
	}
}

// Start processes the queue until ctx is done.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("Notification worker started")
	defer w.logger.Info().Int("pending", len(w.queue)).Msg("Notification worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-w.queue:
			w.deliver(ctx, msg)
		}
	}
}

func (w *NotificationWorker) deliver(ctx context.Context, msg domain.OutgoingMessage) {
	var res domain.SendResult
	lastErr := w.retry.Do(ctx, w.sleep,
		func(int) error {
			var err error
			res, err = w.sender.Send(ctx, msg.Phone, msg.Text)
			return err
		},
		func(attempt int, err error) {
			w.logger.Warn().Err(err).
				Int("attempt", attempt).
				Str("type", msg.Type).
				Int64("rental_id", msg.RentalID).
				Msg("Notification delivery failed")
		},
	)

	n := &models.Notification{
		UserID:   msg.UserID,
		RentalID: msg.RentalID,
		Phone:    msg.Phone,
		Message:  msg.Text,
		Type:     msg.Type,
		Link:     res.URL,
		Status:   models.NotificationStatusSent,
		SentAt:   time.Now(),
	}
	switch {
	case lastErr != nil:
		reason := lastErr.Error()
		n.Status = models.NotificationStatusFailed
		n.Error = &reason
	case !res.Delivered:
		reason := res.Reason
		if reason == "" {
			reason = "not delivered by any channel"
		}
		n.Status = models.NotificationStatusSkipped
		n.Error = &reason
	}
	metrics.IncNotification(msg.Type, n.Status)

	if w.audit == nil {
		return
	}
	// audit rows are written even after shutdown started
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := w.audit.LogNotification(auditCtx, n); err != nil {
		w.logger.Error().Err(err).Int64("rental_id", msg.RentalID).Msg("Failed to write notification log")
	}
}
