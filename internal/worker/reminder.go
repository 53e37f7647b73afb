package worker

import (
	"context"
	"math"
	"time"

	"umbrella/internal/domain"
	"umbrella/internal/events"
	"umbrella/internal/logging"
	"umbrella/internal/models"
	"umbrella/internal/notify"

	"github.com/rs/zerolog"
)

type ReminderConfig struct {
	Lead        time.Duration
	Interval    time.Duration
	OverageRate int64
	Location    *time.Location
}

// ReminderScheduler warns users shortly before their rental runs out.
// Each rental is reminded at most once.
type ReminderScheduler struct {
	store  domain.RentalStore
	queue  domain.NotificationQueue
	events domain.EventPublisher
	clock  domain.Clock
	cfg    ReminderConfig
	logger *zerolog.Logger
}

func NewReminderScheduler(
	store domain.RentalStore,
	queue domain.NotificationQueue,
	publisher domain.EventPublisher,
	clock domain.Clock,
	cfg ReminderConfig,
	logger *zerolog.Logger,
) *ReminderScheduler {
	if cfg.Lead <= 0 {
		cfg.Lead = models.DefaultReminderLeadMinutes * time.Minute
	}
	if cfg.Interval <= 0 {
		cfg.Interval = models.DefaultReminderIntervalSeconds * time.Second
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &ReminderScheduler{
		store:  store,
		queue:  queue,
		events: publisher,
		clock:  clock,
		cfg:    cfg,
		logger: logging.Component(logger, "reminder"),
	}
}

func (s *ReminderScheduler) Start(ctx context.Context) {
	s.logger.Info().Dur("lead", s.cfg.Lead).Dur("interval", s.cfg.Interval).Msg("Reminder scheduler started")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Reminder scan failed")
		}
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Reminder scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce scans for rentals due within the lead time and enqueues their
// reminders. It returns how many reminders were enqueued.
func (s *ReminderScheduler) RunOnce(ctx context.Context) (int, error) {
	now := s.clock.Now()
	due, err := s.store.GetRentalsDueForReminder(ctx, now.Add(s.cfg.Lead))
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, r := range due {
		claimed, err := s.store.MarkReminded(ctx, r.ID, now)
		if err != nil {
			s.logger.Error().Err(err).Int64("rental_id", r.ID).Msg("Failed to claim reminder")
			continue
		}
		if !claimed {
			continue
		}

		remaining := r.Deadline().Sub(now)
		if remaining <= 0 {
			// missed the window; the receipt will carry the fine
			s.logger.Debug().Int64("rental_id", r.ID).Msg("Rental already overdue, reminder skipped")
			continue
		}

		if err := s.remind(ctx, r, remaining); err != nil {
			s.logger.Warn().Err(err).Int64("rental_id", r.ID).Msg("Reminder not enqueued")
			continue
		}
		sent++
	}
	return sent, nil
}

func (s *ReminderScheduler) remind(ctx context.Context, r *models.Rental, remaining time.Duration) error {
	user, err := s.store.GetUser(ctx, r.UserID)
	if err != nil {
		return err
	}
	spotName := r.SpotID
	if spot, err := s.store.GetSpot(ctx, r.SpotID); err == nil {
		spotName = spot.Name
	}

	text := notify.BuildReminderMessage(notify.ReminderMessage{
		UserName:    user.Name,
		SpotName:    spotName,
		EndTime:     r.Deadline(),
		LeadMinutes: int(math.Ceil(remaining.Minutes())),
		OverageRate: s.cfg.OverageRate,
		Location:    s.cfg.Location,
	})

	if s.events != nil {
		payload := events.RentalEventPayload{
			RentalID:      r.ID,
			UserID:        r.UserID,
			SpotID:        r.SpotID,
			SpotName:      spotName,
			PaymentMethod: string(r.PaymentMethod),
			DurationHours: r.AllowedDurationHours,
			Price:         r.Price,
			StartTime:     r.StartTime,
		}
		if err := s.events.PublishJSON(events.EventRentalReminded, payload); err != nil {
			s.logger.Warn().Err(err).Int64("rental_id", r.ID).Msg("Failed to publish reminder event")
		}
	}

	if s.queue == nil {
		return nil
	}
	return s.queue.Enqueue(ctx, domain.OutgoingMessage{
		UserID:   r.UserID,
		RentalID: r.ID,
		Phone:    user.Phone,
		Type:     models.NotificationReminder,
		Text:     text,
	})
}
