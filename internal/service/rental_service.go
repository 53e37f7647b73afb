package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"umbrella/internal/domain"
	"umbrella/internal/events"
	"umbrella/internal/ledger"
	"umbrella/internal/models"
	"umbrella/internal/notify"
	"umbrella/internal/pricing"

	"github.com/rs/zerolog"
)

// Metrics receives lifecycle outcomes. metrics.Recorder satisfies it.
type Metrics interface {
	RentalStarted(method string, price int64)
	RentalEnded(elapsed time.Duration, extraCharge int64)
	TopUp(amount int64)
	ObserveOperation(op string, d time.Duration, err error)
}

type nopMetrics struct{}

func (nopMetrics) RentalStarted(string, int64)                   {}
func (nopMetrics) RentalEnded(time.Duration, int64)              {}
func (nopMetrics) TopUp(int64)                                   {}
func (nopMetrics) ObserveOperation(string, time.Duration, error) {}

// RentalService runs the rental lifecycle: start, end, top-up and the reads
// around them. Every mutation is one store transaction; events, metrics and
// customer messages happen only after it commits.
type RentalService struct {
	store         domain.RentalStore
	pricing       *pricing.Table
	ledger        *ledger.Ledger
	clock         domain.Clock
	notifier      domain.NotificationQueue
	eventBus      domain.EventPublisher
	metrics       Metrics
	logger        *zerolog.Logger
	confirmations bool
	location      *time.Location
	historyLimit  int
}

var _ domain.RentalService = (*RentalService)(nil)

type Option func(*RentalService)

func WithNotifier(q domain.NotificationQueue) Option {
	return func(s *RentalService) { s.notifier = q }
}

func WithEvents(p domain.EventPublisher) Option {
	return func(s *RentalService) { s.eventBus = p }
}

func WithMetrics(m Metrics) Option {
	return func(s *RentalService) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithLogger(l *zerolog.Logger) Option {
	return func(s *RentalService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithConfirmations switches the start confirmation and return receipt
// messages on or off. Reminders are not affected.
func WithConfirmations(enabled bool) Option {
	return func(s *RentalService) { s.confirmations = enabled }
}

func WithLocation(loc *time.Location) Option {
	return func(s *RentalService) {
		if loc != nil {
			s.location = loc
		}
	}
}

func WithHistoryLimit(n int) Option {
	return func(s *RentalService) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

func NewRentalService(store domain.RentalStore, table *pricing.Table, l *ledger.Ledger, clock domain.Clock, opts ...Option) *RentalService {
	if table == nil {
		table = pricing.Default()
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	nop := zerolog.Nop()
	s := &RentalService{
		store:         store,
		pricing:       table,
		ledger:        l,
		clock:         clock,
		metrics:       nopMetrics{},
		logger:        &nop,
		confirmations: true,
		location:      time.UTC,
		historyLimit:  models.DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RentalService) StartRental(ctx context.Context, req domain.StartRequest) (*models.Rental, error) {
	began := time.Now()
	rental, balance, err := s.startRental(ctx, req)
	s.metrics.ObserveOperation("start_rental", time.Since(began), err)
	if err != nil {
		s.logFailure(err, "Start rental failed", req.UserID, 0)
		return nil, err
	}

	s.logger.Info().
		Int64("rental_id", rental.ID).
		Str("user_id", rental.UserID).
		Str("spot_id", rental.SpotID).
		Int("hours", rental.AllowedDurationHours).
		Str("payment_method", string(rental.PaymentMethod)).
		Msg("Rental started")

	s.metrics.RentalStarted(string(rental.PaymentMethod), rental.Price)
	user, spotName := s.lookupParties(ctx, rental)
	s.publishRental(events.EventRentalStarted, rental, spotName, balance)

	if s.confirmations && user != nil {
		s.notify(ctx, rental, user.Phone, models.NotificationRentalStart, notify.BuildRentalStartMessage(notify.StartMessage{
			UserName:    user.Name,
			SpotName:    spotName,
			Hours:       rental.AllowedDurationHours,
			Method:      rental.PaymentMethod,
			StartTime:   rental.StartTime,
			OverageRate: s.pricing.OverageRate(),
			Location:    s.location,
		}))
	}
	return rental, nil
}

func (s *RentalService) startRental(ctx context.Context, req domain.StartRequest) (*models.Rental, *int64, error) {
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.SpotID) == "" {
		return nil, nil, fmt.Errorf("%w: user and spot are required", domain.ErrInvalidArgument)
	}
	method, err := models.ParsePaymentMethod(string(req.PaymentMethod))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", domain.ErrInvalidArgument, err)
	}
	price, err := s.pricing.PriceFor(req.DurationHours)
	if err != nil {
		return nil, nil, err
	}

	var (
		rental  *models.Rental
		balance *int64
	)
	err = s.store.WithTx(ctx, func(tx domain.Tx) error {
		active, err := tx.GetActiveRental(ctx, req.UserID)
		if err != nil {
			return err
		}
		if active != nil {
			return fmt.Errorf("%w: rental %d", domain.ErrRentalAlreadyActive, active.ID)
		}
		if _, err := tx.GetSpot(ctx, req.SpotID); err != nil {
			return err
		}
		if _, err := tx.GetUser(ctx, req.UserID); err != nil {
			return err
		}

		if method.DebitsBalance() {
			left, err := s.ledger.Debit(ctx, tx, req.UserID, price)
			if err != nil {
				return err
			}
			balance = &left
		}

		rental = &models.Rental{
			UserID:               req.UserID,
			SpotID:               req.SpotID,
			StartTime:            s.clock.Now().UTC(),
			AllowedDurationHours: req.DurationHours,
			Active:               true,
			Price:                price,
			PaymentMethod:        method,
		}
		return tx.CreateRental(ctx, rental)
	})
	if err != nil {
		return nil, nil, domain.StoreError("start rental", err)
	}
	return rental, balance, nil
}

func (s *RentalService) EndRental(ctx context.Context, rentalID int64) (*models.Rental, error) {
	began := time.Now()
	rental, err := s.endRental(ctx, rentalID)
	s.metrics.ObserveOperation("end_rental", time.Since(began), err)
	if err != nil {
		s.logFailure(err, "End rental failed", "", rentalID)
		return nil, err
	}

	elapsed := rental.Elapsed(*rental.EndTime)
	s.logger.Info().
		Int64("rental_id", rental.ID).
		Str("user_id", rental.UserID).
		Dur("elapsed", elapsed).
		Int64("extra_charge", rental.ExtraCharge).
		Msg("Rental ended")

	s.metrics.RentalEnded(elapsed, rental.ExtraCharge)
	user, spotName := s.lookupParties(ctx, rental)
	s.publishRental(events.EventRentalEnded, rental, spotName, nil)

	if s.confirmations && user != nil {
		s.notify(ctx, rental, user.Phone, models.NotificationReceipt, notify.BuildReceiptMessage(notify.ReceiptMessage{
			UserName:  user.Name,
			SpotName:  spotName,
			StartTime: rental.StartTime,
			EndTime:   *rental.EndTime,
			Hours:     rental.AllowedDurationHours,
			Method:    rental.PaymentMethod,
			Fine:      rental.ExtraCharge,
			Location:  s.location,
		}))
	}
	return rental, nil
}

func (s *RentalService) endRental(ctx context.Context, rentalID int64) (*models.Rental, error) {
	if rentalID <= 0 {
		return nil, fmt.Errorf("%w: rental id %d", domain.ErrInvalidArgument, rentalID)
	}

	var rental *models.Rental
	err := s.store.WithTx(ctx, func(tx domain.Tx) error {
		r, err := tx.GetRental(ctx, rentalID)
		if errors.Is(err, domain.ErrRentalNotFound) {
			// a missing rental is not active either; both sentinels match
			return fmt.Errorf("%w: %w", domain.ErrRentalNotActive, err)
		}
		if err != nil {
			return err
		}
		if !r.Active {
			return fmt.Errorf("%w: rental %d", domain.ErrRentalNotActive, rentalID)
		}

		now := s.clock.Now().UTC()
		charge := s.pricing.OverageCharge(now.Sub(r.StartTime), r.AllowedDurationHours)
		if err := r.End(now, charge); err != nil {
			if errors.Is(err, models.ErrRentalEnded) {
				return fmt.Errorf("%w: rental %d", domain.ErrRentalNotActive, rentalID)
			}
			return err
		}
		if err := tx.UpdateRental(ctx, r); err != nil {
			return err
		}
		rental = r
		return nil
	})
	if err != nil {
		return nil, domain.StoreError("end rental", err)
	}
	return rental, nil
}

func (s *RentalService) ActiveRental(ctx context.Context, userID string) (*models.Rental, error) {
	r, err := s.store.GetActiveRental(ctx, userID)
	return r, domain.StoreError("active rental", err)
}

// History returns the user's rentals, newest first.
func (s *RentalService) History(ctx context.Context, userID string, limit int) ([]*models.Rental, error) {
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}
	rentals, err := s.store.GetUserRentals(ctx, userID, limit)
	return rentals, domain.StoreError("rental history", err)
}

// Quote previews the price and deadline of a rental starting now.
func (s *RentalService) Quote(hours int) (*domain.Quote, error) {
	price, err := s.pricing.PriceFor(hours)
	if err != nil {
		return nil, err
	}
	return &domain.Quote{
		DurationHours:      hours,
		Price:              price,
		OverageRatePerHour: s.pricing.OverageRate(),
		Deadline:           s.clock.Now().Add(time.Duration(hours) * time.Hour),
	}, nil
}

// Durations lists the offered rental lengths with their prices.
func (s *RentalService) Durations() []domain.Quote {
	hours := s.pricing.Durations()
	out := make([]domain.Quote, 0, len(hours))
	for _, h := range hours {
		if q, err := s.Quote(h); err == nil {
			out = append(out, *q)
		}
	}
	return out
}

func (s *RentalService) Spots(ctx context.Context) ([]*models.RentalSpot, error) {
	spots, err := s.store.ListSpots(ctx)
	return spots, domain.StoreError("list spots", err)
}

func (s *RentalService) RentalsBetween(ctx context.Context, from, to time.Time) ([]*models.Rental, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: empty range", domain.ErrInvalidArgument)
	}
	rentals, err := s.store.GetRentalsByRange(ctx, from, to)
	return rentals, domain.StoreError("rentals by range", err)
}

func (s *RentalService) GetRental(ctx context.Context, id int64) (*models.Rental, error) {
	r, err := s.store.GetRental(ctx, id)
	return r, domain.StoreError("get rental", err)
}

func (s *RentalService) lookupParties(ctx context.Context, r *models.Rental) (*models.User, string) {
	spotName := r.SpotID
	if spot, err := s.store.GetSpot(ctx, r.SpotID); err == nil {
		spotName = spot.Name
	}
	user, err := s.store.GetUser(ctx, r.UserID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", r.UserID).Int64("rental_id", r.ID).Msg("User lookup for message failed")
		return nil, spotName
	}
	return user, spotName
}

func (s *RentalService) publishRental(eventType string, r *models.Rental, spotName string, balance *int64) {
	if s.eventBus == nil {
		return
	}
	payload := events.RentalEventPayload{
		RentalID:      r.ID,
		UserID:        r.UserID,
		SpotID:        r.SpotID,
		SpotName:      spotName,
		PaymentMethod: string(r.PaymentMethod),
		DurationHours: r.AllowedDurationHours,
		Price:         r.Price,
		ExtraCharge:   r.ExtraCharge,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		Balance:       balance,
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("rental_id", r.ID).Msg("publish event error")
	}
}

// notify never fails the caller; the rental is already committed.
func (s *RentalService) notify(ctx context.Context, r *models.Rental, phone, kind, text string) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.Enqueue(ctx, domain.OutgoingMessage{
		UserID:   r.UserID,
		RentalID: r.ID,
		Phone:    phone,
		Type:     kind,
		Text:     text,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("type", kind).Int64("rental_id", r.ID).Msg("Notification not enqueued")
	}
}

func (s *RentalService) logFailure(err error, msg, userID string, rentalID int64) {
	ev := s.logger.Warn()
	if errors.Is(err, domain.ErrStoreUnavailable) || !domain.IsKnown(err) {
		ev = s.logger.Error()
	}
	if userID != "" {
		ev = ev.Str("user_id", userID)
	}
	if rentalID != 0 {
		ev = ev.Int64("rental_id", rentalID)
	}
	ev.Err(err).Msg(msg)
}
