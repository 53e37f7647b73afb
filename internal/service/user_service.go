package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"umbrella/internal/domain"
	"umbrella/internal/events"
	"umbrella/internal/ledger"
	"umbrella/internal/models"

	"github.com/rs/zerolog"
)

// UserService owns account data and the saldo top-up flow.
type UserService struct {
	store    domain.RentalStore
	ledger   *ledger.Ledger
	eventBus domain.EventPublisher
	metrics  Metrics
	logger   *zerolog.Logger
}

var _ domain.UserService = (*UserService)(nil)

func NewUserService(store domain.RentalStore, l *ledger.Ledger, eventBus domain.EventPublisher, m Metrics, logger *zerolog.Logger) *UserService {
	if m == nil {
		m = nopMetrics{}
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &UserService{
		store:    store,
		ledger:   l,
		eventBus: eventBus,
		metrics:  m,
		logger:   logger,
	}
}

// RegisterUser creates an account with a zero balance.
func (s *UserService) RegisterUser(ctx context.Context, name, phone string) (*models.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", domain.ErrInvalidArgument)
	}
	user := &models.User{Name: name, Phone: strings.TrimSpace(phone)}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, domain.StoreError("create user", err)
	}
	s.logger.Info().Str("user_id", user.ID).Msg("User registered")
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	return user, domain.StoreError("get user", err)
}

func (s *UserService) TopUp(ctx context.Context, userID string, amount int64) (int64, error) {
	began := time.Now()
	balance, err := s.ledger.TopUp(ctx, userID, amount)
	err = domain.StoreError("top up", err)
	s.metrics.ObserveOperation("top_up", time.Since(began), err)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Int64("amount", amount).Msg("Top-up failed")
		return 0, err
	}

	s.logger.Info().Str("user_id", userID).Int64("amount", amount).Int64("balance", balance).Msg("Balance topped up")
	s.metrics.TopUp(amount)
	if s.eventBus != nil {
		payload := events.BalanceEventPayload{UserID: userID, Amount: amount, Balance: balance}
		if err := s.eventBus.PublishJSON(events.EventBalanceToppedUp, payload); err != nil {
			s.logger.Error().Err(err).Str("event_type", events.EventBalanceToppedUp).Str("user_id", userID).Msg("publish event error")
		}
	}
	return balance, nil
}

func (s *UserService) TopUpOptions() []int64 {
	return s.ledger.TopUpOptions()
}
