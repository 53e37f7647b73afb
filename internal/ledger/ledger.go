// Package ledger moves money in and out of user balances.
package ledger

import (
	"context"
	"fmt"
	"sort"

	"umbrella/internal/domain"

	"github.com/rs/zerolog"
)

type Ledger struct {
	store   domain.RentalStore
	allowed map[int64]bool
	logger  *zerolog.Logger
}

// New creates a ledger. An empty allowedTopUps accepts any positive top-up.
func New(store domain.RentalStore, allowedTopUps []int64, logger *zerolog.Logger) *Ledger {
	allowed := make(map[int64]bool, len(allowedTopUps))
	for _, amount := range allowedTopUps {
		allowed[amount] = true
	}
	return &Ledger{store: store, allowed: allowed, logger: logger}
}

// Debit takes amount from the balance inside the caller's transaction.
// The balance never goes below zero.
func (l *Ledger) Debit(ctx context.Context, tx domain.Tx, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: debit %d", domain.ErrInvalidAmount, amount)
	}
	balance, err := tx.AdjustBalance(ctx, userID, -amount)
	if err != nil {
		return 0, err
	}
	l.logger.Debug().Str("user_id", userID).Int64("amount", amount).Int64("balance", balance).Msg("Balance debited")
	return balance, nil
}

func (l *Ledger) Credit(ctx context.Context, tx domain.Tx, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: credit %d", domain.ErrInvalidAmount, amount)
	}
	balance, err := tx.AdjustBalance(ctx, userID, amount)
	if err != nil {
		return 0, err
	}
	l.logger.Debug().Str("user_id", userID).Int64("amount", amount).Int64("balance", balance).Msg("Balance credited")
	return balance, nil
}

// TopUp credits one of the offered top-up amounts in its own transaction.
func (l *Ledger) TopUp(ctx context.Context, userID string, amount int64) (int64, error) {
	if len(l.allowed) > 0 && !l.allowed[amount] {
		return 0, fmt.Errorf("%w: top-up %d is not offered", domain.ErrInvalidAmount, amount)
	}

	var balance int64
	err := l.store.WithTx(ctx, func(tx domain.Tx) error {
		var err error
		balance, err = l.Credit(ctx, tx, userID, amount)
		return err
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// TopUpOptions lists the offered amounts, smallest first. Nil means any amount.
func (l *Ledger) TopUpOptions() []int64 {
	if len(l.allowed) == 0 {
		return nil
	}
	out := make([]int64, 0, len(l.allowed))
	for amount := range l.allowed {
		out = append(out, amount)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
