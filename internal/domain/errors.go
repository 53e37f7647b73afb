package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDuration     = errors.New("invalid rental duration")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrRentalAlreadyActive = errors.New("rental already active")
	ErrRentalNotActive     = errors.New("rental not active")
	ErrStoreUnavailable    = errors.New("store unavailable")

	ErrInvalidAmount   = errors.New("invalid amount")
	ErrUserNotFound    = errors.New("user not found")
	ErrSpotNotFound    = errors.New("rental spot not found")
	ErrRentalNotFound  = errors.New("rental not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

var taxonomy = []error{
	ErrInvalidDuration,
	ErrInsufficientBalance,
	ErrRentalAlreadyActive,
	ErrRentalNotActive,
	ErrStoreUnavailable,
	ErrInvalidAmount,
	ErrUserNotFound,
	ErrSpotNotFound,
	ErrRentalNotFound,
	ErrInvalidArgument,
}

// IsKnown reports whether err belongs to the rental error taxonomy.
func IsKnown(err error) bool {
	for _, known := range taxonomy {
		if errors.Is(err, known) {
			return true
		}
	}
	return false
}

// StoreError keeps taxonomy errors as they are and turns anything else
// (driver errors, timeouts, cancelled contexts) into ErrStoreUnavailable.
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsKnown(err) {
		return err
	}
	return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
}
