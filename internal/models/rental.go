package models

import (
	"errors"
	"time"
)

// ErrRentalEnded is returned by Rental.End when the rental is no longer active.
var ErrRentalEnded = errors.New("rental already ended")

type RentalState string

const (
	StateActive RentalState = "active"
	StateEnded  RentalState = "ended"
)

type Rental struct {
	ID                   int64         `json:"id"`
	UserID               string        `json:"user_id"`
	SpotID               string        `json:"spot_id"`
	StartTime            time.Time     `json:"start_time"`
	EndTime              *time.Time    `json:"end_time,omitempty"`
	AllowedDurationHours int           `json:"allowed_duration_hours"`
	Active               bool          `json:"active"`
	ExtraCharge          int64         `json:"extra_charge"`
	Price                int64         `json:"price"`
	PaymentMethod        PaymentMethod `json:"payment_method"`
	RemindedAt           *time.Time    `json:"reminded_at,omitempty"`
}

func (r *Rental) State() RentalState {
	if r.Active {
		return StateActive
	}
	return StateEnded
}

// Deadline is the moment the allowed duration runs out.
func (r *Rental) Deadline() time.Time {
	return r.StartTime.Add(time.Duration(r.AllowedDurationHours) * time.Hour)
}

// Elapsed returns the rental duration up to at, or up to EndTime once ended.
func (r *Rental) Elapsed(at time.Time) time.Duration {
	if r.EndTime != nil {
		return r.EndTime.Sub(r.StartTime)
	}
	return at.Sub(r.StartTime)
}

// End moves the rental from active to ended. It can happen only once.
func (r *Rental) End(at time.Time, extraCharge int64) error {
	if !r.Active {
		return ErrRentalEnded
	}
	if extraCharge < 0 {
		extraCharge = 0
	}
	end := at
	r.EndTime = &end
	r.Active = false
	r.ExtraCharge = extraCharge
	return nil
}
