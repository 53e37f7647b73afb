// Package pricing maps rental durations to prices and computes overage fines.
package pricing

import (
	"fmt"
	"math"
	"sort"
	"time"

	"umbrella/internal/domain"
	"umbrella/internal/models"
)

type Table struct {
	prices  map[int]int64
	overage int64
}

// Default returns the campus price list: 1h 2000, 2h 4000, 3h 6000 and a
// 3000 per hour fine past the allowed duration.
func Default() *Table {
	return &Table{
		prices:  map[int]int64{1: 2000, 2: 4000, 3: 6000},
		overage: models.DefaultOverageRatePerHour,
	}
}

func New(prices map[int]int64, overage int64) (*Table, error) {
	if len(prices) == 0 {
		return nil, fmt.Errorf("price table is empty")
	}
	if overage < 0 {
		return nil, fmt.Errorf("overage rate must not be negative: %d", overage)
	}
	copied := make(map[int]int64, len(prices))
	for hours, price := range prices {
		if hours <= 0 {
			return nil, fmt.Errorf("duration must be positive: %d", hours)
		}
		if price <= 0 {
			return nil, fmt.Errorf("price for %dh must be positive: %d", hours, price)
		}
		copied[hours] = price
	}
	return &Table{prices: copied, overage: overage}, nil
}

func (t *Table) PriceFor(hours int) (int64, error) {
	price, ok := t.prices[hours]
	if !ok {
		return 0, fmt.Errorf("%w: %d hours", domain.ErrInvalidDuration, hours)
	}
	return price, nil
}

func (t *Table) OverageRate() int64 {
	return t.overage
}

func (t *Table) Durations() []int {
	out := make([]int, 0, len(t.prices))
	for h := range t.prices {
		out = append(out, h)
	}
	sort.Ints(out)
	return out
}

// OverageCharge bills the fractional hours beyond allowedHours at the overage
// rate. Nothing is charged up to and including the deadline.
func (t *Table) OverageCharge(elapsed time.Duration, allowedHours int) int64 {
	over := elapsed - time.Duration(allowedHours)*time.Hour
	if over <= 0 {
		return 0
	}
	return int64(math.Round(over.Hours() * float64(t.overage)))
}
