package pricing

import (
	"testing"
	"time"

	"umbrella/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_PriceFor(t *testing.T) {
	table := Default()

	cases := map[int]int64{1: 2000, 2: 4000, 3: 6000}
	for hours, want := range cases {
		got, err := table.PriceFor(hours)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	for _, hours := range []int{0, -1, 4, 24} {
		_, err := table.PriceFor(hours)
		assert.ErrorIs(t, err, domain.ErrInvalidDuration, "hours=%d", hours)
	}
}

func TestOverageCharge(t *testing.T) {
	table := Default()

	tests := []struct {
		name    string
		elapsed time.Duration
		allowed int
		want    int64
	}{
		{"before deadline", 30 * time.Minute, 1, 0},
		{"exactly at deadline", time.Hour, 1, 0},
		{"one and a half hours over", 150 * time.Minute, 1, 4500},
		{"one hour over", 2 * time.Hour, 1, 3000},
		{"one minute over", 2*time.Hour + time.Minute, 2, 50},
		{"eighteen seconds over", 3*time.Hour + 18*time.Second, 3, 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, table.OverageCharge(tt.elapsed, tt.allowed))
		})
	}
}

func TestNew(t *testing.T) {
	table, err := New(map[int]int64{2: 5000, 1: 3000, 4: 9000}, 1000)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 4}, table.Durations())
	assert.Equal(t, int64(1000), table.OverageRate())

	_, err = New(nil, 1000)
	assert.Error(t, err)
	_, err = New(map[int]int64{0: 1000}, 1000)
	assert.Error(t, err)
	_, err = New(map[int]int64{1: 0}, 1000)
	assert.Error(t, err)
	_, err = New(map[int]int64{1: 1000}, -1)
	assert.Error(t, err)
}
