package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatRupiah(t *testing.T) {
	cases := map[int64]string{
		0:        "0",
		500:      "500",
		3000:     "3.000",
		4500:     "4.500",
		50000:    "50.000",
		1234567:  "1.234.567",
		-4500:    "-4.500",
		10000000: "10.000.000",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatRupiah(in), "amount=%d", in)
	}
}

func TestFirstName(t *testing.T) {
	assert.Equal(t, "Budi", FirstName("Budi Santoso"))
	assert.Equal(t, "Siti", FirstName("  Siti  "))
	assert.Equal(t, "Pengguna", FirstName(""))
	assert.Equal(t, "Pengguna", FirstName("   "))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45 menit", FormatDuration(45*time.Minute+30*time.Second))
	assert.Equal(t, "1 jam 0 menit", FormatDuration(time.Hour))
	assert.Equal(t, "2 jam 30 menit", FormatDuration(150*time.Minute))
	assert.Equal(t, "0 menit", FormatDuration(-time.Minute))
}

func TestFormatClock(t *testing.T) {
	ts := time.Date(2026, 3, 2, 23, 7, 0, 0, time.UTC)
	assert.Equal(t, "23:07", FormatClock(ts, nil))
	assert.Equal(t, "06:07", FormatClock(ts, time.FixedZone("WIB", 7*3600)))
}
