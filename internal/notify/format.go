package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatRupiah groups thousands with dots the way id-ID locales do: 4500 -> "4.500".
func FormatRupiah(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)

	var b strings.Builder
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte('.')
		b.WriteString(digits[i : i+3])
	}
	return sign + b.String()
}

// FirstName returns the first word of a full name, or "Pengguna".
func FirstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "Pengguna"
	}
	return fields[0]
}

// FormatClock renders HH:MM in loc; a nil loc keeps the time's own zone.
func FormatClock(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// FormatDuration renders "1 jam 30 menit" or "45 menit". Seconds are dropped.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	if h > 0 {
		return fmt.Sprintf("%d jam %d menit", h, m)
	}
	return fmt.Sprintf("%d menit", m)
}
