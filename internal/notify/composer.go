// Package notify composes customer messages and hands them to delivery channels.
package notify

import (
	"fmt"
	"strings"
	"time"

	"umbrella/internal/models"
)

const brand = "Umbrella Rental ITB"

type StartMessage struct {
	UserName    string
	SpotName    string
	Hours       int
	Method      models.PaymentMethod
	StartTime   time.Time
	OverageRate int64
	Location    *time.Location
}

type ReminderMessage struct {
	UserName    string
	SpotName    string
	EndTime     time.Time
	LeadMinutes int
	OverageRate int64
	Location    *time.Location
}

type ReceiptMessage struct {
	UserName  string
	SpotName  string
	StartTime time.Time
	EndTime   time.Time
	Hours     int
	Method    models.PaymentMethod
	Fine      int64
	Location  *time.Location
}

func overageRate(rate int64) int64 {
	if rate <= 0 {
		return models.DefaultOverageRatePerHour
	}
	return rate
}

func BuildRentalStartMessage(m StartMessage) string {
	end := m.StartTime.Add(time.Duration(m.Hours) * time.Hour)
	return strings.Join([]string{
		fmt.Sprintf("Halo %s! ☂️", FirstName(m.UserName)),
		"",
		"*Sewa payungmu sudah aktif!*",
		fmt.Sprintf("📍 Lokasi: %s", m.SpotName),
		fmt.Sprintf("⏱️ Durasi: %d Jam", m.Hours),
		fmt.Sprintf("💳 Via: %s", m.Method.Label()),
		fmt.Sprintf("🕐 Mulai: %s", FormatClock(m.StartTime, m.Location)),
		"",
		fmt.Sprintf("Kembalikan payung sebelum *%s* agar tidak kena denda Rp%s/jam.",
			FormatClock(end, m.Location), FormatRupiah(overageRate(m.OverageRate))),
		"Pantau timer real-time di aplikasi ya! 📱",
		"",
		fmt.Sprintf("Terima kasih sudah menggunakan %s 🙏", brand),
	}, "\n")
}

func BuildReminderMessage(m ReminderMessage) string {
	lead := m.LeadMinutes
	if lead <= 0 {
		lead = models.DefaultReminderLeadMinutes
	}
	return strings.Join([]string{
		"⏰ *Pengingat Sewa Payung*",
		"",
		fmt.Sprintf("Halo %s!", FirstName(m.UserName)),
		fmt.Sprintf("Sewa payungmu di *%s* akan berakhir dalam *%d menit* (pukul %s).",
			m.SpotName, lead, FormatClock(m.EndTime, m.Location)),
		"",
		fmt.Sprintf("Segera kembalikan payung untuk menghindari denda Rp%s/jam!", FormatRupiah(overageRate(m.OverageRate))),
		"",
		brand + " ☂️",
	}, "\n")
}

func BuildReceiptMessage(m ReceiptMessage) string {
	fine := "✅ Tidak Ada Denda"
	if m.Fine > 0 {
		fine = fmt.Sprintf("⚠️ Denda Overtime: Rp%s", FormatRupiah(m.Fine))
	}
	return strings.Join([]string{
		"🧾 *Struk Pengembalian Payung*",
		"",
		fmt.Sprintf("Halo %s, terima kasih telah menggunakan layanan kami!", FirstName(m.UserName)),
		"",
		fmt.Sprintf("📍 Titik Sewa: %s", m.SpotName),
		fmt.Sprintf("🕐 Waktu Mulai: %s", FormatClock(m.StartTime, m.Location)),
		fmt.Sprintf("🕔 Waktu Selesai: %s", FormatClock(m.EndTime, m.Location)),
		fmt.Sprintf("⏱️ Total Durasi: %s", FormatDuration(m.EndTime.Sub(m.StartTime))),
		fmt.Sprintf("💳 Metode Bayar: %s", m.Method.Label()),
		fine,
		"",
		"Sampai jumpa lagi! ☂️ Tetap kering di kampus.",
		"",
		brand,
	}, "\n")
}
