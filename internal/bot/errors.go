package bot

import (
	"errors"

	"umbrella/internal/domain"
)

func getErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		return "⚠️ Pengguna tidak ditemukan."
	case errors.Is(err, domain.ErrRentalNotFound):
		return "⚠️ Sewa tidak ditemukan."
	case errors.Is(err, domain.ErrRentalNotActive):
		return "⚠️ Sewa ini sudah selesai."
	case errors.Is(err, domain.ErrInvalidAmount):
		return "⚠️ Nominal top up tidak valid atau tidak tersedia."
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "⚠️ Database sedang tidak tersedia. Coba lagi sebentar lagi."
	}

	return "❌ Terjadi kesalahan saat memproses perintah. Coba lagi nanti."
}
