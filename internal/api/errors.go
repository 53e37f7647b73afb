package api

import (
	"errors"
	"net/http"

	"umbrella/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type errorMapping struct {
	err     error
	status  int
	code    string
	message string
}

// Order matters: ErrInvalidDuration and ErrInvalidAmount are checked before
// the generic ErrInvalidArgument they are sometimes wrapped with, and
// ErrRentalNotFound before the ErrRentalNotActive that wraps it on end.
var errorMappings = []errorMapping{
	{domain.ErrInvalidDuration, http.StatusBadRequest, "invalid_duration", "Durasi sewa tidak tersedia. Pilih 1, 2, atau 3 jam."},
	{domain.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount", "Nominal top up tidak valid."},
	{domain.ErrInsufficientBalance, http.StatusPaymentRequired, "insufficient_balance", "Saldo tidak cukup. Silakan top up terlebih dahulu."},
	{domain.ErrRentalAlreadyActive, http.StatusConflict, "rental_already_active", "Kamu masih memiliki sewa payung yang aktif."},
	{domain.ErrRentalNotFound, http.StatusNotFound, "rental_not_found", "Data sewa tidak ditemukan."},
	{domain.ErrRentalNotActive, http.StatusConflict, "rental_not_active", "Sewa ini sudah berakhir."},
	{domain.ErrUserNotFound, http.StatusNotFound, "user_not_found", "Pengguna tidak ditemukan."},
	{domain.ErrSpotNotFound, http.StatusNotFound, "spot_not_found", "Titik sewa tidak ditemukan."},
	{domain.ErrStoreUnavailable, http.StatusServiceUnavailable, "store_unavailable", "Layanan sedang tidak tersedia. Coba lagi sebentar lagi."},
	{domain.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument", "Permintaan tidak valid."},
}

// errorFor maps a service error to an HTTP status and a user-facing message.
func errorFor(err error) (int, errorResponse) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, errorResponse{Error: m.message, Code: m.code}
		}
	}
	return http.StatusInternalServerError, errorResponse{
		Error: "Terjadi kesalahan. Silakan coba lagi.",
		Code:  "internal",
	}
}
