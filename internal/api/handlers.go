package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"umbrella/internal/domain"
	"umbrella/internal/export"
	"umbrella/internal/models"

	"github.com/go-chi/chi/v5"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayHeader      = "Idempotent-Replay"
	exportDateLayout  = "2006-01-02"
)

type registerUserRequest struct {
	Name  string `json:"name" validate:"required,max=100"`
	Phone string `json:"phone" validate:"omitempty,max=20"`
}

type topUpRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

type startRentalRequest struct {
	UserID        string `json:"user_id" validate:"required"`
	SpotID        string `json:"spot_id" validate:"required"`
	DurationHours int    `json:"duration_hours"`
	PaymentMethod string `json:"payment_method" validate:"required"`
}

// rentalResponse adds the derived state and deadline to a rental.
type rentalResponse struct {
	*models.Rental
	State    models.RentalState `json:"state"`
	Deadline time.Time          `json:"deadline"`
}

func newRentalResponse(r *models.Rental) *rentalResponse {
	if r == nil {
		return nil
	}
	return &rentalResponse{Rental: r, State: r.State(), Deadline: r.Deadline()}
}

type paymentMethodResponse struct {
	ID            models.PaymentMethod `json:"id"`
	Label         string               `json:"label"`
	DebitsBalance bool                 `json:"debits_balance"`
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if err := s.deps.Health.Ping(r.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleSpots(w http.ResponseWriter, r *http.Request) {
	spots, err := s.deps.Rentals.Spots(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"spots": spots})
}

func (s *HTTPServer) handlePricing(w http.ResponseWriter, r *http.Request) {
	methods := make([]paymentMethodResponse, 0, len(models.PaymentMethods()))
	for _, m := range models.PaymentMethods() {
		methods = append(methods, paymentMethodResponse{ID: m, Label: m.Label(), DebitsBalance: m.DebitsBalance()})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"durations":       s.deps.Rentals.Durations(),
		"top_up_options":  s.deps.Users.TopUpOptions(),
		"payment_methods": methods,
	})
}

func (s *HTTPServer) handleQuote(w http.ResponseWriter, r *http.Request) {
	hours, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("hours")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_duration", "Parameter hours wajib berupa angka.")
		return
	}
	quote, err := s.deps.Rentals.Quote(hours)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (s *HTTPServer) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if !s.decode(w, r, &req) {
		return
	}
	user, err := s.deps.Users.RegisterUser(r.Context(), req.Name, req.Phone)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *HTTPServer) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.deps.Users.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *HTTPServer) handleTopUp(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req topUpRequest
	if !s.decode(w, r, &req) {
		return
	}
	if !s.allowUser(w, r, userID) {
		return
	}

	balance, err := s.deps.Users.TopUp(r.Context(), userID, req.Amount)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "balance": balance})
}

func (s *HTTPServer) handleActiveRental(w http.ResponseWriter, r *http.Request) {
	rental, err := s.deps.Rentals.ActiveRental(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rental": newRentalResponse(rental)})
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_argument", "Parameter limit tidak valid.")
			return
		}
		limit = n
	}

	rentals, err := s.deps.Rentals.History(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := make([]*rentalResponse, 0, len(rentals))
	for _, rental := range rentals {
		out = append(out, newRentalResponse(rental))
	}
	writeJSON(w, http.StatusOK, map[string]any{"rentals": out})
}

func (s *HTTPServer) handleStartRental(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req startRentalRequest
	if !s.decode(w, r, &req) {
		return
	}

	// A replayed request returns the stored response instead of failing
	// with RentalAlreadyActive.
	stateKey := ""
	if key := strings.TrimSpace(r.Header.Get(idempotencyHeader)); key != "" && s.deps.State != nil {
		stateKey = "start_rental:" + req.UserID + ":" + key
		if cached, ok := s.deps.State.LookupResponse(ctx, stateKey); ok {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set(replayHeader, "true")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(cached))
			return
		}
	}

	if !s.allowUser(w, r, req.UserID) {
		return
	}

	rental, err := s.deps.Rentals.StartRental(ctx, domain.StartRequest{
		UserID:        req.UserID,
		SpotID:        req.SpotID,
		DurationHours: req.DurationHours,
		PaymentMethod: models.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	body, err := json.Marshal(newRentalResponse(rental))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if stateKey != "" {
		s.deps.State.RememberResponse(ctx, stateKey, string(body))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(append(body, '\n'))
}

func (s *HTTPServer) handleGetRental(w http.ResponseWriter, r *http.Request) {
	id, ok := rentalIDParam(w, r)
	if !ok {
		return
	}
	rental, err := s.deps.Rentals.GetRental(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRentalResponse(rental))
}

func (s *HTTPServer) handleEndRental(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := rentalIDParam(w, r)
	if !ok {
		return
	}

	current, err := s.deps.Rentals.GetRental(ctx, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if !s.allowUser(w, r, current.UserID) {
		return
	}

	rental, err := s.deps.Rentals.EndRental(ctx, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rental":      newRentalResponse(rental),
		"total_price": rental.Price + rental.ExtraCharge,
	})
}

func (s *HTTPServer) handleNotifications(w http.ResponseWriter, r *http.Request) {
	id, ok := rentalIDParam(w, r)
	if !ok {
		return
	}
	if s.deps.Notifications == nil {
		writeJSON(w, http.StatusOK, map[string]any{"notifications": []*models.Notification{}})
		return
	}
	if _, err := s.deps.Rentals.GetRental(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	notifications, err := s.deps.Notifications.GetRentalNotifications(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, domain.StoreError("rental notifications", err))
		return
	}
	if notifications == nil {
		notifications = []*models.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notifications})
}

// handleExport streams an XLSX report of rentals started between from and
// to, both inclusive calendar days in the service timezone.
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Report == nil {
		writeError(w, http.StatusNotFound, "export_disabled", "Ekspor tidak tersedia.")
		return
	}

	loc := s.deps.Location
	from, err := time.ParseInLocation(exportDateLayout, strings.TrimSpace(r.URL.Query().Get("from")), loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", "Parameter from wajib berformat YYYY-MM-DD.")
		return
	}
	lastDay, err := time.ParseInLocation(exportDateLayout, strings.TrimSpace(r.URL.Query().Get("to")), loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", "Parameter to wajib berformat YYYY-MM-DD.")
		return
	}
	if lastDay.Before(from) {
		writeError(w, http.StatusBadRequest, "invalid_argument", "Tanggal akhir harus setelah tanggal awal.")
		return
	}

	rentals, err := s.deps.Rentals.RentalsBetween(r.Context(), from, lastDay.AddDate(0, 0, 1))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	spots, err := s.deps.Rentals.Spots(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	names := make(map[string]string, len(spots))
	for _, spot := range spots {
		names[spot.ID] = spot.Name
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(from, lastDay)))
	if err := s.deps.Report.Write(w, rentals, names, from, lastDay); err != nil {
		s.logger.Error().Err(err).Msg("failed to write rental export")
	}
}

func (s *HTTPServer) allowUser(w http.ResponseWriter, r *http.Request, userID string) bool {
	if s.deps.State == nil || s.deps.State.AllowUser(r.Context(), userID) {
		return true
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "Terlalu banyak permintaan. Coba lagi sebentar lagi.")
	return false
}

func rentalIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "rentalID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_argument", "ID sewa tidak valid.")
		return 0, false
	}
	return id, true
}
