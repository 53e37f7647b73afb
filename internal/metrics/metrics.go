package metrics

import (
	"errors"
	"sync"
	"time"

	"umbrella/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "umbrella"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status class.",
		},
		[]string{"endpoint", "status"},
	)

	rentalsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rentals_started_total",
			Help:      "Rentals started by payment method.",
		},
		[]string{"payment_method"},
	)

	rentalsEnded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rentals_ended_total",
			Help:      "Rentals ended, split by whether an overage fine applied.",
		},
		[]string{"overdue"},
	)

	revenue = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revenue_rupiah_total",
			Help:      "Rental prices and overage fines in rupiah.",
		},
		[]string{"kind"},
	)

	topUps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "balance_topups_rupiah_total",
			Help:      "Rupiah credited through top-ups.",
		},
	)

	rentalDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rental_duration_hours",
			Help:      "Actual rental duration at return.",
			Buckets:   []float64{0.25, 0.5, 1, 1.5, 2, 3, 4, 6, 12, 24},
		},
	)

	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Lifecycle operation latency by operation and outcome.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "outcome"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by type and status.",
		},
		[]string{"type", "status"},
	)

	botCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bot_commands_total",
			Help:      "Operations bot commands by command and outcome.",
		},
		[]string{"command", "outcome"},
	)

	botUpdateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bot_update_duration_seconds",
			Help:      "Time spent processing one Telegram update.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			rentalsStarted,
			rentalsEnded,
			revenue,
			topUps,
			rentalDuration,
			operationDuration,
			notifications,
			botCommands,
			botUpdateDuration,
		)
	})
}

func IncHTTP(endpoint string, status int) {
	httpRequests.WithLabelValues(endpoint, statusClass(status)).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

func IncNotification(kind, status string) {
	notifications.WithLabelValues(kind, status).Inc()
}

func IncBotCommand(command string, err error) {
	botCommands.WithLabelValues(command, Outcome(err)).Inc()
}

func ObserveBotUpdate(d time.Duration) {
	botUpdateDuration.Observe(d.Seconds())
}

// Recorder feeds lifecycle outcomes into the package collectors.
type Recorder struct{}

func (Recorder) RentalStarted(method string, price int64) {
	rentalsStarted.WithLabelValues(method).Inc()
	revenue.WithLabelValues("rental").Add(float64(price))
}

func (Recorder) RentalEnded(elapsed time.Duration, extraCharge int64) {
	overdue := "false"
	if extraCharge > 0 {
		overdue = "true"
		revenue.WithLabelValues("overage").Add(float64(extraCharge))
	}
	rentalsEnded.WithLabelValues(overdue).Inc()
	rentalDuration.Observe(elapsed.Hours())
}

func (Recorder) TopUp(amount int64) {
	topUps.Add(float64(amount))
}

func (Recorder) ObserveOperation(op string, d time.Duration, err error) {
	operationDuration.WithLabelValues(op, Outcome(err)).Observe(d.Seconds())
}

// Outcome turns an operation error into a low-cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInvalidDuration):
		return "invalid_duration"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, domain.ErrRentalAlreadyActive):
		return "already_active"
	case errors.Is(err, domain.ErrRentalNotActive):
		return "not_active"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "error"
	}
}
