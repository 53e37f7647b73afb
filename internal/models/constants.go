package models

const (
	// DefaultOverageRatePerHour fine per hour past the allowed duration
	DefaultOverageRatePerHour = 3000

	// DefaultHistoryLimit rentals shown in a user's history
	DefaultHistoryLimit = 20

	// DefaultReminderLeadMinutes reminder is sent this long before the deadline
	DefaultReminderLeadMinutes = 15

	// DefaultReminderIntervalSeconds how often active rentals are scanned for reminders
	DefaultReminderIntervalSeconds = 60

	// WorkerQueueSize notification queue size
	WorkerQueueSize = 1000

	// RateLimitRequests mutating requests per user in one window
	RateLimitRequests = 20

	// RateLimitWindow window for RateLimitRequests, seconds
	RateLimitWindow = 60

	// DefaultTimezone wall clock used in messages
	DefaultTimezone = "Asia/Jakarta"

	// WhatsAppBusinessNumber fallback recipient when a user has no phone
	WhatsAppBusinessNumber = "628123456789"
)

// DefaultTopUpOptions amounts offered on the profile screen.
var DefaultTopUpOptions = []int64{5000, 10000, 20000, 50000}
