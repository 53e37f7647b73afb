package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
	_ "time/tzdata" // Asia/Jakarta must resolve on hosts without zoneinfo

	"umbrella/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App           AppConfig           `yaml:"app"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Backup        BackupConfig        `yaml:"backup"`
	Monitoring    MonitoringConfig    `yaml:"monitoring"`
	Logging       LoggingConfig       `yaml:"logging"`
	API           APIConfig           `yaml:"api"`
	Rental        RentalConfig        `yaml:"rental"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Telegram      TelegramConfig      `yaml:"telegram"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Google        GoogleConfig        `yaml:"google"`
	Exports       ExportConfig        `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
	// UserRateLimit caps mutating calls per user across instances (Redis).
	UserRateLimit  UserRateLimitConfig `yaml:"user_rate_limit"`
	IdempotencyTTL string              `yaml:"idempotency_ttl"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type UserRateLimitConfig struct {
	Requests      int `yaml:"requests"`
	WindowSeconds int `yaml:"window_seconds"`
}

type RentalConfig struct {
	Prices             map[int]int64 `yaml:"prices"`
	OverageRatePerHour int64         `yaml:"overage_rate_per_hour"`
	AllowedTopUps      []int64       `yaml:"allowed_top_ups"`
	AllowAnyTopUp      bool          `yaml:"allow_any_top_up"`
	HistoryLimit       int           `yaml:"history_limit"`
	Timezone           string        `yaml:"timezone"`
	SpotsFile          string        `yaml:"spots_file"`
}

type NotificationsConfig struct {
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
	// Confirmations toggles the rental-start message; reminders and
	// receipts are always sent. Defaults to true.
	Confirmations           *bool `yaml:"confirmations"`
	ReminderLeadMinutes     int   `yaml:"reminder_lead_minutes"`
	ReminderIntervalSeconds int   `yaml:"reminder_interval_seconds"`
	QueueSize               int   `yaml:"queue_size"`
	MaxRetries              int   `yaml:"max_retries"`
}

type WhatsAppConfig struct {
	Enabled        bool   `yaml:"enabled"`
	BusinessNumber string `yaml:"business_number"`
}

type TelegramConfig struct {
	BotToken  string `yaml:"bot_token"`
	OpsChatID int64  `yaml:"ops_chat_id"`
	Debug     bool   `yaml:"debug"`
	// Managers are the Telegram user IDs allowed to use the operations bot.
	Managers []int64 `yaml:"managers"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type GoogleConfig struct {
	CredentialsFile      string `yaml:"credentials_file"`
	RentalsSpreadsheetID string `yaml:"rentals_spreadsheet_id"`
	SheetName            string `yaml:"sheet_name"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// ${VAR} references are resolved before parsing
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	for hours, price := range c.Rental.Prices {
		if hours <= 0 {
			return fmt.Errorf("rental duration must be positive: %d", hours)
		}
		if price <= 0 {
			return fmt.Errorf("price for %dh must be positive", hours)
		}
	}
	if c.Rental.OverageRatePerHour < 0 {
		return errors.New("overage rate must not be negative")
	}
	for _, amount := range c.Rental.AllowedTopUps {
		if amount <= 0 {
			return fmt.Errorf("top-up option must be positive: %d", amount)
		}
	}
	if _, err := time.LoadLocation(c.Rental.Timezone); err != nil {
		return fmt.Errorf("invalid rental timezone %q: %w", c.Rental.Timezone, err)
	}

	if (c.Telegram.OpsChatID != 0 || len(c.Telegram.Managers) > 0) && c.Telegram.BotToken == "" {
		return errors.New("telegram bot token is required when ops_chat_id or managers are set")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return errors.New("kafka brokers and topic are required when kafka is enabled")
	}
	if c.Google.RentalsSpreadsheetID != "" && c.Google.CredentialsFile == "" {
		return errors.New("google credentials file is required for the rentals spreadsheet")
	}
	if c.API.IdempotencyTTL != "" {
		if _, err := time.ParseDuration(c.API.IdempotencyTTL); err != nil {
			return fmt.Errorf("invalid idempotency_ttl: %w", err)
		}
	}

	return nil
}

// ValidateSpots checks a spot catalogue loaded from the seed file.
func ValidateSpots(spots []models.RentalSpot) error {
	ids := make(map[string]bool)
	for _, spot := range spots {
		if spot.ID == "" {
			return fmt.Errorf("spot '%s' has an empty ID", spot.Name)
		}
		if spot.Name == "" {
			return fmt.Errorf("spot %s has an empty name", spot.ID)
		}
		if spot.UmbrellaCount < 0 {
			return fmt.Errorf("spot %s has a negative umbrella count", spot.ID)
		}
		if ids[spot.ID] {
			return fmt.Errorf("duplicate spot ID found: %s", spot.ID)
		}
		ids[spot.ID] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "umbrella-rental"
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.API.UserRateLimit.Requests == 0 {
		c.API.UserRateLimit.Requests = models.RateLimitRequests
	}
	if c.API.UserRateLimit.WindowSeconds == 0 {
		c.API.UserRateLimit.WindowSeconds = models.RateLimitWindow
	}
	if c.API.IdempotencyTTL == "" {
		c.API.IdempotencyTTL = "24h"
	}

	if len(c.Rental.Prices) == 0 {
		c.Rental.Prices = map[int]int64{1: 2000, 2: 4000, 3: 6000}
	}
	if c.Rental.OverageRatePerHour == 0 {
		c.Rental.OverageRatePerHour = models.DefaultOverageRatePerHour
	}
	if len(c.Rental.AllowedTopUps) == 0 && !c.Rental.AllowAnyTopUp {
		c.Rental.AllowedTopUps = append([]int64(nil), models.DefaultTopUpOptions...)
	}
	if c.Rental.HistoryLimit == 0 {
		c.Rental.HistoryLimit = models.DefaultHistoryLimit
	}
	if c.Rental.Timezone == "" {
		c.Rental.Timezone = models.DefaultTimezone
	}

	if c.Notifications.Confirmations == nil {
		enabled := true
		c.Notifications.Confirmations = &enabled
	}
	if c.Notifications.WhatsApp.BusinessNumber == "" {
		c.Notifications.WhatsApp.BusinessNumber = models.WhatsAppBusinessNumber
	}
	if c.Notifications.ReminderLeadMinutes == 0 {
		c.Notifications.ReminderLeadMinutes = models.DefaultReminderLeadMinutes
	}
	if c.Notifications.ReminderIntervalSeconds == 0 {
		c.Notifications.ReminderIntervalSeconds = models.DefaultReminderIntervalSeconds
	}
	if c.Notifications.QueueSize == 0 {
		c.Notifications.QueueSize = models.WorkerQueueSize
	}
	if c.Notifications.MaxRetries == 0 {
		c.Notifications.MaxRetries = 3
	}

	if c.Google.SheetName == "" {
		c.Google.SheetName = "Rentals"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "./exports"
	}
}

// Location returns the timezone used for customer-facing clock times.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Rental.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) ConfirmationsEnabled() bool {
	return c.Notifications.Confirmations == nil || *c.Notifications.Confirmations
}

func (c *Config) IdempotencyTTL() time.Duration {
	d, err := time.ParseDuration(c.API.IdempotencyTTL)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}
