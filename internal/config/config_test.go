package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"umbrella/internal/models"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("UMBRELLA_DB_PATH", "data/umbrella.db")

	yamlContent := `
database:
  path: "${UMBRELLA_DB_PATH}"
rental:
  prices:
    1: 2000
    2: 4000
    3: 6000
  timezone: "Asia/Jakarta"
notifications:
  confirmations: false
kafka:
  enabled: true
  brokers: ["localhost:9092"]
  topic: "rental-events"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	// no .env in the package directory; Load must tolerate that
	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Database.Path != "data/umbrella.db" {
		t.Errorf("expected expanded database path, got %s", cfg.Database.Path)
	}
	if cfg.Rental.Prices[2] != 4000 {
		t.Errorf("expected 2h price 4000, got %d", cfg.Rental.Prices[2])
	}
	if cfg.ConfirmationsEnabled() {
		t.Errorf("expected confirmations disabled")
	}
	if cfg.Location().String() != "Asia/Jakarta" {
		t.Errorf("expected Asia/Jakarta location, got %s", cfg.Location())
	}
	if cfg.Kafka.Topic != "rental-events" {
		t.Errorf("expected kafka topic rental-events, got %s", cfg.Kafka.Topic)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "valid config",
			cfg:     Config{Database: DatabaseConfig{Path: "path"}},
			wantErr: false,
		},
		{
			name:    "missing database path",
			cfg:     Config{},
			wantErr: true,
		},
		{
			name: "non-positive price",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Rental:   RentalConfig{Prices: map[int]int64{1: 0}},
			},
			wantErr: true,
		},
		{
			name: "zero duration",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Rental:   RentalConfig{Prices: map[int]int64{0: 1000}},
			},
			wantErr: true,
		},
		{
			name: "unknown timezone",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Rental:   RentalConfig{Timezone: "Mars/Olympus"},
			},
			wantErr: true,
		},
		{
			name: "kafka without brokers",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Kafka:    KafkaConfig{Enabled: true, Topic: "t"},
			},
			wantErr: true,
		},
		{
			name: "ops chat without token",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Telegram: TelegramConfig{OpsChatID: 42},
			},
			wantErr: true,
		},
		{
			name: "bot managers without token",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Telegram: TelegramConfig{Managers: []int64{7}},
			},
			wantErr: true,
		},
		{
			name: "spreadsheet without credentials",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Google:   GoogleConfig{RentalsSpreadsheetID: "sheet"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if cfg.API.GRPC.Port != 8081 {
		t.Errorf("expected default gRPC port 8081, got %d", cfg.API.GRPC.Port)
	}
	if cfg.Rental.OverageRatePerHour != models.DefaultOverageRatePerHour {
		t.Errorf("expected overage %d, got %d", models.DefaultOverageRatePerHour, cfg.Rental.OverageRatePerHour)
	}
	if cfg.Rental.Prices[3] != 6000 {
		t.Errorf("expected default 3h price 6000, got %d", cfg.Rental.Prices[3])
	}
	if len(cfg.Rental.AllowedTopUps) != len(models.DefaultTopUpOptions) {
		t.Errorf("expected default top-up options, got %v", cfg.Rental.AllowedTopUps)
	}
	if cfg.Rental.HistoryLimit != models.DefaultHistoryLimit {
		t.Errorf("expected history limit %d, got %d", models.DefaultHistoryLimit, cfg.Rental.HistoryLimit)
	}
	if !cfg.ConfirmationsEnabled() {
		t.Errorf("expected confirmations enabled by default")
	}
	if cfg.Notifications.WhatsApp.BusinessNumber != models.WhatsAppBusinessNumber {
		t.Errorf("expected business number %s, got %s", models.WhatsAppBusinessNumber, cfg.Notifications.WhatsApp.BusinessNumber)
	}
	if cfg.IdempotencyTTL() != 24*time.Hour {
		t.Errorf("expected idempotency ttl 24h, got %s", cfg.IdempotencyTTL())
	}

	anyAmount := &Config{Rental: RentalConfig{AllowAnyTopUp: true}}
	anyAmount.applyDefaults()
	if len(anyAmount.Rental.AllowedTopUps) != 0 {
		t.Errorf("expected no top-up restriction, got %v", anyAmount.Rental.AllowedTopUps)
	}
}

func TestValidateSpots(t *testing.T) {
	tests := []struct {
		name    string
		spots   []models.RentalSpot
		wantErr bool
	}{
		{
			name: "Valid spots",
			spots: []models.RentalSpot{
				{ID: "labtek-v", Name: "Labtek V", UmbrellaCount: 12},
				{ID: "sipil", Name: "SIPIL", UmbrellaCount: 8},
			},
			wantErr: false,
		},
		{
			name: "Duplicate ID",
			spots: []models.RentalSpot{
				{ID: "sipil", Name: "SIPIL"},
				{ID: "sipil", Name: "SIPIL 2"},
			},
			wantErr: true,
		},
		{
			name:    "Empty ID",
			spots:   []models.RentalSpot{{Name: "Labtek VIII"}},
			wantErr: true,
		},
		{
			name:    "Negative count",
			spots:   []models.RentalSpot{{ID: "x", Name: "X", UmbrellaCount: -1}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSpots(tt.spots)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSpots() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
