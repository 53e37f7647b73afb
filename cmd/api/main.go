package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"umbrella/internal/api"
	"umbrella/internal/bot"
	"umbrella/internal/config"
	"umbrella/internal/database"
	"umbrella/internal/domain"
	"umbrella/internal/events"
	"umbrella/internal/export"
	"umbrella/internal/google"
	"umbrella/internal/ledger"
	"umbrella/internal/logging"
	"umbrella/internal/metrics"
	"umbrella/internal/models"
	"umbrella/internal/notify"
	"umbrella/internal/pricing"
	"umbrella/internal/repository"
	"umbrella/internal/service"
	"umbrella/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	spots, err := loadSpots(cfg, &logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := initDatabase(ctx, cfg, spots, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	table, err := pricing.New(cfg.Rental.Prices, cfg.Rental.OverageRatePerHour)
	if err != nil {
		return fmt.Errorf("pricing table: %w", err)
	}
	l := ledger.New(db, cfg.Rental.AllowedTopUps, &logger)

	metrics.Register()
	eventBus := events.NewEventBus(&logger)
	if cfg.Kafka.Enabled {
		kafka := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, 0, &logger)
		kafka.Start(ctx)
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := kafka.Shutdown(flushCtx); err != nil {
				logger.Warn().Err(err).Msg("kafka publisher did not flush before exit")
			}
		}()
		eventBus.SubscribeAll(kafka.Handle)
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka publisher enabled")
	}

	botAPI := initTelegram(cfg, &logger)

	notifier := worker.NewNotificationWorker(
		buildSender(cfg, botAPI, &logger),
		db,
		worker.RetryPolicy{MaxRetries: cfg.Notifications.MaxRetries, InitialDelay: time.Second, MaxDelay: 30 * time.Second},
		cfg.Notifications.QueueSize,
		&logger,
	)
	go notifier.Start(ctx)

	loc := cfg.Location()
	rentals := service.NewRentalService(db, table, l, domain.SystemClock{},
		service.WithNotifier(notifier),
		service.WithEvents(eventBus),
		service.WithMetrics(metrics.Recorder{}),
		service.WithLogger(&logger),
		service.WithConfirmations(cfg.ConfirmationsEnabled()),
		service.WithLocation(loc),
		service.WithHistoryLimit(cfg.Rental.HistoryLimit),
	)
	users := service.NewUserService(db, l, eventBus, metrics.Recorder{}, &logger)

	stateRepo := initStateRepository(ctx, redisClient, &logger)
	state := service.NewStateService(
		stateRepo,
		cfg.API.UserRateLimit.Requests,
		time.Duration(cfg.API.UserRateLimit.WindowSeconds)*time.Second,
		cfg.IdempotencyTTL(),
		&logger,
	)

	reminders := worker.NewReminderScheduler(db, notifier, eventBus, domain.SystemClock{}, worker.ReminderConfig{
		Lead:        time.Duration(cfg.Notifications.ReminderLeadMinutes) * time.Minute,
		Interval:    time.Duration(cfg.Notifications.ReminderIntervalSeconds) * time.Second,
		OverageRate: table.OverageRate(),
		Location:    loc,
	}, &logger)
	go reminders.Start(ctx)

	initSheets(ctx, cfg, eventBus, redisClient, &logger)

	backups := database.NewBackupService(db, cfg.Backup, &logger)
	go backups.Start(ctx)

	report := export.NewRentalReport(cfg.Exports.Path, loc, &logger)
	if botAPI != nil && len(cfg.Telegram.Managers) > 0 {
		opsBot := bot.NewBot(bot.NewBotWrapper(botAPI), cfg.Telegram, rentals, users, report, loc, &logger)
		go opsBot.Start(ctx)
		defer opsBot.Stop()
	}

	startMetrics(ctx, cfg, &logger)

	grpcServer, err := api.NewGRPCServer(&cfg.API, db, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("create grpc server")
		return err
	}
	go grpcServer.WatchHealth(ctx, 15*time.Second)

	httpServer := api.NewHTTPServer(cfg.API, api.Dependencies{
		Rentals:       rentals,
		Users:         users,
		State:         state,
		Notifications: db,
		Health:        db,
		Report:        report,
		Location:      loc,
	}, &logger)

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func loadSpots(cfg *config.Config, logger *zerolog.Logger) ([]models.RentalSpot, error) {
	spotsPath := os.Getenv("SPOTS_PATH")
	if spotsPath == "" {
		spotsPath = cfg.Rental.SpotsFile
	}
	if spotsPath == "" {
		spotsPath = "configs/spots.yaml"
	}
	spotsData, err := os.ReadFile(spotsPath)
	if err != nil {
		logger.Error().Err(err).Str("spots_path", spotsPath).Msg("read spots")
		return nil, err
	}

	var spotsConfig struct {
		Spots []models.RentalSpot `yaml:"spots"`
	}
	if err := yaml.Unmarshal(spotsData, &spotsConfig); err != nil {
		logger.Error().Err(err).Str("spots_path", spotsPath).Msg("parse spots")
		return nil, err
	}
	if err := config.ValidateSpots(spotsConfig.Spots); err != nil {
		return nil, fmt.Errorf("spots file %s: %w", spotsPath, err)
	}

	return spotsConfig.Spots, nil
}

func initDatabase(ctx context.Context, cfg *config.Config, spots []models.RentalSpot, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	spotPointers := make([]*models.RentalSpot, len(spots))
	for i := range spots {
		spotPointers[i] = &spots[i]
	}
	if err := db.SyncSpots(ctx, spotPointers); err != nil {
		db.Close()
		return nil, fmt.Errorf("sync spots: %w", err)
	}
	logger.Info().Int("spots", len(spots)).Msg("rental spots synced")
	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initStateRepository prefers Redis so limits hold across instances and
// falls back to process memory while Redis is unreachable.
func initStateRepository(ctx context.Context, redisClient *redis.Client, logger *zerolog.Logger) domain.StateRepository {
	memory := repository.NewMemoryStateRepository()
	go memory.StartSweeper(ctx, time.Minute)
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverStateRepository(repository.NewRedisStateRepository(redisClient), memory, logger)
}

// initTelegram connects the bot used for ops copies and operator commands.
// A nil result disables both.
func initTelegram(cfg *config.Config, logger *zerolog.Logger) *tgbotapi.BotAPI {
	if cfg.Telegram.BotToken == "" {
		return nil
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram bot init failed, ops channel and bot disabled")
		return nil
	}
	botAPI.Debug = cfg.Telegram.Debug
	logger.Info().Str("bot", botAPI.Self.UserName).Int("managers", len(cfg.Telegram.Managers)).Msg("telegram bot connected")
	return botAPI
}

func buildSender(cfg *config.Config, botAPI *tgbotapi.BotAPI, logger *zerolog.Logger) domain.NotificationSender {
	senders := notify.MultiSender{}
	if cfg.Notifications.WhatsApp.Enabled {
		senders = append(senders, notify.NewWhatsAppLinkSender(cfg.Notifications.WhatsApp.BusinessNumber))
	}

	if botAPI != nil && cfg.Telegram.OpsChatID != 0 {
		senders = append(senders, notify.NewTelegramSender(botAPI, cfg.Telegram.OpsChatID))
		logger.Info().Int64("chat_id", cfg.Telegram.OpsChatID).Msg("telegram ops channel enabled")
	}

	if len(senders) == 0 {
		logger.Warn().Msg("no notification channel configured, messages are only audited")
	}
	return senders
}

func initSheets(ctx context.Context, cfg *config.Config, eventBus *events.EventBus, redisClient *redis.Client, logger *zerolog.Logger) {
	if cfg.Google.CredentialsFile == "" || cfg.Google.RentalsSpreadsheetID == "" {
		return
	}

	ledgerSheet, err := google.NewSheetsLedger(ctx, cfg.Google.CredentialsFile, cfg.Google.RentalsSpreadsheetID, cfg.Google.SheetName, cfg.Location())
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return
	}
	if err := ledgerSheet.TestConnection(ctx); err != nil {
		email, _ := google.ServiceAccountEmail(cfg.Google.CredentialsFile)
		logger.Warn().Err(err).Str("service_account", email).Msg("google sheets not reachable, share the spreadsheet with the service account")
		return
	}
	if err := ledgerSheet.EnsureHeader(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets header check failed")
	}

	sheetsWorker := worker.NewSheetsWorker(ledgerSheet, redisClient, worker.RetryPolicy{}, logger)
	eventBus.Subscribe(events.EventRentalEnded, sheetsWorker.HandleEvent)
	go sheetsWorker.Start(ctx)
	logger.Info().Str("spreadsheet_id", cfg.Google.RentalsSpreadsheetID).Msg("google sheets connected")
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	go func() {
		if !cfg.API.GRPC.Enabled {
			return
		}
		if err := grpcServer.Serve(); err != nil {
			logger.Error().Err(err).Msg("grpc server stopped")
		}
	}()

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Str("grpc_addr", grpcServer.Addr()).Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcServer.Shutdown(shutdownCtx)
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
