package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"umbrella/internal/domain"
	"umbrella/internal/events"
	"umbrella/internal/logging"
	"umbrella/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// LedgerTask is one ended rental waiting to be mirrored into the spreadsheet.
type LedgerTask struct {
	Rental    *models.Rental `json:"rental"`
	SpotName  string         `json:"spot_name"`
	Attempt   int            `json:"attempt"`
	CreatedAt time.Time      `json:"created_at"`
}

// SheetsWorker mirrors ended rentals into Google Sheets. Tasks go through a
// Redis list when one is configured so they survive restarts; otherwise an
// in-memory queue is used.
type SheetsWorker struct {
	sheets         domain.RentalLedgerWriter
	redis          *redis.Client
	retryPolicy    RetryPolicy
	queue          chan LedgerTask
	redisQueueKey  string
	deadLetterKey  string
	pollInterval   time.Duration
	enqueueTimeout time.Duration
	logger         *zerolog.Logger
}

func NewSheetsWorker(sheets domain.RentalLedgerWriter, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *SheetsWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	return &SheetsWorker{
		sheets:         sheets,
		redis:          redisClient,
		retryPolicy:    retry.withDefaults(),
		queue:          make(chan LedgerTask, 128),
		redisQueueKey:  "umbrella:sheets:queue",
		deadLetterKey:  "umbrella:sheets:deadletter",
		pollInterval:   2 * time.Second,
		enqueueTimeout: 2 * time.Second,
		logger:         logging.Component(logger, "sheets_worker"),
	}
}

// HandleEvent subscribes the worker to rental_ended events. It runs on the
// publishing goroutine, so the Redis push is bounded by enqueueTimeout.
func (w *SheetsWorker) HandleEvent(event *events.Event) error {
	var payload events.RentalEventPayload
	if err := event.Decode(&payload); err != nil {
		return fmt.Errorf("decode rental event: %w", err)
	}
	rental := &models.Rental{
		ID:                   payload.RentalID,
		UserID:               payload.UserID,
		SpotID:               payload.SpotID,
		StartTime:            payload.StartTime,
		EndTime:              payload.EndTime,
		AllowedDurationHours: payload.DurationHours,
		Active:               payload.EndTime == nil,
		ExtraCharge:          payload.ExtraCharge,
		Price:                payload.Price,
		PaymentMethod:        models.PaymentMethod(payload.PaymentMethod),
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.enqueueTimeout)
	defer cancel()
	return w.Enqueue(ctx, LedgerTask{Rental: rental, SpotName: payload.SpotName})
}

func (w *SheetsWorker) Enqueue(ctx context.Context, task LedgerTask) error {
	if task.Rental == nil || task.Rental.ID == 0 {
		return errors.New("rental id is required")
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, w.redisQueueKey, task); err != nil {
			w.logger.Warn().Err(err).Msg("Redis push failed, falling back to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
		return nil
	default:
		return fmt.Errorf("sheets queue full, rental %d not mirrored", task.Rental.ID)
	}
}

// Start launches the main loop; it stops when ctx is done.
func (w *SheetsWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("Sheets worker started")
	defer w.logger.Info().Msg("Sheets worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		if w.redis == nil {
			select {
			case <-ctx.Done():
				return
			case t := <-w.queue:
				w.processTask(ctx, &t)
			}
			continue
		}
		sleepCtx(ctx, w.pollInterval)
	}
}

func (w *SheetsWorker) tryLocalQueue() (LedgerTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return LedgerTask{}, false
	}
}

func (w *SheetsWorker) tryRedis(ctx context.Context) (LedgerTask, bool) {
	if w.redis == nil {
		return LedgerTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			w.logger.Warn().Err(err).Msg("Redis BRPOP failed")
		}
		return LedgerTask{}, false
	}
	if len(res) != 2 {
		return LedgerTask{}, false
	}
	var task LedgerTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("Failed to decode sheets task")
		return LedgerTask{}, false
	}
	return task, true
}

func (w *SheetsWorker) processTask(ctx context.Context, task *LedgerTask) {
	err := w.sheets.AppendRental(ctx, task.Rental, task.SpotName)
	if err == nil {
		w.logger.Debug().Int64("rental_id", task.Rental.ID).Msg("Rental mirrored to sheets")
		return
	}
	w.retryOrFail(ctx, task, err)
}

func (w *SheetsWorker) retryOrFail(ctx context.Context, task *LedgerTask, cause error) {
	task.Attempt++
	if task.Attempt >= w.retryPolicy.MaxRetries {
		w.logger.Error().Err(cause).Int64("rental_id", task.Rental.ID).Int("attempts", task.Attempt).Msg("Sheets sync failed permanently")
		w.pushDeadLetter(ctx, task)
		return
	}

	delay := w.retryPolicy.NextDelay(task.Attempt)
	w.logger.Warn().Err(cause).Int64("rental_id", task.Rental.ID).Dur("retry_in", delay).Msg("Sheets sync failed, will retry")
	retry := *task
	time.AfterFunc(delay, func() {
		if ctx.Err() != nil {
			return
		}
		if err := w.Enqueue(ctx, retry); err != nil {
			w.logger.Error().Err(err).Int64("rental_id", retry.Rental.ID).Msg("Failed to requeue sheets task")
		}
	})
}

func (w *SheetsWorker) pushRedis(ctx context.Context, key string, task LedgerTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}

func (w *SheetsWorker) pushDeadLetter(ctx context.Context, task *LedgerTask) {
	if w.redis == nil {
		return
	}
	if err := w.pushRedis(ctx, w.deadLetterKey, *task); err != nil {
		w.logger.Error().Err(err).Int64("rental_id", task.Rental.ID).Msg("Dead letter push failed")
	}
}
