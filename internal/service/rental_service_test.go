package service

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"umbrella/internal/database"
	"umbrella/internal/domain"
	"umbrella/internal/events"
	"umbrella/internal/ledger"
	"umbrella/internal/models"
	"umbrella/internal/pricing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingQueue struct {
	mu   sync.Mutex
	msgs []domain.OutgoingMessage
	err  error
}

func (q *recordingQueue) Enqueue(ctx context.Context, msg domain.OutgoingMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.msgs = append(q.msgs, msg)
	return nil
}

func (q *recordingQueue) Messages() []domain.OutgoingMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.OutgoingMessage(nil), q.msgs...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.Event
}

func (p *recordingPublisher) PublishJSON(eventType string, payload interface{}) error {
	ev, err := events.NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, &ev)
	return nil
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type countingMetrics struct {
	started, ended, topUps int32
}

func (m *countingMetrics) RentalStarted(string, int64)                   { atomic.AddInt32(&m.started, 1) }
func (m *countingMetrics) RentalEnded(time.Duration, int64)              { atomic.AddInt32(&m.ended, 1) }
func (m *countingMetrics) TopUp(int64)                                   { atomic.AddInt32(&m.topUps, 1) }
func (m *countingMetrics) ObserveOperation(string, time.Duration, error) {}

// untouchedStore fails the test on any store access.
type untouchedStore struct {
	domain.RentalStore
}

type fixture struct {
	db      *database.DB
	svc     *RentalService
	users   *UserService
	queue   *recordingQueue
	events  *recordingPublisher
	metrics *countingMetrics
	now     time.Time
}

var testStart = time.Date(2025, 3, 10, 1, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, path string, opts ...Option) *fixture {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(path, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		db:      db,
		queue:   &recordingQueue{},
		events:  &recordingPublisher{},
		metrics: &countingMetrics{},
		now:     testStart,
	}
	clock := domain.ClockFunc(func() time.Time { return f.now })
	l := ledger.New(db, models.DefaultTopUpOptions, &logger)

	base := []Option{
		WithNotifier(f.queue),
		WithEvents(f.events),
		WithMetrics(f.metrics),
		WithLogger(&logger),
		WithLocation(time.UTC),
	}
	f.svc = NewRentalService(db, pricing.Default(), l, clock, append(base, opts...)...)
	f.users = NewUserService(db, l, f.events, f.metrics, &logger)

	require.NoError(t, db.UpsertSpot(context.Background(), &models.RentalSpot{ID: "labtek-v", Name: "Labtek V", UmbrellaCount: 12}))
	return f
}

func (f *fixture) user(t *testing.T, balance int64) *models.User {
	t.Helper()
	u := &models.User{Name: "Budi Santoso", Phone: "081234567890", Balance: balance}
	require.NoError(t, f.db.CreateUser(context.Background(), u))
	return u
}

func (f *fixture) balance(t *testing.T, userID string) int64 {
	t.Helper()
	u, err := f.db.GetUser(context.Background(), userID)
	require.NoError(t, err)
	return u.Balance
}

func startReq(userID string, hours int, method models.PaymentMethod) domain.StartRequest {
	return domain.StartRequest{UserID: userID, SpotID: "labtek-v", DurationHours: hours, PaymentMethod: method}
}

func TestStartRental_SaldoDebitsPrice(t *testing.T) {
	f := newFixture(t, ":memory:")
	u := f.user(t, 5000)
	ctx := context.Background()

	r, err := f.svc.StartRental(ctx, startReq(u.ID, 1, models.MethodSaldo))
	require.NoError(t, err)
	assert.True(t, r.Active)
	assert.Nil(t, r.EndTime)
	assert.Equal(t, int64(0), r.ExtraCharge)
	assert.Equal(t, int64(2000), r.Price)
	assert.Equal(t, testStart, r.StartTime)
	assert.Equal(t, int64(3000), f.balance(t, u.ID))

	active, err := f.svc.ActiveRental(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, r.ID, active.ID)

	assert.Equal(t, []string{events.EventRentalStarted}, f.events.Types())
	var payload events.RentalEventPayload
	require.NoError(t, f.events.events[0].Decode(&payload))
	require.NotNil(t, payload.Balance)
	assert.Equal(t, int64(3000), *payload.Balance)
	assert.Equal(t, "Labtek V", payload.SpotName)

	msgs := f.queue.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.NotificationRentalStart, msgs[0].Type)
	assert.Equal(t, r.ID, msgs[0].RentalID)
	assert.Equal(t, "081234567890", msgs[0].Phone)
	assert.Contains(t, msgs[0].Text, "Halo Budi! ☂️")
	assert.Contains(t, msgs[0].Text, "📍 Lokasi: Labtek V")
	assert.Contains(t, msgs[0].Text, "Kembalikan payung sebelum *02:00*")
	assert.Equal(t, int32(1), f.metrics.started)
}

func TestStartRental_ExternalMethodKeepsBalance(t *testing.T) {
	f := newFixture(t, ":memory:")
	u := f.user(t, 0)

	r, err := f.svc.StartRental(context.Background(), startReq(u.ID, 3, models.MethodQRIS))
	require.NoError(t, err)
	assert.Equal(t, int64(6000), r.Price)
	assert.Equal(t, models.MethodQRIS, r.PaymentMethod)
	assert.Equal(t, int64(0), f.balance(t, u.ID))
}

func TestStartRental_InsufficientBalance(t *testing.T) {
	f := newFixture(t, ":memory:")
	u := f.user(t, 1000)
	ctx := context.Background()

	_, err := f.svc.StartRental(ctx, startReq(u.ID, 1, models.MethodSaldo))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, int64(1000), f.balance(t, u.ID))

	active, err := f.svc.ActiveRental(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, active)
	assert.Empty(t, f.queue.Messages())
	assert.Empty(t, f.events.Types())
}

func TestStartRental_AlreadyActive(t *testing.T) {
	f := newFixture(t, ":memory:")
	u := f.user(t, 10000)
	ctx := context.Background()

	_, err := f.svc.StartRental(ctx, startReq(u.ID, 1, models.MethodSaldo))
	require.NoError(t, err)

	_, err = f.svc.StartRental(ctx, startReq(u.ID, 2, models.MethodSaldo))
	assert.ErrorIs(t, err, domain.ErrRentalAlreadyActive)
	assert.Equal(t, int64(8000), f.balance(t, u.ID))
}

func TestStartRental_ValidationBeforeStore(t *testing.T) {
	logger := zerolog.Nop()
	svc := NewRentalService(untouchedStore{}, pricing.Default(), nil, nil, WithLogger(&logger))
	ctx := context.Background()

	_, err := svc.StartRental(ctx, domain.StartRequest{UserID: "u", SpotID: "s", DurationHours: 4, PaymentMethod: models.MethodSaldo})
	assert.ErrorIs(t, err, domain.ErrInvalidDuration)

	_, err = svc.StartRental(ctx, domain.StartRequest{UserID: "u", SpotID: "s", DurationHours: 0, PaymentMethod: models.MethodSaldo})
	assert.ErrorIs(t, err, domain.ErrInvalidDuration)

	_, err = svc.StartRental(ctx, domain.StartRequest{UserID: "u", SpotID: "s", DurationHours: 1, PaymentMethod: "cash"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.ErrorIs(t, err, models.ErrInvalidPaymentMethod)

	_, err = svc.StartRental(ctx, domain.StartRequest{SpotID: "s", DurationHours: 1, PaymentMethod: models.MethodSaldo})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestStartRental_UnknownSpotOrUser(t *testing.T) {
	f := newFixture(t, ":memory:")
	u := f.user(t, 5000)
	ctx := context.Background()

	req := startReq(u.ID, 1, models.MethodSaldo)
	req.SpotID = "nowhere"
	_, err := f.svc.StartRental(ctx, req)
	assert.ErrorIs(t, err, domain.ErrSpotNotFound)

	_, err = f.svc.StartRental(ctx, startReq("ghost", 1, models.MethodSaldo))
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	assert.Equal(t, int64(5000), f.balance(t, u.ID))
}

func TestStartRental_NotifierFailureIgnored(t *testing.T) {
	f := newFixture(t, ":memory:")
	f.queue.err = errors.New("queue full")
	u := f.user(t, 5000)

	r, err := f.svc.StartRental(context.Background(), startReq(u.ID, 1, models.MethodSaldo))
	require.NoError(t, err)
	assert.True(t, r.Active)

	f.now = testStart.Add(30 * time.Minute)
	_, err = f.svc.EndRental(context.Background(), r.ID)
	require.NoError(t, err)
}

func TestStartRental_ConfirmationsDisabled(t *testing.T) {
	f := newFixture(t, ":memory:", WithConfirmations(false))
	u := f.user(t, 5000)

	r, err := f.svc.StartRental(context.Background(), startReq(u.ID, 1, models.MethodSaldo))
	require.NoError(t, err)
	f.now = testStart.Add(time.Hour)
	_, err = f.svc.EndRental(context.Background(), r.ID)
	require.NoError(t, err)

	assert.Empty(t, f.queue.Messages())
	assert.Len(t, f.events.Types(), 2)
}

func TestEndRental_Overage(t *testing.T) {
	cases := []struct {
		name    string
		elapsed time.Duration
		hours   int
		charge  int64
		fine    string
	}{
		{"within allowed", 45 * time.Minute, 1, 0, "✅ Tidak Ada Denda"},
		{"exactly at deadline", 2 * time.Hour, 2, 0, "✅ Tidak Ada Denda"},
		{"one and a half hours over", 150 * time.Minute, 1, 4500, "⚠️ Denda Overtime: Rp4.500"},
		{"one hour over", 2 * time.Hour, 1, 3000, "⚠️ Denda Overtime: Rp3.000"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, ":memory:")
			u := f.user(t, 10000)
			ctx := context.Background()

			r, err := f.svc.StartRental(ctx, startReq(u.ID, tc.hours, models.MethodGoPay))
			require.NoError(t, err)

			f.now = testStart.Add(tc.elapsed)
			ended, err := f.svc.EndRental(ctx, r.ID)
			require.NoError(t, err)
			assert.False(t, ended.Active)
			require.NotNil(t, ended.EndTime)
			assert.Equal(t, f.now, *ended.EndTime)
			assert.Equal(t, tc.charge, ended.ExtraCharge)

			stored, err := f.db.GetRental(ctx, r.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.charge, stored.ExtraCharge)
			assert.False(t, stored.Active)

			msgs := f.queue.Messages()
			require.Len(t, msgs, 2)
			assert.Equal(t, models.NotificationReceipt, msgs[1].Type)
			assert.Contains(t, msgs[1].Text, tc.fine)
			assert.Contains(t, msgs[1].Text, "💳 Metode Bayar: GoPay")

			assert.Equal(t, int64(10000), f.balance(t, u.ID))
		})
	}
}

func TestEndRental_OnlyOnce(t *testing.T) {
	f := newFixture(t, ":memory:")
	u := f.user(t, 5000)
	ctx := context.Background()

	r, err := f.svc.StartRental(ctx, startReq(u.ID, 1, models.MethodSaldo))
	require.NoError(t, err)

	f.now = testStart.Add(2 * time.Hour)
	first, err := f.svc.EndRental(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), first.ExtraCharge)

	f.now = testStart.Add(5 * time.Hour)
	_, err = f.svc.EndRental(ctx, r.ID)
	assert.ErrorIs(t, err, domain.ErrRentalNotActive)

	stored, err := f.db.GetRental(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), stored.ExtraCharge)
	assert.Equal(t, testStart.Add(2*time.Hour), *stored.EndTime)
	assert.Equal(t, int32(1), f.metrics.ended)

	active, err := f.svc.ActiveRental(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, active)

	// a new rental may start once the previous one ended
	_, err = f.svc.StartRental(ctx, startReq(u.ID, 1, models.MethodSaldo))
	require.NoError(t, err)
}

func TestEndRental_Unknown(t *testing.T) {
	f := newFixture(t, ":memory:")
	_, err := f.svc.EndRental(context.Background(), 999)
	assert.ErrorIs(t, err, domain.ErrRentalNotActive)
	assert.ErrorIs(t, err, domain.ErrRentalNotFound)

	_, err = f.svc.EndRental(context.Background(), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestEndRental_ConcurrentSingleTransition(t *testing.T) {
	f := newFixture(t, filepath.Join(t.TempDir(), "umbrella.db"))
	u := f.user(t, 5000)
	ctx := context.Background()

	r, err := f.svc.StartRental(ctx, startReq(u.ID, 1, models.MethodSaldo))
	require.NoError(t, err)
	f.now = testStart.Add(90 * time.Minute)

	var (
		wg        sync.WaitGroup
		successes int32
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.EndRental(ctx, r.ID); err == nil {
				atomic.AddInt32(&successes, 1)
			} else {
				assert.ErrorIs(t, err, domain.ErrRentalNotActive)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), successes)
}

func TestStartRental_ConcurrentSingleActive(t *testing.T) {
	f := newFixture(t, filepath.Join(t.TempDir(), "umbrella.db"))
	u := f.user(t, 20000)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		successes int32
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.StartRental(ctx, startReq(u.ID, 1, models.MethodSaldo)); err == nil {
				atomic.AddInt32(&successes, 1)
			} else {
				assert.ErrorIs(t, err, domain.ErrRentalAlreadyActive)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), successes)
	assert.Equal(t, int64(18000), f.balance(t, u.ID))
}

func TestQuoteAndDurations(t *testing.T) {
	f := newFixture(t, ":memory:")

	q, err := f.svc.Quote(2)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), q.Price)
	assert.Equal(t, int64(3000), q.OverageRatePerHour)
	assert.Equal(t, testStart.Add(2*time.Hour), q.Deadline)

	_, err = f.svc.Quote(5)
	assert.ErrorIs(t, err, domain.ErrInvalidDuration)

	durations := f.svc.Durations()
	require.Len(t, durations, 3)
	assert.Equal(t, 1, durations[0].DurationHours)
	assert.Equal(t, int64(6000), durations[2].Price)
}

func TestHistoryAndRange(t *testing.T) {
	f := newFixture(t, ":memory:", WithHistoryLimit(2))
	u := f.user(t, 10000)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 3; i++ {
		f.now = testStart.Add(time.Duration(i) * 3 * time.Hour)
		r, err := f.svc.StartRental(ctx, startReq(u.ID, 1, models.MethodOVO))
		require.NoError(t, err)
		f.now = f.now.Add(30 * time.Minute)
		_, err = f.svc.EndRental(ctx, r.ID)
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}

	history, err := f.svc.History(ctx, u.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ids[2], history[0].ID)
	assert.Equal(t, ids[1], history[1].ID)

	between, err := f.svc.RentalsBetween(ctx, testStart, testStart.Add(4*time.Hour))
	require.NoError(t, err)
	assert.Len(t, between, 2)

	_, err = f.svc.RentalsBetween(ctx, testStart, testStart)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	got, err := f.svc.GetRental(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.UserID)
}

func TestSpots(t *testing.T) {
	f := newFixture(t, ":memory:")
	spots, err := f.svc.Spots(context.Background())
	require.NoError(t, err)
	require.Len(t, spots, 1)
	assert.Equal(t, "Labtek V", spots[0].Name)
}

func TestStoreUnavailable(t *testing.T) {
	f := newFixture(t, ":memory:")
	u := f.user(t, 5000)
	require.NoError(t, f.db.Close())
	ctx := context.Background()

	_, err := f.svc.StartRental(ctx, startReq(u.ID, 1, models.MethodSaldo))
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	_, err = f.svc.Spots(ctx)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	_, err = f.svc.EndRental(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
