package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"umbrella/internal/domain"
	"umbrella/internal/events"
	"umbrella/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(store domain.RentalStore, queue domain.NotificationQueue, pub domain.EventPublisher, now *time.Time) *ReminderScheduler {
	logger := zerolog.Nop()
	clock := domain.ClockFunc(func() time.Time { return *now })
	return NewReminderScheduler(store, queue, pub, clock, ReminderConfig{
		Lead:        15 * time.Minute,
		Interval:    time.Minute,
		OverageRate: 3000,
		Location:    time.UTC,
	}, &logger)
}

func TestReminderScheduler_RunOnce(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 3, 10, 1, 0, 0, 0, time.UTC)

	t.Run("NotDueYet", func(t *testing.T) {
		db := newTestDB(t)
		seedRental(t, db, start, 1)
		now := start.Add(30 * time.Minute)
		queue := &fakeQueue{}
		s := newTestScheduler(db, queue, nil, &now)

		n, err := s.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.Empty(t, queue.msgs)
	})

	t.Run("RemindsOnce", func(t *testing.T) {
		db := newTestDB(t)
		r := seedRental(t, db, start, 1)
		now := start.Add(50 * time.Minute)
		queue := &fakeQueue{}
		pub := &fakePublisher{}
		s := newTestScheduler(db, queue, pub, &now)

		n, err := s.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		require.Len(t, queue.msgs, 1)

		msg := queue.msgs[0]
		assert.Equal(t, models.NotificationReminder, msg.Type)
		assert.Equal(t, r.ID, msg.RentalID)
		assert.Equal(t, "081298765432", msg.Phone)
		assert.Contains(t, msg.Text, "Halo Siti!")
		assert.Contains(t, msg.Text, "*Labtek V*")
		assert.Contains(t, msg.Text, "*10 menit* (pukul 02:00)")

		require.Len(t, pub.events, 1)
		assert.Equal(t, events.EventRentalReminded, pub.events[0].kind)

		now = now.Add(time.Minute)
		n, err = s.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.Len(t, queue.msgs, 1)

		got, err := db.GetRental(ctx, r.ID)
		require.NoError(t, err)
		assert.NotNil(t, got.RemindedAt)
	})

	t.Run("OverdueSkipped", func(t *testing.T) {
		db := newTestDB(t)
		r := seedRental(t, db, start, 1)
		now := start.Add(2 * time.Hour)
		queue := &fakeQueue{}
		s := newTestScheduler(db, queue, nil, &now)

		n, err := s.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.Empty(t, queue.msgs)

		got, err := db.GetRental(ctx, r.ID)
		require.NoError(t, err)
		assert.NotNil(t, got.RemindedAt)
	})

	t.Run("QueueFailureStillClaims", func(t *testing.T) {
		db := newTestDB(t)
		seedRental(t, db, start, 1)
		now := start.Add(50 * time.Minute)
		queue := &fakeQueue{err: errors.New("full")}
		s := newTestScheduler(db, queue, nil, &now)

		n, err := s.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		queue.err = nil
		n, err = s.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}

func TestReminderScheduler_StartStops(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()
	s := newTestScheduler(db, &fakeQueue{}, nil, &now)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
