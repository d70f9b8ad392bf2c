package service

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/studypulse/timeline/internal/model"
	"github.com/studypulse/timeline/internal/storage"
	"github.com/studypulse/timeline/internal/testutil"
)

func TestEventIntake(t *testing.T) {
	js, cleanup := testutil.SetupJetStream(t)
	defer cleanup()

	db, err := storage.Open(filepath.Join(t.TempDir(), "timeline.db"))
	require.NoError(t, err)
	defer db.Close()

	events, err := storage.NewSQLiteEventStore(zaptest.NewLogger(t), db)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	intake := NewEventIntake(js, events, zaptest.NewLogger(t))
	require.NoError(t, intake.Start(ctx))
	require.NoError(t, testutil.WaitForStream(t, js, eventStreamName, 5*time.Second))

	record := &model.EventRecord{
		StudyID:    "study-1",
		HealthCode: "hc-1",
		EventID:    model.EventEnrollment,
		Timestamp:  time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, intake.PublishEvent(ctx, record))

	require.Eventually(t, func() bool {
		stored, err := events.EventMap(ctx, "study-1", "hc-1")
		if err != nil {
			return false
		}
		_, ok := stored[model.EventEnrollment]
		return ok
	}, 5*time.Second, 100*time.Millisecond, "event never reached the store")

	stored, err := events.EventMap(ctx, "study-1", "hc-1")
	require.NoError(t, err)
	assert.WithinDuration(t, record.Timestamp, stored[model.EventEnrollment], time.Second)

	t.Run("Publishes Invalidation Notice", func(t *testing.T) {
		messages, err := testutil.ConsumeMessages(js, invalidateSubjectPrefix+"study-1", 2*time.Second)
		require.NoError(t, err)
		require.NotEmpty(t, messages)

		var notice InvalidationNotice
		require.NoError(t, json.Unmarshal(messages[0], &notice))
		assert.Equal(t, "study-1", notice.StudyID)
		assert.Equal(t, "hc-1", notice.HealthCode)
		assert.Equal(t, model.EventEnrollment, notice.EventID)
	})

	t.Run("Terminates Unparseable Events", func(t *testing.T) {
		_, err := js.Publish(eventSubjectPrefix+"study-2", []byte("not json"))
		require.NoError(t, err)

		// A valid event behind the garbage must still get through.
		require.NoError(t, intake.PublishEvent(ctx, &model.EventRecord{
			StudyID:    "study-2",
			HealthCode: "hc-2",
			EventID:    model.EventEnrollment,
			Timestamp:  time.Date(2024, time.June, 2, 9, 0, 0, 0, time.UTC),
		}))

		require.Eventually(t, func() bool {
			stored, err := events.EventMap(ctx, "study-2", "hc-2")
			return err == nil && len(stored) == 1
		}, 5*time.Second, 100*time.Millisecond, "valid event blocked behind unparseable one")
	})

	t.Run("Drops Incomplete Events", func(t *testing.T) {
		require.NoError(t, intake.PublishEvent(ctx, &model.EventRecord{
			StudyID: "study-1",
		}))

		// Give the consumer time to see it, then confirm nothing was stored.
		time.Sleep(500 * time.Millisecond)
		stored, err := events.EventMap(ctx, "study-1", "")
		require.NoError(t, err)
		assert.Empty(t, stored)
	})
}
