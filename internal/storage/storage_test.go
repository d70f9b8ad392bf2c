package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/studypulse/timeline/internal/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "timeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPlanStore(t *testing.T) {
	db := openTestDB(t)
	store, err := NewSQLitePlanStore(zap.NewNop(), db)
	require.NoError(t, err)

	minV := 2
	plan := &model.SchedulePlan{
		GUID:          "plan-1",
		Label:         "Weekly survey",
		StudyID:       "study-1",
		MinAppVersion: &minV,
		Strategy: model.Strategy{
			Type: model.StrategySimple,
			Schedule: &model.Schedule{
				Label:        "Weekly",
				ScheduleType: model.ScheduleTypeRecurring,
				EventID:      model.EventEnrollment,
				Interval:     7 * 24 * time.Hour,
				TimesOfDay:   []model.TimeOfDay{{Hour: 8}},
				Activities: []model.Activity{
					{GUID: "a1", Label: "Survey", Type: model.ActivityTypeSurvey},
				},
			},
		},
	}

	require.NoError(t, store.Create(context.Background(), plan))

	t.Run("Get", func(t *testing.T) {
		loaded, err := store.Get(context.Background(), "plan-1")
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, plan.Label, loaded.Label)
		require.NotNil(t, loaded.MinAppVersion)
		assert.Equal(t, 2, *loaded.MinAppVersion)
		assert.Nil(t, loaded.MaxAppVersion)
		require.NotNil(t, loaded.Strategy.Schedule)
		assert.Equal(t, plan.Strategy.Schedule.TimesOfDay, loaded.Strategy.Schedule.TimesOfDay)
		assert.Equal(t, plan.Strategy.Schedule.Interval, loaded.Strategy.Schedule.Interval)
	})

	t.Run("Get Missing", func(t *testing.T) {
		loaded, err := store.Get(context.Background(), "nope")
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("ListForStudy Filters By App Version", func(t *testing.T) {
		plans, err := store.ListForStudy(context.Background(), "study-1", model.ClientInfo{AppVersion: 3})
		require.NoError(t, err)
		assert.Len(t, plans, 1)

		plans, err = store.ListForStudy(context.Background(), "study-1", model.ClientInfo{AppVersion: 1})
		require.NoError(t, err)
		assert.Empty(t, plans)

		// Unknown version sees everything.
		plans, err = store.ListForStudy(context.Background(), "study-1", model.ClientInfo{})
		require.NoError(t, err)
		assert.Len(t, plans, 1)
	})

	t.Run("ListForStudy Other Study", func(t *testing.T) {
		plans, err := store.ListForStudy(context.Background(), "study-2", model.ClientInfo{})
		require.NoError(t, err)
		assert.Empty(t, plans)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(context.Background(), "plan-1"))
		assert.Error(t, store.Delete(context.Background(), "plan-1"))
	})
}

func TestEventStore(t *testing.T) {
	db := openTestDB(t)
	store, err := NewSQLiteEventStore(zap.NewNop(), db)
	require.NoError(t, err)

	base := time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)

	t.Run("Enrollment Is First Write Wins", func(t *testing.T) {
		record := &model.EventRecord{
			StudyID:    "study-1",
			HealthCode: "hc-1",
			EventID:    model.EventEnrollment,
			Timestamp:  base,
		}
		require.NoError(t, store.Publish(context.Background(), record))

		later := *record
		later.Timestamp = base.Add(24 * time.Hour)
		require.NoError(t, store.Publish(context.Background(), &later))

		events, err := store.EventMap(context.Background(), "study-1", "hc-1")
		require.NoError(t, err)
		assert.WithinDuration(t, base, events[model.EventEnrollment], time.Second)
	})

	t.Run("Finished Events Keep Latest", func(t *testing.T) {
		eventID := model.ActivityFinishedEventID("a1")
		first := &model.EventRecord{
			StudyID: "study-1", HealthCode: "hc-1", EventID: eventID, Timestamp: base,
		}
		require.NoError(t, store.Publish(context.Background(), first))

		later := *first
		later.Timestamp = base.Add(time.Hour)
		require.NoError(t, store.Publish(context.Background(), &later))

		// An older timestamp never rolls the event back.
		stale := *first
		stale.Timestamp = base.Add(-time.Hour)
		require.NoError(t, store.Publish(context.Background(), &stale))

		events, err := store.EventMap(context.Background(), "study-1", "hc-1")
		require.NoError(t, err)
		assert.WithinDuration(t, base.Add(time.Hour), events[eventID], time.Second)
	})

	t.Run("EventMap Scoped To Participant", func(t *testing.T) {
		events, err := store.EventMap(context.Background(), "study-1", "hc-other")
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("DeleteForParticipant", func(t *testing.T) {
		require.NoError(t, store.DeleteForParticipant(context.Background(), "study-1", "hc-1"))
		events, err := store.EventMap(context.Background(), "study-1", "hc-1")
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}

func TestActivityStore(t *testing.T) {
	db := openTestDB(t)
	store, err := NewSQLiteActivityStore(zap.NewNop(), db)
	require.NoError(t, err)

	scheduledOn := time.Date(2024, time.June, 3, 8, 0, 0, 0, time.UTC)
	expiresOn := scheduledOn.Add(3 * 24 * time.Hour)
	activity := model.ScheduledActivity{
		GUID:             model.ScheduledActivityGUID("plan-1", "a1", scheduledOn),
		SchedulePlanGUID: "plan-1",
		StudyID:          "study-1",
		HealthCode:       "hc-1",
		Activity:         model.Activity{GUID: "a1", Label: "Survey", Type: model.ActivityTypeSurvey},
		ScheduleType:     model.ScheduleTypeRecurring,
		ScheduledOn:      scheduledOn,
		ExpiresOn:        &expiresOn,
	}

	windowStart := scheduledOn.Add(-time.Hour)
	windowEnd := scheduledOn.Add(30 * 24 * time.Hour)

	require.NoError(t, store.SaveAll(context.Background(), []model.ScheduledActivity{activity}))

	t.Run("List", func(t *testing.T) {
		listed, err := store.ListForParticipant(context.Background(), "study-1", "hc-1", windowStart, windowEnd)
		require.NoError(t, err)
		require.Len(t, listed, 1)
		assert.Equal(t, activity.GUID, listed[0].GUID)
		assert.Equal(t, "Survey", listed[0].Activity.Label)
		require.NotNil(t, listed[0].ExpiresOn)
		assert.WithinDuration(t, expiresOn, *listed[0].ExpiresOn, time.Second)
	})

	t.Run("Resave Keeps Completion State", func(t *testing.T) {
		finishedOn := scheduledOn.Add(2 * time.Hour)
		require.NoError(t, store.MarkFinished(context.Background(), activity.GUID, finishedOn))

		// Re-running evaluation produces the same row; the upsert must not
		// wipe the finished timestamp.
		require.NoError(t, store.SaveAll(context.Background(), []model.ScheduledActivity{activity}))

		listed, err := store.ListForParticipant(context.Background(), "study-1", "hc-1", windowStart, windowEnd)
		require.NoError(t, err)
		require.Len(t, listed, 1)
		require.NotNil(t, listed[0].FinishedOn)
		assert.WithinDuration(t, finishedOn, *listed[0].FinishedOn, time.Second)
	})

	t.Run("Window Filter", func(t *testing.T) {
		listed, err := store.ListForParticipant(context.Background(), "study-1", "hc-1",
			scheduledOn.Add(time.Hour), windowEnd)
		require.NoError(t, err)
		assert.Empty(t, listed)
	})

	t.Run("MarkStarted Missing", func(t *testing.T) {
		err := store.MarkStarted(context.Background(), "missing-guid", time.Now())
		assert.Error(t, err)
	})
}
