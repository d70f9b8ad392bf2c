package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/studypulse/timeline/internal/model"
)

// ActivityStore defines the interface for scheduled activity persistence.
// Rows are keyed by the deterministic activity GUID, so saving the output of
// a repeated evaluation is a no-op rather than a duplicate.
type ActivityStore interface {
	// SaveAll upserts generated activities, keeping completion state of
	// rows that already exist
	SaveAll(ctx context.Context, activities []model.ScheduledActivity) error

	// ListForParticipant retrieves a participant's activities scheduled
	// inside the window, ordered by scheduled time
	ListForParticipant(ctx context.Context, studyID, healthCode string, windowStart, windowEnd time.Time) ([]*model.ScheduledActivity, error)

	// MarkStarted records when the participant started an activity
	MarkStarted(ctx context.Context, guid string, startedOn time.Time) error

	// MarkFinished records when the participant finished an activity
	MarkFinished(ctx context.Context, guid string, finishedOn time.Time) error
}

// SQLiteActivityStore implements ActivityStore using SQLite
type SQLiteActivityStore struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteActivityStore creates a new SQLite-based scheduled activity store
func NewSQLiteActivityStore(logger *zap.Logger, db *sql.DB) (*SQLiteActivityStore, error) {
	store := &SQLiteActivityStore{
		logger: logger,
		db:     db,
	}
	if err := store.initialize(); err != nil {
		return nil, err
	}
	return store, nil
}

// initialize creates the necessary tables if they don't exist
func (s *SQLiteActivityStore) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS scheduled_activities (
			guid TEXT PRIMARY KEY,
			schedule_plan_guid TEXT NOT NULL,
			study_id TEXT NOT NULL,
			health_code TEXT NOT NULL,
			activity_guid TEXT NOT NULL,
			activity_label TEXT NOT NULL,
			activity_type TEXT NOT NULL,
			activity_ref TEXT,
			schedule_type TEXT NOT NULL,
			persistent INTEGER NOT NULL,
			scheduled_on DATETIME NOT NULL,
			expires_on DATETIME,
			started_on DATETIME,
			finished_on DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_scheduled_activities_participant
			ON scheduled_activities(study_id, health_code, scheduled_on);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize scheduled activities table: %w", err)
	}
	return nil
}

// SaveAll implements ActivityStore.SaveAll
func (s *SQLiteActivityStore) SaveAll(ctx context.Context, activities []model.ScheduledActivity) error {
	if len(activities) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO scheduled_activities (
			guid, schedule_plan_guid, study_id, health_code,
			activity_guid, activity_label, activity_type, activity_ref,
			schedule_type, persistent, scheduled_on, expires_on
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(guid) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range activities {
		a := &activities[i]
		_, err := stmt.ExecContext(ctx,
			a.GUID,
			a.SchedulePlanGUID,
			a.StudyID,
			a.HealthCode,
			a.Activity.GUID,
			a.Activity.Label,
			string(a.Activity.Type),
			a.Activity.Ref,
			string(a.ScheduleType),
			a.Persistent,
			a.ScheduledOn,
			nullableTime(a.ExpiresOn),
		)
		if err != nil {
			return fmt.Errorf("failed to store scheduled activity %s: %w", a.GUID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit scheduled activities: %w", err)
	}
	return nil
}

// ListForParticipant implements ActivityStore.ListForParticipant
func (s *SQLiteActivityStore) ListForParticipant(ctx context.Context, studyID, healthCode string, windowStart, windowEnd time.Time) ([]*model.ScheduledActivity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT guid, schedule_plan_guid, study_id, health_code,
			activity_guid, activity_label, activity_type, activity_ref,
			schedule_type, persistent, scheduled_on, expires_on, started_on, finished_on
		FROM scheduled_activities
		WHERE study_id = ? AND health_code = ? AND scheduled_on >= ? AND scheduled_on <= ?
		ORDER BY scheduled_on`, studyID, healthCode, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled activities: %w", err)
	}
	defer rows.Close()

	var activities []*model.ScheduledActivity
	for rows.Next() {
		a := &model.ScheduledActivity{}
		var ref sql.NullString
		var scheduleType, activityType string
		var expiresOn, startedOn, finishedOn sql.NullTime

		err := rows.Scan(
			&a.GUID,
			&a.SchedulePlanGUID,
			&a.StudyID,
			&a.HealthCode,
			&a.Activity.GUID,
			&a.Activity.Label,
			&activityType,
			&ref,
			&scheduleType,
			&a.Persistent,
			&a.ScheduledOn,
			&expiresOn,
			&startedOn,
			&finishedOn,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheduled activity: %w", err)
		}

		a.Activity.Type = model.ActivityType(activityType)
		a.ScheduleType = model.ScheduleType(scheduleType)
		if ref.Valid {
			a.Activity.Ref = ref.String
		}
		if expiresOn.Valid {
			a.ExpiresOn = &expiresOn.Time
		}
		if startedOn.Valid {
			a.StartedOn = &startedOn.Time
		}
		if finishedOn.Valid {
			a.FinishedOn = &finishedOn.Time
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return activities, nil
}

// MarkStarted implements ActivityStore.MarkStarted
func (s *SQLiteActivityStore) MarkStarted(ctx context.Context, guid string, startedOn time.Time) error {
	return s.markTime(ctx, guid, "started_on", startedOn)
}

// MarkFinished implements ActivityStore.MarkFinished
func (s *SQLiteActivityStore) MarkFinished(ctx context.Context, guid string, finishedOn time.Time) error {
	return s.markTime(ctx, guid, "finished_on", finishedOn)
}

func (s *SQLiteActivityStore) markTime(ctx context.Context, guid, column string, t time.Time) error {
	result, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE scheduled_activities SET %s = ? WHERE guid = ?", column), t, guid)
	if err != nil {
		return fmt.Errorf("failed to update scheduled activity: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("scheduled activity not found: %s", guid)
	}
	return nil
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
