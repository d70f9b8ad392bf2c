package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/studypulse/timeline/internal/model"
)

// EventStore defines the interface for participant study event persistence
type EventStore interface {
	// Publish records a study event. Enrollment is first-write-wins so
	// event-anchored schedules never shift; every other event keeps the
	// latest timestamp.
	Publish(ctx context.Context, record *model.EventRecord) error

	// EventMap retrieves a participant's events as an eventID -> instant map
	EventMap(ctx context.Context, studyID, healthCode string) (map[string]time.Time, error)

	// DeleteForParticipant removes all events of one participant
	DeleteForParticipant(ctx context.Context, studyID, healthCode string) error
}

// SQLiteEventStore implements EventStore using SQLite
type SQLiteEventStore struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteEventStore creates a new SQLite-based study event store
func NewSQLiteEventStore(logger *zap.Logger, db *sql.DB) (*SQLiteEventStore, error) {
	store := &SQLiteEventStore{
		logger: logger,
		db:     db,
	}
	if err := store.initialize(); err != nil {
		return nil, err
	}
	return store, nil
}

// initialize creates the necessary tables if they don't exist
func (s *SQLiteEventStore) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS study_events (
			study_id TEXT NOT NULL,
			health_code TEXT NOT NULL,
			event_id TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			PRIMARY KEY (study_id, health_code, event_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize study events table: %w", err)
	}
	return nil
}

// Publish implements EventStore.Publish
func (s *SQLiteEventStore) Publish(ctx context.Context, record *model.EventRecord) error {
	var err error
	if record.EventID == model.EventEnrollment {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO study_events (study_id, health_code, event_id, timestamp)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(study_id, health_code, event_id) DO NOTHING`,
			record.StudyID, record.HealthCode, record.EventID, record.Timestamp)
	} else {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO study_events (study_id, health_code, event_id, timestamp)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(study_id, health_code, event_id) DO UPDATE SET timestamp = excluded.timestamp
			WHERE excluded.timestamp > timestamp`,
			record.StudyID, record.HealthCode, record.EventID, record.Timestamp)
	}
	if err != nil {
		return fmt.Errorf("failed to publish study event: %w", err)
	}

	s.logger.Debug("Published study event",
		zap.String("study_id", record.StudyID),
		zap.String("event_id", record.EventID),
		zap.Time("timestamp", record.Timestamp))
	return nil
}

// EventMap implements EventStore.EventMap
func (s *SQLiteEventStore) EventMap(ctx context.Context, studyID, healthCode string) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, timestamp
		FROM study_events
		WHERE study_id = ? AND health_code = ?`, studyID, healthCode)
	if err != nil {
		return nil, fmt.Errorf("failed to query study events: %w", err)
	}
	defer rows.Close()

	events := make(map[string]time.Time)
	for rows.Next() {
		var eventID string
		var timestamp time.Time
		if err := rows.Scan(&eventID, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan study event: %w", err)
		}
		events[eventID] = timestamp
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return events, nil
}

// DeleteForParticipant implements EventStore.DeleteForParticipant
func (s *SQLiteEventStore) DeleteForParticipant(ctx context.Context, studyID, healthCode string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM study_events WHERE study_id = ? AND health_code = ?", studyID, healthCode)
	if err != nil {
		return fmt.Errorf("failed to delete study events: %w", err)
	}
	return nil
}
