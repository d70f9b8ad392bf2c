package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/studypulse/timeline/internal/model"
)

// PlanStore defines the interface for schedule plan persistence
type PlanStore interface {
	// Create stores a new schedule plan
	Create(ctx context.Context, plan *model.SchedulePlan) error

	// Get retrieves a schedule plan by GUID
	Get(ctx context.Context, guid string) (*model.SchedulePlan, error)

	// ListForStudy retrieves the plans of a study whose app-version range
	// admits the given client, ordered by creation time
	ListForStudy(ctx context.Context, studyID string, client model.ClientInfo) ([]*model.SchedulePlan, error)

	// Delete removes a schedule plan
	Delete(ctx context.Context, guid string) error
}

// SQLitePlanStore implements PlanStore using SQLite
type SQLitePlanStore struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLitePlanStore creates a new SQLite-based plan store
func NewSQLitePlanStore(logger *zap.Logger, db *sql.DB) (*SQLitePlanStore, error) {
	store := &SQLitePlanStore{
		logger: logger,
		db:     db,
	}
	if err := store.initialize(); err != nil {
		return nil, err
	}
	return store, nil
}

// initialize creates the necessary tables if they don't exist
func (s *SQLitePlanStore) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schedule_plans (
			guid TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			study_id TEXT NOT NULL,
			min_app_version INTEGER,
			max_app_version INTEGER,
			strategy TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_schedule_plans_study_id ON schedule_plans(study_id);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize schedule plans table: %w", err)
	}
	return nil
}

// Create implements PlanStore.Create
func (s *SQLitePlanStore) Create(ctx context.Context, plan *model.SchedulePlan) error {
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now()
	}
	plan.UpdatedAt = time.Now()

	strategy, err := json.Marshal(plan.Strategy)
	if err != nil {
		return fmt.Errorf("failed to marshal strategy: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO schedule_plans (
			guid, label, study_id, min_app_version, max_app_version, strategy, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		plan.GUID,
		plan.Label,
		plan.StudyID,
		nullableInt(plan.MinAppVersion),
		nullableInt(plan.MaxAppVersion),
		string(strategy),
		plan.CreatedAt,
		plan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store schedule plan: %w", err)
	}

	s.logger.Info("Created schedule plan",
		zap.String("guid", plan.GUID),
		zap.String("study_id", plan.StudyID),
		zap.String("label", plan.Label))
	return nil
}

// Get implements PlanStore.Get
func (s *SQLitePlanStore) Get(ctx context.Context, guid string) (*model.SchedulePlan, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT guid, label, study_id, min_app_version, max_app_version, strategy, created_at, updated_at
		FROM schedule_plans
		WHERE guid = ?`, guid)

	plan, err := scanPlan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan schedule plan: %w", err)
	}
	return plan, nil
}

// ListForStudy implements PlanStore.ListForStudy
func (s *SQLitePlanStore) ListForStudy(ctx context.Context, studyID string, client model.ClientInfo) ([]*model.SchedulePlan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT guid, label, study_id, min_app_version, max_app_version, strategy, created_at, updated_at
		FROM schedule_plans
		WHERE study_id = ?
		ORDER BY created_at`, studyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedule plans: %w", err)
	}
	defer rows.Close()

	var plans []*model.SchedulePlan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule plan: %w", err)
		}
		if plan.AppliesTo(client) {
			plans = append(plans, plan)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return plans, nil
}

// Delete implements PlanStore.Delete
func (s *SQLitePlanStore) Delete(ctx context.Context, guid string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM schedule_plans WHERE guid = ?", guid)
	if err != nil {
		return fmt.Errorf("failed to delete schedule plan: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("schedule plan not found: %s", guid)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPlan(row rowScanner) (*model.SchedulePlan, error) {
	var plan model.SchedulePlan
	var minVersion, maxVersion sql.NullInt64
	var strategy string

	err := row.Scan(
		&plan.GUID,
		&plan.Label,
		&plan.StudyID,
		&minVersion,
		&maxVersion,
		&strategy,
		&plan.CreatedAt,
		&plan.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if minVersion.Valid {
		v := int(minVersion.Int64)
		plan.MinAppVersion = &v
	}
	if maxVersion.Valid {
		v := int(maxVersion.Int64)
		plan.MaxAppVersion = &v
	}
	if err := json.Unmarshal([]byte(strategy), &plan.Strategy); err != nil {
		return nil, fmt.Errorf("failed to unmarshal strategy: %w", err)
	}
	return &plan, nil
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
