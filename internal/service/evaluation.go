package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/studypulse/timeline/internal/model"
	"github.com/studypulse/timeline/internal/scheduler"
	"github.com/studypulse/timeline/internal/storage"
)

// MetricsRecorder receives evaluation statistics. Implemented by the monitor
// package; a nil recorder disables metrics.
type MetricsRecorder interface {
	RecordEvaluation(studyID string, produced int, duration time.Duration)
}

// EvaluationRequest describes one timeline evaluation for a participant
type EvaluationRequest struct {
	StudyID      string
	HealthCode   string
	WindowStart  time.Time
	WindowEnd    time.Time
	Now          time.Time
	TimeZone     *time.Location
	MinimumCount int
	DataGroups   []string
	Client       model.ClientInfo
}

// EvaluationService runs the scheduling core across every plan of a study for
// one participant, persists the result, and shapes it for the client.
type EvaluationService struct {
	logger           *zap.Logger
	plans            storage.PlanStore
	events           storage.EventStore
	activities       storage.ActivityStore
	metrics          MetricsRecorder
	compatAppVersion int
}

// NewEvaluationService creates a new evaluation service. Clients with an app
// version below compatAppVersion receive persistent activities re-labeled as
// recurring; they predate the persistent schedule type.
func NewEvaluationService(logger *zap.Logger, plans storage.PlanStore, events storage.EventStore,
	activities storage.ActivityStore, metrics MetricsRecorder, compatAppVersion int) *EvaluationService {

	return &EvaluationService{
		logger:           logger,
		plans:            plans,
		events:           events,
		activities:       activities,
		metrics:          metrics,
		compatAppVersion: compatAppVersion,
	}
}

// ScheduledActivities evaluates all applicable plans for the participant and
// returns the merged timeline, ordered by scheduled time. A malformed plan is
// logged and skipped; it never aborts the other plans in the batch.
func (s *EvaluationService) ScheduledActivities(ctx context.Context, req EvaluationRequest) ([]model.ScheduledActivity, error) {
	started := time.Now()

	if req.Now.IsZero() {
		req.Now = time.Now()
	}
	if req.TimeZone == nil {
		req.TimeZone = time.UTC
	}

	plans, err := s.plans.ListForStudy(ctx, req.StudyID, req.Client)
	if err != nil {
		return nil, err
	}
	events, err := s.events.EventMap(ctx, req.StudyID, req.HealthCode)
	if err != nil {
		return nil, err
	}

	scheduleCtx := model.ScheduleContext{
		StudyID:      req.StudyID,
		HealthCode:   req.HealthCode,
		WindowStart:  req.WindowStart,
		WindowEnd:    req.WindowEnd,
		Now:          req.Now,
		TimeZone:     req.TimeZone,
		Events:       events,
		MinimumCount: req.MinimumCount,
		DataGroups:   req.DataGroups,
		Client:       req.Client,
	}

	var merged []model.ScheduledActivity
	for _, plan := range plans {
		generated, err := scheduler.GenerateScheduledActivities(plan, scheduleCtx)
		if err != nil {
			// Authoring errors are isolated per plan so one broken plan
			// cannot take down the participant's whole timeline.
			s.logger.Error("Skipping malformed schedule plan",
				zap.String("plan_guid", plan.GUID),
				zap.String("plan_label", plan.Label),
				zap.String("study_id", req.StudyID),
				zap.Error(err))
			continue
		}
		merged = append(merged, generated...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].ScheduledOn.Equal(merged[j].ScheduledOn) {
			return merged[i].GUID < merged[j].GUID
		}
		return merged[i].ScheduledOn.Before(merged[j].ScheduledOn)
	})

	if err := s.activities.SaveAll(ctx, merged); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordEvaluation(req.StudyID, len(merged), time.Since(started))
	}

	return s.shapeForClient(merged, req.Client), nil
}

// CompleteActivity records that the participant finished an activity and
// publishes the corresponding study event, so schedules anchored on it
// trigger at the next evaluation.
func (s *EvaluationService) CompleteActivity(ctx context.Context, activity *model.ScheduledActivity, finishedOn time.Time) error {
	if err := s.activities.MarkFinished(ctx, activity.GUID, finishedOn); err != nil {
		return err
	}
	return s.events.Publish(ctx, &model.EventRecord{
		StudyID:    activity.StudyID,
		HealthCode: activity.HealthCode,
		EventID:    model.ActivityFinishedEventID(activity.Activity.GUID),
		Timestamp:  finishedOn,
	})
}

// shapeForClient rewrites schedule-type hints for old clients. Persistent
// activities are presented as recurring below the compat version cutoff; the
// persisted rows keep their real type.
func (s *EvaluationService) shapeForClient(activities []model.ScheduledActivity, client model.ClientInfo) []model.ScheduledActivity {
	if client.AppVersion == 0 || client.AppVersion >= s.compatAppVersion {
		return activities
	}
	shaped := make([]model.ScheduledActivity, len(activities))
	copy(shaped, activities)
	for i := range shaped {
		if shaped[i].Persistent {
			shaped[i].ScheduleType = model.ScheduleTypeRecurring
		}
	}
	return shaped
}
