package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/studypulse/timeline/internal/model"
)

// generateCron handles schedules whose recurrence is a cron expression.
// Fire times are computed with standard five-field cron semantics
// (minute, hour, day of month, month, day of week) in the participant's
// time zone, starting from the later of the anchor and the window start.
func generateCron(s *model.Schedule, plan *model.SchedulePlan, ctx model.ScheduleContext) ([]model.ScheduledActivity, error) {
	spec, err := cron.ParseStandard(s.CronExpression)
	if err != nil {
		return nil, &InvalidScheduleError{
			PlanGUID:      plan.GUID,
			ScheduleLabel: s.Label,
			Err:           fmt.Errorf("invalid cron expression %q: %w", s.CronExpression, err),
		}
	}

	cursor, ok := anchorTime(s, ctx)
	if !ok {
		return nil, nil
	}
	if cursor.Before(ctx.WindowStart) {
		cursor = ctx.WindowStart.In(ctx.Location())
	}

	var out []model.ScheduledActivity
	for {
		next := spec.Next(cursor)
		if next.IsZero() || !continueScheduling(ctx, next, len(out)) {
			break
		}
		if shouldEmit(s, ctx, next, len(out)) {
			out = emitAt(out, s, plan, ctx, next)
		}
		cursor = next
	}
	return trim(s, ctx, out), nil
}
