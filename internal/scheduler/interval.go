package scheduler

import (
	"github.com/studypulse/timeline/internal/model"
)

// generateInterval handles schedules driven by an interval, times of day,
// and/or a delay, as well as one-time event-anchored schedules with no
// recurrence at all.
func generateInterval(s *model.Schedule, plan *model.SchedulePlan, ctx model.ScheduleContext) ([]model.ScheduledActivity, error) {
	cursor, ok := anchorTime(s, ctx)
	if !ok {
		// The trigger event has not occurred for this participant yet.
		return nil, nil
	}

	var out []model.ScheduledActivity
	for continueScheduling(ctx, cursor, len(out)) {
		for _, t := range occurrenceTimes(s, ctx, cursor) {
			if shouldEmit(s, ctx, t, len(out)) {
				out = emitAt(out, s, plan, ctx, t)
			}
		}
		// A one-time activity with no interval; don't loop.
		if s.Interval <= 0 {
			break
		}
		cursor = cursor.Add(s.Interval)
	}
	return trim(s, ctx, out), nil
}
