// Package scheduler is the evaluation core: it turns a schedule plan and a
// participant's schedule context into the concrete list of scheduled
// activities the participant should see. Evaluation is a pure function of its
// inputs, with no I/O and no clock reads, so identical inputs always produce
// identical output, which is what makes persistence by GUID idempotent.
package scheduler

import (
	"sort"
	"time"

	"github.com/studypulse/timeline/internal/model"
)

// GenerateScheduledActivities resolves the plan's strategy against the
// context and runs the matching scheduler variant. A strategy that resolves
// nothing, or a trigger event the participant has not reached, yields an
// empty result. Only a structurally invalid schedule returns an error.
func GenerateScheduledActivities(plan *model.SchedulePlan, ctx model.ScheduleContext) ([]model.ScheduledActivity, error) {
	schedule, ok := ResolveSchedule(plan.Strategy, ctx)
	if !ok {
		return nil, nil
	}
	if err := schedule.Validate(); err != nil {
		return nil, &InvalidScheduleError{PlanGUID: plan.GUID, ScheduleLabel: schedule.Label, Err: err}
	}
	if schedule.CronExpression != "" {
		return generateCron(schedule, plan, ctx)
	}
	return generateInterval(schedule, plan, ctx)
}

// anchorTime resolves the instant the first occurrence is computed from:
// the trigger event's timestamp plus delay, or "now" plus delay when the
// schedule has no trigger event. The boolean is false when the trigger event
// has not occurred for this participant.
func anchorTime(s *model.Schedule, ctx model.ScheduleContext) (time.Time, bool) {
	anchor := ctx.Now
	if s.EventID != "" {
		t, ok := ctx.EventTime(s.EventID)
		if !ok {
			return time.Time{}, false
		}
		anchor = t
	}
	return anchor.Add(s.Delay).In(ctx.Location()), true
}

// continueScheduling reports whether the generation loop should keep going.
// It runs while the cursor has not passed the window, and past the window
// while the minimum-count floor is still unmet.
func continueScheduling(ctx model.ScheduleContext, cursor time.Time, emitted int) bool {
	return !cursor.After(ctx.WindowEnd) || emitted < ctx.MinimumCount
}

// shouldEmit reports whether an occurrence at t belongs in the output:
// inside the window, or outside it while the floor is unmet. Persistent
// occurrences are not window-suppressed; they stay visible until finished.
func shouldEmit(s *model.Schedule, ctx model.ScheduleContext, t time.Time, emitted int) bool {
	return ctx.InWindow(t) || emitted < ctx.MinimumCount || s.IsPersistent()
}

// emitAt appends one scheduled activity per configured activity at the given
// instant, stamping the expiration when the schedule has one.
func emitAt(out []model.ScheduledActivity, s *model.Schedule, plan *model.SchedulePlan,
	ctx model.ScheduleContext, t time.Time) []model.ScheduledActivity {

	var expiresOn *time.Time
	if s.Expires > 0 {
		e := t.Add(s.Expires)
		expiresOn = &e
	}
	for _, activity := range s.Activities {
		out = append(out, model.ScheduledActivity{
			GUID:             model.ScheduledActivityGUID(plan.GUID, activity.GUID, t),
			SchedulePlanGUID: plan.GUID,
			StudyID:          ctx.StudyID,
			HealthCode:       ctx.HealthCode,
			Activity:         activity,
			ScheduleType:     s.ScheduleType,
			Persistent:       s.IsPersistent(),
			ScheduledOn:      t,
			ExpiresOn:        expiresOn,
		})
	}
	return out
}

// occurrenceTimes expands a cursor date into the configured times of day in
// the participant's zone. With no times configured the cursor's own clock
// time is used.
func occurrenceTimes(s *model.Schedule, ctx model.ScheduleContext, cursor time.Time) []time.Time {
	if len(s.TimesOfDay) == 0 {
		return []time.Time{cursor}
	}
	times := make([]time.Time, 0, len(s.TimesOfDay))
	for _, tod := range s.TimesOfDay {
		times = append(times, tod.On(cursor, ctx.Location()))
	}
	return times
}

// trim bounds the generated sequence. Recurring schedules keep at most one
// occurrence per activity per calendar date in the participant's zone, so a
// sub-day interval cannot re-emit the same time-of-day slot. All in-window
// occurrences are kept; occurrences outside the window are kept earliest-first
// only as far as needed to satisfy the minimum-count floor. Persistent
// occurrences are exempt and always kept.
func trim(s *model.Schedule, ctx model.ScheduleContext, generated []model.ScheduledActivity) []model.ScheduledActivity {
	sort.SliceStable(generated, func(i, j int) bool {
		return generated[i].ScheduledOn.Before(generated[j].ScheduledOn)
	})
	if s.IsPersistent() {
		return generated
	}
	if s.IsRecurring() {
		generated = dedupeByDate(ctx, generated)
	}

	inWindow := 0
	for i := range generated {
		if ctx.InWindow(generated[i].ScheduledOn) {
			inWindow++
		}
	}

	need := ctx.MinimumCount - inWindow
	kept := generated[:0:0]
	for i := range generated {
		if ctx.InWindow(generated[i].ScheduledOn) {
			kept = append(kept, generated[i])
			continue
		}
		if need > 0 {
			kept = append(kept, generated[i])
			need--
		}
	}
	return kept
}

// dedupeByDate keeps the earliest occurrence per (activity, calendar date)
// pair. The input must already be sorted by scheduled time.
func dedupeByDate(ctx model.ScheduleContext, generated []model.ScheduledActivity) []model.ScheduledActivity {
	seen := make(map[string]struct{}, len(generated))
	kept := generated[:0:0]
	for i := range generated {
		local := generated[i].ScheduledOn.In(ctx.Location())
		key := generated[i].Activity.GUID + "|" + local.Format("2006-01-02")
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, generated[i])
	}
	return kept
}
