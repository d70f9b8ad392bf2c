package scheduler

import "fmt"

// InvalidScheduleError reports a structurally broken schedule. It carries the
// plan GUID and schedule label so operators can find the authoring data to
// fix. Missing trigger events are not errors and never produce one of these.
type InvalidScheduleError struct {
	PlanGUID      string
	ScheduleLabel string
	Err           error
}

func (e *InvalidScheduleError) Error() string {
	return fmt.Sprintf("invalid schedule %q in plan %s: %v", e.ScheduleLabel, e.PlanGUID, e.Err)
}

func (e *InvalidScheduleError) Unwrap() error {
	return e.Err
}
