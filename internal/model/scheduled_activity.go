package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Namespace for deterministic scheduled-activity GUIDs. Changing it would
// re-key every persisted activity, so it is fixed for the life of the system.
var scheduledActivityNamespace = uuid.MustParse("c2f8b1d4-88a3-4b9e-9d35-5a1e4f0c7d26")

// ScheduledActivityGUID derives a stable GUID from the plan, the activity, and
// the scheduled instant. Re-evaluating the same inputs always yields the same
// GUID, which is what lets the persistence layer deduplicate rows.
func ScheduledActivityGUID(planGUID, activityGUID string, scheduledOn time.Time) string {
	name := fmt.Sprintf("%s:%s:%d", planGUID, activityGUID, scheduledOn.Unix())
	return uuid.NewSHA1(scheduledActivityNamespace, []byte(name)).String()
}

// ScheduledActivity is one concrete task instance produced by evaluation
type ScheduledActivity struct {
	GUID             string       `json:"guid"`
	SchedulePlanGUID string       `json:"schedule_plan_guid"`
	StudyID          string       `json:"study_id"`
	HealthCode       string       `json:"health_code"`
	Activity         Activity     `json:"activity"`
	ScheduleType     ScheduleType `json:"schedule_type"`
	Persistent       bool         `json:"persistent"`
	ScheduledOn      time.Time    `json:"scheduled_on"`
	ExpiresOn        *time.Time   `json:"expires_on,omitempty"`
	StartedOn        *time.Time   `json:"started_on,omitempty"`
	FinishedOn       *time.Time   `json:"finished_on,omitempty"`
}

// IsExpired reports whether the occurrence's expiration has passed.
// Activities without an expiration never expire.
func (a *ScheduledActivity) IsExpired(now time.Time) bool {
	return a.ExpiresOn != nil && now.After(*a.ExpiresOn)
}
