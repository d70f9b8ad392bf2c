package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ScheduleType represents how occurrences of a schedule behave over time
type ScheduleType string

const (
	// ScheduleTypeOnce produces a single occurrence
	ScheduleTypeOnce ScheduleType = "once"

	// ScheduleTypeRecurring produces occurrences on an interval or cron expression
	ScheduleTypeRecurring ScheduleType = "recurring"

	// ScheduleTypePersistent produces occurrences that stay available until finished
	ScheduleTypePersistent ScheduleType = "persistent"
)

var (
	// ErrNoActivities is returned when a schedule has an empty activity list
	ErrNoActivities = errors.New("schedule has no activities")

	// ErrAmbiguousRecurrence is returned when both a cron expression and an
	// interval or times of day are set
	ErrAmbiguousRecurrence = errors.New("cron expression cannot be combined with interval or times of day")

	// ErrNoRecurrence is returned when a recurring schedule sets neither an
	// interval nor a cron expression
	ErrNoRecurrence = errors.New("recurring schedule needs an interval or cron expression")
)

// TimeOfDay is a local wall-clock time, minute resolution
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" into a TimeOfDay. The whole string must be
// consumed; trailing text is an error.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parsed, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: parsed.Hour(), Minute: parsed.Minute()}, nil
}

// String returns the "HH:MM" form.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On applies the time of day to a calendar date in the given zone.
func (t TimeOfDay) On(day time.Time, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, loc)
}

// MarshalJSON implements json.Marshaler
func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements json.Unmarshaler
func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Schedule is a declarative recurrence rule for one or more activities.
// Recurrence is driven either by Interval (optionally with TimesOfDay) or by
// CronExpression, never both. A schedule with neither is a single occurrence
// anchored at its event time plus delay.
type Schedule struct {
	Label          string        `json:"label"`
	ScheduleType   ScheduleType  `json:"schedule_type"`
	EventID        string        `json:"event_id,omitempty"`
	Delay          time.Duration `json:"delay,omitempty"`
	Interval       time.Duration `json:"interval,omitempty"`
	TimesOfDay     []TimeOfDay   `json:"times_of_day,omitempty"`
	CronExpression string        `json:"cron_expression,omitempty"`
	Expires        time.Duration `json:"expires,omitempty"`
	Activities     []Activity    `json:"activities"`
}

// IsRecurring reports whether the schedule produces more than one occurrence.
func (s *Schedule) IsRecurring() bool {
	return s.Interval > 0 || s.CronExpression != ""
}

// IsPersistent reports whether occurrences stay available until finished.
func (s *Schedule) IsPersistent() bool {
	return s.ScheduleType == ScheduleTypePersistent
}

// Validate checks the structural invariants of the schedule. Recurrence fields
// must not be ambiguous: a cron expression excludes an interval and times of
// day, and a recurring schedule must set one of the two.
func (s *Schedule) Validate() error {
	if len(s.Activities) == 0 {
		return ErrNoActivities
	}
	if s.CronExpression != "" && (s.Interval > 0 || len(s.TimesOfDay) > 0) {
		return ErrAmbiguousRecurrence
	}
	if s.ScheduleType == ScheduleTypeRecurring && s.Interval <= 0 && s.CronExpression == "" {
		return ErrNoRecurrence
	}
	return nil
}
