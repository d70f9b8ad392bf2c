package model

import "time"

// ClientInfo describes the participant's app build, as reported by the client
type ClientInfo struct {
	AppVersion int    `json:"app_version,omitempty"`
	OSName     string `json:"os_name,omitempty"`
}

// ScheduleContext carries everything one evaluation needs: the requested
// window, the evaluation instant, the participant's time zone and event
// history, and the minimum number of occurrences the caller wants to see.
// It is built once per request and treated as immutable.
type ScheduleContext struct {
	StudyID      string
	HealthCode   string
	WindowStart  time.Time
	WindowEnd    time.Time
	Now          time.Time
	TimeZone     *time.Location
	Events       map[string]time.Time
	MinimumCount int
	DataGroups   []string
	Client       ClientInfo
}

// EventTime looks up when the given event occurred for this participant.
// A missing event is a normal condition, not an error: it means the
// participant has not reached that point of the study yet.
func (c ScheduleContext) EventTime(eventID string) (time.Time, bool) {
	t, ok := c.Events[eventID]
	return t, ok
}

// Location returns the participant's zone, defaulting to UTC.
func (c ScheduleContext) Location() *time.Location {
	if c.TimeZone == nil {
		return time.UTC
	}
	return c.TimeZone
}

// InWindow reports whether an instant falls inside [WindowStart, WindowEnd].
func (c ScheduleContext) InWindow(t time.Time) bool {
	return !t.Before(c.WindowStart) && !t.After(c.WindowEnd)
}

// HasDataGroup reports whether the participant belongs to the named group.
func (c ScheduleContext) HasDataGroup(group string) bool {
	for _, g := range c.DataGroups {
		if g == group {
			return true
		}
	}
	return false
}
