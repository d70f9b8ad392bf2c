package model

// ActivityType identifies what kind of content a scheduled activity points at
type ActivityType string

const (
	ActivityTypeTask     ActivityType = "task"
	ActivityTypeSurvey   ActivityType = "survey"
	ActivityTypeCompound ActivityType = "compound"
)

// Activity is a reference to study content (a task, survey, or compound activity).
// The scheduler copies it into every generated occurrence and never mutates it.
type Activity struct {
	GUID  string       `json:"guid"`
	Label string       `json:"label"`
	Type  ActivityType `json:"type"`
	Ref   string       `json:"ref,omitempty"`
}
