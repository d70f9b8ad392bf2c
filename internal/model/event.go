package model

import (
	"fmt"
	"time"
)

// EventEnrollment is the event every participant starts with. It is written
// once and never moves, so event-anchored schedules stay stable.
const EventEnrollment = "enrollment"

// ActivityFinishedEventID returns the event key recorded when a participant
// finishes the activity with the given GUID.
func ActivityFinishedEventID(activityGUID string) string {
	return fmt.Sprintf("activity:%s:finished", activityGUID)
}

// SurveyFinishedEventID returns the event key recorded when a participant
// completes the survey with the given GUID.
func SurveyFinishedEventID(surveyGUID string) string {
	return fmt.Sprintf("survey:%s:finished", surveyGUID)
}

// QuestionAnsweredEventID returns the event key recorded when a participant
// answers the question with the given GUID. Unlike finished events, answers
// can be revised, so later timestamps replace earlier ones.
func QuestionAnsweredEventID(questionGUID string) string {
	return fmt.Sprintf("question:%s:answered", questionGUID)
}

// EventRecord is one entry of a participant's event history
type EventRecord struct {
	StudyID    string    `json:"study_id"`
	HealthCode string    `json:"health_code"`
	EventID    string    `json:"event_id"`
	Timestamp  time.Time `json:"timestamp"`
}
