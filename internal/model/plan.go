package model

import "time"

// StrategyType selects which schedule-resolution rule a plan uses
type StrategyType string

const (
	// StrategySimple always resolves the single configured schedule
	StrategySimple StrategyType = "simple"

	// StrategyWeightedRandom assigns each participant to one weighted group,
	// stable across evaluations
	StrategyWeightedRandom StrategyType = "weighted_random"

	// StrategyCriteria resolves the first schedule whose criteria match
	StrategyCriteria StrategyType = "criteria"
)

// ScheduleGroup is one weighted variant of a weighted-random strategy
type ScheduleGroup struct {
	Weight   int      `json:"weight"`
	Schedule Schedule `json:"schedule"`
}

// Criteria are the applicability rules of one criteria-strategy variant.
// Version bounds are inclusive; nil means unbounded.
type Criteria struct {
	MinAppVersion *int     `json:"min_app_version,omitempty"`
	MaxAppVersion *int     `json:"max_app_version,omitempty"`
	AllOfGroups   []string `json:"all_of_groups,omitempty"`
	NoneOfGroups  []string `json:"none_of_groups,omitempty"`
}

// CriteriaSchedule pairs applicability criteria with the schedule they gate
type CriteriaSchedule struct {
	Criteria Criteria `json:"criteria"`
	Schedule Schedule `json:"schedule"`
}

// Strategy is a tagged union over the three resolution rules. Exactly the
// fields of the variant named by Type are set.
type Strategy struct {
	Type     StrategyType       `json:"type"`
	Schedule *Schedule          `json:"schedule,omitempty"`
	Groups   []ScheduleGroup    `json:"groups,omitempty"`
	Criteria []CriteriaSchedule `json:"criteria,omitempty"`
}

// SchedulePlan binds a strategy to a study and an app-version range.
// Version bounds are inclusive; nil means unbounded.
type SchedulePlan struct {
	GUID          string    `json:"guid"`
	Label         string    `json:"label"`
	StudyID       string    `json:"study_id"`
	MinAppVersion *int      `json:"min_app_version,omitempty"`
	MaxAppVersion *int      `json:"max_app_version,omitempty"`
	Strategy      Strategy  `json:"strategy"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AppliesTo reports whether the plan's version range admits the client.
// An unknown app version (zero) is admitted by any range.
func (p *SchedulePlan) AppliesTo(client ClientInfo) bool {
	if client.AppVersion == 0 {
		return true
	}
	if p.MinAppVersion != nil && client.AppVersion < *p.MinAppVersion {
		return false
	}
	if p.MaxAppVersion != nil && client.AppVersion > *p.MaxAppVersion {
		return false
	}
	return true
}
