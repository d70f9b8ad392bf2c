package scheduler

import (
	"hash/fnv"

	"github.com/studypulse/timeline/internal/model"
)

// ResolveSchedule picks at most one schedule from a plan's strategy for the
// participant described by the context. A strategy that matches nothing is a
// normal empty result, never an error: the plan simply contributes no
// activities for this participant.
func ResolveSchedule(strategy model.Strategy, ctx model.ScheduleContext) (*model.Schedule, bool) {
	switch strategy.Type {
	case model.StrategySimple:
		if strategy.Schedule == nil {
			return nil, false
		}
		return strategy.Schedule, true

	case model.StrategyWeightedRandom:
		return resolveWeighted(strategy.Groups, ctx.HealthCode)

	case model.StrategyCriteria:
		for i := range strategy.Criteria {
			if criteriaMatch(strategy.Criteria[i].Criteria, ctx) {
				return &strategy.Criteria[i].Schedule, true
			}
		}
		return nil, false
	}
	return nil, false
}

// resolveWeighted assigns the participant to one weighted group. The bucket
// is derived from a hash of the health code rather than a random draw, so
// re-evaluation never reshuffles which variant a participant sees.
func resolveWeighted(groups []model.ScheduleGroup, healthCode string) (*model.Schedule, bool) {
	total := 0
	for _, g := range groups {
		if g.Weight > 0 {
			total += g.Weight
		}
	}
	if total == 0 {
		return nil, false
	}

	h := fnv.New64a()
	h.Write([]byte(healthCode))
	slot := int(h.Sum64() % uint64(total))

	for i := range groups {
		if groups[i].Weight <= 0 {
			continue
		}
		if slot < groups[i].Weight {
			return &groups[i].Schedule, true
		}
		slot -= groups[i].Weight
	}
	return nil, false
}

// criteriaMatch reports whether the participant satisfies one variant's
// applicability rules. Version bounds are inclusive; an unknown app version
// (zero) passes any bound.
func criteriaMatch(c model.Criteria, ctx model.ScheduleContext) bool {
	if ctx.Client.AppVersion != 0 {
		if c.MinAppVersion != nil && ctx.Client.AppVersion < *c.MinAppVersion {
			return false
		}
		if c.MaxAppVersion != nil && ctx.Client.AppVersion > *c.MaxAppVersion {
			return false
		}
	}
	for _, group := range c.AllOfGroups {
		if !ctx.HasDataGroup(group) {
			return false
		}
	}
	for _, group := range c.NoneOfGroups {
		if ctx.HasDataGroup(group) {
			return false
		}
	}
	return true
}
