package eventbus

import "time"

// Event types published by the scheduling engine. Payload shapes below.
const (
	// TypePlanInstalled fires after a planning pass installed jobs
	// (initial plan, partial re-plan, or day rollover).
	TypePlanInstalled = "schedule.planned"
	// TypePostFired fires after a post job's dispatch returned, with
	// the outcome and the next pending fire (if any).
	TypePostFired = "schedule.fired"
	// TypeDayRollover fires when the midnight re-plan trigger ran.
	TypeDayRollover = "schedule.rollover"
)

// PlanInstalled describes the result of one planning pass.
type PlanInstalled struct {
	Fixed         int       `json:"fixed"`
	Opportunistic int       `json:"opportunistic"`
	NextFire      time.Time `json:"next_fire,omitzero"`
	Full          bool      `json:"full"` // full-day plan vs. opportunistic-only re-plan
}

// PostFired describes one completed dispatch.
type PostFired struct {
	Category string    `json:"category"`
	OK       bool      `json:"ok"`
	Reason   string    `json:"reason,omitempty"`
	NextFire time.Time `json:"next_fire,omitzero"`
	Pending  int       `json:"pending"`
}

// DayRollover marks the start of a new scheduling day.
type DayRollover struct {
	Day string `json:"day"` // YYYY-MM-DD in the schedule's location
}
