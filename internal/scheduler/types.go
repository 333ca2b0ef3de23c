package scheduler

import (
	"context"
	"time"
)

// Category classifies a planned post. It is only ever used as a quota key
// and a dispatch tag, so adding categories does not touch engine logic.
type Category string

const (
	// CategoryFixed is the one guaranteed daily post at a configured clock time.
	CategoryFixed Category = "fixed"
	// CategoryOpportunistic posts are distributed randomly across the day window.
	CategoryOpportunistic Category = "opportunistic"
	// CategoryTest marks one-shot posts fired outside the engine (CLI).
	// They share the dispatch path and audit trail but never consume quota.
	CategoryTest Category = "test"
)

// Outcome is the result of one dispatch. Failures carry a short reason;
// the engine reports them upward and never retries.
type Outcome struct {
	OK     bool
	Reason string
}

func Success() Outcome              { return Outcome{OK: true} }
func Failure(reason string) Outcome { return Outcome{Reason: reason} }

// DispatchFunc executes one post of the given category. It may block on
// network I/O; callers should bound that latency well under the engine
// tick to avoid schedule drift.
type DispatchFunc func(ctx context.Context, cat Category) Outcome

// QuotaReader answers day-quota questions from the persistence layer.
// The engine reads it fresh at every planning decision and never caches
// across plans: the source of truth lives outside the process.
type QuotaReader interface {
	// CountToday reports successful posts logged today for cat.
	// The empty category counts across all categories.
	CountToday(ctx context.Context, cat Category) (int, error)
	// LastPostTime reports the most recent successful post today, if any.
	LastPostTime(ctx context.Context) (time.Time, bool, error)
}

// Notifier delivers a user-facing message. Best-effort: the engine logs
// and drops any error.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

// QuotaSnapshot is one fresh read of today's posting state.
type QuotaSnapshot struct {
	TotalToday  int
	PerCategory map[Category]int
	LastPostAt  time.Time // zero when nothing posted today
}

// PlannedSlot is one future post time produced by the planner.
type PlannedSlot struct {
	FiresAt  time.Time
	Category Category
}

// JobKind discriminates post jobs from their advance-notice companions.
type JobKind int

const (
	KindPost JobKind = iota
	KindNotice
)

func (k JobKind) String() string {
	switch k {
	case KindPost:
		return "post"
	case KindNotice:
		return "notice"
	default:
		return "unknown"
	}
}

// Job is one pending table entry. Owned exclusively by the Table: created
// on install, removed when fired, cancelled or cleared, never reused.
type Job struct {
	ID       string
	Tag      string
	FiresAt  time.Time
	Kind     JobKind
	Category Category
	// PostAt is the post time a notice announces. Zero for post jobs.
	PostAt time.Time

	seq uint64 // insertion order, ties in Due/Snapshot ordering
}

// JobView is the read-only snapshot form of a Job.
type JobView struct {
	ID       string    `json:"id"`
	Tag      string    `json:"tag"`
	FiresAt  time.Time `json:"fires_at"`
	Kind     string    `json:"kind"`
	Category Category  `json:"category"`
	PostAt   time.Time `json:"post_at,omitzero"`
}

// State is the engine lifecycle state.
type State int32

const (
	StateStopped State = iota
	StatePlanning
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlanning:
		return "planning"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Status is a read-only view of the engine. Reading it never mutates
// table contents.
type Status struct {
	State       State         `json:"state"`
	Running     bool          `json:"running"`
	PendingJobs int           `json:"pending_jobs"`
	NextFire    time.Time     `json:"next_fire,omitzero"`
	Window      Window        `json:"-"`
	Quota       QuotaSnapshot `json:"-"`
	Jobs        []JobView     `json:"jobs,omitempty"`
}
