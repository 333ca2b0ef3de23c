package scheduler

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultNoticeLead is how far ahead of a post its advance notice fires.
const DefaultNoticeLead = time.Hour

// Table holds the pending jobs for the current day. All operations take
// the table lock, so concurrent Install/Cancel/Due calls serialize into
// some order and each observes the table consistent: a cancelled job is
// never returned by Due, and no job is returned twice.
type Table struct {
	noticeLead time.Duration
	now        func() time.Time

	mu   sync.Mutex
	jobs []Job
	seq  uint64
}

// NewTable builds an empty table. A zero noticeLead falls back to
// DefaultNoticeLead; a nil clock falls back to time.Now.
func NewTable(noticeLead time.Duration, now func() time.Time) *Table {
	if noticeLead <= 0 {
		noticeLead = DefaultNoticeLead
	}
	if now == nil {
		now = time.Now
	}
	return &Table{noticeLead: noticeLead, now: now}
}

// Install creates one post job per slot, tagged "{tagPrefix}_{index}",
// plus an advance notice job noticeLead before it, tagged
// "notify_{tagPrefix}_{index}". A notice whose time is already past is
// omitted rather than back-dated. The created jobs are returned so
// callers hold the real tags instead of reassembling them.
func (t *Table) Install(slots []PlannedSlot, tagPrefix string) []Job {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	installed := make([]Job, 0, 2*len(slots))
	for i, slot := range slots {
		post := Job{
			ID:       uuid.NewString(),
			Tag:      fmt.Sprintf("%s_%d", tagPrefix, i),
			FiresAt:  slot.FiresAt,
			Kind:     KindPost,
			Category: slot.Category,
		}
		installed = append(installed, t.add(post))

		noticeAt := slot.FiresAt.Add(-t.noticeLead)
		if !noticeAt.After(now) {
			continue
		}
		notice := Job{
			ID:       uuid.NewString(),
			Tag:      fmt.Sprintf("notify_%s_%d", tagPrefix, i),
			FiresAt:  noticeAt,
			Kind:     KindNotice,
			Category: slot.Category,
			PostAt:   slot.FiresAt,
		}
		installed = append(installed, t.add(notice))
	}
	return installed
}

// add assigns the insertion sequence and appends. Caller holds t.mu.
func (t *Table) add(j Job) Job {
	t.seq++
	j.seq = t.seq
	t.jobs = append(t.jobs, j)
	return j
}

// Cancel removes every job whose tag equals or starts with tag and
// reports how many were removed. Cancelling "opportunistic" leaves
// "fixed" jobs and "notify_opportunistic" notices untouched; notices
// are wiped with a separate "notify_opportunistic" call.
func (t *Table) Cancel(tag string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.jobs[:0]
	removed := 0
	for _, j := range t.jobs {
		if strings.HasPrefix(j.Tag, tag) {
			removed++
			continue
		}
		kept = append(kept, j)
	}
	t.jobs = kept
	return removed
}

// Clear removes all jobs.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs = nil
}

// Due removes and returns every job with firesAt at or before now,
// ordered by firesAt then installation order. The tie-break keeps a
// notice ahead of later-installed jobs on the same timestamp. Jobs
// still in the future stay put.
func (t *Table) Due(now time.Time) []Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	var due []Job
	kept := t.jobs[:0]
	for _, j := range t.jobs {
		if j.FiresAt.After(now) {
			kept = append(kept, j)
			continue
		}
		due = append(due, j)
	}
	t.jobs = kept
	sortJobs(due)
	return due
}

// Snapshot returns a copy of the pending jobs ordered by firesAt then
// installation order. It never mutates the table.
func (t *Table) Snapshot() []Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Job, len(t.jobs))
	copy(out, t.jobs)
	sortJobs(out)
	return out
}

// Len reports the number of pending jobs.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.jobs)
}

// NextFire returns the earliest pending firesAt, if any.
func (t *Table) NextFire() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var next time.Time
	found := false
	for _, j := range t.jobs {
		if !found || j.FiresAt.Before(next) {
			next = j.FiresAt
			found = true
		}
	}
	return next, found
}

func sortJobs(jobs []Job) {
	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].FiresAt.Equal(jobs[k].FiresAt) {
			return jobs[i].seq < jobs[k].seq
		}
		return jobs[i].FiresAt.Before(jobs[k].FiresAt)
	})
}
