package app

import (
	"context"
	"time"

	"autopost/internal/scheduler"
	"autopost/internal/storage"
)

// quotaReader answers the engine's day-quota questions from the audit
// store. With storage disabled it reports zero posts, so every plan
// starts from a full quota.
type quotaReader struct {
	store storage.Store
	loc   func() *time.Location
	now   func() time.Time
}

func (a *App) quota() quotaReader {
	return quotaReader{store: a.store, loc: a.currentLocation, now: time.Now}
}

func (q quotaReader) dayStart() time.Time {
	loc := time.Local
	if q.loc != nil {
		loc = q.loc()
	}
	now := time.Now()
	if q.now != nil {
		now = q.now()
	}
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func (q quotaReader) CountToday(ctx context.Context, cat scheduler.Category) (int, error) {
	if q.store == nil {
		return 0, nil
	}
	return q.store.CountPosts(ctx, string(cat), q.dayStart())
}

func (q quotaReader) LastPostTime(ctx context.Context) (time.Time, bool, error) {
	if q.store == nil {
		return time.Time{}, false, nil
	}
	rec, ok, err := q.store.LastPost(ctx)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	// The store keeps all-time history; the engine only spaces against
	// posts from the current day.
	if rec.At.Before(q.dayStart()) {
		return time.Time{}, false, nil
	}
	return rec.At, true, nil
}
