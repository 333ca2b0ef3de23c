package app

import (
	"context"
	"errors"
	"time"

	"autopost/internal/content"
	"autopost/internal/publish"
	"autopost/internal/scheduler"
	"autopost/internal/storage"
)

// One-shot operations backing the CLI modes. They work on a freshly
// constructed App without Start, so the engine reports Stopped and the
// counters come straight from the audit store.

// TestConnection probes the posting endpoint.
func (a *App) TestConnection(ctx context.Context) bool {
	return a.pub.Load().Ping(ctx)
}

// PostOnce publishes one post immediately. It counts against the
// opportunistic quota like any other unscheduled post.
func (a *App) PostOnce(ctx context.Context) error {
	out := a.dispatch(ctx, scheduler.CategoryOpportunistic)
	if !out.OK {
		if out.Reason == "" {
			return errors.New("post failed")
		}
		return errors.New(out.Reason)
	}
	return nil
}

// TestPost publishes a canned post so a fresh install can verify the
// endpoint and key without burning real content. Recorded under the
// "test" kind, which no quota counts.
func (a *App) TestPost(ctx context.Context) error {
	post := content.Post{
		Title:   "Test Post",
		Content: "This is a test post from the Automated Poster Bot. 🤖 #test #autopost",
		Source:  "test",
	}
	err := a.pub.Load().Publish(ctx, publish.Request{
		Title:    post.Title,
		Content:  post.Content,
		Hashtags: []string{"test", "autopost", "bot"},
	})
	a.recordAttempt(ctx, string(scheduler.CategoryTest), post, err)
	return err
}

// StatusReport is a point-in-time view of the poster for the status
// command and for operators poking at a running instance.
type StatusReport struct {
	Running bool   `json:"is_running"`
	State   string `json:"state"`

	PostsToday         int `json:"posts_today"`
	FixedToday         int `json:"fixed_posts_today"`
	OpportunisticToday int `json:"opportunistic_posts_today"`

	LastPost    time.Time `json:"last_post_time,omitzero"`
	HasLastPost bool      `json:"-"`

	PendingJobs int                  `json:"pending_jobs"`
	NextFire    time.Time            `json:"next_fire,omitzero"`
	Jobs        []scheduler.JobView  `json:"scheduled_jobs,omitempty"`
	Recent      []storage.PostRecord `json:"recent,omitempty"`
}

// Status assembles the report. Storage errors surface to the caller;
// with storage disabled all counters read zero.
func (a *App) Status(ctx context.Context) (StatusReport, error) {
	es := a.engine.Status()
	rep := StatusReport{
		Running:     es.Running,
		State:       es.State.String(),
		PendingJobs: es.PendingJobs,
		NextFire:    es.NextFire,
		Jobs:        es.Jobs,
	}

	if a.store == nil {
		return rep, nil
	}

	day := a.quota().dayStart()
	var err error
	if rep.PostsToday, err = a.store.CountPosts(ctx, "", day); err != nil {
		return rep, err
	}
	if rep.FixedToday, err = a.store.CountPosts(ctx, string(scheduler.CategoryFixed), day); err != nil {
		return rep, err
	}
	if rep.OpportunisticToday, err = a.store.CountPosts(ctx, string(scheduler.CategoryOpportunistic), day); err != nil {
		return rep, err
	}

	rec, ok, err := a.store.LastPost(ctx)
	if err != nil {
		return rep, err
	}
	if ok {
		rep.LastPost = rec.At
		rep.HasLastPost = true
	}

	if rep.Recent, err = a.store.RecentPosts(ctx, 5); err != nil {
		return rep, err
	}
	return rep, nil
}
