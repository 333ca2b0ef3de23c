package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"autopost/internal/config"
	"autopost/internal/eventbus"
	"autopost/internal/scheduler"
	"autopost/internal/storage"
)

func TestBuildWindowDefaults(t *testing.T) {
	t.Parallel()
	w, err := buildWindow(config.ScheduleConfig{})
	if err != nil {
		t.Fatalf("buildWindow(empty) error: %v", err)
	}
	if w.FixedTime != (scheduler.TimeOfDay{Hour: 10}) {
		t.Fatalf("fixed time = %v, want 10:00", w.FixedTime)
	}
	if w.Start != (scheduler.TimeOfDay{Hour: 8}) || w.End != (scheduler.TimeOfDay{Hour: 22}) {
		t.Fatalf("window = %v..%v, want 08:00..22:00", w.Start, w.End)
	}
	if w.MinInterval != 30*time.Minute || w.MaxInterval != 4*time.Hour {
		t.Fatalf("intervals = %v/%v, want 30m/4h", w.MinInterval, w.MaxInterval)
	}
	if got := w.Quota[scheduler.CategoryFixed]; got != 1 {
		t.Fatalf("fixed quota = %d, want 1", got)
	}
	if got := w.Quota[scheduler.CategoryOpportunistic]; got != 6 {
		t.Fatalf("opportunistic quota = %d, want 6", got)
	}
	if w.Location != nil {
		t.Fatalf("location = %v, want nil (host local)", w.Location)
	}
}

func TestBuildWindow(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		sc      config.ScheduleConfig
		check   func(t *testing.T, w scheduler.Window)
		wantErr string
	}{
		{
			name: "explicit values",
			sc: config.ScheduleConfig{
				FixedTime:           "12:30",
				WindowStart:         "09:00",
				WindowEnd:           "21:00",
				MinInterval:         "15m",
				MaxInterval:         "2h",
				OpportunisticPerDay: 3,
				Timezone:            "UTC",
			},
			check: func(t *testing.T, w scheduler.Window) {
				if w.FixedTime != (scheduler.TimeOfDay{Hour: 12, Minute: 30}) {
					t.Fatalf("fixed time = %v", w.FixedTime)
				}
				if w.Quota[scheduler.CategoryOpportunistic] != 3 {
					t.Fatalf("opportunistic quota = %d, want 3", w.Quota[scheduler.CategoryOpportunistic])
				}
				if w.Location != time.UTC {
					t.Fatalf("location = %v, want UTC", w.Location)
				}
			},
		},
		{name: "bad fixed time", sc: config.ScheduleConfig{FixedTime: "25:00"}, wantErr: "schedule.fixed_time"},
		{name: "bad window start", sc: config.ScheduleConfig{WindowStart: "late"}, wantErr: "schedule.window_start"},
		{name: "bad min interval", sc: config.ScheduleConfig{MinInterval: "soon"}, wantErr: "schedule.min_interval"},
		{name: "min above max", sc: config.ScheduleConfig{MinInterval: "5h"}, wantErr: "exceeds max interval"},
		{name: "negative per day", sc: config.ScheduleConfig{OpportunisticPerDay: -1}, wantErr: "opportunistic_per_day"},
		{name: "bad timezone", sc: config.ScheduleConfig{Timezone: "Mars/Olympus"}, wantErr: "schedule.timezone"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			w, err := buildWindow(tt.sc)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("buildWindow = %+v, want error containing %q", w, tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("buildWindow error: %v", err)
			}
			tt.check(t, w)
		})
	}
}

func TestMapEngineConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		sc       config.ScheduleConfig
		wantTick time.Duration
		wantLead time.Duration
		wantErr  bool
	}{
		{name: "defaults", wantTick: 30 * time.Second, wantLead: time.Hour},
		{name: "tick clamped up", sc: config.ScheduleConfig{Tick: "5s"}, wantTick: 15 * time.Second, wantLead: time.Hour},
		{name: "tick clamped down", sc: config.ScheduleConfig{Tick: "5m"}, wantTick: time.Minute, wantLead: time.Hour},
		{name: "explicit lead", sc: config.ScheduleConfig{NoticeLead: "30m"}, wantTick: 30 * time.Second, wantLead: 30 * time.Minute},
		{name: "bad tick", sc: config.ScheduleConfig{Tick: "fast"}, wantErr: true},
		{name: "negative lead", sc: config.ScheduleConfig{NoticeLead: "-1h"}, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := mapEngineConfig(tt.sc)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("mapEngineConfig = %+v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("mapEngineConfig error: %v", err)
			}
			if got.Tick != tt.wantTick || got.NoticeLead != tt.wantLead {
				t.Fatalf("mapEngineConfig = tick %v lead %v, want %v/%v", got.Tick, got.NoticeLead, tt.wantTick, tt.wantLead)
			}
		})
	}
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		cfg         *config.Config
		wantEnabled bool
		wantDriver  string
		wantErr     bool
	}{
		{name: "no storage section", cfg: &config.Config{}},
		{name: "driver none", cfg: &config.Config{Storage: &config.StorageConfig{Driver: "none", Path: "x"}}},
		{
			name:        "file",
			cfg:         &config.Config{Storage: &config.StorageConfig{Driver: "file", Path: "posts.jsonl"}},
			wantEnabled: true,
			wantDriver:  "file",
		},
		{
			name:        "sqlite3 alias",
			cfg:         &config.Config{Storage: &config.StorageConfig{Driver: "sqlite3", Path: "posts.db"}},
			wantEnabled: true,
			wantDriver:  "sqlite",
		},
		{name: "file without path", cfg: &config.Config{Storage: &config.StorageConfig{Driver: "file"}}, wantErr: true},
		{name: "sqlite without path", cfg: &config.Config{Storage: &config.StorageConfig{Driver: "sqlite"}}, wantErr: true},
		{name: "bad busy timeout", cfg: &config.Config{Storage: &config.StorageConfig{Driver: "sqlite", Path: "x", BusyTimeout: "later"}}, wantErr: true},
		{name: "unknown driver", cfg: &config.Config{Storage: &config.StorageConfig{Driver: "redis", Path: "x"}}, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			sc, enabled, err := mapStorageConfig(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("mapStorageConfig = %+v enabled=%v, want error", sc, enabled)
				}
				return
			}
			if err != nil {
				t.Fatalf("mapStorageConfig error: %v", err)
			}
			if enabled != tt.wantEnabled {
				t.Fatalf("enabled = %v, want %v", enabled, tt.wantEnabled)
			}
			if enabled && sc.Driver != tt.wantDriver {
				t.Fatalf("driver = %q, want %q", sc.Driver, tt.wantDriver)
			}
		})
	}
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     *config.Config
		wantErr bool
	}{
		{name: "nil", wantErr: true},
		{name: "empty is valid", cfg: &config.Config{}},
		{name: "bad schedule", cfg: &config.Config{Schedule: config.ScheduleConfig{WindowEnd: "07:00"}}, wantErr: true},
		{name: "bad content timeout", cfg: &config.Config{Content: config.ContentConfig{RequestTimeout: "-1s"}}, wantErr: true},
		{
			name: "source without url",
			cfg: &config.Config{Content: config.ContentConfig{
				Sources: []config.SourceConfig{{Name: "quotes", ContentKey: "q"}},
			}},
			wantErr: true,
		},
		{
			name: "source without content key",
			cfg: &config.Config{Content: config.ContentConfig{
				Sources: []config.SourceConfig{{Name: "quotes", URL: "https://example.com"}},
			}},
			wantErr: true,
		},
		{name: "bad publish timeout", cfg: &config.Config{Publish: config.PublishConfig{Timeout: "never"}}, wantErr: true},
		{name: "desktop notify", cfg: &config.Config{Notify: config.NotifyConfig{Driver: "desktop"}}},
		{
			name:    "telegram without chat id",
			cfg:     &config.Config{Notify: config.NotifyConfig{Driver: "telegram"}},
			wantErr: true,
		},
		{
			name: "telegram without token is fine",
			cfg: &config.Config{Notify: config.NotifyConfig{
				Driver:   "telegram",
				Telegram: &config.NotifyTelegramConfig{ChatID: 42},
			}},
		},
		{name: "unknown notify driver", cfg: &config.Config{Notify: config.NotifyConfig{Driver: "carrier-pigeon"}}, wantErr: true},
		{name: "negative queue", cfg: &config.Config{Notify: config.NotifyConfig{QueueSize: -1}}, wantErr: true},
		{name: "negative rate", cfg: &config.Config{Notify: config.NotifyConfig{RatePerSec: -2}}, wantErr: true},
		{name: "bad storage", cfg: &config.Config{Storage: &config.StorageConfig{Driver: "file"}}, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := validateConfig(tt.cfg)
			if tt.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("validateConfig error: %v", err)
			}
		})
	}
}

func TestFormatPostResult(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("UTC+2", 2*3600)
	tests := []struct {
		name    string
		event   eventbus.PostFired
		wantMsg string
	}{
		{
			name: "success with next fire",
			event: eventbus.PostFired{
				Category: "opportunistic",
				OK:       true,
				NextFire: time.Date(2025, 6, 2, 12, 30, 0, 0, time.UTC),
			},
			wantMsg: "opportunistic post was successful.\nNext post scheduled: 14:30",
		},
		{
			name:    "failure with empty plan",
			event:   eventbus.PostFired{Category: "fixed", OK: false},
			wantMsg: "fixed post failed.\nNo more posts scheduled today.",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			title, msg := formatPostResult(tt.event, loc)
			if title != "Post Result" {
				t.Fatalf("title = %q, want %q", title, "Post Result")
			}
			if msg != tt.wantMsg {
				t.Fatalf("message = %q, want %q", msg, tt.wantMsg)
			}
		})
	}
}

type fakeStore struct {
	posts []storage.PostRecord

	countKind  string
	countSince time.Time
}

func (f *fakeStore) AppendPost(_ context.Context, rec storage.PostRecord) error {
	f.posts = append(f.posts, rec)
	return nil
}

func (f *fakeStore) CountPosts(_ context.Context, kind string, since time.Time) (int, error) {
	f.countKind, f.countSince = kind, since
	n := 0
	for _, p := range f.posts {
		if p.Status != storage.StatusSuccess || p.At.Before(since) {
			continue
		}
		if kind == "" || p.Kind == kind {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) LastPost(context.Context) (storage.PostRecord, bool, error) {
	var best storage.PostRecord
	found := false
	for _, p := range f.posts {
		if p.Status != storage.StatusSuccess {
			continue
		}
		if !found || p.At.After(best.At) {
			best, found = p, true
		}
	}
	return best, found, nil
}

func (f *fakeStore) RecentPosts(_ context.Context, limit int) ([]storage.PostRecord, error) {
	out := make([]storage.PostRecord, 0, limit)
	for i := len(f.posts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.posts[i])
	}
	return out, nil
}

func (f *fakeStore) Close() error { return nil }

func TestQuotaReaderDisabledStorage(t *testing.T) {
	t.Parallel()
	q := quotaReader{}
	n, err := q.CountToday(context.Background(), scheduler.CategoryFixed)
	if err != nil || n != 0 {
		t.Fatalf("CountToday = %d, %v; want 0, nil", n, err)
	}
	_, ok, err := q.LastPostTime(context.Background())
	if err != nil || ok {
		t.Fatalf("LastPostTime ok = %v, err = %v; want false, nil", ok, err)
	}
}

func TestQuotaReaderCountsFromDayStart(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("UTC+2", 2*3600)
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, loc)
	store := &fakeStore{posts: []storage.PostRecord{
		{At: time.Date(2025, 6, 1, 21, 0, 0, 0, loc), Kind: "opportunistic", Status: storage.StatusSuccess},
		{At: time.Date(2025, 6, 2, 8, 0, 0, 0, loc), Kind: "opportunistic", Status: storage.StatusSuccess},
		{At: time.Date(2025, 6, 2, 8, 30, 0, 0, loc), Kind: "opportunistic", Status: storage.StatusFailure},
	}}
	q := quotaReader{
		store: store,
		loc:   func() *time.Location { return loc },
		now:   func() time.Time { return now },
	}

	n, err := q.CountToday(context.Background(), scheduler.CategoryOpportunistic)
	if err != nil {
		t.Fatalf("CountToday error: %v", err)
	}
	if n != 1 {
		t.Fatalf("CountToday = %d, want 1 (yesterday and failures excluded)", n)
	}
	if store.countKind != "opportunistic" {
		t.Fatalf("queried kind = %q, want opportunistic", store.countKind)
	}
	wantSince := time.Date(2025, 6, 2, 0, 0, 0, 0, loc)
	if !store.countSince.Equal(wantSince) {
		t.Fatalf("queried since = %v, want %v", store.countSince, wantSince)
	}
}

func TestQuotaReaderIgnoresOldLastPost(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("UTC+2", 2*3600)
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, loc)
	store := &fakeStore{posts: []storage.PostRecord{
		{At: time.Date(2025, 6, 1, 23, 30, 0, 0, loc), Kind: "fixed", Status: storage.StatusSuccess},
	}}
	q := quotaReader{
		store: store,
		loc:   func() *time.Location { return loc },
		now:   func() time.Time { return now },
	}

	if _, ok, err := q.LastPostTime(context.Background()); err != nil || ok {
		t.Fatalf("LastPostTime ok = %v, err = %v; want false (yesterday's post)", ok, err)
	}

	at := time.Date(2025, 6, 2, 8, 0, 0, 0, loc)
	store.posts = append(store.posts, storage.PostRecord{At: at, Kind: "fixed", Status: storage.StatusSuccess})
	got, ok, err := q.LastPostTime(context.Background())
	if err != nil || !ok {
		t.Fatalf("LastPostTime ok = %v, err = %v; want true", ok, err)
	}
	if !got.Equal(at) {
		t.Fatalf("LastPostTime = %v, want %v", got, at)
	}
}
