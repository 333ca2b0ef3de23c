package app

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"autopost/internal/config"
	"autopost/internal/content"
	"autopost/internal/eventbus"
	"autopost/internal/notify"
	"autopost/internal/publish"
	"autopost/internal/runtime/supervisor"
	"autopost/internal/scheduler"
	"autopost/internal/storage"
	logx "autopost/pkg/logx"
)

// StopReason labels why the app is shutting down; it only feeds logs.
type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSignal     StopReason = "signal"
	StopFatalError StopReason = "fatal_error"
	StopAppStop    StopReason = "app_stop"
)

// App owns the whole posting pipeline: config, logging, storage, the
// scheduling engine, and the delivery side (content, publish, notify).
// Content, publish, and notify are swapped atomically on config reload;
// schedule changes flow through the engine's Reconfigure.
type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	engine *scheduler.Service

	fetcher atomic.Pointer[content.Fetcher]
	pub     atomic.Pointer[publish.Client]
	notif   atomic.Pointer[notify.Service]

	// loc is the active posting window's timezone, for rendering times
	// in notifications and status output.
	loc atomic.Pointer[time.Location]
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, logSvc.Logger().With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	// Fail fast on a broken schedule instead of at Start.
	window, err := buildWindow(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	engCfg, err := mapEngineConfig(cfg.Schedule)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
	}
	a.loc.Store(windowLocation(window))

	a.fetcher.Store(content.NewFetcher(cfg.Content, logSvc.Logger().With(logx.String("comp", "content"))))
	a.pub.Store(publish.NewClient(cfg.Publish, logSvc.Logger().With(logx.String("comp", "publish"))))

	notifyLog := logSvc.Logger().With(logx.String("comp", "notify"))
	sender, err := notify.NewSender(cfg.Notify, notifyLog)
	if err != nil {
		// Posting works without notifications; do not refuse to start.
		log.Warn("notifications disabled", logx.Err(err))
		sender = nil
	}
	a.notif.Store(notify.NewService(cfg.Notify, sender, notifyLog))

	a.engine = scheduler.New(engCfg, scheduler.Deps{
		Quota:  a.quota(),
		Notify: notifierProxy{app: a},
		Bus:    bus,
		Log:    logSvc.Logger().With(logx.String("comp", "engine")),
	})

	return a, nil
}

// Done is closed when the supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start plans today's schedule and launches the engine loop, the
// notification worker, the event consumer, and the config watcher.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateConfig(cfg)
	})

	window, err := buildWindow(a.cfgm.Get().Schedule)
	if err != nil {
		return err
	}
	a.loc.Store(windowLocation(window))

	if err := a.engine.Initialize(a.sup.Context(), window, a.dispatch); err != nil {
		return err
	}

	if n := a.notif.Load(); n != nil && n.Enabled() {
		n.Start(a.sup.Context())
	}

	a.sup.GoRestart("engine", func(c context.Context) error {
		return a.engine.Run(c)
	})

	// One reachability probe at startup. Posting carries on either way;
	// an unreachable endpoint just fails individual dispatches.
	a.sup.Go0("publish.probe", func(c context.Context) {
		if a.pub.Load().Ping(c) {
			a.log.Info("posting endpoint reachable")
			return
		}
		a.log.Warn("posting endpoint unreachable, posts will be attempted anyway")
	})

	events, unsub := a.bus.Subscribe(64)
	a.sup.Go0("events", func(c context.Context) {
		defer unsub()
		a.consumeEvents(c, events)
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// Stop shuts the pipeline down in order: engine first so nothing new
// fires, then the notifier drains, then storage closes.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	a.sup.Cancel()
	a.engine.Stop()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}
		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("notify", 2*time.Second, func(c context.Context) error {
		if n := a.notif.Load(); n != nil {
			n.Stop(c)
		}
		return nil
	})
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// dispatch performs one complete posting attempt: fetch content, derive
// hashtags, publish, and record the attempt in the audit store. The
// outcome feeds the engine's re-planning decision.
func (a *App) dispatch(ctx context.Context, cat scheduler.Category) scheduler.Outcome {
	post := a.fetcher.Load().Fetch(ctx)
	tags := content.Hashtags(post.Content, post.Source)

	err := a.pub.Load().Publish(ctx, publish.Request{
		Title:    post.Title,
		Content:  post.Content,
		Hashtags: tags,
	})
	a.recordAttempt(ctx, string(cat), post, err)
	if err != nil {
		return scheduler.Failure(err.Error())
	}
	return scheduler.Success()
}

func (a *App) recordAttempt(ctx context.Context, kind string, post content.Post, pubErr error) {
	if a.store == nil {
		return
	}
	rec := storage.PostRecord{
		At:      time.Now(),
		Kind:    kind,
		Status:  storage.StatusSuccess,
		Source:  post.Source,
		Title:   post.Title,
		Content: post.Content,
	}
	if pubErr != nil {
		rec.Status = storage.StatusFailure
		rec.Error = pubErr.Error()
	}
	if err := a.store.AppendPost(ctx, rec); err != nil {
		a.log.Warn("audit append failed", logx.Err(err))
	}
}

func (a *App) consumeEvents(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			switch data := e.Data.(type) {
			case eventbus.PostFired:
				a.notifyPostResult(ctx, data)
			case eventbus.DayRollover:
				a.log.Info("new posting day", logx.String("day", data.Day))
			}
		}
	}
}

func (a *App) notifyPostResult(ctx context.Context, e eventbus.PostFired) {
	n := a.notif.Load()
	if n == nil || !n.Enabled() {
		return
	}
	title, message := formatPostResult(e, a.currentLocation())
	if err := n.Notify(ctx, title, message); err != nil {
		a.log.Debug("result notification not delivered", logx.Err(err))
	}
}

// formatPostResult renders the post-result notification: what happened
// plus when the next post is due, in the posting window's timezone.
func formatPostResult(e eventbus.PostFired, loc *time.Location) (title, message string) {
	result := fmt.Sprintf("%s post was successful.", e.Category)
	if !e.OK {
		result = fmt.Sprintf("%s post failed.", e.Category)
	}
	next := "No more posts scheduled today."
	if !e.NextFire.IsZero() {
		next = "Next post scheduled: " + e.NextFire.In(loc).Format("15:04")
	}
	return "Post Result", result + "\n" + next
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: only the newest config matters.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
			lastApplied = newCfg
			if len(sections) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				continue
			}
			a.applyReload(ctx, newCfg, sections)

			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Info("config reloaded", fields...)
		}
	}
}

func (a *App) applyReload(ctx context.Context, cfg *config.Config, sections []string) {
	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
		case "schedule":
			window, err := buildWindow(cfg.Schedule)
			if err != nil {
				// The validator rejects bad schedules before commit, so
				// this only trips on races with environment changes.
				a.log.Warn("schedule not applied", logx.Err(err))
				continue
			}
			a.loc.Store(windowLocation(window))
			if err := a.engine.Reconfigure(window); err != nil {
				a.log.Warn("schedule not applied", logx.Err(err))
			}
		case "content":
			a.fetcher.Store(content.NewFetcher(cfg.Content, a.logs.Logger().With(logx.String("comp", "content"))))
		case "publish":
			a.pub.Store(publish.NewClient(cfg.Publish, a.logs.Logger().With(logx.String("comp", "publish"))))
		case "notify":
			a.swapNotifier(ctx, cfg.Notify)
		case "storage":
			a.log.Warn("storage config changed; restart required for changes to take effect")
		}
	}
}

func (a *App) swapNotifier(ctx context.Context, cfg config.NotifyConfig) {
	notifyLog := a.logs.Logger().With(logx.String("comp", "notify"))
	sender, err := notify.NewSender(cfg, notifyLog)
	if err != nil {
		a.log.Warn("notify config not applied", logx.Err(err))
		return
	}
	next := notify.NewService(cfg, sender, notifyLog)
	if next.Enabled() {
		next.Start(ctx)
	}
	prev := a.notif.Swap(next)
	if prev != nil {
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		prev.Stop(stopCtx)
		cancel()
	}
}

func (a *App) currentLocation() *time.Location {
	if loc := a.loc.Load(); loc != nil {
		return loc
	}
	return time.Local
}

func windowLocation(w scheduler.Window) *time.Location {
	if w.Location != nil {
		return w.Location
	}
	return time.Local
}

// notifierProxy forwards advance notices to whichever notify service is
// currently installed, so config reloads never leave the engine holding
// a stale one. A disabled service swallows notices silently.
type notifierProxy struct {
	app *App
}

func (p notifierProxy) Notify(ctx context.Context, title, message string) error {
	s := p.app.notif.Load()
	if s == nil || !s.Enabled() {
		return nil
	}
	return s.Notify(ctx, title, message)
}
