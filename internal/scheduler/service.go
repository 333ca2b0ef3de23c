package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"autopost/internal/eventbus"
	logx "autopost/pkg/logx"
)

// DefaultTick is the polling interval of the engine loop. The schedule
// only needs minute precision, so the tick stays well coarser than the
// planner's intervals and well finer than a minute.
const DefaultTick = 30 * time.Second

const (
	tagFixed         = "fixed"
	tagOpportunistic = "opportunistic"
)

var (
	// ErrNotInitialized is returned by Run and Reconfigure before a
	// successful Initialize.
	ErrNotInitialized = errors.New("scheduler: not initialized")
	// ErrAlreadyRunning guards double Initialize/Run.
	ErrAlreadyRunning = errors.New("scheduler: already running")
)

// Config tunes the engine loop.
type Config struct {
	// Tick is the polling interval. Defaults to DefaultTick.
	Tick time.Duration
	// NoticeLead is how far ahead of a post its advance notice fires.
	// Defaults to DefaultNoticeLead.
	NoticeLead time.Duration
}

// Deps are the engine's collaborators. Quota is the only one consulted
// during planning; everything else is optional and nil-safe.
type Deps struct {
	// Quota reports how much of today's budget is already spent. Nil
	// reads as "nothing posted yet".
	Quota QuotaReader
	// Notify receives advance notices. Delivery failures are logged and
	// otherwise ignored.
	Notify Notifier
	// Bus receives plan/fire/rollover events.
	Bus eventbus.Bus

	Log logx.Logger

	// Now overrides the clock, Rand the slot randomness. Both default
	// to the real thing; tests inject deterministic ones.
	Now  func() time.Time
	Rand *rand.Rand
}

// Service plans the day's posts and fires them from a single polling
// loop. All planning (initial, partial after an opportunistic success,
// midnight rollover, reconfigure) runs either before the loop starts or
// on the loop goroutine itself, so the injected rand source is never
// used concurrently.
type Service struct {
	cfg    Config
	log    logx.Logger
	bus    eventbus.Bus
	quota  QuotaReader
	notify Notifier
	now    func() time.Time
	rng    *rand.Rand

	table *Table

	mu        sync.Mutex
	state     State
	window    Window
	dispatch  DispatchFunc
	pending   *Window // window swap waiting for the loop, set by Reconfigure
	lastQuota QuotaSnapshot
	stopCh    chan struct{}
	running   bool

	replanCh chan string
}

func New(cfg Config, deps Deps) *Service {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.NoticeLead <= 0 {
		cfg.NoticeLead = DefaultNoticeLead
	}
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	rng := deps.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Service{
		cfg:      cfg,
		log:      log,
		bus:      deps.Bus,
		quota:    deps.Quota,
		notify:   deps.Notify,
		now:      now,
		rng:      rng,
		table:    NewTable(cfg.NoticeLead, now),
		replanCh: make(chan string, 1),
	}
}

// Initialize validates the window, derives the initial plan for the
// rest of the day and arms the engine. A rejected window leaves the
// engine Stopped; a quota read failure does not (the affected category
// just plans zero additional slots).
func (s *Service) Initialize(ctx context.Context, window Window, dispatch DispatchFunc) error {
	if dispatch == nil {
		return errors.New("scheduler: nil dispatch")
	}
	if err := window.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.state != StateStopped {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.state = StatePlanning
	s.window = window
	s.dispatch = dispatch
	s.mu.Unlock()

	s.planDay(ctx, "initialize")
	return nil
}

// Run drives the polling loop until ctx is cancelled or Stop is called.
// It must follow a successful Initialize.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	stopCh := make(chan struct{})
	s.stopCh = stopCh
	loc := s.window.loc()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	// The midnight trigger is cron-driven but trigger-only: the re-plan
	// itself runs on this goroutine.
	rolloverCh := make(chan struct{}, 1)
	c := newRolloverCron(loc, rolloverCh)
	defer func() { <-c.Stop().Done() }()

	t := time.NewTicker(s.cfg.Tick)
	defer t.Stop()

	s.log.Info("engine loop started",
		logx.Duration("tick", s.cfg.Tick),
		logx.String("tz", loc.String()),
		logx.Int("pending", s.table.Len()),
	)

	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return nil
		case <-stopCh:
			return nil
		case <-rolloverCh:
			s.rollover(ctx)
		case reason := <-s.replanCh:
			if s.applyReplan(ctx, reason) {
				// Schedule moved to a different location; restart the
				// midnight trigger there.
				<-c.Stop().Done()
				c = newRolloverCron(s.windowLoc(), rolloverCh)
			}
		case <-t.C:
			s.dispatchDue(ctx)
		}
	}
}

// Stop discards pending jobs and releases the polling loop. It does not
// interrupt a dispatch already in flight; that one finishes on its own.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	s.state = StateStopped
	stopCh := s.stopCh
	s.stopCh = nil
	s.mu.Unlock()

	s.table.Clear()
	if stopCh != nil {
		close(stopCh)
	}
	s.log.Info("engine stopped")
}

// Reconfigure swaps the schedule window and triggers a full re-plan on
// the engine loop. Safe to call from any goroutine; concurrent calls
// coalesce and the newest window wins.
func (s *Service) Reconfigure(window Window) error {
	if err := window.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	s.pending = &window
	s.mu.Unlock()

	select {
	case s.replanCh <- "reconfigure":
	default:
	}
	return nil
}

// Status reports the engine state. It never mutates the job table.
func (s *Service) Status() Status {
	s.mu.Lock()
	quota := s.lastQuota
	if quota.PerCategory != nil {
		pc := make(map[Category]int, len(quota.PerCategory))
		for k, v := range quota.PerCategory {
			pc[k] = v
		}
		quota.PerCategory = pc
	}
	st := Status{
		State:   s.state,
		Running: s.running,
		Window:  s.window,
		Quota:   quota,
	}
	s.mu.Unlock()

	jobs := s.table.Snapshot()
	st.PendingJobs = len(jobs)
	if len(jobs) > 0 {
		st.NextFire = jobs[0].FiresAt
		st.Jobs = make([]JobView, 0, len(jobs))
		for _, j := range jobs {
			st.Jobs = append(st.Jobs, JobView{
				ID:       j.ID,
				Tag:      j.Tag,
				FiresAt:  j.FiresAt,
				Kind:     j.Kind.String(),
				Category: j.Category,
				PostAt:   j.PostAt,
			})
		}
	}
	return st
}

// planDay wipes the table and derives the full plan for the rest of the
// day: the fixed post at its clock time (today only, never pushed to
// tomorrow) plus the opportunistic remainder.
func (s *Service) planDay(ctx context.Context, reason string) {
	s.setState(StatePlanning)
	defer s.setState(StateRunning)

	s.mu.Lock()
	w := s.window
	s.mu.Unlock()
	now := s.now()

	s.table.Clear()
	fixed := countPosts(s.planFixed(ctx, w, now))
	opp := countPosts(s.planOpportunistic(ctx, w, now))
	s.refreshLastPost(ctx)

	next, hasNext := s.table.NextFire()
	fields := []logx.Field{
		logx.String("reason", reason),
		logx.Int("fixed", fixed),
		logx.Int("opportunistic", opp),
		logx.Int("pending", s.table.Len()),
	}
	if hasNext {
		fields = append(fields, logx.Time("next_fire", next))
	}
	s.log.Info("plan installed", fields...)

	s.publish(eventbus.TypePlanInstalled, eventbus.PlanInstalled{
		Fixed:         fixed,
		Opportunistic: opp,
		NextFire:      next,
		Full:          true,
	})
}

// planFixed installs today's fixed post if quota still allows one and
// its clock time has not passed yet.
func (s *Service) planFixed(ctx context.Context, w Window, now time.Time) []Job {
	used, ok := s.countToday(ctx, CategoryFixed)
	if !ok {
		return nil
	}
	s.noteUsed(CategoryFixed, used)
	if used >= w.quotaFor(CategoryFixed) {
		return nil
	}
	at := w.FixedAt(now)
	if !at.After(now) {
		return nil
	}
	return s.table.Install([]PlannedSlot{{FiresAt: at, Category: CategoryFixed}}, tagFixed)
}

// planOpportunistic spreads the remaining opportunistic quota across
// what is left of the window.
func (s *Service) planOpportunistic(ctx context.Context, w Window, now time.Time) []Job {
	used, ok := s.countToday(ctx, CategoryOpportunistic)
	if !ok {
		return nil
	}
	s.noteUsed(CategoryOpportunistic, used)
	remaining := w.quotaFor(CategoryOpportunistic) - used
	if remaining <= 0 {
		return nil
	}

	base := now
	if start := w.StartAt(now); start.After(base) {
		base = start
	}
	slots := PlanSlots(base, w.EndAt(now), remaining, w.MinInterval, w.MaxInterval, s.rng)
	if len(slots) == 0 {
		return nil
	}
	planned := make([]PlannedSlot, len(slots))
	for i, at := range slots {
		planned[i] = PlannedSlot{FiresAt: at, Category: CategoryOpportunistic}
	}
	return s.table.Install(planned, tagOpportunistic)
}

// replanOpportunistic cancels the not-yet-fired opportunistic jobs (and
// their notices) and derives a fresh plan from the current quota. The
// fixed job is left untouched. Runs after every successful
// opportunistic dispatch, which also folds in posts made through other
// channels since the last plan.
func (s *Service) replanOpportunistic(ctx context.Context) {
	s.setState(StatePlanning)
	defer s.setState(StateRunning)

	s.mu.Lock()
	w := s.window
	s.mu.Unlock()
	now := s.now()

	s.table.Cancel(tagOpportunistic)
	s.table.Cancel("notify_" + tagOpportunistic)

	installed := countPosts(s.planOpportunistic(ctx, w, now))

	next, hasNext := s.table.NextFire()
	fields := []logx.Field{logx.Int("installed", installed)}
	if hasNext {
		fields = append(fields, logx.Time("next_fire", next))
	}
	s.log.Info("opportunistic plan refreshed", fields...)

	s.publish(eventbus.TypePlanInstalled, eventbus.PlanInstalled{
		Opportunistic: installed,
		NextFire:      next,
	})
}

// rollover runs the midnight full re-plan for the new day.
func (s *Service) rollover(ctx context.Context) {
	day := s.now().In(s.windowLoc()).Format("2006-01-02")
	s.log.Info("day rollover", logx.String("day", day))
	s.planDay(ctx, "rollover")
	s.publish(eventbus.TypeDayRollover, eventbus.DayRollover{Day: day})
}

// applyReplan consumes a pending window swap, if any, and runs a full
// re-plan. Runs on the engine loop. Reports whether the schedule
// location changed so the caller can restart the midnight trigger.
func (s *Service) applyReplan(ctx context.Context, reason string) bool {
	s.mu.Lock()
	tzChanged := false
	if s.pending != nil {
		tzChanged = s.window.loc().String() != s.pending.loc().String()
		s.window = *s.pending
		s.pending = nil
	}
	s.mu.Unlock()

	s.planDay(ctx, reason)
	return tzChanged
}

// dispatchDue fires every overdue job in firesAt order. Overdue jobs
// are never skipped: after a pause the whole backlog fires on the next
// tick, once each.
func (s *Service) dispatchDue(ctx context.Context) {
	due := s.table.Due(s.now())
	for _, j := range due {
		if ctx.Err() != nil || s.stopped() {
			return
		}
		switch j.Kind {
		case KindNotice:
			s.sendNotice(ctx, j)
		case KindPost:
			s.firePost(ctx, j)
		}
	}
}

// firePost runs the dispatch callback for one post job and, on a
// successful opportunistic outcome, refreshes the opportunistic plan
// before reporting the result. A failed outcome triggers no re-plan.
func (s *Service) firePost(ctx context.Context, j Job) {
	s.mu.Lock()
	dispatch := s.dispatch
	s.mu.Unlock()
	if dispatch == nil {
		return
	}

	start := s.now()
	out := s.safeDispatch(ctx, dispatch, j.Category)
	if out.OK {
		s.log.Info("post dispatched",
			logx.String("tag", j.Tag),
			logx.String("category", string(j.Category)),
			logx.Duration("took", s.now().Sub(start)),
		)
	} else {
		s.log.Warn("post failed",
			logx.String("tag", j.Tag),
			logx.String("category", string(j.Category)),
			logx.String("reason", out.Reason),
		)
	}

	if out.OK && j.Category == CategoryOpportunistic {
		s.replanOpportunistic(ctx)
	}

	next, _ := s.table.NextFire()
	s.publish(eventbus.TypePostFired, eventbus.PostFired{
		Category: string(j.Category),
		OK:       out.OK,
		Reason:   out.Reason,
		NextFire: next,
		Pending:  s.table.Len(),
	})
}

// safeDispatch converts a panicking dispatch callback into a failed
// outcome; collaborator failures must never take down the loop.
func (s *Service) safeDispatch(ctx context.Context, dispatch DispatchFunc, cat Category) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("dispatch panic",
				logx.String("category", string(cat)),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())),
			)
			out = Failure(fmt.Sprintf("dispatch panic: %v", r))
		}
	}()
	return dispatch(ctx, cat)
}

// sendNotice delivers an advance reminder. Delivery failures are logged
// and otherwise ignored.
func (s *Service) sendNotice(ctx context.Context, j Job) {
	if s.notify == nil {
		return
	}
	when := j.PostAt.In(s.windowLoc()).Format("15:04")
	msg := fmt.Sprintf("Upcoming %s post at %s.", j.Category, when)
	if err := s.notify.Notify(ctx, "Upcoming post", msg); err != nil {
		s.log.Warn("notice delivery failed", logx.String("tag", j.Tag), logx.Err(err))
	}
}

// publish emits one event, if a bus is attached.
func (s *Service) publish(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

// countToday reads one category's spent quota. On a read failure the
// category plans zero additional slots this cycle; planning never fails
// outright.
func (s *Service) countToday(ctx context.Context, cat Category) (int, bool) {
	if s.quota == nil {
		return 0, true
	}
	n, err := s.quota.CountToday(ctx, cat)
	if err != nil {
		s.log.Warn("quota read failed", logx.String("category", string(cat)), logx.Err(err))
		return 0, false
	}
	return n, true
}

func (s *Service) refreshLastPost(ctx context.Context) {
	if s.quota == nil {
		return
	}
	at, ok, err := s.quota.LastPostTime(ctx)
	if err != nil {
		s.log.Debug("last post read failed", logx.Err(err))
		return
	}
	s.mu.Lock()
	if ok {
		s.lastQuota.LastPostAt = at
	} else {
		s.lastQuota.LastPostAt = time.Time{}
	}
	s.mu.Unlock()
}

func (s *Service) noteUsed(cat Category, used int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastQuota.PerCategory == nil {
		s.lastQuota.PerCategory = make(map[Category]int)
	}
	s.lastQuota.PerCategory[cat] = used
	total := 0
	for _, n := range s.lastQuota.PerCategory {
		total += n
	}
	s.lastQuota.TotalToday = total
}

func (s *Service) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Service) stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateStopped
}

func (s *Service) windowLoc() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window.loc()
}

func newRolloverCron(loc *time.Location, trigger chan<- struct{}) *cron.Cron {
	c := cron.New(cron.WithLocation(loc))
	// The expression is constant and always parses.
	_, _ = c.AddFunc("0 0 * * *", func() {
		select {
		case trigger <- struct{}{}:
		default:
		}
	})
	c.Start()
	return c
}

func countPosts(jobs []Job) int {
	n := 0
	for _, j := range jobs {
		if j.Kind == KindPost {
			n++
		}
	}
	return n
}
