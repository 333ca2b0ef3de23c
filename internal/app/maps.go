package app

import (
	"fmt"
	"strings"
	"time"

	"autopost/internal/config"
	"autopost/internal/scheduler"
	"autopost/internal/storage"
)

// Schedule defaults, applied when the config omits a field.
const (
	defaultFixedTime   = "10:00"
	defaultWindowStart = "08:00"
	defaultWindowEnd   = "22:00"

	defaultMinInterval = 30 * time.Minute
	defaultMaxInterval = 4 * time.Hour

	defaultOpportunisticPerDay = 6

	defaultTick       = 30 * time.Second
	defaultNoticeLead = time.Hour
)

// Dispatch polling stays within this band regardless of config; finer
// ticks waste wakeups, coarser ones delay posts visibly.
const (
	minTick = 15 * time.Second
	maxTick = time.Minute
)

func orDefault(raw, def string) string {
	if s := strings.TrimSpace(raw); s != "" {
		return s
	}
	return def
}

// buildWindow turns the schedule section into a validated posting
// window the engine can plan from.
func buildWindow(sc config.ScheduleConfig) (scheduler.Window, error) {
	var w scheduler.Window
	var err error

	if w.FixedTime, err = scheduler.ParseTimeOfDay(orDefault(sc.FixedTime, defaultFixedTime)); err != nil {
		return scheduler.Window{}, fmt.Errorf("schedule.fixed_time: %w", err)
	}
	if w.Start, err = scheduler.ParseTimeOfDay(orDefault(sc.WindowStart, defaultWindowStart)); err != nil {
		return scheduler.Window{}, fmt.Errorf("schedule.window_start: %w", err)
	}
	if w.End, err = scheduler.ParseTimeOfDay(orDefault(sc.WindowEnd, defaultWindowEnd)); err != nil {
		return scheduler.Window{}, fmt.Errorf("schedule.window_end: %w", err)
	}

	if w.MinInterval, err = config.ParseDurationOrDefault("schedule.min_interval", sc.MinInterval, defaultMinInterval); err != nil {
		return scheduler.Window{}, err
	}
	if w.MaxInterval, err = config.ParseDurationOrDefault("schedule.max_interval", sc.MaxInterval, defaultMaxInterval); err != nil {
		return scheduler.Window{}, err
	}

	perDay := sc.OpportunisticPerDay
	if perDay == 0 {
		perDay = defaultOpportunisticPerDay
	}
	if perDay < 0 {
		return scheduler.Window{}, fmt.Errorf("schedule.opportunistic_per_day must not be negative, got %d", perDay)
	}
	w.Quota = map[scheduler.Category]int{
		scheduler.CategoryFixed:         1,
		scheduler.CategoryOpportunistic: perDay,
	}

	if tz := strings.TrimSpace(sc.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return scheduler.Window{}, fmt.Errorf("schedule.timezone: %w", err)
		}
		w.Location = loc
	}

	if err := w.Validate(); err != nil {
		return scheduler.Window{}, err
	}
	return w, nil
}

// mapEngineConfig extracts the engine's loop settings from the schedule
// section. The posting window itself travels separately (buildWindow).
func mapEngineConfig(sc config.ScheduleConfig) (scheduler.Config, error) {
	tick, err := config.ParseDurationOrDefault("schedule.tick", sc.Tick, defaultTick)
	if err != nil {
		return scheduler.Config{}, err
	}
	lead, err := config.ParseDurationOrDefault("schedule.notice_lead", sc.NoticeLead, defaultNoticeLead)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Tick:       config.ClampDuration(tick, minTick, maxTick),
		NoticeLead: lead,
	}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=file")
		}
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

// validateConfig is the reload gate: a config that fails here is
// rejected before commit and the previous one stays active.
func validateConfig(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if _, err := buildWindow(cfg.Schedule); err != nil {
		return err
	}
	if _, err := mapEngineConfig(cfg.Schedule); err != nil {
		return err
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}

	if _, err := config.ParseDurationField("content.request_timeout", cfg.Content.RequestTimeout); err != nil {
		return err
	}
	for i, src := range cfg.Content.Sources {
		if strings.TrimSpace(src.Name) == "" {
			return fmt.Errorf("content.sources[%d].name is required", i)
		}
		if strings.TrimSpace(src.URL) == "" {
			return fmt.Errorf("content.sources[%d].url is required", i)
		}
		if strings.TrimSpace(src.ContentKey) == "" {
			return fmt.Errorf("content.sources[%d].content_key is required", i)
		}
	}

	if _, err := config.ParseDurationField("publish.timeout", cfg.Publish.Timeout); err != nil {
		return err
	}

	n := cfg.Notify
	switch strings.ToLower(strings.TrimSpace(n.Driver)) {
	case "", "none", "desktop":
	case "telegram":
		if n.Telegram == nil || n.Telegram.ChatID == 0 {
			return fmt.Errorf("notify.telegram.chat_id is required when notify.driver=telegram")
		}
		// The token may arrive via AUTOPOST_TELEGRAM_TOKEN, so its
		// absence in the file is not an error here.
	default:
		return fmt.Errorf("unknown notify.driver: %s", n.Driver)
	}
	if n.QueueSize < 0 {
		return fmt.Errorf("notify.queue_size must not be negative, got %d", n.QueueSize)
	}
	if n.RatePerSec < 0 {
		return fmt.Errorf("notify.rate_per_sec must not be negative, got %d", n.RatePerSec)
	}
	if _, err := config.ParseDurationField("notify.timeout", n.Timeout); err != nil {
		return err
	}

	return nil
}
