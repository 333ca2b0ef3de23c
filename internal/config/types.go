package config

import (
	"os"
	"strings"
)

type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Schedule ScheduleConfig `json:"schedule"`
	Content  ContentConfig  `json:"content"`
	Publish  PublishConfig  `json:"publish"`
	Notify   NotifyConfig   `json:"notify"`
	Storage  *StorageConfig `json:"storage,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// ScheduleConfig controls the daily posting plan.
//
// Clock times are "HH:MM" strings; durations are Go duration strings
// (e.g. "30m", "4h"). Defaults (when fields are omitted/empty):
//   - fixed_time: "10:00"
//   - window_start: "08:00"
//   - window_end: "22:00"
//   - min_interval: "30m"
//   - max_interval: "4h"
//   - opportunistic_per_day: 6
//   - tick: "30s"
//   - notice_lead: "1h"
//   - timezone: host local zone
type ScheduleConfig struct {
	FixedTime   string `json:"fixed_time,omitempty"`
	WindowStart string `json:"window_start,omitempty"`
	WindowEnd   string `json:"window_end,omitempty"`

	MinInterval string `json:"min_interval,omitempty"`
	MaxInterval string `json:"max_interval,omitempty"`

	OpportunisticPerDay int `json:"opportunistic_per_day,omitempty"`

	// Tick is the dispatch poll interval. Coarser than the minute-level
	// precision the plan needs; keep it within 15s..60s.
	Tick       string `json:"tick,omitempty"`
	NoticeLead string `json:"notice_lead,omitempty"`

	// Timezone is an IANA zone name (e.g. "Europe/Berlin") the whole
	// schedule is evaluated in. Empty means host local time.
	Timezone string `json:"timezone,omitempty"`
}

// ContentConfig controls where post text comes from.
//
// With no sources configured, a built-in rotation of public APIs is used.
// fallback_only skips the network entirely (useful offline and in tests).
type ContentConfig struct {
	Sources        []SourceConfig `json:"sources,omitempty"`
	RequestTimeout string         `json:"request_timeout,omitempty"` // default "10s"
	FallbackOnly   bool           `json:"fallback_only,omitempty"`
}

// SourceConfig describes one JSON content API. The *_key fields are
// dot-paths into the response ("quote.body", "0.q" for array roots).
type SourceConfig struct {
	Name         string `json:"name"`
	URL          string `json:"url"`
	ContentKey   string `json:"content_key"`
	AuthorKey    string `json:"author_key,omitempty"`
	PunchlineKey string `json:"punchline_key,omitempty"`
	TitleKey     string `json:"title_key,omitempty"`
}

// PublishConfig controls the posting endpoint client.
type PublishConfig struct {
	Endpoint string `json:"endpoint"`
	// APIKey may be left empty in the file and supplied via the
	// AUTOPOST_API_KEY environment variable instead (do not log).
	APIKey string `json:"api_key,omitempty"`

	UserID     string `json:"user_id"`
	CategoryID string `json:"category_id"`
	State      string `json:"state,omitempty"`
	City       string `json:"city,omitempty"`
	Device     string `json:"device,omitempty"`

	CountriesISO []string `json:"countries_iso,omitempty"`

	Timeout string `json:"timeout,omitempty"` // default "30s"

	// DryRun logs the submission instead of sending it.
	DryRun bool `json:"dry_run,omitempty"`
}

// NotifyConfig controls the notification pipeline.
//
// Driver is one of "desktop", "telegram", "none" (or empty = none).
type NotifyConfig struct {
	Driver     string `json:"driver,omitempty"`
	QueueSize  int    `json:"queue_size,omitempty"`   // default 64
	RatePerSec int    `json:"rate_per_sec,omitempty"` // default 1
	Timeout    string `json:"timeout,omitempty"`      // per delivery, default "5s"

	Telegram *NotifyTelegramConfig `json:"telegram,omitempty"`
}

type NotifyTelegramConfig struct {
	// Token may be left empty and supplied via AUTOPOST_TELEGRAM_TOKEN.
	Token  string `json:"token,omitempty"`
	ChatID int64  `json:"chat_id"`
}

// StorageConfig controls the audit/quota persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./autopost.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// ResolvedAPIKey returns the configured key, falling back to the
// AUTOPOST_API_KEY environment variable.
func (p PublishConfig) ResolvedAPIKey() string {
	if k := strings.TrimSpace(p.APIKey); k != "" {
		return k
	}
	return strings.TrimSpace(os.Getenv("AUTOPOST_API_KEY"))
}

// ResolvedToken returns the configured bot token, falling back to the
// AUTOPOST_TELEGRAM_TOKEN environment variable.
func (t *NotifyTelegramConfig) ResolvedToken() string {
	if t == nil {
		return strings.TrimSpace(os.Getenv("AUTOPOST_TELEGRAM_TOKEN"))
	}
	if k := strings.TrimSpace(t.Token); k != "" {
		return k
	}
	return strings.TrimSpace(os.Getenv("AUTOPOST_TELEGRAM_TOKEN"))
}
