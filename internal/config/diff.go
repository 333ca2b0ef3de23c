package config

import (
	"reflect"
	"sort"
	"strings"

	logx "autopost/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections plus
// safe structured attrs for logging (never includes secrets like API keys
// or bot tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 20)

	// Logging
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Schedule (any change here triggers a full re-plan)
	if oldCfg.Schedule != newCfg.Schedule {
		changed = append(changed, "schedule")
		attrs = append(attrs,
			logx.String("schedule.fixed_time", strings.TrimSpace(newCfg.Schedule.FixedTime)),
			logx.String("schedule.window_start", strings.TrimSpace(newCfg.Schedule.WindowStart)),
			logx.String("schedule.window_end", strings.TrimSpace(newCfg.Schedule.WindowEnd)),
			logx.Int("schedule.opportunistic_per_day", newCfg.Schedule.OpportunisticPerDay),
			logx.String("schedule.timezone", strings.TrimSpace(newCfg.Schedule.Timezone)),
		)
	}

	// Content sources
	if !reflect.DeepEqual(oldCfg.Content, newCfg.Content) {
		changed = append(changed, "content")
		attrs = append(attrs,
			logx.Int("content.source_count", len(newCfg.Content.Sources)),
			logx.Bool("content.fallback_only", newCfg.Content.FallbackOnly),
		)
	}

	// Publish (never log the key)
	oldP, newP := oldCfg.Publish, newCfg.Publish
	if strings.TrimSpace(oldP.Endpoint) != strings.TrimSpace(newP.Endpoint) ||
		oldP.UserID != newP.UserID ||
		oldP.CategoryID != newP.CategoryID ||
		oldP.State != newP.State ||
		oldP.City != newP.City ||
		oldP.Device != newP.Device ||
		!reflect.DeepEqual(oldP.CountriesISO, newP.CountriesISO) ||
		strings.TrimSpace(oldP.Timeout) != strings.TrimSpace(newP.Timeout) ||
		oldP.DryRun != newP.DryRun ||
		strings.TrimSpace(oldP.APIKey) != strings.TrimSpace(newP.APIKey) {
		changed = append(changed, "publish")
		attrs = append(attrs,
			logx.String("publish.endpoint", strings.TrimSpace(newP.Endpoint)),
			logx.Bool("publish.api_key_set", strings.TrimSpace(newP.APIKey) != ""),
			logx.Bool("publish.dry_run", newP.DryRun),
		)
	}

	// Notify (never log the token)
	oldN, newN := oldCfg.Notify, newCfg.Notify
	var oldTok, newTok string
	var oldChat, newChat int64
	if oldN.Telegram != nil {
		oldTok = strings.TrimSpace(oldN.Telegram.Token)
		oldChat = oldN.Telegram.ChatID
	}
	if newN.Telegram != nil {
		newTok = strings.TrimSpace(newN.Telegram.Token)
		newChat = newN.Telegram.ChatID
	}
	if oldN.Driver != newN.Driver ||
		oldN.QueueSize != newN.QueueSize ||
		oldN.RatePerSec != newN.RatePerSec ||
		strings.TrimSpace(oldN.Timeout) != strings.TrimSpace(newN.Timeout) ||
		oldTok != newTok || oldChat != newChat {
		changed = append(changed, "notify")
		attrs = append(attrs,
			logx.String("notify.driver", newN.Driver),
			logx.Int("notify.rate_per_sec", newN.RatePerSec),
			logx.Bool("notify.token_set", newTok != ""),
		)
	}

	// Storage (nil means disabled)
	var oDriver, nDriver, oBusy, nBusy, oPath, nPath string
	if oldCfg.Storage != nil {
		oDriver = strings.TrimSpace(oldCfg.Storage.Driver)
		oBusy = strings.TrimSpace(oldCfg.Storage.BusyTimeout)
		oPath = strings.TrimSpace(oldCfg.Storage.Path)
	}
	if newCfg.Storage != nil {
		nDriver = strings.TrimSpace(newCfg.Storage.Driver)
		nBusy = strings.TrimSpace(newCfg.Storage.BusyTimeout)
		nPath = strings.TrimSpace(newCfg.Storage.Path)
	}
	if oDriver != nDriver || oBusy != nBusy || oPath != nPath {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nDriver),
			logx.Bool("storage.path_set", nPath != ""),
			logx.String("storage.busy_timeout", nBusy),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
