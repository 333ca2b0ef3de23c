package config

import (
	"fmt"
	"strings"
	"time"
)

// Duration knobs in the config file are strings in Go duration syntax
// ("30s", "1h30m"). An empty string means unset; callers decide whether
// unset means disabled or falls back to a default.

// ParseDurationField parses one duration field. path names the field in
// error messages (for example "publish.timeout"). Unset parses to zero,
// and negative values are rejected.
func ParseDurationField(path, raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(trimmed)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField for knobs that always need
// a working value: unset and zero both become def.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// ClampDuration bounds d to [min, max]. Used for knobs like the dispatch
// tick, where an out-of-range value should degrade rather than error.
func ClampDuration(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}
