package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "autopost/pkg/logx"
)

// Store is the persistence API used by the app and the quota reader.
//
// CountPosts and LastPost only consider successful posts: a failed attempt
// must not consume quota.
type Store interface {
	AppendPost(ctx context.Context, rec PostRecord) error
	// CountPosts returns the number of successful posts of the given kind
	// at or after since. Empty kind counts across all kinds.
	CountPosts(ctx context.Context, kind string, since time.Time) (int, error)
	// LastPost returns the most recent successful post, if any.
	LastPost(ctx context.Context) (PostRecord, bool, error)
	// RecentPosts returns up to limit attempts (any status), newest first.
	RecentPosts(ctx context.Context, limit int) ([]PostRecord, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
