package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "autopost/pkg/logx"
)

// fileStore is a dependency-free persistence backend: one append-only
// JSON Lines file, one record per publish attempt.
//
// Queries scan the file. Volumes here are a handful of rows per day, so
// scans stay cheap; anything bigger belongs on the sqlite driver.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	path string
	f    *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{log: log, path: path, f: f}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *fileStore) AppendPost(ctx context.Context, rec PostRecord) error {
	_ = ctx
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	rec.Content = truncateContent(rec.Content)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return errors.New("posts file closed")
	}
	return json.NewEncoder(s.f).Encode(rec)
}

func (s *fileStore) CountPosts(ctx context.Context, kind string, since time.Time) (int, error) {
	n := 0
	err := s.scan(ctx, func(rec PostRecord) bool {
		if rec.Status != StatusSuccess {
			return true
		}
		if kind != "" && rec.Kind != kind {
			return true
		}
		if rec.At.Before(since) {
			return true
		}
		n++
		return true
	})
	return n, err
}

func (s *fileStore) LastPost(ctx context.Context) (PostRecord, bool, error) {
	var (
		last  PostRecord
		found bool
	)
	err := s.scan(ctx, func(rec PostRecord) bool {
		if rec.Status != StatusSuccess {
			return true
		}
		if !found || rec.At.After(last.At) {
			last = rec
			found = true
		}
		return true
	})
	if err != nil {
		return PostRecord{}, false, err
	}
	return last, found, nil
}

func (s *fileStore) RecentPosts(ctx context.Context, limit int) ([]PostRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var all []PostRecord
	err := s.scan(ctx, func(rec PostRecord) bool {
		all = append(all, rec)
		return true
	})
	if err != nil {
		return nil, err
	}
	// Newest first; file order is append order.
	out := make([]PostRecord, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

// scan replays the file through fn. Corrupt lines are skipped, not fatal:
// a torn final line after a crash must not poison every query.
func (s *fileStore) scan(ctx context.Context, fn func(rec PostRecord) bool) error {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec PostRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			s.log.Debug("skipping corrupt posts line", logx.Err(err))
			continue
		}
		if !fn(rec) {
			return nil
		}
	}
	return sc.Err()
}
