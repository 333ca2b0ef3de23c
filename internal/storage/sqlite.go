package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "autopost/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendPost(ctx context.Context, rec PostRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO posts(at, kind, status, source, title, content, err)
		 VALUES(?,?,?,?,?,?,?)`,
		rec.At.UnixMilli(), rec.Kind, rec.Status,
		nullStr(rec.Source), nullStr(rec.Title), nullStr(truncateContent(rec.Content)), nullStr(rec.Error),
	)
	return err
}

func (s *sqliteStore) CountPosts(ctx context.Context, kind string, since time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	var (
		n   int
		err error
	)
	if kind == "" {
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM posts WHERE status = ? AND at >= ?`,
			StatusSuccess, since.UnixMilli(),
		).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM posts WHERE status = ? AND kind = ? AND at >= ?`,
			StatusSuccess, kind, since.UnixMilli(),
		).Scan(&n)
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *sqliteStore) LastPost(ctx context.Context) (PostRecord, bool, error) {
	if s == nil || s.db == nil {
		return PostRecord{}, false, ErrDisabled
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT at, kind, status, source, title, content, err
		 FROM posts WHERE status = ? ORDER BY at DESC, id DESC LIMIT 1`,
		StatusSuccess,
	)
	rec, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return PostRecord{}, false, nil
	}
	if err != nil {
		return PostRecord{}, false, err
	}
	return rec, true, nil
}

func (s *sqliteStore) RecentPosts(ctx context.Context, limit int) ([]PostRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, kind, status, source, title, content, err
		 FROM posts ORDER BY at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]PostRecord, 0, limit)
	for rows.Next() {
		rec, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(r rowScanner) (PostRecord, error) {
	var ms int64
	var kind, status string
	var source, title, content, errStr sql.NullString
	if err := r.Scan(&ms, &kind, &status, &source, &title, &content, &errStr); err != nil {
		return PostRecord{}, err
	}
	return PostRecord{
		At:      time.UnixMilli(ms),
		Kind:    kind,
		Status:  status,
		Source:  source.String,
		Title:   title.String,
		Content: content.String,
		Error:   errStr.String,
	}, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
