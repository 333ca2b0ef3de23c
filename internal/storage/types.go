package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (append-only jsonl)
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Post statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// PostRecord records one publish attempt.
// Keep it compact and schema-stable.
type PostRecord struct {
	At      time.Time `json:"at"`
	Kind    string    `json:"kind"`   // post category ("fixed", "opportunistic", "test")
	Status  string    `json:"status"` // StatusSuccess or StatusFailure
	Source  string    `json:"source,omitempty"`
	Title   string    `json:"title,omitempty"`
	Content string    `json:"content,omitempty"` // truncated to maxContentLen
	Error   string    `json:"error,omitempty"`
}

// maxContentLen bounds stored post text so audit rows stay small.
const maxContentLen = 500

func truncateContent(s string) string {
	if len(s) <= maxContentLen {
		return s
	}
	return s[:maxContentLen]
}
