// Package storage persists posting attempts.
//
// It currently supports:
//   - Audit rows, one per publish attempt (scheduled or one-shot)
//   - Day-quota queries (count per category since a given instant)
//
// The scheduling engine never talks to this package directly; it sees a
// quota reader built on top of it.
package storage
