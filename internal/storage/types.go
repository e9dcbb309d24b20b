// Package storage persists the reminder delivery history.
//
// Only the audit trail of fired reminders lives here. Pending jobs are
// memory-only on purpose: a restart loses them, and nothing in this
// package changes that.
package storage

import (
	"time"
)

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free jsonl backend
//   - "sqlite": SQLite database file (requires the sqlite build tag)
//
// An empty or "none" driver disables storage.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// DeliveryEntry records one reminder delivery attempt.
// Keep it compact and schema-stable.
type DeliveryEntry struct {
	At      time.Time
	ChatID  int64
	Via     string // "webhook", "telegram"
	OK      bool
	Error   string
	Message string
}
