package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"lwbot/pkg/logx"
)

// Store is the delivery-history API used by the history service.
type Store interface {
	AppendDelivery(ctx context.Context, e DeliveryEntry) error

	// RecentDeliveries returns up to limit entries, newest first.
	// chatID 0 means all chats.
	RecentDeliveries(ctx context.Context, chatID int64, limit int) ([]DeliveryEntry, error)

	// PruneDeliveries drops entries older than the cutoff and reports how
	// many were removed.
	PruneDeliveries(ctx context.Context, olderThan time.Time) (int, error)

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
