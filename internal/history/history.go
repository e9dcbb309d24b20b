// Package history keeps a delivery audit log. It watches the event bus
// for delivery outcomes, persists them, and serves the /history command.
package history

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"

	"lwbot/internal/eventbus"
	"lwbot/internal/notify"
	"lwbot/internal/storage"
	"lwbot/pkg/logx"
)

type Config struct {
	// Retention bounds how long delivery records are kept. Zero disables
	// pruning entirely.
	Retention time.Duration

	// PruneSpec is the cron schedule for the retention sweep.
	PruneSpec string
}

// Service records delivery outcomes and answers history queries. A nil
// store turns every method into a no-op so the rest of the app does not
// care whether persistence is configured.
type Service struct {
	cfg   Config
	store storage.Store
	bus   eventbus.Bus
	log   logx.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	cron    *cron.Cron
}

func New(cfg Config, store storage.Store, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.PruneSpec == "" {
		cfg.PruneSpec = "@daily"
	}
	return &Service{cfg: cfg, store: store, bus: bus, log: log}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if s.store == nil {
		s.log.Debug("history disabled: no store configured")
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	events, unsub := s.bus.Subscribe(64)

	s.done = make(chan struct{})
	go s.consume(runCtx, events, unsub, s.done)

	if s.cfg.Retention > 0 {
		c := cron.New()
		if _, err := c.AddFunc(s.cfg.PruneSpec, s.prune); err != nil {
			cancel()
			unsub()
			return fmt.Errorf("history prune schedule: %w", err)
		}
		c.Start()
		s.cron = c
	}

	s.cancel = cancel
	s.running = true
	s.log.Info("history started",
		logx.Duration("retention", s.cfg.Retention),
		logx.String("prune_spec", s.cfg.PruneSpec))
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	c := s.cron
	s.cancel = nil
	s.done = nil
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (s *Service) consume(ctx context.Context, events <-chan eventbus.Event, unsub func(), done chan struct{}) {
	defer close(done)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.record(ctx, ev)
		}
	}
}

func (s *Service) record(ctx context.Context, ev eventbus.Event) {
	de, ok := ev.Data.(notify.DeliveryEvent)
	if !ok {
		return
	}
	var entry storage.DeliveryEntry
	switch ev.Type {
	case eventbus.TypeDeliverySent:
		entry = storage.DeliveryEntry{At: de.At, ChatID: de.ChatID, Via: de.Via, OK: true, Message: de.Message}
	case eventbus.TypeDeliveryFailed:
		entry = storage.DeliveryEntry{At: de.At, ChatID: de.ChatID, Via: de.Via, OK: false, Error: de.Error, Message: de.Message}
	default:
		return
	}
	if err := s.store.AppendDelivery(ctx, entry); err != nil {
		s.log.Warn("history append failed", logx.Err(err))
	}
}

func (s *Service) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-s.cfg.Retention)
	n, err := s.store.PruneDeliveries(ctx, cutoff)
	if err != nil {
		s.log.Warn("history prune failed", logx.Err(err))
		return
	}
	if n > 0 {
		s.log.Info("history pruned", logx.Int("removed", n), logx.Time("cutoff", cutoff))
	}
}

// Recent returns the latest delivery records for a chat, newest first.
// chatID 0 means all chats. Returns nil when history is disabled.
func (s *Service) Recent(ctx context.Context, chatID int64, limit int) ([]storage.DeliveryEntry, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.RecentDeliveries(ctx, chatID, limit)
}

// Render formats delivery records for a chat message.
func Render(entries []storage.DeliveryEntry) string {
	if len(entries) == 0 {
		return "No deliveries yet."
	}
	var b strings.Builder
	b.WriteString("Recent deliveries:\n")
	for _, e := range entries {
		mark := "✅"
		if !e.OK {
			mark = "❌"
		}
		fmt.Fprintf(&b, "%s %s (%s, %s)", mark, e.Message, e.Via, humanize.Time(e.At))
		if e.Error != "" {
			fmt.Fprintf(&b, " - %s", e.Error)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
