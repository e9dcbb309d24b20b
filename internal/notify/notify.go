// Package notify delivers fired reminders.
//
// Delivery goes to the configured webhook (an n8n-style JSON POST) when
// one is set, otherwise straight to the originating Telegram chat. The
// outcome is logged and published on the bus; it is never retried and
// never surfaced back to a conversation, which has long since ended.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"lwbot/internal/eventbus"
	"lwbot/internal/reminder"
	"lwbot/pkg/logx"
)

var ErrNoRoute = errors.New("no delivery route configured")

// ChatSender is the Telegram side of delivery, implemented by the bot.
type ChatSender interface {
	SendTo(ctx context.Context, chatID int64, text string) error
}

type Config struct {
	// WebhookURL is the default outbound endpoint; empty disables webhook
	// delivery and reminders go to the chat directly.
	WebhookURL string
	Timeout    time.Duration // per-delivery HTTP timeout
	RatePerSec int
}

// Service implements reminder.Notifier.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	http   *http.Client
	sender ChatSender
	log    logx.Logger
	bus    eventbus.Bus
}

func New(cfg Config, sender ChatSender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		sender: sender,
		log:    log,
		bus:    bus,
		http:   &http.Client{},
	}
	s.applyLocked(cfg)
	return s
}

// Apply updates delivery settings at runtime (config hot reload).
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	s.cfg = cfg
	// Burst equals the per-second rate so short spikes don't stall firings.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.http.Timeout = cfg.Timeout
}

// webhookPayload is the wire shape posted to the webhook endpoint.
type webhookPayload struct {
	ChatID  int64  `json:"chat_id"`
	Message string `json:"message"`
}

// Notify delivers one fired reminder. Called from the scheduler on a
// dedicated goroutine, so waiting on the rate limiter is fine here.
func (s *Service) Notify(ctx context.Context, n reminder.Notification) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	if err := lim.Wait(ctx); err != nil {
		return err
	}

	url := strings.TrimSpace(n.WebhookURL)
	if url == "" {
		url = strings.TrimSpace(cfg.WebhookURL)
	}

	var via string
	var err error
	switch {
	case url != "":
		via = "webhook"
		err = s.postWebhook(ctx, url, n)
	case s.sender != nil:
		via = "telegram"
		err = s.sender.SendTo(ctx, n.ChatID, n.Message)
	default:
		via = "none"
		err = ErrNoRoute
	}

	if err != nil {
		s.log.Warn("delivery failed",
			logx.String("via", via),
			logx.Int64("chat_id", n.ChatID),
			logx.Err(err))
		s.publish(eventbus.TypeDeliveryFailed, n, via, err)
		return err
	}
	s.log.Debug("delivery sent", logx.String("via", via), logx.Int64("chat_id", n.ChatID))
	s.publish(eventbus.TypeDeliverySent, n, via, nil)
	return nil
}

func (s *Service) postWebhook(ctx context.Context, url string, n reminder.Notification) error {
	body, err := json.Marshal(webhookPayload{ChatID: n.ChatID, Message: n.Message})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}

// DeliveryEvent is the bus payload for delivery.sent / delivery.failed.
type DeliveryEvent struct {
	ChatID  int64
	Message string
	Via     string
	Error   string
	At      time.Time
}

func (s *Service) publish(typ string, n reminder.Notification, via string, err error) {
	if s.bus == nil {
		return
	}
	ev := DeliveryEvent{ChatID: n.ChatID, Message: n.Message, Via: via, At: time.Now()}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}
