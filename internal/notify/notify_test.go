package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"lwbot/internal/eventbus"
	"lwbot/internal/reminder"
	"lwbot/pkg/logx"
)

type fakeSender struct {
	chatID int64
	text   string
	err    error
}

func (f *fakeSender) SendTo(_ context.Context, chatID int64, text string) error {
	f.chatID = chatID
	f.text = text
	return f.err
}

func TestNotifyPostsWebhookPayload(t *testing.T) {
	t.Parallel()
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New(Config{WebhookURL: srv.URL}, nil, logx.Nop(), nil)
	err := s.Notify(context.Background(), reminder.Notification{ChatID: 42, Message: "⏰ Truck #456 is ready!"})
	if err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	if got.ChatID != 42 || got.Message != "⏰ Truck #456 is ready!" {
		t.Fatalf("payload = %+v", got)
	}
}

func TestNotifyWebhookFailurePublishesEvent(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	s := New(Config{WebhookURL: srv.URL}, nil, logx.Nop(), bus)
	if err := s.Notify(context.Background(), reminder.Notification{ChatID: 1, Message: "m"}); err == nil {
		t.Fatal("non-2xx webhook response must be an error")
	}

	ev := <-events
	if ev.Type != eventbus.TypeDeliveryFailed {
		t.Fatalf("event type = %s, want %s", ev.Type, eventbus.TypeDeliveryFailed)
	}
	de, ok := ev.Data.(DeliveryEvent)
	if !ok || de.Error == "" {
		t.Fatalf("event data = %+v", ev.Data)
	}
}

func TestNotifyFallsBackToChat(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	s := New(Config{}, sender, logx.Nop(), nil)
	if err := s.Notify(context.Background(), reminder.Notification{ChatID: 7, Message: "hello"}); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	if sender.chatID != 7 || sender.text != "hello" {
		t.Fatalf("sender got (%d, %q)", sender.chatID, sender.text)
	}
}

func TestNotifyPerJobWebhookOverride(t *testing.T) {
	t.Parallel()
	hit := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hit = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := &fakeSender{}
	s := New(Config{}, sender, logx.Nop(), nil)
	err := s.Notify(context.Background(), reminder.Notification{ChatID: 1, Message: "m", WebhookURL: srv.URL})
	if err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	if !hit {
		t.Fatal("per-notification webhook override was ignored")
	}
	if sender.text != "" {
		t.Fatal("chat fallback must not run when a webhook is set")
	}
}

func TestNotifyNoRoute(t *testing.T) {
	t.Parallel()
	s := New(Config{}, nil, logx.Nop(), nil)
	err := s.Notify(context.Background(), reminder.Notification{ChatID: 1, Message: "m"})
	if !errors.Is(err, ErrNoRoute) {
		t.Fatalf("err = %v, want ErrNoRoute", err)
	}
}
