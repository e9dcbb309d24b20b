package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lwbot/internal/span"
)

var (
	// ErrNotStarted reports use of a scheduler whose dispatcher is not
	// running. This is a programmer error, not an input error.
	ErrNotStarted = errors.New("reminder scheduler not started")
	// ErrInvalidRequest reports a request the scheduler refuses to register.
	ErrInvalidRequest = errors.New("invalid reminder request")
)

// Kind is the closed set of task categories a reminder can track.
// The zero value is the explicit "unrecognized" variant, kept so a foreign
// or stale job identifier degrades at display time instead of failing.
type Kind string

const (
	KindUnknown  Kind = ""
	KindTruck    Kind = "truck"
	KindBuild    Kind = "build"
	KindResearch Kind = "research"
	KindTrain    Kind = "train"
	KindMinistry Kind = "ministry"
	KindCustom   Kind = "custom"
)

// ParseKind maps a raw tag onto the closed Kind set. Unrecognized tags
// yield (KindUnknown, false).
func ParseKind(s string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindTruck:
		return KindTruck, true
	case KindBuild:
		return KindBuild, true
	case KindResearch:
		return KindResearch, true
	case KindTrain:
		return KindTrain, true
	case KindMinistry:
		return KindMinistry, true
	case KindCustom:
		return KindCustom, true
	default:
		return KindUnknown, false
	}
}

func (k Kind) Valid() bool {
	_, ok := ParseKind(string(k))
	return ok
}

// Title returns the capitalized kind name used in labels ("Truck").
func (k Kind) Title() string {
	s := string(k)
	if s == "" {
		return "Unknown"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Role distinguishes the main reminder from its earlier heads-up sibling.
type Role string

const (
	RoleMain    Role = "main"
	RoleHeadsUp Role = "headsup"
)

// Request asks the scheduler for one reminder. The duration has already
// been resolved by the conversation layer (duration grammar or server-time
// resolver); only the optional lead-time text is parsed here.
type Request struct {
	OwnerID  int64
	ChatID   int64
	Kind     Kind
	TaskName string // only meaningful for KindCustom
	Duration span.Span
	LeadTime string // optional; raw text, e.g. "10m"

	// WebhookURL optionally overrides where the fired reminder is
	// delivered; empty means the notifier's default route.
	WebhookURL string
}

func (r Request) validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, string(r.Kind))
	}
	if r.Duration.IsZero() {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidRequest)
	}
	return nil
}

// Job is one registered one-shot timer job. Values handed out by List are
// copies; the scheduler's own entries never escape the table.
type Job struct {
	ID         string
	OwnerID    int64
	ChatID     int64
	Kind       Kind
	Epoch      int64 // creation epoch, shared by a main/heads-up pair
	Role       Role
	FireAt     time.Time
	Message    string
	WebhookURL string
}

// Notification is what a fired job hands to the delivery transport.
type Notification struct {
	ChatID     int64
	Message    string
	WebhookURL string
}

// Notifier delivers a fired reminder. Implementations report the outcome;
// the scheduler only logs it.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
