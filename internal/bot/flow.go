package bot

import (
	"strings"
	"sync"
	"time"

	"lwbot/internal/reminder"
	"lwbot/internal/span"
)

// A conversation walks through: kind, optional custom name, duration (or
// server time for ministry), then an optional heads-up lead. Each chat+user
// pair has at most one conversation; stale ones expire.
type step int

const (
	stepKind step = iota
	stepName
	stepDuration
	stepServerTime
	stepLead
)

const flowTTL = 10 * time.Minute

type flow struct {
	step     step
	kind     reminder.Kind
	taskName string
	duration span.Span
	lead     string
	touched  time.Time
}

// selectKind consumes a kind button press and returns the next prompt.
func (f *flow) selectKind(k reminder.Kind) string {
	f.kind = k
	switch k {
	case reminder.KindCustom:
		f.step = stepName
		return namePrompt
	case reminder.KindMinistry:
		f.step = stepServerTime
		return ministryPrompt
	default:
		f.step = stepDuration
		return durationPrompt
	}
}

// inputName consumes the custom task name. ok is false when the name is
// unusable and the prompt is a re-ask.
func (f *flow) inputName(text string) (prompt string, ok bool) {
	name := strings.TrimSpace(text)
	if name == "" {
		return namePrompt, false
	}
	f.taskName = name
	f.step = stepDuration
	return durationPrompt, true
}

// inputDuration consumes duration text (typed or from a quick button).
func (f *flow) inputDuration(text string) (prompt string, ok bool) {
	d, err := span.Parse(text)
	if err != nil || d.IsZero() {
		return durationInvalid, false
	}
	f.duration = d
	f.step = stepLead
	return leadPrompt, true
}

// inputServerTime consumes a ministry opening time in server clock terms.
func (f *flow) inputServerTime(text string, now time.Time) (prompt string, ok bool) {
	d, err := span.ParseServerTime(text, now)
	if err != nil {
		return serverTimeInvalid, false
	}
	f.duration = d
	f.step = stepLead
	return leadPrompt, true
}

// inputLead consumes the heads-up lead time. An empty string skips the
// heads-up. The lead must at least parse here so typos get a re-ask
// instead of silently degrading later.
func (f *flow) inputLead(text string) (prompt string, ok bool) {
	lead := strings.TrimSpace(text)
	if lead != "" {
		if _, err := span.Parse(lead); err != nil {
			return leadInvalid, false
		}
	}
	f.lead = lead
	return "", true
}

// request materializes the finished conversation.
func (f *flow) request(ownerID, chatID int64) reminder.Request {
	return reminder.Request{
		OwnerID:  ownerID,
		ChatID:   chatID,
		Kind:     f.kind,
		TaskName: f.taskName,
		Duration: f.duration,
		LeadTime: f.lead,
	}
}

type flowKey struct {
	chat int64
	user int64
}

type flowStore struct {
	mu sync.Mutex
	m  map[flowKey]*flow
}

func newFlowStore() *flowStore {
	return &flowStore{m: map[flowKey]*flow{}}
}

func (s *flowStore) get(chat, user int64) (*flow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := flowKey{chat: chat, user: user}
	f, ok := s.m[k]
	if !ok {
		return nil, false
	}
	if time.Since(f.touched) > flowTTL {
		delete(s.m, k)
		return nil, false
	}
	f.touched = time.Now()
	return f, true
}

func (s *flowStore) put(chat, user int64, f *flow) {
	f.touched = time.Now()
	s.mu.Lock()
	s.m[flowKey{chat: chat, user: user}] = f
	s.mu.Unlock()
}

func (s *flowStore) clear(chat, user int64) {
	s.mu.Lock()
	delete(s.m, flowKey{chat: chat, user: user})
	s.mu.Unlock()
}
