package reminder

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"lwbot/internal/eventbus"
	"lwbot/internal/span"
	"lwbot/pkg/logx"
)

type Config struct {
	// Location is the zone used when rendering fire times; nil means local.
	Location *time.Location
}

type ownerKey struct {
	owner int64
	chat  int64
}

// Scheduler owns the in-memory table of pending one-shot reminder jobs.
type Scheduler struct {
	cfg      Config
	clk      clock.Clock
	notifier Notifier
	log      logx.Logger
	bus      eventbus.Bus

	mu      sync.Mutex
	jobs    map[string]*Job
	byOwner map[ownerKey]map[string]struct{}
	running bool

	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg Config, clk clock.Clock, notifier Notifier, log logx.Logger, bus eventbus.Bus) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		cfg:      cfg,
		clk:      clk,
		notifier: notifier,
		log:      log,
		bus:      bus,
		jobs:     map[string]*Job{},
		byOwner:  map[ownerKey]map[string]struct{}{},
		wake:     make(chan struct{}, 1),
	}
}

// SetNotifier installs the delivery sink. It exists because wiring is
// circular at startup (delivery falls back to the Telegram front end,
// which itself needs the scheduler); call it before Start.
func (s *Scheduler) SetNotifier(n Notifier) {
	s.mu.Lock()
	s.notifier = n
	s.mu.Unlock()
}

// Start launches the dispatcher goroutine. Idempotent.
func (s *Scheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go s.loop(runCtx, done)
	s.log.Debug("dispatcher started")
}

// Stop halts the dispatcher, waiting for it up to ctx's deadline. Pending
// jobs stay in the table but will not fire until a new Start.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.running = false
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if ctx == nil {
		<-done
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Schedule registers the reminder described by req and returns the ids of
// the jobs actually registered (the MAIN job, plus a HEADSUP sibling when
// the lead time parses and leaves a positive remainder) together with the
// display label.
//
// An unparseable lead time is logged and degrades to "no heads-up"; it
// never aborts the main reminder.
func (s *Scheduler) Schedule(req Request) ([]string, string, error) {
	if err := req.validate(); err != nil {
		return nil, "", err
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil, "", ErrNotStarted
	}

	now := s.clk.Now()
	epoch := now.Unix()
	label := Label(req.Kind, req.TaskName, epoch)

	main := &Job{
		ID:         JobID{OwnerID: req.OwnerID, ChatID: req.ChatID, Kind: req.Kind, Epoch: epoch, Role: RoleMain}.Encode(),
		OwnerID:    req.OwnerID,
		ChatID:     req.ChatID,
		Kind:       req.Kind,
		Epoch:      epoch,
		Role:       RoleMain,
		FireAt:     now.Add(req.Duration.Std()),
		Message:    "⏰ " + label + " is ready!",
		WebhookURL: req.WebhookURL,
	}
	s.addLocked(main)
	registered := []*Job{main}

	if lead := strings.TrimSpace(req.LeadTime); lead != "" {
		leadSpan, err := span.Parse(lead)
		switch {
		case err != nil:
			s.log.Warn("lead time unparseable, scheduling without heads-up",
				logx.String("lead_time", lead), logx.Err(err))
		case req.Duration-leadSpan <= 0:
			s.log.Warn("lead time covers the whole duration, skipping heads-up",
				logx.String("lead_time", lead), logx.String("duration", req.Duration.String()))
		default:
			remain := req.Duration - leadSpan
			headsup := &Job{
				ID:         JobID{OwnerID: req.OwnerID, ChatID: req.ChatID, Kind: req.Kind, Epoch: epoch, Role: RoleHeadsUp}.Encode(),
				OwnerID:    req.OwnerID,
				ChatID:     req.ChatID,
				Kind:       req.Kind,
				Epoch:      epoch,
				Role:       RoleHeadsUp,
				FireAt:     now.Add(remain.Std()),
				Message:    "🔔 " + label + " will be ready in " + leadSpan.String(),
				WebhookURL: req.WebhookURL,
			}
			s.addLocked(headsup)
			registered = append(registered, headsup)
		}
	}
	s.mu.Unlock()

	s.wakeDispatcher()

	ids := make([]string, 0, len(registered))
	for _, j := range registered {
		ids = append(ids, j.ID)
		s.log.Info("reminder scheduled",
			logx.String("id", j.ID),
			logx.String("role", string(j.Role)),
			logx.Time("fire_at", j.FireAt))
		s.publish(eventbus.TypeReminderScheduled, *j)
	}
	return ids, label, nil
}

// List returns copies of the pending jobs for one (owner, chat) pair,
// sorted ascending by fire time. Jobs sharing a fire instant have no
// ordering guarantee between them.
func (s *Scheduler) List(ownerID, chatID int64) []Job {
	s.mu.Lock()
	ids := s.byOwner[ownerKey{owner: ownerID, chat: chatID}]
	out := make([]Job, 0, len(ids))
	for id := range ids {
		if j, ok := s.jobs[id]; ok {
			out = append(out, *j)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, k int) bool { return out[i].FireAt.Before(out[k].FireAt) })
	return out
}

// Cancel removes one pending job. It reports false, not an error, when
// the id is absent or the job already fired.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	j, ok := s.jobs[id]
	if ok {
		s.removeLocked(j)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	s.wakeDispatcher()
	s.log.Info("reminder cancelled", logx.String("id", id))
	s.publish(eventbus.TypeReminderCancelled, *j)
	return true
}

// CancelAll cancels every pending job for the (owner, chat) pair and
// returns how many were removed.
func (s *Scheduler) CancelAll(ownerID, chatID int64) int {
	count := 0
	for _, j := range s.List(ownerID, chatID) {
		if s.Cancel(j.ID) {
			count++
		}
	}
	return count
}

// Display renders a listing line for the job id in the scheduler's
// configured location.
func (s *Scheduler) Display(id string, fireAt time.Time) string {
	return Display(id, fireAt, s.cfg.Location)
}

// Pending reports the current table size.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// addLocked upserts by id: re-registering the same identifier replaces
// the previous entry. Call with s.mu held.
func (s *Scheduler) addLocked(j *Job) {
	s.jobs[j.ID] = j
	key := ownerKey{owner: j.OwnerID, chat: j.ChatID}
	set := s.byOwner[key]
	if set == nil {
		set = map[string]struct{}{}
		s.byOwner[key] = set
	}
	set[j.ID] = struct{}{}
}

// removeLocked drops a job from the table and the owner index. Call with
// s.mu held.
func (s *Scheduler) removeLocked(j *Job) {
	delete(s.jobs, j.ID)
	key := ownerKey{owner: j.OwnerID, chat: j.ChatID}
	if set := s.byOwner[key]; set != nil {
		delete(set, j.ID)
		if len(set) == 0 {
			delete(s.byOwner, key)
		}
	}
}

func (s *Scheduler) wakeDispatcher() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// loop is the dispatcher: it sleeps until the earliest fire instant, then
// removes and dispatches every due job. Registration and cancellation nudge
// it through the wake channel so it re-arms against the new earliest job.
func (s *Scheduler) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for {
		due, next, ok := s.takeDue()
		for _, j := range due {
			s.dispatch(ctx, j)
		}

		var timer *clock.Timer
		var tick <-chan time.Time
		if ok {
			d := next.Sub(s.clk.Now())
			if d <= 0 {
				// Became due while dispatching; collect it right away.
				continue
			}
			timer = s.clk.Timer(d)
			tick = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-s.wake:
			if timer != nil {
				timer.Stop()
			}
		case <-tick:
		}
	}
}

// takeDue removes and returns every job whose fire instant has arrived,
// plus the next upcoming fire time if any job remains.
func (s *Scheduler) takeDue() (due []*Job, next time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	for _, j := range s.jobs {
		if !j.FireAt.After(now) {
			due = append(due, j)
		}
	}
	for _, j := range due {
		s.removeLocked(j)
	}
	for _, j := range s.jobs {
		if !ok || j.FireAt.Before(next) {
			next = j.FireAt
			ok = true
		}
	}
	return due, next, ok
}

// dispatch hands a fired job to the notifier without blocking the loop.
// Delivery failures are logged and published, never retried: the job is
// terminal the moment it fires.
func (s *Scheduler) dispatch(ctx context.Context, j *Job) {
	s.log.Info("reminder fired",
		logx.String("id", j.ID),
		logx.Int64("chat_id", j.ChatID),
		logx.String("role", string(j.Role)))
	s.publish(eventbus.TypeReminderFired, *j)

	s.mu.Lock()
	notifier := s.notifier
	s.mu.Unlock()
	if notifier == nil {
		return
	}
	n := Notification{ChatID: j.ChatID, Message: j.Message, WebhookURL: j.WebhookURL}
	go func() {
		if err := notifier.Notify(ctx, n); err != nil {
			s.log.Error("reminder delivery failed",
				logx.String("id", j.ID),
				logx.Int64("chat_id", j.ChatID),
				logx.Err(err))
		}
	}()
}

func (s *Scheduler) publish(typ string, j Job) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.clk.Now(), Data: j})
}
