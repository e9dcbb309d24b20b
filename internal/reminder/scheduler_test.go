package reminder

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"lwbot/internal/span"
	"lwbot/pkg/logx"
)

type captureNotifier struct {
	ch chan Notification
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{ch: make(chan Notification, 16)}
}

func (c *captureNotifier) Notify(_ context.Context, n Notification) error {
	c.ch <- n
	return nil
}

func (c *captureNotifier) wait(t *testing.T) Notification {
	t.Helper()
	select {
	case n := <-c.ch:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a delivery")
		return Notification{}
	}
}

func (c *captureNotifier) expectNone(t *testing.T) {
	t.Helper()
	select {
	case n := <-c.ch:
		t.Fatalf("unexpected delivery: %+v", n)
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestScheduler(t *testing.T) (*Scheduler, *clock.Mock, *captureNotifier) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.Date(2025, 12, 3, 14, 0, 0, 0, time.UTC))
	notif := newCaptureNotifier()
	s := New(Config{Location: time.UTC}, mock, notif, logx.Nop(), nil)
	s.Start(context.Background())
	t.Cleanup(func() { s.Stop(context.Background()) })
	return s, mock, notif
}

func TestScheduleBeforeStart(t *testing.T) {
	t.Parallel()
	s := New(Config{}, clock.NewMock(), nil, logx.Nop(), nil)
	_, _, err := s.Schedule(Request{OwnerID: 1, ChatID: 2, Kind: KindTruck, Duration: span.New(0, 1, 0)})
	if err != ErrNotStarted {
		t.Fatalf("Schedule before Start = %v, want ErrNotStarted", err)
	}
}

func TestScheduleRejectsInvalidRequest(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestScheduler(t)

	if _, _, err := s.Schedule(Request{OwnerID: 1, ChatID: 2, Kind: KindTruck}); err == nil {
		t.Fatal("zero duration must be rejected")
	}
	if _, _, err := s.Schedule(Request{OwnerID: 1, ChatID: 2, Kind: Kind("dragon"), Duration: span.New(0, 1, 0)}); err == nil {
		t.Fatal("unknown kind must be rejected")
	}
}

func TestScheduleMainOnly(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestScheduler(t)

	ids, label, err := s.Schedule(Request{OwnerID: 1, ChatID: 2, Kind: KindTruck, Duration: span.New(0, 2, 0)})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("registered %d jobs, want 1", len(ids))
	}
	if !strings.HasPrefix(label, "Truck #") {
		t.Fatalf("label = %q, want Truck with suffix", label)
	}

	decoded, ok := DecodeJobID(ids[0])
	if !ok || decoded.Role != RoleMain {
		t.Fatalf("main id %q decoded to %+v", ids[0], decoded)
	}
}

func TestScheduleWithHeadsUp(t *testing.T) {
	t.Parallel()
	s, mock, notif := newTestScheduler(t)

	ids, label, err := s.Schedule(Request{
		OwnerID:  1,
		ChatID:   2,
		Kind:     KindBuild,
		Duration: span.New(0, 2, 0),
		LeadTime: "10m",
	})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("registered %d jobs, want 2", len(ids))
	}

	// Heads-up fires at duration - lead = 1h50m.
	mock.Add(110 * time.Minute)
	n := notif.wait(t)
	if n.ChatID != 2 || !strings.Contains(n.Message, label) || !strings.Contains(n.Message, "10m") {
		t.Fatalf("heads-up notification = %+v", n)
	}

	// Main fires at the full duration.
	mock.Add(10 * time.Minute)
	n = notif.wait(t)
	if !strings.Contains(n.Message, "is ready") {
		t.Fatalf("main notification = %+v", n)
	}

	if s.Pending() != 0 {
		t.Fatalf("Pending = %d after both fired, want 0", s.Pending())
	}
}

func TestHeadsUpSkippedWhenLeadCoversDuration(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestScheduler(t)

	ids, _, err := s.Schedule(Request{
		OwnerID:  1,
		ChatID:   2,
		Kind:     KindTruck,
		Duration: span.New(0, 0, 5),
		LeadTime: "10m",
	})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("registered %d jobs, want 1 (heads-up must be suppressed)", len(ids))
	}
}

func TestBadLeadTimeDegradesToMainOnly(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestScheduler(t)

	ids, _, err := s.Schedule(Request{
		OwnerID:  1,
		ChatID:   2,
		Kind:     KindResearch,
		Duration: span.New(0, 2, 0),
		LeadTime: "soonish",
	})
	if err != nil {
		t.Fatalf("Schedule must not propagate a lead-time parse failure: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("registered %d jobs, want 1", len(ids))
	}
}

func TestListFiltersAndSorts(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestScheduler(t)

	mustSchedule := func(owner, chat int64, kind Kind, d span.Span) {
		t.Helper()
		if _, _, err := s.Schedule(Request{OwnerID: owner, ChatID: chat, Kind: kind, Duration: d}); err != nil {
			t.Fatalf("Schedule error: %v", err)
		}
	}
	mustSchedule(1, 100, KindBuild, span.New(0, 3, 0))
	mustSchedule(1, 100, KindTruck, span.New(0, 1, 0))
	mustSchedule(2, 100, KindTrain, span.New(0, 2, 0))

	jobs := s.List(1, 100)
	if len(jobs) != 2 {
		t.Fatalf("List(1,100) = %d jobs, want 2", len(jobs))
	}
	if jobs[0].Kind != KindTruck || jobs[1].Kind != KindBuild {
		t.Fatalf("List order = [%s %s], want ascending by fire time", jobs[0].Kind, jobs[1].Kind)
	}
	for _, j := range jobs {
		if j.OwnerID != 1 || j.ChatID != 100 {
			t.Fatalf("List leaked a foreign job: %+v", j)
		}
	}

	if other := s.List(9, 9); len(other) != 0 {
		t.Fatalf("List(9,9) = %d jobs, want 0", len(other))
	}
}

func TestCancel(t *testing.T) {
	t.Parallel()
	s, mock, notif := newTestScheduler(t)

	ids, _, err := s.Schedule(Request{OwnerID: 1, ChatID: 2, Kind: KindTruck, Duration: span.New(0, 1, 0)})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}

	if !s.Cancel(ids[0]) {
		t.Fatal("Cancel of a pending job must report true")
	}
	if s.Cancel(ids[0]) {
		t.Fatal("second Cancel of the same id must report false")
	}
	if s.Cancel("lw:9:9:truck:0:main") {
		t.Fatal("Cancel of an unknown id must report false")
	}

	// The cancelled job must not fire.
	mock.Add(2 * time.Hour)
	notif.expectNone(t)
}

func TestCancelAfterFire(t *testing.T) {
	t.Parallel()
	s, mock, notif := newTestScheduler(t)

	ids, _, err := s.Schedule(Request{OwnerID: 1, ChatID: 2, Kind: KindTruck, Duration: span.New(0, 0, 30)})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	mock.Add(30 * time.Minute)
	notif.wait(t)

	if s.Cancel(ids[0]) {
		t.Fatal("Cancel after fire must report false; fired jobs are terminal")
	}
}

func TestCancelAll(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestScheduler(t)

	mustSchedule := func(owner, chat int64, lead string) {
		t.Helper()
		if _, _, err := s.Schedule(Request{OwnerID: owner, ChatID: chat, Kind: KindTruck, Duration: span.New(0, 2, 0), LeadTime: lead}); err != nil {
			t.Fatalf("Schedule error: %v", err)
		}
	}
	mustSchedule(1, 100, "10m") // two jobs
	mustSchedule(2, 100, "")    // one job, different owner

	if got := s.CancelAll(1, 100); got != 2 {
		t.Fatalf("CancelAll(1,100) = %d, want 2", got)
	}
	if got := s.CancelAll(1, 100); got != 0 {
		t.Fatalf("repeat CancelAll = %d, want 0", got)
	}
	if got := len(s.List(2, 100)); got != 1 {
		t.Fatalf("other owner's jobs = %d, want 1 untouched", got)
	}
}

func TestEarlierJobReArmsDispatcher(t *testing.T) {
	t.Parallel()
	s, mock, notif := newTestScheduler(t)

	if _, _, err := s.Schedule(Request{OwnerID: 1, ChatID: 2, Kind: KindBuild, Duration: span.New(0, 5, 0)}); err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	// A later registration with an earlier fire time must fire first.
	if _, _, err := s.Schedule(Request{OwnerID: 1, ChatID: 2, Kind: KindTruck, Duration: span.New(0, 0, 10)}); err != nil {
		t.Fatalf("Schedule error: %v", err)
	}

	mock.Add(10 * time.Minute)
	n := notif.wait(t)
	if !strings.Contains(n.Message, "Truck") {
		t.Fatalf("first delivery = %q, want the earlier Truck reminder", n.Message)
	}
}

func TestSiblingsShareCreationEpoch(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestScheduler(t)

	ids, _, err := s.Schedule(Request{OwnerID: 1, ChatID: 2, Kind: KindTruck, Duration: span.New(0, 2, 0), LeadTime: "15m"})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("registered %d jobs, want 2", len(ids))
	}
	a, _ := DecodeJobID(ids[0])
	b, _ := DecodeJobID(ids[1])
	if a.Epoch != b.Epoch {
		t.Fatalf("epochs differ: %d vs %d", a.Epoch, b.Epoch)
	}
	if a.Role == b.Role {
		t.Fatalf("roles must differ, both %q", a.Role)
	}
}

func TestSetNotifierAfterStart(t *testing.T) {
	t.Parallel()
	mock := clock.NewMock()
	mock.Set(time.Date(2025, 12, 3, 14, 0, 0, 0, time.UTC))
	s := New(Config{Location: time.UTC}, mock, nil, logx.Nop(), nil)
	s.Start(context.Background())
	t.Cleanup(func() { s.Stop(context.Background()) })

	if _, _, err := s.Schedule(Request{OwnerID: 1, ChatID: 2, Kind: KindTruck, Duration: span.New(0, 1, 0)}); err != nil {
		t.Fatalf("Schedule error: %v", err)
	}

	// Installing the delivery sink while the dispatcher is live must be
	// race-free, and the swapped-in notifier gets subsequent firings.
	notif := newCaptureNotifier()
	s.SetNotifier(notif)

	mock.Add(time.Hour)
	n := notif.wait(t)
	if n.ChatID != 2 || !strings.Contains(n.Message, "is ready!") {
		t.Fatalf("notification = %+v", n)
	}
}
