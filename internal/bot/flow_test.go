package bot

import (
	"testing"
	"time"

	"lwbot/internal/reminder"
	"lwbot/internal/span"
)

func TestFlowTruckPath(t *testing.T) {
	t.Parallel()
	fl := &flow{}

	if got := fl.selectKind(reminder.KindTruck); got != durationPrompt {
		t.Fatalf("selectKind prompt = %q", got)
	}
	if fl.step != stepDuration {
		t.Fatalf("step = %v", fl.step)
	}

	if prompt, ok := fl.inputDuration("not a duration"); ok || prompt != durationInvalid {
		t.Fatalf("bad duration accepted: %q %v", prompt, ok)
	}
	if fl.step != stepDuration {
		t.Fatal("bad input must not advance the flow")
	}

	if prompt, ok := fl.inputDuration("2h 30m"); !ok || prompt != leadPrompt {
		t.Fatalf("inputDuration = %q %v", prompt, ok)
	}
	if fl.duration != span.New(0, 2, 30) {
		t.Fatalf("duration = %v", fl.duration)
	}

	if prompt, ok := fl.inputLead("junk lead"); ok || prompt != leadInvalid {
		t.Fatalf("bad lead accepted: %q %v", prompt, ok)
	}
	if _, ok := fl.inputLead("10m"); !ok {
		t.Fatal("valid lead rejected")
	}

	req := fl.request(7, 42)
	want := reminder.Request{OwnerID: 7, ChatID: 42, Kind: reminder.KindTruck, Duration: span.New(0, 2, 30), LeadTime: "10m"}
	if req != want {
		t.Fatalf("request = %+v, want %+v", req, want)
	}
}

func TestFlowCustomNeedsName(t *testing.T) {
	t.Parallel()
	fl := &flow{}

	if got := fl.selectKind(reminder.KindCustom); got != namePrompt {
		t.Fatalf("selectKind prompt = %q", got)
	}
	if prompt, ok := fl.inputName("   "); ok || prompt != namePrompt {
		t.Fatalf("blank name accepted: %q %v", prompt, ok)
	}
	if prompt, ok := fl.inputName("  Dig site "); !ok || prompt != durationPrompt {
		t.Fatalf("inputName = %q %v", prompt, ok)
	}
	if fl.taskName != "Dig site" {
		t.Fatalf("taskName = %q", fl.taskName)
	}
}

func TestFlowMinistryUsesServerTime(t *testing.T) {
	t.Parallel()
	fl := &flow{}

	if got := fl.selectKind(reminder.KindMinistry); got != ministryPrompt {
		t.Fatalf("selectKind prompt = %q", got)
	}

	now := time.Date(2025, 12, 3, 14, 0, 0, 0, time.UTC)
	if prompt, ok := fl.inputServerTime("25:70", now); ok || prompt != serverTimeInvalid {
		t.Fatalf("bad time accepted: %q %v", prompt, ok)
	}
	if _, ok := fl.inputServerTime("16:30", now); !ok {
		t.Fatal("valid time rejected")
	}
	if fl.duration != span.New(0, 2, 30) {
		t.Fatalf("duration = %v", fl.duration)
	}
	if fl.step != stepLead {
		t.Fatalf("step = %v", fl.step)
	}
}

func TestFlowSkipLead(t *testing.T) {
	t.Parallel()
	fl := &flow{step: stepLead, kind: reminder.KindBuild, duration: span.New(0, 1, 0)}
	if _, ok := fl.inputLead(""); !ok {
		t.Fatal("skip rejected")
	}
	if fl.lead != "" {
		t.Fatalf("lead = %q", fl.lead)
	}
}

func TestFlowStoreExpiry(t *testing.T) {
	t.Parallel()
	st := newFlowStore()

	st.put(1, 2, &flow{step: stepDuration})
	if _, ok := st.get(1, 2); !ok {
		t.Fatal("fresh flow missing")
	}
	if _, ok := st.get(1, 3); ok {
		t.Fatal("wrong user matched")
	}

	stale := &flow{step: stepDuration}
	st.put(5, 6, stale)
	stale.touched = time.Now().Add(-flowTTL - time.Minute)
	if _, ok := st.get(5, 6); ok {
		t.Fatal("stale flow not expired")
	}

	st.put(1, 2, &flow{})
	st.clear(1, 2)
	if _, ok := st.get(1, 2); ok {
		t.Fatal("cleared flow still present")
	}
}
