package dcsm

import (
	"testing"
	"time"

	"github.com/radiocore/datad/internal/apn"
	"github.com/radiocore/datad/internal/radio"
)

type fakeDelegate struct {
	nextHandle  int
	registered  map[int]bool
	transitions []transition
	ownershipTo map[int]int
}

type transition struct {
	sessionID int
	from, to  State
}

func newFakeDelegate() *fakeDelegate {
	return &fakeDelegate{registered: make(map[int]bool), ownershipTo: make(map[int]int)}
}

func (d *fakeDelegate) RegisterAgent(sessionID int, caps radio.LinkProperties) int {
	d.nextHandle++
	d.registered[d.nextHandle] = true
	return d.nextHandle
}

func (d *fakeDelegate) UnregisterAgent(handle int) {
	delete(d.registered, handle)
}

func (d *fakeDelegate) PublishLinkProps(handle int, props radio.LinkProperties) {}

func (d *fakeDelegate) AcquireOwnership(handle int, targetSessionID int) int {
	d.ownershipTo[handle] = targetSessionID
	return handle
}

func (d *fakeDelegate) StateChanged(sessionID int, from, to State) {
	d.transitions = append(d.transitions, transition{sessionID, from, to})
}

func newTestSession(t *testing.T, binding radio.DataServiceBinding, delegate Delegate) *Session {
	t.Helper()
	retry := NewRetryManager([]time.Duration{10 * time.Millisecond}, 0, 3)
	return NewSession(radio.TransportWWAN, binding, delegate, retry)
}

func TestSession_ActivatingToActiveOnSetupSuccess(t *testing.T) {
	fb := radio.NewFakeBinding()
	d := newFakeDelegate()
	s := newTestSession(t, fb, d)

	ctx := apn.NewContext(apn.Default, apn.Profile{Apn: "internet"})
	s.step(Connect{Profile: ctx.Profile(), Context: ctx, Reason: radio.ReasonNormal})
	if s.State() != Activating {
		t.Fatalf("state after Connect = %s, want Activating", s.State())
	}

	s.step(SetupComplete{Token: s.pendingToken, Response: radio.DataCallResponse{
		Status: radio.Success, Cid: 5, Ifname: "rmnet0", LinkStatus: radio.LinkActive,
	}})
	if s.State() != Active {
		t.Fatalf("state after SetupComplete = %s, want Active", s.State())
	}
	if s.Cid() != 5 {
		t.Fatalf("Cid() = %d, want 5", s.Cid())
	}
	if d.nextHandle == 0 {
		t.Fatal("expected RegisterAgent to be called on entering Active")
	}
	if len(d.transitions) != 2 {
		t.Fatalf("expected 2 transitions (Inactive->Activating, Activating->Active), got %d", len(d.transitions))
	}
}

func TestSession_RetriesOnSetupFailureWithNoSuggestedRetry(t *testing.T) {
	fb := radio.NewFakeBinding()
	d := newFakeDelegate()
	s := newTestSession(t, fb, d)

	ctx := apn.NewContext(apn.Default, apn.Profile{Apn: "internet"})
	s.step(Connect{Profile: ctx.Profile(), Context: ctx, Reason: radio.ReasonNormal})
	s.step(SetupComplete{Token: s.pendingToken, Response: radio.DataCallResponse{
		Status: radio.ErrorRadioNotAvailable, SuggestedRetryMs: radio.NoSuggestedRetry,
	}})

	if s.State() != Retrying {
		t.Fatalf("state after failed setup = %s, want Retrying", s.State())
	}
	if s.retry.Attempt() != 1 {
		t.Fatalf("retry.Attempt() = %d, want 1", s.retry.Attempt())
	}
}

func TestSession_SetupFailureNeverRetryGoesInactive(t *testing.T) {
	fb := radio.NewFakeBinding()
	d := newFakeDelegate()
	s := newTestSession(t, fb, d)

	ctx := apn.NewContext(apn.Default, apn.Profile{Apn: "internet"})
	s.step(Connect{Profile: ctx.Profile(), Context: ctx, Reason: radio.ReasonNormal})
	s.step(SetupComplete{Token: s.pendingToken, Response: radio.DataCallResponse{
		Status: radio.ErrorInvalidArg, SuggestedRetryMs: radio.NeverRetry,
	}})

	if s.State() != Inactive {
		t.Fatalf("state after NeverRetry failure = %s, want Inactive", s.State())
	}
}

func TestSession_StaleAlarmGenerationDropped(t *testing.T) {
	fb := radio.NewFakeBinding()
	d := newFakeDelegate()
	s := newTestSession(t, fb, d)

	s.state = Retrying
	s.alarmGen = 5
	staleGen := s.alarmGen - 2

	s.step(AlarmFired{Generation: staleGen})

	if s.State() != Retrying {
		t.Fatalf("state after stale AlarmFired = %s, want unchanged Retrying", s.State())
	}
}

func TestSession_AlarmFiredWithCurrentGenerationRetries(t *testing.T) {
	fb := radio.NewFakeBinding()
	fb.QueueSetupResponse(radio.DataCallResponse{Status: radio.Success, Cid: 1, Ifname: "rmnet0", LinkStatus: radio.LinkActive})
	d := newFakeDelegate()
	s := newTestSession(t, fb, d)

	s.state = Retrying
	s.alarmGen = 3

	s.step(AlarmFired{Generation: 3})

	if s.State() != Activating {
		t.Fatalf("state after current-generation AlarmFired = %s, want Activating", s.State())
	}
}

func TestSession_HandoverToEntersDisconnectingWithFallback(t *testing.T) {
	fb := radio.NewFakeBinding()
	d := newFakeDelegate()
	s := newTestSession(t, fb, d)

	s.state = Active
	s.cid = 11

	s.step(HandoverTo{Target: radio.TransportWLAN, Fallback: true})

	if s.State() != Disconnecting {
		t.Fatalf("state after HandoverTo = %s, want Disconnecting", s.State())
	}
	if !s.handoverFallback {
		t.Fatal("expected handoverFallback to be set from the HandoverTo event")
	}
	if s.disconnectReason != radio.ReasonHandover {
		t.Fatalf("disconnectReason = %v, want ReasonHandover", s.disconnectReason)
	}
}

func TestSession_DisconnectCompletesAndUnregistersAgent(t *testing.T) {
	fb := radio.NewFakeBinding()
	d := newFakeDelegate()
	s := newTestSession(t, fb, d)

	ctx := apn.NewContext(apn.Default, apn.Profile{Apn: "internet"})
	s.step(Connect{Profile: ctx.Profile(), Context: ctx, Reason: radio.ReasonNormal})
	s.step(SetupComplete{Token: s.pendingToken, Response: radio.DataCallResponse{
		Status: radio.Success, Cid: 2, Ifname: "rmnet0", LinkStatus: radio.LinkActive,
	}})
	handle := s.agentHandle
	if handle == 0 {
		t.Fatal("expected an agent handle after entering Active")
	}

	s.step(Disconnect{Reason: radio.ReasonNormal})
	if s.State() != Disconnecting {
		t.Fatalf("state after Disconnect = %s, want Disconnecting", s.State())
	}

	s.step(DeactivateComplete{Token: s.pendingToken, Response: radio.DataCallResponse{Status: radio.Success}})
	if s.State() != Inactive {
		t.Fatalf("state after DeactivateComplete = %s, want Inactive", s.State())
	}
	if d.registered[handle] {
		t.Fatal("expected agent to be unregistered on finishing disconnect")
	}
}
