package dcctrl

import (
	"context"
	"testing"
	"time"

	"github.com/radiocore/datad/internal/agent"
	"github.com/radiocore/datad/internal/apn"
	"github.com/radiocore/datad/internal/dcsm"
	"github.com/radiocore/datad/internal/radio"
)

type noopConsumer struct{}

func (noopConsumer) SendNetworkCapabilities(agent.NetworkCapabilities) {}
func (noopConsumer) SendLinkProperties(radio.LinkProperties)           {}
func (noopConsumer) SendNetworkScore(int)                              {}
func (noopConsumer) SendNetworkInfo(agent.NetworkInfo)                 {}
func (noopConsumer) OnSocketKeepaliveEvent(int, agent.KeepaliveEvent)  {}
func (noopConsumer) Unregister()                                       {}

func newTestController() *Controller {
	agents := agent.NewRegistry(func(int) agent.Consumer { return noopConsumer{} })
	return New(1, agents, nil, nil)
}

type fakePersister struct {
	checkpoints map[int]dcsm.State
	forgotten   map[int]bool
}

func newFakePersister() *fakePersister {
	return &fakePersister{checkpoints: make(map[int]dcsm.State), forgotten: make(map[int]bool)}
}

func (p *fakePersister) Checkpoint(slot int, s *dcsm.Session) {
	p.checkpoints[s.ID()] = s.State()
	delete(p.forgotten, s.ID())
}

func (p *fakePersister) Forget(slot, sessionID int) {
	p.forgotten[sessionID] = true
	delete(p.checkpoints, sessionID)
}

func TestController_PersisterCheckpointsAndForgets(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newTestController()
	p := newFakePersister()
	c.SetPersister(p)

	fb := radio.NewFakeBinding()
	fb.QueueSetupResponse(radio.DataCallResponse{Status: radio.Success, Cid: 9, Ifname: "rmnet2", LinkStatus: radio.LinkActive})

	s := runSession(t, ctx, c, fb)
	a := apn.NewContext(apn.Default, apn.Profile{Apn: "internet"})
	s.Post(dcsm.Connect{Profile: a.Profile(), Context: a, Reason: radio.ReasonNormal})
	deliverAndWait(t, fb, s)

	if st, ok := p.checkpoints[s.ID()]; !ok || st != dcsm.Active {
		t.Fatalf("expected a checkpoint at Active, got %v (present=%v)", st, ok)
	}

	s.Post(dcsm.Disconnect{Reason: radio.ReasonNormal})
	time.Sleep(20 * time.Millisecond)
	drainEvents(fb, s)
	time.Sleep(20 * time.Millisecond)

	if s.State() != dcsm.Inactive {
		t.Fatalf("precondition: session should be Inactive, got %s", s.State())
	}
	if !p.forgotten[s.ID()] {
		t.Fatalf("expected session %d to be forgotten once Inactive", s.ID())
	}
	if _, ok := p.checkpoints[s.ID()]; ok {
		t.Fatalf("expected checkpoint to be cleared once Inactive")
	}
}

func runSession(t *testing.T, ctx context.Context, c *Controller, binding radio.DataServiceBinding) *dcsm.Session {
	t.Helper()
	retry := dcsm.NewRetryManager([]time.Duration{10 * time.Millisecond}, 0, 3)
	s := dcsm.NewSession(radio.TransportWWAN, binding, c, retry)
	c.AddSession(s)
	go s.Run(ctx)
	return s
}

func TestController_ColdSetupTracksActiveByCid(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newTestController()
	fb := radio.NewFakeBinding()
	fb.QueueSetupResponse(radio.DataCallResponse{Status: radio.Success, Cid: 7, Ifname: "rmnet0", LinkStatus: radio.LinkActive})

	s := runSession(t, ctx, c, fb)

	ctx2 := apn.NewContext(apn.Default, apn.Profile{Apn: "internet"})
	s.Post(dcsm.Connect{Profile: ctx2.Profile(), Context: ctx2, Reason: radio.ReasonNormal})

	deliverAndWait(t, fb, s)

	if s.State() != dcsm.Active {
		t.Fatalf("session state = %s, want Active", s.State())
	}
	if got := c.GetActiveByCid(7); got == nil || got.ID() != s.ID() {
		t.Fatalf("GetActiveByCid(7) = %v, want session %d", got, s.ID())
	}
}

func TestController_ListChanged_MissingCidRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newTestController()
	fb := radio.NewFakeBinding()
	fb.QueueSetupResponse(radio.DataCallResponse{Status: radio.Success, Cid: 8, Ifname: "rmnet1", LinkStatus: radio.LinkActive})
	fb.QueueSetupResponse(radio.DataCallResponse{Status: radio.Success, Cid: 8, Ifname: "rmnet1", LinkStatus: radio.LinkActive})

	s := runSession(t, ctx, c, fb)
	a := apn.NewContext(apn.Default, apn.Profile{Apn: "internet"})
	s.Post(dcsm.Connect{Profile: a.Profile(), Context: a, Reason: radio.ReasonNormal})
	deliverAndWait(t, fb, s)

	if s.State() != dcsm.Active {
		t.Fatalf("precondition: session should be Active, got %s", s.State())
	}

	c.OnListChanged(nil) // cid 8 is absent -> lost connection -> retry
	time.Sleep(20 * time.Millisecond)
	drainEvents(fb, s)

	if s.State() != dcsm.Retrying && s.State() != dcsm.Activating {
		t.Fatalf("expected session to retry after losing its cid, got %s", s.State())
	}
}

func TestController_HandoverFallbackLeavesSourceAttachedOnTargetFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newTestController()
	sourceBinding := radio.NewFakeBinding()
	sourceBinding.QueueSetupResponse(radio.DataCallResponse{Status: radio.Success, Cid: 20, Ifname: "rmnet0", LinkStatus: radio.LinkActive})
	source := runSession(t, ctx, c, sourceBinding)
	a := apn.NewContext(apn.Default, apn.Profile{Apn: "internet"})
	source.Post(dcsm.Connect{Profile: a.Profile(), Context: a, Reason: radio.ReasonNormal})
	deliverAndWait(t, sourceBinding, source)
	if source.State() != dcsm.Active {
		t.Fatalf("precondition: source should be Active, got %s", source.State())
	}

	targetBinding := radio.NewFakeBinding()
	targetBinding.QueueSetupResponse(radio.DataCallResponse{Status: radio.ErrorRadioNotAvailable, SuggestedRetryMs: radio.NeverRetry})
	target := runSession(t, ctx, c, targetBinding)

	c.StartHandover(source, target, a.Profile(), a, true)
	deliverAndWait(t, targetBinding, target)

	if target.State() != dcsm.Inactive {
		t.Fatalf("target state = %s, want Inactive after failed setup", target.State())
	}
	time.Sleep(20 * time.Millisecond)
	if source.State() != dcsm.Active {
		t.Fatalf("source state = %s, want still Active (fallback=true should leave it attached)", source.State())
	}
}

func TestController_HandoverWithoutFallbackDisconnectsSourceOnTargetFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newTestController()
	sourceBinding := radio.NewFakeBinding()
	sourceBinding.QueueSetupResponse(radio.DataCallResponse{Status: radio.Success, Cid: 21, Ifname: "rmnet1", LinkStatus: radio.LinkActive})
	source := runSession(t, ctx, c, sourceBinding)
	a := apn.NewContext(apn.Default, apn.Profile{Apn: "internet"})
	source.Post(dcsm.Connect{Profile: a.Profile(), Context: a, Reason: radio.ReasonNormal})
	deliverAndWait(t, sourceBinding, source)
	if source.State() != dcsm.Active {
		t.Fatalf("precondition: source should be Active, got %s", source.State())
	}

	targetBinding := radio.NewFakeBinding()
	targetBinding.QueueSetupResponse(radio.DataCallResponse{Status: radio.ErrorRadioNotAvailable, SuggestedRetryMs: radio.NeverRetry})
	target := runSession(t, ctx, c, targetBinding)

	c.StartHandover(source, target, a.Profile(), a, false)
	deliverAndWait(t, targetBinding, target)

	if target.State() != dcsm.Inactive {
		t.Fatalf("target state = %s, want Inactive after failed setup", target.State())
	}

	deliverAndWait(t, sourceBinding, source)
	if source.State() != dcsm.Inactive {
		t.Fatalf("source state = %s, want Inactive (fallback=false should tear the source down)", source.State())
	}
}

// deliverAndWait drains a single binding event into the session and
// waits briefly for the loop to process it.
func deliverAndWait(t *testing.T, fb *radio.FakeBinding, s *dcsm.Session) {
	t.Helper()
	select {
	case ev := <-fb.Events():
		deliver(s, ev)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for binding event")
	}
	time.Sleep(20 * time.Millisecond)
}

func drainEvents(fb *radio.FakeBinding, s *dcsm.Session) {
	for {
		select {
		case ev := <-fb.Events():
			deliver(s, ev)
		default:
			return
		}
	}
}

func deliver(s *dcsm.Session, ev radio.Event) {
	switch ev.Kind {
	case radio.EventDataCallResult:
		if s.State() == dcsm.Disconnecting {
			s.Post(dcsm.DeactivateComplete{Token: ev.Token, Response: ev.Response})
		} else {
			s.Post(dcsm.SetupComplete{Token: ev.Token, Response: ev.Response})
		}
	}
}
