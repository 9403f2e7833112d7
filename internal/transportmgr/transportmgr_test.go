package transportmgr

import (
	"testing"

	"github.com/radiocore/datad/internal/apn"
	"github.com/radiocore/datad/internal/radio"
)

type recordingRequester struct {
	calls []struct {
		apnType  apn.Type
		target   radio.Transport
		fallback bool
	}
}

func (r *recordingRequester) RequestHandover(apnType apn.Type, target radio.Transport, fallback bool) {
	r.calls = append(r.calls, struct {
		apnType  apn.Type
		target   radio.Transport
		fallback bool
	}{apnType, target, fallback})
}

func TestDecideHandover_BootInAirplaneEdgeCase(t *testing.T) {
	needed, target := decideHandover(nil, 0, false, []radio.AccessNetwork{radio.AccessNetworkIWLAN})
	if !needed || target != radio.TransportWLAN {
		t.Fatalf("expected handover to WLAN on empty->WLAN head, got needed=%v target=%v", needed, target)
	}
}

func TestDecideHandover_EitherListEmptyMeansNoHandover(t *testing.T) {
	needed, _ := decideHandover([]radio.AccessNetwork{radio.AccessNetworkEUTRAN}, radio.TransportWWAN, true, nil)
	if needed {
		t.Fatal("expected no handover when new list is empty")
	}
	needed, _ = decideHandover(nil, radio.TransportWWAN, true, nil)
	if needed {
		t.Fatal("expected no handover when both lists are empty")
	}
}

func TestDecideHandover_SameTargetAsCurrentIsNoOp(t *testing.T) {
	needed, _ := decideHandover(
		[]radio.AccessNetwork{radio.AccessNetworkEUTRAN},
		radio.TransportWWAN,
		true,
		[]radio.AccessNetwork{radio.AccessNetworkEUTRAN},
	)
	if needed {
		t.Fatal("expected no handover when head transport matches current")
	}
}

func TestDecideHandover_DifferentHeadTransportNeedsHandover(t *testing.T) {
	needed, target := decideHandover(
		[]radio.AccessNetwork{radio.AccessNetworkEUTRAN},
		radio.TransportWWAN,
		true,
		[]radio.AccessNetwork{radio.AccessNetworkIWLAN},
	)
	if !needed || target != radio.TransportWLAN {
		t.Fatalf("expected handover to WLAN, got needed=%v target=%v", needed, target)
	}
}

func TestManager_AppliesAndTracksPending(t *testing.T) {
	req := &recordingRequester{}
	m := New(1, ModeDefault, req)

	m.OnQualifiedNetworksChanged(QualifiedNetworks{
		ApnType:                apn.Default,
		OrderedPreferredAccess: []radio.AccessNetwork{radio.AccessNetworkIWLAN},
	})

	if len(req.calls) != 1 {
		t.Fatalf("expected one handover request, got %d", len(req.calls))
	}
	if req.calls[0].target != radio.TransportWLAN {
		t.Fatalf("expected WLAN target, got %v", req.calls[0].target)
	}
	if !req.calls[0].fallback {
		t.Fatal("expected offload onto WLAN to be fallback-eligible")
	}

	// A second verdict arrives while the handover is still pending: it
	// must be queued, not applied immediately.
	m.OnQualifiedNetworksChanged(QualifiedNetworks{
		ApnType:                apn.Default,
		OrderedPreferredAccess: []radio.AccessNetwork{radio.AccessNetworkEUTRAN},
	})
	if len(req.calls) != 1 {
		t.Fatalf("expected queued verdict to not trigger another handover yet, got %d calls", len(req.calls))
	}

	m.CompleteHandover(apn.Default, radio.TransportWLAN)
	if got := m.GetCurrentTransport(apn.Default); got != radio.TransportWLAN {
		t.Fatalf("current transport = %v, want WLAN", got)
	}

	// Completing drains the queue, which should now request a handover
	// back to WWAN since the queued verdict's head is EUTRAN.
	if len(req.calls) != 2 {
		t.Fatalf("expected queued verdict to drain after completion, got %d calls", len(req.calls))
	}
	if req.calls[1].target != radio.TransportWWAN {
		t.Fatalf("expected drained handover to WWAN, got %v", req.calls[1].target)
	}
	if req.calls[1].fallback {
		t.Fatal("expected recovering WWAN to not be fallback-eligible")
	}
}

func TestManager_LegacyMode(t *testing.T) {
	m := New(1, ModeLegacy, nil)
	if got := m.GetAvailableTransports(); len(got) != 1 || got[0] != radio.TransportWWAN {
		t.Fatalf("legacy mode should only expose WWAN, got %v", got)
	}
	if got := m.GetCurrentTransport(apn.Default); got != radio.TransportWWAN {
		t.Fatalf("legacy mode current transport = %v, want WWAN", got)
	}
	if m.IsAnyApnPreferredOnIWLAN() {
		t.Fatal("legacy mode should never prefer IWLAN")
	}
	m.OnQualifiedNetworksChanged(QualifiedNetworks{ApnType: apn.Default, OrderedPreferredAccess: []radio.AccessNetwork{radio.AccessNetworkIWLAN}})
	if m.IsAnyApnPreferredOnIWLAN() {
		t.Fatal("legacy mode must ignore oracle verdicts")
	}
}

func TestFakeOracle_DeliversToManager(t *testing.T) {
	req := &recordingRequester{}
	m := New(1, ModeDefault, req)
	o := NewFakeOracle()
	if err := o.Subscribe(nil, m.OnQualifiedNetworksChanged); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	o.Push(QualifiedNetworks{ApnType: apn.Default, OrderedPreferredAccess: []radio.AccessNetwork{radio.AccessNetworkIWLAN}})
	if len(req.calls) != 1 {
		t.Fatalf("expected one handover request via fake oracle, got %d", len(req.calls))
	}
}
