package radio

import (
	"context"
	"errors"
	"testing"
)

func TestFakeBinding_SetupDataCall_DeliversQueuedResponse(t *testing.T) {
	fb := NewFakeBinding()
	fb.QueueSetupResponse(DataCallResponse{Status: Success, Ifname: "rmnet0"})

	tok, err := fb.SetupDataCall(context.Background(), SetupRequest{ApnName: "internet"})
	if err != nil {
		t.Fatalf("SetupDataCall: %v", err)
	}

	ev := <-fb.Events()
	if ev.Kind != EventDataCallResult || ev.Token != tok {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Response.Status != Success || ev.Response.Ifname != "rmnet0" {
		t.Fatalf("unexpected response: %+v", ev.Response)
	}
}

func TestFakeBinding_SetupDataCall_DisconnectedReturnsIllegalState(t *testing.T) {
	fb := NewFakeBinding()
	fb.SimulateBindingLost()

	_, err := fb.SetupDataCall(context.Background(), SetupRequest{})
	if !errors.Is(err, ErrBindingDisconnected) {
		t.Fatalf("expected ErrBindingDisconnected, got %v", err)
	}
}

func TestFakeBinding_SetupFunc_Overrides(t *testing.T) {
	fb := NewFakeBinding()
	fb.SetupFunc = func(req SetupRequest) DataCallResponse {
		if req.ApnName == "ims" {
			return DataCallResponse{Status: ErrorUnsupported, SuggestedRetryMs: NeverRetry}
		}
		return DataCallResponse{Status: Success, Ifname: "rmnet1"}
	}

	if _, err := fb.SetupDataCall(context.Background(), SetupRequest{ApnName: "ims"}); err != nil {
		t.Fatal(err)
	}
	ev := <-fb.Events()
	if ev.Response.Status != ErrorUnsupported {
		t.Fatalf("expected ErrorUnsupported, got %v", ev.Response.Status)
	}
}

func TestFakeBinding_SimulateListChanged(t *testing.T) {
	fb := NewFakeBinding()
	fb.SimulateListChanged([]DataCallResponse{{Status: Success, Cid: 7, Ifname: "rmnet0"}})

	ev := <-fb.Events()
	if ev.Kind != EventListChanged || len(ev.List) != 1 || ev.List[0].Cid != 7 {
		t.Fatalf("unexpected list-changed event: %+v", ev)
	}
}

func TestFakeBinding_SetDataAllowed_DeliversResult(t *testing.T) {
	fb := NewFakeBinding()
	tok, err := fb.SetDataAllowed(context.Background(), true)
	if err != nil {
		t.Fatalf("SetDataAllowed: %v", err)
	}
	ev := <-fb.Events()
	if ev.Kind != EventDataAllowedResult || ev.Token != tok || !ev.Allowed || ev.Status != Success {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestFakeBinding_CallsRecorded(t *testing.T) {
	fb := NewFakeBinding()
	fb.QueueSetupResponse(DataCallResponse{Status: Success, Ifname: "rmnet0"})
	if _, err := fb.SetupDataCall(context.Background(), SetupRequest{ApnName: "internet"}); err != nil {
		t.Fatal(err)
	}
	<-fb.Events()

	calls := fb.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 recorded call, got %d", len(calls))
	}
	req, ok := calls[0].(SetupRequest)
	if !ok || req.ApnName != "internet" {
		t.Fatalf("unexpected recorded call: %+v", calls[0])
	}
}
