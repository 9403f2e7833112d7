package radio

import (
	"context"
	"sync"
)

// FakeBinding is an in-memory DataServiceBinding double for tests. It
// never touches D-Bus; calls are satisfied by queued responses, and
// list/binding events are injected directly by the test.
type FakeBinding struct {
	mu        sync.Mutex
	events    chan Event
	connected bool
	nextToken Token

	// SetupFunc, when set, computes the response for SetupDataCall
	// instead of draining setupQueue. Tests that need behavior keyed
	// off the request (e.g. reject a second session on the same
	// ifname) should set this.
	SetupFunc func(req SetupRequest) DataCallResponse

	setupQueue      []DataCallResponse
	deactivateQueue []DataCallResponse
	calls           []any
}

// NewFakeBinding returns a connected FakeBinding with a buffered event channel.
func NewFakeBinding() *FakeBinding {
	return &FakeBinding{
		events:    make(chan Event, 64),
		connected: true,
	}
}

// QueueSetupResponse appends a canned response for the next SetupDataCall.
func (f *FakeBinding) QueueSetupResponse(r DataCallResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setupQueue = append(f.setupQueue, r)
}

// QueueDeactivateResponse appends a canned response for the next DeactivateDataCall.
func (f *FakeBinding) QueueDeactivateResponse(r DataCallResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivateQueue = append(f.deactivateQueue, r)
}

// Calls returns the recorded call history (SetupRequest / DeactivateRequest values).
func (f *FakeBinding) Calls() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.calls...)
}

func (f *FakeBinding) nextTok() Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextToken++
	return f.nextToken
}

func (f *FakeBinding) SetupDataCall(_ context.Context, req SetupRequest) (Token, error) {
	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return 0, ErrBindingDisconnected
	}
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	tok := f.nextTok()

	var resp DataCallResponse
	if f.SetupFunc != nil {
		resp = f.SetupFunc(req)
	} else {
		f.mu.Lock()
		if len(f.setupQueue) > 0 {
			resp = f.setupQueue[0]
			f.setupQueue = f.setupQueue[1:]
		} else {
			resp = DataCallResponse{Status: ErrorRadioNotAvailable, SuggestedRetryMs: NeverRetry}
		}
		f.mu.Unlock()
	}
	if resp.Cid == 0 {
		resp.Cid = tok2cid(tok)
	}

	f.events <- Event{Kind: EventDataCallResult, Token: tok, Response: resp}
	return tok, nil
}

func (f *FakeBinding) DeactivateDataCall(_ context.Context, req DeactivateRequest) (Token, error) {
	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return 0, ErrBindingDisconnected
	}
	f.calls = append(f.calls, req)
	var resp DataCallResponse
	if len(f.deactivateQueue) > 0 {
		resp = f.deactivateQueue[0]
		f.deactivateQueue = f.deactivateQueue[1:]
	} else {
		resp = DataCallResponse{Status: Success}
	}
	f.mu.Unlock()

	tok := f.nextTok()
	f.events <- Event{Kind: EventDataCallResult, Token: tok, Response: resp}
	return tok, nil
}

func (f *FakeBinding) SetInitialAttachApn(_ context.Context, _, _ string) (Token, error) {
	return f.nextTok(), nil
}

func (f *FakeBinding) SetDataProfile(_ context.Context, _ []DataProfile) (Token, error) {
	return f.nextTok(), nil
}

func (f *FakeBinding) SetDataAllowed(_ context.Context, allowed bool) (Token, error) {
	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return 0, ErrBindingDisconnected
	}
	f.calls = append(f.calls, allowed)
	f.mu.Unlock()

	tok := f.nextTok()
	f.events <- Event{Kind: EventDataAllowedResult, Token: tok, Allowed: allowed, Status: Success}
	return tok, nil
}

func (f *FakeBinding) GetDataCallList(_ context.Context) (Token, error) {
	tok := f.nextTok()
	f.events <- Event{Kind: EventDataCallResult, Token: tok, Response: DataCallResponse{Status: Success}}
	return tok, nil
}

func (f *FakeBinding) Events() <-chan Event {
	return f.events
}

func (f *FakeBinding) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// SimulateListChanged injects an unsolicited data_call_list_changed event.
func (f *FakeBinding) SimulateListChanged(list []DataCallResponse) {
	f.events <- Event{Kind: EventListChanged, List: list}
}

// SimulateBindingLost injects a binding_changed(false) edge, as happens
// when the remote package terminates or loses its D-Bus name.
func (f *FakeBinding) SimulateBindingLost() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	f.events <- Event{Kind: EventBindingChanged, Bound: false}
}

// SimulateBindingRestored flips the binding back to connected.
func (f *FakeBinding) SimulateBindingRestored() {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	f.events <- Event{Kind: EventBindingChanged, Bound: true}
}

func (f *FakeBinding) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connected {
		f.connected = false
		close(f.events)
	}
	return nil
}

func tok2cid(t Token) int {
	return int(t%1000) + 1
}
