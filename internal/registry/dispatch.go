package registry

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/radiocore/datad/internal/radio"
	"github.com/radiocore/datad/pkg/util"
)

// Modem is the narrow slice of the Data Service Binding contract the
// Dispatch State Machine needs: toggling the slot's attach gate.
type Modem interface {
	SetDataAllowed(ctx context.Context, allowed bool) (radio.Token, error)
}

// Hook lets the Dispatch State Machine notify the registry of state
// entries that require registry-side action, without the state
// machine depending on Registry's full surface.
type Hook interface {
	// OnIdle is called on entering Idle: drain any pending requests by
	// re-running the top-priority selection.
	OnIdle(slot int)
	// OnAttached is called on entering Attached: execute all queued
	// (non-executed) requests for this slot.
	OnAttached(slot int)
}

// DispatchSM is the per-slot attach/detach state machine, with an
// orthogonal Emergency state that defers and later restores whatever
// state was active when the emergency began.
type DispatchSM struct {
	slot  int
	modem Modem
	hook  Hook
	log   *logrus.Entry

	inbox chan Event

	mu                 sync.RWMutex
	state              DispatchState
	seq                uint64
	pendingSeq         uint64
	pendingToken       radio.Token
	deferredDisconnect bool
	preEmergencyState  DispatchState
}

// NewDispatchSM creates a Dispatch State Machine for slot, starting Idle.
func NewDispatchSM(slot int, modem Modem, hook Hook) *DispatchSM {
	return &DispatchSM{
		slot:  slot,
		modem: modem,
		hook:  hook,
		log:   util.WithComponent("dispatch").WithField("slot", slot),
		inbox: make(chan Event, 32),
		state: Idle,
	}
}

// State returns the current state. Safe to call from any goroutine;
// used by Registry.ProcessRequests, which runs on the registry's own
// caller goroutine rather than the dispatch loop.
func (d *DispatchSM) State() DispatchState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Post enqueues an event. Non-blocking from the caller's perspective
// up to the inbox's buffer.
func (d *DispatchSM) Post(ev Event) {
	select {
	case d.inbox <- ev:
	default:
		d.log.Warn("dispatch inbox full, dropping event")
	}
}

// Run drains the inbox until ctx is cancelled.
func (d *DispatchSM) Run(ctx context.Context) {
	for {
		select {
		case ev := <-d.inbox:
			d.step(ctx, ev)
		case <-ctx.Done():
			return
		}
	}
}

func (d *DispatchSM) setState(s DispatchState) {
	d.mu.Lock()
	from := d.state
	d.state = s
	d.mu.Unlock()
	if from != s {
		d.log.WithFields(logrus.Fields{"from": from.String(), "to": s.String()}).Info("dispatch state change")
	}
}

func (d *DispatchSM) step(ctx context.Context, ev Event) {
	d.mu.RLock()
	emergency := d.state == Emergency
	d.mu.RUnlock()

	if emergency {
		d.stepEmergency(ev)
		return
	}

	if _, ok := ev.(EmergencyStart); ok {
		d.mu.Lock()
		d.preEmergencyState = d.state
		d.state = Emergency
		d.mu.Unlock()
		return
	}

	d.mu.RLock()
	state := d.state
	d.mu.RUnlock()

	switch state {
	case Idle:
		d.stepIdle(ctx, ev)
	case Attaching:
		d.stepAttaching(ctx, ev)
	case Attached:
		d.stepAttached(ctx, ev)
	case Detaching:
		d.stepDetaching(ctx, ev)
	}
}

func (d *DispatchSM) stepEmergency(ev Event) {
	switch ev.(type) {
	case EmergencyEnded:
		d.mu.Lock()
		restore := d.preEmergencyState
		d.state = restore
		d.mu.Unlock()
		if restore == Idle && d.hook != nil {
			d.hook.OnIdle(d.slot)
		}
	default:
		// any data operation while in Emergency is deferred; the
		// triggering event is simply dropped, matching the "defer"
		// edge — callers are expected to re-drive via ProcessRequests
		// once EmergencyEnded fires.
	}
}

func (d *DispatchSM) stepIdle(ctx context.Context, ev Event) {
	switch ev.(type) {
	case Connect:
		d.enterAttaching(ctx)
	}
}

func (d *DispatchSM) enterAttaching(ctx context.Context) {
	d.setState(Attaching)
	d.mu.Lock()
	d.seq++
	seq := d.seq
	d.mu.Unlock()
	tok, err := d.modem.SetDataAllowed(ctx, true)
	if err != nil {
		d.log.WithError(err).Warn("set_data_allowed(true) failed synchronously")
		d.setState(Idle)
		if d.hook != nil {
			d.hook.OnIdle(d.slot)
		}
		return
	}
	d.mu.Lock()
	d.pendingSeq = seq
	d.pendingToken = tok
	d.mu.Unlock()
}

func (d *DispatchSM) stepAttaching(ctx context.Context, ev Event) {
	switch e := ev.(type) {
	case Allowed:
		if e.Seq != d.pendingSeq {
			return // stale response, the intent it acked has been superseded
		}
		if !e.OK {
			d.setState(Idle)
			if d.hook != nil {
				d.hook.OnIdle(d.slot)
			}
		}
		// ok==true: stay in Attaching, await DataAttached
	case DataAttached:
		d.setState(Attached)
		if d.hook != nil {
			d.hook.OnAttached(d.slot)
		}
		d.mu.Lock()
		deferred := d.deferredDisconnect
		d.deferredDisconnect = false
		d.mu.Unlock()
		if deferred {
			d.enterDetaching(ctx)
		}
	case DisconnectAll:
		d.mu.Lock()
		d.deferredDisconnect = true
		d.mu.Unlock()
	}
}

func (d *DispatchSM) stepAttached(ctx context.Context, ev Event) {
	switch ev.(type) {
	case Connect:
		if d.hook != nil {
			d.hook.OnAttached(d.slot)
		}
	case DisconnectAll:
		d.enterDetaching(ctx)
	case DataDetached:
		d.enterAttaching(ctx)
	}
}

func (d *DispatchSM) enterDetaching(ctx context.Context) {
	d.setState(Detaching)
	d.mu.Lock()
	d.seq++
	seq := d.seq
	d.mu.Unlock()
	tok, err := d.modem.SetDataAllowed(ctx, false)
	if err != nil {
		d.log.WithError(err).Warn("set_data_allowed(false) failed synchronously")
		d.setState(Idle)
		if d.hook != nil {
			d.hook.OnIdle(d.slot)
		}
		return
	}
	d.mu.Lock()
	d.pendingSeq = seq
	d.pendingToken = tok
	d.mu.Unlock()
}

func (d *DispatchSM) stepDetaching(ctx context.Context, ev Event) {
	switch e := ev.(type) {
	case Allowed:
		if e.Seq != d.pendingSeq {
			return
		}
		if !e.OK {
			d.setState(Attached)
			if d.hook != nil {
				d.hook.OnAttached(d.slot)
			}
		}
	case DataDetached:
		d.setState(Idle)
		if d.hook != nil {
			d.hook.OnIdle(d.slot)
		}
	}
}

// OnAllowedResult correlates a radio EventDataAllowedResult by token:
// if tok matches the call currently in flight, it posts the Allowed
// message carrying that call's sequence number. A token that doesn't
// match the in-flight call is a stale response and is dropped here,
// before it ever reaches the state machine's own sequence check.
func (d *DispatchSM) OnAllowedResult(tok radio.Token, ok bool) {
	d.mu.RLock()
	pendingTok, seq := d.pendingToken, d.pendingSeq
	d.mu.RUnlock()
	if tok != pendingTok {
		return
	}
	d.Post(Allowed{OK: ok, Seq: seq})
}
