// Package dcctrl implements the Data Connection Controller: the
// per-slot Session registry, the data_call_list_changed demultiplexer,
// and the handover orchestrator that drives the multi-step protocol
// described alongside the Data Connection State Machine.
package dcctrl

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/radiocore/datad/internal/agent"
	"github.com/radiocore/datad/internal/apn"
	"github.com/radiocore/datad/internal/dcsm"
	"github.com/radiocore/datad/internal/metrics"
	"github.com/radiocore/datad/internal/radio"
	"github.com/radiocore/datad/pkg/util"
)

// ActivityLevel is the aggregated link-activity report published to
// the data tracker, computed across every session owned by this
// controller.
type ActivityLevel int

const (
	ActivityNone ActivityLevel = iota
	ActivityDormant
)

func (a ActivityLevel) String() string {
	if a == ActivityDormant {
		return "dormant"
	}
	return "none"
}

// ActivityTracker receives aggregated link-activity reports.
type ActivityTracker interface {
	OnActivityChanged(slot int, level ActivityLevel)
}

// RadioRestarter is asked to restart the radio when list reconciliation
// classifies a lost cid as a radio-restart failure.
type RadioRestarter interface {
	RestartRadio(slot int)
}

// Notifier receives a read-only feed of state transitions and handover
// outcomes, for inspection surfaces. Optional; nil is a no-op.
type Notifier interface {
	OnTransition(slot, sessionID int, transport radio.Transport, from, to dcsm.State)
	OnHandoverOutcome(slot, sourceID, targetID int, succeeded bool)
}

// Persister checkpoints session state on every transition so the
// engine can reload its view of in-progress sessions after a restart
// without re-querying the modem. Optional; nil is a no-op.
type Persister interface {
	Checkpoint(slot int, s *dcsm.Session)
	Forget(slot, sessionID int)
}

// Controller is the per-slot DC-Ctrl: a Session arena (the stable
// integer ids Sessions only ever address each other by) plus the
// list-changed reconciliation and handover orchestration logic.
type Controller struct {
	slot int
	log  *logrus.Entry

	agents    *agent.Registry
	tracker   ActivityTracker
	restarter RadioRestarter

	mu          sync.RWMutex
	sessions    map[int]*dcsm.Session // id -> session, the arena
	activeByCid map[int]*dcsm.Session // cross-thread read, mutex-protected per §5

	pendingHandovers map[int]*pendingHandover // target session id -> bookkeeping

	metrics   *metrics.Counters
	notifier  Notifier
	persister Persister
}

// SetMetrics wires an outcome-counter sink. Optional; nil is a no-op.
func (c *Controller) SetMetrics(m *metrics.Counters) { c.metrics = m }

// SetNotifier wires a transition/handover observer. Optional; nil is a no-op.
func (c *Controller) SetNotifier(n Notifier) { c.notifier = n }

// SetPersister wires a session-state checkpoint sink. Optional; nil is a no-op.
func (c *Controller) SetPersister(p Persister) { c.persister = p }

type pendingHandover struct {
	sourceID int
	fallback bool
}

// New creates a Controller for the given slot.
func New(slot int, agents *agent.Registry, tracker ActivityTracker, restarter RadioRestarter) *Controller {
	return &Controller{
		slot:             slot,
		log:              util.WithComponent("dcctrl").WithField("slot", slot),
		agents:           agents,
		tracker:          tracker,
		restarter:        restarter,
		sessions:         make(map[int]*dcsm.Session),
		activeByCid:      make(map[int]*dcsm.Session),
		pendingHandovers: make(map[int]*pendingHandover),
	}
}

// AddSession registers s with the controller.
func (c *Controller) AddSession(s *dcsm.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[s.ID()] = s
}

// RemoveSession unregisters s.
func (c *Controller) RemoveSession(s *dcsm.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, s.ID())
	if cid := s.Cid(); cid != 0 {
		if cur, ok := c.activeByCid[cid]; ok && cur.ID() == s.ID() {
			delete(c.activeByCid, cid)
		}
	}
}

// GetActiveByCid returns the session currently holding cid, or nil.
// Safe for cross-thread reads per §5's shared-resource model.
func (c *Controller) GetActiveByCid(cid int) *dcsm.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeByCid[cid]
}

func (c *Controller) session(id int) *dcsm.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessions[id]
}

// Sessions returns a snapshot of every session this controller owns,
// for inspection surfaces.
func (c *Controller) Sessions() []*dcsm.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*dcsm.Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s)
	}
	return out
}

// SessionForContext returns the session currently serving ctx, or nil
// if none of this controller's sessions hold it.
func (c *Controller) SessionForContext(ctx *apn.Context) *dcsm.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.sessions {
		if s.HasContext(ctx) {
			return s
		}
	}
	return nil
}

// OnCallResult demultiplexes a binding's EventDataCallResult to every
// session this controller owns. At most one session is ever awaiting
// a given token; every other session's own state routing drops the
// event untouched, so broadcasting is safe.
func (c *Controller) OnCallResult(tok radio.Token, resp radio.DataCallResponse) {
	c.mu.RLock()
	sessions := make([]*dcsm.Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.RUnlock()
	for _, s := range sessions {
		s.Post(dcsm.SetupComplete{Token: tok, Response: resp})
		s.Post(dcsm.DeactivateComplete{Token: tok, Response: resp})
	}
}

// StateChanged implements dcsm.Delegate. It maintains the active-by-cid
// map, publishes the aggregated activity report, and drives any
// in-flight handover this session id participates in.
func (c *Controller) StateChanged(sessionID int, from, to dcsm.State) {
	s := c.session(sessionID)
	if s == nil {
		return
	}

	c.mu.Lock()
	if to == dcsm.Active {
		c.activeByCid[s.Cid()] = s
	} else if from == dcsm.Active {
		for cid, sess := range c.activeByCid {
			if sess.ID() == sessionID {
				delete(c.activeByCid, cid)
			}
		}
	}
	c.mu.Unlock()

	if c.notifier != nil {
		c.notifier.OnTransition(c.slot, sessionID, s.Transport(), from, to)
	}

	if c.persister != nil {
		if to == dcsm.Inactive {
			c.persister.Forget(c.slot, sessionID)
		} else {
			c.persister.Checkpoint(c.slot, s)
		}
	}

	c.publishActivity()
	c.driveHandover(sessionID, to)
}

func (c *Controller) publishActivity() {
	if c.tracker == nil {
		return
	}
	c.mu.RLock()
	var anyActive, anyDormant bool
	for _, s := range c.sessions {
		if s.State() != dcsm.Active {
			continue
		}
		switch s.LinkStatus() {
		case radio.LinkActive:
			anyActive = true
		case radio.LinkDormant:
			anyDormant = true
		}
	}
	c.mu.RUnlock()

	level := ActivityNone
	if anyDormant && !anyActive {
		level = ActivityDormant
	}
	c.tracker.OnActivityChanged(c.slot, level)
}

// RegisterAgent implements dcsm.Delegate.
func (c *Controller) RegisterAgent(sessionID int, caps radio.LinkProperties) int {
	return c.agents.Register(sessionID, caps)
}

// UnregisterAgent implements dcsm.Delegate.
func (c *Controller) UnregisterAgent(handle int) {
	c.agents.Unregister(handle)
}

// PublishLinkProps implements dcsm.Delegate.
func (c *Controller) PublishLinkProps(handle int, props radio.LinkProperties) {
	c.agents.PublishLinkProperties(handle, props)
}

// AcquireOwnership implements dcsm.Delegate.
func (c *Controller) AcquireOwnership(handle int, targetSessionID int) int {
	return c.agents.TransferOwnership(handle, targetSessionID)
}
