// Package engine wires the per-slot components — DC-Ctrl, Transport
// Manager, Request Registry/Dispatch SM, Data-Enabled Settings, and
// the Data Service / Policy Oracle bindings — into one running
// instance, with no process-wide mutable statics.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/radiocore/datad/internal/agent"
	"github.com/radiocore/datad/internal/apn"
	"github.com/radiocore/datad/internal/config"
	"github.com/radiocore/datad/internal/dataenabled"
	"github.com/radiocore/datad/internal/dcctrl"
	"github.com/radiocore/datad/internal/dcsm"
	"github.com/radiocore/datad/internal/metrics"
	"github.com/radiocore/datad/internal/radio"
	"github.com/radiocore/datad/internal/registry"
	"github.com/radiocore/datad/internal/store"
	"github.com/radiocore/datad/internal/transportmgr"
	"github.com/radiocore/datad/pkg/util"
)

// slotLockTTL is how long this process holds a slot's distributed
// lock before it must be renewed by another successful AddSlot.
const slotLockTTL = 30 * time.Second

// Bindings bundles the per-transport Data Service Bindings and the
// Policy Oracle for one slot, so callers can inject fakes in tests or
// real D-Bus transports in production.
type Bindings struct {
	WWAN   radio.DataServiceBinding
	WLAN   radio.DataServiceBinding // nil in legacy mode
	Oracle transportmgr.Oracle
}

// Slot is everything owned by one SIM slot: its controllers, its
// dispatch state machine, and the bindings it drives.
type Slot struct {
	ID int

	ctx      context.Context
	cfg      *config.Config
	log      *logrus.Entry
	agents   *agent.Registry
	apnCtxs  *apn.Registry
	bindings Bindings
	metrics  *metrics.Counters

	dcctrlByTransport map[radio.Transport]*dcctrl.Controller
	transport         *transportmgr.Manager
	dispatch          *registry.DispatchSM
}

// Engine owns every configured slot plus the process-wide (but not
// slot-owned) Data-Enabled Settings gate and the shared Request Registry.
type Engine struct {
	cfg      *config.Config
	log      *logrus.Entry
	settings *dataenabled.Settings
	requests *registry.Registry
	metrics  *metrics.Counters
	notifier dcctrl.Notifier

	store     *store.SessionStore
	lock      *store.SlotLock
	persister dcctrl.Persister
	holder    string

	mu    sync.RWMutex
	slots map[int]*Slot
}

// New creates an Engine. Dispatch priority per apn type is resolved
// from cfg.Priority.
func New(cfg *config.Config) *Engine {
	e := &Engine{
		cfg:      cfg,
		log:      util.WithComponent("engine"),
		settings: dataenabled.New(),
		metrics:  &metrics.Counters{},
		slots:    make(map[int]*Slot),
	}
	e.requests = registry.New(cfg.Priority)
	return e
}

// Settings exposes the Data-Enabled Settings gate.
func (e *Engine) Settings() *dataenabled.Settings { return e.settings }

// Requests exposes the shared Request Registry.
func (e *Engine) Requests() *registry.Registry { return e.requests }

// Metrics exposes the engine-wide outcome counters.
func (e *Engine) Metrics() *metrics.Counters { return e.metrics }

// SetNotifier wires a transition/handover observer into every
// controller this engine creates from this point on. Must be called
// before AddSlot to take effect for that slot's controllers.
func (e *Engine) SetNotifier(n dcctrl.Notifier) { e.notifier = n }

// SetStore wires a Redis-backed session checkpoint store. holder
// identifies this process to the distributed slot lock (e.g. the
// hostname). Must be called before AddSlot to take effect: each
// AddSlot call checkpoints to it from then on and reloads any
// checkpointed sessions for that slot before returning.
func (e *Engine) SetStore(s *store.SessionStore, lock *store.SlotLock, holder string) {
	e.store = s
	e.lock = lock
	e.holder = holder
	e.persister = &storePersister{store: s, log: e.log.WithField("component", "store")}
}

// SlotController implements api.SlotSource.
func (e *Engine) SlotController(slot int, transport radio.Transport) *dcctrl.Controller {
	s, ok := e.Slot(slot)
	if !ok {
		return nil
	}
	return s.Controller(transport)
}

// DataEnabled implements api.SlotSource.
func (e *Engine) DataEnabled() bool { return e.settings.Enabled() }

// AddSlot configures and starts slot id with the given profiles and
// bindings, running every owned event loop under ctx.
func (e *Engine) AddSlot(ctx context.Context, id int, profiles []apn.Profile, bindings Bindings) (*Slot, error) {
	if e.lock != nil {
		if err := e.lock.Acquire(id, e.holder, slotLockTTL); err != nil {
			return nil, fmt.Errorf("slot %d: acquiring slot lock: %w", id, err)
		}
	}

	mode := transportmgr.ModeDefault
	if e.cfg.OperatingMode == config.ModeLegacy {
		mode = transportmgr.ModeLegacy
	}
	if mode == transportmgr.ModeDefault && bindings.WLAN == nil {
		return nil, fmt.Errorf("slot %d: non-legacy mode requires a WLAN binding", id)
	}

	log := util.WithSlot(id)
	apnCtxs := apn.NewRegistry(profiles)

	agents := agent.NewRegistry(func(sessionID int) agent.Consumer {
		return agent.NewLoggingConsumer(sessionID, log)
	})

	slot := &Slot{
		ID:                id,
		ctx:               ctx,
		cfg:               e.cfg,
		log:               log,
		agents:            agents,
		apnCtxs:           apnCtxs,
		bindings:          bindings,
		metrics:           e.metrics,
		dcctrlByTransport: make(map[radio.Transport]*dcctrl.Controller),
	}

	modem := &allowedModem{binding: bindings.WWAN}
	slot.dispatch = registry.NewDispatchSM(id, modem, e.requests)
	e.requests.BindSlot(id, slot.dispatch, apnCtxs)
	e.requests.SetStarter(e)
	go slot.dispatch.Run(ctx)

	wwanCtrl := dcctrl.New(id, agents, slot, slot)
	wwanCtrl.SetMetrics(e.metrics)
	wwanCtrl.SetNotifier(e.notifier)
	wwanCtrl.SetPersister(e.persister)
	slot.dcctrlByTransport[radio.TransportWWAN] = wwanCtrl
	go runBindingLoop(ctx, bindings.WWAN, wwanCtrl, slot.dispatch)

	if bindings.WLAN != nil {
		wlanCtrl := dcctrl.New(id, agents, slot, slot)
		wlanCtrl.SetMetrics(e.metrics)
		wlanCtrl.SetNotifier(e.notifier)
		wlanCtrl.SetPersister(e.persister)
		slot.dcctrlByTransport[radio.TransportWLAN] = wlanCtrl
		go runBindingLoop(ctx, bindings.WLAN, wlanCtrl, nil)
	}

	th := &handoverRequester{slot: slot}
	slot.transport = transportmgr.New(id, mode, th)
	if bindings.Oracle != nil {
		if err := bindings.Oracle.Subscribe(ctx, func(qn transportmgr.QualifiedNetworks) {
			slot.transport.OnQualifiedNetworksChanged(qn)
		}); err != nil {
			log.WithError(err).Warn("subscribing to policy oracle")
		}
	}

	e.mu.Lock()
	e.slots[id] = slot
	e.mu.Unlock()

	if e.store != nil {
		checkpoints, err := e.store.All(id)
		if err != nil {
			log.WithError(err).Warn("reloading session checkpoints")
		}
		for _, cp := range checkpoints {
			slot.resumeSession(cp)
		}
	}

	return slot, nil
}

// resumeSession rebuilds a session from a checkpoint left behind by a
// previous process, without re-querying the modem. The rebuilt
// session only reacts to subsequent binding events (list-changed
// reconciliation, a lost-connection report); it never reissues
// SetupDataCall.
func (s *Slot) resumeSession(cp store.SessionCheckpoint) {
	ctrl := s.Controller(cp.Transport)
	if ctrl == nil {
		s.log.WithField("transport", cp.Transport.String()).Warn("dropping checkpoint for unconfigured transport")
		return
	}
	binding := s.bindings.WWAN
	if cp.Transport == radio.TransportWLAN {
		binding = s.bindings.WLAN
	}
	if binding == nil {
		return
	}

	var ctxs []*apn.Context
	var profile apn.Profile
	if apnCtx := s.apnCtxs.Get(cp.ApnType); apnCtx != nil {
		apnCtx.Acquire()
		ctxs = []*apn.Context{apnCtx}
		profile = apnCtx.Profile()
	}

	retry := dcsm.NewRetryManager(s.cfg.RetryDelays(), s.cfg.RetryRandWindow(), s.cfg.MaxRetries)
	sess := dcsm.ResumeSession(cp.Transport, binding, ctrl, retry, ctxs, profile, cp.State, cp.Cid, cp.Ifname)
	sess.SetMetrics(s.metrics)
	ctrl.AddSession(sess)
	for _, c := range ctxs {
		c.SetSessionID(sess.ID())
	}
	go sess.Run(s.ctx)

	s.log.WithFields(logrus.Fields{
		"session":   sess.ID(),
		"transport": cp.Transport.String(),
		"state":     cp.State.String(),
	}).Info("resumed session from checkpoint")
}

// Shutdown posts DisconnectAll to every slot's Dispatch State Machine
// and waits up to timeout for each to settle back to Idle, giving the
// modem a chance to detach cleanly before the caller cancels ctx and
// tears down the event loops.
func (e *Engine) Shutdown(timeout time.Duration) {
	e.mu.RLock()
	slots := make([]*Slot, 0, len(e.slots))
	for _, s := range e.slots {
		slots = append(slots, s)
	}
	e.mu.RUnlock()

	for _, s := range slots {
		s.dispatch.Post(registry.DisconnectAll{})
	}

	deadline := time.Now().Add(timeout)
	for _, s := range slots {
		for s.dispatch.State() != registry.Idle && time.Now().Before(deadline) {
			time.Sleep(20 * time.Millisecond)
		}
	}

	if e.lock != nil {
		for _, s := range slots {
			if err := e.lock.Release(s.ID, e.holder); err != nil {
				e.log.WithError(err).WithField("slot", s.ID).Warn("releasing slot lock")
			}
		}
	}
}

// Slot returns a configured slot by id.
func (e *Engine) Slot(id int) (*Slot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.slots[id]
	return s, ok
}

// Controller returns the DC-Ctrl for slot/transport.
func (s *Slot) Controller(t radio.Transport) *dcctrl.Controller {
	return s.dcctrlByTransport[t]
}

// ApnContexts exposes the slot's ApnContext registry.
func (s *Slot) ApnContexts() *apn.Registry { return s.apnCtxs }

// newSession creates and registers a fresh, running dcsm.Session on
// transport, sharing the slot's retry policy and metrics sink.
func (s *Slot) newSession(transport radio.Transport) (*dcsm.Session, *dcctrl.Controller) {
	ctrl := s.Controller(transport)
	if ctrl == nil {
		return nil, nil
	}
	binding := s.bindings.WWAN
	if transport == radio.TransportWLAN {
		binding = s.bindings.WLAN
	}
	retry := dcsm.NewRetryManager(s.cfg.RetryDelays(), s.cfg.RetryRandWindow(), s.cfg.MaxRetries)
	sess := dcsm.NewSession(transport, binding, ctrl, retry)
	sess.SetMetrics(s.metrics)
	ctrl.AddSession(sess)
	go sess.Run(s.ctx)
	return sess, ctrl
}

// StartSession implements registry.Starter: the first request to hold
// a ref-count on ctx opens the actual data connection, on whichever
// transport the Transport Manager currently prefers for ctx's apn type.
// Nothing is dialed while the Data-Enabled Settings gate is off.
func (e *Engine) StartSession(slot int, ctx *apn.Context) {
	if !e.settings.Enabled() {
		return
	}
	s, ok := e.Slot(slot)
	if !ok {
		return
	}
	transport := s.transport.GetCurrentTransport(ctx.Type())
	sess, _ := s.newSession(transport)
	if sess == nil {
		return
	}
	sess.Post(dcsm.Connect{Profile: ctx.Profile(), Context: ctx, Reason: radio.ReasonNormal})
}

// OnActivityChanged implements dcctrl.ActivityTracker. A full
// implementation would forward this to the platform's data-activity
// watchdog; this logs it as the observable surface for now.
func (s *Slot) OnActivityChanged(slot int, level dcctrl.ActivityLevel) {
	s.log.WithField("activity", level.String()).Debug("link activity changed")
}

// RestartRadio implements dcctrl.RadioRestarter. Reconciliation
// classifies a lost cid as requiring a radio restart far more rarely
// than a plain retry; driving the actual restart is left to whatever
// owns the Radio Facade lifecycle, which the engine does not model.
func (s *Slot) RestartRadio(slot int) {
	s.log.Warn("radio restart requested by reconciliation, not wired to a facade lifecycle")
}

// runBindingLoop pumps a single DataServiceBinding's Events channel
// into its controller: list-changed reconciliation, setup/deactivate
// result demux by token, and (on the WWAN leg, which is the only
// transport set_data_allowed applies to) the dispatch SM's allowed-
// result correlation.
func runBindingLoop(ctx context.Context, binding radio.DataServiceBinding, ctrl *dcctrl.Controller, dispatch *registry.DispatchSM) {
	if binding == nil {
		return
	}
	for {
		select {
		case ev, ok := <-binding.Events():
			if !ok {
				return
			}
			switch ev.Kind {
			case radio.EventListChanged:
				ctrl.OnListChanged(ev.List)
			case radio.EventDataCallResult:
				ctrl.OnCallResult(ev.Token, ev.Response)
			case radio.EventDataAllowedResult:
				if dispatch != nil {
					dispatch.OnAllowedResult(ev.Token, ev.Status == radio.Success)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// allowedModem adapts a radio.DataServiceBinding to registry.Modem.
type allowedModem struct {
	binding radio.DataServiceBinding
}

func (m *allowedModem) SetDataAllowed(ctx context.Context, allowed bool) (radio.Token, error) {
	return m.binding.SetDataAllowed(ctx, allowed)
}

// handoverRequester adapts a Slot into transportmgr.HandoverRequester,
// starting a new session on the target transport and letting dcctrl's
// handover protocol carry the rest.
type handoverRequester struct {
	slot *Slot
}

func (h *handoverRequester) RequestHandover(apnType apn.Type, target radio.Transport, fallback bool) {
	ctrl := h.slot.Controller(target)
	if ctrl == nil {
		return
	}
	ctx := h.slot.apnCtxs.Get(apnType)
	if ctx == nil {
		return
	}

	var source *dcsm.Session
	for _, c := range h.slot.dcctrlByTransport {
		if c == ctrl {
			continue
		}
		if s := c.SessionForContext(ctx); s != nil {
			source = s
			break
		}
	}

	targetSession, _ := h.slot.newSession(target)
	if targetSession == nil {
		return
	}

	if source != nil {
		ctrl.StartHandover(source, targetSession, ctx.Profile(), ctx, fallback)
	} else {
		targetSession.Post(dcsm.Connect{Profile: ctx.Profile(), Context: ctx, Reason: radio.ReasonNormal})
	}

	h.slot.transport.CompleteHandover(apnType, target)
}
