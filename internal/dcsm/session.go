package dcsm

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/radiocore/datad/internal/apn"
	"github.com/radiocore/datad/internal/metrics"
	"github.com/radiocore/datad/internal/radio"
	"github.com/radiocore/datad/pkg/util"
)

// Delegate is the set of callbacks a Session uses to reach its owning
// DC-Ctrl and the Network Agent layer, without holding a direct
// pointer back to either — the arena lives in DC-Ctrl, and a Session
// is only ever addressed by its stable integer id (spec §9).
type Delegate interface {
	// RegisterAgent creates and registers a Network Agent for session id,
	// returning a weak handle (an opaque id) the Session stores instead
	// of a pointer.
	RegisterAgent(sessionID int, caps radio.LinkProperties) int
	// UnregisterAgent tears down the agent behind handle.
	UnregisterAgent(handle int)
	// PublishLinkProps re-publishes link properties through an existing agent handle.
	PublishLinkProps(handle int, props radio.LinkProperties)
	// AcquireOwnership transfers agent ownership to the target session
	// during handover, returning the (possibly unchanged) handle.
	AcquireOwnership(handle int, targetSessionID int) int
	// StateChanged notifies DC-Ctrl of a state transition for bookkeeping
	// (active-by-cid map maintenance, link-activity aggregation).
	StateChanged(sessionID int, from, to State)
}

// Session is one DC-SM instance: inactive → activating → active →
// (disconnecting → inactive), optionally handed over mid-life to the
// sibling transport.
type Session struct {
	id        int
	transport radio.Transport
	binding   radio.DataServiceBinding
	delegate  Delegate
	log       *logrus.Entry

	inbox chan Event

	state       State
	cid         int
	linkProps   radio.LinkProperties
	linkStatus  radio.LinkStatus
	apnCtxs     []*apn.Context
	profile     apn.Profile
	agentHandle int // 0 means no agent registered

	retry      *RetryManager
	alarmGen   uint64
	alarmTimer *time.Timer

	pendingToken     radio.Token
	disconnectReason radio.Reason

	// handover bookkeeping, valid only while this session is acting as
	// the source or target of an in-flight handover.
	handoverFallback bool
	handoverSourceID int // set on the target session, points back to source

	metrics *metrics.Counters
}

// SetMetrics wires an outcome-counter sink. Optional; nil is a no-op.
func (s *Session) SetMetrics(m *metrics.Counters) { s.metrics = m }

var nextSessionID int64

// NewSession allocates a Session with a fresh monotonically increasing id.
func NewSession(transport radio.Transport, binding radio.DataServiceBinding, delegate Delegate, retry *RetryManager) *Session {
	id := int(atomic.AddInt64(&nextSessionID, 1))
	return &Session{
		id:        id,
		transport: transport,
		binding:   binding,
		delegate:  delegate,
		retry:     retry,
		state:     Inactive,
		inbox:     make(chan Event, 32),
		log:       util.WithComponent("dcsm").WithField("session", id).WithField("transport", transport.String()),
	}
}

// ResumeSession rebuilds a Session from a checkpointed state instead
// of starting it at Inactive, so an engine restart can reload its
// view of an in-progress session without re-querying the modem. The
// session is registered with delegate (including re-acquiring a
// Network Agent if state is Active) but never issues SetupDataCall;
// it only resumes reacting to events the binding delivers afterward.
func ResumeSession(transport radio.Transport, binding radio.DataServiceBinding, delegate Delegate, retry *RetryManager, ctxs []*apn.Context, profile apn.Profile, state State, cid int, ifname string) *Session {
	id := int(atomic.AddInt64(&nextSessionID, 1))
	s := &Session{
		id:        id,
		transport: transport,
		binding:   binding,
		delegate:  delegate,
		retry:     retry,
		state:     state,
		cid:       cid,
		linkProps: radio.LinkProperties{Ifname: ifname},
		apnCtxs:   ctxs,
		profile:   profile,
		inbox:     make(chan Event, 32),
		log:       util.WithComponent("dcsm").WithField("session", id).WithField("transport", transport.String()),
	}
	if state == Active {
		s.agentHandle = delegate.RegisterAgent(s.id, s.linkProps)
	}
	s.log.WithField("state", state.String()).Info("resumed session from checkpoint")
	return s
}

// ID returns the session's stable integer id.
func (s *Session) ID() int { return s.id }

// State returns the current state. Safe to call from outside the loop
// goroutine only for diagnostics; the authoritative state is whatever
// the loop goroutine observes at event-processing time.
func (s *Session) State() State { return s.state }

// Cid returns the currently active cid, or 0 if none.
func (s *Session) Cid() int { return s.cid }

// HasContext reports whether ctx is one of the ApnContexts this
// session currently serves. Like State, this is a best-effort
// diagnostic read from outside the loop goroutine; callers that need
// strict correctness should drive it through Post instead.
func (s *Session) HasContext(ctx *apn.Context) bool {
	for _, c := range s.apnCtxs {
		if c == ctx {
			return true
		}
	}
	return false
}

// LinkProperties returns the session's current link properties.
func (s *Session) LinkProperties() radio.LinkProperties { return s.linkProps }

// LinkStatus returns the session's current link liveness, as last
// reported by the binding (Active/Dormant/Inactive).
func (s *Session) LinkStatus() radio.LinkStatus { return s.linkStatus }

// Transport returns the transport this session is bound to.
func (s *Session) Transport() radio.Transport { return s.transport }

// ApnType returns the apn type of this session's primary ApnContext,
// or the zero Type if it has none (e.g. a freshly resumed session
// whose context could not be resolved).
func (s *Session) ApnType() apn.Type {
	if len(s.apnCtxs) == 0 {
		return 0
	}
	return s.apnCtxs[0].Type()
}

// Profile returns the profile this session was set up with.
func (s *Session) Profile() apn.Profile { return s.profile }

// Post enqueues an event for processing by the session's loop. Posting
// is always allowed, including from within another handler.
func (s *Session) Post(ev Event) {
	s.inbox <- ev
}

// Run drains the inbox until ctx is cancelled. One goroutine per
// Session; processing is never recursive or concurrent with itself.
func (s *Session) Run(ctx context.Context) {
	for {
		select {
		case ev := <-s.inbox:
			s.step(ev)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) step(ev Event) {
	from := s.state
	switch s.state {
	case Inactive:
		s.stepInactive(ev)
	case Activating:
		s.stepActivating(ev)
	case Retrying:
		s.stepRetrying(ev)
	case Active:
		s.stepActive(ev)
	case Disconnecting:
		s.stepDisconnecting(ev)
	}
	if s.state != from {
		s.log.WithFields(logrus.Fields{"from": from.String(), "to": s.state.String()}).Info("session state transition")
		s.delegate.StateChanged(s.id, from, s.state)
	}
}

func (s *Session) enterInactive() {
	s.cid = 0
	s.linkProps = radio.LinkProperties{}
	s.cancelAlarm()
	s.state = Inactive
}

func (s *Session) stepInactive(ev Event) {
	switch e := ev.(type) {
	case Connect:
		s.profile = e.Profile
		if e.Context != nil {
			s.apnCtxs = append(s.apnCtxs, e.Context)
		}
		if e.ExistingLink != nil {
			s.linkProps = *e.ExistingLink
		}
		s.enterActivating(e.Reason, e.ExistingLink)
	case DisconnectAll:
		s.enterInactive()
	}
}

func (s *Session) enterActivating(reason radio.Reason, existingLink *radio.LinkProperties) {
	s.state = Activating
	req := radio.SetupRequest{
		ApnName:        s.profile.Apn,
		ApnType:        uint32(apnContextsMask(s.apnCtxs)),
		ProtocolType:   s.profile.Protocol(false),
		Reason:         reason,
		LinkProperties: existingLink,
	}
	tok, err := s.binding.SetupDataCall(context.Background(), req)
	if err != nil {
		// Binding disconnected: treat identically to a permanent setup failure.
		s.enterInactive()
		return
	}
	s.pendingToken = tok
}

func (s *Session) stepActivating(ev Event) {
	switch e := ev.(type) {
	case SetupComplete:
		if e.Token != s.pendingToken {
			s.log.Warn("dropping stale SetupComplete token")
			return
		}
		if e.Response.Status == radio.Success {
			s.enterActive(e.Response)
			return
		}
		s.handleSetupFailure(e.Response)
	case Disconnect:
		s.disconnectReason = e.Reason
		s.enterDisconnecting()
	}
}

func (s *Session) handleSetupFailure(resp radio.DataCallResponse) {
	if resp.SuggestedRetryMs == radio.NeverRetry {
		s.enterInactive()
		return
	}
	var delay time.Duration
	if resp.SuggestedRetryMs >= 0 {
		delay = time.Duration(resp.SuggestedRetryMs) * time.Millisecond
	} else {
		d, ok := s.retry.Next()
		if !ok {
			s.enterInactive()
			return
		}
		delay = d
	}
	s.enterRetrying(delay)
}

func (s *Session) enterRetrying(delay time.Duration) {
	s.metrics.IncSetupRetry()
	s.state = Retrying
	s.alarmGen++
	gen := s.alarmGen
	s.alarmTimer = time.AfterFunc(delay, func() {
		s.Post(AlarmFired{Generation: gen})
	})
}

func (s *Session) cancelAlarm() {
	if s.alarmTimer != nil {
		s.alarmTimer.Stop()
		s.alarmTimer = nil
	}
	s.alarmGen++
}

func (s *Session) stepRetrying(ev Event) {
	switch e := ev.(type) {
	case AlarmFired:
		if e.Generation != s.alarmGen {
			return // stale, already-cancelled alarm
		}
		s.enterActivating(radio.ReasonNormal, nil)
	case Disconnect:
		s.cancelAlarm()
		s.enterInactive()
	}
}

func (s *Session) enterActive(resp radio.DataCallResponse) {
	s.state = Active
	s.cid = resp.Cid
	s.linkProps = radio.FromResponse(resp)
	s.linkStatus = resp.LinkStatus
	s.retry.Reset()
	s.agentHandle = s.delegate.RegisterAgent(s.id, s.linkProps)
}

func (s *Session) stepActive(ev Event) {
	switch e := ev.(type) {
	case LostConnection:
		s.handleLostConnection(e.Classification)
	case LinkPropsChanged:
		s.linkProps = e.New
		s.linkStatus = e.Status
		if s.agentHandle != 0 {
			s.delegate.PublishLinkProps(s.agentHandle, s.linkProps)
		}
	case HandoverTo:
		s.handoverFallback = e.Fallback
		s.disconnectReason = radio.ReasonHandover
		s.enterDisconnecting()
	case Disconnect:
		s.disconnectReason = e.Reason
		s.enterDisconnecting()
	}
}

func (s *Session) handleLostConnection(class FailureClass) {
	switch class {
	case FailurePermanent:
		s.metrics.IncPermanentFailure()
		s.disconnectReason = radio.ReasonNormal
		s.enterDisconnecting()
	case FailureRadioRestart:
		s.enterInactive()
	default: // transient
		if s.agentHandle != 0 {
			s.delegate.UnregisterAgent(s.agentHandle)
			s.agentHandle = 0
		}
		if d, ok := s.retry.Next(); ok {
			s.enterRetrying(d)
		} else {
			s.enterInactive()
		}
	}
}

func (s *Session) enterDisconnecting() {
	prevAgent := s.agentHandle
	s.state = Disconnecting
	req := radio.DeactivateRequest{Cid: s.cid, Reason: s.disconnectReason}
	tok, err := s.binding.DeactivateDataCall(context.Background(), req)
	if err != nil {
		s.finishDisconnect(prevAgent)
		return
	}
	s.pendingToken = tok
}

func (s *Session) stepDisconnecting(ev Event) {
	switch e := ev.(type) {
	case DeactivateComplete:
		if e.Token != s.pendingToken {
			s.log.Warn("dropping stale DeactivateComplete token")
			return
		}
		s.finishDisconnect(s.agentHandle)
	}
}

func (s *Session) finishDisconnect(agentHandle int) {
	if agentHandle != 0 {
		s.delegate.UnregisterAgent(agentHandle)
		s.agentHandle = 0
	}
	s.enterInactive()
}

// TransferAgentTo is called on the source session by the handover
// orchestrator (step 3 of §4.2's protocol) once the target session has
// reached Active. It hands the agent handle to the target and clears
// its own, so the source's subsequent Disconnecting→Inactive path does
// not unregister an agent it no longer owns.
func (s *Session) TransferAgentTo(target *Session) {
	if s.agentHandle == 0 {
		return
	}
	target.agentHandle = s.delegate.AcquireOwnership(s.agentHandle, target.id)
	s.agentHandle = 0
}

func apnContextsMask(ctxs []*apn.Context) apn.TypeSet {
	var mask apn.TypeSet
	for _, c := range ctxs {
		mask |= apn.TypeSet(c.Type())
	}
	return mask
}
