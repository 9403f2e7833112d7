// Package agent implements the Network Agent: the single-owner handle
// a DC-SM Session registers to publish link properties, capabilities
// and score to the connectivity consumer, and through which keepalive
// and validation callbacks flow back in.
package agent

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/radiocore/datad/internal/radio"
	"github.com/radiocore/datad/pkg/util"
)

// Consumer is the connectivity-layer callback surface a Network Agent
// publishes to. A production binding implements this over whatever IPC
// the connectivity service exposes; tests use a recording fake.
type Consumer interface {
	SendNetworkCapabilities(caps NetworkCapabilities)
	SendLinkProperties(props radio.LinkProperties)
	SendNetworkScore(score int)
	SendNetworkInfo(info NetworkInfo)
	OnSocketKeepaliveEvent(handle int, event KeepaliveEvent)
	Unregister()
}

// NetworkCapabilities mirrors the capability/transport/metered bits a
// Network Agent advertises upstream.
type NetworkCapabilities struct {
	Capabilities []string // e.g. "INTERNET", "MMS", "SUPL"
	Transport    radio.Transport
	NotMetered   bool
	NotRoaming   bool
}

// NetworkInfo is the coarse network-type descriptor published alongside capabilities.
type NetworkInfo struct {
	TypeName string // e.g. "MOBILE", "MOBILE_IMS"
	Subtype  string // e.g. access network string
	Roaming  bool
}

// KeepaliveEvent reports an offloaded TCP/UDP keepalive's status.
type KeepaliveEvent int

const (
	KeepaliveStarted KeepaliveEvent = iota
	KeepaliveStopped
	KeepaliveError
)

// Agent is a single, singly-owned handle between a DC-SM session and a
// connectivity Consumer. Ownership transfer (handover) is the only
// permitted write by a party other than the current owner; all other
// non-owner calls are dropped per §5.
type Agent struct {
	handle   int
	mu       sync.Mutex
	ownerID  int // owning session id
	consumer Consumer
	caps     NetworkCapabilities
	props    radio.LinkProperties
	log      *logrus.Entry
}

// Registry is the process-wide table of live Agents, addressed by
// opaque integer handle so Sessions never hold a pointer to an Agent
// directly (the arena/weak-handle pattern from the core design notes).
type Registry struct {
	mu     sync.RWMutex
	agents map[int]*Agent

	// NewConsumer constructs the Consumer a freshly registered agent
	// publishes to. Tests inject a fake; production wires the real
	// connectivity binding.
	NewConsumer func(sessionID int) Consumer
}

var nextHandle int64

// NewRegistry creates an empty agent Registry.
func NewRegistry(newConsumer func(sessionID int) Consumer) *Registry {
	return &Registry{agents: make(map[int]*Agent), NewConsumer: newConsumer}
}

// Register creates a new Agent owned by sessionID and publishes its
// initial link properties, returning the handle.
func (r *Registry) Register(sessionID int, props radio.LinkProperties) int {
	h := int(atomic.AddInt64(&nextHandle, 1))
	a := &Agent{
		handle:  h,
		ownerID: sessionID,
		props:   props,
		log:     util.WithComponent("agent").WithField("handle", h),
	}
	if r.NewConsumer != nil {
		a.consumer = r.NewConsumer(sessionID)
	}
	r.mu.Lock()
	r.agents[h] = a
	r.mu.Unlock()

	if a.consumer != nil {
		a.consumer.SendLinkProperties(props)
	}
	return h
}

// Unregister tears down the agent behind handle, publishing the single
// unregister edge to its consumer.
func (r *Registry) Unregister(handle int) {
	r.mu.Lock()
	a := r.agents[handle]
	delete(r.agents, handle)
	r.mu.Unlock()
	if a == nil {
		return
	}
	if a.consumer != nil {
		a.consumer.Unregister()
	}
}

func (r *Registry) get(handle int) *Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.agents[handle]
}

// PublishLinkProperties re-publishes link properties through handle,
// dropped silently if the handle is unknown.
func (r *Registry) PublishLinkProperties(handle int, props radio.LinkProperties) {
	a := r.get(handle)
	if a == nil {
		return
	}
	a.mu.Lock()
	a.props = props
	consumer := a.consumer
	a.mu.Unlock()
	if consumer != nil {
		consumer.SendLinkProperties(props)
	}
}

// PublishCapabilities re-publishes capabilities through handle.
func (r *Registry) PublishCapabilities(handle int, caps NetworkCapabilities) {
	a := r.get(handle)
	if a == nil {
		return
	}
	a.mu.Lock()
	a.caps = caps
	consumer := a.consumer
	a.mu.Unlock()
	if consumer != nil {
		consumer.SendNetworkCapabilities(caps)
	}
}

// TransferOwnership moves the agent behind handle to newOwnerID,
// preserving its external handle to the connectivity consumer: link
// properties and capabilities are re-published through the same
// Consumer rather than creating a new one (§4.2 step 3). The agent
// stores no score, so no score is re-published.
func (r *Registry) TransferOwnership(handle int, newOwnerID int) int {
	a := r.get(handle)
	if a == nil {
		return 0
	}
	a.mu.Lock()
	a.ownerID = newOwnerID
	props := a.props
	caps := a.caps
	consumer := a.consumer
	a.mu.Unlock()

	if consumer != nil {
		consumer.SendLinkProperties(props)
		consumer.SendNetworkCapabilities(caps)
	}
	return handle
}

// Owner returns the session id currently owning handle, or 0 if unknown.
func (r *Registry) Owner(handle int) int {
	a := r.get(handle)
	if a == nil {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ownerID
}

// WriteAsOwner performs fn only if callerID is the current owner of
// handle; non-owner writes are dropped per the §5 single-owner rule.
func (r *Registry) WriteAsOwner(handle int, callerID int, fn func(*Agent)) bool {
	a := r.get(handle)
	if a == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ownerID != callerID {
		a.log.WithFields(logrus.Fields{"caller": callerID, "owner": a.ownerID}).
			Warn("dropping network agent write from non-owner")
		return false
	}
	fn(a)
	return true
}
