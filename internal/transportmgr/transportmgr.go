// Package transportmgr implements the Transport Manager: per-slot
// ApnType-to-Transport mapping driven by a stream of qualified-network
// verdicts from the policy oracle, and handover scheduling.
package transportmgr

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/radiocore/datad/internal/apn"
	"github.com/radiocore/datad/internal/radio"
	"github.com/radiocore/datad/pkg/util"
)

// QualifiedNetworks is a complete replacement of preferred access
// networks for one apn type, as published by the policy oracle.
type QualifiedNetworks struct {
	ApnType                apn.Type
	OrderedPreferredAccess []radio.AccessNetwork
}

// HandoverRequester is asked to perform an actual handover once the
// decision logic below determines one is needed. fallback reports
// whether the target is a non-critical offload transport (WLAN): if
// setup on it fails, the source should simply stay attached rather
// than tear down a working connection.
type HandoverRequester interface {
	RequestHandover(apnType apn.Type, target radio.Transport, fallback bool)
}

// Mode selects legacy single-transport behavior vs the full dual-transport engine.
type Mode int

const (
	ModeDefault Mode = iota
	ModeLegacy
	ModeAPAssisted
)

type pendingHandover struct {
	target radio.Transport
}

// Manager is the per-slot Transport Manager.
type Manager struct {
	slot      int
	mode      Mode
	requester HandoverRequester
	log       *logrus.Entry

	mu               sync.Mutex
	currentTransport map[apn.Type]radio.Transport
	currentAvailable map[apn.Type][]radio.AccessNetwork
	pendingHandovers map[apn.Type]pendingHandover
	queue            []QualifiedNetworks
}

// New creates a Manager for slot in the given mode.
func New(slot int, mode Mode, requester HandoverRequester) *Manager {
	return &Manager{
		slot:             slot,
		mode:             mode,
		requester:        requester,
		log:              util.WithComponent("transportmgr").WithField("slot", slot),
		currentTransport: make(map[apn.Type]radio.Transport),
		currentAvailable: make(map[apn.Type][]radio.AccessNetwork),
		pendingHandovers: make(map[apn.Type]pendingHandover),
	}
}

// GetAvailableTransports returns the full list of transports this
// manager may route traffic over.
func (m *Manager) GetAvailableTransports() []radio.Transport {
	if m.mode == ModeLegacy {
		return []radio.Transport{radio.TransportWWAN}
	}
	return []radio.Transport{radio.TransportWWAN, radio.TransportWLAN}
}

// GetCurrentTransport returns the transport currently serving apnType.
func (m *Manager) GetCurrentTransport(apnType apn.Type) radio.Transport {
	if m.mode == ModeLegacy {
		return radio.TransportWWAN
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.currentTransport[apnType]; ok {
		return t
	}
	return radio.TransportWWAN
}

// IsAnyApnPreferredOnIWLAN reports whether any apn type currently
// prefers IWLAN as its head access network.
func (m *Manager) IsAnyApnPreferredOnIWLAN() bool {
	if m.mode == ModeLegacy {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, list := range m.currentAvailable {
		if len(list) > 0 && list[0] == radio.AccessNetworkIWLAN {
			return true
		}
	}
	return false
}

// OnQualifiedNetworksChanged enqueues a new verdict and drains the
// queue if no handover is currently pending.
func (m *Manager) OnQualifiedNetworksChanged(qn QualifiedNetworks) {
	if m.mode == ModeLegacy {
		return
	}
	m.mu.Lock()
	m.queue = append(m.queue, qn)
	m.mu.Unlock()
	m.drain()
}

func (m *Manager) drain() {
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return
		}
		// Only process while no handover is pending for any apn type in
		// the queue head, per the "drained only when no handover is
		// pending" rule; a conservative, correct approximation is to
		// stall the whole queue while any handover is pending.
		if len(m.pendingHandovers) > 0 {
			m.mu.Unlock()
			return
		}
		qn := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		m.apply(qn)
	}
}

func (m *Manager) apply(qn QualifiedNetworks) {
	m.mu.Lock()
	oldAvailable := m.currentAvailable[qn.ApnType]
	oldTransport, hadTransport := m.currentTransport[qn.ApnType]
	m.mu.Unlock()

	needed, target := decideHandover(oldAvailable, oldTransport, hadTransport, qn.OrderedPreferredAccess)

	m.mu.Lock()
	m.currentAvailable[qn.ApnType] = qn.OrderedPreferredAccess
	if needed {
		m.pendingHandovers[qn.ApnType] = pendingHandover{target: target}
	}
	m.mu.Unlock()

	if needed && m.requester != nil {
		// Moving onto WLAN is an optional offload: if the target fails to
		// come up the source transport is left attached. Moving back onto
		// WWAN is recovering the primary transport, so a failed target
		// must not be silently ignored.
		fallback := target == radio.TransportWLAN
		m.log.WithFields(logrus.Fields{"apn_type": qn.ApnType.String(), "target": target.String(), "fallback": fallback}).
			Info("requesting handover")
		m.requester.RequestHandover(qn.ApnType, target, fallback)
	}
}

// CompleteHandover is called once a requested handover finishes
// (successfully or not), removing the pending entry and resuming the
// queue drain.
func (m *Manager) CompleteHandover(apnType apn.Type, newTransport radio.Transport) {
	m.mu.Lock()
	delete(m.pendingHandovers, apnType)
	m.currentTransport[apnType] = newTransport
	m.mu.Unlock()
	m.drain()
}

// decideHandover decides whether the new preferred-access ordering for
// an apn type requires a handover, and if so to which transport.
func decideHandover(oldAvailable []radio.AccessNetwork, oldTransport radio.Transport, hadTransport bool, newAvailable []radio.AccessNetwork) (needed bool, target radio.Transport) {
	if len(oldAvailable) == 0 && len(newAvailable) > 0 && newAvailable[0].ToTransport() == radio.TransportWLAN {
		return true, radio.TransportWLAN
	}
	if len(oldAvailable) == 0 || len(newAvailable) == 0 {
		return false, 0
	}
	newTarget := newAvailable[0].ToTransport()
	if !hadTransport {
		return false, 0
	}
	if newTarget == oldTransport {
		return false, 0
	}
	return true, newTarget
}
