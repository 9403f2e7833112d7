package agent

// SessionHandler receives inbound connectivity callbacks for the
// session that owns a given agent handle. DC-Ctrl (or whatever layer
// wires agents to sessions) implements this to route each callback to
// the right Session's event loop.
type SessionHandler interface {
	OnNetworkUnwanted(sessionID int)
	OnBandwidthUpdateRequested(sessionID int, minKbps, maxKbps int)
	OnValidationStatus(sessionID int, valid bool, redirectURI string)
	OnStartSocketKeepalive(sessionID int, slot int, intervalSec int, packet []byte)
	OnStopSocketKeepalive(sessionID int, slot int)
}

// Dispatch routes an inbound connectivity callback to the session that
// owns handle, via handler. Calls for an unknown handle are dropped.
type Dispatch struct {
	registry *Registry
	handler  SessionHandler
}

// NewDispatch builds a Dispatch over registry, routing to handler.
func NewDispatch(registry *Registry, handler SessionHandler) *Dispatch {
	return &Dispatch{registry: registry, handler: handler}
}

func (d *Dispatch) NetworkUnwanted(handle int) {
	if owner := d.registry.Owner(handle); owner != 0 {
		d.handler.OnNetworkUnwanted(owner)
	}
}

func (d *Dispatch) BandwidthUpdateRequested(handle, minKbps, maxKbps int) {
	if owner := d.registry.Owner(handle); owner != 0 {
		d.handler.OnBandwidthUpdateRequested(owner, minKbps, maxKbps)
	}
}

func (d *Dispatch) ValidationStatus(handle int, valid bool, redirectURI string) {
	if owner := d.registry.Owner(handle); owner != 0 {
		d.handler.OnValidationStatus(owner, valid, redirectURI)
	}
}

func (d *Dispatch) StartSocketKeepalive(handle, slot, intervalSec int, packet []byte) {
	if owner := d.registry.Owner(handle); owner != 0 {
		d.handler.OnStartSocketKeepalive(owner, slot, intervalSec, packet)
	}
}

func (d *Dispatch) StopSocketKeepalive(handle, slot int) {
	if owner := d.registry.Owner(handle); owner != 0 {
		d.handler.OnStopSocketKeepalive(owner, slot)
	}
}
