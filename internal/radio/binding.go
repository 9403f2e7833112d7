package radio

import "context"

// SetupRequest carries the parameters of a setup_data_call call.
type SetupRequest struct {
	AccessNetwork  AccessNetwork
	ApnName        string
	ApnType        uint32 // bitmask, see internal/apn.ApnType
	ProtocolType   string // "IP", "IPV6", "IPV4V6"
	Reason         Reason
	LinkProperties *LinkProperties // non-nil only on ReasonHandover, carried from the source session
}

// DeactivateRequest carries the parameters of a deactivate_data_call call.
type DeactivateRequest struct {
	Cid    int
	Reason Reason
}

// DataServiceBinding is the per-transport contract a Data Connection
// Controller issues modem operations through. Exactly one binding
// exists per transport (WWAN, WLAN); it is owned by the component
// that bound to it and must not be shared across transports.
//
// All methods are asynchronous from the caller's point of view: they
// return a Token immediately, and the eventual DataCallResponse (or
// list-changed notification) is delivered through the Events channel.
// At most one response is ever delivered per token.
type DataServiceBinding interface {
	// SetupDataCall begins establishing a packet-data session.
	// Returns ErrorIllegalState synchronously if the binding is
	// currently disconnected from its remote package.
	SetupDataCall(ctx context.Context, req SetupRequest) (Token, error)

	// DeactivateDataCall tears down an established session by cid.
	DeactivateDataCall(ctx context.Context, req DeactivateRequest) (Token, error)

	// SetInitialAttachApn configures the APN used for the modem's own
	// initial PDN attach, independent of any session this engine owns.
	SetInitialAttachApn(ctx context.Context, apnName, protocolType string) (Token, error)

	// SetDataProfile pushes the full APN profile table to the modem.
	SetDataProfile(ctx context.Context, profiles []DataProfile) (Token, error)

	// GetDataCallList requests an authoritative snapshot of all active
	// calls known to the modem for this transport.
	GetDataCallList(ctx context.Context) (Token, error)

	// SetDataAllowed toggles the slot-level "data allowed" attach state.
	// Callers correlate the eventual EventDataAllowedResult by Token;
	// the dispatch state machine layers its own sequence number on top
	// to discard stale acks independent of token reuse.
	SetDataAllowed(ctx context.Context, allowed bool) (Token, error)

	// Events returns the channel of unsolicited and correlated events
	// this binding delivers. The binding owns the channel and closes
	// it when Close is called.
	Events() <-chan Event

	// Connected reports whether the binding currently has a live
	// remote package bound (see binding_changed).
	Connected() bool

	// Close releases the binding and its underlying transport.
	Close() error
}

// DataProfile is the wire-independent shape of an APN pushed via
// SetDataProfile; internal/apn.ApnProfile is converted to this at the
// binding boundary.
type DataProfile struct {
	ID           int
	ApnName      string
	ProtocolType string
	ApnTypeMask  uint32
	MaxConns     int
}

// EventKind discriminates the Event union delivered over a binding's
// Events channel.
type EventKind int

const (
	// EventDataCallResult correlates a prior Setup/Deactivate/GetList
	// call (by Token) with its DataCallResponse.
	EventDataCallResult EventKind = iota
	// EventListChanged is the unsolicited data_call_list_changed signal.
	EventListChanged
	// EventBindingChanged reports the remote package's bind state; a
	// transition to false means the remote package terminated or the
	// well-known D-Bus name lost its owner.
	EventBindingChanged
	// EventDataAllowedResult correlates a prior SetDataAllowed call (by
	// Token) with its result code.
	EventDataAllowedResult
)

// Event is a single message delivered over a DataServiceBinding's
// Events channel.
type Event struct {
	Kind     EventKind
	Token    Token              // valid for EventDataCallResult, EventDataAllowedResult
	Response DataCallResponse   // valid for EventDataCallResult
	List     []DataCallResponse // valid for EventListChanged
	Bound    bool               // valid for EventBindingChanged
	Allowed  bool               // valid for EventDataAllowedResult
	Status   ResultCode         // valid for EventDataAllowedResult
}
