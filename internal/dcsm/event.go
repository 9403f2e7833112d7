package dcsm

import (
	"github.com/radiocore/datad/internal/apn"
	"github.com/radiocore/datad/internal/radio"
)

// Event is the tagged union of messages a Session's event loop accepts.
// Each concrete type below satisfies it.
type Event interface {
	isEvent()
}

// Connect requests a transition from Inactive to Activating.
type Connect struct {
	Profile        apn.Profile
	Context        *apn.Context
	Reason         radio.Reason
	ExistingLink   *radio.LinkProperties // non-nil only for Reason=Handover
}

// DisconnectAll keeps an Inactive session Inactive, clearing its cid,
// link properties and retry alarm. Sessions in any other state ignore
// it; it issues no deactivate_data_call.
type DisconnectAll struct{}

// SetupComplete delivers the binding's response to a prior setup_data_call.
type SetupComplete struct {
	Token    radio.Token
	Response radio.DataCallResponse
}

// Disconnect requests a graceful teardown of an Active or Activating/Retrying session.
type Disconnect struct {
	Reason radio.Reason
}

// AlarmFired signals that a previously armed retry alarm has elapsed.
type AlarmFired struct {
	Generation uint64 // guards against a stale, already-cancelled alarm
}

// LostConnection signals that this session's cid is missing from a
// data_call_list_changed snapshot.
type LostConnection struct {
	Classification FailureClass
}

// LinkPropsChanged carries a reconciled link-properties update for an Active session.
type LinkPropsChanged struct {
	New    radio.LinkProperties
	Status radio.LinkStatus
}

// HandoverTo requests an Active session begin handing over to the
// given target transport.
type HandoverTo struct {
	Target   radio.Transport
	Fallback bool
}

// DeactivateComplete delivers the binding's response to deactivate_data_call.
type DeactivateComplete struct {
	Token    radio.Token
	Response radio.DataCallResponse
}

func (Connect) isEvent()             {}
func (DisconnectAll) isEvent()       {}
func (SetupComplete) isEvent()       {}
func (Disconnect) isEvent()          {}
func (AlarmFired) isEvent()          {}
func (LostConnection) isEvent()      {}
func (LinkPropsChanged) isEvent()    {}
func (HandoverTo) isEvent()          {}
func (DeactivateComplete) isEvent()  {}

// FailureClass is the §4.3/§7 classification of a lost or failed connection.
type FailureClass int

const (
	FailureTransient FailureClass = iota
	FailurePermanent
	FailureRadioRestart
)

func (f FailureClass) String() string {
	switch f {
	case FailurePermanent:
		return "permanent"
	case FailureRadioRestart:
		return "radio-restart"
	default:
		return "transient"
	}
}
