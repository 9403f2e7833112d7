// Package dcsm implements the Data Connection State Machine: one
// instance per packet-data session, owning setup, teardown, retry and
// handover for that session's lifetime.
package dcsm

import "fmt"

// State is a DC-SM lifecycle state.
type State int

const (
	Inactive State = iota
	Activating
	Retrying
	Active
	Disconnecting
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "Inactive"
	case Activating:
		return "Activating"
	case Retrying:
		return "Retrying"
	case Active:
		return "Active"
	case Disconnecting:
		return "Disconnecting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
