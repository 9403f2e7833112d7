// Package util provides logging and common error types shared across the engine.
package util

import (
	"errors"
	"fmt"
)

// Sentinel errors for the error taxonomy in the core's failure-classification
// table: transient/permanent/radio-restart setup errors, binding errors,
// ownership errors and protocol errors.
var (
	ErrIllegalState         = errors.New("illegal state")
	ErrRadioNotAvailable    = errors.New("radio not available")
	ErrNotConnected         = errors.New("binding not connected")
	ErrUnsupportedApnType   = errors.New("apn type unsupported by profile")
	ErrMultipleCapabilities = errors.New("request has more than one capability")
	ErrOwnershipMismatch    = errors.New("caller is not the current owner")
	ErrStaleToken           = errors.New("response token does not match any outstanding operation")
	ErrStaleSequence        = errors.New("response sequence number is stale")
	ErrPermanentlyFailed    = errors.New("profile permanently failed, external trigger required")
	ErrNotFound             = errors.New("not found")
	ErrAlreadyExists        = errors.New("already exists")
)

// ModemError wraps a modem result code with the operation and slot it
// occurred on. Upper layers never see the underlying transport error,
// only the operation's result code (spec §7 propagation policy).
type ModemError struct {
	Operation string
	Slot      int
	Code      string // ResultCode.String()
}

func (e *ModemError) Error() string {
	return fmt.Sprintf("modem op %s on slot %d failed: %s", e.Operation, e.Slot, e.Code)
}

func (e *ModemError) Unwrap() error {
	if e.Code == "ErrorRadioNotAvailable" {
		return ErrRadioNotAvailable
	}
	return ErrIllegalState
}

// NewModemError creates a ModemError.
func NewModemError(operation string, slot int, code string) *ModemError {
	return &ModemError{Operation: operation, Slot: slot, Code: code}
}

// OwnershipError is raised when an operation arrives on a Network Agent
// whose current owner is not the caller (spec §7 "ownership error").
type OwnershipError struct {
	AgentID int
	Caller  int
	Owner   int
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("agent %d: caller %d is not current owner %d", e.AgentID, e.Caller, e.Owner)
}

func (e *OwnershipError) Unwrap() error {
	return ErrOwnershipMismatch
}

// ProtocolError is raised when a completion arrives with a token that
// does not match any outstanding operation (spec §7 "protocol error").
type ProtocolError struct {
	Token  uint64
	Detail string
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("protocol error: unmatched token %d", e.Token)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return ErrStaleToken
}

// NewProtocolError creates a ProtocolError.
func NewProtocolError(token uint64, detail string) *ProtocolError {
	return &ProtocolError{Token: token, Detail: detail}
}
