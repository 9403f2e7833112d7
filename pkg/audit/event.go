// Package audit provides structured event logging for the data control
// plane: dispatch-state transitions, handover decisions and ref-count
// changes, so an operator can reconstruct why a session moved.
package audit

import (
	"fmt"
	"time"
)

// Event represents a single auditable engine event.
type Event struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Slot      int           `json:"slot"`
	Transport string        `json:"transport,omitempty"`
	Component string        `json:"component"` // "dcsm", "dcctrl", "transportmgr", "dispatch", "registry", "agent"
	Operation string        `json:"operation"` // e.g. "state_transition", "handover", "ref_count"
	FromState string        `json:"from_state,omitempty"`
	ToState   string        `json:"to_state,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// EventType categorizes audit events.
type EventType string

const (
	EventTypeStateTransition EventType = "state_transition"
	EventTypeHandover        EventType = "handover"
	EventTypeRefCount        EventType = "ref_count"
	EventTypeBindingChanged  EventType = "binding_changed"
	EventTypeDispatch        EventType = "dispatch"
)

// Severity indicates the importance of an audit event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Filter defines criteria for querying audit events.
type Filter struct {
	Slot        int
	Transport   string
	Component   string
	Operation   string
	StartTime   time.Time
	EndTime     time.Time
	SuccessOnly bool
	FailureOnly bool
	Limit       int
	Offset      int
}

// NewEvent creates a new audit event.
func NewEvent(slot int, component, operation string) *Event {
	return &Event{
		ID:        generateID(),
		Timestamp: time.Now(),
		Slot:      slot,
		Component: component,
		Operation: operation,
		Success:   true,
	}
}

// WithTransport sets the transport.
func (e *Event) WithTransport(transport string) *Event {
	e.Transport = transport
	return e
}

// WithTransition sets the from/to state pair for a state_transition event.
func (e *Event) WithTransition(from, to string) *Event {
	e.FromState = from
	e.ToState = to
	return e
}

// WithReason sets a free-text reason (e.g. the handover decision rationale).
func (e *Event) WithReason(reason string) *Event {
	e.Reason = reason
	return e
}

// WithError marks the event as failed.
func (e *Event) WithError(err error) *Event {
	e.Success = false
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithDuration sets the operation duration.
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}

func generateID() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
