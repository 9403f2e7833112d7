package util

import (
	"errors"
	"testing"
)

func TestModemErrorUnwrap(t *testing.T) {
	err := NewModemError("setup_data_call", 0, "ErrorRadioNotAvailable")
	if !errors.Is(err, ErrRadioNotAvailable) {
		t.Errorf("expected ModemError to unwrap to ErrRadioNotAvailable")
	}

	err2 := NewModemError("setup_data_call", 0, "ErrorInvalidArg")
	if !errors.Is(err2, ErrIllegalState) {
		t.Errorf("expected non-radio ModemError to unwrap to ErrIllegalState")
	}
}

func TestOwnershipError(t *testing.T) {
	err := &OwnershipError{AgentID: 1, Caller: 2, Owner: 3}
	if !errors.Is(err, ErrOwnershipMismatch) {
		t.Errorf("expected OwnershipError to unwrap to ErrOwnershipMismatch")
	}
	if err.Error() == "" {
		t.Errorf("expected non-empty error message")
	}
}

func TestProtocolError(t *testing.T) {
	err := NewProtocolError(42, "setup_data_call")
	if !errors.Is(err, ErrStaleToken) {
		t.Errorf("expected ProtocolError to unwrap to ErrStaleToken")
	}
}
