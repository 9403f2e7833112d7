// Package registry implements the Request Registry and the per-slot
// Dispatch State Machine that toggles the modem's "data allowed" gate
// before executing queued requests.
package registry

import (
	"errors"
	"fmt"

	"github.com/radiocore/datad/internal/apn"
)

// NetworkRequest is an immutable connectivity ask from the connectivity
// layer. The capability set must map 1:1 to a single ApnType.
type NetworkRequest struct {
	RequestID    string
	Capabilities []string
	Specifier    string
	Slot         int
	Score        int
}

var capabilityToApnType = map[string]apn.Type{
	"INTERNET":  apn.Default,
	"MMS":       apn.Mms,
	"SUPL":      apn.Supl,
	"DUN":       apn.Dun,
	"HIPRI":     apn.Hipri,
	"FOTA":      apn.Fota,
	"IMS":       apn.Ims,
	"CBS":       apn.Cbs,
	"IA":        apn.Ia,
	"EIMS":      apn.Emergency,
	"EMERGENCY": apn.Emergency,
}

// ErrMultipleCapabilities is returned when a request names more than
// one capability, since the capability-to-ApnType mapping is 1:1.
var ErrMultipleCapabilities = errors.New("registry: request names more than one capability")

// ErrUnknownCapability is returned for a capability with no known
// ApnType mapping.
var ErrUnknownCapability = errors.New("registry: unknown capability")

// resolveApnType maps a request's capability set to a single ApnType,
// rejecting anything but exactly one recognized capability.
func resolveApnType(req NetworkRequest) (apn.Type, error) {
	if len(req.Capabilities) != 1 {
		return 0, fmt.Errorf("%w: request %s names %d capabilities", ErrMultipleCapabilities, req.RequestID, len(req.Capabilities))
	}
	t, ok := capabilityToApnType[req.Capabilities[0]]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCapability, req.Capabilities[0])
	}
	return t, nil
}

// RequestInfo is the registry's bookkeeping entry for one NetworkRequest.
type RequestInfo struct {
	Request   NetworkRequest
	ApnType   apn.Type
	Priority  int
	Executed  bool
	LogBuffer []string
}

func (r *RequestInfo) logf(format string, args ...any) {
	r.LogBuffer = append(r.LogBuffer, fmt.Sprintf(format, args...))
	if len(r.LogBuffer) > 32 {
		r.LogBuffer = r.LogBuffer[len(r.LogBuffer)-32:]
	}
}
