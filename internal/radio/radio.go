// Package radio defines the Radio Facade contract: the modem-facing
// operations a Data Service Binding issues, and the value types that
// travel across that boundary.
package radio

import "fmt"

// Transport identifies which bearer a session or binding belongs to.
type Transport int

const (
	TransportWWAN Transport = iota
	TransportWLAN
)

func (t Transport) String() string {
	switch t {
	case TransportWWAN:
		return "wwan"
	case TransportWLAN:
		return "wlan"
	default:
		return fmt.Sprintf("transport(%d)", int(t))
	}
}

// AccessNetwork identifies the radio access technology reported by a
// qualified-networks verdict or a live session.
type AccessNetwork int

const (
	AccessNetworkUnknown AccessNetwork = iota
	AccessNetworkGERAN
	AccessNetworkUTRAN
	AccessNetworkEUTRAN
	AccessNetworkCDMA2000
	AccessNetworkNGRAN
	AccessNetworkIWLAN
)

func (a AccessNetwork) String() string {
	switch a {
	case AccessNetworkGERAN:
		return "GERAN"
	case AccessNetworkUTRAN:
		return "UTRAN"
	case AccessNetworkEUTRAN:
		return "EUTRAN"
	case AccessNetworkCDMA2000:
		return "CDMA2000"
	case AccessNetworkNGRAN:
		return "NGRAN"
	case AccessNetworkIWLAN:
		return "IWLAN"
	default:
		return "unknown"
	}
}

// ToTransport maps an access network to the transport that carries it,
// per the fixed table in §4.4: cellular RATs map to WWAN, IWLAN maps to WLAN.
func (a AccessNetwork) ToTransport() Transport {
	if a == AccessNetworkIWLAN {
		return TransportWLAN
	}
	return TransportWWAN
}

// Reason qualifies why a setup or teardown is being requested.
type Reason int

const (
	ReasonNormal Reason = iota
	ReasonHandover
	ReasonShutdown
)

func (r Reason) String() string {
	switch r {
	case ReasonHandover:
		return "handover"
	case ReasonShutdown:
		return "shutdown"
	default:
		return "normal"
	}
}

// ResultCode is the outcome of a modem operation.
type ResultCode int

const (
	Success ResultCode = iota
	ErrorInvalidArg
	ErrorIllegalState
	ErrorRadioNotAvailable
	ErrorUnsupported
)

func (r ResultCode) String() string {
	switch r {
	case Success:
		return "Success"
	case ErrorInvalidArg:
		return "ErrorInvalidArg"
	case ErrorIllegalState:
		return "ErrorIllegalState"
	case ErrorRadioNotAvailable:
		return "ErrorRadioNotAvailable"
	case ErrorUnsupported:
		return "ErrorUnsupported"
	default:
		return fmt.Sprintf("ResultCode(%d)", int(r))
	}
}

// LinkStatus is the liveness of a session's data path.
type LinkStatus int

const (
	LinkInactive LinkStatus = iota
	LinkDormant
	LinkActive
)

func (l LinkStatus) String() string {
	switch l {
	case LinkDormant:
		return "dormant"
	case LinkActive:
		return "active"
	default:
		return "inactive"
	}
}

// NeverRetry is the suggestedRetryMs sentinel meaning "permanent
// failure, do not retry" (spec.md's MAX_INT sentinel).
const NeverRetry = int64(1<<63 - 1)

// NoSuggestedRetry means the facade made no retry recommendation; the
// caller's own RetryManager decides.
const NoSuggestedRetry = int64(-1)

// Token correlates an outstanding modem operation with its completion.
// At most one result is ever delivered per token; duplicates are dropped.
type Token uint64

// DataCallResponse is the result of a setup or list-query operation.
// Invariant: Status == Success implies Ifname is non-empty.
type DataCallResponse struct {
	Status           ResultCode
	SuggestedRetryMs int64
	Cid              int
	LinkStatus       LinkStatus
	Type             string // IP family: "IP", "IPV6", "IPV4V6"
	Ifname           string
	Addresses        []string
	Dnses            []string
	Gateways         []string
	Pcscf            []string
	Mtu              int
}

// Valid reports whether the response honors the status/ifname invariant.
func (r DataCallResponse) Valid() bool {
	if r.Status == Success && r.Ifname == "" {
		return false
	}
	return true
}

// LinkProperties is the {ifname, addresses, DNS, routes, MTU, proxy}
// tuple describing a live session's network, used for handover
// carry-over and reconciliation comparisons.
type LinkProperties struct {
	Ifname    string
	Addresses []string
	Dnses     []string
	Gateways  []string
	Pcscf     []string
	Mtu       int
	HTTPProxy string
}

// FromResponse snapshots the link properties carried by a DataCallResponse.
func FromResponse(r DataCallResponse) LinkProperties {
	return LinkProperties{
		Ifname:    r.Ifname,
		Addresses: append([]string(nil), r.Addresses...),
		Dnses:     append([]string(nil), r.Dnses...),
		Gateways:  append([]string(nil), r.Gateways...),
		Pcscf:     append([]string(nil), r.Pcscf...),
		Mtu:       r.Mtu,
	}
}

// Equal reports whether two LinkProperties describe the same network state.
func (p LinkProperties) Equal(o LinkProperties) bool {
	if p.Ifname != o.Ifname || p.Mtu != o.Mtu || p.HTTPProxy != o.HTTPProxy {
		return false
	}
	return stringSliceEqual(p.Addresses, o.Addresses) &&
		stringSliceEqual(p.Dnses, o.Dnses) &&
		stringSliceEqual(p.Gateways, o.Gateways) &&
		stringSliceEqual(p.Pcscf, o.Pcscf)
}

// FamilyChanged reports whether the same IP family (v4 or v6) is
// present on both sides but with a different concrete address set —
// the DC-SM §4.2 signal that the family was removed and re-added, so
// an interface reset is required rather than an in-place link
// property update.
func (p LinkProperties) FamilyChanged(o LinkProperties) bool {
	oldByFamily := addressesByFamily(p.Addresses)
	newByFamily := addressesByFamily(o.Addresses)
	for f, oldAddrs := range oldByFamily {
		newAddrs, ok := newByFamily[f]
		if !ok {
			continue
		}
		if !stringSliceEqual(oldAddrs, newAddrs) {
			return true
		}
	}
	return false
}

func addressesByFamily(addrs []string) map[string][]string {
	out := map[string][]string{}
	for _, a := range addrs {
		f := family(a)
		out[f] = append(out[f], a)
	}
	return out
}

func family(addr string) string {
	for _, c := range addr {
		if c == ':' {
			return "v6"
		}
	}
	return "v4"
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := map[string]int{}
	for _, v := range a {
		seen[v]++
	}
	for _, v := range b {
		seen[v]--
	}
	for _, c := range seen {
		if c != 0 {
			return false
		}
	}
	return true
}
