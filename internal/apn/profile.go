package apn

// MvnoMatchType identifies how an MVNO-specific profile is matched
// against the active subscription, as carried in the database's
// mvnoType/mvnoMatchData field pair.
type MvnoMatchType string

const (
	MvnoNone  MvnoMatchType = ""
	MvnoSpn   MvnoMatchType = "spn"
	MvnoImsi  MvnoMatchType = "imsi"
	MvnoGid   MvnoMatchType = "gid"
	MvnoIccid MvnoMatchType = "iccid"
)

// Profile is an immutable APN configuration, as loaded from the APN
// database or pushed by carrier config. All fields are read-only after
// construction; call sites that need a variant build a new Profile.
type Profile struct {
	Carrier string // display name, the line format's leading field
	PlmnID  int    // numeric PLMN id (MCC+MNC concatenated)
	Apn     string

	Proxy string
	Port  string

	MMSC     string
	MMSProxy string
	MMSPort  string

	User     string
	Password string
	AuthType int // 0=none 1=PAP 2=CHAP 3=PAP-or-CHAP

	SupportedTypes TypeSet

	ProtocolHome    string // "IP", "IPV6", "IPV4V6"
	ProtocolRoaming string

	CarrierEnabled     bool
	NetworkTypeBitmask int64

	ModemProfileID int
	ModemCognitive bool
	MaxConns       int
	WaitTimeSec    int
	MaxConnsTimeS  int
	Mtu            int

	MvnoType      MvnoMatchType
	MvnoMatchData string

	ApnSetID int
}

// CanHandle reports whether this profile can serve a session of apn
// type t, per the §3 matching invariant.
func (p Profile) CanHandle(t Type) bool {
	return p.SupportedTypes.CanHandle(t)
}

// Protocol returns the IP protocol to request for the given roaming state.
func (p Profile) Protocol(roaming bool) string {
	if roaming && p.ProtocolRoaming != "" {
		return p.ProtocolRoaming
	}
	return p.ProtocolHome
}
