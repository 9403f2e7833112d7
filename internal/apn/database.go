package apn

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// currentVersion is the database line format this package emits.
// Lines at lower versions (V1-V4) are accepted on read with missing
// trailing fields defaulted, matching the Android APN conf's
// backward-compatible evolution.
const currentVersion = 5

// fieldCounts gives the number of comma-separated fields following the
// version prefix for each historical version. A V5 line carries all 28
// fields; earlier versions omit a progressively larger trailing slice.
var fieldCounts = map[int]int{
	1: 19,
	2: 22,
	3: 24,
	4: 26,
	5: 28,
}

// LoadDatabase reads an APN database file and returns the parsed profiles.
// Blank lines and lines starting with "#" are skipped.
func LoadDatabase(path string) ([]Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("apn: opening database %s: %w", path, err)
	}
	defer f.Close()
	return ParseDatabase(f)
}

// ParseDatabase reads APN database lines from r.
func ParseDatabase(r io.Reader) ([]Profile, error) {
	var profiles []Profile
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p, err := ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("apn: line %d: %w", lineNo, err)
		}
		profiles = append(profiles, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("apn: reading database: %w", err)
	}
	return profiles, nil
}

// ParseLine parses a single versioned database line ("V1".."V5" prefix).
func ParseLine(line string) (Profile, error) {
	var version int
	rest := line
	switch {
	case strings.HasPrefix(line, "V1"):
		version, rest = 1, line[2:]
	case strings.HasPrefix(line, "V2"):
		version, rest = 2, line[2:]
	case strings.HasPrefix(line, "V3"):
		version, rest = 3, line[2:]
	case strings.HasPrefix(line, "V4"):
		version, rest = 4, line[2:]
	case strings.HasPrefix(line, "V5"):
		version, rest = 5, line[2:]
	default:
		return Profile{}, fmt.Errorf("apn: unrecognized version prefix in %q", line)
	}
	rest = strings.TrimPrefix(rest, ",")

	want := fieldCounts[version]
	fields := strings.SplitN(rest, ",", want)
	// Pad missing trailing fields for lower-versioned lines.
	for len(fields) < 28 {
		fields = append(fields, "")
	}

	get := func(i int) string {
		if i < len(fields) {
			return strings.TrimSpace(fields[i])
		}
		return ""
	}

	mcc := get(10)
	mnc := get(11)
	plmn, _ := strconv.Atoi(mcc + mnc)

	types, err := parseTypeList(get(13))
	if err != nil {
		return Profile{}, err
	}

	authType, _ := strconv.Atoi(defaultInt(get(12), "0"))
	carrierEnabled := get(16) == "" || parseBool(get(16), true)
	bearerBitmask, _ := strconv.ParseInt(defaultInt(get(17), "0"), 10, 64)
	profileID, _ := strconv.Atoi(defaultInt(get(18), "0"))
	modemCognitive := parseBool(get(19), false)
	maxConns, _ := strconv.Atoi(defaultInt(get(20), "0"))
	waitTime, _ := strconv.Atoi(defaultInt(get(21), "0"))
	maxConnsTime, _ := strconv.Atoi(defaultInt(get(22), "0"))
	mtu, _ := strconv.Atoi(defaultInt(get(23), "0"))
	networkTypeBitmask, _ := strconv.ParseInt(defaultInt(get(26), "0"), 10, 64)
	if networkTypeBitmask == 0 {
		networkTypeBitmask = bearerBitmask
	}
	apnSetID, _ := strconv.Atoi(defaultInt(get(27), "0"))

	return Profile{
		Carrier:            get(0),
		PlmnID:             plmn,
		Apn:                get(1),
		Proxy:              get(2),
		Port:               get(3),
		User:               get(4),
		Password:           get(5),
		MMSC:               get(7),
		MMSProxy:           get(8),
		MMSPort:            get(9),
		AuthType:           authType,
		SupportedTypes:     types,
		ProtocolHome:       defaultStr(get(14), "IP"),
		ProtocolRoaming:    defaultStr(get(15), "IP"),
		CarrierEnabled:     carrierEnabled,
		NetworkTypeBitmask: networkTypeBitmask,
		ModemProfileID:     profileID,
		ModemCognitive:     modemCognitive,
		MaxConns:           maxConns,
		WaitTimeSec:        waitTime,
		MaxConnsTimeS:      maxConnsTime,
		Mtu:                mtu,
		MvnoType:           MvnoMatchType(get(24)),
		MvnoMatchData:      get(25),
		ApnSetID:           apnSetID,
	}, nil
}

// Serialize renders p as a V5 database line.
func Serialize(p Profile) string {
	mcc, mnc := splitPlmn(p.PlmnID)
	fields := []string{
		p.Carrier,
		p.Apn,
		p.Proxy,
		p.Port,
		p.User,
		p.Password,
		"", // server: unused legacy field, always empty
		p.MMSC,
		p.MMSProxy,
		p.MMSPort,
		mcc,
		mnc,
		strconv.Itoa(p.AuthType),
		serializeTypeList(p.SupportedTypes),
		p.ProtocolHome,
		p.ProtocolRoaming,
		boolStr(p.CarrierEnabled),
		strconv.FormatInt(p.NetworkTypeBitmask, 10),
		strconv.Itoa(p.ModemProfileID),
		boolStr(p.ModemCognitive),
		strconv.Itoa(p.MaxConns),
		strconv.Itoa(p.WaitTimeSec),
		strconv.Itoa(p.MaxConnsTimeS),
		strconv.Itoa(p.Mtu),
		string(p.MvnoType),
		p.MvnoMatchData,
		strconv.FormatInt(p.NetworkTypeBitmask, 10),
		strconv.Itoa(p.ApnSetID),
	}
	return "V5," + strings.Join(fields, ",")
}

func parseTypeList(s string) (TypeSet, error) {
	if s == "" {
		return 0, nil
	}
	var set TypeSet
	for _, tok := range strings.Split(s, "|") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		t, err := ParseType(tok)
		if err != nil {
			return 0, err
		}
		set |= TypeSet(t)
	}
	return set, nil
}

func serializeTypeList(s TypeSet) string {
	var names []string
	for t, name := range typeNames {
		if s.Has(t) {
			names = append(names, name)
		}
	}
	// Deterministic order for round-trip-stable output.
	sortStrings(names)
	return strings.Join(names, "|")
}

func sortStrings(ss []string) {
	for i := 1; i < len(ss); i++ {
		for j := i; j > 0 && ss[j-1] > ss[j]; j-- {
			ss[j-1], ss[j] = ss[j], ss[j-1]
		}
	}
}

func splitPlmn(plmn int) (mcc, mnc string) {
	s := strconv.Itoa(plmn)
	if len(s) < 5 {
		return s, ""
	}
	return s[:3], s[3:]
}

func defaultStr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func defaultInt(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func parseBool(s string, def bool) bool {
	switch strings.ToLower(s) {
	case "1", "true":
		return true
	case "0", "false":
		return false
	default:
		return def
	}
}

func boolStr(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
