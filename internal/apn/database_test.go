package apn

import (
	"strings"
	"testing"
)

func TestParseLine_V5RoundTrip(t *testing.T) {
	p := Profile{
		Carrier:            "Test Carrier",
		PlmnID:             310410,
		Apn:                "internet",
		Proxy:              "",
		Port:               "",
		User:               "user",
		Password:           "pass",
		MMSC:               "http://mmsc.example.com",
		MMSProxy:           "10.0.0.5",
		MMSPort:            "80",
		AuthType:           3,
		SupportedTypes:     NewTypeSet(Default, Supl),
		ProtocolHome:       "IP",
		ProtocolRoaming:    "IPV4V6",
		CarrierEnabled:     true,
		NetworkTypeBitmask: 1 << 14,
		ModemProfileID:     1,
		ModemCognitive:     false,
		MaxConns:           4,
		WaitTimeSec:        0,
		MaxConnsTimeS:      600,
		Mtu:                1500,
		MvnoType:           MvnoSpn,
		MvnoMatchData:      "TestMVNO",
		ApnSetID:           -1,
	}

	line := Serialize(p)
	if !strings.HasPrefix(line, "V5,") {
		t.Fatalf("expected V5 prefix, got %q", line)
	}

	got, err := ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}

	if got != p {
		t.Fatalf("round trip mismatch:\n got: %+v\nwant: %+v", got, p)
	}
}

func TestParseLine_V1DefaultsTrailingFields(t *testing.T) {
	// V1 carries only through profileId; everything after defaults.
	line := "V1,Carrier,internet,,,,,,,,,310,410,0,default,IP,IP,1,0,0"
	p, err := ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if p.Apn != "internet" {
		t.Fatalf("Apn = %q, want internet", p.Apn)
	}
	if p.Mtu != 0 {
		t.Fatalf("Mtu = %d, want 0 (defaulted)", p.Mtu)
	}
	if !p.SupportedTypes.Has(Default) {
		t.Fatalf("expected Default type parsed from %q", line)
	}
}

func TestParseLine_RejectsUnknownVersion(t *testing.T) {
	if _, err := ParseLine("V9,bogus"); err == nil {
		t.Fatal("expected error for unknown version prefix")
	}
}

func TestParseDatabase_SkipsBlankAndCommentLines(t *testing.T) {
	input := strings.NewReader(`# comment
V5,Carrier,internet,,,,,,,,,310,410,0,default,IP,IP,1,0,0,0,0,0,0,1500,,,0,-1

V5,Carrier2,ims,,,,,,,,,310,410,0,ims,IP,IP,1,0,0,0,0,0,0,1500,,,0,-1
`)
	profiles, err := ParseDatabase(input)
	if err != nil {
		t.Fatalf("ParseDatabase: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(profiles))
	}
	if profiles[0].Apn != "internet" || profiles[1].Apn != "ims" {
		t.Fatalf("unexpected profiles: %+v", profiles)
	}
}
