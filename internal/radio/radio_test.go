package radio

import "testing"

func TestDataCallResponse_Valid(t *testing.T) {
	cases := []struct {
		name string
		resp DataCallResponse
		want bool
	}{
		{"success with ifname", DataCallResponse{Status: Success, Ifname: "rmnet0"}, true},
		{"success without ifname", DataCallResponse{Status: Success}, false},
		{"failure without ifname", DataCallResponse{Status: ErrorRadioNotAvailable}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.resp.Valid(); got != c.want {
				t.Errorf("Valid() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestLinkProperties_Equal(t *testing.T) {
	a := LinkProperties{Ifname: "rmnet0", Addresses: []string{"10.0.0.1"}, Dnses: []string{"8.8.8.8"}, Mtu: 1500}
	b := LinkProperties{Ifname: "rmnet0", Addresses: []string{"10.0.0.1"}, Dnses: []string{"8.8.8.8"}, Mtu: 1500}
	if !a.Equal(b) {
		t.Fatal("expected identical link properties to be equal")
	}

	c := b
	c.Mtu = 1280
	if a.Equal(c) {
		t.Fatal("expected differing MTU to break equality")
	}
}

func TestLinkProperties_Equal_OrderIndependent(t *testing.T) {
	a := LinkProperties{Ifname: "rmnet0", Addresses: []string{"10.0.0.1", "10.0.0.2"}}
	b := LinkProperties{Ifname: "rmnet0", Addresses: []string{"10.0.0.2", "10.0.0.1"}}
	if !a.Equal(b) {
		t.Fatal("expected address order to not affect equality")
	}
}

func TestLinkProperties_FamilyChanged(t *testing.T) {
	old := LinkProperties{Ifname: "rmnet0", Addresses: []string{"10.0.0.1"}}
	sameFamily := LinkProperties{Ifname: "rmnet0", Addresses: []string{"10.0.0.2"}}
	if !old.FamilyChanged(sameFamily) {
		t.Fatal("expected a changed v4 address within the same family to report FamilyChanged")
	}

	addedFamily := LinkProperties{Ifname: "rmnet0", Addresses: []string{"10.0.0.1", "fe80::1"}}
	if old.FamilyChanged(addedFamily) {
		t.Fatal("adding a new family without disturbing the existing one should not report FamilyChanged")
	}

	unchanged := LinkProperties{Ifname: "rmnet0", Addresses: []string{"10.0.0.1"}}
	if old.FamilyChanged(unchanged) {
		t.Fatal("identical addresses should not report FamilyChanged")
	}
}

func TestAccessNetwork_ToTransport(t *testing.T) {
	cases := map[AccessNetwork]Transport{
		AccessNetworkGERAN:    TransportWWAN,
		AccessNetworkUTRAN:    TransportWWAN,
		AccessNetworkEUTRAN:   TransportWWAN,
		AccessNetworkCDMA2000: TransportWWAN,
		AccessNetworkNGRAN:    TransportWWAN,
		AccessNetworkIWLAN:    TransportWLAN,
	}
	for an, want := range cases {
		if got := an.ToTransport(); got != want {
			t.Errorf("%s.ToTransport() = %s, want %s", an, got, want)
		}
	}
}
