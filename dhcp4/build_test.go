package dhcp4

import (
	"net/netip"
	"testing"
)

func TestBuildMessageDiscoverRoundTrip(t *testing.T) {
	cfg := &Config{
		HardwareAddr:  mac0,
		Hostname:      "host.example",
		RequestedAddr: netip.MustParseAddr("10.0.0.5"),
		BroadcastFlag: true,
	}
	m := BuildMessage(cfg, Discover, BuildParams{XId: 0xdeadbeef})

	if err := m.IsValid(); err != nil {
		t.Fatalf("IsValid() = %v", err)
	}
	if !m.HasCookie() {
		t.Fatalf("HasCookie() = false")
	}

	c := NewCodec()
	mt, err := c.MessageType(m)
	if err != nil || mt != Discover {
		t.Fatalf("MessageType() = %v, %v, want Discover", mt, err)
	}
	addr, err := c.Addr(m, OptionRequestedIPAddress)
	if err != nil || addr.String() != "10.0.0.5" {
		t.Fatalf("Addr(RequestedIP) = %v, %v, want 10.0.0.5", addr, err)
	}
	host, err := c.GetOption(m, OptionHostName)
	if err != nil || string(host) != "host" {
		t.Fatalf("GetOption(HostName) = %q, %v, want %q", host, err, "host")
	}
	prl, err := c.GetOption(m, OptionParameterRequestList)
	if err != nil {
		t.Fatalf("GetOption(PRL) error = %v", err)
	}
	wantCodes := []uint8{1, 3, 6, 12, 15, 28, 51, 54, 58, 59, 119, 121}
	for _, code := range wantCodes {
		if !containsByte(prl, code) {
			t.Errorf("PRL %v missing code %d", prl, code)
		}
	}
}

func TestBuildMessageRequestIncludesOfferedAddrAndServer(t *testing.T) {
	cfg := &Config{HardwareAddr: mac0}
	offer := &Lease{Addr: netip.MustParseAddr("192.168.1.50"), Server: netip.MustParseAddr("192.168.1.1"), Cookie: true}
	m := BuildMessage(cfg, Request, BuildParams{XId: 1, Offer: offer})

	c := NewCodec()
	addr, err := c.Addr(m, OptionRequestedIPAddress)
	if err != nil || addr != offer.Addr {
		t.Fatalf("Addr(RequestedIP) = %v, %v, want %s", addr, err, offer.Addr)
	}
	server, err := c.Addr(m, OptionServerIdentifier)
	if err != nil || server != offer.Server {
		t.Fatalf("Addr(ServerIdentifier) = %v, %v, want %s", server, err, offer.Server)
	}
}

func TestBuildMessageDeclineSetsMessage(t *testing.T) {
	cfg := &Config{HardwareAddr: mac0}
	m := BuildMessage(cfg, Decline, BuildParams{XId: 1})
	c := NewCodec()
	msg, err := c.GetOption(m, OptionMessage)
	if err != nil || string(msg) != "Duplicate address detected" {
		t.Fatalf("GetOption(Message) = %q, %v", msg, err)
	}
}

func TestBuildMessageReleaseOnlyHasServerID(t *testing.T) {
	cfg := &Config{HardwareAddr: mac0}
	offer := &Lease{Server: netip.MustParseAddr("192.168.1.1")}
	m := BuildMessage(cfg, Release, BuildParams{XId: 1, Offer: offer})
	c := NewCodec()
	if _, err := c.GetOption(m, OptionHostName); err == nil {
		t.Fatalf("GetOption(HostName) on RELEASE = no error, want ErrNotFound")
	}
	server, err := c.Addr(m, OptionServerIdentifier)
	if err != nil || server != offer.Server {
		t.Fatalf("Addr(ServerIdentifier) = %v, %v", server, err)
	}
}

func containsByte(s []byte, b byte) bool {
	for _, v := range s {
		if v == b {
			return true
		}
	}
	return false
}
