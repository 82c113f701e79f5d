package dhcp4

import (
	"net"
	"net/netip"
	"testing"
)

var (
	mac0 = net.HardwareAddr{0x02, 0xaa, 0xbb, 0xcc, 0xdd, 0xee}
	ip1  = netip.MustParseAddr("192.168.1.1")
	ip2  = netip.MustParseAddr("192.168.1.50")
)

func TestMessageHeaderFields(t *testing.T) {
	m := NewMessage(MaxMessageLen)
	m.SetOp(BootRequest)
	m.SetHType(1)
	m.SetCHAddr(mac0)
	m.SetXId(0x01020304)
	m.SetCookie()
	m.SetCIAddr(ip1)
	m.SetYIAddr(ip2)
	m.SetFlags(FlagBroadcast)

	if err := m.IsValid(); err != nil {
		t.Fatalf("IsValid() = %v", err)
	}
	if !m.HasCookie() {
		t.Fatalf("HasCookie() = false, want true")
	}
	if got := m.Op(); got != BootRequest {
		t.Errorf("Op() = %d, want %d", got, BootRequest)
	}
	if got := m.CHAddr(); got.String() != mac0.String() {
		t.Errorf("CHAddr() = %s, want %s", got, mac0)
	}
	if got := m.CIAddr(); got != ip1 {
		t.Errorf("CIAddr() = %s, want %s", got, ip1)
	}
	if got := m.YIAddr(); got != ip2 {
		t.Errorf("YIAddr() = %s, want %s", got, ip2)
	}
	if !m.Broadcast() {
		t.Errorf("Broadcast() = false, want true")
	}
}

func TestMessageIsValidRejectsShort(t *testing.T) {
	m := Message(make([]byte, 10))
	if err := m.IsValid(); err == nil {
		t.Fatalf("IsValid() = nil, want error")
	}
}

func TestMessageHasCookieFalseForBOOTP(t *testing.T) {
	m := NewMessage(MaxMessageLen)
	if m.HasCookie() {
		t.Fatalf("HasCookie() = true, want false for zeroed message")
	}
}
