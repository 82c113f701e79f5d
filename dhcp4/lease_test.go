package dhcp4

import (
	"path/filepath"
	"testing"
	"time"
)

func TestNormalizeTimersInfiniteLease(t *testing.T) {
	l := &Lease{LeaseTime: 0xFFFFFFFF}
	l.NormalizeTimers()
	if l.RenewalTime != 0xFFFFFFFF || l.RebindTime != 0xFFFFFFFF {
		t.Errorf("infinite lease timers = %d/%d, want both 0xFFFFFFFF", l.RenewalTime, l.RebindTime)
	}
}

func TestNormalizeTimersClampsMinimum(t *testing.T) {
	l := &Lease{LeaseTime: 5}
	l.NormalizeTimers()
	if l.LeaseTime != DHCPMinLease {
		t.Errorf("LeaseTime = %d, want %d", l.LeaseTime, DHCPMinLease)
	}
}

func TestNormalizeTimersForcesRebindBelowLeaseTime(t *testing.T) {
	l := &Lease{LeaseTime: 3600, RebindTime: 4000, RenewalTime: 100}
	l.NormalizeTimers()
	if l.RebindTime != uint32(3600*t2Fraction) {
		t.Errorf("RebindTime = %d, want %d", l.RebindTime, uint32(3600*t2Fraction))
	}
}

func TestNormalizeTimersResetsRenewalAboveRebind(t *testing.T) {
	l := &Lease{LeaseTime: 3600, RebindTime: 1000, RenewalTime: 2000}
	l.NormalizeTimers()
	if l.RenewalTime != uint32(3600*t1Fraction) {
		t.Errorf("RenewalTime = %d, want %d", l.RenewalTime, uint32(3600*t1Fraction))
	}
}

func TestLeaseFileRoundTrip(t *testing.T) {
	opts := []byte{53, 1, 5, 255}
	m := buildTestMessage(ip2, opts)
	path := filepath.Join(t.TempDir(), "lease")

	if err := WriteLeaseFile(path, m); err != nil {
		t.Fatalf("WriteLeaseFile() error = %v", err)
	}
	read, mtime, err := ReadLeaseFile(path)
	if err != nil {
		t.Fatalf("ReadLeaseFile() error = %v", err)
	}
	if !read.HasCookie() {
		t.Errorf("read lease missing cookie")
	}
	if read.YIAddr() != ip2 {
		t.Errorf("YIAddr() = %s, want %s", read.YIAddr(), ip2)
	}
	if mtime.IsZero() {
		t.Errorf("mtime is zero")
	}

	if err := UnlinkLeaseFile(path); err != nil {
		t.Fatalf("UnlinkLeaseFile() error = %v", err)
	}
	if err := UnlinkLeaseFile(path); err != nil {
		t.Fatalf("UnlinkLeaseFile() of already-removed file error = %v, want nil", err)
	}
}

func TestRemainingTimersAdjustment(t *testing.T) {
	l := Lease{LeaseTime: 3600, RenewalTime: 1800, RebindTime: 3150}
	lease, renewal, rebind := l.RemainingTimers(600 * time.Second)
	if lease != 3000 || renewal != 1200 || rebind != 2550 {
		t.Errorf("RemainingTimers() = %d/%d/%d, want 3000/1200/2550", lease, renewal, rebind)
	}
}

func TestExpired(t *testing.T) {
	l := Lease{LeaseTime: 100}
	mtime := time.Unix(1000, 0)
	if !l.Expired(mtime, mtime.Add(200*time.Second)) {
		t.Errorf("Expired() = false, want true")
	}
	if l.Expired(mtime, mtime.Add(50*time.Second)) {
		t.Errorf("Expired() = true, want false")
	}
}

func TestDeriveNetworkFromClass(t *testing.T) {
	l := &Lease{Addr: ip2}
	l.DeriveNetwork()
	if l.Net.String() != "255.255.255.0" {
		t.Errorf("Net = %s, want 255.255.255.0", l.Net)
	}
	if l.Brd.String() != "192.168.1.255" {
		t.Errorf("Brd = %s, want 192.168.1.255", l.Brd)
	}
}
