package dhcp4

import (
	"fmt"
	"net/netip"
	"os"
	"time"
)

// Lease is the in-memory representation of an acquired address, plus the
// fields needed to persist and restore it across process restarts
// (spec.md §3).
type Lease struct {
	Addr    netip.Addr
	Net     netip.Addr // mask
	Brd     netip.Addr // broadcast
	Server  netip.Addr

	LeaseTime    uint32
	RenewalTime  uint32
	RebindTime   uint32

	Cookie     bool
	LeasedFrom time.Time
	BoundTime  time.Time // monotonic reference, start of the lease clock
	FromInfo   bool      // true when adopted from a cached/persisted file, not a fresh ACK
}

// NormalizeTimers enforces the invariants of spec.md §3 on a freshly
// adopted lease: leasetime is clamped to DHCPMinLease, renewal/rebind are
// derived or corrected against T1/T2, and infinite leases collapse all
// three timers together.
func (l *Lease) NormalizeTimers() {
	if l.LeaseTime == 0xFFFFFFFF {
		l.RenewalTime = l.LeaseTime
		l.RebindTime = l.LeaseTime
		return
	}

	if l.LeaseTime < DHCPMinLease {
		l.LeaseTime = DHCPMinLease
	}

	if l.RebindTime == 0 || l.RebindTime >= l.LeaseTime {
		l.RebindTime = uint32(float64(l.LeaseTime) * t2Fraction)
	}
	if l.RenewalTime == 0 || l.RenewalTime > l.RebindTime {
		l.RenewalTime = uint32(float64(l.LeaseTime) * t1Fraction)
	}
}

// DeriveNetwork fills in Net and Brd when the server omitted the subnet
// mask / broadcast address options, following §4.1's class-derivation and
// §3's broadcast-from-mask rule.
func (l *Lease) DeriveNetwork() {
	if !l.Net.IsValid() {
		l.Net = RouteNetmask(l.Addr)
	}
	if !l.Brd.IsValid() {
		a := l.Addr.As4()
		m := l.Net.As4()
		var b [4]byte
		for i := range b {
			b[i] = a[i] | ^m[i]
		}
		l.Brd = netip.AddrFrom4(b)
	}
}

// LeaseFromMessage builds a Lease from a parsed ACK/offer message using c
// to decode its options. now is the reference time used for LeasedFrom and
// BoundTime.
func LeaseFromMessage(c *Codec, m Message, now time.Time) (*Lease, error) {
	l := &Lease{
		Addr:       m.YIAddr(),
		Cookie:     m.HasCookie(),
		LeasedFrom: now,
		BoundTime:  now,
	}

	if mask, err := c.Addr(m, OptionSubnetMask); err == nil {
		l.Net = mask
	}
	if brd, err := c.Addr(m, OptionBroadcastAddr); err == nil {
		l.Brd = brd
	}
	if srv, err := c.Addr(m, OptionServerIdentifier); err == nil {
		l.Server = srv
	} else {
		l.Server = netip.IPv4Unspecified()
	}
	if lt, err := c.Uint32(m, OptionIPAddressLeaseTime); err == nil {
		l.LeaseTime = lt
	}
	if rt, err := c.Uint32(m, OptionRenewalTime); err == nil {
		l.RenewalTime = rt
	}
	if rb, err := c.Uint32(m, OptionRebindingTime); err == nil {
		l.RebindTime = rb
	}

	l.NormalizeTimers()
	l.DeriveNetwork()
	return l, nil
}

// RemainingTimers returns the three lease timers decreased by elapsed
// seconds, used when adopting a persisted lease file after a restart
// (spec.md §4.4, scenario 6). It does not mutate l.
func (l Lease) RemainingTimers(elapsed time.Duration) (leaseTime, renewal, rebind uint32) {
	if l.LeaseTime == 0xFFFFFFFF {
		return l.LeaseTime, l.RenewalTime, l.RebindTime
	}
	sub := uint32(elapsed / time.Second)
	dec := func(v uint32) uint32 {
		if sub >= v {
			return 0
		}
		return v - sub
	}
	return dec(l.LeaseTime), dec(l.RenewalTime), dec(l.RebindTime)
}

// Expired reports whether, measured from mtime, the lease's total
// leasetime has already elapsed by now.
func (l Lease) Expired(mtime, now time.Time) bool {
	if l.LeaseTime == 0xFFFFFFFF {
		return false
	}
	return mtime.Add(time.Duration(l.LeaseTime) * time.Second).Before(now)
}

// WriteLeaseFile persists the on-wire message bytes from offset 0 through
// the END option, inclusive (spec.md §4.4). It does not check for the magic
// cookie itself: bind calls it only for DHCP leases and unlinks any
// existing file for a BOOTP lease instead.
func WriteLeaseFile(path string, m Message) error {
	end := leaseWireLen(m)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0444)
	if err != nil {
		return fmt.Errorf("write lease %s: %w", path, ErrIO)
	}
	defer f.Close()
	if _, err := f.Write(m[:end]); err != nil {
		return fmt.Errorf("write lease %s: %w", path, ErrIO)
	}
	return nil
}

// leaseWireLen returns the offset one past the first END option found in
// m's options area, or len(m) if none is found (defensive: a well-formed
// ACK always carries one).
func leaseWireLen(m Message) int {
	opts := m.Options()
	i := 0
	for i < len(opts) {
		code := opts[i]
		if code == OptionEnd {
			return offOpts + i + 1
		}
		if code == OptionPad {
			i++
			continue
		}
		if i+1 >= len(opts) {
			break
		}
		length := int(opts[i+1])
		i += 2 + length
	}
	return len(m)
}

// ReadLeaseFile reads a persisted lease back into a fixed-capacity
// message buffer, tolerating a short read — callers re-validate via the
// codec (spec.md §4.4).
func ReadLeaseFile(path string) (Message, time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read lease %s: %w", path, ErrIO)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read lease %s: %w", path, ErrIO)
	}
	defer f.Close()

	buf := NewMessage(MaxMessageLen)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return nil, time.Time{}, fmt.Errorf("read lease %s: %w", path, ErrIO)
	}
	return buf[:cap(buf)], info.ModTime(), nil
}

// UnlinkLeaseFile removes a persisted lease file, ignoring a
// not-exist error (the common case of releasing an already-clean state).
func UnlinkLeaseFile(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("unlink lease %s: %w", path, ErrIO)
	}
	return nil
}
