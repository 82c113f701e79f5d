package client

import (
	"encoding/binary"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/lx-systems/dhcp4c/dhcp4"
	"github.com/lx-systems/dhcp4c/internal/eloop"
	"github.com/lx-systems/dhcp4c/internal/iface"
)

// fakeRaw records every frame sent through it and lets a test inject a
// reply by calling a client's Dispatch/PacketReceived directly.
type fakeRaw struct {
	mu   sync.Mutex
	sent [][]byte
}

func (f *fakeRaw) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	f.sent = append(f.sent, cp)
	return nil
}
func (f *fakeRaw) Recv(time.Time) ([]byte, bool, error) { return nil, false, nil }
func (f *fakeRaw) Close() error                         { return nil }

func (f *fakeRaw) last() dhcp4.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return dhcp4.Message(f.sent[len(f.sent)-1])
}

func (f *fakeRaw) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeKernel struct {
	mu      sync.Mutex
	applied netip.Addr
}

func (k *fakeKernel) Apply(ifaceName string, addr, mask, brd netip.Addr, gw []netip.Addr) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.applied = addr
	return nil
}
func (k *fakeKernel) Remove(string, netip.Addr) error { return nil }

type fakeScript struct {
	mu     sync.Mutex
	reason string
	env    map[string]string
}

func (s *fakeScript) Run(path, reason string, env map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reason = reason
	s.env = env
	return nil
}

func testConfig() *dhcp4.Config {
	mac, _ := net.ParseMAC("aa:bb:cc:dd:ee:ff")
	return &dhcp4.Config{
		HardwareAddr: mac,
		LeaseTime:    3600,
		BroadcastFlag: true,
	}
}

// buildServerReply constructs a minimal OFFER or ACK as a real server
// would emit it, mirroring the wire layout dhcp4.BuildMessage produces on
// the client side.
func buildServerReply(mt dhcp4.MessageType, xid uint32, chaddr net.HardwareAddr, yiaddr, server netip.Addr, leaseTime uint32) dhcp4.Message {
	var opts []byte
	put := func(code uint8, v []byte) {
		opts = append(opts, code, uint8(len(v)))
		opts = append(opts, v...)
	}
	put(dhcp4.OptionDHCPMessageType, []byte{uint8(mt)})
	var srv [4]byte
	a4 := server.As4()
	copy(srv[:], a4[:])
	put(dhcp4.OptionServerIdentifier, srv[:])
	var lt [4]byte
	binary.BigEndian.PutUint32(lt[:], leaseTime)
	put(dhcp4.OptionIPAddressLeaseTime, lt[:])
	var mask [4]byte
	copy(mask[:], net.IPv4(255, 255, 255, 0).To4())
	put(dhcp4.OptionSubnetMask, mask[:])
	opts = append(opts, dhcp4.OptionEnd)

	m := dhcp4.NewMessage(dhcp4.HeaderLen + len(opts))
	m.SetOp(dhcp4.BootReply)
	m.SetCHAddr(chaddr)
	m.SetXId(xid)
	m.SetYIAddr(yiaddr)
	m.SetCookie()
	copy(m.Options(), opts)
	return m
}

func newTestClient(t *testing.T, raw *fakeRaw, kernel *fakeKernel, script *fakeScript) *Client {
	t.Helper()
	loop := eloop.New()
	t.Cleanup(loop.Close)
	cfg := testConfig()
	return New("eth0", cfg, Collaborators{
		Raw:    raw,
		Kernel: kernel,
		Script: script,
	}, loop)
}

func TestHappyPathDiscoverToBound(t *testing.T) {
	raw := &fakeRaw{}
	kernel := &fakeKernel{}
	script := &fakeScript{}
	c := newTestClient(t, raw, kernel, script)

	c.Start()
	if c.state != StateDiscover {
		t.Fatalf("state = %v, want DISCOVER", c.state)
	}
	discover := raw.last()
	mt, err := c.Codec.MessageType(discover)
	if err != nil || mt != dhcp4.Discover {
		t.Fatalf("first send = %v (%v), want DISCOVER", mt, err)
	}

	offeredAddr := netip.MustParseAddr("192.168.1.50")
	server := netip.MustParseAddr("192.168.1.1")
	offer := buildServerReply(dhcp4.Offer, c.xid, c.Cfg.HardwareAddr, offeredAddr, server, 3600)
	c.PacketReceived(offer)

	if c.state != StateRequest {
		t.Fatalf("state after offer = %v, want REQUEST", c.state)
	}
	req := raw.last()
	mt, _ = c.Codec.MessageType(req)
	if mt != dhcp4.Request {
		t.Fatalf("second send = %v, want REQUEST", mt)
	}

	ack := buildServerReply(dhcp4.Ack, c.xid, c.Cfg.HardwareAddr, offeredAddr, server, 3600)
	c.PacketReceived(ack)

	if c.state != StateBound {
		t.Fatalf("state after ack = %v, want BOUND", c.state)
	}
	if c.cur == nil || c.cur.Addr != offeredAddr {
		t.Fatalf("cur lease addr = %v, want %v", c.cur, offeredAddr)
	}
	if kernel.applied != offeredAddr {
		t.Fatalf("kernel.applied = %v, want %v", kernel.applied, offeredAddr)
	}
	if script.reason != string(ReasonBound) {
		t.Fatalf("script.reason = %q, want BOUND", script.reason)
	}
}

func TestHandleOfferIgnoredOutsideDiscover(t *testing.T) {
	raw := &fakeRaw{}
	c := newTestClient(t, raw, &fakeKernel{}, &fakeScript{})
	c.state = StateBound
	before := raw.count()
	offer := buildServerReply(dhcp4.Offer, 1, c.Cfg.HardwareAddr, netip.MustParseAddr("10.0.0.5"), netip.MustParseAddr("10.0.0.1"), 3600)
	c.PacketReceived(offer)
	if raw.count() != before {
		t.Fatalf("offer in BOUND state triggered a send")
	}
}

func TestNakBackoffSequence(t *testing.T) {
	want := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 32 * time.Second, 60 * time.Second, 60 * time.Second,
	}
	var cur time.Duration
	for i, w := range want {
		cur = nextNakBackoff(cur)
		if cur != w {
			t.Fatalf("step %d: nextNakBackoff = %v, want %v", i, cur, w)
		}
	}
}

func TestRetransmitIntervalSequence(t *testing.T) {
	want := []time.Duration{
		4 * time.Second, 8 * time.Second, 16 * time.Second, 32 * time.Second,
		64 * time.Second, 64 * time.Second,
	}
	var cur time.Duration
	for i, w := range want {
		cur = nextRetransmitInterval(cur)
		if cur != w {
			t.Fatalf("step %d: nextRetransmitInterval = %v, want %v", i, cur, w)
		}
	}
}

func TestHandleNakDropsAndSchedulesRestart(t *testing.T) {
	raw := &fakeRaw{}
	c := newTestClient(t, raw, &fakeKernel{}, &fakeScript{})
	c.Start()
	c.state = StateRequest

	nak := buildServerReply(dhcp4.Nak, c.xid, c.Cfg.HardwareAddr, netip.Addr{}, netip.MustParseAddr("10.0.0.1"), 0)
	c.PacketReceived(nak)

	if c.state != StateInit {
		t.Fatalf("state after nak = %v, want INIT", c.state)
	}
	// First NAK restarts with zero delay (spec.md §8 scenario 5: 0,1,2,4,...);
	// only the advanced c.nakBackoff, used for the *next* NAK, is 1s.
	if c.nakBackoff != 1*time.Second {
		t.Fatalf("nakBackoff = %v, want 1s", c.nakBackoff)
	}
	c.Loop.Post(func() {})
	deadline := time.After(200 * time.Millisecond)
	for c.state == StateInit {
		select {
		case <-deadline:
			t.Fatalf("restart after nak did not fire promptly; state stuck at INIT")
		case <-time.After(time.Millisecond):
		}
	}
	if c.state != StateDiscover {
		t.Fatalf("state after nak restart = %v, want DISCOVER", c.state)
	}
}

func TestDispatchDropsWrongXID(t *testing.T) {
	raw := &fakeRaw{}
	c := newTestClient(t, raw, &fakeKernel{}, &fakeScript{})
	c.Start()

	offer := buildServerReply(dhcp4.Offer, c.xid+1, c.Cfg.HardwareAddr, netip.MustParseAddr("192.168.1.50"), netip.MustParseAddr("192.168.1.1"), 3600)
	c.Dispatch(DispatchConfig{}, offer, netip.MustParseAddr("192.168.1.1"), false)

	if c.state != StateDiscover {
		t.Fatalf("state = %v, want DISCOVER (offer with stale xid must be dropped)", c.state)
	}
}

func TestDispatchDropsWrongChaddr(t *testing.T) {
	raw := &fakeRaw{}
	c := newTestClient(t, raw, &fakeKernel{}, &fakeScript{})
	c.Start()

	other, _ := net.ParseMAC("11:22:33:44:55:66")
	offer := buildServerReply(dhcp4.Offer, c.xid, other, netip.MustParseAddr("192.168.1.50"), netip.MustParseAddr("192.168.1.1"), 3600)
	c.Dispatch(DispatchConfig{}, offer, netip.MustParseAddr("192.168.1.1"), false)

	if c.state != StateDiscover {
		t.Fatalf("state = %v, want DISCOVER (offer with wrong chaddr must be dropped)", c.state)
	}
}

func TestDispatchHonorsWhitelist(t *testing.T) {
	raw := &fakeRaw{}
	c := newTestClient(t, raw, &fakeKernel{}, &fakeScript{})
	c.Start()

	offer := buildServerReply(dhcp4.Offer, c.xid, c.Cfg.HardwareAddr, netip.MustParseAddr("192.168.1.50"), netip.MustParseAddr("192.168.1.1"), 3600)
	dc := DispatchConfig{Whitelist: []netip.Addr{netip.MustParseAddr("10.0.0.1")}}
	c.Dispatch(dc, offer, netip.MustParseAddr("192.168.1.1"), false)

	if c.state != StateDiscover {
		t.Fatalf("state = %v, want DISCOVER (source not in whitelist must be dropped)", c.state)
	}
}

func TestReleaseSendsAndDrops(t *testing.T) {
	raw := &fakeRaw{}
	c := newTestClient(t, raw, &fakeKernel{}, &fakeScript{})
	c.state = StateBound
	c.cur = &dhcp4.Lease{
		Addr:   netip.MustParseAddr("192.168.1.50"),
		Server: netip.MustParseAddr("192.168.1.1"),
		Cookie: true,
	}
	c.Release()

	if c.state != StateInit {
		t.Fatalf("state after release = %v, want INIT", c.state)
	}
	last := raw.last()
	mt, err := c.Codec.MessageType(last)
	if err != nil || mt != dhcp4.Release {
		t.Fatalf("release send = %v (%v), want RELEASE", mt, err)
	}
}

var _ iface.LinkInfo = (*fakeLink)(nil)

type fakeLink struct{}

func (fakeLink) MTU() (int, error)                    { return 1500, nil }
func (fakeLink) SetMTU(int) error                     { return nil }
func (fakeLink) HasAddress(netip.Addr) (bool, error)   { return false, nil }
func (fakeLink) HardwareAddr() net.HardwareAddr        { return nil }
func (fakeLink) CarrierUp() (bool, error)              { return true, nil }
