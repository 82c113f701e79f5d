// Package client implements the DHCPv4 protocol state machine: one
// instance per interface, driving DISCOVER/OFFER/REQUEST/ACK/NAK/RENEW/
// REBIND/RELEASE/DECLINE/INFORM/REBOOT transitions and their timers
// (spec.md §4.2). It consumes the dhcp4 package's codec, message builder
// and lease record, and the external collaborators defined in
// internal/iface and internal/eloop.
package client

import (
	"crypto/rand"
	"math/big"
	mathrand "math/rand"
	"net/netip"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/lx-systems/dhcp4c/dhcp4"
	"github.com/lx-systems/dhcp4c/internal/eloop"
	"github.com/lx-systems/dhcp4c/internal/iface"
)

// State is one of the interface session states of spec.md §3.
type State int

const (
	StateInit State = iota
	StateDiscover
	StateRequest
	StateBound
	StateRenew
	StateRebind
	StateReboot
	StateInform
	StateProbe
	StateStatic
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateDiscover:
		return "DISCOVER"
	case StateRequest:
		return "REQUEST"
	case StateBound:
		return "BOUND"
	case StateRenew:
		return "RENEW"
	case StateRebind:
		return "REBIND"
	case StateReboot:
		return "REBOOT"
	case StateInform:
		return "INFORM"
	case StateProbe:
		return "PROBE"
	case StateStatic:
		return "STATIC"
	default:
		return "UNKNOWN"
	}
}

// Reason is the human-readable transition label exported to the script
// environment (spec.md §6).
type Reason string

const (
	ReasonBound    Reason = "BOUND"
	ReasonRenew    Reason = "RENEW"
	ReasonRebind   Reason = "REBIND"
	ReasonReboot   Reason = "REBOOT"
	ReasonStatic   Reason = "STATIC"
	ReasonInform   Reason = "INFORM"
	ReasonIPv4LL   Reason = "IPV4LL"
	ReasonExpire   Reason = "EXPIRE"
	ReasonNak      Reason = "NAK"
	ReasonFail     Reason = "FAIL"
	ReasonRelease  Reason = "RELEASE"
	ReasonThirdPty Reason = "3RDPARTY"
	ReasonTimeout  Reason = "TIMEOUT"
	ReasonTest     Reason = "TEST"
)

// Collaborators bundles the external collaborators a Client is wired to.
type Collaborators struct {
	Raw    iface.RawSocket
	UDP    func(local netip.Addr) (iface.UDPSocket, error)
	Link   iface.LinkInfo
	Kernel iface.KernelApplier
	ARP    iface.ARPProber
	Script iface.ScriptRunner
}

// Client is one protocol state machine instance, bound to a single
// interface (spec.md §4.2).
type Client struct {
	IfaceName string
	Cfg       *dhcp4.Config
	Codec     *dhcp4.Codec
	Loop      *eloop.Loop
	Collab    Collaborators

	state State
	xid   uint32
	start time.Time

	retransmitInterval time.Duration
	nakBackoff         time.Duration

	offer    *dhcp4.Lease
	offerMsg dhcp4.Message
	cur      *dhcp4.Lease
	prev     *dhcp4.Lease

	udp iface.UDPSocket

	rebootDeadline time.Time
	testDone       chan Reason
}

// New constructs a Client ready for Start.
func New(ifaceName string, cfg *dhcp4.Config, collab Collaborators, loop *eloop.Loop) *Client {
	return &Client{
		IfaceName: ifaceName,
		Cfg:       cfg,
		Codec:     dhcp4.NewCodec(),
		Loop:      loop,
		Collab:    collab,
		state:     StateInit,
		start:     time.Now(),
	}
}

// newXID picks a per-transaction identifier. A cryptographically random
// value is used, with math/rand as the fallback if crypto/rand fails. The
// xid is never derived from the hardware address.
func newXID() uint32 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<32))
	if err != nil {
		return mathrand.Uint32()
	}
	return uint32(n.Uint64())
}

func (c *Client) log() *log.Entry {
	return log.WithFields(log.Fields{"iface": c.IfaceName, "state": c.state.String()})
}

// Start begins acquisition: REBOOT if a valid cached lease exists, else
// DISCOVER (spec.md §4.2).
func (c *Client) Start() {
	c.Loop.DeleteAllTimeouts(c.IfaceName)
	c.ensureMTU()

	if c.prev != nil && c.prev.Addr.IsValid() && !c.prev.Expired(c.prev.LeasedFrom, time.Now()) {
		c.startReboot()
		return
	}
	c.startDiscover()
}

// ensureMTU raises the interface MTU to MTUMin before the first send when
// it is below MTUMin, the smallest Maximum-Message-Size the builder
// advertises (spec.md §4.1).
func (c *Client) ensureMTU() {
	if c.Collab.Link == nil {
		return
	}
	mtu, err := c.Collab.Link.MTU()
	if err != nil || mtu >= dhcp4.MTUMin {
		return
	}
	if err := c.Collab.Link.SetMTU(dhcp4.MTUMin); err != nil {
		c.log().WithError(err).Warn("dhcp4: raise mtu failed")
	}
}

// Inform runs the INFORM flow for an externally configured address,
// binding with an infinite lease time on ACK (spec.md §4.2).
func (c *Client) Inform(addr netip.Addr) {
	c.Loop.DeleteAllTimeouts(c.IfaceName)
	c.ensureMTU()
	c.state = StateInform
	c.xid = newXID()
	c.offer = &dhcp4.Lease{Addr: addr, Cookie: true}
	c.retransmitInterval = 0
	c.sendAndScheduleRetransmit(dhcp4.Inform, dhcp4.BuildParams{
		XId: c.xid, CIAddr: addr, HaveAddr: true,
	}, eloop.TagRequest)
}

// Release emits one RELEASE and tears down, per spec.md §4.2.
func (c *Client) Release() {
	if c.state != StateBound || c.cur == nil || !c.cur.Cookie {
		c.Drop(ReasonRelease)
		return
	}
	xid := newXID()
	m := dhcp4.BuildMessage(c.Cfg, dhcp4.Release, dhcp4.BuildParams{
		XId: xid, CIAddr: c.cur.Addr, HaveAddr: true, Offer: c.cur,
	})
	if err := c.send(m); err != nil {
		c.log().WithError(err).Warn("dhcp4: release send failed")
	}
	time.Sleep(dhcp4.ReleaseDelay)
	c.Drop(ReasonRelease)
	_ = dhcp4.UnlinkLeaseFile(c.Cfg.LeasePath)
}

// Drop cancels all timers, runs the script hook with reason, forgets the
// current lease, and closes the unicast UDP socket (the raw socket is left
// as it is).
func (c *Client) Drop(reason Reason) {
	c.Loop.DeleteAllTimeouts(c.IfaceName)
	if c.udp != nil {
		c.udp.Close()
		c.udp = nil
	}
	if c.Collab.Script != nil {
		env := map[string]string{}
		if c.cur != nil {
			env = scriptEnv(c.cur)
		}
		if err := c.Collab.Script.Run(c.Cfg.ScriptPath, string(reason), env); err != nil {
			c.log().WithError(err).Warn("dhcp4: script failed")
		}
	}
	c.cur = nil
	c.offer = nil
	c.state = StateInit
	c.log().WithField("reason", reason).Info("dhcp4: dropped")
}

// LinkDown cancels renew/rebind/expire timers but keeps the lease, so a
// later LinkUp triggers REBOOT instead of a fresh DISCOVER.
func (c *Client) LinkDown() {
	c.Loop.DeleteTimeouts(c.IfaceName, eloop.TagRenew)
	c.Loop.DeleteTimeouts(c.IfaceName, eloop.TagRebind)
	c.Loop.DeleteTimeouts(c.IfaceName, eloop.TagExpire)
	if c.cur != nil {
		c.prev = c.cur
	}
}

// LinkUp restarts acquisition.
func (c *Client) LinkUp() {
	c.Start()
}

func (c *Client) send(m dhcp4.Message) error {
	if c.state == StateRenew && c.udp != nil && c.cur != nil {
		return c.udp.SendTo(c.cur.Server, m)
	}
	return c.Collab.Raw.Send(m)
}
