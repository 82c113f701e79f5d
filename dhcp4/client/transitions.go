package client

import (
	"fmt"
	"math/rand"
	"net/netip"
	"time"

	"github.com/irai/packet/fastlog"

	"github.com/lx-systems/dhcp4c/dhcp4"
	"github.com/lx-systems/dhcp4c/internal/eloop"
)

// nextRetransmitInterval doubles interval, capped at the retransmission
// ceiling, per spec.md §4.2 and the exact sequence 4,8,16,32,64,64,... of §8.
func nextRetransmitInterval(cur time.Duration) time.Duration {
	if cur == 0 {
		return 4 * time.Second
	}
	next := cur * 2
	if next > 64*time.Second {
		return 64 * time.Second
	}
	return next
}

// jitter returns a random offset in [-1s, 1s).
func jitter() time.Duration {
	return time.Duration(rand.Int63n(int64(2*time.Second))) - time.Second
}

// nextNakBackoff advances the NAK backoff sequence 0,1,2,4,8,16,32,60,60,...
func nextNakBackoff(cur time.Duration) time.Duration {
	if cur == 0 {
		return 1 * time.Second
	}
	next := cur * 2
	if next > 60*time.Second {
		return 60 * time.Second
	}
	return next
}

func (c *Client) startDiscover() {
	c.state = StateDiscover
	c.xid = newXID()
	c.retransmitInterval = 0
	c.offer = nil
	c.sendAndScheduleRetransmit(dhcp4.Discover, dhcp4.BuildParams{XId: c.xid}, eloop.TagDiscover)
}

func (c *Client) startReboot() {
	c.state = StateReboot
	c.xid = newXID()
	c.retransmitInterval = 0
	c.rebootDeadline = time.Now().Add(c.Cfg.RebootDuration)
	c.offer = c.prev
	c.sendAndScheduleRetransmit(dhcp4.Request, dhcp4.BuildParams{
		XId: c.xid, Offer: c.prev,
	}, eloop.TagRequest)
}

// sendAndScheduleRetransmit builds and sends mt, then schedules a retry at
// the next backoff interval under tag (spec.md §4.2 retransmission rule).
// DISCOVER, REQUEST and INFORM retransmit this way; RENEW/REBIND call it
// too since they are REQUEST-family sends.
func (c *Client) sendAndScheduleRetransmit(mt dhcp4.MessageType, p dhcp4.BuildParams, tag eloop.Tag) {
	m := dhcp4.BuildMessage(c.Cfg, mt, p)
	if err := c.send(m); err != nil {
		c.log().WithError(err).Warn("dhcp4: send failed")
		c.Drop(ReasonFail)
		return
	}
	fastlog.NewLine(module, "packet sent").ByteArray("xid", m.XId()).String("type", mt.String()).Write()

	c.retransmitInterval = nextRetransmitInterval(c.retransmitInterval)
	delay := c.retransmitInterval + jitter()

	if c.state == StateReboot && time.Now().Add(delay).After(c.rebootDeadline) {
		c.Loop.Post(c.startDiscover)
		return
	}

	c.Loop.AddTimeout(c.IfaceName, tag, delay, func() {
		c.sendAndScheduleRetransmit(mt, p, tag)
	})
}

// PacketReceived is the dispatcher's entry point into the state machine
// (spec.md §4.3 step 7): m has already passed framing, cookie, xid and
// chaddr validation.
func (c *Client) PacketReceived(m dhcp4.Message) {
	mt, err := c.Codec.MessageType(m)
	if err != nil {
		c.log().WithError(err).Warn("dhcp4: invalid message type option")
		return
	}

	if mt != dhcp4.Nak {
		c.nakBackoff = 0
	}

	switch mt {
	case dhcp4.Offer:
		c.handleOffer(m)
	case dhcp4.Ack:
		c.handleAck(m)
	case dhcp4.Nak:
		c.handleNak(m)
	default:
		c.log().WithField("type", mt.String()).Debug("dhcp4: ignored message type")
	}
}

func (c *Client) handleOffer(m dhcp4.Message) {
	if c.state != StateDiscover {
		return
	}
	l, err := dhcp4.LeaseFromMessage(c.Codec, m, time.Now())
	if err != nil {
		c.log().WithError(err).Warn("dhcp4: invalid offer")
		return
	}
	c.offer = l
	c.offerMsg = m
	c.Loop.DeleteTimeouts(c.IfaceName, eloop.TagDiscover)

	if c.Cfg.Test {
		c.finishTest(ReasonTest)
		return
	}

	if !l.Cookie {
		// BOOTP offer: bind directly, no REQUEST round trip.
		c.bind(ReasonBound)
		return
	}

	c.state = StateRequest
	c.retransmitInterval = 0
	c.sendAndScheduleRetransmit(dhcp4.Request, dhcp4.BuildParams{
		XId: c.xid, Offer: l,
	}, eloop.TagRequest)
}

func (c *Client) handleAck(m dhcp4.Message) {
	switch c.state {
	case StateRequest, StateRenew, StateRebind, StateReboot, StateInform:
	default:
		return
	}

	l, err := dhcp4.LeaseFromMessage(c.Codec, m, time.Now())
	if err != nil {
		c.log().WithError(err).Warn("dhcp4: invalid ack, dropping")
		return
	}
	if c.state == StateInform {
		l.LeaseTime = 0xFFFFFFFF
		l.RenewalTime = 0xFFFFFFFF
		l.RebindTime = 0xFFFFFFFF
	}
	c.offer = l
	c.offerMsg = m

	c.Loop.DeleteTimeouts(c.IfaceName, eloop.TagRequest)
	if c.Collab.Raw != nil {
		c.Collab.Raw.Close() // ignore any late NAK arriving while ARP probes the offer
	}

	if c.state == StateInform {
		c.bind(ReasonInform)
		return
	}

	configured := false
	if c.Collab.Link != nil {
		configured, _ = c.Collab.Link.HasAddress(l.Addr)
	}

	if c.Cfg.ARPEnable && c.state != StateReboot && !configured {
		c.state = StateProbe
		c.probe()
		return
	}
	c.bind(c.bindReason())
}

func (c *Client) bindReason() Reason {
	switch {
	case c.state == StateRenew:
		return ReasonRenew
	case c.state == StateRebind:
		return ReasonRebind
	case c.state == StateReboot:
		return ReasonReboot
	default:
		return ReasonBound
	}
}

func (c *Client) probe() {
	if c.Collab.ARP == nil {
		c.bind(c.bindReason())
		return
	}
	addr := c.offer.Addr
	go func() {
		err := c.Collab.ARP.Probe(c.IfaceName, addr,
			func() { c.Loop.Post(func() { c.ArpResult(false) }) },
			func() { c.Loop.Post(func() { c.ArpResult(true) }) },
		)
		if err != nil {
			c.Loop.Post(func() {
				c.log().WithError(err).Warn("dhcp4: arp probe failed, binding anyway")
				c.bind(c.bindReason())
			})
		}
	}()
}

// ArpResult is called by the external ARP collaborator with the probe
// outcome (spec.md §4.2 ACK handling).
func (c *Client) ArpResult(ok bool) {
	if c.state != StateProbe {
		return
	}
	if !ok {
		xid := newXID()
		m := dhcp4.BuildMessage(c.Cfg, dhcp4.Decline, dhcp4.BuildParams{XId: xid, Offer: c.offer})
		_ = c.send(m)
		c.Loop.AddTimeout(c.IfaceName, eloop.TagFallback, 2*time.Second, c.startDiscover)
		return
	}
	c.bind(c.bindReason())
}

// bind commits the offer as the current lease, applies it, persists it,
// runs the script hook and schedules renew/rebind/expire.
func (c *Client) bind(reason Reason) {
	l := c.offer
	msg := c.offerMsg
	c.prev = c.cur
	c.cur = l
	c.offer = nil
	c.offerMsg = nil
	c.state = StateBound
	c.retransmitInterval = 0

	if c.Cfg.Test {
		c.finishTest(reason)
		return
	}

	if c.Collab.Kernel != nil {
		gateways := []netip.Addr{}
		if err := c.Collab.Kernel.Apply(c.IfaceName, l.Addr, l.Net, l.Brd, gateways); err != nil {
			c.log().WithError(err).Warn("dhcp4: kernel apply failed")
		}
	}

	if l.Cookie && msg != nil && c.Cfg.LeasePath != "" {
		if err := dhcp4.WriteLeaseFile(c.Cfg.LeasePath, msg); err != nil {
			c.log().WithError(err).Warn("dhcp4: write lease file failed")
		}
	} else if !l.Cookie && c.Cfg.LeasePath != "" {
		_ = dhcp4.UnlinkLeaseFile(c.Cfg.LeasePath)
	}

	if c.Collab.Script != nil {
		env := scriptEnv(l)
		if err := c.Collab.Script.Run(c.Cfg.ScriptPath, string(reason), env); err != nil {
			c.log().WithError(err).Warn("dhcp4: script failed")
		}
	}

	c.log().WithField("reason", reason).WithField("addr", l.Addr).Info("dhcp4: bound")

	if l.LeaseTime != 0xFFFFFFFF {
		renewAt := time.Duration(l.RenewalTime) * time.Second
		rebindAt := time.Duration(l.RebindTime) * time.Second
		expireAt := time.Duration(l.LeaseTime) * time.Second
		c.Loop.AddTimeout(c.IfaceName, eloop.TagRenew, renewAt, c.startRenew)
		c.Loop.AddTimeout(c.IfaceName, eloop.TagRebind, rebindAt, c.startRebind)
		c.Loop.AddTimeout(c.IfaceName, eloop.TagExpire, expireAt, c.expire)
	}

	if c.Cfg.ARPEnable && c.Collab.ARP != nil {
		go func() {
			_ = c.Collab.ARP.Announce(c.IfaceName, l.Addr, 0)
		}()
	}
}

func (c *Client) startRenew() {
	if c.state != StateBound || c.cur == nil {
		return
	}
	c.state = StateRenew
	c.xid = newXID()
	c.retransmitInterval = 0

	if c.Collab.UDP != nil {
		udp, err := c.Collab.UDP(c.cur.Addr)
		if err == nil {
			c.udp = udp
		}
	}

	c.sendAndScheduleRetransmit(dhcp4.Request, dhcp4.BuildParams{
		XId: c.xid, CIAddr: c.cur.Addr, HaveAddr: true, Offer: c.cur,
	}, eloop.TagRequest)
}

func (c *Client) startRebind() {
	if c.state != StateRenew && c.state != StateBound {
		return
	}
	c.state = StateRebind
	c.xid = newXID()
	c.retransmitInterval = 0
	if c.udp != nil {
		c.udp.Close()
		c.udp = nil
	}

	offer := *c.cur
	offer.Server = netip.Addr{}
	c.sendAndScheduleRetransmit(dhcp4.Request, dhcp4.BuildParams{
		XId: c.xid, CIAddr: c.cur.Addr, HaveAddr: true, Offer: &offer,
	}, eloop.TagRequest)
}

func (c *Client) expire() {
	c.log().Warn("dhcp4: lease expired")
	_ = dhcp4.UnlinkLeaseFile(c.Cfg.LeasePath)
	c.Drop(ReasonExpire)

	up := true
	if c.Collab.Link != nil {
		if ok, err := c.Collab.Link.CarrierUp(); err == nil {
			up = ok
		}
	}
	if up {
		c.Start()
	}
}

func (c *Client) handleNak(m dhcp4.Message) {
	if c.Cfg.RequireServerID {
		if _, err := c.Codec.Addr(m, dhcp4.OptionServerIdentifier); err != nil {
			c.log().Warn("dhcp4: nak missing required server-id, dropping silently")
			return
		}
	}

	c.Drop(ReasonNak)
	_ = dhcp4.UnlinkLeaseFile(c.Cfg.LeasePath)

	delay := c.nakBackoff
	c.nakBackoff = nextNakBackoff(c.nakBackoff)
	c.Loop.AddTimeout(c.IfaceName, eloop.TagNakRestart, delay, c.Start)
}

func (c *Client) finishTest(reason Reason) {
	if c.Collab.Script != nil {
		env := map[string]string{}
		if c.offer != nil {
			env = scriptEnv(c.offer)
		}
		_ = c.Collab.Script.Run(c.Cfg.ScriptPath, string(ReasonTest), env)
	}
	if c.testDone != nil {
		c.testDone <- reason
	}
}

// scriptEnv renders a lease into the variables spec.md §6 describes.
func scriptEnv(l *dhcp4.Lease) map[string]string {
	env := map[string]string{
		"ip_address":        l.Addr.String(),
		"subnet_mask":       l.Net.String(),
		"broadcast_address": l.Brd.String(),
		"server_name":       l.Server.String(),
	}
	if l.Net.IsValid() {
		env["subnet_cidr"] = fmt.Sprintf("%d", maskBits(l.Net))
		env["network_number"] = networkNumber(l.Addr, l.Net).String()
	}
	return env
}

func maskBits(mask netip.Addr) int {
	m := mask.As4()
	bits := 0
	for _, b := range m {
		for b != 0 {
			bits += int(b & 1)
			b >>= 1
		}
	}
	return bits
}

func networkNumber(addr, mask netip.Addr) netip.Addr {
	a := addr.As4()
	m := mask.As4()
	var out [4]byte
	for i := range out {
		out[i] = a[i] & m[i]
	}
	return netip.AddrFrom4(out)
}
