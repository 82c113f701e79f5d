package client

import (
	"net"
	"net/netip"

	"github.com/irai/packet/fastlog"
	log "github.com/sirupsen/logrus"

	"github.com/lx-systems/dhcp4c/dhcp4"
)

const module = "dhcp4"

// DispatchConfig carries the per-interface validation settings the
// dispatcher applies before a message reaches the state machine
// (spec.md §4.3).
type DispatchConfig struct {
	Whitelist []netip.Addr
	Blacklist []netip.Addr
	Peer      netip.Addr // point-to-point link peer, logged (not enforced) on mismatch
}

// Dispatch validates one inbound frame and, if it passes, hands it to
// PacketReceived. payload is the UDP payload already extracted by the
// raw-I/O collaborator; from is the source IPv4 address the transport
// layer observed, partialChecksum flags hardware-offloaded checksum mode.
func (c *Client) Dispatch(dc DispatchConfig, payload []byte, from netip.Addr, partialChecksum bool) {
	if len(dc.Whitelist) > 0 && !addrIn(dc.Whitelist, from) {
		c.log().WithField("from", from).Debug("dhcp4: dropped, not in whitelist")
		return
	}
	if addrIn(dc.Blacklist, from) {
		c.log().WithField("from", from).Debug("dhcp4: dropped, blacklisted")
		return
	}
	if dc.Peer.IsValid() && from != dc.Peer {
		c.log().WithField("from", from).WithField("peer", dc.Peer).Warn("dhcp4: source is not the configured peer")
	}

	if partialChecksum {
		c.log().Debug("dhcp4: udp checksum not independently verified (nic offload partial form)")
	}

	if len(payload) > dhcp4.MaxMessageLen {
		c.log().WithField("len", len(payload)).Debug("dhcp4: dropped, oversized bootp message")
		return
	}

	m := dhcp4.Message(payload)
	if err := m.IsValid(); err != nil {
		c.log().WithError(err).Debug("dhcp4: dropped, malformed header")
		return
	}

	if !m.HasCookie() {
		// Plain BOOTP reply: type 0, still subject to xid/chaddr checks below.
		log.WithField("iface", c.IfaceName).Debug("dhcp4: bootp reply (no cookie)")
	}

	var xidBytes [4]byte
	copy(xidBytes[:], m.XId())
	gotXID := uint32(xidBytes[0])<<24 | uint32(xidBytes[1])<<16 | uint32(xidBytes[2])<<8 | uint32(xidBytes[3])
	if gotXID != c.xid {
		c.log().WithField("xid", gotXID).Debug("dhcp4: dropped, stale xid")
		return
	}

	chaddr := m.CHAddr()
	want := c.Cfg.HardwareAddr
	if len(chaddr) < len(want) || chaddr.String() != want.String() {
		c.log().Debug("dhcp4: dropped, chaddr mismatch")
		return
	}

	fastlog.NewLine(module, "packet received").ByteArray("xid", m.XId()).MAC("chaddr", chaddr).IP("from", net.IP(from.AsSlice())).Write()
	c.PacketReceived(m)
}

func addrIn(list []netip.Addr, a netip.Addr) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}
