// Package arpprobe implements the duplicate-address-detection collaborator
// (RFC 5227 ACD probe/announce) the protocol state machine hands an
// offered address to before binding. The wire encoding is adapted from the
// teacher's zero-copy ARP view; transport moves to mdlayher/raw since the
// teacher's own raw socket helper lives outside this module's scope.
package arpprobe

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/mdlayher/raw"
)

const (
	operationRequest = 1
	htypeEthernet    = 1
	protoIPv4        = 0x0800
	etherTypeARP     = 0x0806
	arpLen           = 8 + 2*6 + 2*4
)

var broadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// frame is a zero-copy view over a wire ARP packet, the same style as the
// teacher's arp.ARP type.
type frame []byte

func newProbeFrame(buf []byte, srcMAC net.HardwareAddr, srcIP, targetIP netip.Addr) frame {
	b := buf[:arpLen]
	binary.BigEndian.PutUint16(b[0:2], htypeEthernet)
	binary.BigEndian.PutUint16(b[2:4], protoIPv4)
	b[4] = 6
	b[5] = 4
	binary.BigEndian.PutUint16(b[6:8], operationRequest)
	copy(b[8:14], srcMAC)
	srcA := srcIP.As4()
	copy(b[14:18], srcA[:])
	copy(b[18:24], broadcastMAC) // target hardware address unknown for a probe/announce
	dstA := targetIP.As4()
	copy(b[24:28], dstA[:])
	return b
}

func (f frame) srcIP() netip.Addr {
	var a [4]byte
	copy(a[:], f[14:18])
	return netip.AddrFrom4(a)
}

func (f frame) dstIP() netip.Addr {
	var a [4]byte
	copy(a[:], f[24:28])
	return netip.AddrFrom4(a)
}

func (f frame) srcMAC() net.HardwareAddr { return net.HardwareAddr(f[8:14]) }
func (f frame) operation() uint16        { return binary.BigEndian.Uint16(f[6:8]) }

// Prober sends ACD probes/announcements and watches for conflicting
// replies on the link.
type Prober struct {
	conn *raw.Conn
	ifi  *net.Interface
}

// New opens a raw ARP socket on ifi.
func New(ifi *net.Interface) (*Prober, error) {
	conn, err := raw.ListenPacket(ifi, etherTypeARP, nil)
	if err != nil {
		return nil, fmt.Errorf("arpprobe: open socket on %s: %w", ifi.Name, err)
	}
	return &Prober{conn: conn, ifi: ifi}, nil
}

// Probe sends one ARP probe for addr and listens for window for a reply
// claiming addr; it does not repeat the probe. onConflict is called if any
// host answers; onOK if the probe window elapses silently.
func (p *Prober) Probe(addr netip.Addr, window time.Duration, onConflict, onOK func()) error {
	buf := make([]byte, arpLen)
	f := newProbeFrame(buf, p.ifi.HardwareAddr, netip.IPv4Unspecified(), addr)
	if _, err := p.conn.WriteTo(f, &raw.Addr{HardwareAddr: broadcastMAC}); err != nil {
		return fmt.Errorf("arpprobe: send probe: %w", err)
	}

	deadline := time.Now().Add(window)
	if err := p.conn.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("arpprobe: set deadline: %w", err)
	}

	rbuf := make([]byte, 128)
	for {
		n, _, err := p.conn.ReadFrom(rbuf)
		if err != nil {
			onOK()
			return nil
		}
		if n < arpLen {
			continue
		}
		reply := frame(rbuf[:n])
		if reply.srcIP() == addr && reply.srcMAC().String() != p.ifi.HardwareAddr.String() {
			onConflict()
			return nil
		}
		if reply.dstIP() == addr && reply.operation() == operationRequest &&
			reply.srcMAC().String() != p.ifi.HardwareAddr.String() {
			// another host probing the same address we are claiming.
			onConflict()
			return nil
		}
	}
}

// Announce broadcasts repeats ARP announcements for addr, 2s apart,
// per RFC 5227 ANNOUNCE_INTERVAL.
func (p *Prober) Announce(addr netip.Addr, repeats int) error {
	buf := make([]byte, arpLen)
	f := newProbeFrame(buf, p.ifi.HardwareAddr, addr, addr)
	for i := 0; i < repeats; i++ {
		if _, err := p.conn.WriteTo(f, &raw.Addr{HardwareAddr: broadcastMAC}); err != nil {
			return fmt.Errorf("arpprobe: announce: %w", err)
		}
		if i < repeats-1 {
			time.Sleep(2 * time.Second)
		}
	}
	return nil
}

func (p *Prober) Close() error { return p.conn.Close() }
