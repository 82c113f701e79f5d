package iface

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/mdlayher/raw"
)

// rawSocket frames DHCP payloads into broadcast Ethernet/IPv4/UDP frames
// using gopacket's layer serializer, and sends/receives them over a
// mdlayher/raw packet socket bound to EtherType IPv4 — the same framing
// approach the teacher's arp package uses for ARP, generalized to IPv4/UDP
// since this client builds full UDP datagrams, not just ARP frames.
type rawSocket struct {
	conn   *raw.Conn
	ifi    *net.Interface
	srcMAC net.HardwareAddr
	srcIP  net.IP
}

// NewRawSocket opens a raw packet socket on ifi for DHCP client traffic
// (UDP 68 -> UDP 67, broadcast).
func NewRawSocket(ifi *net.Interface) (RawSocket, error) {
	conn, err := raw.ListenPacket(ifi, uint16(layers.EthernetTypeIPv4), nil)
	if err != nil {
		return nil, fmt.Errorf("open raw socket on %s: %w", ifi.Name, err)
	}
	return &rawSocket{conn: conn, ifi: ifi, srcMAC: ifi.HardwareAddr}, nil
}

func (s *rawSocket) Send(payload []byte) error {
	eth := &layers.Ethernet{
		SrcMAC:       s.srcMAC,
		DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4zero,
		DstIP:    net.IPv4bcast,
	}
	udp := &layers.UDP{SrcPort: 68, DstPort: 67}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return fmt.Errorf("raw send: %w", err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
		return fmt.Errorf("raw send: serialize: %w", err)
	}

	_, err := s.conn.WriteTo(buf.Bytes(), &raw.Addr{HardwareAddr: eth.DstMAC})
	return err
}

// Recv reads one frame, verifies its IP+UDP framing and checksum, and
// extracts the UDP payload. The returned bool reports partial-checksum mode:
// a zero checksum field, which NIC checksum offload leaves behind after
// consuming the real checksum in hardware. In that case the checksum cannot
// be verified here and the caller is told to treat it as unverified rather
// than reject it.
func (s *rawSocket) Recv(deadline time.Time) ([]byte, bool, error) {
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return nil, false, err
	}
	buf := make([]byte, 1500)
	n, _, err := s.conn.ReadFrom(buf)
	if err != nil {
		return nil, false, err
	}

	pkt := gopacket.NewPacket(buf[:n], layers.LayerTypeEthernet, gopacket.NoCopy)
	ipLayer := pkt.Layer(layers.LayerTypeIPv4)
	udpLayer := pkt.Layer(layers.LayerTypeUDP)
	if ipLayer == nil || udpLayer == nil {
		return nil, false, fmt.Errorf("raw recv: no udp layer")
	}
	ip := ipLayer.(*layers.IPv4)
	udp := udpLayer.(*layers.UDP)
	if udp.DstPort != 68 {
		return nil, false, fmt.Errorf("raw recv: not client port")
	}

	partial := udpChecksumPartial(udp.LayerContents())
	if !partial {
		if err := verifyUDPChecksum(ip, udp); err != nil {
			return nil, false, err
		}
	}
	return udp.Payload, partial, nil
}

func (s *rawSocket) Close() error { return s.conn.Close() }

// udpChecksumPartial reports whether header, the 8-byte UDP header, looks
// like the pseudo-header-only partial form NIC offload produces: zero is
// never a valid checksum for an IPv4 UDP datagram otherwise.
func udpChecksumPartial(header []byte) bool {
	if len(header) < 8 {
		return false
	}
	return binary.BigEndian.Uint16(header[6:8]) == 0
}

// verifyUDPChecksum recomputes udp's checksum against ip's pseudo-header,
// the same way Send computes it on the way out, and compares it to the
// value the wire carried.
func verifyUDPChecksum(ip *layers.IPv4, udp *layers.UDP) error {
	want := udp.Checksum

	check := *udp
	if err := check.SetNetworkLayerForChecksum(ip); err != nil {
		return fmt.Errorf("raw recv: checksum setup: %w", err)
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, &check, gopacket.Payload(check.Payload)); err != nil {
		return fmt.Errorf("raw recv: checksum recompute: %w", err)
	}
	got := binary.BigEndian.Uint16(buf.Bytes()[6:8])
	if got != want {
		return fmt.Errorf("raw recv: udp checksum mismatch: got %#x want %#x", got, want)
	}
	return nil
}
