package iface

import (
	"fmt"
	"net"
	"net/netip"
	"time"
)

// udpSocket is the unicast RENEW collaborator: a standard kernel UDP
// socket bound to the client port, used once the interface already has an
// address (spec.md §6 "open_udp_socket / send_packet").
type udpSocket struct {
	conn *net.UDPConn
}

// NewUDPSocket binds a UDP socket on localAddr:68 for unicast renew.
func NewUDPSocket(localAddr netip.Addr) (UDPSocket, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: localAddr.AsSlice(), Port: 68})
	if err != nil {
		return nil, fmt.Errorf("open udp socket: %w", err)
	}
	return &udpSocket{conn: conn}, nil
}

func (s *udpSocket) SendTo(to netip.Addr, payload []byte) error {
	_, err := s.conn.WriteToUDP(payload, &net.UDPAddr{IP: to.AsSlice(), Port: 67})
	return err
}

func (s *udpSocket) Recv(deadline time.Time) ([]byte, netip.Addr, error) {
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return nil, netip.Addr{}, err
	}
	buf := make([]byte, 1500)
	n, addr, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, netip.Addr{}, err
	}
	from, ok := netip.AddrFromSlice(addr.IP.To4())
	if !ok {
		return nil, netip.Addr{}, fmt.Errorf("udp recv: bad source address %s", addr.IP)
	}
	return buf[:n], from, nil
}

func (s *udpSocket) Close() error { return s.conn.Close() }
