// Package iface defines the external collaborators the DHCPv4 client core
// consumes (spec.md §6) and provides concrete Linux implementations of
// them: raw link-layer I/O, unicast UDP, MTU/netmask queries, kernel
// address/route application and the user-script hook.
package iface

import (
	"net"
	"net/netip"
	"time"
)

// RawSocket is the link-layer collaborator used while the client has no
// usable source address: broadcast DISCOVER/REQUEST and the inbound
// dispatcher both go through it.
type RawSocket interface {
	// Send frames payload (a DHCP message) as a broadcast
	// Ethernet/IPv4/UDP datagram and transmits it.
	Send(payload []byte) error
	// Recv blocks until one frame arrives or the deadline passes,
	// returning the UDP payload and whether its checksum was only
	// partially validated by hardware offload.
	Recv(deadline time.Time) (payload []byte, partialChecksum bool, err error)
	Close() error
}

// UDPSocket is the unicast collaborator used for RENEW once an address is
// configured on the interface.
type UDPSocket interface {
	SendTo(to netip.Addr, payload []byte) error
	Recv(deadline time.Time) (payload []byte, from netip.Addr, err error)
	Close() error
}

// LinkInfo exposes the small set of interface queries the builder and
// state machine need: MTU, an existing configured address, and the
// ability to raise the MTU when advertising a larger Maximum-Message-Size
// requires it.
type LinkInfo interface {
	MTU() (int, error)
	SetMTU(int) error
	HasAddress(netip.Addr) (bool, error)
	HardwareAddr() net.HardwareAddr
	CarrierUp() (bool, error)
}

// KernelApplier is the "apply current lease" collaborator: Apply installs
// the address and a route via each given gateway, Remove deletes the
// address. DNS settings are not applied.
type KernelApplier interface {
	Apply(ifaceName string, addr, mask, broadcast netip.Addr, gateways []netip.Addr) error
	Remove(ifaceName string, addr netip.Addr) error
}

// ScriptRunner invokes the user-configured hook, passing lease variables
// as environment (spec.md §6 "Environment export to the script").
type ScriptRunner interface {
	Run(path string, reason string, env map[string]string) error
}

// ARPProber is the duplicate-address-detection collaborator: probe an
// address before binding, then announce it once bound. Results are
// delivered asynchronously through the callbacks passed to Probe.
type ARPProber interface {
	Probe(ifaceName string, addr netip.Addr, onConflict, onOK func()) error
	Announce(ifaceName string, addr netip.Addr, repeats int) error
}
