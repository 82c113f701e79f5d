package arpprobe

import (
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/lx-systems/dhcp4c/internal/iface"
)

// probeWindow is how long a single probe listens for a conflicting reply
// before declaring the address free, per RFC 5227's PROBE_WAIT/PROBE_NUM.
const probeWindow = 1 * time.Second

// announceRepeats is RFC 5227's ANNOUNCE_NUM.
const announceRepeats = 2

// adapter satisfies iface.ARPProber by keeping one Prober per interface
// name, opening it lazily on first use.
type adapter struct {
	open func(name string) (*net.Interface, error)
	live map[string]*Prober
}

// NewCollaborator returns an iface.ARPProber backed by this package,
// resolving interface names through net.InterfaceByName.
func NewCollaborator() iface.ARPProber {
	return &adapter{
		open: net.InterfaceByName,
		live: make(map[string]*Prober),
	}
}

func (a *adapter) prober(name string) (*Prober, error) {
	if p, ok := a.live[name]; ok {
		return p, nil
	}
	ifi, err := a.open(name)
	if err != nil {
		return nil, fmt.Errorf("arpprobe: lookup %s: %w", name, err)
	}
	p, err := New(ifi)
	if err != nil {
		return nil, err
	}
	a.live[name] = p
	return p, nil
}

func (a *adapter) Probe(ifaceName string, addr netip.Addr, onConflict, onOK func()) error {
	p, err := a.prober(ifaceName)
	if err != nil {
		return err
	}
	return p.Probe(addr, probeWindow, onConflict, onOK)
}

func (a *adapter) Announce(ifaceName string, addr netip.Addr, repeats int) error {
	p, err := a.prober(ifaceName)
	if err != nil {
		return err
	}
	if repeats <= 0 {
		repeats = announceRepeats
	}
	return p.Announce(addr, repeats)
}
