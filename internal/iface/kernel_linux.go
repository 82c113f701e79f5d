package iface

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/vishvananda/netlink"
)

// netlinkApplier applies a lease's address and default route to the
// kernel via rtnetlink, replacing the BSD-ioctl/SIOCSIFADDR style "apply
// current lease" collaborator of spec.md §6.
type netlinkApplier struct{}

// NewKernelApplier returns a KernelApplier backed by vishvananda/netlink.
func NewKernelApplier() KernelApplier { return netlinkApplier{} }

func (netlinkApplier) Apply(ifaceName string, addr, mask, broadcast netip.Addr, gateways []netip.Addr) error {
	link, err := netlink.LinkByName(ifaceName)
	if err != nil {
		return fmt.Errorf("apply lease: link %s: %w", ifaceName, err)
	}

	ones, _ := netMaskBits(mask)
	nlAddr := &netlink.Addr{
		IPNet: &net.IPNet{
			IP:   addr.AsSlice(),
			Mask: netMaskFromBits(ones),
		},
		Broadcast: broadcast.AsSlice(),
	}
	if err := netlink.AddrReplace(link, nlAddr); err != nil {
		return fmt.Errorf("apply lease: addr replace on %s: %w", ifaceName, err)
	}

	for _, gw := range gateways {
		route := &netlink.Route{
			LinkIndex: link.Attrs().Index,
			Gw:        gw.AsSlice(),
		}
		if err := netlink.RouteReplace(route); err != nil {
			return fmt.Errorf("apply lease: route via %s on %s: %w", gw, ifaceName, err)
		}
	}
	return nil
}

func (netlinkApplier) Remove(ifaceName string, addr netip.Addr) error {
	link, err := netlink.LinkByName(ifaceName)
	if err != nil {
		return fmt.Errorf("remove lease: link %s: %w", ifaceName, err)
	}
	addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return fmt.Errorf("remove lease: addr list on %s: %w", ifaceName, err)
	}
	for _, a := range addrs {
		if a.IP.Equal(addr.AsSlice()) {
			if err := netlink.AddrDel(link, &a); err != nil {
				return fmt.Errorf("remove lease: addr del on %s: %w", ifaceName, err)
			}
		}
	}
	return nil
}

func netMaskBits(mask netip.Addr) (int, error) {
	if !mask.IsValid() {
		return 32, nil
	}
	m := mask.As4()
	bits := 0
	for _, b := range m {
		for b != 0 {
			bits += int(b & 1)
			b >>= 1
		}
	}
	return bits, nil
}

func netMaskFromBits(bits int) net.IPMask {
	return net.CIDRMask(bits, 32)
}
