package iface

import (
	"fmt"
	"net"
	"net/netip"

	"golang.org/x/sys/unix"
)

// linkInfo answers MTU queries through the SIOCGIFMTU/SIOCSIFMTU ioctls and
// address/carrier queries through the stdlib net.Interface (spec.md §6
// get_mtu/set_mtu/has_address).
type linkInfo struct {
	ifi *net.Interface
}

// NewLinkInfo wraps ifi for MTU and address queries.
func NewLinkInfo(ifi *net.Interface) LinkInfo {
	return &linkInfo{ifi: ifi}
}

func (l *linkInfo) MTU() (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return 0, fmt.Errorf("mtu: socket: %w", err)
	}
	defer unix.Close(fd)

	ifr, err := unix.IoctlGetIfreqMTU(fd, l.ifi.Name)
	if err != nil {
		return 0, fmt.Errorf("mtu: ioctl on %s: %w", l.ifi.Name, err)
	}
	return int(ifr.MTU), nil
}

func (l *linkInfo) SetMTU(mtu int) error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return fmt.Errorf("set mtu: socket: %w", err)
	}
	defer unix.Close(fd)

	ifr := &unix.IfreqMTU{Name: ifrName(l.ifi.Name), MTU: int32(mtu)}
	return unix.IoctlSetIfreqMTU(fd, ifr)
}

func (l *linkInfo) HasAddress(addr netip.Addr) (bool, error) {
	addrs, err := l.ifi.Addrs()
	if err != nil {
		return false, fmt.Errorf("has address on %s: %w", l.ifi.Name, err)
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if ip, ok2 := netip.AddrFromSlice(ipNet.IP.To4()); ok2 && ip == addr {
			return true, nil
		}
	}
	return false, nil
}

func (l *linkInfo) HardwareAddr() net.HardwareAddr { return l.ifi.HardwareAddr }

func (l *linkInfo) CarrierUp() (bool, error) {
	return l.ifi.Flags&net.FlagUp != 0, nil
}

func ifrName(name string) [unix.IFNAMSIZ]byte {
	var out [unix.IFNAMSIZ]byte
	copy(out[:], name)
	return out
}
