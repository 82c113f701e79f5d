package dhcp4

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
)

// Message is a zero-copy view over a BOOTP/DHCP wire message. The layout
// follows spec.md §3 exactly; all accessors read or write in place, the same
// way the teacher's Ether/IP4/UDP/ARP views work over []byte.
type Message []byte

// Field byte offsets within the fixed 236-byte BOOTP header.
const (
	offOp     = 0
	offHType  = 1
	offHLen   = 2
	offHops   = 3
	offXID    = 4
	offSecs   = 8
	offFlags  = 10
	offCIAddr = 12
	offYIAddr = 16
	offSIAddr = 20
	offGIAddr = 24
	offCHAddr = 28
	offSName  = offCHAddr + chaddrLen
	offFile   = offSName + snameLen
	offCookie = offFile + fileLen
	offOpts   = offCookie + 4
)

// NewMessage allocates a zeroed message of the given total capacity
// (header + options area), ready to be filled in by the builder.
func NewMessage(size int) Message {
	if size < HeaderLen {
		size = HeaderLen
	}
	return make(Message, size)
}

// IsValid reports whether m is at least as long as the fixed BOOTP header.
func (m Message) IsValid() error {
	if len(m) < offOpts {
		return fmt.Errorf("%w: message too short (%d bytes)", ErrInvalid, len(m))
	}
	return nil
}

// HasCookie reports whether the magic DHCP cookie is present; if false, the
// message is plain BOOTP (spec.md §3, GLOSSARY).
func (m Message) HasCookie() bool {
	if len(m) < offOpts {
		return false
	}
	return binary.BigEndian.Uint32(m[offCookie:offOpts]) == MagicCookie
}

func (m Message) Op() uint8     { return m[offOp] }
func (m Message) HType() uint8  { return m[offHType] }
func (m Message) HLen() uint8   { return m[offHLen] }
func (m Message) Hops() uint8   { return m[offHops] }

func (m Message) SetOp(v uint8)    { m[offOp] = v }
func (m Message) SetHType(v uint8) { m[offHType] = v }
func (m Message) SetHLen(v uint8)  { m[offHLen] = v }

func (m Message) XId() []byte { return m[offXID : offXID+4] }
func (m Message) SetXId(xid uint32) {
	binary.BigEndian.PutUint32(m[offXID:offXID+4], xid)
}

func (m Message) Secs() uint16 { return binary.BigEndian.Uint16(m[offSecs : offSecs+2]) }
func (m Message) SetSecs(v uint16) {
	binary.BigEndian.PutUint16(m[offSecs:offSecs+2], v)
}

func (m Message) Flags() uint16 { return binary.BigEndian.Uint16(m[offFlags : offFlags+2]) }
func (m Message) SetFlags(v uint16) {
	binary.BigEndian.PutUint16(m[offFlags:offFlags+2], v)
}
func (m Message) Broadcast() bool { return m.Flags()&FlagBroadcast != 0 }

func (m Message) CIAddr() netip.Addr { return addrFromBytes(m[offCIAddr : offCIAddr+4]) }
func (m Message) YIAddr() netip.Addr { return addrFromBytes(m[offYIAddr : offYIAddr+4]) }
func (m Message) SIAddr() netip.Addr { return addrFromBytes(m[offSIAddr : offSIAddr+4]) }
func (m Message) GIAddr() netip.Addr { return addrFromBytes(m[offGIAddr : offGIAddr+4]) }

func (m Message) SetCIAddr(a netip.Addr) { putAddr(m[offCIAddr:offCIAddr+4], a) }
func (m Message) SetYIAddr(a netip.Addr) { putAddr(m[offYIAddr:offYIAddr+4], a) }
func (m Message) SetSIAddr(a netip.Addr) { putAddr(m[offSIAddr:offSIAddr+4], a) }
func (m Message) SetGIAddr(a netip.Addr) { putAddr(m[offGIAddr:offGIAddr+4], a) }

// CHAddr returns the hardware address truncated to HLen bytes.
func (m Message) CHAddr() net.HardwareAddr {
	n := int(m.HLen())
	if n == 0 || n > chaddrLen {
		n = 6
	}
	return net.HardwareAddr(m[offCHAddr : offCHAddr+n])
}

func (m Message) SetCHAddr(mac net.HardwareAddr) {
	clear(m[offCHAddr : offCHAddr+chaddrLen])
	copy(m[offCHAddr:offCHAddr+chaddrLen], mac)
	m.SetHLen(uint8(len(mac)))
}

func (m Message) SName() []byte { return m[offSName:offFile] }
func (m Message) File() []byte  { return m[offFile:offCookie] }

func (m Message) SetCookie() {
	binary.BigEndian.PutUint32(m[offCookie:offOpts], MagicCookie)
}

// Options returns the options area: everything after the cookie, up to len(m).
func (m Message) Options() []byte {
	if len(m) <= offOpts {
		return nil
	}
	return m[offOpts:]
}

func addrFromBytes(b []byte) netip.Addr {
	var a [4]byte
	copy(a[:], b)
	return netip.AddrFrom4(a)
}

func putAddr(dst []byte, a netip.Addr) {
	if !a.IsValid() {
		clear(dst)
		return
	}
	a4 := a.As4()
	copy(dst, a4[:])
}

func clear(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func (m Message) String() string {
	return fmt.Sprintf("op=%d xid=%x ciaddr=%s yiaddr=%s chaddr=%s broadcast=%v",
		m.Op(), m.XId(), m.CIAddr(), m.YIAddr(), m.CHAddr(), m.Broadcast())
}
