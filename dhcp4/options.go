package dhcp4

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// overloadFile / overloadSName are the OPTIONSOVERLOAD (option 52) bits,
// spec.md §3.
const (
	overloadFile  = 0x1
	overloadSName = 0x2
)

// Codec parses and emits DHCP options areas. It owns a single reusable
// scratch buffer for RFC 3396 concatenation, replacing the process-global
// scratch buffer of the original C implementation (spec.md §9 DESIGN NOTES)
// with a value threaded through by the caller — typically one Codec per
// Client.
type Codec struct {
	scratch []byte
}

// NewCodec returns a ready-to-use Codec.
func NewCodec() *Codec { return &Codec{} }

// walkFunc is called once per decoded TLV.
type walkFunc func(code uint8, value []byte)

// walkOptions scans a single options region (main area, file or sname
// overload), honoring PAD/END and tolerating a truncated trailing option by
// clipping it to the available bytes rather than panicking.
func walkOptions(region []byte, fn walkFunc) {
	i := 0
	for i < len(region) {
		code := region[i]
		if code == OptionPad {
			i++
			continue
		}
		if code == OptionEnd {
			return
		}
		if i+1 >= len(region) {
			return
		}
		length := int(region[i+1])
		start := i + 2
		end := start + length
		if start > len(region) {
			return
		}
		if end > len(region) {
			end = len(region)
		}
		fn(code, region[start:end])
		i = end
	}
}

// GetOption returns the decoded, validated value for code, walking the
// options area and following OPTIONSOVERLOAD into sname/file as directed.
// Segments sharing the same code are concatenated in wire order (RFC 3396).
// When only one segment exists the returned slice aliases the message — no
// copy; concatenation of 2+ segments copies into the Codec's scratch buffer.
func (c *Codec) GetOption(m Message, code uint8) ([]byte, error) {
	var segments [][]byte
	var overload uint8
	var overloadSeen bool

	collect := func(region []byte, isMain bool) {
		walkOptions(region, func(oc uint8, val []byte) {
			if isMain && oc == OptionOptionsOverload && !overloadSeen && len(val) >= 1 {
				overload = val[0]
				overloadSeen = true
			}
			if oc == code {
				segments = append(segments, val)
			}
		})
	}

	collect(m.Options(), true)
	if overload&overloadFile != 0 {
		collect(m.File(), false)
	}
	if overload&overloadSName != 0 {
		collect(m.SName(), false)
	}

	if len(segments) == 0 {
		return nil, fmt.Errorf("option %d: %w", code, ErrNotFound)
	}

	var value []byte
	if len(segments) == 1 {
		value = segments[0]
	} else {
		total := 0
		for _, s := range segments {
			total += len(s)
		}
		if cap(c.scratch) < total {
			c.scratch = make([]byte, total)
		}
		buf := c.scratch[:total]
		off := 0
		for _, s := range segments {
			off += copy(buf[off:], s)
		}
		value = buf
	}

	return validateLength(code, value)
}

// validateLength applies the per-type length rules of spec.md §4.1.
func validateLength(code uint8, value []byte) ([]byte, error) {
	if len(value) == 0 {
		return nil, fmt.Errorf("option %d: %w: zero length", code, ErrInvalid)
	}

	def, known := lookupOption(code)
	if !known {
		return value, nil
	}

	switch {
	case def.Type&(TypeString|TypeRFC3442|TypeRFC5969) != 0:
		return value, nil

	case def.Type&(TypeAddrIPv4|TypeArray) != 0:
		if len(value)%4 != 0 {
			value = value[:len(value)-len(value)%4]
		}
		if len(value) == 0 {
			return nil, fmt.Errorf("option %d: %w: not a multiple of 4", code, ErrInvalid)
		}
		return value, nil

	default:
		width, scalar := scalarWidth(def.Type)
		if !scalar {
			return value, nil
		}
		if len(value) < width {
			return nil, fmt.Errorf("option %d: %w: need %d bytes, got %d", code, ErrInvalid, width, len(value))
		}
		return value[:width], nil
	}
}

// Uint8 returns option code interpreted as a single byte.
func (c *Codec) Uint8(m Message, code uint8) (uint8, error) {
	v, err := c.GetOption(m, code)
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

// Uint16 returns option code interpreted as a big-endian uint16.
func (c *Codec) Uint16(m Message, code uint8) (uint16, error) {
	v, err := c.GetOption(m, code)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(v), nil
}

// Uint32 returns option code interpreted as a big-endian uint32.
func (c *Codec) Uint32(m Message, code uint8) (uint32, error) {
	v, err := c.GetOption(m, code)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(v), nil
}

// Addr returns option code interpreted as a single dotted-quad address.
func (c *Codec) Addr(m Message, code uint8) (netip.Addr, error) {
	v, err := c.GetOption(m, code)
	if err != nil {
		return netip.Addr{}, err
	}
	var a [4]byte
	copy(a[:], v[:4])
	return netip.AddrFrom4(a), nil
}

// Addrs returns option code interpreted as a list of dotted-quad addresses.
func (c *Codec) Addrs(m Message, code uint8) ([]netip.Addr, error) {
	v, err := c.GetOption(m, code)
	if err != nil {
		return nil, err
	}
	out := make([]netip.Addr, 0, len(v)/4)
	for i := 0; i+4 <= len(v); i += 4 {
		var a [4]byte
		copy(a[:], v[i:i+4])
		out = append(out, netip.AddrFrom4(a))
	}
	return out, nil
}

// MessageType returns option 53 as a typed MessageType.
func (c *Codec) MessageType(m Message) (MessageType, error) {
	v, err := c.Uint8(m, OptionDHCPMessageType)
	if err != nil {
		return 0, err
	}
	return MessageType(v), nil
}

// --- emission -------------------------------------------------------------

// optionWriter accumulates TLVs into a caller-supplied options buffer.
type optionWriter struct {
	buf []byte
}

func newOptionWriter(buf []byte) *optionWriter {
	return &optionWriter{buf: buf[:0]}
}

// Put appends one TLV, splitting values longer than 255 bytes across
// multiple same-code segments per RFC 3396.
func (w *optionWriter) Put(code uint8, value []byte) {
	if len(value) == 0 {
		w.buf = append(w.buf, code, 0)
		return
	}
	for len(value) > 0 {
		n := len(value)
		if n > 255 {
			n = 255
		}
		w.buf = append(w.buf, code, uint8(n))
		w.buf = append(w.buf, value[:n]...)
		value = value[n:]
	}
}

func (w *optionWriter) PutUint8(code uint8, v uint8) {
	w.Put(code, []byte{v})
}

func (w *optionWriter) PutUint16(code uint8, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.Put(code, b[:])
}

func (w *optionWriter) PutUint32(code uint8, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.Put(code, b[:])
}

func (w *optionWriter) PutAddr(code uint8, a netip.Addr) {
	a4 := a.As4()
	w.Put(code, a4[:])
}

func (w *optionWriter) PutString(code uint8, s string) {
	w.Put(code, []byte(s))
}

func (w *optionWriter) End() {
	w.buf = append(w.buf, OptionEnd)
}

func (w *optionWriter) Bytes() []byte { return w.buf }
