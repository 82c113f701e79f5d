package dhcp4

import (
	"net/netip"
	"strings"
	"time"

	"github.com/insomniacslk/dhcp/iana"
)

// BuildParams carries the per-message inputs the builder needs beyond the
// static Config: the transaction id, current uptime (for secs), and the
// lease context a REQUEST-family message refers back to.
type BuildParams struct {
	XId       uint32
	Secs      uint16
	CIAddr    netip.Addr // set explicitly by the caller for INFORM/RELEASE/renew and rebind REQUEST
	HaveAddr  bool       // true when ciaddr should be populated on-interface
	Offer     *Lease     // the tentative lease a REQUEST refers to; nil for DISCOVER/INFORM
	DeclineMsg string    // option 56 text for DECLINE
}

// BuildMessage assembles an outbound message of the given type from cfg and
// params, following the builder contract of spec.md §4.1.
func BuildMessage(cfg *Config, mt MessageType, p BuildParams) Message {
	m := NewMessage(MaxMessageLen)
	m.SetOp(BootRequest)
	m.SetHType(uint8(iana.HWTypeEthernet))
	m.SetCHAddr(cfg.HardwareAddr)
	m.SetXId(p.XId)
	m.SetCookie()
	m.SetSecs(p.Secs)

	if mt == Inform || mt == Release || (mt == Request && p.HaveAddr && p.Offer != nil && p.Offer.Cookie) {
		m.SetCIAddr(p.CIAddr)
	}

	if cfg.BroadcastFlag && !p.CIAddr.IsValid() && mt != Decline && mt != Release {
		m.SetFlags(FlagBroadcast)
	}

	w := newOptionWriter(m.Options())
	w.PutUint8(OptionDHCPMessageType, uint8(mt))

	if len(cfg.ClientID) > 0 {
		w.Put(OptionClientIdentifier, cfg.ClientID)
	}
	if cfg.UserClass != nil {
		w.Put(OptionUserClass, cfg.UserClass)
	}
	if cfg.VendorClassID != "" {
		w.PutString(OptionVendorClassIdentifier, cfg.VendorClassID)
	}

	maxSize := cfg.MaxMessageSize
	if maxSize == 0 {
		maxSize = MTUMin
	}
	if maxSize < MTUMin {
		maxSize = MTUMin
	}
	if maxSize > 1500 {
		maxSize = 1500
	}
	w.PutUint16(OptionMaximumMessageSize, maxSize)

	switch mt {
	case Request:
		if p.Offer != nil {
			w.PutAddr(OptionRequestedIPAddress, p.Offer.Addr)
			if p.Offer.Server.IsValid() && !p.Offer.Server.IsUnspecified() {
				w.PutAddr(OptionServerIdentifier, p.Offer.Server)
			}
		}
	case Release:
		if p.Offer != nil && p.Offer.Server.IsValid() {
			w.PutAddr(OptionServerIdentifier, p.Offer.Server)
		}
	case Decline:
		msg := p.DeclineMsg
		if msg == "" {
			msg = "Duplicate address detected"
		}
		w.PutString(OptionMessage, msg)
	case Discover:
		if cfg.RequestedAddr.IsValid() {
			w.PutAddr(OptionRequestedIPAddress, cfg.RequestedAddr)
		}
	}

	if mt == Discover || mt == Request || mt == Inform {
		if mt != Inform && cfg.LeaseTime != 0 {
			w.PutUint32(OptionIPAddressLeaseTime, cfg.LeaseTime)
		}
		if cfg.Hostname != "" {
			w.PutString(OptionHostName, shortHostname(cfg.Hostname))
			w.Put(OptionFQDN, encodeFQDN(cfg))
		}
		if cfg.VendorSpecific != nil {
			w.Put(OptionVendorSpecific, cfg.VendorSpecific)
		}
		prl := defaultParameterRequestList(cfg, mt)
		if len(prl) > 0 {
			w.Put(OptionParameterRequestList, prl)
		}
	}

	w.End()
	opts := w.Bytes()

	total := offOpts + len(opts)
	if cfg.BOOTPMinLen > 0 && total < offOpts+cfg.BOOTPMinLen {
		total = offOpts + cfg.BOOTPMinLen
	}

	out := NewMessage(total)
	copy(out, m[:offOpts])
	copy(out[offOpts:], opts)
	return out
}

// shortHostname truncates a FQDN hostname to its leading label, per
// spec.md §4.1 "hostname (short form up to first '.')".
func shortHostname(h string) string {
	if i := strings.IndexByte(h, '.'); i >= 0 {
		return h[:i]
	}
	return h
}

// encodeFQDN builds option 81's value: flags byte, two zero bytes (rcode1,
// rcode2, unused by the client), then the RFC 1035 label sequence.
func encodeFQDN(cfg *Config) []byte {
	flags := (cfg.FQDNFlags & 0x09) | 0x04
	out := []byte{flags, 0, 0}
	return append(out, EncodeRFC1035Label(cfg.Hostname)...)
}

// SecsSince computes the builder's secs field from an interface start time,
// clamped to fit a u16 (spec.md §4.1).
func SecsSince(start, now time.Time) uint16 {
	d := now.Sub(start)
	if d <= 0 {
		return 0
	}
	secs := d / time.Second
	if secs > 0xFFFF {
		return 0xFFFF
	}
	return uint16(secs)
}
