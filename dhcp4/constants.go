package dhcp4

import "time"

// BOOTP op codes.
const (
	BootRequest uint8 = 1
	BootReply   uint8 = 2
)

// MagicCookie identifies a DHCP (as opposed to plain BOOTP) options area.
const MagicCookie uint32 = 0x63825363

// Flags field bits.
const FlagBroadcast uint16 = 0x8000

// Fixed-size header field widths, per spec.md §3.
const (
	chaddrLen = 16
	snameLen  = 64
	fileLen   = 128

	// HeaderLen is the 240-byte fixed part of a message: the 236-byte BOOTP
	// header plus the 4-byte magic cookie, options excluded.
	HeaderLen = 1 + 1 + 1 + 1 + 4 + 2 + 2 + 4 + 4 + 4 + 4 + chaddrLen + snameLen + fileLen + 4

	// MaxMessageLen is the default maximum total message size (header + options).
	MaxMessageLen = 576

	// MinBOOTPLen is the smallest legal BOOTP options area some servers expect padded up to.
	MinBOOTPLen = 64
)

// MessageType is the value of option 53 (DHCP Message Type).
type MessageType uint8

const (
	_ MessageType = iota
	Discover
	Offer
	Request
	Decline
	Ack
	Nak
	Release
	Inform
)

func (t MessageType) String() string {
	switch t {
	case Discover:
		return "DISCOVER"
	case Offer:
		return "OFFER"
	case Request:
		return "REQUEST"
	case Decline:
		return "DECLINE"
	case Ack:
		return "ACK"
	case Nak:
		return "NAK"
	case Release:
		return "RELEASE"
	case Inform:
		return "INFORM"
	default:
		return "UNKNOWN"
	}
}

// Option codes used explicitly by the codec, builder or state machine.
// The full type/name registry lives in optiontable.go.
const (
	OptionPad                   uint8 = 0
	OptionSubnetMask            uint8 = 1
	OptionTimeOffset            uint8 = 2
	OptionRouter                uint8 = 3
	OptionDomainNameServer      uint8 = 6
	OptionHostName              uint8 = 12
	OptionDomainName            uint8 = 15
	OptionBroadcastAddr         uint8 = 28
	OptionStaticRoute           uint8 = 33
	OptionNTPServers            uint8 = 42
	OptionVendorSpecific        uint8 = 43
	OptionRequestedIPAddress    uint8 = 50
	OptionIPAddressLeaseTime    uint8 = 51
	OptionOptionsOverload       uint8 = 52
	OptionDHCPMessageType       uint8 = 53
	OptionServerIdentifier      uint8 = 54
	OptionParameterRequestList  uint8 = 55
	OptionMessage               uint8 = 56
	OptionMaximumMessageSize    uint8 = 57
	OptionRenewalTime           uint8 = 58
	OptionRebindingTime         uint8 = 59
	OptionVendorClassIdentifier uint8 = 60
	OptionClientIdentifier      uint8 = 61
	OptionDomainSearch          uint8 = 119
	OptionSIPServers            uint8 = 120
	OptionClasslessStaticRoute  uint8 = 121
	OptionFQDN                  uint8 = 81
	OptionUserClass             uint8 = 77
	Option6RD                   uint8 = 212
	OptionClasslessStaticRouteMS uint8 = 249
	OptionEnd                   uint8 = 255
)

// Retransmission schedule, spec.md §4.2 and §8.
const (
	initialRetransmitInterval = 4 * time.Second
	maxRetransmitInterval     = 64 * time.Second
	randMin                   = -1 * time.Second
	randMax                   = 1 * time.Second
)

// NAK backoff schedule, spec.md §4.2 and §8.
const nakBackoffMax = 60 * time.Second

// DHCPMinLease is the floor a client clamps an adopted lease time to.
const DHCPMinLease uint32 = 20

// t1Fraction / t2Fraction are the renewal/rebind fractions of lease time.
const (
	t1Fraction = 0.5
	t2Fraction = 0.875
)

// ReleaseDelay is the deliberate pause between emitting RELEASE and tearing
// down the interface, giving the kernel time to flush the frame (spec.md §4.2).
const ReleaseDelay = 10 * time.Millisecond

// MTUMin is the smallest Maximum-Message-Size a builder will advertise
// before attempting to raise the interface MTU (spec.md §4.1).
const MTUMin = 576
