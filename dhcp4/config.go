package dhcp4

import (
	"net"
	"net/netip"
	"time"
)

// Config bundles the per-interface settings the builder and state machine
// read, standing in for the original's loose collection of command-line
// derived globals (spec.md §9 DESIGN NOTES).
type Config struct {
	// HardwareAddr is the interface's link-layer address (chaddr source).
	HardwareAddr net.HardwareAddr

	// ClientID, if non-nil, is emitted verbatim as option 61.
	ClientID []byte

	// Hostname is sent in option 12 (truncated to the short form, up to
	// the first '.') and used to derive the FQDN option 81 name.
	Hostname string

	// FQDNFlags is the low nibble combined into the FQDN option 81
	// flags byte: (FQDNFlags & 0x09) | 0x04.
	FQDNFlags uint8

	// VendorClassID, if set, is emitted as option 60.
	VendorClassID string

	// UserClass, if set, is emitted as option 77.
	UserClass []byte

	// VendorSpecific, if set, is emitted verbatim as option 43.
	VendorSpecific []byte

	// RequestMask overrides default inclusion in the Parameter-Request-List:
	// explicit true forces inclusion, explicit false forces exclusion.
	RequestMask map[uint8]bool

	// RequestedAddr, if valid, is requested via option 50 on DISCOVER. A
	// REQUEST carries the offered address in option 50 instead.
	RequestedAddr netip.Addr

	// LeaseTime, if non-zero, is requested via option 51 (DISCOVER/REQUEST only).
	LeaseTime uint32

	// RequireServerID, when set, makes a NAK lacking option 54 be dropped
	// silently instead of driving the NAK backoff (spec.md §4.2).
	RequireServerID bool

	// BroadcastFlag requests the BROADCAST bit be set when ciaddr==0 and
	// the message type allows it.
	BroadcastFlag bool

	// MaxMessageSize is clamped to [MTUMin, 1500] before being sent as
	// option 57; zero selects MTUMin.
	MaxMessageSize uint16

	// BOOTPMinLen pads emitted messages with PAD bytes up to this total
	// options-area length, when positive.
	BOOTPMinLen int

	// RebootDuration bounds how long REBOOT retries before falling back
	// to DISCOVER (spec.md §4.2).
	RebootDuration time.Duration

	// ARPEnable turns on the duplicate-address-detection hand-off after ACK.
	ARPEnable bool

	// Test runs the state machine in dry-run mode: no lease write, no
	// kernel apply; the script is invoked with reason TEST on the first
	// OFFER (DISCOVER) or on bind. No REQUEST is sent after that OFFER and
	// no renew/rebind/expire timers are scheduled after that bind; the
	// process itself is not exited.
	Test bool

	// LeasePath is where bind writes the persistent lease snapshot and
	// where it is unlinked on NAK, expiry and release. The client does not
	// read it back at Start.
	LeasePath string

	// ScriptPath, if set, is invoked with lease variables on every bind.
	ScriptPath string
}

// defaultParameterRequestList returns option codes to request in option 55,
// honoring cfg.RequestMask and excluding 58/59 for INFORM (spec.md §4.1).
func defaultParameterRequestList(cfg *Config, mt MessageType) []uint8 {
	var codes []uint8
	for _, d := range optionTable {
		if !requestedByDefault(d.Code, cfg.RequestMask) {
			continue
		}
		if mt == Inform && (d.Code == OptionRenewalTime || d.Code == OptionRebindingTime) {
			continue
		}
		codes = append(codes, d.Code)
	}
	return codes
}
