package dhcp4

// OptionType is a bit-flag tag describing how an option's value is encoded,
// per spec.md §3. Using bit flags (rather than a closed enum) lets a future
// option carry more than one shape hint without widening the table.
type OptionType uint16

const (
	TypeUint8 OptionType = 1 << iota
	TypeUint16
	TypeSint16
	TypeUint32
	TypeAddrIPv4
	TypeString
	TypeArray
	TypeRFC3397
	TypeRFC3442
	TypeRFC3361
	TypeRFC5969
)

// OptionFlag carries meta behavior: inclusion in the default
// parameter-request list, or exclusion from it. An explicit RequestMask
// entry takes precedence over either flag.
type OptionFlag uint8

const (
	FlagRequest OptionFlag = 1 << iota
	FlagNoMask
)

// OptionDef is one row of the option table: code, canonical env-export name,
// wire type, and request-list behavior. Encoders, the parameter-request-list
// builder and the script-environment exporter all consult this same table by
// lookup (spec.md §9 DESIGN NOTES: "option table as data").
type OptionDef struct {
	Code  uint8
	Name  string
	Type  OptionType
	Flags OptionFlag
}

// optionTable is the subset of RFC 2132 / 3397 / 3361 / 3442 / 5969 options
// this client builds, requests or renders to the script environment. Codes
// absent from this table are treated as unknown: get_option passes their
// value through unvalidated (spec.md §4.1).
var optionTable = []OptionDef{
	{OptionSubnetMask, "subnet_mask", TypeAddrIPv4, FlagRequest},
	{OptionTimeOffset, "time_offset", TypeUint32, 0},
	{OptionRouter, "routers", TypeArray, FlagRequest},
	{OptionDomainNameServer, "dns_servers", TypeArray, FlagRequest},
	{OptionHostName, "host_name", TypeString, FlagRequest},
	{OptionDomainName, "domain_name", TypeString, FlagRequest},
	{OptionBroadcastAddr, "broadcast_address", TypeAddrIPv4, FlagRequest},
	{OptionStaticRoute, "static_routes", TypeArray, 0},
	{OptionNTPServers, "ntp_servers", TypeArray, FlagRequest},
	{OptionVendorSpecific, "vendor_encapsulated_options", TypeString, 0},
	{OptionRequestedIPAddress, "requested_address", TypeAddrIPv4, 0},
	{OptionIPAddressLeaseTime, "lease_time", TypeUint32, FlagRequest},
	{OptionOptionsOverload, "option_overload", TypeUint8, 0},
	{OptionDHCPMessageType, "dhcp_message_type", TypeUint8, 0},
	{OptionServerIdentifier, "dhcp_server_identifier", TypeAddrIPv4, FlagRequest},
	{OptionParameterRequestList, "parameter_request_list", TypeArray, 0},
	{OptionMessage, "dhcp_message", TypeString, 0},
	{OptionMaximumMessageSize, "dhcp_max_message_size", TypeUint16, 0},
	{OptionRenewalTime, "renewal_time", TypeUint32, FlagRequest},
	{OptionRebindingTime, "rebinding_time", TypeUint32, FlagRequest},
	{OptionVendorClassIdentifier, "vendor_class_id", TypeString, 0},
	{OptionClientIdentifier, "dhcp_client_identifier", TypeString, FlagNoMask},
	{OptionUserClass, "user_class", TypeString, 0},
	{OptionFQDN, "fqdn", TypeString, FlagNoMask},
	{OptionDomainSearch, "domain_search", TypeRFC3397, FlagRequest},
	{OptionSIPServers, "sip_servers", TypeRFC3361, FlagRequest},
	{OptionClasslessStaticRoute, "classless_static_routes", TypeRFC3442, FlagRequest},
	{OptionClasslessStaticRouteMS, "classless_static_routes_ms", TypeRFC3442, 0},
	{Option6RD, "sixrd", TypeRFC5969, 0},
}

var optionsByCode map[uint8]OptionDef

func init() {
	optionsByCode = make(map[uint8]OptionDef, len(optionTable))
	for _, d := range optionTable {
		optionsByCode[d.Code] = d
	}
}

// lookupOption returns the table entry for code, and whether it was found.
func lookupOption(code uint8) (OptionDef, bool) {
	d, ok := optionsByCode[code]
	return d, ok
}

// scalarWidth returns the wire width of a fixed-size scalar type, and
// whether code's type is one of them at all.
func scalarWidth(t OptionType) (int, bool) {
	switch {
	case t&TypeUint32 != 0 || t&TypeAddrIPv4 != 0:
		return 4, true
	case t&TypeUint16 != 0 || t&TypeSint16 != 0:
		return 2, true
	case t&TypeUint8 != 0:
		return 1, true
	default:
		return 0, false
	}
}

// requestedByDefault reports whether code should appear in the default
// Parameter-Request-List (option 55) a builder emits, honoring an explicit
// caller-supplied requestmask override.
func requestedByDefault(code uint8, requestmask map[uint8]bool) bool {
	if requestmask != nil {
		if want, ok := requestmask[code]; ok {
			return want
		}
	}
	d, ok := lookupOption(code)
	if !ok {
		return false
	}
	if d.Flags&FlagNoMask != 0 {
		return false
	}
	return d.Flags&FlagRequest != 0
}
