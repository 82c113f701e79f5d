package dhcp4

import (
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig mirrors Config in the shape a YAML settings file uses:
// plain strings and durations instead of parsed net types, unmarshaled
// with DisallowUnknownFields-equivalent strictness via yaml.v3's
// KnownFields decoder option.
type FileConfig struct {
	Interface      string          `yaml:"interface"`
	ClientID       string          `yaml:"client_id"`
	Hostname       string          `yaml:"hostname"`
	FQDN           bool            `yaml:"fqdn"`
	VendorClassID  string          `yaml:"vendor_class_id"`
	UserClass      string          `yaml:"user_class"`
	RequestedAddr  string          `yaml:"requested_address"`
	LeaseTime      uint32          `yaml:"lease_time"`
	RequireServer  bool            `yaml:"require_server_id"`
	Broadcast      bool            `yaml:"broadcast"`
	RebootDuration time.Duration   `yaml:"reboot_duration"`
	ARPEnable      bool            `yaml:"arp_check"`
	Test           bool            `yaml:"test"`
	LeasePath      string          `yaml:"lease_file"`
	ScriptPath     string          `yaml:"script"`
	Request        []uint8         `yaml:"request"`
	NoRequest      []uint8         `yaml:"no_request"`
}

// LoadConfigFile reads and validates a YAML settings file, resolving
// HardwareAddr from the named interface. It returns the parsed Config
// alongside that interface's name, since Config itself carries no notion
// of which link it is bound to.
func LoadConfigFile(path string) (*Config, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("dhcp4: open config %s: %w", path, err)
	}
	defer f.Close()

	var fc FileConfig
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		return nil, "", fmt.Errorf("dhcp4: parse config %s: %w", path, err)
	}
	cfg, err := fc.toConfig()
	if err != nil {
		return nil, "", err
	}
	return cfg, fc.Interface, nil
}

func (fc FileConfig) toConfig() (*Config, error) {
	if fc.Interface == "" {
		return nil, fmt.Errorf("dhcp4: config: interface is required")
	}
	ifi, err := net.InterfaceByName(fc.Interface)
	if err != nil {
		return nil, fmt.Errorf("dhcp4: config: lookup interface %s: %w", fc.Interface, err)
	}

	cfg := &Config{
		HardwareAddr:    ifi.HardwareAddr,
		Hostname:        fc.Hostname,
		VendorClassID:   fc.VendorClassID,
		LeaseTime:       fc.LeaseTime,
		RequireServerID: fc.RequireServer,
		BroadcastFlag:   fc.Broadcast,
		RebootDuration:  fc.RebootDuration,
		ARPEnable:       fc.ARPEnable,
		Test:            fc.Test,
		LeasePath:       fc.LeasePath,
		ScriptPath:      fc.ScriptPath,
	}
	if fc.ClientID != "" {
		cfg.ClientID = []byte(fc.ClientID)
	}
	if fc.UserClass != "" {
		cfg.UserClass = []byte(fc.UserClass)
	}
	if fc.FQDN {
		cfg.FQDNFlags = 0x01 // S bit: ask the server to perform the A-record update
	}
	if fc.RequestedAddr != "" {
		addr, err := netip.ParseAddr(fc.RequestedAddr)
		if err != nil {
			return nil, fmt.Errorf("dhcp4: config: requested_address: %w", err)
		}
		cfg.RequestedAddr = addr
	}
	if len(fc.Request) > 0 || len(fc.NoRequest) > 0 {
		cfg.RequestMask = make(map[uint8]bool, len(fc.Request)+len(fc.NoRequest))
		for _, c := range fc.Request {
			cfg.RequestMask[c] = true
		}
		for _, c := range fc.NoRequest {
			cfg.RequestMask[c] = false
		}
	}
	if cfg.RebootDuration == 0 {
		cfg.RebootDuration = 10 * time.Second
	}
	return cfg, nil
}
