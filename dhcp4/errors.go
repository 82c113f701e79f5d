package dhcp4

import "errors"

// Sentinel errors, per spec.md §7. Callers wrap these with %w so the
// underlying kind survives errors.Is checks across package boundaries.
var (
	ErrInvalid  = errors.New("dhcp4: malformed option or message")
	ErrNotFound = errors.New("dhcp4: option not found")
	ErrIO       = errors.New("dhcp4: io error")
	ErrRejected = errors.New("dhcp4: rejected by whitelist/blacklist/required-options check")
	ErrNak      = errors.New("dhcp4: server issued NAK")
)
