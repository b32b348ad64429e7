package httputil

import (
	"fmt"
	"net"
)

// ValidateIP rejects IPs that should never be download or redirect
// targets: private ranges (RFC 1918), loopback, link-local (including
// cloud metadata services), multicast and unspecified addresses.
// The host parameter is included in error messages for debugging.
func ValidateIP(ip net.IP, host string) error {
	switch {
	case ip.IsPrivate():
		return fmt.Errorf("refusing request to private IP: %s (%s)", host, ip)
	case ip.IsLoopback():
		return fmt.Errorf("refusing request to loopback IP: %s (%s)", host, ip)
	case ip.IsLinkLocalUnicast():
		return fmt.Errorf("refusing request to link-local IP: %s (%s)", host, ip)
	case ip.IsLinkLocalMulticast(), ip.IsMulticast():
		return fmt.Errorf("refusing request to multicast IP: %s (%s)", host, ip)
	case ip.IsUnspecified():
		return fmt.Errorf("refusing request to unspecified IP: %s (%s)", host, ip)
	}
	return nil
}
