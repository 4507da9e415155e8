package audit

import (
	"net"
	"time"
)

// Retention window after which client IPs in audit rows are anonymized.
const ipRetention = 90 * 24 * time.Hour

// Prefix lengths kept after anonymization: /24 for IPv4, /48 for IPv6.
var (
	v4Mask = net.CIDRMask(24, 32)
	v6Mask = net.CIDRMask(48, 128)
)

// AnonymizeIP masks the host portion of an IP address, keeping only the
// network prefix (192.168.1.100 becomes 192.168.1.0). Invalid input
// yields "".
func AnonymizeIP(ipStr string) string {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return ""
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.Mask(v4Mask).String()
	}
	return ip.Mask(v6Mask).String()
}

// IPAnonymizationCutoff returns the timestamp before which audit rows
// are due for IP anonymization.
func IPAnonymizationCutoff() time.Time {
	return time.Now().UTC().Add(-ipRetention)
}
