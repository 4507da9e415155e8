package audit

import (
	"testing"
	"time"
)

func TestAnonymizeIP(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"IPv4 host bits cleared", "192.168.1.100", "192.168.1.0"},
		{"IPv4 already on boundary", "10.0.0.0", "10.0.0.0"},
		{"IPv4 broadcast octet", "172.16.254.255", "172.16.254.0"},
		{"public IPv4", "203.0.113.195", "203.0.113.0"},
		{"IPv6 keeps /48 prefix", "2001:0db8:85a3:0000:0000:8a2e:0370:7334", "2001:db8:85a3::"},
		{"compressed IPv6", "2001:db8:85a3::8a2e:370:7334", "2001:db8:85a3::"},
		{"IPv6 loopback", "::1", "::"},
		{"IPv6 already masked", "fe80::", "fe80::"},
		{"empty string", "", ""},
		{"not an address", "not-an-ip", ""},
		{"truncated IPv4", "192.168.1", ""},
		{"five octets", "192.168.1.1.1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AnonymizeIP(tt.input); got != tt.want {
				t.Errorf("AnonymizeIP(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestIPAnonymizationCutoff(t *testing.T) {
	cutoff := IPAnonymizationCutoff()

	want := time.Now().UTC().Add(-90 * 24 * time.Hour)
	if diff := cutoff.Sub(want); diff < -time.Second || diff > time.Second {
		t.Errorf("IPAnonymizationCutoff() = %v, want about %v", cutoff, want)
	}
	if cutoff.Location() != time.UTC {
		t.Errorf("cutoff location = %v, want UTC", cutoff.Location())
	}
}
