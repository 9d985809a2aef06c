package util

import (
	"net"
	"testing"
)

func TestFoldIPv4Mapped(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain v4", "192.168.1.10", "192.168.1.10"},
		{"v4-mapped v6", "::ffff:192.168.1.10", "192.168.1.10"},
		{"plain v6", "fe80::1", "fe80::1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			folded := FoldIPv4Mapped(net.ParseIP(tc.in))
			if folded.String() != tc.want {
				t.Errorf("FoldIPv4Mapped(%s) = %s, want %s", tc.in, folded.String(), tc.want)
			}
		})
	}
}

func TestIsLoopback(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"127.0.0.1", true},
		{"::1", true},
		{"::ffff:127.0.0.1", true},
		{"10.0.0.1", false},
		{"8.8.8.8", false},
	}
	for _, tc := range tests {
		if got := IsLoopback(net.ParseIP(tc.ip)); got != tc.want {
			t.Errorf("IsLoopback(%s) = %v, want %v", tc.ip, got, tc.want)
		}
	}
}

func TestIsLAN(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"10.1.2.3", true},
		{"172.16.0.5", true},
		{"172.31.255.255", true},
		{"172.32.0.1", false},
		{"192.168.1.100", true},
		{"169.254.1.1", true},
		{"1.1.1.1", false},
		{"::ffff:192.168.1.100", true},
		{"fc00::1", true},
		{"fe80::1", true},
		{"2001:4860:4860::8888", false},
	}
	for _, tc := range tests {
		if got := IsLAN(net.ParseIP(tc.ip)); got != tc.want {
			t.Errorf("IsLAN(%s) = %v, want %v", tc.ip, got, tc.want)
		}
	}
}

func TestIPEqual_FoldedMatch(t *testing.T) {
	a := net.ParseIP("::ffff:192.168.1.10")
	b := net.ParseIP("192.168.1.10")
	if !IPEqual(a, b) {
		t.Error("expected folded IPv4-mapped address to equal plain IPv4 form")
	}
}
