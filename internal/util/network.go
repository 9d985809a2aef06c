package util

import "net"

// private IPv4 ranges considered LAN for the access gate's LAN-allow check.
var lanRanges4 = []*net.IPNet{
	mustCIDR("10.0.0.0/8"),
	mustCIDR("172.16.0.0/12"),
	mustCIDR("192.168.0.0/16"),
	mustCIDR("169.254.0.0/16"),
}

func mustCIDR(s string) *net.IPNet {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		panic("util: invalid built-in CIDR " + s)
	}
	return n
}

// FoldIPv4Mapped collapses an IPv4-mapped IPv6 address ("::ffff:a.b.c.d")
// down to its plain IPv4 form so every predicate below (loopback, LAN,
// whitelist equality) agrees regardless of which form the client presented.
func FoldIPv4Mapped(ip net.IP) net.IP {
	if ip == nil {
		return ip
	}
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return ip
}

// ParseAndFold parses a textual IP and folds it via FoldIPv4Mapped. Returns
// nil if s does not parse.
func ParseAndFold(s string) net.IP {
	ip := net.ParseIP(s)
	if ip == nil {
		return nil
	}
	return FoldIPv4Mapped(ip)
}

// IsLoopback reports whether ip is 127.0.0.0/8 or ::1.
func IsLoopback(ip net.IP) bool {
	if ip == nil {
		return false
	}
	return FoldIPv4Mapped(ip).IsLoopback()
}

// IsLAN reports whether ip falls in one of the private IPv4 ranges or the
// IPv6 loopback/ULA/link-local equivalents.
func IsLAN(ip net.IP) bool {
	if ip == nil {
		return false
	}
	folded := FoldIPv4Mapped(ip)

	if v4 := folded.To4(); v4 != nil {
		for _, r := range lanRanges4 {
			if r.Contains(v4) {
				return true
			}
		}
		return false
	}

	// IPv6: loopback, unique local (fc00::/7), link-local (fe80::/10)
	if folded.IsLoopback() {
		return true
	}
	if folded[0]&0xfe == 0xfc { // fc00::/7
		return true
	}
	return folded.IsLinkLocalUnicast()
}

// IPEqual compares two IPs after folding IPv4-mapped forms, so a whitelist
// entry of "192.168.1.10" matches an inbound "::ffff:192.168.1.10" (P9).
func IPEqual(a, b net.IP) bool {
	if a == nil || b == nil {
		return false
	}
	return FoldIPv4Mapped(a).Equal(FoldIPv4Mapped(b))
}

func ParseTrustedCIDRs(cidrStrings []string) ([]*net.IPNet, error) {
	if len(cidrStrings) == 0 {
		return nil, nil
	}
	cidrs := make([]*net.IPNet, 0, len(cidrStrings))
	for _, s := range cidrStrings {
		if s == "" {
			continue
		}
		_, n, err := net.ParseCIDR(s)
		if err != nil {
			return nil, err
		}
		cidrs = append(cidrs, n)
	}
	return cidrs, nil
}
