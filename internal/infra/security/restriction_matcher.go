package security

import (
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"license-activation-service/internal/domain/model"
)

// MatchRestrictions evaluates every configured check of rs against rc. A nil or
// empty set always passes; each list only constrains when it is non-empty.
func MatchRestrictions(rc model.RequestContext, rs *model.RestrictionSet) model.MatchResult {
	res := model.MatchResult{IPOk: true, DomainOk: true, HardwareOk: true}
	if rs.IsEmpty() {
		return res
	}

	if len(rs.AllowedIPs) > 0 {
		if !MatchIP(rc.IP, rs.AllowedIPs) {
			res.IPOk = false
			res.Errors = append(res.Errors, fmt.Sprintf("ip %q is not allowed", rc.IP))
		}
	}
	if len(rs.AllowedDomains) > 0 {
		if !MatchDomain(rc.Domain, rs.AllowedDomains) {
			res.DomainOk = false
			res.Errors = append(res.Errors, fmt.Sprintf("domain %q is not allowed", rc.Domain))
		}
	}
	if rs.HardwareID != "" {
		if !MatchHardware(rc.HardwareID, rs.HardwareID) {
			res.HardwareOk = false
			res.Errors = append(res.Errors, "hardware fingerprint mismatch")
		}
	}
	return res
}

// MatchIP reports whether ip is covered by any entry. Per entry the forms are
// tried in order: exact, CIDR, octet wildcard, dash range.
func MatchIP(ip string, allowed []string) bool {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return false
	}
	for _, entry := range allowed {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if ip == entry {
			return true
		}
		if strings.Contains(entry, "/") {
			if matchCIDR(ip, entry) {
				return true
			}
			continue
		}
		if strings.Contains(entry, "*") {
			if matchWildcard(ip, entry) {
				return true
			}
			continue
		}
		if strings.Contains(entry, "-") && matchRange(ip, entry) {
			return true
		}
	}
	return false
}

// ipv4ToUint parses a dotted-quad into its 32-bit value.
func ipv4ToUint(s string) (uint32, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil || !addr.Is4() {
		return 0, false
	}
	b := addr.As4()
	return binary.BigEndian.Uint32(b[:]), true
}

func matchCIDR(ip, cidr string) bool {
	netPart, bitsPart, ok := strings.Cut(cidr, "/")
	if !ok {
		return false
	}
	bits, err := strconv.Atoi(bitsPart)
	if err != nil {
		return false
	}
	if ipU, ok := ipv4ToUint(ip); ok {
		netU, ok := ipv4ToUint(netPart)
		if !ok || bits < 0 || bits > 32 {
			return false
		}
		var mask uint32
		if bits > 0 {
			mask = ^uint32(0) << (32 - bits)
		}
		return ipU&mask == netU&mask
	}
	// IPv6 callers fall back to prefix containment.
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return false
	}
	return prefix.Contains(addr)
}

// matchWildcard accepts entries like 192.168.*.* where each * stands for exactly one octet.
func matchWildcard(ip, pattern string) bool {
	if _, ok := ipv4ToUint(ip); !ok {
		return false
	}
	ipParts := strings.Split(ip, ".")
	patParts := strings.Split(pattern, ".")
	if len(patParts) != 4 {
		return false
	}
	for i, p := range patParts {
		if p == "*" {
			continue
		}
		if p != ipParts[i] {
			return false
		}
	}
	return true
}

// matchRange accepts start-end with both ends inclusive.
func matchRange(ip, r string) bool {
	startS, endS, ok := strings.Cut(r, "-")
	if !ok {
		return false
	}
	ipU, ok := ipv4ToUint(ip)
	if !ok {
		return false
	}
	start, ok1 := ipv4ToUint(startS)
	end, ok2 := ipv4ToUint(endS)
	if !ok1 || !ok2 {
		return false
	}
	return ipU >= start && ipU <= end
}

// MatchDomain compares case-insensitively: exact, then "*." wildcard over a base
// domain, then a plain suffix that must sit on a label boundary.
func MatchDomain(domain string, allowed []string) bool {
	d := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
	if d == "" {
		return false
	}
	for _, entry := range allowed {
		e := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(entry)), ".")
		if e == "" {
			continue
		}
		if d == e {
			return true
		}
		if base, ok := strings.CutPrefix(e, "*."); ok {
			if base != "" && (d == base || strings.HasSuffix(d, "."+base)) {
				return true
			}
			continue
		}
		if strings.HasSuffix(d, "."+e) {
			return true
		}
	}
	return false
}

// MatchHardware is a case-insensitive constant-time equality.
func MatchHardware(presented, expected string) bool {
	a := []byte(strings.ToLower(strings.TrimSpace(presented)))
	b := []byte(strings.ToLower(strings.TrimSpace(expected)))
	return subtle.ConstantTimeCompare(a, b) == 1
}
