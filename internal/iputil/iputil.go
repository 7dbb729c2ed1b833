package iputil

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ParseCIDRs parses IP addresses or CIDR notations. Single addresses become
// /32 or /128 networks.
func ParseCIDRs(cidrStrings []string) ([]*net.IPNet, error) {
	if len(cidrStrings) == 0 {
		return nil, nil
	}

	cidrs := make([]*net.IPNet, 0, len(cidrStrings))
	for _, s := range cidrStrings {
		s = strings.TrimSpace(s)
		if ip := net.ParseIP(s); ip != nil {
			bits := 128
			if ip.To4() != nil {
				bits = 32
			}
			cidrs = append(cidrs, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, ipNet, err := net.ParseCIDR(s)
		if err != nil {
			return nil, fmt.Errorf("invalid IP/CIDR format: %s (%w)", s, err)
		}
		cidrs = append(cidrs, ipNet)
	}
	return cidrs, nil
}

// Resolver finds the client address of a relay request. Forwarding headers
// are only honoured when the direct peer is a trusted proxy.
type Resolver struct {
	trusted []*net.IPNet
	header  string
}

// NewResolver parses trustedProxies once. header is an optional extra
// client IP header (e.g. X-Real-IP) checked before X-Forwarded-For.
func NewResolver(trustedProxies []string, header string) (*Resolver, error) {
	trusted, err := ParseCIDRs(trustedProxies)
	if err != nil {
		return nil, err
	}
	return &Resolver{trusted: trusted, header: header}, nil
}

// ClientIP returns the best known client address for r.
func (res *Resolver) ClientIP(r *http.Request) string {
	peer := remoteHost(r)
	if !res.isTrusted(peer) {
		return peer
	}

	if res.header != "" {
		if ip := strings.TrimSpace(r.Header.Get(res.header)); net.ParseIP(ip) != nil {
			return ip
		}
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
			return ip
		}
	}
	return peer
}

func (res *Resolver) isTrusted(host string) bool {
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, cidr := range res.trusted {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
