package ingress

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// DefaultAllowedCIDRs are the YooKassa notification source ranges.
var DefaultAllowedCIDRs = []string{
	"185.6.233.0/24",
	"185.6.234.0/24",
	"77.75.153.0/25",
}

// DefaultTrustedProxies are the peers whose X-Forwarded-For is believed:
// loopback and the docker bridge range where the reverse proxy runs.
var DefaultTrustedProxies = []string{
	"127.0.0.0/8",
	"::1/128",
	"172.16.0.0/12",
}

// SourceAuth accepts a webhook request when its source address is in an
// allowed network or it carries the shop's basic credentials.
type SourceAuth struct {
	nets     []*net.IPNet
	proxies  []*net.IPNet
	expected string // "Basic base64(shop_id:secret)"
}

// NewSourceAuth parses cidrs and trustedProxies. An empty shopID or secret
// disables the credentials check so that only the IP allow-list applies.
func NewSourceAuth(cidrs, trustedProxies []string, shopID, secret string) (*SourceAuth, error) {
	nets, err := parseNets(cidrs)
	if err != nil {
		return nil, err
	}
	proxies, err := parseNets(trustedProxies)
	if err != nil {
		return nil, err
	}
	a := &SourceAuth{nets: nets, proxies: proxies}
	if shopID != "" && secret != "" {
		a.expected = "Basic " + base64.StdEncoding.EncodeToString([]byte(shopID+":"+secret))
	}
	return a, nil
}

func parseNets(cidrs []string) ([]*net.IPNet, error) {
	var out []*net.IPNet
	for _, c := range cidrs {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q: %w", c, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// Allow reports whether the request is trusted.
func (a *SourceAuth) Allow(r *http.Request) bool {
	if ip := a.ClientIP(r); ip != nil && contains(a.nets, ip) {
		return true
	}
	if a.expected == "" {
		return false
	}
	got := r.Header.Get("Authorization")
	return subtle.ConstantTimeCompare([]byte(got), []byte(a.expected)) == 1
}

// ClientIP returns the address the request came from. X-Forwarded-For is
// read only when the socket peer is a trusted proxy, walking from the right
// and skipping further trusted hops; the left part of the header is written
// by the client and never believed.
func (a *SourceAuth) ClientIP(r *http.Request) net.IP {
	ip := RemoteIP(r)
	if ip == nil || !contains(a.proxies, ip) {
		return ip
	}
	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := net.ParseIP(strings.TrimSpace(hops[i]))
		if hop == nil {
			return ip
		}
		ip = hop
		if !contains(a.proxies, hop) {
			break
		}
	}
	return ip
}

// RemoteIP returns the socket peer address of the request.
func RemoteIP(r *http.Request) net.IP {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return net.ParseIP(host)
}

func contains(nets []*net.IPNet, ip net.IP) bool {
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
