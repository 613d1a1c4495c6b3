// Package urlguard validates user-supplied recipe URLs before any network
// I/O happens. It implements SSRF prevention: scheme and port allow-lists,
// credential-smuggling rejection, blocked internal hostname patterns, and
// fail-closed DNS resolution with private/reserved address screening.
package urlguard

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Ports a recipe URL may carry explicitly. URLs without an explicit port
// are always allowed (the scheme default applies).
var allowedPorts = map[string]bool{
	"80":   true,
	"443":  true,
	"8080": true,
	"8443": true,
}

// Hostname suffixes that always denote internal infrastructure.
var blockedSuffixes = []string{".local", ".internal", ".localhost"}

// Pre-compiled CIDR networks for reserved ranges the net.IP predicates
// don't cover. Parsed once at package initialization.
var (
	cgnat    *net.IPNet // 100.64.0.0/10 - carrier-grade NAT
	v6unique *net.IPNet // fc00::/7 - IPv6 unique local
)

func init() {
	var err error

	_, cgnat, err = net.ParseCIDR("100.64.0.0/10")
	if err != nil {
		panic("invalid CGNAT CIDR: " + err.Error())
	}

	_, v6unique, err = net.ParseCIDR("fc00::/7")
	if err != nil {
		panic("invalid IPv6 unique local CIDR: " + err.Error())
	}
}

// Verdict is the outcome of validating a single URL. Reason is set only
// when the URL is rejected.
type Verdict struct {
	Allowed bool
	Reason  string
}

func allow() Verdict {
	return Verdict{Allowed: true}
}

func reject(format string, args ...any) Verdict {
	return Verdict{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

// Resolver resolves hostnames to IP addresses. Satisfied by *net.Resolver;
// tests inject a fake so validation never touches real DNS.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Guard validates URLs for fetching. The zero value is not usable; use New.
type Guard struct {
	resolver Resolver
}

// New creates a Guard backed by the system resolver.
func New() *Guard {
	return &Guard{resolver: net.DefaultResolver}
}

// NewWithResolver creates a Guard with a custom resolver.
func NewWithResolver(r Resolver) *Guard {
	return &Guard{resolver: r}
}

// Validate checks a raw URL against the full rejection sequence. The first
// failing check wins. Resolution failures reject: an unresolvable host is
// never fetched "anyway".
//
// Validation runs once, synchronously, before fetching. The fetcher
// re-screens resolved addresses at dial time to narrow the
// resolve-then-fetch rebinding window.
func (g *Guard) Validate(ctx context.Context, rawURL string) Verdict {
	if strings.TrimSpace(rawURL) == "" {
		return reject("URL is blank")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return reject("URL is not parseable: %v", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return reject("scheme %q is not allowed", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return reject("URL has no host")
	}

	// Embedded credentials are a smuggling vector; no legitimate recipe
	// URL carries userinfo.
	if parsed.User != nil && parsed.User.String() != "" {
		return reject("URL must not contain credentials")
	}

	if port := parsed.Port(); port != "" && !allowedPorts[port] {
		return reject("port %s is not allowed", port)
	}

	lowHost := strings.ToLower(host)
	if lowHost == "localhost" {
		return reject("localhost URLs are not allowed")
	}
	for _, suffix := range blockedSuffixes {
		if strings.HasSuffix(lowHost, suffix) {
			return reject("internal domain URLs are not allowed")
		}
	}

	addrs, err := g.resolver.LookupIPAddr(ctx, host)
	if err != nil || len(addrs) == 0 {
		return reject("host %s does not resolve", host)
	}

	for _, addr := range addrs {
		if IsBlockedIP(addr.IP) {
			return reject("host %s resolves to a blocked address", host)
		}
	}

	return allow()
}

// IsBlockedIP reports whether an IP must never be fetched: loopback,
// RFC1918 private, link-local, unspecified, CGNAT, or IPv6 unique local.
// IPv6-mapped IPv4 addresses are unwrapped and re-checked.
func IsBlockedIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}

	// ::ffff:x.x.x.x smuggles an IPv4 address inside IPv6 notation.
	if v4 := ip.To4(); v4 != nil {
		ip = v4
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return true
		}
	}

	return cgnat.Contains(ip) || v6unique.Contains(ip)
}

// Domain extracts the hostname from a URL for user-facing messages, with a
// leading "www." stripped. Returns an empty string for unparseable URLs.
// Never returns path or query components; failed-import messages must not
// leak query parameters.
func Domain(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := parsed.Hostname()
	return strings.TrimPrefix(host, "www.")
}
