package influx

import (
	"context"
	"fmt"
	"net"
	"net/url"
)

// Resolver looks up host addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// ResolveURL replaces the host of an http URL with its first IPv4 address.
// IP literals and https URLs (which need the name for TLS) are returned
// unchanged. Resolution happens once at startup.
func ResolveURL(ctx context.Context, r Resolver, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse influx url %q: %w", rawURL, err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("influx url %q has no host", rawURL)
	}
	if u.Scheme == "https" || net.ParseIP(host) != nil {
		return rawURL, nil
	}

	ips, err := r.LookupIP(ctx, "ip4", host)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(ips) == 0 {
		return "", fmt.Errorf("resolve %s: no IPv4 addresses", host)
	}

	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(ips[0].String(), port)
	} else {
		u.Host = ips[0].String()
	}
	return u.String(), nil
}
