package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Public resolvers queried when the system resolver cannot answer. Relays are
// often reached from networks with broken or captive DNS, so the client races
// a handful of well-known providers as a fallback.
var publicDNS = []string{
	"1.1.1.1",                // Cloudflare
	"1.0.0.1",                // Cloudflare
	"8.8.8.8",                // Google
	"8.8.4.4",                // Google
	"9.9.9.9",                // Quad9
	"[2606:4700:4700::1111]", // Cloudflare v6
	"[2001:4860:4860::8888]", // Google v6
}

// Lookup resolves a hostname to an IP address, preferring the system resolver
// and falling back to a race across public DNS providers.
func Lookup(host string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	ip, err := lookupWith(ctx, &net.Resolver{}, host)
	cancel()
	if err == nil {
		return ip, nil
	}
	return raceLookup(host)
}

func lookupWith(ctx context.Context, r *net.Resolver, host string) (string, error) {
	ips, err := r.LookupHost(ctx, host)
	if err != nil {
		return "", err
	}
	if len(ips) == 0 {
		return "", errors.New("no IP addresses found")
	}
	// Prefer IPv4
	for _, ip := range ips {
		if net.ParseIP(ip).To4() != nil {
			return ip, nil
		}
	}
	return ips[0], nil
}

// raceLookup queries all public resolvers concurrently and returns the first
// successful answer.
func raceLookup(host string) (string, error) {
	type result struct {
		ip  string
		err error
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	results := make(chan result, len(publicDNS))
	for _, server := range publicDNS {
		go func(server string) {
			r := &net.Resolver{
				PreferGo: true,
				Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
					d := new(net.Dialer)
					return d.DialContext(ctx, network, net.JoinHostPort(server, "53"))
				},
			}
			ip, err := lookupWith(ctx, r, host)
			results <- result{ip: ip, err: err}
		}(server)
	}

	for range publicDNS {
		select {
		case res := <-results:
			if res.err == nil && res.ip != "" {
				return res.ip, nil
			}
		case <-ctx.Done():
			return "", fmt.Errorf("public DNS race timed out resolving %s", host)
		}
	}
	return "", fmt.Errorf("failed to resolve %s: all public DNS servers failed", host)
}
