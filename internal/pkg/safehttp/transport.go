// Package safehttp provides an HTTP transport for calls to operator-configured
// endpoints that must not reach internal hosts.
package safehttp

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// NewTransport returns a transport that rejects connections to private,
// loopback, link-local and unspecified addresses.
func NewTransport() *http.Transport {
	return &http.Transport{
		DialContext:         dialPublic,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
	}
}

func dialPublic(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	ip := net.ParseIP(host)
	if ip == nil {
		conn.Close()
		return nil, fmt.Errorf("failed to parse remote IP for %q", addr)
	}

	if !Allowed(ip) {
		conn.Close()
		return nil, fmt.Errorf("access to private IP %s is denied", ip)
	}

	return conn, nil
}

// Allowed reports whether ip may be dialed.
func Allowed(ip net.IP) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified())
}
