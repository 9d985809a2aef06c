package proxyhttp

import (
	"crypto/tls"
	"net"
)

// newListener binds addr, wrapping it in a TLS listener when tlsConfig is
// non-nil, so Start can treat plain and TLS listeners identically.
func newListener(addr string, tlsConfig *tls.Config) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		return tls.NewListener(ln, tlsConfig), nil
	}
	return ln, nil
}
