package proxyhttp

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/sslproxymanager/core/internal/config"
	"github.com/sslproxymanager/core/internal/core/constants"
)

// newUpstreamClients builds the pair of HTTP clients every listener keeps: one
// that follows redirects transparently (the default proxy behaviour) and one
// that never does, for routes with FollowRedirects=false.
func newUpstreamClients(global config.GlobalConfig) (follow, noFollow *http.Client) {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   durationOrDefault(global.UpstreamConnectTimeoutMs, 5000),
			KeepAlive: constants.DefaultTCPKeepAlive,
		}).DialContext,
		MaxIdleConns:        global.UpstreamPoolMaxIdle,
		MaxIdleConnsPerHost: global.UpstreamPoolMaxIdle,
		IdleConnTimeout:     time.Duration(global.UpstreamPoolIdleTimeoutSec) * time.Second,
		TLSHandshakeTimeout: constants.DefaultTLSHandshakeTimeout,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		ForceAttemptHTTP2:   global.EnableHTTP2,
	}

	follow = &http.Client{Transport: transport}
	noFollow = &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return follow, noFollow
}

func durationOrDefault(ms int, fallbackMs int) time.Duration {
	if ms <= 0 {
		ms = fallbackMs
	}
	return time.Duration(ms) * time.Millisecond
}
