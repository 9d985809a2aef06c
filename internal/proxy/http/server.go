// Package proxyhttp implements the HTTP/HTTPS reverse proxy engine: listener
// lifecycle, per-request route matching, access control, and the reverse
// proxy pipeline itself.
package proxyhttp

import (
	"context"
	"crypto/tls"
	"net/http"

	"github.com/sslproxymanager/core/internal/config"
	"github.com/sslproxymanager/core/internal/core/domain"
	"github.com/sslproxymanager/core/internal/core/ports"
	"github.com/sslproxymanager/core/internal/logger"
	"github.com/sslproxymanager/core/internal/router"
)

// Listener owns one ListenRule's bound sockets and serves every route inside
// it from a single http.Server per bind address.
type Listener struct {
	rule   config.ListenRule
	global config.GlobalConfig

	registry *router.Registry
	routes   map[string]*routeState

	gate     ports.AccessGate
	balancer ports.Balancer
	metrics  ports.MetricsCollector
	log      *logger.StyledLogger

	follow, noFollow *http.Client

	servers []*http.Server
}

// New builds a Listener for rule. It does not bind any socket; call Start
// for that.
func New(rule config.ListenRule, global config.GlobalConfig, gate ports.AccessGate, balancer ports.Balancer, metrics ports.MetricsCollector, log *logger.StyledLogger) *Listener {
	routes := make(map[string]*routeState, len(rule.Routes))
	for _, r := range rule.Routes {
		routes[r.ID] = newRouteState(r)
	}

	follow, noFollow := newUpstreamClients(global)

	return &Listener{
		rule:     rule,
		global:   global,
		registry: router.NewRegistry(rule),
		routes:   routes,
		gate:     gate,
		balancer: balancer,
		metrics:  metrics,
		log:      log,
		follow:   follow,
		noFollow: noFollow,
	}
}

// Start binds every address in rule.ListenAddrs and begins serving. It
// returns once all addresses are bound (or the first bind/TLS failure),
// running each http.Server's Serve loop in its own goroutine.
func (l *Listener) Start(ctx context.Context) error {
	var tlsConfig *tls.Config
	if l.rule.TLS.Enabled {
		cert, err := tls.LoadX509KeyPair(l.rule.TLS.CertFile, l.rule.TLS.KeyFile)
		if err != nil {
			return domain.NewListenerStartupError(l.rule.ID, err)
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	}

	for _, addr := range l.rule.ListenAddrs {
		server := &http.Server{
			Addr:      addr,
			Handler:   withRecover(l, l.log),
			TLSConfig: tlsConfig,
		}
		l.servers = append(l.servers, server)

		ln, err := newListener(addr, tlsConfig)
		if err != nil {
			return domain.NewListenerStartupError(addr, err)
		}

		go func(srv *http.Server) {
			if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
				l.log.ErrorWithListener("listener stopped unexpectedly", addr, "error", err)
			}
		}(server)

		l.log.InfoWithListener("http listener started", addr)
	}
	return nil
}

// Stop gracefully shuts down every bound address, waiting up to the context
// deadline for in-flight requests to finish.
func (l *Listener) Stop(ctx context.Context) error {
	var lastErr error
	for _, srv := range l.servers {
		if err := srv.Shutdown(ctx); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// withRecover wraps h so a panic in the request pipeline becomes a 500
// instead of killing the listener's goroutine.
func withRecover(h http.Handler, log *logger.StyledLogger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("panic recovered in request pipeline", "panic", rec, "path", r.URL.Path)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		h.ServeHTTP(w, r)
	})
}
