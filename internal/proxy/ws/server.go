// Package ws implements the WebSocket upgrade/bridge engine: one upstream
// connection per client, text and binary messages relayed unchanged in both
// directions.
package ws

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/sslproxymanager/core/internal/config"
	"github.com/sslproxymanager/core/internal/core/ports"
	"github.com/sslproxymanager/core/internal/logger"
	"github.com/sslproxymanager/core/internal/router"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Listener serves one WSRule: a set of bind addresses upgrading to whichever
// of the rule's routes matches the request's host + longest path prefix.
type Listener struct {
	rule      config.WSRule
	global    config.GlobalConfig
	gate      ports.AccessGate
	log       *logger.StyledLogger
	server    *http.Server
	registry  *router.Registry
	upstreams map[string]string
}

func New(rule config.WSRule, global config.GlobalConfig, gate ports.AccessGate, log *logger.StyledLogger) *Listener {
	httpRoutes := make([]config.Route, 0, len(rule.Routes))
	upstreams := make(map[string]string, len(rule.Routes))
	for i, wr := range rule.Routes {
		id := wr.ID
		if id == "" {
			id = fmt.Sprintf("route-%d", i)
		}
		httpRoutes = append(httpRoutes, config.Route{ID: id, Host: wr.Host, Path: wr.Path, Enabled: wr.Enabled})
		upstreams[id] = wr.UpstreamURL
	}
	registry := router.NewRegistry(config.ListenRule{Routes: httpRoutes})
	return &Listener{rule: rule, global: global, gate: gate, log: log, registry: registry, upstreams: upstreams}
}

func (l *Listener) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", l.handleUpgrade)

	for _, addr := range l.rule.ListenAddrs {
		server := &http.Server{Addr: addr, Handler: mux}
		l.server = server

		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		go func() {
			if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
				l.log.ErrorWithListener("ws listener stopped unexpectedly", addr, "error", err)
			}
		}()
		l.log.InfoWithListener("ws listener started", addr)
	}
	return nil
}

func (l *Listener) Stop(ctx context.Context) error {
	if l.server == nil {
		return nil
	}
	return l.server.Shutdown(ctx)
}

func (l *Listener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	clientIP := l.gate.DeriveClientIP(r.RemoteAddr, r.Header)
	if l.global.WSAccessControlEnabled && !l.gate.IsAllowedFast(clientIP, l.global.AllowAllLan, l.global.AllowAllIP) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	route, ok := l.registry.Match(r.Host, r.URL.Path)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	upstreamURL := l.upstreams[route.ID]

	clientConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.log.Warn("ws upgrade failed", "error", err, "client_ip", clientIP.String())
		return
	}
	defer clientConn.Close()

	upstreamConn, _, err := websocket.DefaultDialer.Dial(upstreamURL, nil)
	if err != nil {
		l.log.ErrorWithUpstream("ws upstream dial failed", upstreamURL, "error", err)
		clientConn.Close()
		return
	}
	defer upstreamConn.Close()

	done := make(chan struct{}, 2)
	go bridge(clientConn, upstreamConn, done)
	go bridge(upstreamConn, clientConn, done)
	<-done
}

// bridge copies every text and binary message from src to dst until either
// side closes or errors, then signals done so the caller can tear down both
// connections. Ping, pong and close control frames are not forwarded: each
// connection answers them with gorilla/websocket's default handlers, so a
// close code and reason sent by one side do not reach the other.
func bridge(src, dst *websocket.Conn, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	for {
		msgType, data, err := src.ReadMessage()
		if err != nil {
			return
		}
		if err := dst.WriteMessage(msgType, data); err != nil {
			return
		}
	}
}
