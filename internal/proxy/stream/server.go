// Package stream implements the TCP/UDP stream proxy engine: a TCP splice
// with fail-state promotion, and a UDP session table pinning a client to the
// upstream it was first routed to.
package stream

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/sslproxymanager/core/internal/config"
	"github.com/sslproxymanager/core/internal/core/constants"
	"github.com/sslproxymanager/core/internal/core/domain"
	"github.com/sslproxymanager/core/internal/core/ports"
	"github.com/sslproxymanager/core/internal/logger"
	"github.com/sslproxymanager/core/internal/proxy/stream/hashring"
)

// Server runs one StreamServer definition: either a TCP splice listener or a
// UDP session-table relay, never both.
type Server struct {
	cfg    config.StreamServer
	global config.GlobalConfig
	gate   ports.AccessGate
	log    *logger.StyledLogger

	ring *hashring.Ring

	rrMu  sync.Mutex
	rrIdx uint64

	failMu sync.Mutex
	fails  map[string]*domain.StreamFailState

	udpSessions *xsync.Map[string, *domain.UDPSession]
	udpSockets  map[string]net.Conn

	listener net.Listener
	udpConn  *net.UDPConn
	stopCh   chan struct{}
}

func New(cfg config.StreamServer, global config.GlobalConfig, gate ports.AccessGate, log *logger.StyledLogger) *Server {
	upstreams := make([]string, 0, len(cfg.Upstreams))
	for _, u := range cfg.Upstreams {
		upstreams = append(upstreams, u.Addr)
	}
	return &Server{
		cfg:         cfg,
		global:      global,
		gate:        gate,
		log:         log,
		ring:        hashring.New(upstreams),
		fails:       make(map[string]*domain.StreamFailState),
		udpSessions: xsync.NewMap[string, *domain.UDPSession](),
		udpSockets:  make(map[string]net.Conn),
		stopCh:      make(chan struct{}),
	}
}

// pickUpstream resolves the upstream address for a connection. The hashring
// only applies when consistent hashing is enabled AND the server is
// configured to hash on the client address ($remote_addr) — any other
// combination (consistent disabled, or no sticky hash key configured) falls
// back to round-robin over the healthy upstream set, rather than pinning
// every connection to one constant ring key. key is the client's "ip:port";
// only the IP part is hashed, so every connection from one client lands on
// the same upstream.
func (s *Server) pickUpstream(key string) string {
	if s.cfg.Consistent && s.cfg.HashKey == "$remote_addr" {
		if host, _, err := net.SplitHostPort(key); err == nil {
			key = host
		}
		return s.ring.Pick(key, s.isUp)
	}
	return s.pickRoundRobin()
}

func (s *Server) pickRoundRobin() string {
	s.rrMu.Lock()
	defer s.rrMu.Unlock()
	n := len(s.cfg.Upstreams)
	if n == 0 {
		return ""
	}
	for i := 0; i < n; i++ {
		idx := int(s.rrIdx) % n
		s.rrIdx++
		addr := s.cfg.Upstreams[idx].Addr
		if s.isUp(addr) {
			return addr
		}
	}
	return ""
}

func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort("", strconv.Itoa(s.cfg.ListenPort))
	if s.cfg.UDP {
		return s.startUDP(addr)
	}
	return s.startTCP(addr)
}

func (s *Server) Stop(ctx context.Context) error {
	close(s.stopCh)
	if s.listener != nil {
		s.listener.Close()
	}
	if s.udpConn != nil {
		s.udpConn.Close()
	}
	for _, c := range s.udpSockets {
		c.Close()
	}
	return nil
}

func (s *Server) startTCP(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("stream server %s: %w", s.cfg.Name, err)
	}
	s.listener = ln
	s.log.InfoWithListener("tcp stream listener started", addr)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-s.stopCh:
					return
				default:
					s.log.Warn("tcp stream accept failed", "server", s.cfg.Name, "error", err)
					continue
				}
			}
			go s.handleTCP(conn)
		}
	}()
	return nil
}

func (s *Server) handleTCP(client net.Conn) {
	defer client.Close()

	if s.global.StreamAccessControlEnabled && s.gate != nil {
		clientIP := s.gate.DeriveClientIP(client.RemoteAddr().String(), nil)
		if !s.gate.IsAllowedFast(clientIP, s.global.AllowAllLan, s.global.AllowAllIP) {
			s.log.Warn("tcp stream connection rejected by access gate", "server", s.cfg.Name, "client_ip", clientIP.String())
			return
		}
	}

	upstreamAddr := s.pickUpstream(client.RemoteAddr().String())
	if upstreamAddr == "" {
		s.log.Warn("no healthy upstream for stream server", "server", s.cfg.Name)
		return
	}

	dialTimeout := s.cfg.ProxyConnectTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	upstream, err := net.DialTimeout("tcp", upstreamAddr, dialTimeout)
	if err != nil {
		s.recordFail(upstreamAddr)
		s.log.WarnUpstreamDown("tcp upstream dial failed", upstreamAddr, "error", err)
		return
	}
	defer upstream.Close()
	s.recordSuccess(upstreamAddr)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); io.Copy(upstream, client) }()
	go func() { defer wg.Done(); io.Copy(client, upstream) }()
	wg.Wait()
}

func (s *Server) isUp(upstream string) bool {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	state, ok := s.fails[upstream]
	if !ok {
		return true
	}
	return !state.Down(time.Now())
}

func (s *Server) recordFail(upstream string) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	state, ok := s.fails[upstream]
	if !ok {
		state = &domain.StreamFailState{}
		s.fails[upstream] = state
	}
	state.Fails++
	maxFails := s.cfg.MaxFails
	if maxFails <= 0 {
		maxFails = 1
	}
	if state.Fails >= maxFails {
		failTimeout := s.cfg.FailTimeout
		if failTimeout <= 0 {
			failTimeout = 10 * time.Second
		}
		state.DownUntil = time.Now().Add(failTimeout)
	}
}

func (s *Server) recordSuccess(upstream string) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	if state, ok := s.fails[upstream]; ok {
		state.Fails = 0
	}
}

func (s *Server) startUDP(addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("stream server %s: %w", s.cfg.Name, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("stream server %s: %w", s.cfg.Name, err)
	}
	s.udpConn = conn
	s.log.InfoWithListener("udp stream listener started", addr)

	for _, u := range s.cfg.Upstreams {
		sock, err := net.Dial("udp", u.Addr)
		if err != nil {
			s.log.WarnUpstreamDown("udp upstream pre-bind failed", u.Addr, "error", err)
			continue
		}
		s.udpSockets[u.Addr] = sock
		go s.readFromUpstream(u.Addr, sock)
	}

	go s.udpSessionSweeper()
	go s.readFromClients()
	return nil
}

// readFromClients is the single goroutine reading the shared client-facing
// UDP socket, pinning each source address to an upstream via the session
// table and forwarding the datagram on that upstream's pre-bound socket.
func (s *Server) readFromClients() {
	buf := make([]byte, 65535)
	for {
		n, clientAddr, err := s.udpConn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				continue
			}
		}

		if s.global.StreamAccessControlEnabled && s.gate != nil {
			clientIP := s.gate.DeriveClientIP(clientAddr.String(), nil)
			if !s.gate.IsAllowedFast(clientIP, s.global.AllowAllLan, s.global.AllowAllIP) {
				continue
			}
		}

		key := clientAddr.String()
		session, _ := s.udpSessions.LoadOrCompute(key, func() (*domain.UDPSession, bool) {
			upstreamAddr := s.pickUpstream(key)
			return &domain.UDPSession{Upstream: upstreamAddr, LastSeen: time.Now().UnixMilli()}, false
		})
		session.LastSeen = time.Now().UnixMilli()

		sock, ok := s.udpSockets[session.Upstream]
		if !ok {
			continue
		}
		sock.Write(buf[:n])
	}
}

// readFromUpstream relays datagrams from one pre-bound upstream socket back
// to every client session currently pinned to that upstream.
func (s *Server) readFromUpstream(upstreamAddr string, sock net.Conn) {
	buf := make([]byte, 65535)
	for {
		n, err := sock.Read(buf)
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				return
			}
		}

		s.udpSessions.Range(func(clientKey string, session *domain.UDPSession) bool {
			if session.Upstream != upstreamAddr {
				return true
			}
			clientAddr, err := net.ResolveUDPAddr("udp", clientKey)
			if err == nil {
				s.udpConn.WriteToUDP(buf[:n], clientAddr)
			}
			return true
		})
	}
}

func (s *Server) udpSessionSweeper() {
	ticker := time.NewTicker(constants.UDPSessionSweep)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-constants.UDPSessionMinTTL).UnixMilli()
			s.udpSessions.Range(func(key string, session *domain.UDPSession) bool {
				if session.LastSeen < cutoff {
					s.udpSessions.Delete(key)
				}
				return true
			})
		}
	}
}
