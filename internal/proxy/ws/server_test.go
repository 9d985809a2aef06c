package ws

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/sslproxymanager/core/internal/config"
	"github.com/sslproxymanager/core/internal/logger"
	"github.com/sslproxymanager/core/theme"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type allowAllGate struct{}

func (allowAllGate) DeriveClientIP(remoteAddr string, header http.Header) net.IP {
	return net.ParseIP("203.0.113.9")
}
func (allowAllGate) IsAllowedFast(ip net.IP, allowAllLan, allowAllIP bool) bool { return true }
func (allowAllGate) AllowRate(listenerKey string, ip net.IP, rps float64, burst int, banSeconds int64) (bool, bool) {
	return true, false
}
func (allowAllGate) Blacklist(ip net.IP, reason string, ttlSeconds int64) {}

func echoUpstream(t *testing.T, prefix string) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, append([]byte(prefix), data...)); err != nil {
				return
			}
		}
	}))
}

func TestHandleUpgrade_RoutesByLongestPrefix(t *testing.T) {
	short := echoUpstream(t, "short:")
	defer short.Close()
	long := echoUpstream(t, "long:")
	defer long.Close()

	rule := config.WSRule{
		ID: "r1",
		Routes: []config.WSRoute{
			{ID: "short", Path: "/ws", UpstreamURL: "ws" + short.URL[len("http"):], Enabled: true},
			{ID: "long", Path: "/ws/chat", UpstreamURL: "ws" + long.URL[len("http"):], Enabled: true},
		},
	}
	lst := New(rule, config.GlobalConfig{}, allowAllGate{}, logger.NewStyledLogger(discardLogger(), theme.Default()))

	srv := httptest.NewServer(http.HandlerFunc(lst.handleUpgrade))
	defer srv.Close()

	dialURL := "ws" + srv.URL[len("http"):] + "/ws/chat/room1"
	conn, _, err := websocket.DefaultDialer.Dial(dialURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("hi")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "long:hi" {
		t.Errorf("expected message echoed by the long-prefix upstream, got %q", data)
	}
}

func TestHandleUpgrade_NoRouteMatch(t *testing.T) {
	rule := config.WSRule{
		ID: "r1",
		Routes: []config.WSRoute{
			{ID: "only", Host: "a.example.com", Path: "/ws", UpstreamURL: "ws://unused.invalid", Enabled: true},
		},
	}
	lst := New(rule, config.GlobalConfig{}, allowAllGate{}, logger.NewStyledLogger(discardLogger(), theme.Default()))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Host = "other.example.com"
	lst.handleUpgrade(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
