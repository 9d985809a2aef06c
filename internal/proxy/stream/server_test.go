package stream

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sslproxymanager/core/internal/config"
	"github.com/sslproxymanager/core/internal/logger"
	"github.com/sslproxymanager/core/theme"
)

func testLogger() *logger.StyledLogger {
	return logger.NewStyledLogger(slog.New(slog.NewTextHandler(io.Discard, nil)), theme.Default())
}

func TestRecordFail_PromotesDownAfterMaxFails(t *testing.T) {
	s := New(config.StreamServer{
		Name:        "s1",
		MaxFails:    2,
		FailTimeout: time.Hour,
		Upstreams:   []config.StreamUpstream{{Addr: "a:1"}},
	}, config.GlobalConfig{}, nil, testLogger())

	if !s.isUp("a:1") {
		t.Fatal("expected upstream up before any failure")
	}
	s.recordFail("a:1")
	if !s.isUp("a:1") {
		t.Fatal("expected upstream still up after one failure below MaxFails")
	}
	s.recordFail("a:1")
	if s.isUp("a:1") {
		t.Fatal("expected upstream down after reaching MaxFails")
	}
}

func TestPickUpstream_RoundRobinsWhenNotConsistent(t *testing.T) {
	s := New(config.StreamServer{
		Name:       "s1",
		Consistent: false,
		Upstreams:  []config.StreamUpstream{{Addr: "a:1"}, {Addr: "b:1"}, {Addr: "c:1"}},
	}, config.GlobalConfig{}, nil, testLogger())

	seen := map[string]bool{}
	for i := 0; i < 6; i++ {
		seen[s.pickUpstream("same-client-every-time")] = true
	}
	if len(seen) != 3 {
		t.Fatalf("expected round-robin to cycle through all 3 upstreams, saw %d distinct: %v", len(seen), seen)
	}
}

func TestPickUpstream_ConsistentWithRemoteAddrHashKeyIsSticky(t *testing.T) {
	s := New(config.StreamServer{
		Name:       "s1",
		Consistent: true,
		HashKey:    "$remote_addr",
		Upstreams:  []config.StreamUpstream{{Addr: "a:1"}, {Addr: "b:1"}, {Addr: "c:1"}},
	}, config.GlobalConfig{}, nil, testLogger())

	first := s.pickUpstream("203.0.113.9:5555")
	for i := 0; i < 5; i++ {
		if got := s.pickUpstream("203.0.113.9:5555"); got != first {
			t.Fatalf("expected sticky upstream %q, got %q", first, got)
		}
	}
}

func TestRecordSuccess_ResetsFailCount(t *testing.T) {
	s := New(config.StreamServer{Name: "s1", MaxFails: 2, FailTimeout: time.Hour}, config.GlobalConfig{}, nil, testLogger())
	s.recordFail("a:1")
	s.recordSuccess("a:1")
	s.recordFail("a:1")
	if !s.isUp("a:1") {
		t.Fatal("expected upstream still up: recordSuccess should have reset the fail count")
	}
}
