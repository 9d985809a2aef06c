package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/sslproxymanager/core/internal/logger"
	"github.com/sslproxymanager/core/theme"
)

func testLogger() *logger.StyledLogger {
	return logger.NewStyledLogger(slog.New(slog.NewTextHandler(io.Discard, nil)), theme.Default())
}

type recordingService struct {
	name    string
	deps    []string
	events  *[]string
	failure error
}

func (s *recordingService) Name() string          { return s.name }
func (s *recordingService) Dependencies() []string { return s.deps }
func (s *recordingService) Start(ctx context.Context) error {
	if s.failure != nil {
		return s.failure
	}
	*s.events = append(*s.events, "start:"+s.name)
	return nil
}
func (s *recordingService) Stop(ctx context.Context) error {
	*s.events = append(*s.events, "stop:"+s.name)
	return nil
}

func TestManager_StartsDependenciesBeforeDependants(t *testing.T) {
	var events []string
	m := NewManager(testLogger())
	if err := m.Register(&recordingService{name: "http:a", deps: []string{"gate", "metrics"}, events: &events}); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(&recordingService{name: "gate", events: &events}); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(&recordingService{name: "metrics", events: &events}); err != nil {
		t.Fatal(err)
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	indexOf := func(name string) int {
		for i, e := range events {
			if e == "start:"+name {
				return i
			}
		}
		return -1
	}
	if indexOf("gate") > indexOf("http:a") || indexOf("metrics") > indexOf("http:a") {
		t.Fatalf("expected dependencies to start before dependant, got order %v", events)
	}
}

func TestManager_StopReversesStartOrder(t *testing.T) {
	var events []string
	m := NewManager(testLogger())
	m.Register(&recordingService{name: "metrics", events: &events})
	m.Register(&recordingService{name: "http:a", deps: []string{"metrics"}, events: &events})

	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	events = nil
	if err := m.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(events) != 2 || events[0] != "stop:http:a" || events[1] != "stop:metrics" {
		t.Fatalf("expected listener to stop before its dependency, got %v", events)
	}
}

func TestManager_StartFailureRollsBackAlreadyStarted(t *testing.T) {
	var events []string
	m := NewManager(testLogger())
	m.Register(&recordingService{name: "metrics", events: &events})
	m.Register(&recordingService{name: "http:a", deps: []string{"metrics"}, failure: errors.New("bind failed"), events: &events})

	err := m.Start(context.Background())
	if err == nil {
		t.Fatal("expected Start to propagate the failing service's error")
	}

	found := false
	for _, e := range events {
		if e == "stop:metrics" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the already-started metrics service to be rolled back, got %v", events)
	}
}

func TestManager_UnknownDependencyRejected(t *testing.T) {
	m := NewManager(testLogger())
	m.Register(&recordingService{name: "http:a", deps: []string{"missing"}, events: &[]string{}})

	if err := m.Start(context.Background()); err == nil {
		t.Fatal("expected error for unresolved dependency")
	}
}
