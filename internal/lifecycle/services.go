package lifecycle

import (
	"context"
	"fmt"
)

// namedService adapts a start/stop pair with no further state into a
// ManagedService, for singletons (access gate, metrics core, balancer
// registry) that don't need per-instance fields beyond their closures.
type namedService struct {
	name  string
	deps  []string
	start func(ctx context.Context) error
	stop  func(ctx context.Context) error
}

func (s *namedService) Name() string               { return s.name }
func (s *namedService) Dependencies() []string      { return s.deps }
func (s *namedService) Start(ctx context.Context) error {
	if s.start == nil {
		return nil
	}
	return s.start(ctx)
}
func (s *namedService) Stop(ctx context.Context) error {
	if s.stop == nil {
		return nil
	}
	return s.stop(ctx)
}

// listenerService adapts one HTTP/WS/Stream listener into a ManagedService.
// Every listener depends on the access gate and metrics core, never on each
// other; the Manager starts them one after another once their shared deps
// are up.
type listenerService struct {
	name string
	node interface {
		Start(ctx context.Context) error
		Stop(ctx context.Context) error
	}
}

func (s *listenerService) Name() string          { return s.name }
func (s *listenerService) Dependencies() []string { return []string{accessGateName, metricsCoreName} }
func (s *listenerService) Start(ctx context.Context) error {
	if err := s.node.Start(ctx); err != nil {
		return fmt.Errorf("listener %s: %w", s.name, err)
	}
	return nil
}
func (s *listenerService) Stop(ctx context.Context) error {
	return s.node.Stop(ctx)
}

const (
	accessGateName   = "access-gate"
	metricsCoreName  = "metrics-core"
	balancerName     = "load-balancer"
)
