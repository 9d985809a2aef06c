// Package lifecycle owns every managed service's start/stop ordering: the
// access gate and metrics core must be running before any listener, the
// load balancer has no dependencies, and every HTTP/WS/Stream listener is
// started only once its declared dependencies are up.
package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"github.com/sslproxymanager/core/internal/logger"
)

// ManagedService is one node in the dependency graph: Access Gate, Metrics
// Core, Load Balancer registry, or a single HTTP/WS/Stream listener.
type ManagedService interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Dependencies() []string
}

// Manager orchestrates service lifecycle using Kahn's algorithm to resolve
// the dependency graph into a start order, and its reverse for shutdown.
type Manager struct {
	mu         sync.RWMutex
	services   map[string]ManagedService
	startOrder []string
	log        *logger.StyledLogger
}

func NewManager(log *logger.StyledLogger) *Manager {
	return &Manager{services: make(map[string]ManagedService), log: log}
}

func (m *Manager) Register(service ManagedService) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := service.Name()
	if _, exists := m.services[name]; exists {
		return fmt.Errorf("service %s already registered", name)
	}
	m.services[name] = service
	return nil
}

func (m *Manager) resolveOrder() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	deps := make(map[string][]string, len(m.services))
	inDegree := make(map[string]int, len(m.services))
	for name, svc := range m.services {
		deps[name] = svc.Dependencies()
		inDegree[name] = 0
	}
	for _, list := range deps {
		for _, dep := range list {
			if _, ok := m.services[dep]; !ok {
				return nil, fmt.Errorf("dependency %s not registered", dep)
			}
			inDegree[dep]++
		}
	}

	var order []string
	queue := make([]string, 0)
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)
		for _, dep := range deps[current] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}
	if len(order) != len(m.services) {
		return nil, fmt.Errorf("circular service dependency detected")
	}

	// Dependencies must start before dependants.
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order, nil
}

// Start brings every registered service up in dependency order, tearing down
// whatever already started (in reverse) if any one of them fails.
func (m *Manager) Start(ctx context.Context) error {
	order, err := m.resolveOrder()
	if err != nil {
		return fmt.Errorf("resolve service dependencies: %w", err)
	}

	m.mu.Lock()
	m.startOrder = order
	m.mu.Unlock()

	started := make([]string, 0, len(order))
	for _, name := range order {
		svc := m.services[name]
		if err := svc.Start(ctx); err != nil {
			m.log.Error("service failed to start", "name", name, "error", err)
			m.stopServices(ctx, started)
			return fmt.Errorf("start service %s: %w", name, err)
		}
		started = append(started, name)
		m.log.Info("service started", "name", name)
	}
	return nil
}

func (m *Manager) Stop(ctx context.Context) error {
	m.mu.RLock()
	order := make([]string, len(m.startOrder))
	copy(order, m.startOrder)
	m.mu.RUnlock()

	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return m.stopServices(ctx, order)
}

func (m *Manager) stopServices(ctx context.Context, names []string) error {
	var firstErr error
	for _, name := range names {
		svc, ok := m.services[name]
		if !ok {
			continue
		}
		if err := svc.Stop(ctx); err != nil {
			m.log.Error("service failed to stop", "name", name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
