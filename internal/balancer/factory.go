package balancer

import (
	"fmt"
	"sync"

	"github.com/sslproxymanager/core/internal/core/ports"
)

// Factory keeps the teacher's pluggable-strategy shape (a name-keyed
// registry of constructors) even though only one strategy ships today.
// Registering round-robin or least-connections variants here would be dead
// code with no caller, so only "swrr" is ever registered.
type Factory struct {
	mu       sync.RWMutex
	creators map[string]func() ports.Balancer
}

// NewFactory builds a Factory with the smooth-weighted-round-robin strategy
// registered under "swrr".
func NewFactory() *Factory {
	f := &Factory{creators: make(map[string]func() ports.Balancer)}
	f.Register("swrr", func() ports.Balancer { return New() })
	return f
}

func (f *Factory) Register(name string, creator func() ports.Balancer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creators[name] = creator
}

func (f *Factory) Create(name string) (ports.Balancer, error) {
	f.mu.RLock()
	creator, ok := f.creators[name]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown load balancer strategy: %s", name)
	}
	return creator(), nil
}

func (f *Factory) AvailableStrategies() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.creators))
	for name := range f.creators {
		names = append(names, name)
	}
	return names
}
