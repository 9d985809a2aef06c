// Package balancer implements the per-route smooth weighted round-robin
// selection strategy.
package balancer

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/sslproxymanager/core/internal/core/domain"
	"github.com/sslproxymanager/core/internal/util"
)

// SWRR is the process-wide load-balancer singleton: one signature-checked
// state entry per route_id, rebuilt whenever the route's upstream set changes
// underneath it.
type SWRR struct {
	mu     sync.Mutex
	states map[string]*domain.RouteBalancerState
}

// New constructs an empty SWRR balancer.
func New() *SWRR {
	return &SWRR{states: make(map[string]*domain.RouteBalancerState)}
}

// Reset discards all per-route state; used by tests to get a clean singleton.
func (b *SWRR) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.states = make(map[string]*domain.RouteBalancerState)
}

// Select returns the chosen upstream URL for routeID given its current
// upstream list. A route with an empty id has no LB state and degenerates to
// upstreams[0]. Zero upstreams returns ok=false; exactly one upstream is
// returned without touching any state.
func (b *SWRR) Select(routeID string, upstreams []domain.UpstreamState) (string, bool) {
	if len(upstreams) == 0 {
		return "", false
	}
	if routeID == "" {
		return upstreams[0].URL, true
	}
	if len(upstreams) == 1 {
		return upstreams[0].URL, true
	}

	signature := signatureOf(upstreams)

	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.states[routeID]
	if !ok || state.Signature != signature || len(state.Upstreams) != len(upstreams) {
		state = rebuild(upstreams, signature)
		b.states[routeID] = state
	}

	return pick(state), true
}

func signatureOf(upstreams []domain.UpstreamState) string {
	parts := make([]string, len(upstreams))
	for i, u := range upstreams {
		w := u.Weight
		if w < 1 {
			w = 1
		}
		parts[i] = u.URL + "#" + strconv.FormatInt(w, 10)
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

func rebuild(upstreams []domain.UpstreamState, signature string) *domain.RouteBalancerState {
	state := &domain.RouteBalancerState{
		Signature: signature,
		Upstreams: make([]*domain.UpstreamState, len(upstreams)),
	}
	var total int64
	for i, u := range upstreams {
		w := u.Weight
		if w < 1 {
			w = 1
		}
		state.Upstreams[i] = &domain.UpstreamState{URL: u.URL, Weight: w, Current: 0}
		total = util.SaturatingAddInt64(total, w)
	}
	state.TotalWeight = total
	return state
}

// pick runs one SWRR step: every upstream's current accumulator advances by
// its weight, the maximum (first on ties) is chosen, then that upstream's
// accumulator is reduced by the total weight.
func pick(state *domain.RouteBalancerState) string {
	var best *domain.UpstreamState
	for _, u := range state.Upstreams {
		u.Current = util.SaturatingAddInt64(u.Current, u.Weight)
		if best == nil || u.Current > best.Current {
			best = u
		}
	}
	best.Current = util.SaturatingAddInt64(best.Current, -state.TotalWeight)
	return best.URL
}
