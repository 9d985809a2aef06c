// Package hashring implements a consistent-hash ring over a set of stream
// upstreams: 160 virtual nodes per real upstream, FNV-1a keyed, with
// neighbor-probe failover when the first-chosen node is down.
package hashring

import (
	"sort"
	"strconv"
)

const vnodesPerUpstream = 160

type vnode struct {
	hash     uint64
	upstream string
}

// Ring is an immutable snapshot built from one upstream list; rebuild it
// whenever the upstream set changes rather than mutating in place.
type Ring struct {
	nodes []vnode
}

// New builds a ring from upstreams, in the order given.
func New(upstreams []string) *Ring {
	nodes := make([]vnode, 0, len(upstreams)*vnodesPerUpstream)
	for _, u := range upstreams {
		for i := 0; i < vnodesPerUpstream; i++ {
			nodes = append(nodes, vnode{hash: fnv1a64(u + "#" + strconv.Itoa(i)), upstream: u})
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].hash < nodes[j].hash })
	return &Ring{nodes: nodes}
}

// Pick walks the ring clockwise from key's hash, returning the first
// upstream for which isUp reports true. Returns "" if every upstream is down
// or the ring is empty.
func (r *Ring) Pick(key string, isUp func(upstream string) bool) string {
	if len(r.nodes) == 0 {
		return ""
	}
	h := fnv1a64(key)
	start := sort.Search(len(r.nodes), func(i int) bool { return r.nodes[i].hash >= h })

	for i := 0; i < len(r.nodes); i++ {
		idx := (start + i) % len(r.nodes)
		up := r.nodes[idx].upstream
		if isUp == nil || isUp(up) {
			return up
		}
	}
	return ""
}

func fnv1a64(s string) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}
