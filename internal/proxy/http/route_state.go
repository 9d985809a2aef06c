package proxyhttp

import (
	"github.com/sslproxymanager/core/internal/config"
	"github.com/sslproxymanager/core/internal/core/domain"
)

// routeState is a config.Route plus everything worth precompiling once: its
// rewrite/body-replace regexes and its upstream list in the LB's shape.
type routeState struct {
	route     config.Route
	rewrites  []compiledRewrite
	reqBody   []compiledBodyReplace
	respBody  []compiledBodyReplace
	upstreams []domain.UpstreamState
}

func newRouteState(route config.Route) *routeState {
	upstreams := make([]domain.UpstreamState, 0, len(route.Upstreams))
	for _, u := range route.Upstreams {
		weight := int64(u.Weight)
		if weight < 1 {
			weight = 1
		}
		upstreams = append(upstreams, domain.UpstreamState{URL: u.URL, Weight: weight})
	}
	return &routeState{
		route:     route,
		rewrites:  compileRewrites(route.URLRewriteRules),
		reqBody:   compileBodyReplaces(route.RequestBodyReplace),
		respBody:  compileBodyReplaces(route.ResponseBodyReplace),
		upstreams: upstreams,
	}
}
