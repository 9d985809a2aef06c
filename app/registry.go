package app

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/pterm/pterm"

	"github.com/sslproxymanager/core/internal/logger"
)

// routeInfo is one registered admin endpoint.
type routeInfo struct {
	handler     http.HandlerFunc
	description string
	method      string
	order       int
}

// routeRegistry mirrors the teacher's RouteRegistry: a registration-ordered table of
// admin endpoints that gets wired onto a ServeMux and printed as a pterm
// table at startup.
type routeRegistry struct {
	routes   map[string]routeInfo
	log      *logger.StyledLogger
	orderSeq int
}

func newRouteRegistry(log *logger.StyledLogger) *routeRegistry {
	return &routeRegistry{routes: make(map[string]routeInfo), log: log}
}

func (r *routeRegistry) register(path string, handler http.HandlerFunc, description, method string) {
	r.routes[path] = routeInfo{handler: handler, description: description, method: method, order: r.orderSeq}
	r.orderSeq++
}

func (r *routeRegistry) wireUp(mux *http.ServeMux) {
	for path, info := range r.routes {
		mux.HandleFunc(path, info.handler)
	}
	r.logRoutesTable()
}

func (r *routeRegistry) logRoutesTable() {
	if len(r.routes) == 0 {
		return
	}

	type entry struct {
		path, method, desc string
		order              int
	}
	entries := make([]entry, 0, len(r.routes))
	for path, info := range r.routes {
		entries = append(entries, entry{path: path, method: info.method, desc: info.description, order: info.order})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].order < entries[j].order })

	tableData := [][]string{{"ROUTE", "METHOD", "DESCRIPTION"}}
	for _, e := range entries {
		tableData = append(tableData, []string{e.path, e.method, e.desc})
	}

	r.log.InfoWithCount("registered admin routes", len(entries))
	tableString, _ := pterm.DefaultTable.WithHasHeader().WithData(tableData).Srender()
	fmt.Print(tableString)
}
