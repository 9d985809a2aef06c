package app

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"

	"github.com/sslproxymanager/core/pkg/container"
)

const contentTypeJSON = "application/json"

func (a *Application) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func (a *Application) statusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]bool{
		"running":      a.controller.IsRunning(),
		"starting":     a.controller.IsStarting(),
		"containerised": container.IsContainerised(),
	})
}

func (a *Application) metricsSnapshotHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(a.controller.Metrics())
}

func (a *Application) metricsHistoricalHandler(w http.ResponseWriter, r *http.Request) {
	start, end, ok := parseRange(r)
	if !ok {
		http.Error(w, "start and end query params (unix seconds) are required", http.StatusBadRequest)
		return
	}
	listenAddr := r.URL.Query().Get("listen_addr")

	result, enabled, err := a.controller.QueryHistorical(r.Context(), start, end, listenAddr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !enabled {
		http.Error(w, "metrics persistence is disabled", http.StatusNotImplemented)
		return
	}
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(result)
}

func (a *Application) metricsDashboardHandler(w http.ResponseWriter, r *http.Request) {
	start, end, ok := parseRange(r)
	if !ok {
		http.Error(w, "start and end query params (unix seconds) are required", http.StatusBadRequest)
		return
	}
	granularity, _ := strconv.ParseInt(r.URL.Query().Get("granularity_sec"), 10, 64)

	result, enabled, err := a.controller.QueryDashboard(r.Context(), start, end, granularity)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !enabled {
		http.Error(w, "metrics persistence is disabled", http.StatusNotImplemented)
		return
	}
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(result)
}

// eventsHandler streams lifecycle events (status changes, listener start
// failures, log lines) to a connected admin console as server-sent events.
func (a *Application) eventsHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	events, cancel := a.controller.Subscribe(ctx)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}

func (a *Application) getLogsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string][]string{"lines": a.controller.GetLogs()})
}

func (a *Application) clearLogsHandler(w http.ResponseWriter, r *http.Request) {
	a.controller.ClearLogs()
	w.WriteHeader(http.StatusNoContent)
}

func (a *Application) queryRequestLogsHandler(w http.ResponseWriter, r *http.Request) {
	start, end, ok := parseRange(r)
	if !ok {
		http.Error(w, "start and end query params (unix seconds) are required", http.StatusBadRequest)
		return
	}
	listenAddr := r.URL.Query().Get("listen_addr")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	recs, enabled, err := a.controller.QueryRequestLogs(r.Context(), start, end, listenAddr, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !enabled {
		http.Error(w, "metrics persistence is disabled", http.StatusNotImplemented)
		return
	}
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(recs)
}

func (a *Application) getBlacklistHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(a.controller.GetBlacklistEntries())
}

type blacklistAddRequest struct {
	IP         string `json:"ip"`
	Reason     string `json:"reason"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

func (a *Application) addBlacklistHandler(w http.ResponseWriter, r *http.Request) {
	var req blacklistAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	ip := net.ParseIP(req.IP)
	if ip == nil {
		http.Error(w, "ip must be a valid IPv4/IPv6 address", http.StatusBadRequest)
		return
	}
	a.controller.AddBlacklistEntry(ip, req.Reason, req.TTLSeconds)
	w.WriteHeader(http.StatusNoContent)
}

func (a *Application) removeBlacklistHandler(w http.ResponseWriter, r *http.Request) {
	ipParam := r.URL.Query().Get("ip")
	ip := net.ParseIP(ipParam)
	if ip == nil {
		http.Error(w, "ip query param must be a valid IPv4/IPv6 address", http.StatusBadRequest)
		return
	}
	a.controller.RemoveBlacklistEntry(ip)
	w.WriteHeader(http.StatusNoContent)
}

func parseRange(r *http.Request) (start, end int64, ok bool) {
	q := r.URL.Query()
	start, errStart := strconv.ParseInt(q.Get("start"), 10, 64)
	end, errEnd := strconv.ParseInt(q.Get("end"), 10, 64)
	if errStart != nil || errEnd != nil {
		return 0, 0, false
	}
	return start, end, true
}
