package web

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"pulsemon/internal/db"
	"pulsemon/internal/docker"
	"pulsemon/internal/models"
	"pulsemon/internal/query"
)

// Server exposes the dashboard query API.
type Server struct {
	repo   *db.Repository
	engine *query.Engine
	docker *docker.Client
	log    *slog.Logger
}

func NewServer(repo *db.Repository, engine *query.Engine, dc *docker.Client, logger *slog.Logger) *Server {
	return &Server{repo: repo, engine: engine, docker: dc, log: logger}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/live", s.handleLive)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	return logMiddleware(mux, s.log)
}

type serviceView struct {
	Name      string              `json:"name"`
	Target    string              `json:"target"`
	Status    models.Status       `json:"status"`
	LatencyMS *int64              `json:"latency_ms"`
	Code      *int                `json:"code,omitempty"`
	Error     string              `json:"error,omitempty"`
	Stats     *query.ServiceStats `json:"stats,omitempty"`
}

// handleLive returns the current snapshot plus bucketed history for the
// requested range.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("range")
	if key == "" {
		key = "1h"
	}
	dur, ok := query.ParseRange(key)
	if !ok {
		http.Error(w, "unknown range: "+key, http.StatusBadRequest)
		return
	}

	cycle, checks, err := s.repo.LatestCycle(r.Context())
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "no metrics recorded yet", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	history, err := s.engine.Build(r.Context(), dur)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	services := make([]serviceView, 0, len(checks))
	for _, c := range checks {
		view := serviceView{
			Name:      c.ServiceName,
			Target:    c.Target,
			Status:    c.Status,
			LatencyMS: c.LatencyMS,
			Code:      c.Code,
			Error:     c.Error,
		}
		if stats, ok := history.Services[c.ServiceName]; ok {
			view.Stats = &stats
		}
		services = append(services, view)
	}

	writeJSON(w, map[string]any{
		"last_updated": cycle.TS,
		"range":        key,
		"system": map[string]any{
			"cpu_pct":     cycle.CPUPct,
			"ram_pct":     cycle.RAMPct,
			"ram_used_mb": cycle.RAMUsedMB,
			"disk_pct":    cycle.DiskPct,
			"containers":  cycle.ContainerCount,
			"uptime_sec":  cycle.UptimeSec,
		},
		"monitor": map[string]any{
			"worker_status": cycle.WorkerStatus,
			"uptime_pct":    history.WorkerUptime,
			"distribution":  history.WorkerCounts,
			"stats":         history.CycleStats,
		},
		"network": map[string]any{
			"internet_ok": cycle.InternetOK,
			"ping_ms":     cycle.PingMS,
			"uptime_pct":  history.NetworkUptime,
			"stats":       history.PingStats,
		},
		"services":      services,
		"status_counts": history.StatusCounts,
		"history":       history,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.DB().PingContext(r.Context()); err != nil {
		http.Error(w, "db not ready", http.StatusServiceUnavailable)
		return
	}
	if err := s.docker.Ping(r.Context()); err != nil {
		http.Error(w, "docker not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
