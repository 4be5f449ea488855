package server

import (
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/afroash/soil-monitor/internal/models"
	"github.com/afroash/soil-monitor/internal/storage"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
	defaultDailyDays    = 7
	maxDailyDays        = 365
)

// NodeLister reports the nodes currently connected. *Handler implements it.
type NodeLister interface {
	ActiveNodes() []NodeConnection
}

// APIHandler serves the gateway's read-only HTTP API
type APIHandler struct {
	store   ReportStore
	history HistoricalStore // nil when persistence is disabled
	nodes   NodeLister
	version string
	logger  zerolog.Logger
}

// NewAPIHandler creates an API backed by the memory store only
func NewAPIHandler(store ReportStore, version string, logger zerolog.Logger) *APIHandler {
	return &APIHandler{
		store:   store,
		version: version,
		logger:  logger.With().Str("component", "api").Logger(),
	}
}

// NewAPIHandlerWithHistory creates an API that falls back to the database
// for anything no longer held in memory.
func NewAPIHandlerWithHistory(store ReportStore, history HistoricalStore, version string, logger zerolog.Logger) *APIHandler {
	api := NewAPIHandler(store, version, logger)
	api.history = history
	return api
}

// SetNodeLister makes connection state part of the node listing
func (api *APIHandler) SetNodeLister(nodes NodeLister) {
	api.nodes = nodes
}

// NewRouter wires the API routes and the node ingest endpoint
func NewRouter(api *APIHandler, ingest http.Handler) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", api.HandleHealth).Methods(http.MethodGet)

	s := r.PathPrefix("/api").Subrouter()
	s.HandleFunc("/nodes", api.HandleNodes).Methods(http.MethodGet)
	s.HandleFunc("/nodes/{id}/current", api.HandleCurrent).Methods(http.MethodGet)
	s.HandleFunc("/nodes/{id}/history", api.HandleHistory).Methods(http.MethodGet)
	s.HandleFunc("/nodes/{id}/daily", api.HandleDaily).Methods(http.MethodGet)
	s.HandleFunc("/stats", api.HandleStats).Methods(http.MethodGet)

	if ingest != nil {
		r.Handle("/node-stream", ingest)
	}
	return r
}

// NodeSummary is one entry of GET /api/nodes
type NodeSummary struct {
	NodeID     string          `json:"node_id"`
	Connected  bool            `json:"connected"`
	Connection *NodeConnection `json:"connection,omitempty"`
	Current    *models.Report  `json:"current,omitempty"`
}

// HandleNodes lists every node known from memory, the database or an open
// connection.
func (api *APIHandler) HandleNodes(w http.ResponseWriter, r *http.Request) {
	ids := api.store.GetNodeIDs()
	if api.history != nil {
		stored, err := api.history.GetNodeIDs()
		if err != nil {
			api.logger.Error().Err(err).Msg("Failed to list stored nodes")
		}
		ids = append(ids, stored...)
	}

	connections := make(map[string]NodeConnection)
	if api.nodes != nil {
		for _, c := range api.nodes.ActiveNodes() {
			connections[c.NodeID] = c
			ids = append(ids, c.NodeID)
		}
	}

	slices.Sort(ids)
	ids = slices.Compact(ids)

	nodes := make([]NodeSummary, 0, len(ids))
	for _, id := range ids {
		summary := NodeSummary{NodeID: id, Current: api.store.GetCurrent(id)}
		if c, ok := connections[id]; ok {
			summary.Connected = true
			summary.Connection = &c
		}
		nodes = append(nodes, summary)
	}
	writeJSON(w, http.StatusOK, nodes)
}

// HandleCurrent returns the latest report of a node
func (api *APIHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	report := api.store.GetCurrent(id)
	if report == nil && api.history != nil {
		var err error
		if report, err = api.history.GetLatestReport(id); err != nil {
			api.serverError(w, err, "Failed to load latest report")
			return
		}
	}
	if report == nil {
		writeError(w, http.StatusNotFound, "no reports for node "+id)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleHistory returns up to limit reports, newest first. With before=
// (RFC 3339) it pages back through the database.
func (api *APIHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	q := r.URL.Query()

	limit, ok := intParam(q.Get("limit"), defaultHistoryLimit, maxHistoryLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	if before := q.Get("before"); before != "" {
		ts, err := time.Parse(time.RFC3339, before)
		if err != nil {
			writeError(w, http.StatusBadRequest, "before must be an RFC 3339 timestamp")
			return
		}
		if api.history == nil {
			writeError(w, http.StatusNotImplemented, "persistent storage is disabled")
			return
		}
		reports, err := api.history.GetReportsBefore(id, ts, limit)
		if err != nil {
			api.serverError(w, err, "Failed to load history")
			return
		}
		writeJSON(w, http.StatusOK, nonNil(reports))
		return
	}

	reports := api.store.GetLatest(id, limit)
	if len(reports) == 0 && api.history != nil {
		var err error
		if reports, err = api.history.GetReportsBefore(id, time.Now(), limit); err != nil {
			api.serverError(w, err, "Failed to load history")
			return
		}
	}
	writeJSON(w, http.StatusOK, nonNil(reports))
}

// HandleDaily returns per-day min/max/avg for the last days days
func (api *APIHandler) HandleDaily(w http.ResponseWriter, r *http.Request) {
	if api.history == nil {
		writeError(w, http.StatusNotImplemented, "persistent storage is disabled")
		return
	}

	days, ok := intParam(r.URL.Query().Get("days"), defaultDailyDays, maxDailyDays)
	if !ok {
		writeError(w, http.StatusBadRequest, "days must be a positive integer")
		return
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -days)
	stats, err := api.history.GetDailyStats(mux.Vars(r)["id"], start, end)
	if err != nil {
		api.serverError(w, err, "Failed to load daily stats")
		return
	}
	if stats == nil {
		stats = []storage.DailyStat{}
	}
	writeJSON(w, http.StatusOK, stats)
}

// GatewayStats is the body of GET /api/stats
type GatewayStats struct {
	Memory      StoreStats            `json:"memory"`
	Storage     *storage.StorageStats `json:"storage,omitempty"`
	ActiveNodes int                   `json:"active_nodes"`
}

func (api *APIHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats := GatewayStats{Memory: api.store.Stats()}
	if api.nodes != nil {
		stats.ActiveNodes = len(api.nodes.ActiveNodes())
	}
	if api.history != nil {
		s, err := api.history.GetStorageStats()
		if err != nil {
			api.serverError(w, err, "Failed to load storage stats")
			return
		}
		stats.Storage = s
	}
	writeJSON(w, http.StatusOK, stats)
}

func (api *APIHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": api.version})
}

func (api *APIHandler) serverError(w http.ResponseWriter, err error, msg string) {
	api.logger.Error().Err(err).Msg(msg)
	writeError(w, http.StatusInternalServerError, msg)
}

// intParam parses an optional positive integer, capped at max
func intParam(raw string, def, limit int) (int, bool) {
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return min(n, limit), true
}

func nonNil(reports []*models.Report) []*models.Report {
	if reports == nil {
		return []*models.Report{}
	}
	return reports
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
