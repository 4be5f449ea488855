package server

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/afroash/soil-monitor/internal/models"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
)

// Handler accepts websocket streams from soil nodes
type Handler struct {
	upgrader       websocket.Upgrader
	authToken      string
	store          ReportStore
	writer         ReportWriter
	logger         zerolog.Logger
	activeNodes    map[string]*NodeConnection // keyed by remote address
	allowedOrigins []string
	mutex          sync.RWMutex
}

// NodeConnection describes one connected node. NodeID stays the remote
// address until the node's first heartbeat.
type NodeConnection struct {
	NodeID      string    `json:"node_id"`
	Location    string    `json:"location,omitempty"`
	RemoteAddr  string    `json:"remote_addr"`
	Uptime      int64     `json:"uptime"`
	BufferSize  int       `json:"buffer_size"`
	Reports     int64     `json:"reports"`
	Rejected    int64     `json:"rejected"`
	LastSeen    time.Time `json:"last_seen"`
	ConnectedAt time.Time `json:"connected_at"`
}

// NewHandler creates a websocket ingest handler
func NewHandler(authToken string, store ReportStore, logger zerolog.Logger, allowedOrigins ...string) *Handler {
	h := &Handler{
		authToken:      authToken,
		store:          store,
		logger:         logger.With().Str("component", "ingest").Logger(),
		activeNodes:    make(map[string]*NodeConnection),
		allowedOrigins: allowedOrigins,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// SetDBWriter enables persistence of every accepted report
func (h *Handler) SetDBWriter(w ReportWriter) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.writer = w
}

// checkOrigin accepts requests without an Origin header and those whose
// origin is on the allow-list.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(h.allowedOrigins, origin) {
		return true
	}
	h.logger.Warn().Str("origin", origin).Msg("Rejected WebSocket connection: origin not allowed")
	return false
}

// ServeHTTP authenticates the node and upgrades the connection
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.validateToken(r.Header.Get("Authorization")) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}
	h.handleConnection(conn)
}

// validateToken expects "Bearer <token>"
func (h *Handler) validateToken(authHeader string) bool {
	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	return ok && token != "" && token == h.authToken
}

func (h *Handler) handleConnection(conn *websocket.Conn) {
	connKey := conn.RemoteAddr().String()
	now := time.Now()

	h.mutex.Lock()
	h.activeNodes[connKey] = &NodeConnection{
		NodeID:      connKey,
		RemoteAddr:  connKey,
		LastSeen:    now,
		ConnectedAt: now,
	}
	h.mutex.Unlock()

	defer conn.Close()
	defer h.removeNode(connKey)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg models.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Str("remote", connKey).Msg("WebSocket error")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		h.handleMessage(conn, connKey, &msg)
	}
}

// handleMessage dispatches one message and answers it with an ack, or with
// an error when the payload was rejected.
func (h *Handler) handleMessage(conn *websocket.Conn, connKey string, msg *models.Message) {
	h.logger.Debug().Str("type", string(msg.Type)).Str("id", msg.ID).Msg("Received message")

	var err error
	switch msg.Type {
	case models.MessageTypeReport:
		err = h.handleReport(connKey, msg)
	case models.MessageTypeBatch:
		err = h.handleBatch(connKey, msg)
	case models.MessageTypeHeartbeat:
		err = h.handleHeartbeat(connKey, msg)
	default:
		err = fmt.Errorf("unknown message type %q", msg.Type)
	}
	h.touch(connKey)

	if err != nil {
		h.logger.Warn().Err(err).Str("remote", connKey).Str("type", string(msg.Type)).Msg("Message rejected")
		h.reply(conn, models.MessageTypeError, models.ErrorMessage{Code: "rejected", Message: err.Error()})
		return
	}
	h.reply(conn, models.MessageTypeAck, models.AckMessage{MessageID: msg.ID, Status: "ok"})
}

func (h *Handler) handleReport(connKey string, msg *models.Message) error {
	var report models.Report
	if err := msg.UnmarshalPayload(&report); err != nil {
		return fmt.Errorf("decode report: %w", err)
	}
	if !report.IsValid() {
		h.count(connKey, 0, 1)
		return fmt.Errorf("invalid report %d from %q", report.Sequence, report.NodeID)
	}

	h.accept(&report)
	h.count(connKey, 1, 0)
	h.logger.Info().
		Str("node_id", report.NodeID).
		Uint32("sequence", report.Sequence).
		Float64("temperature", report.Temperature.Value).
		Float64("light", report.Light.Value).
		Float64("moisture", report.Moisture.Value).
		Str("light_label", report.LightLabel).
		Msg("Report stored")
	return nil
}

// handleBatch keeps the valid reports of a batch and drops the rest
func (h *Handler) handleBatch(connKey string, msg *models.Message) error {
	var batch models.BatchMessage
	if err := msg.UnmarshalPayload(&batch); err != nil {
		return fmt.Errorf("decode batch: %w", err)
	}

	var accepted, rejected int64
	for i := range batch.Reports {
		report := &batch.Reports[i]
		if !report.IsValid() {
			rejected++
			continue
		}
		h.accept(report)
		accepted++
	}
	h.count(connKey, accepted, rejected)

	event := h.logger.Info()
	if rejected > 0 {
		event = h.logger.Warn()
	}
	event.Int64("accepted", accepted).Int64("rejected", rejected).Msg("Batch stored")
	return nil
}

func (h *Handler) handleHeartbeat(connKey string, msg *models.Message) error {
	var hb models.HeartbeatMessage
	if err := msg.UnmarshalPayload(&hb); err != nil {
		return fmt.Errorf("decode heartbeat: %w", err)
	}

	h.mutex.Lock()
	if node, ok := h.activeNodes[connKey]; ok {
		if hb.NodeID != "" {
			node.NodeID = hb.NodeID
		}
		node.Location = hb.Location
		node.Uptime = hb.Uptime
		node.BufferSize = hb.BufferSize
	}
	h.mutex.Unlock()

	h.logger.Debug().
		Str("node_id", hb.NodeID).
		Int64("uptime", hb.Uptime).
		Int("buffer_size", hb.BufferSize).
		Msg("Heartbeat received")
	return nil
}

func (h *Handler) accept(report *models.Report) {
	h.store.Add(report)

	h.mutex.RLock()
	writer := h.writer
	h.mutex.RUnlock()
	if writer != nil && !writer.Write(report) {
		h.logger.Warn().Str("node_id", report.NodeID).Uint32("sequence", report.Sequence).Msg("Report not persisted")
	}
}

func (h *Handler) reply(conn *websocket.Conn, msgType models.MessageType, payload interface{}) {
	msg, err := models.NewMessage(msgType, payload)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to create reply")
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Warn().Err(err).Str("type", string(msgType)).Msg("Failed to send reply")
	}
}

func (h *Handler) touch(connKey string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if node, ok := h.activeNodes[connKey]; ok {
		node.LastSeen = time.Now()
	}
}

func (h *Handler) count(connKey string, accepted, rejected int64) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if node, ok := h.activeNodes[connKey]; ok {
		node.Reports += accepted
		node.Rejected += rejected
	}
}

func (h *Handler) removeNode(connKey string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	nodeID := connKey
	if node, ok := h.activeNodes[connKey]; ok {
		nodeID = node.NodeID
	}
	delete(h.activeNodes, connKey)
	h.logger.Info().Str("node_id", nodeID).Str("remote", connKey).Msg("Node disconnected")
}

// ActiveNodes returns a snapshot of the connected nodes, sorted by node ID
func (h *Handler) ActiveNodes() []NodeConnection {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	nodes := make([]NodeConnection, 0, len(h.activeNodes))
	for _, node := range h.activeNodes {
		nodes = append(nodes, *node)
	}
	slices.SortFunc(nodes, func(a, b NodeConnection) int {
		return strings.Compare(a.NodeID, b.NodeID)
	})
	return nodes
}
