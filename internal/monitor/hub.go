package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
)

// Hub serves the status socket: a plain JSON GET for one-shot polling
// and a WebSocket stream for the TUI's live mode, adapted from
// internal/server/websocket.go's Hub/wsClient pair.
type Hub struct {
	collector *Collector
	logger    zerolog.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
}

// NewHub wires a Hub to collector. Call Start to begin forwarding
// broadcast snapshots to connected clients.
func NewHub(collector *Collector, logger zerolog.Logger) *Hub {
	return &Hub{
		collector: collector,
		logger:    logger.With().Str("component", "monitor-hub").Logger(),
		clients:   make(map[*wsClient]struct{}),
	}
}

// Start forwards collector broadcasts to every connected client until ctx
// is done.
func (h *Hub) Start(ctx context.Context) {
	ch := h.collector.Subscribe()
	defer h.collector.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(snap)
		}
	}
}

func (h *Hub) broadcast(snap Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		h.logger.Err(err).Msg("marshal snapshot for ws")
		return
	}

	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := c.conn.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			h.remove(c)
		}
	}
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug().Int("clients", len(h.clients)).Msg("monitor client connected")
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}
	h.mu.Unlock()
}

// HandleStatus serves one immediate Snapshot as JSON, for a one-shot
// `curl` or a monitor started after the launcher without live updates.
func (h *Hub) HandleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := h.collector.Snapshot(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snap)
}

// HandleWS upgrades the request to a WebSocket and streams every
// broadcast Snapshot until the client disconnects.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.logger.Err(err).Msg("ws accept")
		return
	}

	client := &wsClient{conn: conn}
	h.add(client)

	snap, err := h.collector.Snapshot(r.Context())
	if err == nil {
		if data, err := json.Marshal(snap); err == nil {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			_ = conn.Write(ctx, websocket.MessageText, data)
			cancel()
		}
	}

	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			h.remove(client)
			return
		}
	}
}

// Mux registers the status endpoints on mux.
func (h *Hub) Mux(mux *http.ServeMux) {
	mux.HandleFunc("GET /status", h.HandleStatus)
	mux.HandleFunc("/ws", h.HandleWS)
}
