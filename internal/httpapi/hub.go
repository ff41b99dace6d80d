package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Rajchodisetti/marketgate/internal/adapters"
	"github.com/Rajchodisetti/marketgate/internal/observ"
)

const maxSubscribedSymbols = 50

// BatchQuoter is what the broadcast loop needs from the gateway.
type BatchQuoter interface {
	Normalize(symbol string) (string, error)
	GetMultipleQuotes(ctx context.Context, symbols []string) (map[string]*adapters.Quote, error)
}

// HubConfig tunes the broadcast loop.
type HubConfig struct {
	Interval       time.Duration
	DefaultSymbols []string
	SendBuffer     int
	WriteTimeout   time.Duration
	PingPeriod     time.Duration
}

type quotesMessage struct {
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Quotes    []*adapters.Quote `json:"quotes"`
}

type subscriber struct {
	id      string
	conn    *websocket.Conn
	symbols []string
	send    chan []byte
	closed  bool // guarded by Hub.mu
}

// Hub keeps websocket subscribers and pushes each its quotes every interval.
// A subscriber whose send buffer is full is dropped.
type Hub struct {
	source   BatchQuoter
	cfg      HubConfig
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*subscriber]struct{}
}

func NewHub(source BatchQuoter, cfg HubConfig) *Hub {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 8
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = 30 * time.Second
	}
	return &Hub{
		source: source,
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*subscriber]struct{}),
	}
}

// ServeHTTP upgrades /ws/quotes?symbols=AAPL,MSFT and holds the connection
// until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.subscription(r.URL.Query().Get("symbols"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the client
		observ.Debug("ws_upgrade_failed", map[string]any{"error": err.Error()})
		return
	}

	sub := &subscriber{
		id:      uuid.NewString(),
		conn:    conn,
		symbols: symbols,
		send:    make(chan []byte, h.cfg.SendBuffer),
	}
	h.add(sub)
	go h.writePump(sub)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	h.snapshot(ctx, sub)
	cancel()

	h.readPump(sub)
}

func (h *Hub) subscription(raw string) ([]string, error) {
	requested := splitList(raw)
	if len(requested) == 0 {
		requested = h.cfg.DefaultSymbols
	}
	if len(requested) > maxSubscribedSymbols {
		requested = requested[:maxSubscribedSymbols]
	}

	seen := make(map[string]bool, len(requested))
	symbols := make([]string, 0, len(requested))
	for _, s := range requested {
		sym, err := h.source.Normalize(s)
		if err != nil {
			return nil, err
		}
		if !seen[sym] {
			seen[sym] = true
			symbols = append(symbols, sym)
		}
	}
	return symbols, nil
}

func (h *Hub) add(sub *subscriber) {
	h.mu.Lock()
	h.clients[sub] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	observ.SetGauge("ws_clients", float64(n), nil)
	observ.Log("ws_client_connected", map[string]any{"client_id": sub.id, "symbols": sub.symbols, "clients": n})
}

func (h *Hub) remove(sub *subscriber, reason string) {
	h.mu.Lock()
	removed := h.removeLocked(sub)
	n := len(h.clients)
	h.mu.Unlock()

	if removed {
		observ.SetGauge("ws_clients", float64(n), nil)
		observ.Log("ws_client_disconnected", map[string]any{"client_id": sub.id, "reason": reason, "clients": n})
	}
}

// removeLocked closes sub's send channel once. Caller holds mu.
func (h *Hub) removeLocked(sub *subscriber) bool {
	if sub.closed {
		return false
	}
	sub.closed = true
	delete(h.clients, sub)
	close(sub.send)
	return true
}

func (h *Hub) readPump(sub *subscriber) {
	defer sub.conn.Close()
	sub.conn.SetReadLimit(4096)
	for {
		// clients never send anything meaningful; reading surfaces the close
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			h.remove(sub, "read_closed")
			return
		}
	}
}

func (h *Hub) writePump(sub *subscriber) {
	ticker := time.NewTicker(h.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				_ = sub.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(sub, "write_failed")
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(sub, "ping_failed")
				return
			}
		}
	}
}

// Run broadcasts every interval until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Broadcast(ctx)
		}
	}
}

// Broadcast fetches the union of subscribed symbols once and delivers each
// subscriber its share. It returns the number of subscribers served.
func (h *Hub) Broadcast(ctx context.Context) int {
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.clients))
	seen := map[string]bool{}
	var union []string
	for sub := range h.clients {
		subs = append(subs, sub)
		for _, s := range sub.symbols {
			if !seen[s] {
				seen[s] = true
				union = append(union, s)
			}
		}
	}
	h.mu.Unlock()

	if len(subs) == 0 {
		return 0
	}

	start := time.Now()
	quotes, err := h.source.GetMultipleQuotes(ctx, union)
	if err != nil {
		observ.Warn("ws_broadcast_failed", map[string]any{"error": err.Error(), "symbols": len(union)})
		return 0
	}

	served := 0
	for _, sub := range subs {
		if h.deliver(sub, quotes) {
			served++
		}
	}
	observ.RecordDuration("ws_broadcast", time.Since(start), nil)
	observ.IncCounter("ws_broadcasts_total", nil)
	return served
}

func (h *Hub) snapshot(ctx context.Context, sub *subscriber) {
	quotes, err := h.source.GetMultipleQuotes(ctx, sub.symbols)
	if err != nil {
		observ.Warn("ws_snapshot_failed", map[string]any{"client_id": sub.id, "error": err.Error()})
		return
	}
	h.deliver(sub, quotes)
}

func (h *Hub) deliver(sub *subscriber, quotes map[string]*adapters.Quote) bool {
	msg := quotesMessage{
		Type:      "quotes",
		Timestamp: time.Now().UTC(),
		Quotes:    make([]*adapters.Quote, 0, len(sub.symbols)),
	}
	for _, s := range sub.symbols {
		if q, ok := quotes[s]; ok {
			msg.Quotes = append(msg.Quotes, q)
		}
	}
	b, err := json.Marshal(msg)
	if err != nil {
		observ.Error("ws_encode_failed", err, map[string]any{"client_id": sub.id})
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if sub.closed {
		return false
	}
	select {
	case sub.send <- b:
		return true
	default:
		h.removeLocked(sub)
		observ.IncCounter("ws_clients_dropped_total", nil)
		observ.Warn("ws_client_dropped", map[string]any{"client_id": sub.id, "reason": "send_buffer_full"})
		return false
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// CloseAll disconnects every subscriber.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.clients {
		h.removeLocked(sub)
	}
	observ.SetGauge("ws_clients", 0, nil)
}
