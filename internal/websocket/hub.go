package websocket

import (
	"context"
	"log/slog"
	"sync"

	"langworker/internal/infrastructure"
)

// Hub maintains the set of live checking sessions so they can be counted
// and closed together on shutdown
type Hub struct {
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	logger  *slog.Logger
	metrics *Metrics

	totalConnections int64

	quit    chan struct{}
	done    chan struct{}
	running bool
	stop    sync.Once
}

// NewHub creates a new Hub. metrics may be nil.
func NewHub(logger *slog.Logger, metrics *Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics, _ = NewMetrics(nil)
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     infrastructure.WithComponent(logger, "websocket.hub"),
		metrics:    metrics,
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start runs the hub loop in its own goroutine
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	h.running = true
	go h.Run()
}

// Run is the hub's main loop
func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			n := len(h.clients)
			for c := range h.clients {
				c.closeSend()
				delete(h.clients, c)
			}
			h.mu.Unlock()
			h.logger.Info("hub shutting down", slog.Int("closed_sessions", n))
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.totalConnections++
			count := len(h.clients)
			h.mu.Unlock()

			h.metrics.connected(c.ctx)
			h.logger.InfoContext(c.ctx, "client registered",
				slog.String("client_id", c.id),
				slog.String("remote_addr", c.remoteAddr),
				slog.Int("total_clients", count))

		case c := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[c]
			if ok {
				delete(h.clients, c)
			}
			count := len(h.clients)
			h.mu.Unlock()

			if ok {
				c.closeSend()
				h.metrics.disconnected(c.ctx, c.age())
				h.logger.InfoContext(c.ctx, "client unregistered",
					slog.String("client_id", c.id),
					slog.Int("total_clients", count))
			}
		}
	}
}

// Register adds c. It returns false once the hub is stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes c and closes its outbound queue
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ClientCount returns the number of registered sessions
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop closes every session and waits for the loop to exit or ctx to end
func (h *Hub) Stop(ctx context.Context) error {
	h.mu.Lock()
	if !h.running {
		h.running = true
		h.mu.Unlock()
		h.stop.Do(func() {
			close(h.quit)
			close(h.done)
		})
		return nil
	}
	h.mu.Unlock()
	h.stop.Do(func() { close(h.quit) })

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
