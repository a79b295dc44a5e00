package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agbru/hiersurr/internal/logging"
	"github.com/agbru/hiersurr/internal/parallel"
)

const writeWait = 10 * time.Second

// Hub fans parallel mode announcements out to remote workers connected
// over WebSocket. It implements parallel.Broadcaster.
type Hub struct {
	upgrader websocket.Upgrader
	logger   logging.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	closed  bool
	joined  chan struct{}
}

// NewHub returns a hub without clients.
func NewHub(logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:  logger,
		clients: make(map[*websocket.Conn]struct{}),
		joined:  make(chan struct{}, 1),
	}
}

// ServeHTTP upgrades the request and registers the worker connection until
// the worker hangs up.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logging.Err(err))
		return
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[conn] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("worker connected", logging.String("remote", r.RemoteAddr), logging.Int("workers", n))
	select {
	case h.joined <- struct{}{}:
	default:
	}

	// Workers never send; reading only detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(conn)
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()
	if ok {
		_ = conn.Close()
	}
}

// Clients returns the number of connected workers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// WaitForClients blocks until at least n workers are connected or ctx ends.
func (h *Hub) WaitForClients(ctx context.Context, n int) error {
	for h.Clients() < n {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.joined:
		case <-time.After(50 * time.Millisecond):
		}
	}
	return nil
}

// Broadcast writes a to every connected worker as one JSON text message.
// A worker that cannot be written to is dropped; the first write failure
// is returned after every worker was tried.
func (h *Hub) Broadcast(ctx context.Context, a parallel.Announcement) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode announcement: %w", err)
	}
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	var (
		wg     sync.WaitGroup
		errs   parallel.ErrorCollector
		failed sync.Map
	)
	for conn := range h.clients {
		wg.Add(1)
		go func(conn *websocket.Conn) {
			defer wg.Done()
			_ = conn.SetWriteDeadline(deadline)
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				errs.SetError(fmt.Errorf("worker %s: %w", conn.RemoteAddr(), err))
				failed.Store(conn, struct{}{})
			}
		}(conn)
	}
	wg.Wait()
	failed.Range(func(k, _ any) bool {
		conn := k.(*websocket.Conn)
		delete(h.clients, conn)
		_ = conn.Close()
		return true
	})
	if err := errs.Err(); err != nil {
		h.logger.Warn("broadcast failed", logging.Err(err), logging.Stringer("announcement", a))
		return err
	}
	return nil
}

// Close disconnects every worker and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for conn := range h.clients {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"), time.Now().Add(time.Second))
		_ = conn.Close()
		delete(h.clients, conn)
	}
}

// DialWorker subscribes to the hub at url and returns the announcement
// stream. The channel is closed when the connection ends or ctx is done.
func DialWorker(ctx context.Context, url string) (<-chan parallel.Announcement, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	out := make(chan parallel.Announcement, 16)
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	go func() {
		defer close(out)
		for {
			var a parallel.Announcement
			if err := conn.ReadJSON(&a); err != nil {
				return
			}
			select {
			case out <- a:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
