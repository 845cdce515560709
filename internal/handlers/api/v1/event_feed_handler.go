package v1

import (
	"context"
	"net/http"
	"sync"
	"time"

	"modrota/internal/events"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const clientSendBuffer = 16

// EventFeedHandler streams badge lifecycle and moderation events to
// websocket clients. One bus subscription fans out to every connection;
// clients that cannot keep up are dropped rather than backpressuring the
// bus workers.
type EventFeedHandler struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.RWMutex
	clients map[*feedClient]struct{}
}

type feedClient struct {
	conn *websocket.Conn
	send chan events.Event
}

// NewEventFeedHandler creates the feed and subscribes it to the bus.
func NewEventFeedHandler(bus events.EventBus, logger *zap.Logger) (*EventFeedHandler, error) {
	h := &EventFeedHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:  logger,
		clients: make(map[*feedClient]struct{}),
	}

	handler := events.EventHandlerFunc{
		ID:   "websocket-feed",
		Func: h.broadcast,
	}
	if err := bus.SubscribePattern("badge:*", handler); err != nil {
		return nil, err
	}
	if err := bus.SubscribePattern("moderation:*", handler); err != nil {
		return nil, err
	}
	return h, nil
}

// ServeWS upgrades the connection and streams events until the client hangs
// up.
// GET /api/v1/moderation/events/ws
func (h *EventFeedHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}

	client := &feedClient{
		conn: conn,
		send: make(chan events.Event, clientSendBuffer),
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(client)
	h.readLoop(client)
}

func (h *EventFeedHandler) broadcast(ctx context.Context, event events.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- event:
		default:
			// Slow client; closing the channel is handled by remove.
			go h.remove(client)
		}
	}
	return nil
}

func (h *EventFeedHandler) writeLoop(client *feedClient) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-client.send:
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteJSON(event); err != nil {
				h.remove(client)
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(client)
				return
			}
		}
	}
}

func (h *EventFeedHandler) readLoop(client *feedClient) {
	defer h.remove(client)
	client.conn.SetReadLimit(512)
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *EventFeedHandler) remove(client *feedClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
	client.conn.Close()
}
