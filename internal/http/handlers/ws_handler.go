package handlers

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/nft-marketplace/client/internal/events"
	"go.uber.org/zap"
)

type wsClient struct {
	conn  *websocket.Conn
	types map[string]bool // empty: every event
}

func (cl *wsClient) wants(eventType string) bool {
	return len(cl.types) == 0 || cl.types[eventType]
}

// WSHub forwards client events to local websocket listeners.
type WSHub struct {
	subscriber events.Subscriber
	log        *zap.Logger
	mu         sync.Mutex
	clients    map[uuid.UUID]*wsClient
}

func NewWSHub(subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		subscriber: subscriber,
		log:        log,
		clients:    make(map[uuid.UUID]*wsClient),
	}
}

func (h *WSHub) Start(ctx context.Context) error {
	return h.subscriber.Subscribe(ctx, events.StreamClient, h.broadcast)
}

func (h *WSHub) broadcast(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Warn("event not encodable", zap.String("type", event.Type), zap.Error(err))
		return
	}

	// writes to one conn must not interleave
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, cl := range h.clients {
		if !cl.wants(event.Type) {
			continue
		}
		if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.log.Debug("websocket write failed", zap.String("conn_id", id.String()), zap.Error(err))
		}
	}
}

// Clients returns the number of connected listeners.
func (h *WSHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// WSUpgradeMiddleware accepts websocket upgrades from allowed origins only.
// Requests without an Origin header come from local tools and pass.
func WSUpgradeMiddleware(allowedOrigins []string) fiber.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		if origin := c.Get(fiber.HeaderOrigin); origin != "" && !allowed["*"] && !allowed[origin] {
			return fiber.ErrForbidden
		}
		return c.Next()
	}
}

// HandleWS serves one listener. ?types=a,b limits the events it receives.
func (h *WSHub) HandleWS(conn *websocket.Conn) {
	cl := &wsClient{conn: conn}
	if q := conn.Query("types"); q != "" {
		cl.types = make(map[string]bool)
		for _, t := range strings.Split(q, ",") {
			if t = strings.TrimSpace(t); t != "" {
				cl.types[t] = true
			}
		}
	}
	id := uuid.New()

	h.mu.Lock()
	h.clients[id] = cl
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, id)
		h.mu.Unlock()
		conn.Close()
	}()

	// Read loop (keep alive / pings)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
