package handlers

import (
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/report-service/internal/auth"
	"github.com/spec-kit/report-service/internal/ws"
)

// WSHandler upgrades HTTP requests to websocket subscriber connections
// and feeds them into the broadcast hub.
type WSHandler struct {
	hub    *ws.Hub
	tokens *auth.TokenManager
	logger *zap.Logger
}

// NewWSHandler returns a new handler instance.
func NewWSHandler(hub *ws.Hub, tokens *auth.TokenManager, logger *zap.Logger) *WSHandler {
	return &WSHandler{hub: hub, tokens: tokens, logger: logger}
}

// Upgrade rejects non-websocket requests before the upgrade middleware
// runs.
func (h *WSHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return c.Next()
}

// Handler serves one websocket session. The token travels in the
// query string because browser websocket clients cannot set headers.
func (h *WSHandler) Handler() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		claims, err := h.tokens.ParseToken(c.Query("token"))
		if err != nil {
			_ = c.WriteJSON(wsEnvelope{Event: "error", Data: "unauthorized"})
			_ = c.Close()
			return
		}
		principal := &auth.Principal{
			AdminName:   claims.Name,
			Permissions: claims.Permissions,
		}

		conn := &wsConn{
			id:        uuid.New().String(),
			authority: principal,
			socket:    c,
		}

		rooms := splitRooms(c.Query("rooms"))
		query := map[string]string{}
		if reportID := c.Query("reportId"); reportID != "" {
			query["reportId"] = reportID
		}

		if err := h.hub.Subscribe(conn, rooms, query); err != nil {
			_ = c.WriteJSON(wsEnvelope{Event: "error", Data: err.Error()})
			_ = c.Close()
			return
		}
		defer h.hub.Unsubscribe(conn)

		h.logger.Debug("websocket session opened",
			zap.String("conn_id", conn.id),
			zap.String("admin", claims.Name),
			zap.Strings("rooms", rooms),
		)

		// Subscribers only receive; the read loop exists to detect
		// disconnects and honor close frames.
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}

		h.logger.Debug("websocket session closed", zap.String("conn_id", conn.id))
	})
}

type wsEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// wsConn adapts a fiber websocket connection to the hub's Conn
// interface. The write mutex serializes flush-tick and direct emits.
type wsConn struct {
	id        string
	authority ws.Authority
	socket    *websocket.Conn

	writeMu sync.Mutex
	closed  bool
}

func (c *wsConn) ID() string              { return c.id }
func (c *wsConn) Authority() ws.Authority { return c.authority }

func (c *wsConn) Emit(event string, data any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.socket.WriteJSON(wsEnvelope{Event: event, Data: data})
}

func (c *wsConn) Close() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	_ = c.socket.Close()
}

func splitRooms(raw string) []string {
	parts := strings.Split(raw, ",")
	rooms := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			rooms = append(rooms, p)
		}
	}
	return rooms
}
