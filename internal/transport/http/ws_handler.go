package http

import (
	"context"
	"encoding/json"
	"net/http"

	"exam-ledger-service/internal/domain"
	"exam-ledger-service/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// NotificationFeed streams notifications addressed to one user.
type NotificationFeed interface {
	Subscribe(ctx context.Context, userID string) (<-chan domain.Notification, func(), error)
}

// ConnectionRegistry tracks open websocket connections with a TTL.
type ConnectionRegistry interface {
	Register(ctx context.Context, userID string) (string, error)
	Touch(ctx context.Context, connID string) error
	Unregister(ctx context.Context, connID string) error
	Online(ctx context.Context, userID string) (int, error)
}

type WSHandler struct {
	feed     NotificationFeed
	registry ConnectionRegistry
	upgrader websocket.Upgrader
	log      *logger.Logger
}

func NewWSHandler(feed NotificationFeed, registry ConnectionRegistry, log *logger.Logger) *WSHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &WSHandler{
		feed:     feed,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log.With("component", "ws"),
	}
}

type inboundMessage struct {
	Type string `json:"type"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type connectedPayload struct {
	ConnectionID string `json:"connectionId"`
	Online       int    `json:"online"`
}

// ServeWS upgrades an authenticated request and forwards the caller's
// notifications until the client goes away.
func (h *WSHandler) ServeWS(c *gin.Context) {
	userID := callerID(c)
	ctx := c.Request.Context()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	connID, err := h.registry.Register(ctx, userID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer func() {
		if err := h.registry.Unregister(context.Background(), connID); err != nil {
			h.log.Warn("unregister connection", "connection_id", connID, "error", err)
		}
	}()

	updates, cancel, err := h.feed.Subscribe(ctx, userID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()

	online, err := h.registry.Online(ctx, userID)
	if err != nil {
		h.log.Warn("count connections", "user_id", userID, "error", err)
	}

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer; gorilla connections do not support concurrent writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", "connection_id", connID, "error", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case n, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "notification", Payload: n}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "connected", Payload: connectedPayload{ConnectionID: connID, Online: online}}

	for {
		var inbound inboundMessage
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if err := json.Unmarshal(data, &inbound); err != nil {
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid message"}}
			continue
		}
		switch inbound.Type {
		case "ping":
			if err := h.registry.Touch(ctx, connID); err != nil {
				h.log.Warn("touch connection", "connection_id", connID, "error", err)
			}
			send <- outboundMessage[any]{Type: "pong", Payload: struct{}{}}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
