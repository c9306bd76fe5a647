package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"langworker/internal/engine"
	apierrors "langworker/internal/errors"
	"langworker/internal/infrastructure"
	api "langworker/pkg/contracts/api/v1"
	"langworker/pkg/contracts/events"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Outbound replies buffered per session
	sendBuffer = 16

	// Inbound frames waiting for the session worker
	frameBuffer = 16

	instance = "/ws"
)

// Client is one live checking session. Frames are checked one at a time in
// arrival order, so replies come back in request order. The session context
// is canceled as soon as the peer goes away, which releases a queued check
// without invoking the engine.
type Client struct {
	hub          *Hub
	conn         *websocket.Conn
	checker      Checker
	errorHandler *apierrors.ErrorHandler

	send   chan []byte
	sendMu sync.Mutex
	closed bool

	id          string
	remoteAddr  string
	connectedAt time.Time
	ctx         context.Context
	cancel      context.CancelFunc

	logger *slog.Logger

	messagesSent     int64
	messagesReceived int64
}

func newClient(ctx context.Context, hub *Hub, conn *websocket.Conn, checker Checker, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *Client {
	id := uuid.New().String()
	ctx, cancel := context.WithCancel(ctx)
	return &Client{
		hub:          hub,
		conn:         conn,
		checker:      checker,
		errorHandler: errorHandler,
		send:         make(chan []byte, sendBuffer),
		id:           id,
		remoteAddr:   conn.RemoteAddr().String(),
		connectedAt:  time.Now(),
		ctx:          ctx,
		cancel:       cancel,
		logger:       infrastructure.WithComponent(logger, "websocket.client").With(slog.String("client_id", id)),
	}
}

func (c *Client) age() time.Duration { return time.Since(c.connectedAt) }

// closeSend cancels pending work and closes the outbound queue; WritePump
// then sends a close frame
func (c *Client) closeSend() {
	c.cancel()
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// enqueue queues a reply without blocking. A session that stops reading
// loses replies rather than stalling the read loop.
func (c *Client) enqueue(ctx context.Context, msg events.WebSocketMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to encode reply", slog.String("error", err.Error()))
		return
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
		c.hub.metrics.message(ctx, "out", string(msg.Type))
	default:
		c.hub.metrics.dropped(ctx)
		c.logger.WarnContext(ctx, "reply dropped, client is not reading", slog.String("type", string(msg.Type)))
	}
}

// ReadPump reads check frames until the connection fails or closes. Frames
// are handed to a worker so a disconnect is seen while a check is queued.
func (c *Client) ReadPump(maxMessageSize int64) {
	frames := make(chan []byte, frameBuffer)
	go c.processFrames(frames)

	defer func() {
		c.cancel()
		close(frames)
		c.logger.InfoContext(c.ctx, "websocket client disconnected",
			slog.Duration("connection_duration", c.age()),
			slog.Int64("messages_received", c.messagesReceived))
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.WarnContext(c.ctx, "unexpected websocket close", slog.String("error", err.Error()))
			}
			return
		}
		c.messagesReceived++

		select {
		case frames <- message:
		default:
			ctx := infrastructure.WithTraceID(c.ctx, infrastructure.GenerateTraceID())
			msg, _ := decodeFrame(message)
			c.logger.WarnContext(ctx, "session backlog full, frame rejected")
			c.reply(ctx, msg.ID, events.MessageTypeError, c.errorHandler.Problem(ctx, engine.ErrOverloaded, instance))
		}
	}
}

// processFrames checks queued frames in order until the queue is closed
func (c *Client) processFrames(frames <-chan []byte) {
	for message := range frames {
		if c.ctx.Err() != nil {
			continue
		}
		c.handle(message)
	}
}

func (c *Client) handle(message []byte) {
	ctx := infrastructure.WithTraceID(c.ctx, infrastructure.GenerateTraceID())
	c.hub.metrics.message(ctx, "in", string(events.MessageTypeCheck))

	msg, err := decodeFrame(message)
	if err != nil {
		c.reply(ctx, msg.ID, events.MessageTypeError, c.errorHandler.Problem(ctx, err, instance))
		return
	}

	resp, err := c.checker.Check(ctx, api.CheckRequest{
		Text:           msg.Text,
		MaxSuggestions: msg.MaxSuggestions,
		Locale:         msg.Locale,
	})
	if err != nil {
		if c.ctx.Err() != nil {
			c.logger.DebugContext(ctx, "session closed before the check completed")
			return
		}
		c.logger.DebugContext(ctx, "check failed", slog.String("error", err.Error()))
		c.reply(ctx, msg.ID, events.MessageTypeError, c.errorHandler.Problem(ctx, err, instance))
		return
	}
	c.reply(ctx, msg.ID, events.MessageTypeResult, resp)
}

func (c *Client) reply(ctx context.Context, id string, typ events.MessageType, data interface{}) {
	c.enqueue(ctx, events.WebSocketMessage{
		BaseMessage: events.BaseMessage{
			ID:        id,
			Type:      typ,
			Timestamp: time.Now().UTC(),
			TraceID:   infrastructure.GetTraceID(ctx),
		},
		Data: data,
	})
}

// decodeFrame accepts a JSON ClientMessage or plain text
func decodeFrame(message []byte) (events.ClientMessage, error) {
	var msg events.ClientMessage
	trimmed := bytes.TrimSpace(message)
	if len(trimmed) == 0 {
		return msg, apierrors.NewBadPayload("message is empty", nil)
	}
	if trimmed[0] != '{' {
		msg.Text = string(message)
		return msg, nil
	}
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return msg, apierrors.NewBadPayload("malformed JSON message", err)
	}
	if msg.Type != "" && msg.Type != events.MessageTypeCheck {
		return msg, apierrors.NewBadPayload("unsupported message type "+string(msg.Type), nil)
	}
	if strings.TrimSpace(msg.Text) == "" {
		return msg, &apierrors.RequestError{
			Code:    apierrors.BadPayload,
			Message: "text is required",
			Fields:  []apierrors.ValidationError{{Field: "text", Message: "is required"}},
		}
	}
	return msg, nil
}

// WritePump writes queued replies and keeps the connection alive with pings
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.logger.DebugContext(c.ctx, "websocket write pump stopped", slog.Int64("messages_sent", c.messagesSent))
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.ErrorContext(c.ctx, "error writing message to websocket", slog.String("error", err.Error()))
				return
			}
			c.messagesSent++

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.DebugContext(c.ctx, "failed to send ping message", slog.String("error", err.Error()))
				return
			}
		}
	}
}
