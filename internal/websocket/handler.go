package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"langworker/internal/engine"
	apierrors "langworker/internal/errors"
	api "langworker/pkg/contracts/api/v1"
	"langworker/pkg/contracts/events"
)

// Checker is the check pipeline shared with the HTTP transport
type Checker interface {
	Check(ctx context.Context, req api.CheckRequest) (*api.CheckResponse, error)
	Language() string
	Kind() engine.Kind
}

// Handler upgrades GET /ws to a live checking session
type Handler struct {
	hub            *Hub
	checker        Checker
	errorHandler   *apierrors.ErrorHandler
	upgrader       websocket.Upgrader
	maxMessageSize int64
	logger         *slog.Logger
}

// NewHandler creates the /ws handler. allowedOrigins follows the CORS
// setting: empty or "*" accepts every origin.
func NewHandler(hub *Hub, checker Checker, errorHandler *apierrors.ErrorHandler, allowedOrigins []string, maxMessageSize int64, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		hub:            hub,
		checker:        checker,
		errorHandler:   errorHandler,
		maxMessageSize: maxMessageSize,
		logger:         logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: writeWait,
		CheckOrigin:      originChecker(allowedOrigins),
		Error:            h.upgradeError,
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	for _, o := range allowed {
		if o == "*" {
			allowed = nil
			break
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// upgradeError answers a failed handshake with a problem response
func (h *Handler) upgradeError(w http.ResponseWriter, r *http.Request, status int, reason error) {
	h.errorHandler.HandleError(w, r, apierrors.NewWithDetails(status,
		apierrors.ErrWebSocketUpgrade.ErrorCode, apierrors.ErrWebSocketUpgrade.Message, reason.Error()))
}

// ServeHTTP handles websocket requests from the peer
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgradeError has already written the problem response
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	// The request context ends when ServeHTTP returns; the session outlives it.
	ctx := context.WithoutCancel(r.Context())
	client := newClient(ctx, h.hub, conn, h.checker, h.errorHandler, h.logger)
	if !h.hub.Register(client) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	client.reply(ctx, "", events.MessageTypeConnected, events.ConnectedData{
		SessionID: client.id,
		Language:  h.checker.Language(),
		Kind:      string(h.checker.Kind()),
	})

	go client.WritePump()
	go client.ReadPump(h.maxMessageSize)
}
