package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appsession "github.com/lunari/studio-ledger/internal/application/session"
	"github.com/lunari/studio-ledger/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// SSE event names
const (
	EventConnected      = "connected"
	EventSessionChanged = "session_changed"
	EventHeartbeat      = "heartbeat"
)

const sseMessageBufferSize = 100

// ChangeSubscriber hands out subscriptions to cache changes
type ChangeSubscriber interface {
	Subscribe(buffer int) (<-chan appsession.CollectionChange, func())
}

// SSEMessage represents a message to be sent to SSE clients
type SSEMessage struct {
	Event string
	Data  string
	ID    string
}

// SessionChangedEvent is the payload of a session_changed event. Session
// is absent when the session was removed.
type SessionChangedEvent struct {
	Kind      appsession.ChangeKind `json:"kind"`
	SessionID uuid.UUID             `json:"session_id"`
	Session   *SessionResponse      `json:"session,omitempty"`
}

// SessionStreamHandler pushes cache changes of the caller's studio to
// connected clients over Server-Sent Events
type SessionStreamHandler struct {
	BaseHandler
	changes    ChangeSubscriber
	logger     *zap.Logger
	heartbeat  time.Duration
	maxClients int
	clients    atomic.Int64
	seq        atomic.Uint64
	ctx        context.Context
	cancel     context.CancelFunc
}

// SessionStreamOption is a functional option for configuring the handler
type SessionStreamOption func(*SessionStreamHandler)

// WithStreamLogger sets the logger for the handler
func WithStreamLogger(logger *zap.Logger) SessionStreamOption {
	return func(h *SessionStreamHandler) {
		h.logger = logger
	}
}

// WithStreamHeartbeat sets the heartbeat interval
func WithStreamHeartbeat(interval time.Duration) SessionStreamOption {
	return func(h *SessionStreamHandler) {
		if interval > 0 {
			h.heartbeat = interval
		}
	}
}

// WithStreamMaxClients caps concurrent clients; zero means unlimited
func WithStreamMaxClients(max int) SessionStreamOption {
	return func(h *SessionStreamHandler) {
		h.maxClients = max
	}
}

// NewSessionStreamHandler creates a new SessionStreamHandler
func NewSessionStreamHandler(changes ChangeSubscriber, opts ...SessionStreamOption) *SessionStreamHandler {
	ctx, cancel := context.WithCancel(context.Background())
	h := &SessionStreamHandler{
		changes:    changes,
		logger:     zap.NewNop(),
		heartbeat:  30 * time.Second,
		maxClients: 1000,
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Stop disconnects every client
func (h *SessionStreamHandler) Stop() {
	h.cancel()
}

// ClientCount returns the number of connected clients
func (h *SessionStreamHandler) ClientCount() int {
	return int(h.clients.Load())
}

// Stream handles GET /sessions/stream
func (h *SessionStreamHandler) Stream(c *gin.Context) {
	studio, err := getStudioID(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	if h.ctx.Err() != nil {
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeStreamUnavailable, "Session stream is shutting down")
		return
	}
	if n := h.clients.Add(1); h.maxClients > 0 && n > int64(h.maxClients) {
		h.clients.Add(-1)
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeStreamUnavailable, "Maximum number of stream connections reached")
		return
	}
	defer h.clients.Add(-1)

	changes, unsubscribe := h.changes.Subscribe(sseMessageBufferSize)
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	clientID := uuid.NewString()
	log := h.logger.With(zap.String("client_id", clientID), zap.String("studio_id", studio.String()))
	log.Info("SSE client connected")

	h.sendEvent(c.Writer, SSEMessage{
		Event: EventConnected,
		Data:  fmt.Sprintf(`{"client_id":%q,"timestamp":%d}`, clientID, time.Now().Unix()),
	})
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	reqCtx := c.Request.Context()
	for {
		select {
		case <-reqCtx.Done():
			log.Info("SSE client disconnected")
			return
		case <-h.ctx.Done():
			log.Info("SSE handler stopped, disconnecting client")
			return
		case <-ticker.C:
			h.sendEvent(c.Writer, SSEMessage{
				Event: EventHeartbeat,
				Data:  fmt.Sprintf(`{"timestamp":%d}`, time.Now().Unix()),
			})
			c.Writer.Flush()
		case change, ok := <-changes:
			if !ok {
				return
			}
			msg, ok := h.toMessage(change, studio)
			if !ok {
				continue
			}
			h.sendEvent(c.Writer, msg)
			c.Writer.Flush()
		}
	}
}

// toMessage converts a cache change into an SSE message. Changes of other
// studios are skipped. Removals carry no session, so they go to everyone.
func (h *SessionStreamHandler) toMessage(change appsession.CollectionChange, studio uuid.UUID) (SSEMessage, bool) {
	event := SessionChangedEvent{Kind: change.Kind, SessionID: change.SessionID}
	if change.Session != nil {
		if change.Session.TenantID != studio {
			return SSEMessage{}, false
		}
		resp := ToSessionResponse(change.Session)
		event.Session = &resp
	}

	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal SSE event", zap.Error(err))
		return SSEMessage{}, false
	}
	return SSEMessage{
		Event: EventSessionChanged,
		Data:  string(data),
		ID:    strconv.FormatUint(h.seq.Add(1), 10),
	}, true
}

// sendEvent writes an SSE event to the response writer
func (h *SessionStreamHandler) sendEvent(w io.Writer, msg SSEMessage) {
	if msg.Event != "" {
		fmt.Fprintf(w, "event: %s\n", msg.Event)
	}
	if msg.ID != "" {
		fmt.Fprintf(w, "id: %s\n", msg.ID)
	}
	fmt.Fprintf(w, "data: %s\n\n", msg.Data)
}
