package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apppayment "github.com/lunari/studio-ledger/internal/application/payment"
	appsession "github.com/lunari/studio-ledger/internal/application/session"
	"github.com/lunari/studio-ledger/internal/domain/session"
	"github.com/lunari/studio-ledger/internal/domain/shared"
	"github.com/lunari/studio-ledger/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// SessionService runs session mutations
type SessionService interface {
	Create(ctx context.Context, draft session.Draft) (*session.Session, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any, opts appsession.UpdateOptions) (*appsession.Result, error)
	Archive(ctx context.Context, id uuid.UUID) (*appsession.Result, error)
	Delete(ctx context.Context, id uuid.UUID, includePayments bool) error
	Reconcile(ctx context.Context, id uuid.UUID, trigger string) (*appsession.ReconcileResult, error)
}

// SessionCollection is the read side of the in-memory session cache
type SessionCollection interface {
	Get(id uuid.UUID) (*session.Session, bool)
	Snapshot() []*session.Session
	Payments(id uuid.UUID) (*apppayment.Ledger, bool)
	SetPayments(ledger *apppayment.Ledger)
}

// SessionLookup reads sessions from the store
type SessionLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*session.Session, error)
	List(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]session.Session, error)
}

// PaymentReader derives the payment ledger of a session
type PaymentReader interface {
	Read(ctx context.Context, sessionID uuid.UUID) (*apppayment.Ledger, error)
	Current(ledger *apppayment.Ledger) *apppayment.Ledger
}

// DisplayFormatter formats a session for listing screens
type DisplayFormatter interface {
	ToDisplay(ctx context.Context, s *session.Session) appsession.DisplayRow
}

// SessionHandler serves the session ledger endpoints
type SessionHandler struct {
	BaseHandler
	service  SessionService
	cache    SessionCollection
	lookup   SessionLookup
	payments PaymentReader
	display  DisplayFormatter
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(service SessionService, cache SessionCollection, lookup SessionLookup, payments PaymentReader, display DisplayFormatter) *SessionHandler {
	return &SessionHandler{
		service:  service,
		cache:    cache,
		lookup:   lookup,
		payments: payments,
		display:  display,
	}
}

// Create handles POST /sessions
func (h *SessionHandler) Create(c *gin.Context) {
	studio, err := getStudioID(c)
	if err != nil {
		h.HandleError(c, shared.ErrInvalidTenant)
		return
	}

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	draft, err := req.toDraft(studio)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	created, err := h.service.Create(c.Request.Context(), draft)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, ToSessionResponse(created))
}

// Get handles GET /sessions/:id
func (h *SessionHandler) Get(c *gin.Context) {
	s, ok := h.find(c)
	if !ok {
		return
	}
	h.Success(c, ToSessionResponse(s))
}

// Display handles GET /sessions/:id/display
func (h *SessionHandler) Display(c *gin.Context) {
	s, ok := h.find(c)
	if !ok {
		return
	}
	h.Success(c, h.display.ToDisplay(c.Request.Context(), s))
}

// List handles GET /sessions. The studio's cached collection is served
// unless the query asks for something only the store has (see
// ListSessionsQuery). view=display returns display rows.
func (h *SessionHandler) List(c *gin.Context) {
	studio, err := getStudioID(c)
	if err != nil {
		h.HandleError(c, shared.ErrInvalidTenant)
		return
	}
	var q ListSessionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.ValidationError(c, err)
		return
	}
	status := session.Status(q.Status)
	if status != "" && !status.IsValid() {
		h.HandleError(c, shared.ErrInvalidStatus)
		return
	}

	var rows []*session.Session
	if q.needsStore() {
		stored, err := h.lookup.List(c.Request.Context(), studio, q.toFilter())
		if err != nil {
			h.HandleError(c, err)
			return
		}
		rows = make([]*session.Session, 0, len(stored))
		for i := range stored {
			rows = append(rows, &stored[i])
		}
	} else {
		for _, s := range h.cache.Snapshot() {
			if s.TenantID == studio && (status == "" || s.Status == status) {
				rows = append(rows, s)
			}
		}
	}

	if q.View == "display" {
		out := make([]appsession.DisplayRow, 0, len(rows))
		for _, s := range rows {
			out = append(out, h.display.ToDisplay(c.Request.Context(), s))
		}
		h.SuccessWithTotal(c, out, len(out))
		return
	}

	out := make([]SessionResponse, 0, len(rows))
	for _, s := range rows {
		out = append(out, ToSessionResponse(s))
	}
	h.SuccessWithTotal(c, out, len(out))
}

// Update handles PATCH /sessions/:id. The body is a loose update map;
// ?silent=true suppresses domain events.
func (h *SessionHandler) Update(c *gin.Context) {
	s, ok := h.find(c)
	if !ok {
		return
	}

	var updates map[string]any
	if err := c.ShouldBindJSON(&updates); err != nil {
		h.BadRequest(c, "Request body must be a JSON object")
		return
	}
	silent, _ := strconv.ParseBool(c.Query("silent"))

	result, err := h.service.Update(c.Request.Context(), s.ID, updates, appsession.UpdateOptions{Silent: silent})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, ToUpdateResponse(result))
}

// Archive handles POST /sessions/:id/archive
func (h *SessionHandler) Archive(c *gin.Context) {
	s, ok := h.find(c)
	if !ok {
		return
	}
	result, err := h.service.Archive(c.Request.Context(), s.ID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, ToUpdateResponse(result))
}

// Delete handles DELETE /sessions/:id. ?include_payments=true also removes
// the session's transactions.
func (h *SessionHandler) Delete(c *gin.Context) {
	s, ok := h.find(c)
	if !ok {
		return
	}
	includePayments, _ := strconv.ParseBool(c.Query("include_payments"))

	if err := h.service.Delete(c.Request.Context(), s.ID, includePayments); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Reconcile handles POST /sessions/:id/reconcile
func (h *SessionHandler) Reconcile(c *gin.Context) {
	s, ok := h.find(c)
	if !ok {
		return
	}
	result, err := h.service.Reconcile(c.Request.Context(), s.ID, appsession.TriggerManual)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if result.StillDiverged {
		logger.GetGinLogger(c).Warn("session total still diverges after reconcile",
			zap.String("session_id", s.ID.String()),
			zap.String("expected", result.Expected.StringFixed(2)),
			zap.String("stored", result.Session.Total.StringFixed(2)))
	}
	h.Success(c, ToReconcileResponse(result))
}

// Payments handles GET /sessions/:id/payments. The cached ledger is served
// when present; otherwise it is derived and cached.
func (h *SessionHandler) Payments(c *gin.Context) {
	s, ok := h.find(c)
	if !ok {
		return
	}

	ledger, cached := h.cache.Payments(s.ID)
	if !cached {
		var err error
		ledger, err = h.payments.Read(c.Request.Context(), s.ID)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		h.cache.SetPayments(ledger)
	} else {
		// statuses were derived when the ledger was cached; due dates may have passed since
		ledger = h.payments.Current(ledger)
	}

	h.Success(c, PaymentsResponse{
		Ledger:  ledger,
		Balance: s.Total.Sub(ledger.Summary.Paid),
	})
}

// find resolves :id to a session of the caller's studio, writing the error
// response itself when it fails. Sessions of other studios are reported as
// missing.
func (h *SessionHandler) find(c *gin.Context) (*session.Session, bool) {
	studio, err := getStudioID(c)
	if err != nil {
		h.HandleError(c, shared.ErrInvalidTenant)
		return nil, false
	}
	id, err := parseID(c)
	if err != nil {
		h.BadRequest(c, "Invalid session ID")
		return nil, false
	}

	s, ok := h.cache.Get(id)
	if !ok {
		s, err = h.lookup.Get(c.Request.Context(), id)
		if err != nil {
			h.HandleError(c, err)
			return nil, false
		}
	}
	if s.TenantID != studio {
		h.HandleError(c, shared.ErrNotFound)
		return nil, false
	}
	return s, true
}
