package handler

import (
	"time"

	"github.com/google/uuid"
	apppayment "github.com/lunari/studio-ledger/internal/application/payment"
	appsession "github.com/lunari/studio-ledger/internal/application/session"
	"github.com/lunari/studio-ledger/internal/domain/pricing"
	"github.com/lunari/studio-ledger/internal/domain/session"
	"github.com/lunari/studio-ledger/internal/domain/shared"
	"github.com/lunari/studio-ledger/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// ListSessionsQuery holds the query parameters of GET /sessions. The cache
// only holds unarchived sessions, so a search, a date range, archived rows
// or an explicit page are answered by the store.
type ListSessionsQuery struct {
	Status          string    `form:"status"`
	View            string    `form:"view"`
	Search          string    `form:"search" binding:"max=100"`
	From            time.Time `form:"from" time_format:"2006-01-02" time_utc:"1"`
	To              time.Time `form:"to" time_format:"2006-01-02" time_utc:"1"`
	IncludeArchived bool      `form:"include_archived"`
	Page            int       `form:"page" binding:"omitempty,min=1"`
	PageSize        int       `form:"page_size" binding:"omitempty,min=1,max=200"`
	OrderBy         string    `form:"order_by"`
	OrderDir        string    `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

func (q ListSessionsQuery) needsStore() bool {
	return q.Search != "" || !q.From.IsZero() || !q.To.IsZero() || q.IncludeArchived || q.Page > 0
}

func (q ListSessionsQuery) toFilter() shared.Filter {
	f := shared.DefaultFilter()
	f.Search = q.Search
	if q.Page > 0 {
		f.Page = q.Page
	}
	if q.PageSize > 0 {
		f.PageSize = q.PageSize
	}
	if q.OrderBy != "" {
		f.OrderBy = q.OrderBy
	}
	if q.OrderDir != "" {
		f.OrderDir = q.OrderDir
	}
	if q.Status != "" {
		f.Filters["status"] = q.Status
	}
	if !q.From.IsZero() {
		f.Filters["from"] = q.From
	}
	if !q.To.IsZero() {
		// the whole "to" day is included
		f.Filters["to"] = q.To.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	f.Filters["include_archived"] = q.IncludeArchived
	return f
}

// ProductLineRequest is one manual product on a create request
type ProductLineRequest struct {
	ProductID string `json:"product_id" binding:"omitempty,uuid"`
	Name      string `json:"name" binding:"required,max=200"`
	Quantity  int    `json:"quantity" binding:"min=1"`
	UnitPrice any    `json:"unit_price" binding:"omitempty,money"`
	Produced  bool   `json:"produced"`
	Delivered bool   `json:"delivered"`
}

// CreateSessionRequest is the body of POST /sessions. Monetary fields accept
// numbers or formatted strings such as "R$ 1.234,56".
type CreateSessionRequest struct {
	ClientID      string               `json:"client_id" binding:"required,uuid"`
	AppointmentID string               `json:"appointment_id" binding:"omitempty,uuid"`
	ScheduledAt   time.Time            `json:"scheduled_at" binding:"required"`
	Category      string               `json:"category" binding:"max=100"`
	Package       string               `json:"package" binding:"max=200"`
	Description   string               `json:"description" binding:"max=500"`
	Notes         string               `json:"notes"`
	ExtraQuantity int                  `json:"extra_quantity" binding:"gte=0"`
	Products      []ProductLineRequest `json:"products" binding:"omitempty,dive"`
	Discount      any                  `json:"discount" binding:"omitempty,money"`
	Addition      any                  `json:"addition" binding:"omitempty,money"`
}

// toDraft converts the request into a session draft for studio
func (r CreateSessionRequest) toDraft(studio uuid.UUID) (session.Draft, error) {
	draft := session.Draft{
		TenantID:      studio,
		ScheduledAt:   r.ScheduledAt,
		Category:      r.Category,
		PackageRef:    r.Package,
		Description:   r.Description,
		Notes:         r.Notes,
		ExtraQuantity: r.ExtraQuantity,
	}

	var err error
	if draft.ClientID, err = uuid.Parse(r.ClientID); err != nil {
		return draft, err
	}
	if r.AppointmentID != "" {
		id, err := uuid.Parse(r.AppointmentID)
		if err != nil {
			return draft, err
		}
		draft.AppointmentID = &id
	}
	if draft.Discount, err = valueobject.ParseAmount(r.Discount); err != nil {
		return draft, err
	}
	if draft.Addition, err = valueobject.ParseAmount(r.Addition); err != nil {
		return draft, err
	}

	for _, p := range r.Products {
		line := pricing.ProductLine{
			ID:        uuid.New(),
			Name:      p.Name,
			Quantity:  p.Quantity,
			Origin:    pricing.OriginManual,
			Produced:  p.Produced,
			Delivered: p.Delivered,
		}
		if p.ProductID != "" {
			if line.ProductID, err = uuid.Parse(p.ProductID); err != nil {
				return draft, err
			}
		}
		if line.UnitPrice, err = valueobject.ParseAmount(p.UnitPrice); err != nil {
			return draft, err
		}
		draft.Products = append(draft.Products, line)
	}
	return draft, nil
}

// SessionResponse is the raw ledger view of a session
type SessionResponse struct {
	ID               uuid.UUID              `json:"id"`
	StudioID         uuid.UUID              `json:"studio_id"`
	ClientID         uuid.UUID              `json:"client_id"`
	Client           *session.ClientDisplay `json:"client,omitempty"`
	AppointmentID    *uuid.UUID             `json:"appointment_id,omitempty"`
	ScheduledAt      time.Time              `json:"scheduled_at"`
	Category         string                 `json:"category"`
	PackageID        *uuid.UUID             `json:"package_id,omitempty"`
	Package          string                 `json:"package"`
	Description      string                 `json:"description"`
	Notes            string                 `json:"notes"`
	Status           session.Status         `json:"status"`
	Snapshot         pricing.RuleSnapshot   `json:"snapshot"`
	BaseValue        decimal.Decimal        `json:"base_value"`
	ExtraQuantity    int                    `json:"extra_quantity"`
	ExtraUnitPrice   decimal.Decimal        `json:"extra_unit_price"`
	ExtraSubtotal    decimal.Decimal        `json:"extra_subtotal"`
	Products         []pricing.ProductLine  `json:"products"`
	ProductsSubtotal decimal.Decimal        `json:"products_subtotal"`
	Discount         decimal.Decimal        `json:"discount"`
	Addition         decimal.Decimal        `json:"addition"`
	PaidToDate       decimal.Decimal        `json:"paid_to_date"`
	Total            decimal.Decimal        `json:"total"`
	Version          int                    `json:"version"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// ToSessionResponse converts a domain session to its response
func ToSessionResponse(s *session.Session) SessionResponse {
	products := s.Products
	if products == nil {
		products = []pricing.ProductLine{}
	}
	return SessionResponse{
		ID:               s.ID,
		StudioID:         s.TenantID,
		ClientID:         s.ClientID,
		Client:           s.Client,
		AppointmentID:    s.AppointmentID,
		ScheduledAt:      s.ScheduledAt,
		Category:         s.Category,
		PackageID:        s.PackageID,
		Package:          s.PackageRef,
		Description:      s.Description,
		Notes:            s.Notes,
		Status:           s.Status,
		Snapshot:         s.Snapshot,
		BaseValue:        s.BaseValue,
		ExtraQuantity:    s.ExtraQuantity,
		ExtraUnitPrice:   s.ExtraUnitPrice,
		ExtraSubtotal:    s.ExtraSubtotal,
		Products:         products,
		ProductsSubtotal: s.ProductsSubtotal,
		Discount:         s.Discount,
		Addition:         s.Addition,
		PaidToDate:       s.PaidToDate,
		Total:            s.Total,
		Version:          s.Version,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

// UpdateResponse reports the outcome of a mutation
type UpdateResponse struct {
	Session   SessionResponse `json:"session"`
	Changed   []session.Field `json:"changed"`
	Written   bool            `json:"written"`
	Corrected bool            `json:"corrected"`
}

// ToUpdateResponse converts a coordinator result
func ToUpdateResponse(r *appsession.Result) UpdateResponse {
	changed := r.Changed
	if changed == nil {
		changed = []session.Field{}
	}
	return UpdateResponse{
		Session:   ToSessionResponse(r.Session),
		Changed:   changed,
		Written:   r.Written,
		Corrected: r.Corrected,
	}
}

// ReconcileResponse reports the outcome of a reconcile pass
type ReconcileResponse struct {
	Session       SessionResponse `json:"session"`
	Expected      decimal.Decimal `json:"expected_total"`
	Corrected     bool            `json:"corrected"`
	StillDiverged bool            `json:"still_diverged"`
}

// ToReconcileResponse converts a reconcile result
func ToReconcileResponse(r *appsession.ReconcileResult) ReconcileResponse {
	return ReconcileResponse{
		Session:       ToSessionResponse(r.Session),
		Expected:      r.Expected,
		Corrected:     r.Corrected,
		StillDiverged: r.StillDiverged,
	}
}

// PaymentsResponse is the derived payment view of a session
type PaymentsResponse struct {
	*apppayment.Ledger
	Balance decimal.Decimal `json:"balance"`
}
