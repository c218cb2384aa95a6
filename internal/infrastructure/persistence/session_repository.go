package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lunari/studio-ledger/internal/domain/session"
	"github.com/lunari/studio-ledger/internal/domain/shared"
	"github.com/lunari/studio-ledger/internal/infrastructure/changefeed"
	"github.com/lunari/studio-ledger/internal/infrastructure/persistence/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const sessionSelect = "sessions.*, clients.name AS client_name, clients.email AS client_email, clients.phone AS client_phone"

// GormSessionRepository implements session.Repository using GORM.
// Committed writes are announced on the change feed.
type GormSessionRepository struct {
	db        *gorm.DB
	publisher changefeed.Publisher
	logger    *zap.Logger
}

// GormSessionRepositoryOption is a functional option for the repository
type GormSessionRepositoryOption func(*GormSessionRepository)

// WithChangePublisher sets where committed writes are announced
func WithChangePublisher(p changefeed.Publisher) GormSessionRepositoryOption {
	return func(r *GormSessionRepository) {
		r.publisher = p
	}
}

// WithRepositoryLogger sets the logger
func WithRepositoryLogger(logger *zap.Logger) GormSessionRepositoryOption {
	return func(r *GormSessionRepository) {
		r.logger = logger
	}
}

// NewGormSessionRepository creates a new GormSessionRepository
func NewGormSessionRepository(db *gorm.DB, opts ...GormSessionRepositoryOption) *GormSessionRepository {
	r := &GormSessionRepository{db: db, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *GormSessionRepository) joined(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("sessions").
		Select(sessionSelect).
		Joins("LEFT JOIN clients ON clients.id = sessions.client_id")
}

// FindByID finds a session by its ID, joined with the client display fields
func (r *GormSessionRepository) FindByID(ctx context.Context, id uuid.UUID) (*session.Session, error) {
	var row models.SessionRow
	if err := r.joined(ctx).Where("sessions.id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return row.ToDomain()
}

// FindAllForTenant lists the sessions of a studio
func (r *GormSessionRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]session.Session, error) {
	query := r.joined(ctx).Where("sessions.tenant_id = ?", tenantID)

	if filter.Search != "" {
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(clients.name) LIKE ? OR LOWER(sessions.description) LIKE ? OR LOWER(sessions.package_ref) LIKE ?",
			pattern, pattern, pattern)
	}
	for key, value := range filter.Filters {
		switch key {
		case "status":
			query = query.Where("sessions.status = ?", value)
		case "client_id":
			query = query.Where("sessions.client_id = ?", value)
		case "category":
			query = query.Where("sessions.category = ?", value)
		case "include_archived":
			if include, ok := value.(bool); ok && !include {
				query = query.Where("sessions.status <> ?", session.StatusArchived)
			}
		case "from":
			if t, ok := value.(time.Time); ok {
				query = query.Where("sessions.scheduled_at >= ?", t)
			}
		case "to":
			if t, ok := value.(time.Time); ok {
				query = query.Where("sessions.scheduled_at <= ?", t)
			}
		}
	}

	query = query.Order(sessionOrder(filter))
	if filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}

	var rows []models.SessionRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	sessions := make([]session.Session, 0, len(rows))
	for i := range rows {
		s, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, nil
}

// FindUnarchivedIDs lists every session that is not archived
func (r *GormSessionRepository) FindUnarchivedIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.SessionModel{}).
		Where("status <> ?", session.StatusArchived).
		Order("scheduled_at DESC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// Insert creates a new session row
func (r *GormSessionRepository) Insert(ctx context.Context, s *session.Session) error {
	model, err := models.SessionModelFromDomain(s)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	r.announce(ctx, changefeed.EventInsert, session.FullRowChange(s))
	return nil
}

// Update writes the given fields of s. The write does not check the version
// it read: concurrent writers resolve as last-write-wins.
func (r *GormSessionRepository) Update(ctx context.Context, s *session.Session, fields []session.Field) error {
	if len(fields) == 0 {
		return nil
	}

	model, err := models.SessionModelFromDomain(s)
	if err != nil {
		return err
	}
	now := time.Now()
	cols := model.UpdateColumns(fields)
	cols["updated_at"] = now
	cols["version"] = gorm.Expr("version + 1")

	result := r.db.WithContext(ctx).
		Model(&models.SessionModel{}).
		Where("id = ?", s.ID).
		Updates(cols)
	if result.Error != nil {
		return fmt.Errorf("update session %s: %w", s.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}

	s.IncrementVersion()
	s.UpdatedAt = now
	r.announce(ctx, changefeed.EventUpdate, session.NarrowRowChange(s, fields))
	return nil
}

// Delete removes a session, optionally purging its transaction log rows
func (r *GormSessionRepository) Delete(ctx context.Context, id uuid.UUID, purgePayments bool) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if purgePayments {
			if err := tx.Where("session_id = ?", id).Delete(&models.TransactionModel{}).Error; err != nil {
				return fmt.Errorf("purge transactions of session %s: %w", id, err)
			}
		}
		result := tx.Where("id = ?", id).Delete(&models.SessionModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.announce(ctx, changefeed.EventDelete, session.RowChange{ID: id})
	return nil
}

// announce publishes a committed change. The write already happened, so a
// failed publish is only logged.
func (r *GormSessionRepository) announce(ctx context.Context, eventType changefeed.EventType, change session.RowChange) {
	if r.publisher == nil {
		return
	}
	n, err := changefeed.NewNotification(changefeed.TableSessions, eventType, change)
	if err == nil {
		err = r.publisher.Publish(ctx, n)
	}
	if err != nil {
		r.logger.Error("failed to announce session change",
			zap.String("session_id", change.ID.String()),
			zap.String("type", string(eventType)),
			zap.Error(err),
		)
	}
}

// Ensure GormSessionRepository implements session.Repository
var _ session.Repository = (*GormSessionRepository)(nil)
