package repository

import (
	"context"
	"errors"
	"time"

	"github.com/voltgate/ev-session-service/internal/domain"
	"github.com/voltgate/ev-session-service/internal/infrastructure/postgres/mappers"
	"github.com/voltgate/ev-session-service/internal/infrastructure/postgres/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DefaultSessionRepository struct {
	DB *gorm.DB
}

func NewDefaultSessionRepository(db *gorm.DB) *DefaultSessionRepository {
	return &DefaultSessionRepository{DB: db}
}

// Upsert inserts the session or refreshes it in place. The state column is
// guarded so a replayed request can never downgrade a session that already
// reached AUTHORIZED or CAPTURED.
func (r *DefaultSessionRepository) Upsert(ctx context.Context, session *domain.Session) error {
	model := mappers.ToGORMSession(session)
	now := time.Now()
	if model.CreatedAt.IsZero() {
		model.CreatedAt = now
	}
	model.UpdatedAt = now

	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "idempotency_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"charger_id":          model.ChargerID,
			"booking_id":          model.BookingID,
			"session_token":       model.SessionToken,
			"authorized_amount":   model.AuthorizedAmount,
			"gateway_environment": model.GatewayEnvironment,
			"updated_at":          now,
			"state": gorm.Expr(
				"CASE WHEN session_models.state IN ('AUTHORIZED','CAPTURED') THEN session_models.state ELSE excluded.state END",
			),
		}),
	}).Create(model).Error
}

func (r *DefaultSessionRepository) MarkAuthorized(ctx context.Context, key, paymentID string, amountCents int64, card domain.CardMetadata) error {
	return r.updateByKey(ctx, key, map[string]interface{}{
		"state":             domain.StateAuthorized,
		"payment_id":        paymentID,
		"authorized_amount": amountCents,
		"card_customer_id":  card.CustomerID,
		"card_id":           card.CardID,
		"card_brand":        card.Brand,
		"card_last4":        card.Last4,
		"card_exp_month":    card.ExpMonth,
		"card_exp_year":     card.ExpYear,
		"last_error":        "",
		"updated_at":        time.Now(),
	})
}

func (r *DefaultSessionRepository) MarkCaptured(ctx context.Context, key, capturePaymentID string, amountCents int64) error {
	return r.updateByKey(ctx, key, map[string]interface{}{
		"state":              domain.StateCaptured,
		"capture_payment_id": capturePaymentID,
		"captured_amount":    amountCents,
		"last_error":         "",
		"updated_at":         time.Now(),
	})
}

func (r *DefaultSessionRepository) MarkVoided(ctx context.Context, key, paymentID string) error {
	updates := map[string]interface{}{
		"state":           domain.StateVoided,
		"captured_amount": int64(0),
		"last_error":      "",
		"updated_at":      time.Now(),
	}
	if paymentID != "" {
		updates["payment_id"] = paymentID
	}
	return r.updateByKey(ctx, key, updates)
}

func (r *DefaultSessionRepository) MarkCanceled(ctx context.Context, key, paymentID string) error {
	updates := map[string]interface{}{
		"state":           domain.StateCanceled,
		"captured_amount": int64(0),
		"updated_at":      time.Now(),
	}
	if paymentID != "" {
		updates["payment_id"] = paymentID
	}
	return r.updateByKey(ctx, key, updates)
}

func (r *DefaultSessionRepository) MarkRefunded(ctx context.Context, key, refundID string, amountCents int64) error {
	return r.updateByKey(ctx, key, map[string]interface{}{
		"state":              domain.StateRefunded,
		"capture_payment_id": refundID,
		"captured_amount":    amountCents,
		"updated_at":         time.Now(),
	})
}

func (r *DefaultSessionRepository) MarkFailed(ctx context.Context, key, errText string) error {
	return r.updateByKey(ctx, key, map[string]interface{}{
		"state":      domain.StateFailed,
		"last_error": errText,
		"updated_at": time.Now(),
	})
}

func (r *DefaultSessionRepository) AddNote(ctx context.Context, key, note string) error {
	return r.updateByKey(ctx, key, map[string]interface{}{
		"note":       note,
		"updated_at": time.Now(),
	})
}

func (r *DefaultSessionRepository) SoftDelete(ctx context.Context, key string) error {
	return r.updateByKey(ctx, key, map[string]interface{}{
		"is_deleted": true,
		"updated_at": time.Now(),
	})
}

func (r *DefaultSessionRepository) updateByKey(ctx context.Context, key string, updates map[string]interface{}) error {
	result := r.DB.WithContext(ctx).
		Model(&models.SessionModel{}).
		Where("idempotency_key = ?", key).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (r *DefaultSessionRepository) GetByKey(ctx context.Context, key string) (*domain.Session, error) {
	var model models.SessionModel
	err := r.DB.WithContext(ctx).First(&model, "idempotency_key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	return mappers.ToDomainSession(&model), nil
}

func (r *DefaultSessionRepository) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	var model models.SessionModel
	err := r.DB.WithContext(ctx).First(&model, "session_token = ? AND is_deleted = false", token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, err
	}
	return mappers.ToDomainSession(&model), nil
}

// GetByBookingID returns the most recently touched session for a booking.
// Used to recover a lost one-time token after a portal page reload.
func (r *DefaultSessionRepository) GetByBookingID(ctx context.Context, bookingID string) (*domain.Session, error) {
	var model models.SessionModel
	err := r.DB.WithContext(ctx).
		Where("booking_id = ? AND is_deleted = false", bookingID).
		Order("updated_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	return mappers.ToDomainSession(&model), nil
}

func (r *DefaultSessionRepository) List(ctx context.Context, filters domain.SessionFilters, limit, offset int) ([]*domain.Session, error) {
	query := r.DB.WithContext(ctx).Model(&models.SessionModel{})

	if filters.State != "" {
		query = query.Where("state = ?", filters.State)
	}
	if !filters.IncludeDeleted {
		query = query.Where("is_deleted = false")
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var sessionModels []models.SessionModel
	if err := query.Order("updated_at DESC").Find(&sessionModels).Error; err != nil {
		return nil, err
	}

	sessions := make([]*domain.Session, 0, len(sessionModels))
	for i := range sessionModels {
		sessions = append(sessions, mappers.ToDomainSession(&sessionModels[i]))
	}
	return sessions, nil
}
