package repository

import (
	"context"
	"time"

	"github.com/voltgate/ev-session-service/internal/domain"
	"github.com/voltgate/ev-session-service/internal/infrastructure/postgres/mappers"
	"github.com/voltgate/ev-session-service/internal/infrastructure/postgres/models"
	"gorm.io/gorm"
)

type DefaultAuditLog struct {
	DB *gorm.DB
}

func NewDefaultAuditLog(db *gorm.DB) *DefaultAuditLog {
	return &DefaultAuditLog{DB: db}
}

func (r *DefaultAuditLog) Append(ctx context.Context, entry *domain.AuditEntry) error {
	model := mappers.ToGORMAuditEntry(entry)
	if model.Timestamp.IsZero() {
		model.Timestamp = time.Now()
	}
	if err := r.DB.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	entry.ID = model.ID
	entry.Timestamp = model.Timestamp
	return nil
}

func (r *DefaultAuditLog) ListByKey(ctx context.Context, key string) ([]*domain.AuditEntry, error) {
	var auditModels []models.AuditLogModel
	err := r.DB.WithContext(ctx).
		Where("idempotency_key = ?", key).
		Order("timestamp ASC").
		Find(&auditModels).Error
	if err != nil {
		return nil, err
	}

	entries := make([]*domain.AuditEntry, 0, len(auditModels))
	for i := range auditModels {
		entries = append(entries, mappers.ToDomainAuditEntry(&auditModels[i]))
	}
	return entries, nil
}
