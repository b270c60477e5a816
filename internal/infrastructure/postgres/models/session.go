package models

import (
	"time"

	"github.com/voltgate/ev-session-service/internal/domain"
)

type SessionModel struct {
	IdempotencyKey      string              `gorm:"primaryKey"`
	ChargerID           string              `gorm:"index:idx_charger"`
	BookingID           string              `gorm:"index:idx_booking"`
	SessionToken        string              `gorm:"index:idx_token"`
	State               domain.SessionState `gorm:"index:idx_state"`
	AuthorizedAmount    int64
	CapturedAmount      *int64
	PaymentID           string
	CapturePaymentID    string
	CardCustomerID      string
	CardID              string
	CardBrand           string
	CardLast4           string
	CardExpMonth        int
	CardExpYear         int
	GatewayEnvironment  string
	LastError           string
	Note                string
	IsDeleted           bool `gorm:"index:idx_deleted"`
	CreatedAt           time.Time
	UpdatedAt           time.Time `gorm:"index:idx_updated_at"`
}

type AuditLogModel struct {
	ID             int64 `gorm:"primaryKey;autoIncrement"`
	Timestamp      time.Time
	Actor          string
	Action         string
	IdempotencyKey string `gorm:"index:idx_audit_key"`
	Reason         string
	BeforeJSON     string `gorm:"type:jsonb"`
	AfterJSON      string `gorm:"type:jsonb"`
	ResultJSON     string `gorm:"type:jsonb"`
}
