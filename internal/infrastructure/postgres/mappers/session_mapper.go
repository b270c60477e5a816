package mappers

import (
	"github.com/voltgate/ev-session-service/internal/domain"
	"github.com/voltgate/ev-session-service/internal/infrastructure/postgres/models"
)

func ToDomainSession(model *models.SessionModel) *domain.Session {
	return &domain.Session{
		IdempotencyKey:        model.IdempotencyKey,
		ChargerID:             model.ChargerID,
		BookingID:             model.BookingID,
		SessionToken:          model.SessionToken,
		State:                 model.State,
		AuthorizedAmountCents: model.AuthorizedAmount,
		CapturedAmountCents:   model.CapturedAmount,
		PaymentID:             model.PaymentID,
		CapturePaymentID:      model.CapturePaymentID,
		Card: domain.CardMetadata{
			CustomerID: model.CardCustomerID,
			CardID:     model.CardID,
			Brand:      model.CardBrand,
			Last4:      model.CardLast4,
			ExpMonth:   model.CardExpMonth,
			ExpYear:    model.CardExpYear,
		},
		GatewayEnvironment: model.GatewayEnvironment,
		LastError:          model.LastError,
		Note:               model.Note,
		IsDeleted:          model.IsDeleted,
		CreatedAt:          model.CreatedAt,
		UpdatedAt:          model.UpdatedAt,
	}
}

func ToGORMSession(session *domain.Session) *models.SessionModel {
	return &models.SessionModel{
		IdempotencyKey:     session.IdempotencyKey,
		ChargerID:          session.ChargerID,
		BookingID:          session.BookingID,
		SessionToken:       session.SessionToken,
		State:              session.State,
		AuthorizedAmount:   session.AuthorizedAmountCents,
		CapturedAmount:     session.CapturedAmountCents,
		PaymentID:          session.PaymentID,
		CapturePaymentID:   session.CapturePaymentID,
		CardCustomerID:     session.Card.CustomerID,
		CardID:             session.Card.CardID,
		CardBrand:          session.Card.Brand,
		CardLast4:          session.Card.Last4,
		CardExpMonth:       session.Card.ExpMonth,
		CardExpYear:        session.Card.ExpYear,
		GatewayEnvironment: session.GatewayEnvironment,
		LastError:          session.LastError,
		Note:               session.Note,
		IsDeleted:          session.IsDeleted,
		CreatedAt:          session.CreatedAt,
		UpdatedAt:          session.UpdatedAt,
	}
}

func ToDomainAuditEntry(model *models.AuditLogModel) *domain.AuditEntry {
	return &domain.AuditEntry{
		ID:             model.ID,
		Timestamp:      model.Timestamp,
		Actor:          model.Actor,
		Action:         model.Action,
		IdempotencyKey: model.IdempotencyKey,
		Reason:         model.Reason,
		BeforeJSON:     model.BeforeJSON,
		AfterJSON:      model.AfterJSON,
		ResultJSON:     model.ResultJSON,
	}
}

func ToGORMAuditEntry(entry *domain.AuditEntry) *models.AuditLogModel {
	return &models.AuditLogModel{
		ID:             entry.ID,
		Timestamp:      entry.Timestamp,
		Actor:          entry.Actor,
		Action:         entry.Action,
		IdempotencyKey: entry.IdempotencyKey,
		Reason:         entry.Reason,
		BeforeJSON:     entry.BeforeJSON,
		AfterJSON:      entry.AfterJSON,
		ResultJSON:     entry.ResultJSON,
	}
}
