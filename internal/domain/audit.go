package domain

import (
	"context"
	"time"
)

// AuditEntry records one admin corrective action: who did what to which
// session, with before/after/result snapshots. Entries are append-only.
type AuditEntry struct {
	ID             int64
	Timestamp      time.Time
	Actor          string
	Action         string
	IdempotencyKey string
	Reason         string
	BeforeJSON     string
	AfterJSON      string
	ResultJSON     string
}

type AuditLog interface {
	Append(ctx context.Context, entry *AuditEntry) error
	ListByKey(ctx context.Context, idempotencyKey string) ([]*AuditEntry, error)
}
