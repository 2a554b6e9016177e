package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/modcatalog/apiserver/internal/auth"
	"github.com/modcatalog/apiserver/internal/logging"
	"github.com/modcatalog/apiserver/types"
)

// AuditSink receives user and token lifecycle events.
type AuditSink interface {
	Record(ctx context.Context, event types.AuditEvent) error
}

// NopAuditSink drops every event.
type NopAuditSink struct{}

func (NopAuditSink) Record(context.Context, types.AuditEvent) error { return nil }

type auditor struct {
	sink  AuditSink
	clock auth.Clock
	log   logging.Logger
}

func newAuditor(d Deps) auditor {
	return auditor{sink: d.Audit, clock: d.Clock, log: d.Logger}
}

// record never fails the calling operation; delivery problems are logged.
func (a auditor) record(ctx context.Context, kind types.AuditKind, actor, subject string, detail map[string]string) {
	event := types.AuditEvent{
		ID:      uuid.NewString(),
		Kind:    kind,
		Actor:   actor,
		Subject: subject,
		Detail:  detail,
		At:      a.clock.Now().UTC(),
	}
	if err := a.sink.Record(ctx, event); err != nil {
		a.log.Warn(ctx, "failed to record audit event", "kind", kind, "subject", subject, "err", err)
	}
}
