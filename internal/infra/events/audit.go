package events

import (
	"context"

	"github.com/rs/zerolog"

	"license-activation-service/internal/domain/model"
	"license-activation-service/internal/domain/ports/adapter"
	"license-activation-service/internal/infra/logging"
)

var _ adapter.EventSubscriber = (*AuditSubscriber)(nil)

// AuditSubscriber writes every event as one structured log line.
type AuditSubscriber struct {
	log *zerolog.Logger
}

func NewAuditSubscriber(logger *zerolog.Logger) *AuditSubscriber {
	l := logger.With().Str("component", "audit").Logger()
	return &AuditSubscriber{log: &l}
}

func (a *AuditSubscriber) Name() string { return "audit" }

func (a *AuditSubscriber) Handle(ctx context.Context, ev model.Event) error {
	e := logging.With(ctx, a.log).Info().
		Str("event_id", ev.ID).
		Str("event", string(ev.Type)).
		Str("credential_id", ev.CredentialID).
		Time("occurred_at", ev.OccurredAt)
	if ev.Site != "" {
		e = e.Str("site", ev.Site)
	}
	for k, v := range ev.Data {
		e = e.Str(k, v)
	}
	e.Msg("license event")
	return nil
}
