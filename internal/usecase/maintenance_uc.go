package usecase

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"license-activation-service/internal/domain/model"
	"license-activation-service/internal/domain/ports/adapter"
	"license-activation-service/internal/domain/ports/repository"
	"license-activation-service/internal/infra/logging"
)

var _ Maintenance = (*maintenanceUC)(nil)

// Maintenance holds the bulk jobs run by the scheduler.
type Maintenance interface {
	// ExpireOverdue applies the same active->expired transition the engine
	// applies lazily, for every overdue credential at once.
	ExpireOverdue(ctx context.Context) (int, error)
	PurgeAttempts(ctx context.Context, retention time.Duration) (int64, error)
}

type maintenanceUC struct {
	credentials repository.CredentialRepository
	attempts    AttemptLogger
	tm          repository.TransactionManager
	events      adapter.EventPublisher
	log         *zerolog.Logger
	now         func() time.Time
}

func NewMaintenance(credentials repository.CredentialRepository, attempts AttemptLogger, tm repository.TransactionManager, events adapter.EventPublisher, logger *zerolog.Logger) *maintenanceUC {
	l := logger.With().Str("component", "Maintenance").Logger()
	return &maintenanceUC{credentials: credentials, attempts: attempts, tm: tm, events: events, log: &l, now: time.Now}
}

func (m *maintenanceUC) ExpireOverdue(ctx context.Context) (int, error) {
	defer logging.TraceDuration(m.log, "Maintenance.ExpireOverdue")()

	now := m.now().UTC()
	var ids []string
	err := m.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		ids, err = m.credentials.ExpireOverdue(ctx, tx, now)
		return err
	})
	if err != nil {
		return 0, err
	}
	if m.events != nil {
		for _, id := range ids {
			m.events.Publish(ctx, model.Event{
				ID:           ulid.Make().String(),
				Type:         model.EventExpired,
				CredentialID: id,
				OccurredAt:   now,
				Data:         map[string]string{"source": "sweep"},
			})
		}
	}
	return len(ids), nil
}

func (m *maintenanceUC) PurgeAttempts(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	return m.attempts.PurgeBefore(ctx, m.now().Add(-retention))
}
