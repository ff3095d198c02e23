package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"license-activation-service/internal/domain"
	"license-activation-service/internal/domain/model"
	"license-activation-service/internal/domain/ports/repository"
	"license-activation-service/internal/infra/logging"
	"license-activation-service/internal/infra/metrics"
)

var _ ActivationTracker = (*activationTrackerUC)(nil)

// ActivationTracker owns the (credential, site) bindings and the ceiling.
type ActivationTracker interface {
	Activate(ctx context.Context, c *model.Credential, req model.ActivationRequest) (*model.ActivationOutcome, error)
	// Deactivate returns nil, nil when the site holds no active slot.
	Deactivate(ctx context.Context, credentialID, siteHash string) (*model.Activation, error)
	CountActive(ctx context.Context, credentialID string) (int, error)
	ListActive(ctx context.Context, credentialID string) ([]*model.Activation, error)
}

type activationTrackerUC struct {
	activations repository.ActivationRepository
	tm          repository.TransactionManager
	log         *zerolog.Logger
	now         func() time.Time
}

func NewActivationTracker(activations repository.ActivationRepository, tm repository.TransactionManager, logger *zerolog.Logger) *activationTrackerUC {
	l := logger.With().Str("component", "ActivationTracker").Logger()
	return &activationTrackerUC{activations: activations, tm: tm, log: &l, now: time.Now}
}

// Activate binds c to the requested site. The per-credential lock, the count
// and the write share one transaction, so concurrent callers that both see
// room below the ceiling are linearized and only one of them wins.
func (t *activationTrackerUC) Activate(ctx context.Context, c *model.Credential, req model.ActivationRequest) (*model.ActivationOutcome, error) {
	defer logging.TraceDuration(t.log, "ActivationTracker.Activate")()

	var out *model.ActivationOutcome
	err := t.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		if err := t.activations.LockCredential(ctx, tx, c.ID); err != nil {
			return err
		}
		now := t.now().UTC()

		existing, err := t.activations.FindBySite(ctx, tx, c.ID, req.SiteHash)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if existing != nil && existing.Active {
			refresh(existing, req, now)
			if err := t.activations.Update(ctx, tx, existing); err != nil {
				return err
			}
			out = &model.ActivationOutcome{Activation: existing, Reused: true}
			return nil
		}

		n, err := t.activations.CountActive(ctx, tx, c.ID)
		if err != nil {
			return err
		}
		if n >= c.ActivationLimit {
			return domain.NewError(domain.KindActivationLimitReached,
				fmt.Sprintf("activation limit of %d site(s) reached", c.ActivationLimit))
		}

		if existing != nil {
			refresh(existing, req, now)
			existing.Active = true
			existing.ActivatedAt = now
			existing.DeactivatedAt = nil
			if err := t.activations.Update(ctx, tx, existing); err != nil {
				return err
			}
			out = &model.ActivationOutcome{Activation: existing, Revived: true}
			return nil
		}

		a := &model.Activation{
			ID:           uuid.NewString(),
			CredentialID: c.ID,
			SiteHash:     req.SiteHash,
			Active:       true,
			ActivatedAt:  now,
		}
		refresh(a, req, now)
		if err := t.activations.Insert(ctx, tx, a); err != nil {
			return err
		}
		out = &model.ActivationOutcome{Activation: a}
		return nil
	})
	if err != nil {
		metrics.IncActivation(string(domain.KindOf(err)))
		return nil, err
	}
	switch {
	case out.Reused:
		metrics.IncActivation("reused")
	case out.Revived:
		metrics.IncActivation("revived")
	default:
		metrics.IncActivation("created")
	}
	return out, nil
}

func refresh(a *model.Activation, req model.ActivationRequest, now time.Time) {
	a.SiteURL = req.SiteURL
	a.LastSeenAt = now
	if req.SiteName != "" {
		a.SiteName = req.SiteName
	}
	if req.ClientVersion != "" {
		a.ClientVersion = req.ClientVersion
	}
	a.LastError = req.LastError
}

func (t *activationTrackerUC) Deactivate(ctx context.Context, credentialID, siteHash string) (*model.Activation, error) {
	var out *model.Activation
	err := t.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		if err := t.activations.LockCredential(ctx, tx, credentialID); err != nil {
			return err
		}
		a, err := t.activations.FindBySite(ctx, tx, credentialID, siteHash)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !a.Active {
			return nil
		}
		now := t.now().UTC()
		a.Active = false
		a.DeactivatedAt = &now
		if err := t.activations.Update(ctx, tx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out != nil {
		metrics.IncActivation("deactivated")
	}
	return out, nil
}

func (t *activationTrackerUC) CountActive(ctx context.Context, credentialID string) (int, error) {
	return t.activations.CountActive(ctx, repository.NoTX, credentialID)
}

func (t *activationTrackerUC) ListActive(ctx context.Context, credentialID string) ([]*model.Activation, error) {
	return t.activations.ListActive(ctx, repository.NoTX, credentialID)
}
