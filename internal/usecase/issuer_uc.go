package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"license-activation-service/internal/domain"
	"license-activation-service/internal/domain/model"
	"license-activation-service/internal/domain/ports/adapter"
	"license-activation-service/internal/domain/ports/repository"
	"license-activation-service/internal/infra/security"
)

var _ Issuer = (*issuerUC)(nil)

// Issuer creates credentials and performs the explicit status changes that
// validation traffic never makes: reactivation, renewal, suspension, revocation.
type Issuer interface {
	Issue(ctx context.Context, in IssueInput) (*Issued, error)
	Reactivate(ctx context.Context, credentialID string) (*model.Credential, error)
	Renew(ctx context.Context, credentialID string, expiresAt time.Time) (*model.Credential, error)
	Suspend(ctx context.Context, credentialID string) (*model.Credential, error)
	Revoke(ctx context.Context, credentialID string) (*model.Credential, error)
	RevealKey(ctx context.Context, credentialID string) (string, error)
}

type IssueInput struct {
	ProductID       string
	CustomerID      string
	Tier            model.Tier
	ActivationLimit int
	ExpiresAt       *time.Time
	Restrictions    *model.RestrictionSet
}

// Issued carries the raw key; it is returned once and only its hash and
// sealed form are stored.
type Issued struct {
	Credential *model.Credential
	Key        string
}

type issuerUC struct {
	credentials  repository.CredentialRepository
	restrictions repository.RestrictionRepository
	tm           repository.TransactionManager
	codec        *security.KeyCodec
	sealer       *security.KeySealer
	events       adapter.EventPublisher
	log          *zerolog.Logger
	now          func() time.Time
}

func NewIssuer(
	credentials repository.CredentialRepository,
	restrictions repository.RestrictionRepository,
	tm repository.TransactionManager,
	codec *security.KeyCodec,
	sealer *security.KeySealer,
	events adapter.EventPublisher,
	logger *zerolog.Logger,
) *issuerUC {
	l := logger.With().Str("component", "Issuer").Logger()
	return &issuerUC{
		credentials:  credentials,
		restrictions: restrictions,
		tm:           tm,
		codec:        codec,
		sealer:       sealer,
		events:       events,
		log:          &l,
		now:          time.Now,
	}
}

const maxIssueAttempts = 3

func (u *issuerUC) Issue(ctx context.Context, in IssueInput) (*Issued, error) {
	for attempt := 1; ; attempt++ {
		out, err := u.issueOnce(ctx, in)
		if errors.Is(err, domain.ErrAlreadyExists) && attempt < maxIssueAttempts {
			u.log.Warn().Int("attempt", attempt).Msg("generated key collided, retrying")
			continue
		}
		return out, err
	}
}

func (u *issuerUC) issueOnce(ctx context.Context, in IssueInput) (*Issued, error) {
	key, err := u.codec.Generate()
	if err != nil {
		return nil, err
	}
	c, err := model.NewCredential(uuid.NewString(), u.codec.Hash(key), in.ProductID, in.CustomerID, in.Tier, in.ActivationLimit, in.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if u.sealer != nil {
		if c.KeySealed, err = u.sealer.Seal(c.ID, key); err != nil {
			return nil, err
		}
	}
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.credentials.Create(ctx, tx, c); err != nil {
			return err
		}
		if !in.Restrictions.IsEmpty() {
			rs := *in.Restrictions
			rs.CredentialID = c.ID
			return u.restrictions.Save(ctx, tx, &rs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.log.Info().Str("credential_id", c.ID).Str("tier", string(c.Tier)).Int("limit", c.ActivationLimit).Str("key", security.MaskKey(key)).Msg("credential issued")
	return &Issued{Credential: c, Key: key}, nil
}

// Reactivate returns a suspended (or expired but not yet overdue) credential
// to active. An overdue credential needs Renew.
func (u *issuerUC) Reactivate(ctx context.Context, credentialID string) (*model.Credential, error) {
	return u.transition(ctx, credentialID, model.CredentialStatusActive, nil, func(c *model.Credential) error {
		if c.ExpiresAt != nil && c.ExpiresAt.Before(u.now()) {
			return domain.ErrInvalidTransition
		}
		return nil
	})
}

func (u *issuerUC) Renew(ctx context.Context, credentialID string, expiresAt time.Time) (*model.Credential, error) {
	if !expiresAt.After(u.now()) {
		return nil, domain.ErrInvalidArgument
	}
	return u.transition(ctx, credentialID, model.CredentialStatusActive, &expiresAt, func(c *model.Credential) error {
		if c.Status == model.CredentialStatusSuspended {
			return domain.ErrInvalidTransition
		}
		return nil
	})
}

func (u *issuerUC) Suspend(ctx context.Context, credentialID string) (*model.Credential, error) {
	return u.transition(ctx, credentialID, model.CredentialStatusSuspended, nil, nil)
}

func (u *issuerUC) Revoke(ctx context.Context, credentialID string) (*model.Credential, error) {
	return u.transition(ctx, credentialID, model.CredentialStatusRevoked, nil, nil)
}

// transition applies a guarded status change. The write is conditional on the
// status read, so a concurrent change makes this call fail instead of
// overwriting it.
func (u *issuerUC) transition(ctx context.Context, id string, to model.CredentialStatus, expiresAt *time.Time, guard func(*model.Credential) error) (*model.Credential, error) {
	c, err := u.credentials.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return nil, err
	}
	if err := c.CanTransition(to); err != nil {
		return nil, err
	}
	if guard != nil {
		if err := guard(c); err != nil {
			return nil, err
		}
	}
	from := c.Status
	changed, err := u.credentials.TransitionStatus(ctx, repository.NoTX, id, from, to, expiresAt)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, domain.ErrInvalidTransition
	}
	c.Status = to
	if expiresAt != nil {
		c.ExpiresAt = expiresAt
	}
	u.log.Info().Str("credential_id", id).Str("from", string(from)).Str("to", string(to)).Msg("credential status changed")
	if u.events != nil {
		u.events.Publish(ctx, model.Event{
			ID:           ulid.Make().String(),
			Type:         model.EventStatusChanged,
			CredentialID: id,
			OccurredAt:   u.now().UTC(),
			Data:         map[string]string{"from": string(from), "to": string(to)},
		})
	}
	return c, nil
}

func (u *issuerUC) RevealKey(ctx context.Context, credentialID string) (string, error) {
	if u.sealer == nil {
		return "", domain.ErrInvalidArgument
	}
	c, err := u.credentials.FindByID(ctx, repository.NoTX, credentialID)
	if err != nil {
		return "", err
	}
	return u.sealer.Open(c.ID, c.KeySealed)
}
