package repository

import (
	"context"
	"time"

	"license-activation-service/internal/domain/model"
)

// CredentialRepository is the port for license credentials.
type CredentialRepository interface {
	// Create inserts a new credential. Returns domain.ErrAlreadyExists on hash collision.
	Create(ctx context.Context, tx Tx, c *model.Credential) error
	// FindByKeyHash looks a credential up by its derived key hash.
	FindByKeyHash(ctx context.Context, tx Tx, keyHash string) (*model.Credential, error)
	FindByID(ctx context.Context, tx Tx, id string) (*model.Credential, error)
	// TransitionStatus moves a credential from one status to another only if it is
	// still in `from`. It reports whether the row changed.
	TransitionStatus(ctx context.Context, tx Tx, id string, from, to model.CredentialStatus, expiresAt *time.Time) (bool, error)
	// ExpireIfOverdue flips one credential to expired only while it is still
	// active and its stored expiry is before now. It reports whether the row changed.
	ExpireIfOverdue(ctx context.Context, tx Tx, id string, now time.Time) (bool, error)
	// ExpireOverdue flips every active credential whose expiry is before `now`
	// to expired and returns the affected ids.
	ExpireOverdue(ctx context.Context, tx Tx, now time.Time) ([]string, error)
}
