package repository

import (
	"context"

	"license-activation-service/internal/domain/model"
)

// RestrictionRepository stores at most one RestrictionSet per credential.
type RestrictionRepository interface {
	// FindByCredential returns domain.ErrNotFound when the credential is unrestricted.
	FindByCredential(ctx context.Context, tx Tx, credentialID string) (*model.RestrictionSet, error)
	Save(ctx context.Context, tx Tx, r *model.RestrictionSet) error
	Delete(ctx context.Context, tx Tx, credentialID string) error
}
