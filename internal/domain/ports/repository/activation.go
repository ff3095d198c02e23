package repository

import (
	"context"

	"license-activation-service/internal/domain/model"
)

// ActivationRepository is the port for (credential, site) bindings.
//
// Mutations that depend on the active count must run inside a transaction that
// first called LockCredential, so that concurrent activations of the same
// credential are linearized.
type ActivationRepository interface {
	// LockCredential serializes writers of one credential until tx ends.
	LockCredential(ctx context.Context, tx Tx, credentialID string) error
	FindBySite(ctx context.Context, tx Tx, credentialID, siteHash string) (*model.Activation, error)
	// CountActive aggregates directly against the store.
	CountActive(ctx context.Context, tx Tx, credentialID string) (int, error)
	ListActive(ctx context.Context, tx Tx, credentialID string) ([]*model.Activation, error)
	Insert(ctx context.Context, tx Tx, a *model.Activation) error
	Update(ctx context.Context, tx Tx, a *model.Activation) error
}
