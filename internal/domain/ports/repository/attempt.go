package repository

import (
	"context"
	"time"

	"license-activation-service/internal/domain/model"
)

// AttemptRepository is an append-only sink for validation attempts.
type AttemptRepository interface {
	Append(ctx context.Context, tx Tx, rec *model.AttemptRecord) error
	CountFailuresSince(ctx context.Context, tx Tx, identifier string, since time.Time) (int, error)
	SuspiciousSince(ctx context.Context, tx Tx, since time.Time, threshold int) ([]model.SuspiciousIdentifier, error)
	// DeleteBefore is used by retention cleanup only.
	DeleteBefore(ctx context.Context, tx Tx, cutoff time.Time) (int64, error)
}
