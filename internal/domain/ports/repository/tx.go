package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an infra-defined transaction handle (pgx.Tx for Postgres). Repositories
// accept nil and fall back to the pool.
type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside one storage transaction. fn's error rolls
// back; a nil return commits. Activation ceiling checks and the row write they
// guard must share one WithTx call.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
