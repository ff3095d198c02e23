package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"license-activation-service/internal/domain"
	"license-activation-service/internal/domain/model"
	"license-activation-service/internal/domain/ports/repository"
)

var _ repository.ActivationRepository = (*activationRepo)(nil)

type activationRepo struct {
	pool *pgxpool.Pool
}

func NewActivationRepo(pool *pgxpool.Pool) *activationRepo {
	return &activationRepo{pool: pool}
}

const activationCols = `id, credential_id, site_url, site_hash, site_name, client_version, last_error, active, activated_at, last_seen_at, deactivated_at`

// LockCredential takes a transaction-scoped advisory lock keyed by the
// credential id. It requires a real transaction; on the pool it would be
// released immediately.
func (r *activationRepo) LockCredential(ctx context.Context, tx repository.Tx, credentialID string) error {
	t, ok := tx.(pgx.Tx)
	if !ok {
		return domain.ErrInvalidExecContext
	}
	if _, err := t.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", hashToInt64(credentialID)); err != nil {
		return storageErr(err)
	}
	return nil
}

func (r *activationRepo) FindBySite(ctx context.Context, tx repository.Tx, credentialID, siteHash string) (*model.Activation, error) {
	const q = `SELECT ` + activationCols + ` FROM activations WHERE credential_id=$1 AND site_hash=$2;`
	row, err := pickRow(ctx, r.pool, tx, q, credentialID, siteHash)
	if err != nil {
		return nil, err
	}
	a, err := scanActivation(row)
	if err != nil {
		return nil, scanErr(err)
	}
	return a, nil
}

func (r *activationRepo) CountActive(ctx context.Context, tx repository.Tx, credentialID string) (int, error) {
	const q = `SELECT COUNT(*) FROM activations WHERE credential_id=$1 AND active;`
	row, err := pickRow(ctx, r.pool, tx, q, credentialID)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, scanErr(err)
	}
	return n, nil
}

func (r *activationRepo) ListActive(ctx context.Context, tx repository.Tx, credentialID string) ([]*model.Activation, error) {
	const q = `
SELECT ` + activationCols + `
  FROM activations
 WHERE credential_id=$1 AND active
 ORDER BY activated_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, credentialID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Activation
	for rows.Next() {
		a, err := scanActivation(rows)
		if err != nil {
			return nil, scanErr(err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err)
	}
	return out, nil
}

func (r *activationRepo) Insert(ctx context.Context, tx repository.Tx, a *model.Activation) error {
	const q = `
INSERT INTO activations (` + activationCols + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11);`
	_, err := execSQL(ctx, r.pool, tx, q,
		a.ID, a.CredentialID, a.SiteURL, a.SiteHash, a.SiteName, a.ClientVersion, a.LastError,
		a.Active, a.ActivatedAt, a.LastSeenAt, a.DeactivatedAt)
	return err
}

func (r *activationRepo) Update(ctx context.Context, tx repository.Tx, a *model.Activation) error {
	const q = `
UPDATE activations
   SET site_url=$2, site_name=$3, client_version=$4, last_error=$5,
       active=$6, activated_at=$7, last_seen_at=$8, deactivated_at=$9
 WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q,
		a.ID, a.SiteURL, a.SiteName, a.ClientVersion, a.LastError,
		a.Active, a.ActivatedAt, a.LastSeenAt, a.DeactivatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanActivation(row pgx.Row) (*model.Activation, error) {
	a := &model.Activation{}
	if err := row.Scan(&a.ID, &a.CredentialID, &a.SiteURL, &a.SiteHash, &a.SiteName, &a.ClientVersion,
		&a.LastError, &a.Active, &a.ActivatedAt, &a.LastSeenAt, &a.DeactivatedAt); err != nil {
		return nil, err
	}
	return a, nil
}
