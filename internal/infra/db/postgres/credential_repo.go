package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"license-activation-service/internal/domain/model"
	"license-activation-service/internal/domain/ports/repository"
)

var _ repository.CredentialRepository = (*credentialRepo)(nil)

type credentialRepo struct {
	pool *pgxpool.Pool
}

func NewCredentialRepo(pool *pgxpool.Pool) *credentialRepo {
	return &credentialRepo{pool: pool}
}

const credentialCols = `id, key_hash, key_sealed, product_id, tier, status, activation_limit, expires_at, customer_id, created_at, updated_at`

func (r *credentialRepo) Create(ctx context.Context, tx repository.Tx, c *model.Credential) error {
	const q = `
INSERT INTO credentials (` + credentialCols + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11);`
	_, err := execSQL(ctx, r.pool, tx, q,
		c.ID, c.KeyHash, c.KeySealed, c.ProductID, string(c.Tier), string(c.Status),
		c.ActivationLimit, c.ExpiresAt, c.CustomerID, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r *credentialRepo) FindByKeyHash(ctx context.Context, tx repository.Tx, keyHash string) (*model.Credential, error) {
	const q = `SELECT ` + credentialCols + ` FROM credentials WHERE key_hash=$1;`
	return r.queryOne(ctx, tx, q, keyHash)
}

func (r *credentialRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Credential, error) {
	const q = `SELECT ` + credentialCols + ` FROM credentials WHERE id=$1;`
	return r.queryOne(ctx, tx, q, id)
}

func (r *credentialRepo) TransitionStatus(ctx context.Context, tx repository.Tx, id string, from, to model.CredentialStatus, expiresAt *time.Time) (bool, error) {
	const q = `
UPDATE credentials
   SET status=$3,
       expires_at=COALESCE($4, expires_at),
       updated_at=NOW()
 WHERE id=$1 AND status=$2;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, string(from), string(to), expiresAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *credentialRepo) ExpireIfOverdue(ctx context.Context, tx repository.Tx, id string, now time.Time) (bool, error) {
	const q = `
UPDATE credentials
   SET status='expired', updated_at=$2
 WHERE id=$1 AND status='active' AND expires_at IS NOT NULL AND expires_at < $2;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *credentialRepo) ExpireOverdue(ctx context.Context, tx repository.Tx, now time.Time) ([]string, error) {
	const q = `
UPDATE credentials
   SET status='expired', updated_at=$1
 WHERE status='active' AND expires_at IS NOT NULL AND expires_at < $1
RETURNING id;`
	rows, err := queryRows(ctx, r.pool, tx, q, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, scanErr(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err)
	}
	return ids, nil
}

func (r *credentialRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...any) (*model.Credential, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	c := &model.Credential{}
	var tier, status string
	if err := row.Scan(&c.ID, &c.KeyHash, &c.KeySealed, &c.ProductID, &tier, &status,
		&c.ActivationLimit, &c.ExpiresAt, &c.CustomerID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, scanErr(err)
	}
	c.Tier = model.Tier(tier)
	c.Status = model.CredentialStatus(status)
	return c, nil
}
