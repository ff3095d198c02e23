package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"license-activation-service/internal/domain/model"
	"license-activation-service/internal/domain/ports/repository"
)

var _ repository.RestrictionRepository = (*restrictionRepo)(nil)

type restrictionRepo struct {
	pool *pgxpool.Pool
}

func NewRestrictionRepo(pool *pgxpool.Pool) *restrictionRepo {
	return &restrictionRepo{pool: pool}
}

func (r *restrictionRepo) FindByCredential(ctx context.Context, tx repository.Tx, credentialID string) (*model.RestrictionSet, error) {
	const q = `
SELECT credential_id, allowed_ips, allowed_domains, hardware_id
  FROM restriction_sets
 WHERE credential_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, credentialID)
	if err != nil {
		return nil, err
	}
	rs := &model.RestrictionSet{}
	if err := row.Scan(&rs.CredentialID, &rs.AllowedIPs, &rs.AllowedDomains, &rs.HardwareID); err != nil {
		return nil, scanErr(err)
	}
	return rs, nil
}

func (r *restrictionRepo) Save(ctx context.Context, tx repository.Tx, rs *model.RestrictionSet) error {
	const q = `
INSERT INTO restriction_sets (credential_id, allowed_ips, allowed_domains, hardware_id)
VALUES ($1,$2,$3,$4)
ON CONFLICT (credential_id) DO UPDATE SET
  allowed_ips=$2, allowed_domains=$3, hardware_id=$4;`
	_, err := execSQL(ctx, r.pool, tx, q, rs.CredentialID, nonNil(rs.AllowedIPs), nonNil(rs.AllowedDomains), rs.HardwareID)
	return err
}

func (r *restrictionRepo) Delete(ctx context.Context, tx repository.Tx, credentialID string) error {
	_, err := execSQL(ctx, r.pool, tx, `DELETE FROM restriction_sets WHERE credential_id=$1;`, credentialID)
	return err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
