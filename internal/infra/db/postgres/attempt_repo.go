package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"license-activation-service/internal/domain/model"
	"license-activation-service/internal/domain/ports/repository"
)

var _ repository.AttemptRepository = (*attemptRepo)(nil)

type attemptRepo struct {
	pool *pgxpool.Pool
}

func NewAttemptRepo(pool *pgxpool.Pool) *attemptRepo {
	return &attemptRepo{pool: pool}
}

func (r *attemptRepo) Append(ctx context.Context, tx repository.Tx, rec *model.AttemptRecord) error {
	const q = `
INSERT INTO validation_attempts (id, masked_key, site, identifier, endpoint_class, success, error_kind, message, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9);`
	_, err := execSQL(ctx, r.pool, tx, q, rec.ID, rec.MaskedKey, rec.Site, rec.Identifier,
		string(rec.EndpointClass), rec.Success, rec.ErrorKind, rec.Message, rec.CreatedAt)
	return err
}

func (r *attemptRepo) CountFailuresSince(ctx context.Context, tx repository.Tx, identifier string, since time.Time) (int, error) {
	const q = `
SELECT COUNT(*)
  FROM validation_attempts
 WHERE identifier=$1 AND NOT success AND created_at >= $2;`
	row, err := pickRow(ctx, r.pool, tx, q, identifier, since)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, scanErr(err)
	}
	return n, nil
}

func (r *attemptRepo) SuspiciousSince(ctx context.Context, tx repository.Tx, since time.Time, threshold int) ([]model.SuspiciousIdentifier, error) {
	const q = `
SELECT identifier, COUNT(*) AS failures, MAX(created_at) AS last_seen
  FROM validation_attempts
 WHERE NOT success AND created_at >= $1
 GROUP BY identifier
HAVING COUNT(*) >= $2
 ORDER BY failures DESC, identifier ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, since, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SuspiciousIdentifier
	for rows.Next() {
		var s model.SuspiciousIdentifier
		if err := rows.Scan(&s.Identifier, &s.Failures, &s.LastSeen); err != nil {
			return nil, scanErr(err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err)
	}
	return out, nil
}

func (r *attemptRepo) DeleteBefore(ctx context.Context, tx repository.Tx, cutoff time.Time) (int64, error) {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM validation_attempts WHERE created_at < $1;`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
