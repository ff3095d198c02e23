package sched

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"license-activation-service/internal/infra/metrics"
	"license-activation-service/internal/usecase"
)

func ExpirySweepJob(m usecase.Maintenance, spec string) Job {
	return Job{
		Name: "expiry_sweep",
		Spec: spec,
		Run: func(ctx context.Context) (int64, error) {
			n, err := m.ExpireOverdue(ctx)
			return int64(n), err
		},
	}
}

func AttemptRetentionJob(m usecase.Maintenance, spec string, days int) Job {
	return Job{
		Name: "attempt_retention",
		Spec: spec,
		Run: func(ctx context.Context) (int64, error) {
			return m.PurgeAttempts(ctx, time.Duration(days)*24*time.Hour)
		},
	}
}

// SuspiciousCallersJob publishes the identifiers that crossed the failure
// threshold within window, for the security tooling that scrapes or tails them.
func SuspiciousCallersJob(attempts usecase.AttemptLogger, spec string, window time.Duration, threshold int, logger *zerolog.Logger) Job {
	l := logger.With().Str("component", "abuse").Logger()
	return Job{
		Name:  "suspicious_callers",
		Spec:  spec,
		Local: true,
		Run: func(ctx context.Context) (int64, error) {
			ids, err := attempts.SuspiciousIdentifiers(ctx, time.Now().UTC().Add(-window), threshold)
			if err != nil {
				return 0, err
			}
			metrics.SetSuspiciousCallers(len(ids))
			for _, s := range ids {
				l.Warn().Str("identifier", s.Identifier).Int("failures", s.Failures).Time("last_seen", s.LastSeen).Msg("suspicious caller")
			}
			return int64(len(ids)), nil
		},
	}
}

// DBPoolStatsJob exports this instance's pool gauges.
func DBPoolStatsJob(pool *pgxpool.Pool) Job {
	return Job{
		Name:    "db_pool_stats",
		Spec:    "@every 15s",
		Timeout: 5 * time.Second,
		Local:   true,
		Run: func(ctx context.Context) (int64, error) {
			st := pool.Stat()
			metrics.SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
			return 0, nil
		},
	}
}
