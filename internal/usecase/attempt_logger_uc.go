package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"license-activation-service/internal/domain"
	"license-activation-service/internal/domain/model"
	"license-activation-service/internal/domain/ports/repository"
	"license-activation-service/internal/infra/security"
)

var _ AttemptLogger = (*attemptLoggerUC)(nil)

// AttemptLogger records validation attempts and answers abuse queries. It
// never blocks a caller itself.
type AttemptLogger interface {
	LogSuccess(ctx context.Context, key, site, identifier string, class model.EndpointClass) error
	LogFailure(ctx context.Context, key, site, identifier string, class model.EndpointClass, kind domain.ErrorKind, message string) error
	IsSuspicious(ctx context.Context, identifier string) (bool, error)
	SuspiciousIdentifiers(ctx context.Context, since time.Time, threshold int) ([]model.SuspiciousIdentifier, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type attemptLoggerUC struct {
	attempts  repository.AttemptRepository
	window    time.Duration
	threshold int
	log       *zerolog.Logger
	now       func() time.Time
}

func NewAttemptLogger(attempts repository.AttemptRepository, window time.Duration, threshold int, logger *zerolog.Logger) *attemptLoggerUC {
	if window <= 0 {
		window = time.Hour
	}
	if threshold <= 0 {
		threshold = 20
	}
	l := logger.With().Str("component", "AttemptLogger").Logger()
	return &attemptLoggerUC{attempts: attempts, window: window, threshold: threshold, log: &l, now: time.Now}
}

func (a *attemptLoggerUC) LogSuccess(ctx context.Context, key, site, identifier string, class model.EndpointClass) error {
	return a.append(ctx, key, site, identifier, class, true, "", "")
}

func (a *attemptLoggerUC) LogFailure(ctx context.Context, key, site, identifier string, class model.EndpointClass, kind domain.ErrorKind, message string) error {
	return a.append(ctx, key, site, identifier, class, false, string(kind), message)
}

func (a *attemptLoggerUC) append(ctx context.Context, key, site, identifier string, class model.EndpointClass, ok bool, kind, msg string) error {
	rec := &model.AttemptRecord{
		ID:            ulid.Make().String(),
		MaskedKey:     security.MaskKey(key),
		Site:          strings.ToValidUTF8(site, "\uFFFD"),
		Identifier:    strings.ToValidUTF8(identifier, "\uFFFD"),
		EndpointClass: class,
		Success:       ok,
		ErrorKind:     kind,
		Message:       strings.ToValidUTF8(msg, "\uFFFD"),
		CreatedAt:     a.now().UTC(),
	}
	if err := a.attempts.Append(ctx, repository.NoTX, rec); err != nil {
		a.log.Warn().Err(err).Str("masked_key", rec.MaskedKey).Str("endpoint", string(class)).Msg("attempt not recorded")
		return err
	}
	return nil
}

// IsSuspicious reports whether identifier reached the failure threshold within
// the trailing window.
func (a *attemptLoggerUC) IsSuspicious(ctx context.Context, identifier string) (bool, error) {
	n, err := a.attempts.CountFailuresSince(ctx, repository.NoTX, identifier, a.now().Add(-a.window))
	if err != nil {
		return false, err
	}
	return n >= a.threshold, nil
}

func (a *attemptLoggerUC) SuspiciousIdentifiers(ctx context.Context, since time.Time, threshold int) ([]model.SuspiciousIdentifier, error) {
	if threshold <= 0 {
		threshold = a.threshold
	}
	return a.attempts.SuspiciousSince(ctx, repository.NoTX, since, threshold)
}

func (a *attemptLoggerUC) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return a.attempts.DeleteBefore(ctx, repository.NoTX, cutoff)
}
