package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"license-activation-service/internal/domain/model"
	"license-activation-service/internal/domain/ports/repository"
	"license-activation-service/internal/infra/metrics"
)

var _ RateLimiter = (*rateLimiterUC)(nil)

// RateLimiter applies fixed-window budgets per (endpoint class, identifier).
type RateLimiter interface {
	RecordAndCheck(ctx context.Context, class model.EndpointClass, identifier string) (model.RateDecision, error)
	Policy(class model.EndpointClass) model.RatePolicy
}

type rateLimiterUC struct {
	store    repository.RateWindowStore
	policies map[model.EndpointClass]model.RatePolicy
	log      *zerolog.Logger
}

// NewRateLimiter copies policies; classes without a policy fall back to
// EndpointDefault, and a missing default gets 60 requests per minute.
func NewRateLimiter(store repository.RateWindowStore, policies map[model.EndpointClass]model.RatePolicy, logger *zerolog.Logger) *rateLimiterUC {
	p := make(map[model.EndpointClass]model.RatePolicy, len(policies)+1)
	for class, pol := range policies {
		if pol.MaxRequests > 0 && pol.Window > 0 {
			p[class] = pol
		}
	}
	if _, ok := p[model.EndpointDefault]; !ok {
		p[model.EndpointDefault] = model.RatePolicy{MaxRequests: 60, Window: time.Minute}
	}
	l := logger.With().Str("component", "RateLimiter").Logger()
	return &rateLimiterUC{store: store, policies: p, log: &l}
}

func (r *rateLimiterUC) Policy(class model.EndpointClass) model.RatePolicy {
	if p, ok := r.policies[class]; ok {
		return p
	}
	return r.policies[model.EndpointDefault]
}

func rateKey(class model.EndpointClass, identifier string) string {
	return fmt.Sprintf("rate_limit:%s:%s", class, identifier)
}

// RecordAndCheck counts the request against its window. The decision is
// made before the increment, so the MaxRequests-th call is the last admitted.
func (r *rateLimiterUC) RecordAndCheck(ctx context.Context, class model.EndpointClass, identifier string) (model.RateDecision, error) {
	pol := r.Policy(class)
	if identifier == "" {
		identifier = "unknown"
	}
	allowed, w, err := r.store.Hit(ctx, rateKey(class, identifier), pol.MaxRequests, pol.Window)
	if err != nil {
		r.log.Error().Err(err).Str("endpoint", string(class)).Msg("rate window unavailable")
		return model.RateDecision{Limit: pol.MaxRequests, ResetAt: time.Now().Add(pol.Window)}, err
	}
	remaining := pol.MaxRequests - w.Count
	if remaining < 0 {
		remaining = 0
	}
	metrics.IncRateDecision(string(class), allowed)
	if !allowed {
		r.log.Debug().Str("endpoint", string(class)).Str("identifier", identifier).Time("reset_at", w.ResetAt).Msg("rate limit exceeded")
	}
	return model.RateDecision{
		Allowed:   allowed,
		Limit:     pol.MaxRequests,
		Remaining: remaining,
		ResetAt:   w.ResetAt,
	}, nil
}
