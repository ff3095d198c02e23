package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"license-activation-service/internal/domain"
	"license-activation-service/internal/domain/model"
	"license-activation-service/internal/domain/ports/adapter"
	"license-activation-service/internal/domain/ports/repository"
	"license-activation-service/internal/infra/logging"
	"license-activation-service/internal/infra/metrics"
	"license-activation-service/internal/infra/security"
)

var _ ValidationEngine = (*validationEngineUC)(nil)

// ValidationEngine runs a request through
// rate check -> format -> key lookup -> status -> restrictions -> activation -> log.
// The first failing stage short-circuits to logging and the response.
type ValidationEngine interface {
	ValidateAndActivate(ctx context.Context, in ValidateInput) (*Result, error)
	ValidateOnly(ctx context.Context, in KeyInput) (*Result, error)
	Deactivate(ctx context.Context, in DeactivateInput) (*Result, error)
	ListActivations(ctx context.Context, in KeyInput) (*Result, error)
}

// Caller is what the transport knows about the client.
type Caller struct {
	IP         string
	HardwareID string
}

type ValidateInput struct {
	Key           string `json:"license_key" validate:"required,max=128"`
	SiteURL       string `json:"site_url" validate:"required,max=2048"`
	SiteName      string `json:"site_name" validate:"max=255"`
	ClientVersion string `json:"client_version" validate:"max=64"`
	LastError     string `json:"last_error" validate:"max=2000"`
	Caller        Caller `json:"-"`
}

type DeactivateInput struct {
	Key     string `json:"license_key" validate:"required,max=128"`
	SiteURL string `json:"site_url" validate:"required,max=2048"`
	Caller  Caller `json:"-"`
}

type KeyInput struct {
	Key    string `json:"license_key" validate:"required,max=128"`
	Caller Caller `json:"-"`
}

// Result is returned for every outcome, failures included, so the transport
// can always report the rate window.
type Result struct {
	View  *model.LicenseView
	Sites []*model.Activation
	Rate  model.RateDecision
}

// Signer issues the offline token carried by a successful validation.
type Signer interface {
	Sign(c *model.Credential, site string, features []string, now time.Time) (string, error)
}

type validationEngineUC struct {
	credentials  repository.CredentialRepository
	restrictions repository.RestrictionRepository
	tracker      ActivationTracker
	limiter      RateLimiter
	attempts     AttemptLogger
	codec        *security.KeyCodec
	features     *model.FeatureTable
	signer       Signer
	events       adapter.EventPublisher
	log          *zerolog.Logger
	now          func() time.Time
}

type EngineDeps struct {
	Credentials  repository.CredentialRepository
	Restrictions repository.RestrictionRepository
	Tracker      ActivationTracker
	Limiter      RateLimiter
	Attempts     AttemptLogger
	Codec        *security.KeyCodec
	Features     *model.FeatureTable
	Signer       Signer                 // optional
	Events       adapter.EventPublisher // optional
}

func NewValidationEngine(d EngineDeps, logger *zerolog.Logger) *validationEngineUC {
	l := logger.With().Str("component", "ValidationEngine").Logger()
	if d.Features == nil {
		d.Features = model.NewFeatureTable(nil)
	}
	return &validationEngineUC{
		credentials:  d.Credentials,
		restrictions: d.Restrictions,
		tracker:      d.Tracker,
		limiter:      d.Limiter,
		attempts:     d.Attempts,
		codec:        d.Codec,
		features:     d.Features,
		signer:       d.Signer,
		events:       d.Events,
		log:          &l,
		now:          time.Now,
	}
}

// request carries per-call state through the stages.
type request struct {
	class  model.EndpointClass
	key    string
	site   string
	caller Caller
	start  time.Time
	res    *Result
}

func (e *validationEngineUC) begin(ctx context.Context, class model.EndpointClass, key, site string, caller Caller) (*request, error) {
	r := &request{class: class, key: key, site: site, caller: caller, start: time.Now(), res: &Result{}}
	dec, err := e.limiter.RecordAndCheck(ctx, class, caller.IP)
	r.res.Rate = dec
	if err != nil {
		return r, domain.WrapServerError(err, domain.MessageOf(err))
	}
	if !dec.Allowed {
		return r, domain.NewError(domain.KindRateLimitExceeded, "too many requests, retry after the window resets")
	}
	return r, nil
}

// finish logs the attempt and records metrics. Attempt-log failures never
// change the outcome.
func (e *validationEngineUC) finish(ctx context.Context, r *request, err error) (*Result, error) {
	lg := logging.With(ctx, e.log)
	if err == nil {
		_ = e.attempts.LogSuccess(ctx, r.key, r.site, r.caller.IP, r.class)
		metrics.ObserveValidation(string(r.class), "ok", true, time.Since(r.start))
		lg.Debug().Str("endpoint", string(r.class)).Str("key", security.MaskKey(r.key)).Msg("request accepted")
		return r.res, nil
	}

	kind := domain.KindOf(err)
	if kind == domain.KindServerError {
		var de *domain.Error
		if !errors.As(err, &de) {
			err = domain.WrapServerError(err, domain.MessageOf(err))
		}
		lg.Error().Err(err).Str("endpoint", string(r.class)).Msg("request failed")
	} else {
		lg.Info().Str("endpoint", string(r.class)).Str("kind", string(kind)).Str("key", security.MaskKey(r.key)).Msg("request rejected")
	}
	_ = e.attempts.LogFailure(ctx, r.key, r.site, r.caller.IP, r.class, kind, errMessage(err))
	metrics.ObserveValidation(string(r.class), string(kind), false, time.Since(r.start))
	return r.res, err
}

func errMessage(err error) string {
	var de *domain.Error
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}

// lookup checks the key shape before touching storage, then resolves the
// credential by its hash.
func (e *validationEngineUC) lookup(ctx context.Context, key string) (*model.Credential, error) {
	key = security.Canonicalize(key)
	if !security.IsValidFormat(key) {
		return nil, domain.NewError(domain.KindInvalidFormat, "license key is malformed")
	}
	hash := e.codec.Hash(key)
	c, err := e.credentials.FindByKeyHash(ctx, repository.NoTX, hash)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && !e.codec.Matches(key, c.KeyHash)) {
		return nil, domain.NewError(domain.KindInvalidKey, "license key not recognized")
	}
	if err != nil {
		return nil, domain.WrapServerError(err, domain.MessageOf(err))
	}
	return c, nil
}

// correctExpiry applies the lazy expiry transition: an active credential past
// its expiry is persisted as expired before any decision is made on it.
func (e *validationEngineUC) correctExpiry(ctx context.Context, c *model.Credential) error {
	now := e.now()
	if !c.IsOverdue(now) {
		return nil
	}
	changed, err := e.credentials.ExpireIfOverdue(ctx, repository.NoTX, c.ID, now)
	if err != nil {
		return domain.WrapServerError(err, domain.MessageOf(err))
	}
	if !changed {
		// Another writer moved it first; its status wins.
		fresh, err := e.credentials.FindByID(ctx, repository.NoTX, c.ID)
		if err != nil {
			return domain.WrapServerError(err, domain.MessageOf(err))
		}
		*c = *fresh
		if c.IsOverdue(now) {
			c.Status = model.CredentialStatusExpired
		}
		return nil
	}
	c.Status = model.CredentialStatusExpired
	metrics.IncLazyExpiry()
	logging.With(ctx, e.log).Info().Str("credential_id", c.ID).Msg("credential expired on read")
	e.publish(ctx, model.EventExpired, c.ID, "", map[string]string{"source": "lazy"})
	return nil
}

func checkStatus(c *model.Credential) error {
	switch c.Status {
	case model.CredentialStatusActive:
		return nil
	case model.CredentialStatusExpired:
		return domain.NewError(domain.KindLicenseExpired, "license has expired")
	case model.CredentialStatusSuspended:
		return domain.NewError(domain.KindLicenseSuspended, "license is suspended")
	case model.CredentialStatusRevoked:
		return domain.NewError(domain.KindLicenseRevoked, "license has been revoked")
	default:
		return domain.WrapServerError(domain.ErrInvalidTransition, "unknown license status")
	}
}

func (e *validationEngineUC) checkRestrictions(ctx context.Context, c *model.Credential, domainName string, caller Caller) error {
	rs, err := e.restrictions.FindByCredential(ctx, repository.NoTX, c.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return domain.WrapServerError(err, domain.MessageOf(err))
	}
	m := security.MatchRestrictions(model.RequestContext{IP: caller.IP, Domain: domainName, HardwareID: caller.HardwareID}, rs)
	if !m.Valid() {
		return domain.NewError(domain.KindRestrictionViolation, strings.Join(m.Errors, "; "))
	}
	return nil
}

func (e *validationEngineUC) ValidateAndActivate(ctx context.Context, in ValidateInput) (*Result, error) {
	r, err := e.begin(ctx, model.EndpointValidate, in.Key, in.SiteURL, in.Caller)
	if err != nil {
		return e.finish(ctx, r, err)
	}
	if err := checkInput(in); err != nil {
		return e.finish(ctx, r, err)
	}
	site, err := security.NormalizeSite(in.SiteURL)
	if err != nil {
		return e.finish(ctx, r, domain.NewError(domain.KindInvalidFormat, "site url is malformed"))
	}
	r.site = site.URL

	c, err := e.lookup(ctx, in.Key)
	if err != nil {
		return e.finish(ctx, r, err)
	}
	ctx = logging.WithCredentialID(ctx, c.ID)
	if err := e.correctExpiry(ctx, c); err != nil {
		return e.finish(ctx, r, err)
	}
	if err := checkStatus(c); err != nil {
		return e.finish(ctx, r, err)
	}
	if err := e.checkRestrictions(ctx, c, site.Domain, in.Caller); err != nil {
		return e.finish(ctx, r, err)
	}

	out, err := e.tracker.Activate(ctx, c, model.ActivationRequest{
		SiteURL:       site.URL,
		SiteHash:      site.Hash,
		SiteName:      in.SiteName,
		ClientVersion: in.ClientVersion,
		LastError:     in.LastError,
	})
	if err != nil {
		return e.finish(ctx, r, err)
	}
	switch {
	case out.Revived:
		e.publish(ctx, model.EventReactivated, c.ID, site.URL, nil)
	case !out.Reused:
		e.publish(ctx, model.EventActivated, c.ID, site.URL, map[string]string{"client_version": in.ClientVersion})
	}

	view, sites, err := e.view(ctx, c, site.URL, true)
	if err != nil {
		return e.finish(ctx, r, err)
	}
	r.res.View, r.res.Sites = view, sites
	return e.finish(ctx, r, nil)
}

func (e *validationEngineUC) ValidateOnly(ctx context.Context, in KeyInput) (*Result, error) {
	r, err := e.begin(ctx, model.EndpointStatus, in.Key, "", in.Caller)
	if err != nil {
		return e.finish(ctx, r, err)
	}
	if err := checkInput(in); err != nil {
		return e.finish(ctx, r, err)
	}
	c, err := e.lookup(ctx, in.Key)
	if err != nil {
		return e.finish(ctx, r, err)
	}
	ctx = logging.WithCredentialID(ctx, c.ID)
	if err := e.correctExpiry(ctx, c); err != nil {
		return e.finish(ctx, r, err)
	}
	if err := checkStatus(c); err != nil {
		return e.finish(ctx, r, err)
	}
	view, _, err := e.view(ctx, c, "", false)
	if err != nil {
		return e.finish(ctx, r, err)
	}
	r.res.View = view
	return e.finish(ctx, r, nil)
}

// Deactivate releases a site's slot. Status and restrictions are not checked:
// giving a slot back is not a new grant of access.
func (e *validationEngineUC) Deactivate(ctx context.Context, in DeactivateInput) (*Result, error) {
	r, err := e.begin(ctx, model.EndpointDeactivate, in.Key, in.SiteURL, in.Caller)
	if err != nil {
		return e.finish(ctx, r, err)
	}
	if err := checkInput(in); err != nil {
		return e.finish(ctx, r, err)
	}
	site, err := security.NormalizeSite(in.SiteURL)
	if err != nil {
		return e.finish(ctx, r, domain.NewError(domain.KindInvalidFormat, "site url is malformed"))
	}
	r.site = site.URL
	c, err := e.lookup(ctx, in.Key)
	if err != nil {
		return e.finish(ctx, r, err)
	}
	ctx = logging.WithCredentialID(ctx, c.ID)
	if err := e.correctExpiry(ctx, c); err != nil {
		return e.finish(ctx, r, err)
	}
	a, err := e.tracker.Deactivate(ctx, c.ID, site.Hash)
	if err != nil {
		return e.finish(ctx, r, err)
	}
	if a != nil {
		e.publish(ctx, model.EventDeactivated, c.ID, site.URL, nil)
	}
	view, sites, err := e.view(ctx, c, "", false)
	if err != nil {
		return e.finish(ctx, r, err)
	}
	r.res.View, r.res.Sites = view, sites
	return e.finish(ctx, r, nil)
}

// ListActivations returns the credential summary and its active sites
// whatever the status, so a customer can still see and free slots.
func (e *validationEngineUC) ListActivations(ctx context.Context, in KeyInput) (*Result, error) {
	r, err := e.begin(ctx, model.EndpointActivations, in.Key, "", in.Caller)
	if err != nil {
		return e.finish(ctx, r, err)
	}
	if err := checkInput(in); err != nil {
		return e.finish(ctx, r, err)
	}
	c, err := e.lookup(ctx, in.Key)
	if err != nil {
		return e.finish(ctx, r, err)
	}
	ctx = logging.WithCredentialID(ctx, c.ID)
	if err := e.correctExpiry(ctx, c); err != nil {
		return e.finish(ctx, r, err)
	}
	view, sites, err := e.view(ctx, c, "", false)
	if err != nil {
		return e.finish(ctx, r, err)
	}
	r.res.View, r.res.Sites = view, sites
	return e.finish(ctx, r, nil)
}

// view builds the public projection. The used count comes from the store,
// not from len(sites), so it cannot drift from the ceiling check.
func (e *validationEngineUC) view(ctx context.Context, c *model.Credential, site string, withToken bool) (*model.LicenseView, []*model.Activation, error) {
	used, err := e.tracker.CountActive(ctx, c.ID)
	if err != nil {
		return nil, nil, domain.WrapServerError(err, domain.MessageOf(err))
	}
	sites, err := e.tracker.ListActive(ctx, c.ID)
	if err != nil {
		return nil, nil, domain.WrapServerError(err, domain.MessageOf(err))
	}
	urls := make([]string, 0, len(sites))
	for _, a := range sites {
		urls = append(urls, a.SiteURL)
	}
	v := &model.LicenseView{
		Tier:            c.Tier,
		Status:          string(c.Status),
		Features:        e.features.Features(c.ProductID, c.Tier),
		ExpiresAt:       c.ExpiresAt,
		ActivationsUsed: used,
		ActivationLimit: c.ActivationLimit,
		ActiveSites:     urls,
	}
	if v.Features == nil {
		v.Features = []string{}
	}
	if withToken && e.signer != nil {
		tok, err := e.signer.Sign(c, site, v.Features, e.now())
		if err != nil {
			logging.With(ctx, e.log).Warn().Err(err).Msg("offline token not issued")
		} else {
			v.Token = tok
		}
	}
	return v, sites, nil
}

// publish is fire-and-forget; delivery runs off the request path.
func (e *validationEngineUC) publish(ctx context.Context, t model.EventType, credentialID, site string, data map[string]string) {
	if e.events == nil {
		return
	}
	e.events.Publish(ctx, model.Event{
		ID:           ulid.Make().String(),
		Type:         t,
		CredentialID: credentialID,
		Site:         site,
		OccurredAt:   e.now().UTC(),
		Data:         data,
	})
}
