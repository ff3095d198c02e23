package apiv1

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/rs/zerolog"

	"license-activation-service/internal/domain"
	"license-activation-service/internal/domain/model"
	"license-activation-service/internal/infra/logging"
	"license-activation-service/internal/usecase"
)

const (
	HeaderHardwareID = "X-Hardware-ID"
	// maxBodyBytes bounds request bodies; field sizes are enforced by the engine.
	maxBodyBytes = 16 << 10
)

// Server exposes the validation engine over JSON.
type Server struct {
	engine usecase.ValidationEngine
	log    *zerolog.Logger
	now    func() time.Time
}

func NewServer(engine usecase.ValidationEngine, logger *zerolog.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	l := logger.With().Str("component", "apiv1").Logger()
	return &Server{engine: engine, log: &l, now: time.Now}
}

// RegisterAPIV1 mounts the license routes under /api/v1.
func RegisterAPIV1(r chi.Router, s *Server) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/validate", s.validate)
		r.Post("/deactivate", s.deactivate)
		r.Get("/status", s.status)
		r.Get("/activations", s.activations)
	})
}

// ---- wire types ----

type RateLimit struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

type ErrorBody struct {
	Kind      domain.ErrorKind `json:"kind"`
	Message   string           `json:"message"`
	Retryable bool             `json:"retryable"`
}

type Site struct {
	URL           string    `json:"site_url"`
	Name          string    `json:"site_name,omitempty"`
	ClientVersion string    `json:"client_version,omitempty"`
	ActivatedAt   time.Time `json:"activated_at"`
	LastSeenAt    time.Time `json:"last_seen_at"`
}

type Envelope struct {
	Success   bool               `json:"success"`
	License   *model.LicenseView `json:"license,omitempty"`
	Sites     []Site             `json:"sites,omitempty"`
	Error     *ErrorBody         `json:"error,omitempty"`
	RateLimit *RateLimit         `json:"rate_limit,omitempty"`
}

// ---- handlers ----

func (s *Server) validate(w http.ResponseWriter, r *http.Request) {
	var in usecase.ValidateInput
	s.decode(r, &in)
	in.Caller = caller(r)
	res, err := s.engine.ValidateAndActivate(r.Context(), in)
	s.respond(w, r, res, err, false)
}

func (s *Server) deactivate(w http.ResponseWriter, r *http.Request) {
	var in usecase.DeactivateInput
	s.decode(r, &in)
	in.Caller = caller(r)
	res, err := s.engine.Deactivate(r.Context(), in)
	s.respond(w, r, res, err, false)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	in := usecase.KeyInput{Key: r.URL.Query().Get("license_key"), Caller: caller(r)}
	res, err := s.engine.ValidateOnly(r.Context(), in)
	s.respond(w, r, res, err, false)
}

func (s *Server) activations(w http.ResponseWriter, r *http.Request) {
	in := usecase.KeyInput{Key: r.URL.Query().Get("license_key"), Caller: caller(r)}
	res, err := s.engine.ListActivations(r.Context(), in)
	s.respond(w, r, res, err, true)
}

// decode leaves dst zero-valued on a bad body; the engine then rejects it as
// invalid_format after counting it against the caller's rate window.
func (s *Server) decode(r *http.Request, dst any) {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		logging.With(r.Context(), s.log).Debug().Err(err).Msg("request body not decoded")
	}
}

func caller(r *http.Request) usecase.Caller {
	return usecase.Caller{
		IP:         logging.ClientIPFrom(r.Context()),
		HardwareID: r.Header.Get(HeaderHardwareID),
	}
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, res *usecase.Result, err error, withSites bool) {
	env := Envelope{Success: err == nil}
	if res != nil {
		env.RateLimit = s.rateHeaders(w, res.Rate)
		env.License = res.View
		if withSites && err == nil {
			env.Sites = make([]Site, 0, len(res.Sites))
			for _, a := range res.Sites {
				env.Sites = append(env.Sites, Site{
					URL:           a.SiteURL,
					Name:          a.SiteName,
					ClientVersion: a.ClientVersion,
					ActivatedAt:   a.ActivatedAt,
					LastSeenAt:    a.LastSeenAt,
				})
			}
		}
	}
	if err != nil {
		kind := domain.KindOf(err)
		env.License = nil
		env.Error = &ErrorBody{Kind: kind, Message: domain.MessageOf(err), Retryable: kind.Retryable()}
		if kind == domain.KindRateLimitExceeded && res != nil {
			secs := int(res.Rate.RetryAfter(s.now()).Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
		render.Status(r, kind.HTTPStatus())
	}
	render.JSON(w, r, env)
}

func (s *Server) rateHeaders(w http.ResponseWriter, d model.RateDecision) *RateLimit {
	if d.Limit == 0 {
		return nil
	}
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	if !d.ResetAt.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	}
	return &RateLimit{Limit: d.Limit, Remaining: d.Remaining, ResetAt: d.ResetAt.UTC()}
}
