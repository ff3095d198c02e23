//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"license-activation-service/internal/domain"
	"license-activation-service/internal/domain/model"
	"license-activation-service/internal/domain/ports/adapter"
	"license-activation-service/internal/domain/ports/repository"
)

// -----------------------------
// Utilities
// -----------------------------

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: time.Now()} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// =============================
// Transactions
// =============================

// memTx collects the releases of locks taken inside one WithTx call.
type memTx struct {
	unlocks []func()
}

// MockTxManager hands a *memTx to fn and releases its locks when fn returns,
// mirroring transaction-scoped advisory locks.
type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

var _ repository.TransactionManager = (*MockTxManager)(nil)

func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	tx := &memTx{}
	defer func() {
		for i := len(tx.unlocks) - 1; i >= 0; i-- {
			tx.unlocks[i]()
		}
	}()
	return fn(ctx, tx)
}

// =============================
// Repositories
// =============================

// ---- Credentials ----

type MockCredentialRepo struct {
	mu   sync.RWMutex
	byID map[string]*model.Credential

	FindByKeyHashErr error
	// beforeExpire runs at the start of ExpireIfOverdue, outside the lock.
	beforeExpire func()
}

func NewMockCredentialRepo() *MockCredentialRepo {
	return &MockCredentialRepo{byID: map[string]*model.Credential{}}
}

var _ repository.CredentialRepository = (*MockCredentialRepo)(nil)

func (r *MockCredentialRepo) Create(ctx context.Context, tx repository.Tx, c *model.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ex := range r.byID {
		if ex.KeyHash == c.KeyHash {
			return domain.ErrAlreadyExists
		}
	}
	cp := *c
	r.byID[c.ID] = &cp
	return nil
}

func (r *MockCredentialRepo) FindByKeyHash(ctx context.Context, tx repository.Tx, keyHash string) (*model.Credential, error) {
	if r.FindByKeyHashErr != nil {
		return nil, r.FindByKeyHashErr
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.byID {
		if c.KeyHash == keyHash {
			cp := *c
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockCredentialRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *MockCredentialRepo) TransitionStatus(ctx context.Context, tx repository.Tx, id string, from, to model.CredentialStatus, expiresAt *time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	if expiresAt != nil {
		e := *expiresAt
		c.ExpiresAt = &e
	}
	c.UpdatedAt = time.Now()
	return true, nil
}

func (r *MockCredentialRepo) ExpireIfOverdue(ctx context.Context, tx repository.Tx, id string, now time.Time) (bool, error) {
	if r.beforeExpire != nil {
		r.beforeExpire()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok || !c.IsOverdue(now) {
		return false, nil
	}
	c.Status = model.CredentialStatusExpired
	c.UpdatedAt = time.Now()
	return true, nil
}

func (r *MockCredentialRepo) ExpireOverdue(ctx context.Context, tx repository.Tx, now time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, c := range r.byID {
		if c.IsOverdue(now) {
			c.Status = model.CredentialStatusExpired
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// put stores c as-is, bypassing NewCredential validation.
func (r *MockCredentialRepo) put(c *model.Credential) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.byID[c.ID] = &cp
}

func (r *MockCredentialRepo) status(id string) model.CredentialStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id].Status
}

// ---- Activations ----

type MockActivationRepo struct {
	mu    sync.RWMutex
	rows  map[string]*model.Activation // by id
	locks sync.Map                     // credential id -> *sync.Mutex

	// yield widens the window between count and insert in stress tests.
	yield func()
}

func NewMockActivationRepo() *MockActivationRepo {
	return &MockActivationRepo{rows: map[string]*model.Activation{}}
}

var _ repository.ActivationRepository = (*MockActivationRepo)(nil)

func (r *MockActivationRepo) LockCredential(ctx context.Context, tx repository.Tx, credentialID string) error {
	t, ok := tx.(*memTx)
	if !ok {
		return domain.ErrInvalidExecContext
	}
	m, _ := r.locks.LoadOrStore(credentialID, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	t.unlocks = append(t.unlocks, mu.Unlock)
	return nil
}

func (r *MockActivationRepo) FindBySite(ctx context.Context, tx repository.Tx, credentialID, siteHash string) (*model.Activation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.rows {
		if a.CredentialID == credentialID && a.SiteHash == siteHash {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockActivationRepo) CountActive(ctx context.Context, tx repository.Tx, credentialID string) (int, error) {
	r.mu.RLock()
	n := 0
	for _, a := range r.rows {
		if a.CredentialID == credentialID && a.Active {
			n++
		}
	}
	r.mu.RUnlock()
	if r.yield != nil {
		r.yield()
	}
	return n, nil
}

func (r *MockActivationRepo) ListActive(ctx context.Context, tx repository.Tx, credentialID string) ([]*model.Activation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Activation
	for _, a := range r.rows {
		if a.CredentialID == credentialID && a.Active {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActivatedAt.Before(out[j].ActivatedAt) })
	return out, nil
}

func (r *MockActivationRepo) Insert(ctx context.Context, tx repository.Tx, a *model.Activation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ex := range r.rows {
		if ex.CredentialID == a.CredentialID && ex.SiteHash == a.SiteHash {
			return domain.ErrAlreadyExists
		}
	}
	cp := *a
	r.rows[a.ID] = &cp
	return nil
}

func (r *MockActivationRepo) Update(ctx context.Context, tx repository.Tx, a *model.Activation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[a.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *a
	r.rows[a.ID] = &cp
	return nil
}

func (r *MockActivationRepo) total() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}

// ---- Restrictions ----

type MockRestrictionRepo struct {
	mu   sync.RWMutex
	sets map[string]*model.RestrictionSet

	FindErr error
}

func NewMockRestrictionRepo() *MockRestrictionRepo {
	return &MockRestrictionRepo{sets: map[string]*model.RestrictionSet{}}
}

var _ repository.RestrictionRepository = (*MockRestrictionRepo)(nil)

func (r *MockRestrictionRepo) FindByCredential(ctx context.Context, tx repository.Tx, credentialID string) (*model.RestrictionSet, error) {
	if r.FindErr != nil {
		return nil, r.FindErr
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rs, ok := r.sets[credentialID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rs
	return &cp, nil
}

func (r *MockRestrictionRepo) Save(ctx context.Context, tx repository.Tx, rs *model.RestrictionSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rs
	r.sets[rs.CredentialID] = &cp
	return nil
}

func (r *MockRestrictionRepo) Delete(ctx context.Context, tx repository.Tx, credentialID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sets, credentialID)
	return nil
}

// ---- Attempts ----

type MockAttemptRepo struct {
	mu      sync.RWMutex
	records []model.AttemptRecord

	AppendErr error
}

func NewMockAttemptRepo() *MockAttemptRepo { return &MockAttemptRepo{} }

var _ repository.AttemptRepository = (*MockAttemptRepo)(nil)

func (r *MockAttemptRepo) Append(ctx context.Context, tx repository.Tx, rec *model.AttemptRecord) error {
	if r.AppendErr != nil {
		return r.AppendErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, *rec)
	return nil
}

func (r *MockAttemptRepo) CountFailuresSince(ctx context.Context, tx repository.Tx, identifier string, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, rec := range r.records {
		if rec.Identifier == identifier && !rec.Success && !rec.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *MockAttemptRepo) SuspiciousSince(ctx context.Context, tx repository.Tx, since time.Time, threshold int) ([]model.SuspiciousIdentifier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agg := map[string]*model.SuspiciousIdentifier{}
	for _, rec := range r.records {
		if rec.Success || rec.CreatedAt.Before(since) {
			continue
		}
		s, ok := agg[rec.Identifier]
		if !ok {
			s = &model.SuspiciousIdentifier{Identifier: rec.Identifier}
			agg[rec.Identifier] = s
		}
		s.Failures++
		if rec.CreatedAt.After(s.LastSeen) {
			s.LastSeen = rec.CreatedAt
		}
	}
	var out []model.SuspiciousIdentifier
	for _, s := range agg {
		if s.Failures >= threshold {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Failures > out[j].Failures })
	return out, nil
}

func (r *MockAttemptRepo) DeleteBefore(ctx context.Context, tx repository.Tx, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.records[:0]
	var n int64
	for _, rec := range r.records {
		if rec.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, rec)
	}
	r.records = kept
	return n, nil
}

func (r *MockAttemptRepo) all() []model.AttemptRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.AttemptRecord(nil), r.records...)
}

// ---- Rate windows ----

type memWindow struct {
	start time.Time
	count int
}

// MockRateStore is an in-process fixed-window store driven by a fake clock.
type MockRateStore struct {
	mu      sync.Mutex
	windows map[string]*memWindow
	clock   *fakeClock

	HitErr error
}

func NewMockRateStore(clock *fakeClock) *MockRateStore {
	return &MockRateStore{windows: map[string]*memWindow{}, clock: clock}
}

var _ repository.RateWindowStore = (*MockRateStore)(nil)

func (s *MockRateStore) Hit(ctx context.Context, key string, max int, window time.Duration) (bool, model.RateWindow, error) {
	if s.HitErr != nil {
		return false, model.RateWindow{}, s.HitErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	w, ok := s.windows[key]
	if ok && now.After(w.start.Add(window)) {
		ok = false
	}
	if !ok {
		w = &memWindow{start: now}
		s.windows[key] = w
	}
	if w.count >= max {
		return false, model.RateWindow{Count: w.count, ResetAt: w.start.Add(window)}, nil
	}
	w.count++
	return true, model.RateWindow{Count: w.count, ResetAt: w.start.Add(window)}, nil
}

// =============================
// Events
// =============================

type RecordingPublisher struct {
	mu     sync.Mutex
	Events []model.Event
}

var _ adapter.EventPublisher = (*RecordingPublisher)(nil)

func (p *RecordingPublisher) Publish(ctx context.Context, ev model.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, ev)
}

func (p *RecordingPublisher) types() []model.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.EventType, 0, len(p.Events))
	for _, e := range p.Events {
		out = append(out, e.Type)
	}
	return out
}
