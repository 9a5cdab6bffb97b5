package artifactcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/astralhq/astrokit/pkg/logger"
)

// Manager exposes the cache operations for a single artifact kind.
// Instantiate one per kind, typically over a shared Store:
//
//	store := artifactcache.NewPGStore(pool)
//	charts := artifactcache.New(artifactcache.KindChart, store)
//	calendars := artifactcache.New(artifactcache.KindCalendar, store,
//		artifactcache.WithDefaultTTL(30*24*time.Hour))
type Manager struct {
	kind       Kind
	store      Store
	defaultTTL time.Duration // applied to Store calls without an explicit TTL
	log        *slog.Logger
	now        func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithDefaultTTL sets the freshness horizon applied when StoreOptions
// carry no TTL. Zero means entries are valid until superseded.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.defaultTTL = ttl }
}

// WithLogger sets the logger. Nil loggers are ignored.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// New creates a cache manager for one artifact kind. Panics on nil
// store to fail fast during initialization.
func New(kind Kind, store Store, opts ...Option) *Manager {
	if store == nil {
		panic("artifactcache: store is required")
	}

	m := &Manager{
		kind:  kind,
		store: store,
		log:   slog.Default(),
		now:   time.Now,
	}
	if kind == KindCalendar {
		m.defaultTTL = DefaultCalendarTTL
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LookupOptions modifies lookup behavior.
type LookupOptions struct {
	// ForceRefresh makes an existing chart or interpretation entry
	// report Stale so the caller recomputes it. Calendar entries ignore
	// the flag: their freshness is governed solely by the expiry
	// horizon.
	ForceRefresh bool
}

// Lookup resolves the key to Hit, Stale, or Miss. Stale results still
// carry the previous entry so callers can serve it while recomputing if
// they choose to.
func (m *Manager) Lookup(ctx context.Context, key Key, opts LookupOptions) (Result, error) {
	key.Kind = m.kind
	if err := key.Validate(); err != nil {
		return Result{}, err
	}

	entry, err := m.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return Result{State: Miss}, nil
		}
		return Result{}, fmt.Errorf("cache lookup failed: %w", err)
	}

	if m.kind == KindCalendar {
		if entry.Expired(m.now()) {
			return Result{State: Stale, Entry: entry}, nil
		}
		return Result{State: Hit, Entry: entry}, nil
	}

	if opts.ForceRefresh {
		return Result{State: Stale, Entry: entry}, nil
	}
	return Result{State: Hit, Entry: entry}, nil
}

// StoreOptions modifies store behavior.
type StoreOptions struct {
	// TTL sets the entry's freshness horizon. Zero falls back to the
	// manager's default (none for charts and interpretations, the
	// calendar horizon for calendars).
	TTL time.Duration
	// Refresh supersedes an existing row instead of adopting it. Set
	// after a Stale lookup or an explicit force-refresh recomputation.
	Refresh bool
}

// Store persists the payload under the key. First-write races on the
// same key are benign: when a concurrent writer got there first the
// existing row is adopted and returned, and neither caller sees an
// error. This is a cache, not a ledger.
func (m *Manager) Store(ctx context.Context, key Key, payload []byte, opts StoreOptions) (*Entry, error) {
	key.Kind = m.kind
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}

	now := m.now()
	entry := Entry{
		Key:        key,
		Payload:    payload,
		ComputedAt: now,
	}

	ttl := opts.TTL
	if ttl == 0 {
		ttl = m.defaultTTL
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		entry.ExpiresAt = &expires
	}

	if opts.Refresh {
		if err := m.store.Replace(ctx, entry); err != nil {
			return nil, fmt.Errorf("cache replace failed: %w", err)
		}
		return &entry, nil
	}

	stored, created, err := m.store.InsertOrGet(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("cache store failed: %w", err)
	}
	if !created {
		m.log.DebugContext(ctx, "cache write race, adopted existing entry",
			logger.Component("artifactcache"),
			logger.ArtifactKind(string(m.kind)),
			logger.AccountID(key.AccountID),
		)
	}
	return stored, nil
}

// GetOrCompute resolves the key, invoking compute only on Miss or
// Stale, and persists the computed payload before returning it.
func (m *Manager) GetOrCompute(ctx context.Context, key Key, opts LookupOptions, compute func(context.Context) ([]byte, error)) (*Entry, error) {
	res, err := m.Lookup(ctx, key, opts)
	if err != nil {
		return nil, err
	}
	if res.State == Hit {
		return res.Entry, nil
	}

	payload, err := compute(ctx)
	if err != nil {
		return nil, err
	}

	return m.Store(ctx, key, payload, StoreOptions{Refresh: res.State == Stale})
}

// Invalidate bulk-deletes the account's entries of this manager's kind
// and returns the count. Maintenance tooling only; end-user request
// paths never call it.
func (m *Manager) Invalidate(ctx context.Context, accountID uuid.UUID) (int64, error) {
	n, err := m.store.DeleteByAccount(ctx, accountID, m.kind)
	if err != nil {
		return 0, fmt.Errorf("cache invalidation failed: %w", err)
	}
	m.log.InfoContext(ctx, "cache invalidated",
		logger.Component("artifactcache"),
		logger.ArtifactKind(string(m.kind)),
		logger.AccountID(accountID),
		slog.Int64("deleted", n),
	)
	return n, nil
}

// PurgeExpired removes entries past their horizon. Intended for a
// maintenance cron.
func (m *Manager) PurgeExpired(ctx context.Context) (int64, error) {
	return m.store.DeleteExpired(ctx, m.now())
}

// InvalidateAccount bulk-deletes an account's entries across the given
// kinds (all kinds when none given) on the shared store and returns the
// total count. Package-level because the operation spans manager
// boundaries.
func InvalidateAccount(ctx context.Context, store Store, accountID uuid.UUID, kinds ...Kind) (int64, error) {
	return store.DeleteByAccount(ctx, accountID, kinds...)
}
