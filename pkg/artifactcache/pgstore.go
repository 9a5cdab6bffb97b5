package artifactcache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/astralhq/astrokit/pkg/pg"
)

// PGStore persists cache entries in PostgreSQL across two tables:
// artifact_cache for charts and interpretations, calendar_cache for
// year-partitioned calendars. One instance backs all three kinds.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Postgres-backed store. Panics on nil pool to
// fail fast during initialization.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	if pool == nil {
		panic("artifactcache: pgx pool is required")
	}
	return &PGStore{pool: pool}
}

func (s *PGStore) Get(ctx context.Context, key Key) (*Entry, error) {
	var row pgx.Row
	if key.Kind == KindCalendar {
		row = s.pool.QueryRow(ctx,
			`SELECT payload, computed_at, expires_at
			 FROM calendar_cache
			 WHERE account_id = $1 AND year = $2`,
			key.AccountID, key.Year)
	} else {
		row = s.pool.QueryRow(ctx,
			`SELECT payload, computed_at, expires_at
			 FROM artifact_cache
			 WHERE account_id = $1 AND kind = $2 AND fingerprint = $3 AND variant = $4`,
			key.AccountID, key.Kind, key.Fingerprint, key.Variant)
	}

	entry := Entry{Key: key}
	if err := row.Scan(&entry.Payload, &entry.ComputedAt, &entry.ExpiresAt); err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return &entry, nil
}

func (s *PGStore) InsertOrGet(ctx context.Context, entry Entry) (*Entry, bool, error) {
	var inserted int64
	var err error

	if entry.Key.Kind == KindCalendar {
		tag, execErr := s.pool.Exec(ctx,
			`INSERT INTO calendar_cache (account_id, year, payload, computed_at, expires_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (account_id, year) DO NOTHING`,
			entry.Key.AccountID, entry.Key.Year, entry.Payload, entry.ComputedAt, entry.ExpiresAt)
		inserted, err = tag.RowsAffected(), execErr
	} else {
		tag, execErr := s.pool.Exec(ctx,
			`INSERT INTO artifact_cache (account_id, kind, fingerprint, variant, payload, computed_at, expires_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (account_id, kind, fingerprint, variant) DO NOTHING`,
			entry.Key.AccountID, entry.Key.Kind, entry.Key.Fingerprint, entry.Key.Variant,
			entry.Payload, entry.ComputedAt, entry.ExpiresAt)
		inserted, err = tag.RowsAffected(), execErr
	}

	// A unique violation can still slip past ON CONFLICT when two
	// transactions insert concurrently; both outcomes mean someone else
	// won the race and we adopt their row.
	if err != nil && !pg.IsDuplicateKeyError(err) {
		return nil, false, fmt.Errorf("failed to insert cache entry: %w", err)
	}

	if err == nil && inserted > 0 {
		return &entry, true, nil
	}

	existing, getErr := s.Get(ctx, entry.Key)
	if getErr != nil {
		return nil, false, getErr
	}
	return existing, false, nil
}

func (s *PGStore) Replace(ctx context.Context, entry Entry) error {
	var err error
	if entry.Key.Kind == KindCalendar {
		_, err = s.pool.Exec(ctx,
			`INSERT INTO calendar_cache (account_id, year, payload, computed_at, expires_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (account_id, year) DO UPDATE
			 SET payload = EXCLUDED.payload,
			     computed_at = EXCLUDED.computed_at,
			     expires_at = EXCLUDED.expires_at`,
			entry.Key.AccountID, entry.Key.Year, entry.Payload, entry.ComputedAt, entry.ExpiresAt)
	} else {
		_, err = s.pool.Exec(ctx,
			`INSERT INTO artifact_cache (account_id, kind, fingerprint, variant, payload, computed_at, expires_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (account_id, kind, fingerprint, variant) DO UPDATE
			 SET payload = EXCLUDED.payload,
			     computed_at = EXCLUDED.computed_at,
			     expires_at = EXCLUDED.expires_at`,
			entry.Key.AccountID, entry.Key.Kind, entry.Key.Fingerprint, entry.Key.Variant,
			entry.Payload, entry.ComputedAt, entry.ExpiresAt)
	}
	if err != nil {
		return fmt.Errorf("failed to replace cache entry: %w", err)
	}
	return nil
}

func (s *PGStore) DeleteByAccount(ctx context.Context, accountID uuid.UUID, kinds ...Kind) (int64, error) {
	wantArtifacts, wantCalendars := wantedKinds(kinds)

	var deleted int64
	if wantArtifacts {
		artifactKinds := []string{string(KindChart), string(KindInterpretation)}
		if len(kinds) > 0 {
			artifactKinds = artifactKinds[:0]
			for _, k := range kinds {
				if k != KindCalendar {
					artifactKinds = append(artifactKinds, string(k))
				}
			}
		}
		tag, err := s.pool.Exec(ctx,
			`DELETE FROM artifact_cache WHERE account_id = $1 AND kind = ANY($2)`,
			accountID, artifactKinds)
		if err != nil {
			return deleted, fmt.Errorf("failed to delete artifact cache rows: %w", err)
		}
		deleted += tag.RowsAffected()
	}

	if wantCalendars {
		tag, err := s.pool.Exec(ctx,
			`DELETE FROM calendar_cache WHERE account_id = $1`, accountID)
		if err != nil {
			return deleted, fmt.Errorf("failed to delete calendar cache rows: %w", err)
		}
		deleted += tag.RowsAffected()
	}

	return deleted, nil
}

func (s *PGStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var deleted int64

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM artifact_cache WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return deleted, fmt.Errorf("failed to purge expired artifact rows: %w", err)
	}
	deleted += tag.RowsAffected()

	tag, err = s.pool.Exec(ctx,
		`DELETE FROM calendar_cache WHERE expires_at <= $1`, now)
	if err != nil {
		return deleted, fmt.Errorf("failed to purge expired calendar rows: %w", err)
	}
	deleted += tag.RowsAffected()

	return deleted, nil
}

// wantedKinds resolves which of the two tables a kind filter touches.
// No filter means both.
func wantedKinds(kinds []Kind) (artifacts, calendars bool) {
	if len(kinds) == 0 {
		return true, true
	}
	for _, k := range kinds {
		switch k {
		case KindCalendar:
			calendars = true
		case KindChart, KindInterpretation:
			artifacts = true
		}
	}
	return artifacts, calendars
}
