package artifactcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEntryNotFound = errors.New("cache entry not found")
	ErrInvalidKey    = errors.New("invalid cache key")
	ErrEmptyPayload  = errors.New("cache payload is empty")
)

// Kind identifies an artifact family with its own freshness policy.
type Kind string

const (
	// KindChart caches full natal charts. Valid until superseded.
	KindChart Kind = "chart"
	// KindInterpretation caches narrative interpretations. Valid until
	// superseded.
	KindInterpretation Kind = "interpretation"
	// KindCalendar caches year-partitioned personal calendars. Expires
	// after a fixed horizon regardless of force-refresh requests.
	KindCalendar Kind = "calendar"
)

// Key is the natural composite key of a cache entry. Chart and
// interpretation entries are keyed by (account, computation
// fingerprint, variant); calendar entries by (account, year).
type Key struct {
	AccountID   uuid.UUID
	Kind        Kind
	Fingerprint string // digest of the natal inputs, chart/interpretation only
	Variant     string // e.g. "tropical", "draconic", "crossed"
	Year        int    // calendar only
}

// Validate checks the key carries the fields its kind requires.
func (k Key) Validate() error {
	if k.AccountID == uuid.Nil {
		return errors.Join(ErrInvalidKey, errors.New("account id is required"))
	}
	switch k.Kind {
	case KindChart, KindInterpretation:
		if k.Fingerprint == "" {
			return errors.Join(ErrInvalidKey, errors.New("fingerprint is required"))
		}
		if k.Variant == "" {
			return errors.Join(ErrInvalidKey, errors.New("variant is required"))
		}
	case KindCalendar:
		if k.Year == 0 {
			return errors.Join(ErrInvalidKey, errors.New("year is required"))
		}
	default:
		return errors.Join(ErrInvalidKey, fmt.Errorf("unknown kind %q", k.Kind))
	}
	return nil
}

// String renders the canonical form used as the storage key.
func (k Key) String() string {
	if k.Kind == KindCalendar {
		return fmt.Sprintf("%s:%s:%d", k.Kind, k.AccountID, k.Year)
	}
	return fmt.Sprintf("%s:%s:%s:%s", k.Kind, k.AccountID, k.Fingerprint, k.Variant)
}

// Entry is a persisted cache row.
type Entry struct {
	Key        Key
	Payload    json.RawMessage
	ComputedAt time.Time
	ExpiresAt  *time.Time // nil for entries valid until superseded
}

// Expired reports whether the entry's horizon has passed at the given
// instant. Entries without an expiry never expire.
func (e Entry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}

// State is the outcome of a cache lookup.
type State int

const (
	// Miss means no entry exists for the key.
	Miss State = iota
	// Stale means an entry exists but must be recomputed before use.
	Stale
	// Hit means the entry is fresh and usable.
	Hit
)

func (s State) String() string {
	switch s {
	case Hit:
		return "hit"
	case Stale:
		return "stale"
	default:
		return "miss"
	}
}

// Result carries the lookup state plus the entry for Hit and Stale.
type Result struct {
	State State
	Entry *Entry
}
