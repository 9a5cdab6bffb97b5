package artifactcache_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/astralhq/astrokit/pkg/artifactcache"
)

func TestFingerprint(t *testing.T) {
	t.Parallel()

	a := artifactcache.Fingerprint("1990-04-12", "08:30", "Buenos Aires, Argentina", "f")

	t.Run("deterministic", func(t *testing.T) {
		t.Parallel()
		b := artifactcache.Fingerprint("1990-04-12", "08:30", "Buenos Aires, Argentina", "f")
		assert.Equal(t, a, b)
	})

	t.Run("normalizes case and whitespace", func(t *testing.T) {
		t.Parallel()
		b := artifactcache.Fingerprint("1990-04-12", "08:30", "  buenos aires, argentina ", "F")
		assert.Equal(t, a, b)
	})

	t.Run("input change changes the key", func(t *testing.T) {
		t.Parallel()
		b := artifactcache.Fingerprint("1990-04-13", "08:30", "Buenos Aires, Argentina", "f")
		assert.NotEqual(t, a, b)
	})

	t.Run("field boundaries matter", func(t *testing.T) {
		t.Parallel()
		// "ab" + "c" must not collide with "a" + "bc".
		assert.NotEqual(t,
			artifactcache.Fingerprint("ab", "c", "", ""),
			artifactcache.Fingerprint("a", "bc", "", ""),
		)
	})
}

func TestKey_Validate(t *testing.T) {
	t.Parallel()

	accountID := uuid.New()

	tests := []struct {
		name    string
		key     artifactcache.Key
		wantErr bool
	}{
		{
			name: "valid chart key",
			key: artifactcache.Key{
				AccountID: accountID, Kind: artifactcache.KindChart,
				Fingerprint: "abc", Variant: "tropical",
			},
		},
		{
			name: "valid calendar key",
			key:  artifactcache.Key{AccountID: accountID, Kind: artifactcache.KindCalendar, Year: 2026},
		},
		{
			name:    "chart without variant",
			key:     artifactcache.Key{AccountID: accountID, Kind: artifactcache.KindChart, Fingerprint: "abc"},
			wantErr: true,
		},
		{
			name:    "calendar without year",
			key:     artifactcache.Key{AccountID: accountID, Kind: artifactcache.KindCalendar},
			wantErr: true,
		},
		{
			name:    "nil account",
			key:     artifactcache.Key{Kind: artifactcache.KindCalendar, Year: 2026},
			wantErr: true,
		},
		{
			name:    "unknown kind",
			key:     artifactcache.Key{AccountID: accountID, Kind: artifactcache.Kind("poetry")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.key.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, artifactcache.ErrInvalidKey)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDynamicTTL(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	t.Run("current year gets the standard horizon", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, artifactcache.DefaultCalendarTTL, artifactcache.DynamicTTL(2026, now))
	})

	t.Run("past year gets the standard horizon", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, artifactcache.DefaultCalendarTTL, artifactcache.DynamicTTL(2020, now))
	})

	t.Run("next year caches until its year end, clamped to a year", func(t *testing.T) {
		t.Parallel()
		ttl := artifactcache.DynamicTTL(2027, now)
		assert.Equal(t, 365*24*time.Hour, ttl)
	})

	t.Run("far future clamps to one year", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 365*24*time.Hour, artifactcache.DynamicTTL(2040, now))
	})

	t.Run("future year close to now uses remaining span", func(t *testing.T) {
		t.Parallel()
		lateDecember := time.Date(2026, 12, 30, 0, 0, 0, 0, time.UTC)
		ttl := artifactcache.DynamicTTL(2027, lateDecember)
		assert.Greater(t, ttl, 24*time.Hour)
		assert.Less(t, ttl, 370*24*time.Hour)
	})
}

func TestEntry_Expired(t *testing.T) {
	t.Parallel()

	now := time.Now()

	t.Run("no expiry never expires", func(t *testing.T) {
		t.Parallel()
		assert.False(t, artifactcache.Entry{}.Expired(now))
	})

	t.Run("boundary", func(t *testing.T) {
		t.Parallel()
		past := now.Add(-time.Second)
		future := now.Add(time.Second)
		assert.True(t, artifactcache.Entry{ExpiresAt: &past}.Expired(now))
		assert.True(t, artifactcache.Entry{ExpiresAt: &now}.Expired(now))
		assert.False(t, artifactcache.Entry{ExpiresAt: &future}.Expired(now))
	})
}
