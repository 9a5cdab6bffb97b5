package billing_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astralhq/astrokit/pkg/billing"
	"github.com/astralhq/astrokit/pkg/entitlement"
)

type stubEntitlementSource struct {
	calls atomic.Int64
	// readyAfter is the call count at which the entitlement appears.
	// Zero means never.
	readyAfter int64
	err        error
}

func (s *stubEntitlementSource) Entitlements(_ context.Context, _ uuid.UUID) (entitlement.Set, error) {
	n := s.calls.Add(1)
	if s.err != nil {
		return entitlement.Free(), s.err
	}
	if s.readyAfter > 0 && n >= s.readyAfter {
		return entitlement.Set{HasBaseBundle: true, Status: entitlement.StatusActive}, nil
	}
	return entitlement.Free(), nil
}

func TestPollerAwait(t *testing.T) {
	t.Parallel()

	fastCfg := billing.PollerConfig{
		Interval:    time.Millisecond,
		MaxAttempts: 5,
		Budget:      time.Second,
	}

	t.Run("ready immediately", func(t *testing.T) {
		t.Parallel()

		src := &stubEntitlementSource{readyAfter: 1}
		p := billing.NewPoller(src, fastCfg, nil)

		outcome, err := p.Await(context.Background(), uuid.New(), entitlement.KeyBaseBundle)
		require.NoError(t, err)
		assert.Equal(t, billing.PollReady, outcome)
		assert.Equal(t, int64(1), src.calls.Load())
	})

	t.Run("converges after a few attempts", func(t *testing.T) {
		t.Parallel()

		src := &stubEntitlementSource{readyAfter: 3}
		p := billing.NewPoller(src, fastCfg, nil)

		outcome, err := p.Await(context.Background(), uuid.New(), entitlement.KeyBaseBundle)
		require.NoError(t, err)
		assert.Equal(t, billing.PollReady, outcome)
		assert.Equal(t, int64(3), src.calls.Load())
	})

	t.Run("exhaustion is pending, not an error", func(t *testing.T) {
		t.Parallel()

		var logs bytes.Buffer
		src := &stubEntitlementSource{}
		p := billing.NewPoller(src, fastCfg, slog.New(slog.NewTextHandler(&logs, nil)))

		outcome, err := p.Await(context.Background(), uuid.New(), entitlement.KeyBaseBundle)
		require.NoError(t, err)
		assert.Equal(t, billing.PollPending, outcome)
		assert.Contains(t, logs.String(), "budget exhausted")
		assert.NotContains(t, logs.String(), "cancelled")
	})

	t.Run("source errors are retried, not surfaced", func(t *testing.T) {
		t.Parallel()

		src := &stubEntitlementSource{err: errors.New("store down")}
		p := billing.NewPoller(src, fastCfg, nil)

		outcome, err := p.Await(context.Background(), uuid.New(), entitlement.KeyBaseBundle)
		require.NoError(t, err)
		assert.Equal(t, billing.PollPending, outcome)
		assert.Greater(t, src.calls.Load(), int64(1))
	})

	t.Run("cancelled context is pending", func(t *testing.T) {
		t.Parallel()

		var logs bytes.Buffer
		src := &stubEntitlementSource{}
		p := billing.NewPoller(src, billing.PollerConfig{
			Interval:    50 * time.Millisecond,
			MaxAttempts: 100,
			Budget:      time.Minute,
		}, slog.New(slog.NewTextHandler(&logs, nil)))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		outcome, err := p.Await(ctx, uuid.New(), entitlement.KeyBaseBundle)
		require.NoError(t, err)
		assert.Equal(t, billing.PollPending, outcome)
		assert.Contains(t, logs.String(), "cancelled")
		assert.NotContains(t, logs.String(), "budget exhausted")
	})
}
