package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/astralhq/astrokit/pkg/entitlement"
	"github.com/astralhq/astrokit/pkg/logger"
)

// PollOutcome is the terminal state of a convergence poll.
type PollOutcome string

const (
	// PollReady means the entitlement became active within the budget.
	PollReady PollOutcome = "ready"
	// PollPending means the budget ran out before the entitlement
	// converged. Webhooks typically land within a few seconds, but the
	// poll gives up rather than blocking the caller indefinitely.
	PollPending PollOutcome = "pending"
)

// EntitlementSource answers entitlement queries for the poller.
// *Service satisfies it.
type EntitlementSource interface {
	Entitlements(ctx context.Context, accountID uuid.UUID) (entitlement.Set, error)
}

// PollerConfig bounds the convergence wait after checkout.
type PollerConfig struct {
	Interval    time.Duration `env:"BILLING_POLL_INTERVAL" envDefault:"2s"`
	MaxAttempts uint64        `env:"BILLING_POLL_MAX_ATTEMPTS" envDefault:"10"`
	Budget      time.Duration `env:"BILLING_POLL_BUDGET" envDefault:"30s"`
}

// Poller waits for a purchased entitlement to show up after the
// provider confirms payment. Purchase confirmation arrives over
// webhooks, so there is a window where checkout succeeded but the
// local record has not caught up yet.
type Poller struct {
	src EntitlementSource
	cfg PollerConfig
	log *slog.Logger
}

// NewPoller creates a poller over the given entitlement source.
// Zero config fields fall back to defaults.
func NewPoller(src EntitlementSource, cfg PollerConfig, log *slog.Logger) *Poller {
	if src == nil {
		panic("billing: poller requires an entitlement source")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.Budget <= 0 {
		cfg.Budget = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Poller{src: src, cfg: cfg, log: log}
}

var errNotConverged = errors.New("entitlement not yet granted")

// Await polls until the account's entitlement set allows the given
// key, the attempt budget runs out, or the context is cancelled.
// Exhaustion and cancellation are PollPending, never an error: the
// webhook will still land, the caller just stops waiting for it.
func (p *Poller) Await(ctx context.Context, accountID uuid.UUID, key entitlement.Key) (PollOutcome, error) {
	backoff := retry.WithMaxDuration(p.cfg.Budget,
		retry.WithMaxRetries(p.cfg.MaxAttempts,
			retry.NewConstant(p.cfg.Interval)))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		set, err := p.src.Entitlements(ctx, accountID)
		if err != nil {
			// Transient store or provider trouble, keep polling.
			return retry.RetryableError(err)
		}
		if !set.Allows(key) {
			return retry.RetryableError(errNotConverged)
		}
		return nil
	})
	if err != nil {
		msg := "entitlement poll budget exhausted"
		if ctx.Err() != nil {
			msg = "entitlement poll cancelled"
		}
		p.log.InfoContext(ctx, msg,
			logger.AccountID(accountID.String()),
			slog.String("key", string(key)))
		return PollPending, nil
	}
	return PollReady, nil
}
