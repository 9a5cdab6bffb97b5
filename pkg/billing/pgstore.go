package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/astralhq/astrokit/pkg/pg"
)

// PGStore persists subscriptions, customer mappings and one-time
// grants in Postgres. It implements SubscriptionStore, CustomerStore
// and GrantStore.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Postgres-backed billing store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	if pool == nil {
		panic("billing: pgstore requires a pool")
	}
	return &PGStore{pool: pool}
}

func (s *PGStore) Get(ctx context.Context, accountID uuid.UUID) (*Subscription, error) {
	return s.getSubscription(ctx,
		`SELECT account_id, provider_subscription_id, customer_id, status, item_set, current_period_end, created_at, updated_at
		 FROM billing_subscriptions WHERE account_id = $1`, accountID)
}

func (s *PGStore) GetByProviderID(ctx context.Context, providerSubscriptionID string) (*Subscription, error) {
	return s.getSubscription(ctx,
		`SELECT account_id, provider_subscription_id, customer_id, status, item_set, current_period_end, created_at, updated_at
		 FROM billing_subscriptions WHERE provider_subscription_id = $1`, providerSubscriptionID)
}

func (s *PGStore) getSubscription(ctx context.Context, query string, arg any) (*Subscription, error) {
	var sub Subscription
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&sub.AccountID,
		&sub.ProviderSubscriptionID,
		&sub.CustomerID,
		&sub.Status,
		&sub.ItemSet,
		&sub.CurrentPeriodEnd,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("billing: query subscription: %w", err)
	}
	return &sub, nil
}

// Upsert replaces the account's subscription record with the given
// full snapshot. Concurrent syncs race benignly: each writer carries a
// complete record, so whichever lands last wins.
func (s *PGStore) Upsert(ctx context.Context, sub *Subscription) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO billing_subscriptions
		 (account_id, provider_subscription_id, customer_id, status, item_set, current_period_end, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		 ON CONFLICT (account_id) DO UPDATE SET
		   provider_subscription_id = EXCLUDED.provider_subscription_id,
		   customer_id = EXCLUDED.customer_id,
		   status = EXCLUDED.status,
		   item_set = EXCLUDED.item_set,
		   current_period_end = EXCLUDED.current_period_end,
		   updated_at = now()`,
		sub.AccountID,
		sub.ProviderSubscriptionID,
		sub.CustomerID,
		sub.Status,
		sub.ItemSet,
		sub.CurrentPeriodEnd,
	)
	if err != nil {
		return fmt.Errorf("billing: upsert subscription: %w", err)
	}
	return nil
}

func (s *PGStore) CustomerID(ctx context.Context, accountID uuid.UUID) (string, error) {
	var customerID string
	err := s.pool.QueryRow(ctx,
		`SELECT customer_id FROM billing_customers WHERE account_id = $1`, accountID).Scan(&customerID)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return "", ErrCustomerNotFound
		}
		return "", fmt.Errorf("billing: query customer: %w", err)
	}
	return customerID, nil
}

func (s *PGStore) AccountID(ctx context.Context, customerID string) (uuid.UUID, error) {
	var accountID uuid.UUID
	err := s.pool.QueryRow(ctx,
		`SELECT account_id FROM billing_customers WHERE customer_id = $1`, customerID).Scan(&accountID)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return uuid.Nil, ErrCustomerNotFound
		}
		return uuid.Nil, fmt.Errorf("billing: query customer account: %w", err)
	}
	return accountID, nil
}

func (s *PGStore) SetCustomerID(ctx context.Context, accountID uuid.UUID, customerID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO billing_customers (account_id, customer_id, created_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (account_id) DO UPDATE SET customer_id = EXCLUDED.customer_id`,
		accountID, customerID)
	if err != nil {
		return fmt.Errorf("billing: set customer: %w", err)
	}
	return nil
}

// GrantDraconic records a one-time draconic purchase. Duplicate grants
// from webhook redelivery are harmless and swallowed.
func (s *PGStore) GrantDraconic(ctx context.Context, accountID uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO billing_grants (account_id, grant_key, granted_at)
		 VALUES ($1, 'draconic', $2)
		 ON CONFLICT (account_id, grant_key) DO NOTHING`,
		accountID, time.Now().UTC())
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("billing: grant draconic: %w", err)
	}
	return nil
}

func (s *PGStore) HasDraconic(ctx context.Context, accountID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM billing_grants WHERE account_id = $1 AND grant_key = 'draconic')`,
		accountID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("billing: query grant: %w", err)
	}
	return exists, nil
}
