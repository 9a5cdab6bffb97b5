package billing

import (
	"context"

	"github.com/google/uuid"
)

// SubscriptionStore persists the local subscription record. Upsert is
// keyed by account id: the full record is replaced on every sync, so
// concurrent syncs converge on last-writer-wins with each writer
// holding a complete snapshot.
type SubscriptionStore interface {
	Get(ctx context.Context, accountID uuid.UUID) (*Subscription, error)
	GetByProviderID(ctx context.Context, providerSubscriptionID string) (*Subscription, error)
	Upsert(ctx context.Context, sub *Subscription) error
}

// CustomerStore maps accounts to provider customer ids. The mapping
// exists before any subscription does, since a customer is created the
// first time an account reaches checkout.
type CustomerStore interface {
	CustomerID(ctx context.Context, accountID uuid.UUID) (string, error)
	AccountID(ctx context.Context, customerID string) (uuid.UUID, error)
	SetCustomerID(ctx context.Context, accountID uuid.UUID, customerID string) error
}

// GrantStore records one-time purchases that live outside the
// recurring item set, such as the draconic chart access grant.
type GrantStore interface {
	GrantDraconic(ctx context.Context, accountID uuid.UUID) error
	HasDraconic(ctx context.Context, accountID uuid.UUID) (bool, error)
}

// OverrideResolver reports whether the account carries an admin
// override that grants every entitlement regardless of billing state.
// The account schema lives outside this package, so the check is
// injected.
type OverrideResolver func(ctx context.Context, accountID uuid.UUID) bool
