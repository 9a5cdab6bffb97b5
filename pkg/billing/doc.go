// Package billing reconciles local subscription state with an
// external billing provider and answers entitlement queries.
//
// The provider is the single source of truth. Every local write is a
// full re-derivation from a provider snapshot: mutations re-read the
// subscription after the change, webhooks sync from the embedded
// snapshot or a fresh read, and concurrent syncs converge because each
// writer carries a complete record.
//
// The concrete provider is Stripe (StripeProvider); the Provider
// interface keeps the service testable against mocks. Persistence
// lives behind SubscriptionStore, CustomerStore and GrantStore, with
// PGStore implementing all three on Postgres.
//
// Basic wiring:
//
//	provider, _ := billing.NewStripeProvider(stripeCfg)
//	store := billing.NewPGStore(pool)
//	svc, _ := billing.NewService(provider, store, store, catalog, cfg,
//		billing.WithGrantStore(store))
package billing
