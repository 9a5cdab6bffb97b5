// Package entitlement derives account capability flags from billing
// subscription state.
//
// The entitlement set is always a pure projection of the latest known
// subscription item set and status through a static item-to-entitlement
// catalog; nothing outside Derive may flip an individual flag. This
// full-recompute contract is what lets concurrent sync paths (manual
// sync, webhook, add-on mutation) converge without locking: whichever
// write lands last was derived from an authoritative provider snapshot.
//
// # Derivation rules
//
//   - Admin override accounts get all entitlements with active status,
//     bypassing the catalog entirely.
//   - A non-active subscription grants nothing, which maintains the
//     invariant HasBaseBundle => Status == active.
//   - Item ids missing from the catalog are ignored so the provider
//     side can ship new items ahead of a deploy.
//
// # Catalog
//
// The catalog maps provider price ids to entitlement keys one-to-one.
// Use StaticSource for fixed deployments or YAMLSource when price ids
// differ between environments:
//
//	catalog, err := entitlement.YAMLSource{Reader: f}.Load(ctx)
//	set := entitlement.Derive(catalog, items, entitlement.StatusActive, false)
package entitlement
