package entitlement

// Derive computes the entitlement set from a subscription's current
// item set and status. It is pure and deterministic: the returned Set
// is a full projection, never a patch of a previous one.
//
// adminOverride short-circuits the mapping table entirely: override
// accounts get every entitlement with active status regardless of the
// item set. The override is applied before, not merged with, the
// mapping-table result.
//
// Flags are only granted while the subscription is active, which keeps
// the invariant HasBaseBundle => Status == active. Unknown item ids are
// skipped.
//
// Note the draconic entitlement is effectively never granted here: the
// draconic chart is sold as a one-time payment and therefore never
// appears in the subscription item set. The catalog entry exists so the
// webhook handler can recognize the price id; where the purchased flag
// should be persisted is an open product decision.
// TODO: persist one-time draconic purchases once the account schema
// grows a home for them.
func Derive(catalog Catalog, items []string, status Status, adminOverride bool) Set {
	if adminOverride {
		return Set{
			HasBaseBundle:    true,
			HasLunarCalendar: true,
			HasAstrogematria: true,
			HasElectiveChart: true,
			HasDraconic:      true,
			Status:           StatusActive,
		}
	}

	out := Set{Status: status}
	if status != StatusActive {
		return out
	}

	for _, itemID := range items {
		if key, ok := catalog[itemID]; ok {
			out = out.set(key)
		}
	}
	return out
}
