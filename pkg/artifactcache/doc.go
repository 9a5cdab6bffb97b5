// Package artifactcache persists expensively computed astrology
// artifacts (natal charts, narrative interpretations, year-partitioned
// personal calendars) keyed by the inputs that determine them.
//
// # Freshness
//
// Each artifact kind carries its own policy. Charts and interpretations
// are valid until superseded: a lookup hits unless the caller requests
// an explicit force-refresh. Calendar entries expire after a fixed
// horizon (DefaultCalendarTTL) no matter what the caller asks for,
// because the underlying ephemeris data drifts with time.
//
// # Write races
//
// Two requests may compute the same missing artifact concurrently. The
// Store interface's InsertOrGet resolves that race at the persistence
// boundary: exactly one row survives and both callers succeed, the
// loser adopting the winner's entry. Duplicate-key conditions never
// escape this package as errors — this is a cache, not a ledger.
//
// # Usage
//
//	store := artifactcache.NewPGStore(pool)
//	charts := artifactcache.New(artifactcache.KindChart, store)
//
//	key := artifactcache.Key{
//		AccountID:   accountID,
//		Fingerprint: artifactcache.Fingerprint(birthDate, birthTime, place, gender),
//		Variant:     "tropical",
//	}
//	entry, err := charts.GetOrCompute(ctx, key, artifactcache.LookupOptions{},
//		func(ctx context.Context) ([]byte, error) {
//			res, err := chartSvc.Compute(ctx, req)
//			if err != nil {
//				return nil, err
//			}
//			return res.Payload, nil
//		})
//
// Invalidation is maintenance-only: per-account bulk deletes for admin
// tooling, never reachable from end-user request paths.
package artifactcache
