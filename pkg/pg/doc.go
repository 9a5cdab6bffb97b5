// Package pg bootstraps the PostgreSQL connection pool and schema
// migrations, and exposes error classifiers used by the store layers.
//
// IsDuplicateKeyError is part of the artifact cache's concurrency
// contract: unique-constraint violations on cache keys are classified
// here and absorbed by the stores instead of surfacing to callers.
package pg
