// Package redisconn bootstraps the Redis client used by the optional
// Redis-backed artifact cache store.
package redisconn
