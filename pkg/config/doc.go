// Package config loads environment-tagged configuration structs.
//
// It wraps caarlos0/env with optional .env file support via godotenv.
// Every externally configured component in the repository (billing
// provider, database, redis, compute clients) exposes a Config struct
// with `env` tags and is loaded through this package.
package config
