// Package logger provides a slog factory with sensible defaults and
// typed attribute helpers shared across the application.
//
// Components in this repository accept an optional *slog.Logger and fall
// back to slog.Default() when none is provided. The attribute helpers
// keep log field names consistent between the billing, cache, and
// compute layers:
//
//	log := logger.New(logger.WithService("astrokit"), logger.WithFormat(logger.FormatText))
//	log.Info("subscription synced",
//		logger.AccountID(accountID),
//		logger.SubscriptionID(subID),
//	)
package logger
