// Package compute holds the clients for the external astrology compute
// services. The astrology math itself lives in those services; this
// package only speaks their JSON contract: natal parameters in, a
// computed payload plus a generation-time metric out.
//
// Callers depend on the ChartService, InterpretationService, and
// CalendarService interfaces so tests can substitute doubles. Failures
// carry the upstream status via ServiceError for retryability
// classification; this layer performs no automatic retries — callers
// surface failures for manual retry.
package compute
