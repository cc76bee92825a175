// Package adapter provides the delivery and rate limiting implementations
// the identity service is wired with: SNS, log-only and in-process outbox
// code delivery, plus a Redis-backed rate limiter.
package adapter

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("identity/adapter")
