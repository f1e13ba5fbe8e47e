// Package logctx carries the request-scoped logger through a context so that
// use cases, bus handlers and workers log with the caller's correlation fields.
package logctx

import (
	"context"

	"github.com/Zhima-Mochi/storefront/internal/observability"
)

type loggerKey struct{}

// With stores logger on ctx. A nil logger leaves ctx unchanged.
func With(ctx context.Context, logger observability.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// From returns the logger stored on ctx, or nil.
func From(ctx context.Context) observability.Logger {
	if ctx == nil {
		return nil
	}
	logger, _ := ctx.Value(loggerKey{}).(observability.Logger)
	return logger
}

// FromOr returns the context logger, or fallback when ctx carries none.
// A nil fallback yields the no-op logger so callers never nil-check.
func FromOr(ctx context.Context, fallback observability.Logger) observability.Logger {
	if logger := From(ctx); logger != nil {
		return logger
	}
	if fallback == nil {
		return observability.NopLogger()
	}
	return fallback
}

// Enrich derives a child of the context logger (or fallback) carrying fields,
// stores it on the returned context and returns it.
func Enrich(ctx context.Context, fallback observability.Logger, fields ...observability.Field) (context.Context, observability.Logger) {
	logger := FromOr(ctx, fallback)
	if len(fields) > 0 {
		logger = logger.With(fields...)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return With(ctx, logger), logger
}
