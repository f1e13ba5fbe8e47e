// Package gateway holds what the payment processor adapters share: event type
// mapping and an instrumenting decorator.
package gateway

import (
	"context"
	"time"

	domain "github.com/Zhima-Mochi/storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/storefront/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
	EventIntentCanceled  = "payment_intent.canceled"
)

// OutcomeForEvent maps a processor event type to a payment outcome. ok is false
// for event types that do not settle an intent.
func OutcomeForEvent(eventType string) (domain.Outcome, bool) {
	switch eventType {
	case EventIntentSucceeded:
		return domain.OutcomeSucceeded, true
	case EventIntentFailed, EventIntentCanceled:
		return domain.OutcomeFailed, true
	}
	return "", false
}

type instrumented struct {
	next   domain.Gateway
	peer   string
	tracer observability.Tracer
	calls  observability.Counter   // external_requests_total{peer,endpoint,outcome}
	dur    observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

// Instrument wraps g with a client span and external-call RED metrics.
func Instrument(g domain.Gateway, peer string, tel observability.Observability) domain.Gateway {
	if tel == nil {
		tel = observability.Nop()
	}
	return &instrumented{
		next:   g,
		peer:   peer,
		tracer: tel.Tracer(),
		calls:  tel.Metrics().Counter(observability.MExternalRequests),
		dur:    tel.Metrics().Histogram(observability.MExternalRequestDuration),
	}
}

func (g *instrumented) OpenIntent(ctx context.Context, req domain.IntentRequest) (_ domain.Intent, err error) {
	ctx, done := g.observe(ctx, "open_intent")
	defer func() { done(err) }()
	return g.next.OpenIntent(ctx, req)
}

func (g *instrumented) IntentStatus(ctx context.Context, ref string) (_ domain.Outcome, err error) {
	ctx, done := g.observe(ctx, "intent_status")
	defer func() { done(err) }()
	return g.next.IntentStatus(ctx, ref)
}

func (g *instrumented) CancelIntent(ctx context.Context, ref string) (_ domain.Outcome, err error) {
	ctx, done := g.observe(ctx, "cancel_intent")
	defer func() { done(err) }()
	return g.next.CancelIntent(ctx, ref)
}

func (g *instrumented) observe(ctx context.Context, endpoint string) (context.Context, func(error)) {
	ctx, span := g.tracer.Start(ctx, "gateway."+endpoint,
		attribute.String("peer.service", g.peer),
	)
	start := time.Now()
	return ctx, func(err error) {
		outcome := "success"
		switch {
		case ctx.Err() != nil:
			outcome = "timeout"
		case err != nil:
			outcome = "error"
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.End()
		g.calls.Add(1,
			observability.L("peer", g.peer),
			observability.L("endpoint", endpoint),
			observability.L("outcome", outcome),
		)
		g.dur.Observe(time.Since(start).Seconds(),
			observability.L("peer", g.peer),
			observability.L("endpoint", endpoint),
		)
	}
}
