package application

import (
	"context"
	"time"

	"github.com/Zhima-Mochi/storefront/internal/application/apperr"
	domoutbox "github.com/Zhima-Mochi/storefront/internal/domain/outbox"
	"github.com/Zhima-Mochi/storefront/internal/observability"
	"github.com/Zhima-Mochi/storefront/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	spanPrefix      = "UC."
	publishPeer     = "outbox"
	publishTimeout  = 300 * time.Millisecond
	outcomeSuccess  = "success"
	outcomeError    = "error"
	statusOK        = "OK"
	statusCancelled = "CONTEXT_CANCELED"
)

// Instrument carries the RED instruments and base logger shared by the use
// cases of one service. Build it once at wiring time.
type Instrument struct {
	tracer observability.Tracer
	// Base logger with fixed fields prebound (vendor must remain hidden).
	log observability.Logger

	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewInstrument(tel observability.Observability, service string) *Instrument {
	if tel == nil {
		tel = observability.Nop()
	}
	m := tel.Metrics()
	return &Instrument{
		tracer:       tel.Tracer(),
		log:          tel.Logger().With(observability.F("service", service)),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
	}
}

func (in *Instrument) Logger() observability.Logger { return in.log }

// External records one call to an outside peer.
func (in *Instrument) External(peer, endpoint, outcome string, start time.Time) {
	in.extCounter.Add(1,
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
		observability.L("outcome", outcome),
	)
	in.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
	)
}

// Run tracks a single use case execution from Begin to End.
type Run struct {
	in      *Instrument
	ctx     context.Context
	span    trace.Span
	start   time.Time
	useCase string
	log     observability.Logger

	outcome string
	status  string
	fields  []observability.Field
}

// Begin opens the span and the request-scoped logger for useCase. The returned
// context carries both.
func (in *Instrument) Begin(ctx context.Context, useCase, spanName string, attrs ...attribute.KeyValue) (context.Context, *Run) {
	attrs = append([]attribute.KeyValue{attribute.String("use_case", useCase)}, attrs...)
	ctx, span := in.tracer.Start(ctx, spanPrefix+spanName, attrs...)
	ctx, logger := logctx.Enrich(ctx, in.log, observability.F("use_case", useCase))
	return ctx, &Run{
		in:      in,
		ctx:     ctx,
		span:    span,
		start:   time.Now(),
		useCase: useCase,
		log:     logger,
		outcome: outcomeSuccess,
		status:  statusOK,
	}
}

func (r *Run) Logger() observability.Logger { return r.log }

func (r *Run) Span() trace.Span { return r.span }

// Fail marks the run failed with err's machine code and returns err unchanged.
func (r *Run) Fail(err error) error {
	r.outcome = outcomeError
	r.status = apperr.CodeOf(err)
	return err
}

// FailCtx fails the run when ctx is done.
func (r *Run) FailCtx(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		r.outcome, r.status = outcomeError, statusCancelled
		return err
	}
	return nil
}

// Status overrides the status text of a successful run, e.g. IDEMPOTENT_REPLAY.
func (r *Run) Status(s string) { r.status = s }

// Annotate adds fields to the final use_case_done line.
func (r *Run) Annotate(fields ...observability.Field) { r.fields = append(r.fields, fields...) }

func (r *Run) Event(name string, attrs ...attribute.KeyValue) {
	r.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Publish emits e with a short timeout. Failures are recorded, never returned:
// the state change they describe is already durable.
func (r *Run) Publish(ctx context.Context, pub domoutbox.Publisher, e domoutbox.Event) {
	if pub == nil || e == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	start := time.Now()
	outcome := outcomeSuccess
	err := pub.Publish(pubCtx, e)
	if err == nil && pubCtx.Err() != nil {
		err = pubCtx.Err()
		outcome = "canceled"
	} else if err != nil {
		outcome = outcomeError
	}
	if err != nil {
		r.Annotate(observability.F("event_publish_error", err.Error()))
		r.log.Warn("event_publish_failed",
			observability.F("event", e.EventName()),
			observability.Err(err),
		)
	}
	r.in.External(publishPeer, e.EventName(), outcome, start)
}

// End closes the span, records RED metrics and writes one use_case_done line.
func (r *Run) End(err error) {
	if err != nil && r.outcome == outcomeSuccess {
		r.outcome = outcomeError
		r.status = apperr.CodeOf(err)
	}
	lat := time.Since(r.start).Seconds()

	if err != nil {
		r.span.RecordError(err)
		r.span.SetStatus(codes.Error, r.status)
	} else {
		r.span.SetStatus(codes.Ok, r.status)
	}
	r.span.End()

	r.in.reqCounter.Add(1,
		observability.L("use_case", r.useCase),
		observability.L("outcome", r.outcome),
	)
	r.in.durHistogram.Observe(lat, observability.L("use_case", r.useCase))

	fields := []observability.Field{
		observability.F("outcome", r.outcome),
		observability.F("status", r.status),
		observability.F("latency_seconds", lat),
	}
	if sc := trace.SpanContextFromContext(r.ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	fields = append(fields, r.fields...)
	if err != nil {
		fields = append(fields, observability.Err(err))
	}

	r.log.Info("use_case_done", fields...)
}
