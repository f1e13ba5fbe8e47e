package payment

import (
	"context"
	"errors"

	"github.com/Zhima-Mochi/storefront/internal/application"
	"github.com/Zhima-Mochi/storefront/internal/application/apperr"
	domain "github.com/Zhima-Mochi/storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/storefront/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const useCasePaymentWebhook = "payment.webhook"

// WebhookUseCase ingests processor notifications. The signature is checked
// before anything is read or written.
type WebhookUseCase struct {
	verifier   domain.WebhookVerifier
	payments   domain.Repository
	reconciler *Reconciler
	deliveries DeliveryStore
	in         *application.Instrument
}

func NewWebhookUseCase(
	verifier domain.WebhookVerifier,
	payments domain.Repository,
	reconciler *Reconciler,
	deliveries DeliveryStore,
	tel observability.Observability,
) *WebhookUseCase {
	return &WebhookUseCase{
		verifier:   verifier,
		payments:   payments,
		reconciler: reconciler,
		deliveries: deliveries,
		in:         application.NewInstrument(tel, paymentService),
	}
}

type WebhookInput struct {
	Payload   []byte
	Signature string
}

type WebhookResult struct {
	EventID   string
	PaymentID string
	// Ignored marks a verified event that does not concern a payment intent.
	Ignored   bool
	Duplicate bool
	Changed   bool
}

func (uc *WebhookUseCase) Execute(ctx context.Context, cmd WebhookInput) (_ *WebhookResult, err error) {
	ctx, run := uc.in.Begin(ctx, useCasePaymentWebhook, "PaymentWebhook")
	defer func() { run.End(err) }()

	ev, verr := uc.verifier.Verify(cmd.Payload, cmd.Signature)
	if verr != nil {
		return nil, run.Fail(apperr.Wrap(apperr.KindAuthorization, "SIGNATURE_INVALID",
			"webhook signature verification failed", verr))
	}
	run.Span().SetAttributes(
		attribute.String("webhook.event_id", ev.ID),
		attribute.String("webhook.type", ev.Type),
	)
	run.Annotate(
		observability.F("event_id", ev.ID),
		observability.F("event_type", ev.Type),
	)

	if ev.Ref == "" {
		run.Status("EVENT_IGNORED")
		return &WebhookResult{EventID: ev.ID, Ignored: true}, nil
	}

	if uc.seen(ctx, run, ev.ID) {
		run.Status("DUPLICATE_DELIVERY")
		return &WebhookResult{EventID: ev.ID, Duplicate: true}, nil
	}

	p, err := uc.payments.GetByRef(ctx, ev.Ref)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil, run.Fail(apperr.NotFound("PAYMENT_REF_UNKNOWN", "no payment for transaction reference").
			With("transaction_ref", ev.Ref))
	case err != nil:
		return nil, run.Fail(apperr.Internal("PAYMENT_LOOKUP_FAILED", err))
	}

	res, err := uc.reconciler.Apply(ctx, Signal{
		PaymentID: p.ID,
		Outcome:   ev.Outcome,
		Reason:    ev.Reason,
		Source:    SourceWebhook,
	})
	if err != nil {
		return nil, run.Fail(err)
	}

	uc.remember(ctx, run, ev.ID)
	run.Annotate(
		observability.F("payment_id", p.ID),
		observability.F("changed", res.Changed),
	)
	return &WebhookResult{EventID: ev.ID, PaymentID: p.ID, Changed: res.Changed}, nil
}

// seen consults the delivery store. A store failure is logged and treated as
// unseen; applying an outcome twice is harmless.
func (uc *WebhookUseCase) seen(ctx context.Context, run *application.Run, id string) bool {
	if uc.deliveries == nil || id == "" {
		return false
	}
	ok, err := uc.deliveries.Seen(ctx, id)
	if err != nil {
		run.Logger().Warn("webhook_dedup_lookup_failed",
			observability.F("event_id", id),
			observability.Err(err),
		)
		return false
	}
	return ok
}

func (uc *WebhookUseCase) remember(ctx context.Context, run *application.Run, id string) {
	if uc.deliveries == nil || id == "" {
		return
	}
	if err := uc.deliveries.Remember(context.WithoutCancel(ctx), id); err != nil {
		run.Logger().Warn("webhook_dedup_store_failed",
			observability.F("event_id", id),
			observability.Err(err),
		)
	}
}
