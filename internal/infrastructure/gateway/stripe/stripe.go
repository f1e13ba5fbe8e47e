// Package stripe adapts Stripe PaymentIntents to the payment gateway port.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domain "github.com/Zhima-Mochi/storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/gateway"

	stripeapi "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

type Gateway struct {
	api *client.API
}

func New(secretKey string) *Gateway {
	return NewWithBackends(secretKey, nil)
}

// NewWithBackends lets tests point the client at a local server.
func NewWithBackends(secretKey string, backends *stripeapi.Backends) *Gateway {
	api := &client.API{}
	api.Init(secretKey, backends)
	return &Gateway{api: api}
}

func (g *Gateway) OpenIntent(ctx context.Context, req domain.IntentRequest) (domain.Intent, error) {
	params := &stripeapi.PaymentIntentParams{
		Amount:   stripeapi.Int64(req.Amount),
		Currency: stripeapi.String(req.Currency),
		AutomaticPaymentMethods: &stripeapi.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripeapi.Bool(true),
		},
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return domain.Intent{}, fmt.Errorf("%w: create intent: %v", domain.ErrGateway, err)
	}
	return domain.Intent{Ref: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (g *Gateway) IntentStatus(ctx context.Context, ref string) (domain.Outcome, error) {
	params := &stripeapi.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Get(ref, params)
	if err != nil {
		return "", fmt.Errorf("%w: get intent %s: %v", domain.ErrGateway, ref, err)
	}
	return outcomeOf(pi), nil
}

// CancelIntent cancels ref. An intent that already succeeded, is processing or
// was cancelled earlier cannot be cancelled; Stripe answers that with
// payment_intent_unexpected_state and the current status is reported instead.
func (g *Gateway) CancelIntent(ctx context.Context, ref string) (domain.Outcome, error) {
	params := &stripeapi.PaymentIntentCancelParams{
		CancellationReason: stripeapi.String(string(stripeapi.PaymentIntentCancellationReasonAbandoned)),
	}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Cancel(ref, params)
	if err == nil {
		return outcomeOf(pi), nil
	}
	var serr *stripeapi.Error
	if errors.As(err, &serr) && serr.Code == stripeapi.ErrorCodePaymentIntentUnexpectedState {
		return g.IntentStatus(ctx, ref)
	}
	return "", fmt.Errorf("%w: cancel intent %s: %v", domain.ErrGateway, ref, err)
}

// A declined attempt returns the intent to requires_payment_method with the
// decline recorded; that is reported as failed, matching payment_failed events.
func outcomeOf(pi *stripeapi.PaymentIntent) domain.Outcome {
	switch pi.Status {
	case stripeapi.PaymentIntentStatusSucceeded:
		return domain.OutcomeSucceeded
	case stripeapi.PaymentIntentStatusCanceled:
		return domain.OutcomeFailed
	case stripeapi.PaymentIntentStatusRequiresPaymentMethod:
		if pi.LastPaymentError != nil {
			return domain.OutcomeFailed
		}
	}
	return domain.OutcomePending
}

// Verifier checks the Stripe-Signature header and decodes intent events.
type Verifier struct {
	secret    string
	tolerance time.Duration
}

func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	return &Verifier{secret: secret, tolerance: tolerance}
}

func (v *Verifier) Verify(payload []byte, sig string) (domain.WebhookEvent, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, sig, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return domain.WebhookEvent{}, fmt.Errorf("%w: %v", domain.ErrSignature, err)
	}

	out := domain.WebhookEvent{ID: ev.ID, Type: string(ev.Type)}
	outcome, ok := gateway.OutcomeForEvent(out.Type)
	if !ok || ev.Data == nil {
		return out, nil
	}
	var pi stripeapi.PaymentIntent
	if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
		return domain.WebhookEvent{}, fmt.Errorf("%w: decode intent: %v", domain.ErrSignature, err)
	}
	out.Ref = pi.ID
	out.Outcome = outcome
	if pi.LastPaymentError != nil {
		out.Reason = pi.LastPaymentError.Msg
	}
	return out, nil
}
