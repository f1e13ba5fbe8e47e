package payment

import (
	"context"
	"errors"
)

var (
	// ErrGateway wraps every failure reported by, or while talking to, the processor.
	ErrGateway = errors.New("payment: gateway failure")
	// ErrSignature marks a webhook whose signature or timestamp does not verify.
	ErrSignature = errors.New("payment: invalid webhook signature")
)

type IntentRequest struct {
	Amount         int64
	Currency       string
	IdempotencyKey string
	Metadata       map[string]string
}

type Intent struct {
	Ref          string
	ClientSecret string
}

// Gateway is the remote payment processor.
type Gateway interface {
	OpenIntent(ctx context.Context, req IntentRequest) (Intent, error)
	// IntentStatus reports a declined attempt as OutcomeFailed even though the
	// processor still accepts a retry on the same intent.
	IntentStatus(ctx context.Context, ref string) (Outcome, error)
	// CancelIntent closes the intent so no later attempt can capture it, and
	// reports where the intent ended up: OutcomeFailed once cancelled,
	// OutcomeSucceeded when a retry captured it first, OutcomePending when it
	// is mid-capture and cannot be cancelled yet.
	CancelIntent(ctx context.Context, ref string) (Outcome, error)
}

// WebhookEvent is a verified processor notification. An empty Ref marks an
// event type that does not concern payment intents.
type WebhookEvent struct {
	ID      string
	Type    string
	Ref     string
	Outcome Outcome
	Reason  string
}

type WebhookVerifier interface {
	Verify(payload []byte, signature string) (WebhookEvent, error)
}
