// Package fake is an in-process payment processor. It keeps intents in memory,
// settles them on demand and emits webhooks signed with the same scheme the
// verifier checks.
package fake

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	domain "github.com/Zhima-Mochi/storefront/internal/domain/payment"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/gateway"
	"github.com/Zhima-Mochi/storefront/internal/infrastructure/gateway/signature"

	"github.com/google/uuid"
)

type intent struct {
	ref      string
	secret   string
	amount   int64
	currency string
	outcome  domain.Outcome
	reason   string
	canceled bool
}

// Gateway implements domain.Gateway.
type Gateway struct {
	mu      sync.Mutex
	intents map[string]*intent // by ref
	byKey   map[string]string  // idempotency key -> ref
	secret  []byte
	down    error
	now     func() time.Time
}

func New(webhookSecret string) *Gateway {
	return &Gateway{
		intents: make(map[string]*intent),
		byKey:   make(map[string]string),
		secret:  []byte(webhookSecret),
		now:     time.Now,
	}
}

// SetUnavailable makes every subsequent call fail with err; nil restores service.
func (g *Gateway) SetUnavailable(err error) {
	g.mu.Lock()
	g.down = err
	g.mu.Unlock()
}

func (g *Gateway) OpenIntent(ctx context.Context, req domain.IntentRequest) (domain.Intent, error) {
	if err := ctx.Err(); err != nil {
		return domain.Intent{}, fmt.Errorf("%w: %v", domain.ErrGateway, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down != nil {
		return domain.Intent{}, fmt.Errorf("%w: %v", domain.ErrGateway, g.down)
	}
	if req.Amount <= 0 {
		return domain.Intent{}, fmt.Errorf("%w: amount must be positive", domain.ErrGateway)
	}

	if req.IdempotencyKey != "" {
		if ref, ok := g.byKey[req.IdempotencyKey]; ok {
			in := g.intents[ref]
			return domain.Intent{Ref: in.ref, ClientSecret: in.secret}, nil
		}
	}
	ref := "pi_" + uuid.NewString()
	in := &intent{
		ref:      ref,
		secret:   ref + "_secret_" + uuid.NewString(),
		amount:   req.Amount,
		currency: req.Currency,
		outcome:  domain.OutcomePending,
	}
	g.intents[ref] = in
	if req.IdempotencyKey != "" {
		g.byKey[req.IdempotencyKey] = ref
	}
	return domain.Intent{Ref: in.ref, ClientSecret: in.secret}, nil
}

func (g *Gateway) IntentStatus(ctx context.Context, ref string) (domain.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrGateway, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrGateway, g.down)
	}
	in, ok := g.intents[ref]
	if !ok {
		return "", fmt.Errorf("%w: no such intent %q", domain.ErrGateway, ref)
	}
	return in.outcome, nil
}

// Settle records what the customer did with the intent. A decline
// (OutcomeFailed) leaves the intent open to another attempt; success and
// cancellation are final, as with a real processor.
func (g *Gateway) Settle(ref string, outcome domain.Outcome, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	in, ok := g.intents[ref]
	if !ok {
		return fmt.Errorf("fake: no such intent %q", ref)
	}
	switch {
	case in.outcome == domain.OutcomeSucceeded && outcome != domain.OutcomeSucceeded:
		return fmt.Errorf("fake: intent %q already succeeded", ref)
	case in.canceled && outcome != domain.OutcomeFailed:
		return fmt.Errorf("fake: intent %q is canceled", ref)
	case in.canceled:
		return nil
	}
	in.outcome = outcome
	in.reason = reason
	return nil
}

func (g *Gateway) CancelIntent(ctx context.Context, ref string) (domain.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrGateway, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrGateway, g.down)
	}
	in, ok := g.intents[ref]
	if !ok {
		return "", fmt.Errorf("%w: no such intent %q", domain.ErrGateway, ref)
	}
	if in.outcome == domain.OutcomeSucceeded {
		return domain.OutcomeSucceeded, nil
	}
	in.canceled = true
	in.outcome = domain.OutcomeFailed
	return domain.OutcomeFailed, nil
}

type eventObject struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	LastPaymentError string `json:"last_payment_error,omitempty"`
}

type event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object eventObject `json:"object"`
	} `json:"data"`
}

// Webhook renders the notification for ref's current outcome together with its
// signature header.
func (g *Gateway) Webhook(ref string) (payload []byte, header string, err error) {
	g.mu.Lock()
	in, ok := g.intents[ref]
	var snap intent
	if ok {
		snap = *in
	}
	g.mu.Unlock()
	if !ok {
		return nil, "", fmt.Errorf("fake: no such intent %q", ref)
	}

	ev := event{ID: "evt_" + uuid.NewString(), Created: g.now().Unix()}
	switch {
	case snap.canceled:
		ev.Type = gateway.EventIntentCanceled
	case snap.outcome == domain.OutcomeSucceeded:
		ev.Type = gateway.EventIntentSucceeded
	case snap.outcome == domain.OutcomeFailed:
		ev.Type = gateway.EventIntentFailed
	default:
		ev.Type = "payment_intent.created"
	}
	ev.Data.Object = eventObject{
		ID:               snap.ref,
		Status:           string(snap.outcome),
		Amount:           snap.amount,
		Currency:         snap.currency,
		LastPaymentError: snap.reason,
	}
	payload, err = json.Marshal(ev)
	if err != nil {
		return nil, "", err
	}
	return payload, signature.Sign(g.secret, payload, g.now()), nil
}

// Verifier checks and decodes webhooks produced by Gateway.Webhook.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	return &Verifier{secret: []byte(secret), tolerance: tolerance, now: time.Now}
}

func (v *Verifier) Verify(payload []byte, sig string) (domain.WebhookEvent, error) {
	if err := signature.Verify(v.secret, payload, sig, v.tolerance, v.now()); err != nil {
		return domain.WebhookEvent{}, fmt.Errorf("%w: %v", domain.ErrSignature, err)
	}
	var ev event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return domain.WebhookEvent{}, fmt.Errorf("%w: decode event: %v", domain.ErrSignature, err)
	}
	out := domain.WebhookEvent{ID: ev.ID, Type: ev.Type}
	if outcome, ok := gateway.OutcomeForEvent(ev.Type); ok {
		out.Ref = ev.Data.Object.ID
		out.Outcome = outcome
		out.Reason = ev.Data.Object.LastPaymentError
	}
	return out, nil
}
