package payment

import (
	"time"

	"github.com/Zhima-Mochi/storefront/internal/domain/outbox"
)

type CompletedEvent struct {
	PaymentID  string    `json:"payment_id"`
	OrderID    string    `json:"order_id"`
	Amount     int64     `json:"amount"`
	Source     string    `json:"source"`
	PaidAt     time.Time `json:"paid_at"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (CompletedEvent) EventName() string { return "payment.completed" }

func (e CompletedEvent) AggregateID() string { return e.OrderID }

type FailedEvent struct {
	PaymentID  string    `json:"payment_id"`
	OrderID    string    `json:"order_id"`
	Reason     string    `json:"reason"`
	Source     string    `json:"source"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (FailedEvent) EventName() string { return "payment.failed" }

func (e FailedEvent) AggregateID() string { return e.OrderID }

// NewOutcomeEvent returns the event for a payment that just reached a terminal status.
func NewOutcomeEvent(p *Payment, source string) outbox.Event {
	now := time.Now().UTC()
	if p.Status == StatusCompleted {
		e := CompletedEvent{PaymentID: p.ID, OrderID: p.OrderID, Amount: p.Amount, Source: source, OccurredAt: now}
		if p.PaidAt != nil {
			e.PaidAt = *p.PaidAt
		}
		return e
	}
	return FailedEvent{PaymentID: p.ID, OrderID: p.OrderID, Reason: p.FailureReason, Source: source, OccurredAt: now}
}
