package payment

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound            = errors.New("payment: not found")
	ErrConflict            = errors.New("payment: already exists")
	ErrInvalidAmount       = errors.New("payment: amount must be greater than zero")
	ErrUnknownMethod       = errors.New("payment: unknown method")
	ErrIdempotencyConflict = errors.New("payment: conflicting terminal outcome")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// Method is the payment instrument, fixed when the payment is opened.
type Method string

const (
	MethodCard           Method = "card"
	MethodCashOnDelivery Method = "cod"
)

// ParseMethod resolves the accepted spellings of a payment method.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "card", "stripe":
		return MethodCard, nil
	case "cod", "cash_on_delivery":
		return MethodCashOnDelivery, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}

// RemoteIntent reports whether the method settles through the gateway.
func (m Method) RemoteIntent() bool { return m == MethodCard }

// Outcome is what a processor or a fulfilment agent says happened to a payment.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

func (o Outcome) status() Status {
	switch o {
	case OutcomeSucceeded:
		return StatusCompleted
	case OutcomeFailed:
		return StatusFailed
	}
	return StatusPending
}

type Payment struct {
	ID      string
	OrderID string
	UserID  string
	// Amount is in the smallest currency unit.
	Amount         int64
	Currency       string
	Method         Method
	Status         Status
	TransactionRef string
	ClientSecret   string
	FailureReason  string
	PaidAt         *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func New(id, orderID, userID string, amount int64, currency string, method Method, ref string) (*Payment, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if method != MethodCard && method != MethodCashOnDelivery {
		return nil, ErrUnknownMethod
	}
	now := time.Now().UTC()
	return &Payment{
		ID:             id,
		OrderID:        orderID,
		UserID:         userID,
		Amount:         amount,
		Currency:       currency,
		Method:         method,
		Status:         StatusPending,
		TransactionRef: ref,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// CashRef is the synthetic transaction reference of a cash-on-delivery payment.
func CashRef(orderID string) string { return "cod_" + orderID }

// ApplyOutcome moves a pending payment to the terminal status named by outcome.
// Repeating the outcome that already holds is a no-op; contradicting it returns
// ErrIdempotencyConflict and leaves the payment untouched.
func (p *Payment) ApplyOutcome(outcome Outcome, reason string, at time.Time) (bool, error) {
	target := outcome.status()
	if target == StatusPending {
		return false, nil
	}
	if p.Status.Terminal() {
		if p.Status == target {
			return false, nil
		}
		return false, fmt.Errorf("%w: payment %s is %s, got %s", ErrIdempotencyConflict, p.ID, p.Status, outcome)
	}

	p.Status = target
	switch target {
	case StatusCompleted:
		paid := at.UTC()
		p.PaidAt = &paid
		p.FailureReason = ""
	case StatusFailed:
		p.FailureReason = reason
	}
	p.UpdatedAt = at.UTC()
	return true, nil
}

func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	c := *p
	if p.PaidAt != nil {
		t := *p.PaidAt
		c.PaidAt = &t
	}
	return &c
}
