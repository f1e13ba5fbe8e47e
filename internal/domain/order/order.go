package order

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound               = errors.New("order: not found")
	ErrConflict               = errors.New("order: already exists")
	ErrNoLines                = errors.New("order: at least one line is required")
	ErrInvalidQuantity        = errors.New("order: quantity must be greater than zero")
	ErrInvalidPrice           = errors.New("order: unit price must be zero or greater")
	ErrUnknownStatus          = errors.New("order: unknown status")
	ErrInvalidStateTransition = errors.New("order: invalid state transition")
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusCompleted  Status = "completed"
)

// ParseStatus maps an external status string onto a known Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled, StatusCompleted:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// Line is a single product line. ProductName and UnitPrice are snapshots taken
// when the order was placed; later catalog edits never reach them.
type Line struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
}

func (l Line) Subtotal() int64 { return int64(l.Quantity) * l.UnitPrice }

// Address is the shipping destination copied onto the order at creation.
type Address struct {
	FullName   string
	Line1      string
	Line2      string
	City       string
	District   string
	State      string
	PostalCode string
	Country    string
	Phone      string
}

type Order struct {
	ID             string
	UserID         string
	IdempotencyKey string
	Status         Status
	ShippingAddr   *Address
	CreatedAt      time.Time
	UpdatedAt      time.Time

	lines []Line
	total int64
}

// New builds a pending order. The total is derived from the lines here and
// nowhere else.
func New(id, userID, idempotencyKey string, lines []Line, addr *Address) (*Order, error) {
	if len(lines) == 0 {
		return nil, ErrNoLines
	}
	var total int64
	for i, l := range lines {
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("line %d: %w", i, ErrInvalidQuantity)
		}
		if l.UnitPrice < 0 {
			return nil, fmt.Errorf("line %d: %w", i, ErrInvalidPrice)
		}
		total += l.Subtotal()
	}

	now := time.Now().UTC()
	o := &Order{
		ID:             id,
		UserID:         userID,
		IdempotencyKey: idempotencyKey,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
		lines:          append([]Line(nil), lines...),
		total:          total,
	}
	if addr != nil {
		a := *addr
		o.ShippingAddr = &a
	}
	return o, nil
}

// Restore rehydrates a persisted order. It trusts the stored total and status.
func Restore(id, userID, idempotencyKey string, status Status, lines []Line, total int64, addr *Address, createdAt, updatedAt time.Time) *Order {
	return &Order{
		ID:             id,
		UserID:         userID,
		IdempotencyKey: idempotencyKey,
		Status:         status,
		ShippingAddr:   addr,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
		lines:          append([]Line(nil), lines...),
		total:          total,
	}
}

// Lines returns a copy of the order lines.
func (o *Order) Lines() []Line { return append([]Line(nil), o.lines...) }

func (o *Order) TotalPrice() int64 { return o.total }

func (o *Order) OwnedBy(userID string) bool { return userID != "" && o.UserID == userID }

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.lines = append([]Line(nil), o.lines...)
	if o.ShippingAddr != nil {
		a := *o.ShippingAddr
		c.ShippingAddr = &a
	}
	return &c
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}
