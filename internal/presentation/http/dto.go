package httppresentation

import (
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Zhima-Mochi/storefront/internal/application"
	"github.com/Zhima-Mochi/storefront/internal/domain/catalog"
	domainOrder "github.com/Zhima-Mochi/storefront/internal/domain/order"
	domainPayment "github.com/Zhima-Mochi/storefront/internal/domain/payment"
)

const (
	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"
	roleAdmin      = "admin"

	// minorExponent is the number of decimal places in one major unit.
	minorExponent = 2
)

// actorFrom reads the identity an upstream auth proxy attached to the request.
func actorFrom(r *http.Request) application.Actor {
	return application.Actor{
		UserID: strings.TrimSpace(r.Header.Get(headerUserID)),
		Admin:  strings.EqualFold(strings.TrimSpace(r.Header.Get(headerUserRole)), roleAdmin),
	}
}

type money struct {
	Amount   string `json:"amount"`
	Minor    int64  `json:"minor"`
	Currency string `json:"currency,omitempty"`
}

func newMoney(minor int64, currency string) money {
	return money{
		Amount:   decimal.New(minor, -minorExponent).StringFixed(minorExponent),
		Minor:    minor,
		Currency: currency,
	}
}

var maxMinor = decimal.NewFromInt(math.MaxInt64)

// parseAmount turns "20.00" into 2000 minor units. Fractions of a minor unit
// are rejected rather than rounded, as are amounts past int64.
func parseAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("amount %q is not a decimal number", s)
	}
	minor := d.Shift(minorExponent)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("amount %q has more than %d decimal places", s, minorExponent)
	}
	if minor.Abs().GreaterThan(maxMinor) {
		return 0, fmt.Errorf("amount %q is out of range", s)
	}
	return minor.IntPart(), nil
}

type addressDTO struct {
	FullName   string `json:"full_name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	District   string `json:"district,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

func (a *addressDTO) domain() *domainOrder.Address {
	if a == nil {
		return nil
	}
	d := domainOrder.Address(*a)
	return &d
}

func addressFrom(a *domainOrder.Address) *addressDTO {
	if a == nil {
		return nil
	}
	d := addressDTO(*a)
	return &d
}

type lineResponse struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   money  `json:"unit_price"`
	Subtotal    money  `json:"subtotal"`
}

type orderResponse struct {
	ID              string             `json:"id"`
	UserID          string             `json:"user_id"`
	Status          domainOrder.Status `json:"status"`
	Total           money              `json:"total"`
	Lines           []lineResponse     `json:"lines"`
	ShippingAddress *addressDTO        `json:"shipping_address,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

func orderFrom(o *domainOrder.Order, currency string) orderResponse {
	lines := o.Lines()
	out := orderResponse{
		ID:              o.ID,
		UserID:          o.UserID,
		Status:          o.Status,
		Total:           newMoney(o.TotalPrice(), currency),
		Lines:           make([]lineResponse, 0, len(lines)),
		ShippingAddress: addressFrom(o.ShippingAddr),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	for _, l := range lines {
		out.Lines = append(out.Lines, lineResponse{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   newMoney(l.UnitPrice, currency),
			Subtotal:    newMoney(l.Subtotal(), currency),
		})
	}
	return out
}

type paymentResponse struct {
	ID             string               `json:"id"`
	OrderID        string               `json:"order_id"`
	Amount         money                `json:"amount"`
	Method         domainPayment.Method `json:"method"`
	Status         domainPayment.Status `json:"status"`
	TransactionRef string               `json:"transaction_ref"`
	ClientSecret   string               `json:"client_secret,omitempty"`
	FailureReason  string               `json:"failure_reason,omitempty"`
	PaidAt         *time.Time           `json:"paid_at,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

func paymentFrom(p *domainPayment.Payment) paymentResponse {
	return paymentResponse{
		ID:             p.ID,
		OrderID:        p.OrderID,
		Amount:         newMoney(p.Amount, p.Currency),
		Method:         p.Method,
		Status:         p.Status,
		TransactionRef: p.TransactionRef,
		ClientSecret:   p.ClientSecret,
		FailureReason:  p.FailureReason,
		PaidAt:         p.PaidAt,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

type productResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UnitPrice money  `json:"unit_price"`
	Stock     int    `json:"stock"`
}

func productFrom(p *catalog.Product, currency string) productResponse {
	return productResponse{ID: p.ID, Name: p.Name, UnitPrice: newMoney(p.UnitPrice, currency), Stock: p.Stock}
}
