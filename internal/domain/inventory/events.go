package inventory

import "time"

const (
	ReleaseReasonReservationRolledBack = "reservation_rolled_back"
	ReleaseReasonPersistenceError      = "persist_error"
	ReleaseReasonOrderCancelled        = "order_cancelled"
)

// StockReleasedEvent is emitted whenever reserved units go back on the shelf.
type StockReleasedEvent struct {
	OrderID    string    `json:"order_id"`
	ProductID  string    `json:"product_id"`
	Quantity   int       `json:"quantity"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (StockReleasedEvent) EventName() string { return "inventory.released" }

func (e StockReleasedEvent) AggregateID() string { return e.OrderID }

func NewStockReleasedEvent(orderID, productID string, quantity int, reason string) StockReleasedEvent {
	return StockReleasedEvent{
		OrderID:    orderID,
		ProductID:  productID,
		Quantity:   quantity,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
}
