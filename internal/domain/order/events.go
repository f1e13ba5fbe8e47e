package order

import "time"

// OrderCreatedEvent is emitted once an order and its lines are durable.
type OrderCreatedEvent struct {
	OrderID    string    `json:"order_id"`
	UserID     string    `json:"user_id"`
	TotalPrice int64     `json:"total_price"`
	Lines      []Line    `json:"lines"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (OrderCreatedEvent) EventName() string { return "order.created" }

func (e OrderCreatedEvent) AggregateID() string { return e.OrderID }

func NewOrderCreatedEvent(o *Order) OrderCreatedEvent {
	return OrderCreatedEvent{
		OrderID:    o.ID,
		UserID:     o.UserID,
		TotalPrice: o.TotalPrice(),
		Lines:      o.Lines(),
		OccurredAt: time.Now().UTC(),
	}
}

// StatusChangedEvent is emitted for every effective status change, whether
// driven by payment reconciliation or by an administrator.
type StatusChangedEvent struct {
	OrderID    string    `json:"order_id"`
	From       Status    `json:"from"`
	To         Status    `json:"to"`
	Source     string    `json:"source"`
	Lines      []Line    `json:"lines"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (StatusChangedEvent) EventName() string { return "order.status_changed" }

func (e StatusChangedEvent) AggregateID() string { return e.OrderID }

func NewStatusChangedEvent(o *Order, from Status, source string) StatusChangedEvent {
	return StatusChangedEvent{
		OrderID:    o.ID,
		From:       from,
		To:         o.Status,
		Source:     source,
		Lines:      o.Lines(),
		OccurredAt: time.Now().UTC(),
	}
}
