package domain

import (
	"time"
)

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
)

// IsTerminal returns true once an order can no longer change.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

// DisplayState maps the status onto the remote message state. A cancelled
// order shows as rejected.
func (s OrderStatus) DisplayState() DisplayState {
	switch s {
	case OrderProcessing:
		return DisplayProcessing
	case OrderCompleted:
		return DisplayCompleted
	case OrderCancelled:
		return DisplayRejected
	default:
		return DisplayPending
	}
}

// Order is a points redemption. TotalPoints is debited from the user when
// the order is created and refunded if it is cancelled.
type Order struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	Status      OrderStatus `json:"status"`
	Items       []LineItem  `json:"items"`
	TotalPoints int         `json:"total_points"`
	MessageID   string      `json:"message_id,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// DisplayState maps the order status onto the remote message state.
func (o *Order) DisplayState() DisplayState {
	return o.Status.DisplayState()
}
