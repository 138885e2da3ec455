// Package orders turns carts into orders and tracks their fulfilment.
package orders

import "time"

// Status is an order's fulfilment state.
type Status string

// Order statuses.
const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending: {StatusPaid, StatusCancelled},
	StatusPaid:    {StatusShipped, StatusCancelled},
	StatusShipped: {StatusDelivered},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Item is a priced order line.
type Item struct {
	ID          int64   `json:"id"`
	ProductID   int64   `json:"product_id"`
	ProductName string  `json:"product_name"`
	DesignID    *int64  `json:"design_id,omitempty"`
	Size        string  `json:"size,omitempty"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	LineTotal   float64 `json:"line_total"`
}

// Order is a placed order.
type Order struct {
	ID              int64     `json:"id"`
	Number          string    `json:"number"`
	UserID          int64     `json:"user_id"`
	Status          Status    `json:"status"`
	Currency        string    `json:"currency"`
	Subtotal        float64   `json:"subtotal"`
	ShippingAddress string    `json:"shipping_address"`
	Items           []Item    `json:"items"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CartLine is a cart row joined with its product as seen at checkout.
type CartLine struct {
	ProductID     int64
	ProductName   string
	ProductActive bool
	DesignID      *int64
	Size          string
	Quantity      int
	UnitPrice     float64
	Currency      string
}

// CheckoutInput carries the checkout request.
type CheckoutInput struct {
	ShippingAddress string
	IdempotencyKey  string
}

// ListFilter narrows staff order listings.
type ListFilter struct {
	Status  Status
	Page    int
	PerPage int
}
