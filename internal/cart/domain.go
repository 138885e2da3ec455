// Package cart holds each shopper's pending line items.
package cart

import (
	"time"

	"github.com/custshop/custshop/internal/catalog"
)

// MaxQuantity caps the units of a single cart line.
const MaxQuantity = 99

// Item is one cart line priced at the product's current price.
type Item struct {
	ID          int64        `json:"id"`
	ProductID   int64        `json:"product_id"`
	DesignID    *int64       `json:"design_id,omitempty"`
	Size        string       `json:"size,omitempty"`
	Quantity    int          `json:"quantity"`
	ProductName string       `json:"product_name"`
	Kind        catalog.Kind `json:"kind"`
	UnitPrice   float64      `json:"unit_price"`
	Currency    string       `json:"currency"`
	LineTotal   float64      `json:"line_total"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Cart is the priced view of a user's items.
type Cart struct {
	Items    []Item  `json:"items"`
	Count    int     `json:"count"`
	Subtotal float64 `json:"subtotal"`
	Currency string  `json:"currency,omitempty"`
}

// AddInput describes a line to add or merge.
type AddInput struct {
	ProductID int64
	DesignID  *int64
	Size      string
	Quantity  int
}
