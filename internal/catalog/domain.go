// Package catalog manages sellable products, tags and product print areas.
package catalog

import "time"

// Kind is a product template family.
type Kind string

// Supported product kinds.
const (
	KindTShirt Kind = "tshirt"
	KindHoodie Kind = "hoodie"
	KindMug    Kind = "mug"
	KindTote   Kind = "tote"
)

// Kinds lists every supported kind.
func Kinds() []Kind {
	return []Kind{KindTShirt, KindHoodie, KindMug, KindTote}
}

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

var apparelSizes = []string{"XS", "S", "M", "L", "XL", "XXL"}

// Sizes lists the sizes a kind is sold in. Kinds without sizes return nil.
func (k Kind) Sizes() []string {
	switch k {
	case KindTShirt, KindHoodie:
		return append([]string(nil), apparelSizes...)
	default:
		return nil
	}
}

// AcceptsSize reports whether size is valid for k. Unsized kinds accept only "".
func (k Kind) AcceptsSize(size string) bool {
	sizes := k.Sizes()
	if len(sizes) == 0 {
		return size == ""
	}
	for _, s := range sizes {
		if s == size {
			return true
		}
	}
	return false
}

// Tag labels products for browsing.
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Product is a sellable blank item that designs are printed on.
type Product struct {
	ID          int64     `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Kind        Kind      `json:"kind"`
	BasePrice   float64   `json:"base_price"`
	Currency    string    `json:"currency"`
	ImageURL    string    `json:"image_url"`
	IsActive    bool      `json:"is_active"`
	Tags        []Tag     `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProductInput holds the fields for a new product.
type ProductInput struct {
	Slug        string
	Name        string
	Description string
	Kind        Kind
	BasePrice   float64
	Currency    string
	ImageURL    string
	IsActive    bool
}

// ProductPatch holds optional product changes.
type ProductPatch struct {
	Slug        *string
	Name        *string
	Description *string
	Kind        *Kind
	BasePrice   *float64
	Currency    *string
	ImageURL    *string
	IsActive    *bool
}

// ListFilter narrows product listings.
type ListFilter struct {
	Search          string
	Tag             string
	Kind            Kind
	IncludeInactive bool
	Page            int
	PerPage         int
}
