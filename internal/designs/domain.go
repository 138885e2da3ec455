// Package designs manages user artwork placed on product print areas and its
// moderation workflow.
package designs

import "time"

// Status is a design's position in the moderation workflow.
type Status string

// Design statuses.
const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusPublished Status = "published"
)

var transitions = map[Status][]Status{
	StatusDraft:    {StatusPending},
	StatusRejected: {StatusPending},
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusPublished},
}

// CanTransition reports whether a design may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Editable reports whether artwork may still be replaced.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusRejected
}

// Placement positions artwork inside a product print area, in template pixels.
type Placement struct {
	Area   string `json:"area"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Design is a user's artwork for one product.
type Design struct {
	ID             int64     `json:"id"`
	OwnerID        int64     `json:"owner_id"`
	ProductID      int64     `json:"product_id"`
	Title          string    `json:"title"`
	ImageKey       string    `json:"-"`
	ImageURL       string    `json:"image_url,omitempty"`
	Placement      Placement `json:"placement"`
	Status         Status    `json:"status"`
	ModerationNote string    `json:"moderation_note,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CreateInput holds the fields for a new design.
type CreateInput struct {
	ProductID int64
	Title     string
	Placement Placement
}
