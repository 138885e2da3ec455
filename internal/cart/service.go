package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/custshop/custshop/internal/catalog"
	"github.com/custshop/custshop/internal/platform/httpx"
	"github.com/custshop/custshop/internal/shared"
)

// ProductLookup resolves products being added to a cart.
type ProductLookup interface {
	Get(ctx context.Context, id int64) (catalog.Product, error)
}

// DesignChecker decides whether a user may order a product printed with a design.
type DesignChecker interface {
	Orderable(ctx context.Context, userID, productID, designID int64) error
}

// Service implements cart operations.
type Service struct {
	repo     Repository
	products ProductLookup
	designs  DesignChecker
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the cart service.
func NewService(repo Repository, products ProductLookup, designs DesignChecker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, products: products, designs: designs, logger: logger, now: time.Now}
}

// Price fills line totals and computes the cart subtotal.
func Price(items []Item) Cart {
	c := Cart{Items: items}
	if c.Items == nil {
		c.Items = []Item{}
	}
	var subtotal float64
	for i := range c.Items {
		c.Items[i].LineTotal = shared.LineTotal(c.Items[i].Quantity, c.Items[i].UnitPrice)
		subtotal += c.Items[i].LineTotal
		c.Count += c.Items[i].Quantity
		if c.Currency == "" {
			c.Currency = c.Items[i].Currency
		}
	}
	c.Subtotal = shared.RoundMoney(subtotal)
	return c
}

// Get returns the priced cart of userID.
func (s *Service) Get(ctx context.Context, userID int64) (Cart, error) {
	items, err := s.repo.ListItems(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	return Price(items), nil
}

func validQuantity(q int) error {
	if q < 1 || q > MaxQuantity {
		return fmt.Errorf("%w: quantity must be between 1 and %d", httpx.ErrValidation, MaxQuantity)
	}
	return nil
}

// Add puts a line in the cart, merging with an identical line.
func (s *Service) Add(ctx context.Context, userID int64, in AddInput) (Cart, error) {
	if err := validQuantity(in.Quantity); err != nil {
		return Cart{}, err
	}
	product, err := s.products.Get(ctx, in.ProductID)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return Cart{}, fmt.Errorf("%w: unknown product", httpx.ErrValidation)
		}
		return Cart{}, err
	}
	if !product.IsActive {
		return Cart{}, fmt.Errorf("%w: product is not available", httpx.ErrValidation)
	}
	in.Size = strings.ToUpper(strings.TrimSpace(in.Size))
	if !product.Kind.AcceptsSize(in.Size) {
		return Cart{}, fmt.Errorf("%w: size %q is not offered for %s", httpx.ErrValidation, in.Size, product.Kind)
	}
	if in.DesignID != nil {
		if err := s.designs.Orderable(ctx, userID, product.ID, *in.DesignID); err != nil {
			return Cart{}, err
		}
	}
	if _, err := s.repo.AddItem(ctx, userID, in); err != nil {
		if errors.Is(err, ErrQuantityLimit) {
			return Cart{}, fmt.Errorf("%w: %w", httpx.ErrValidation, err)
		}
		return Cart{}, err
	}
	return s.Get(ctx, userID)
}

// UpdateQuantity sets the quantity of one of the user's lines.
func (s *Service) UpdateQuantity(ctx context.Context, userID, itemID int64, quantity int) (Cart, error) {
	if err := validQuantity(quantity); err != nil {
		return Cart{}, err
	}
	if err := s.repo.UpdateQuantity(ctx, userID, itemID, quantity); err != nil {
		return Cart{}, err
	}
	return s.Get(ctx, userID)
}

// Remove deletes one of the user's lines.
func (s *Service) Remove(ctx context.Context, userID, itemID int64) (Cart, error) {
	if err := s.repo.DeleteItem(ctx, userID, itemID); err != nil {
		return Cart{}, err
	}
	return s.Get(ctx, userID)
}

// Clear empties the user's cart.
func (s *Service) Clear(ctx context.Context, userID int64) error {
	return s.repo.Clear(ctx, userID)
}

// PurgeStale deletes lines untouched for longer than olderThan.
func (s *Service) PurgeStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("cart: purge age must be positive")
	}
	n, err := s.repo.PurgeBefore(ctx, s.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("purged stale cart items", slog.Int64("count", n), slog.Duration("older_than", olderThan))
	}
	return n, nil
}
