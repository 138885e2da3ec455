package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/custshop/custshop/internal/platform/httpx"
	"github.com/custshop/custshop/internal/shared"
	"github.com/custshop/custshop/jobs"
)

// CheckoutModule scopes checkout idempotency keys.
const CheckoutModule = "orders.checkout"

// EmailQueue enqueues order confirmations.
type EmailQueue interface {
	EnqueueSendEmail(ctx context.Context, payload jobs.SendEmailPayload) (*asynq.TaskInfo, error)
}

// Service implements checkout and order management.
type Service struct {
	repo   Repository
	idem   shared.IdempotencyGuard
	mail   EmailQueue
	audit  shared.AuditRecorder
	logger *slog.Logger
}

// NewService constructs the order service. idem and mail may be nil.
func NewService(repo Repository, idem shared.IdempotencyGuard, mail EmailQueue, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, idem: idem, mail: mail, audit: audit, logger: logger}
}

// Checkout converts the buyer's cart into a pending order priced at current product
// prices and empties the cart, all in one transaction.
func (s *Service) Checkout(ctx context.Context, buyer *shared.Principal, in CheckoutInput) (Order, error) {
	in.ShippingAddress = strings.TrimSpace(in.ShippingAddress)
	if in.ShippingAddress == "" {
		return Order{}, fmt.Errorf("%w: shipping address required", httpx.ErrValidation)
	}

	idemKey := ""
	if key := strings.TrimSpace(in.IdempotencyKey); key != "" && s.idem != nil {
		idemKey = strconv.FormatInt(buyer.UserID, 10) + ":" + key
		if err := s.idem.CheckAndInsert(ctx, idemKey, CheckoutModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Order{}, fmt.Errorf("%w: %w", httpx.ErrConflict, err)
			}
			return Order{}, err
		}
	}

	var orderID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		lines, err := repo.LockCart(ctx, buyer.UserID)
		if err != nil {
			return err
		}
		order, err := priceLines(buyer.UserID, in.ShippingAddress, lines)
		if err != nil {
			return err
		}
		if order.Number, err = repo.NextNumber(ctx); err != nil {
			return fmt.Errorf("order number: %w", err)
		}
		if orderID, err = repo.Create(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		for _, item := range order.Items {
			if err := repo.InsertItem(ctx, orderID, item); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}
		return repo.ClearCart(ctx, buyer.UserID)
	})
	if err != nil {
		if idemKey != "" {
			if derr := s.idem.Delete(ctx, idemKey, CheckoutModule); derr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", derr))
			}
		}
		return Order{}, err
	}

	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	s.confirm(ctx, buyer.Email, order)
	return order, nil
}

func priceLines(userID int64, address string, lines []CartLine) (Order, error) {
	if len(lines) == 0 {
		return Order{}, fmt.Errorf("%w: cart is empty", httpx.ErrValidation)
	}
	order := Order{UserID: userID, Status: StatusPending, ShippingAddress: address, Currency: lines[0].Currency}
	var subtotal float64
	for _, l := range lines {
		if !l.ProductActive {
			return Order{}, fmt.Errorf("%w: %s is no longer available", httpx.ErrValidation, l.ProductName)
		}
		if l.Currency != order.Currency {
			return Order{}, fmt.Errorf("%w: cart mixes %s and %s prices", httpx.ErrValidation, order.Currency, l.Currency)
		}
		item := Item{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			DesignID:    l.DesignID,
			Size:        l.Size,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			LineTotal:   shared.LineTotal(l.Quantity, l.UnitPrice),
		}
		subtotal += item.LineTotal
		order.Items = append(order.Items, item)
	}
	order.Subtotal = shared.RoundMoney(subtotal)
	return order, nil
}

func (s *Service) confirm(ctx context.Context, to string, o Order) {
	if s.mail == nil || to == "" {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Thanks for your order %s.\n\n", o.Number)
	for _, it := range o.Items {
		fmt.Fprintf(&b, "%d x %s", it.Quantity, it.ProductName)
		if it.Size != "" {
			fmt.Fprintf(&b, " (%s)", it.Size)
		}
		fmt.Fprintf(&b, "  %.2f %s\n", it.LineTotal, o.Currency)
	}
	fmt.Fprintf(&b, "\nSubtotal: %.2f %s\nShipping to: %s\n", o.Subtotal, o.Currency, o.ShippingAddress)
	_, err := s.mail.EnqueueSendEmail(ctx, jobs.SendEmailPayload{
		To:      to,
		Subject: "Your CustShop order " + o.Number,
		Body:    b.String(),
	})
	if err != nil {
		s.logger.Warn("enqueue order confirmation", slog.String("order", o.Number), slog.Any("error", err))
	}
}

// Get returns an order visible to viewer: their own, or any order when staff is true.
func (s *Service) Get(ctx context.Context, viewer *shared.Principal, id int64, staff bool) (Order, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if !staff && (viewer == nil || viewer.UserID != o.UserID) {
		return Order{}, httpx.ErrNotFound
	}
	return o, nil
}

// ListMine lists the user's orders, newest first.
func (s *Service) ListMine(ctx context.Context, userID int64, page, perPage int) (shared.Page[Order], error) {
	p := shared.NewPagination(page, perPage, 0)
	items, total, err := s.repo.ListByUser(ctx, userID, p.PerPage, p.Offset())
	if err != nil {
		return shared.Page[Order]{}, err
	}
	return shared.Page[Order]{Items: items, Pagination: shared.NewPagination(p.Page, p.PerPage, total)}, nil
}

// List lists all orders, optionally by status.
func (s *Service) List(ctx context.Context, filter ListFilter) (shared.Page[Order], error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return shared.Page[Order]{}, fmt.Errorf("%w: unknown status %q", httpx.ErrValidation, filter.Status)
	}
	p := shared.NewPagination(filter.Page, filter.PerPage, 0)
	items, total, err := s.repo.List(ctx, filter.Status, p.PerPage, p.Offset())
	if err != nil {
		return shared.Page[Order]{}, err
	}
	return shared.Page[Order]{Items: items, Pagination: shared.NewPagination(p.Page, p.PerPage, total)}, nil
}

// UpdateStatus moves an order along its fulfilment workflow.
func (s *Service) UpdateStatus(ctx context.Context, actorID, id int64, to Status) (Order, error) {
	if !to.Valid() {
		return Order{}, fmt.Errorf("%w: unknown status %q", httpx.ErrValidation, to)
	}
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	return s.move(ctx, actorID, o, to)
}

// Cancel lets a buyer cancel their own pending order.
func (s *Service) Cancel(ctx context.Context, userID, id int64) (Order, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if o.UserID != userID {
		return Order{}, httpx.ErrNotFound
	}
	if o.Status != StatusPending {
		return Order{}, fmt.Errorf("%w: only pending orders can be cancelled", httpx.ErrConflict)
	}
	return s.move(ctx, userID, o, StatusCancelled)
}

func (s *Service) move(ctx context.Context, actorID int64, o Order, to Status) (Order, error) {
	if !CanTransition(o.Status, to) {
		return Order{}, fmt.Errorf("%w: cannot move order from %s to %s", httpx.ErrConflict, o.Status, to)
	}
	if err := s.repo.UpdateStatus(ctx, o.ID, o.Status, to); err != nil {
		return Order{}, err
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "order.status",
		Entity:   "order",
		EntityID: strconv.FormatInt(o.ID, 10),
		Meta:     map[string]any{"from": string(o.Status), "to": string(to)},
	})
	return s.repo.Get(ctx, o.ID)
}
