package cart

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/custshop/custshop/internal/platform/httpx"
)

// ErrQuantityLimit is returned when merging a line would exceed MaxQuantity.
var ErrQuantityLimit = errors.New("cart line quantity limit reached")

// Repository defines cart persistence.
type Repository interface {
	ListItems(ctx context.Context, userID int64) ([]Item, error)
	// AddItem inserts a line or merges quantity into the matching
	// (product, design, size) line.
	AddItem(ctx context.Context, userID int64, in AddInput) (int64, error)
	UpdateQuantity(ctx context.Context, userID, itemID int64, quantity int) error
	DeleteItem(ctx context.Context, userID, itemID int64) error
	Clear(ctx context.Context, userID int64) error
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL cart repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) ListItems(ctx context.Context, userID int64) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT ci.id, ci.product_id, ci.design_id, ci.size, ci.quantity,
	p.name, p.kind, p.base_price::float8, p.currency, ci.created_at, ci.updated_at
FROM cart_items ci
JOIN products p ON p.id = ci.product_id
WHERE ci.user_id = $1
ORDER BY ci.created_at, ci.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.ProductID, &it.DesignID, &it.Size, &it.Quantity,
			&it.ProductName, &it.Kind, &it.UnitPrice, &it.Currency, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *repository) AddItem(ctx context.Context, userID int64, in AddInput) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO cart_items (user_id, product_id, design_id, size, quantity, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
ON CONFLICT (user_id, product_id, COALESCE(design_id, 0), size)
DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = NOW()
WHERE cart_items.quantity + EXCLUDED.quantity <= $6
RETURNING id`, userID, in.ProductID, in.DesignID, in.Size, in.Quantity, MaxQuantity).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrQuantityLimit
	}
	return id, err
}

func (r *repository) UpdateQuantity(ctx context.Context, userID, itemID int64, quantity int) error {
	tag, err := r.pool.Exec(ctx, `UPDATE cart_items SET quantity = $3, updated_at = NOW() WHERE id = $1 AND user_id = $2`, itemID, userID, quantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func (r *repository) DeleteItem(ctx context.Context, userID, itemID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM cart_items WHERE id = $1 AND user_id = $2`, itemID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func (r *repository) Clear(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	return err
}

func (r *repository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM cart_items WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
