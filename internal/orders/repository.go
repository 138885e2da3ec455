package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/custshop/custshop/internal/platform/db"
	"github.com/custshop/custshop/internal/platform/httpx"
)

// Repository defines order persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	// LockCart returns the user's cart lines, locking them until the transaction ends.
	LockCart(ctx context.Context, userID int64) ([]CartLine, error)
	ClearCart(ctx context.Context, userID int64) error
	NextNumber(ctx context.Context) (string, error)
	Create(ctx context.Context, o Order) (int64, error)
	InsertItem(ctx context.Context, orderID int64, item Item) error
	Get(ctx context.Context, id int64) (Order, error)
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]Order, int, error)
	List(ctx context.Context, status Status, limit, offset int) ([]Order, int, error)
	// UpdateStatus moves an order between statuses, returning httpx.ErrConflict when
	// it is no longer in from.
	UpdateStatus(ctx context.Context, id int64, from, to Status) error
}

type repository struct {
	db   db.DBTX
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL order repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

func (r *repository) LockCart(ctx context.Context, userID int64) ([]CartLine, error) {
	rows, err := r.db.Query(ctx, `SELECT ci.product_id, p.name, p.is_active, ci.design_id, ci.size, ci.quantity,
	p.base_price::float8, p.currency
FROM cart_items ci
JOIN products p ON p.id = ci.product_id
WHERE ci.user_id = $1
ORDER BY ci.created_at, ci.id
FOR UPDATE OF ci`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []CartLine
	for rows.Next() {
		var l CartLine
		if err := rows.Scan(&l.ProductID, &l.ProductName, &l.ProductActive, &l.DesignID, &l.Size, &l.Quantity,
			&l.UnitPrice, &l.Currency); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *repository) ClearCart(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	return err
}

func (r *repository) NextNumber(ctx context.Context) (string, error) {
	var seq int64
	if err := r.db.QueryRow(ctx, `SELECT nextval('order_number_seq')`).Scan(&seq); err != nil {
		return "", err
	}
	return FormatNumber(seq), nil
}

// FormatNumber renders an order sequence value as a customer-facing number.
func FormatNumber(seq int64) string {
	return fmt.Sprintf("CS-%06d", seq)
}

func (r *repository) Create(ctx context.Context, o Order) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO orders (number, user_id, status, currency, subtotal, shipping_address, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
RETURNING id`, o.Number, o.UserID, string(o.Status), o.Currency, o.Subtotal, o.ShippingAddress).Scan(&id)
	return id, err
}

func (r *repository) InsertItem(ctx context.Context, orderID int64, item Item) error {
	_, err := r.db.Exec(ctx, `INSERT INTO order_items (order_id, product_id, design_id, size, quantity, unit_price, line_total)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, orderID, item.ProductID, item.DesignID, item.Size, item.Quantity, item.UnitPrice, item.LineTotal)
	return err
}

const orderColumns = `id, number, user_id, status, currency, subtotal::float8, shipping_address, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.Number, &o.UserID, &o.Status, &o.Currency, &o.Subtotal, &o.ShippingAddress, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, httpx.ErrNotFound
	}
	return o, err
}

func (r *repository) Get(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return Order{}, err
	}
	rows, err := r.db.Query(ctx, `SELECT oi.id, oi.product_id, p.name, oi.design_id, oi.size, oi.quantity,
	oi.unit_price::float8, oi.line_total::float8
FROM order_items oi
JOIN products p ON p.id = oi.product_id
WHERE oi.order_id = $1
ORDER BY oi.id`, id)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	o.Items = []Item{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.ProductID, &it.ProductName, &it.DesignID, &it.Size, &it.Quantity, &it.UnitPrice, &it.LineTotal); err != nil {
			return Order{}, err
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

func (r *repository) list(ctx context.Context, where string, args []any, limit, offset int) ([]Order, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, orderColumns, where, n+1, n+2)
	rows, err := r.db.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

func (r *repository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]Order, int, error) {
	return r.list(ctx, `user_id = $1`, []any{userID}, limit, offset)
}

func (r *repository) List(ctx context.Context, status Status, limit, offset int) ([]Order, int, error) {
	if status == "" {
		return r.list(ctx, `TRUE`, nil, limit, offset)
	}
	return r.list(ctx, `status = $1`, []any{string(status)}, limit, offset)
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, from, to Status) error {
	tag, err := r.db.Exec(ctx, `UPDATE orders SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`, id, string(from), string(to))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrConflict
	}
	return nil
}
