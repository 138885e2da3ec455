package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/custshop/custshop/internal/platform/db"
	"github.com/custshop/custshop/internal/platform/httpx"
)

// Repository defines catalog persistence.
type Repository interface {
	ListProducts(ctx context.Context, filter ListFilter, limit, offset int) ([]Product, int, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	GetProductBySlug(ctx context.Context, slug string) (Product, error)
	CreateProduct(ctx context.Context, input ProductInput) (Product, error)
	UpdateProduct(ctx context.Context, id int64, input ProductInput) (Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	ListTags(ctx context.Context) ([]Tag, error)
	CreateTag(ctx context.Context, name, slug string) (Tag, error)
	DeleteTag(ctx context.Context, id int64) error
	SetProductTags(ctx context.Context, productID int64, tagIDs []int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL catalog repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const productColumns = `p.id, p.slug, p.name, p.description, p.kind, p.base_price::float8, p.currency, p.image_url, p.is_active, p.created_at, p.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Slug, &p.Name, &p.Description, &p.Kind, &p.BasePrice, &p.Currency, &p.ImageURL, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, httpx.ErrNotFound
		}
		return Product{}, err
	}
	p.Tags = []Tag{}
	return p, nil
}

func (r *repository) ListProducts(ctx context.Context, filter ListFilter, limit, offset int) ([]Product, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if !filter.IncludeInactive {
		where += ` AND p.is_active = TRUE`
	}
	if filter.Kind != "" {
		where += ` AND p.kind = ` + arg(string(filter.Kind))
	}
	if filter.Search != "" {
		n := arg("%" + filter.Search + "%")
		where += ` AND (p.name ILIKE ` + n + ` OR p.description ILIKE ` + n + `)`
	}
	if filter.Tag != "" {
		where += ` AND EXISTS (SELECT 1 FROM product_tags pt JOIN tags t ON t.id = pt.tag_id WHERE pt.product_id = p.id AND t.slug = ` + arg(filter.Tag) + `)`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products p`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + productColumns + ` FROM products p` + where + ` ORDER BY p.name, p.id`
	query += ` LIMIT ` + arg(limit) + ` OFFSET ` + arg(offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := r.attachTags(ctx, products); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (r *repository) attachTags(ctx context.Context, products []Product) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]int64, len(products))
	index := make(map[int64]int, len(products))
	for i, p := range products {
		ids[i] = p.ID
		index[p.ID] = i
	}
	rows, err := r.pool.Query(ctx, `SELECT pt.product_id, t.id, t.name, t.slug
FROM product_tags pt
JOIN tags t ON t.id = pt.tag_id
WHERE pt.product_id = ANY($1)
ORDER BY t.name`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			productID int64
			tag       Tag
		)
		if err := rows.Scan(&productID, &tag.ID, &tag.Name, &tag.Slug); err != nil {
			return err
		}
		i := index[productID]
		products[i].Tags = append(products[i].Tags, tag)
	}
	return rows.Err()
}

func (r *repository) getOne(ctx context.Context, where string, arg any) (Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products p WHERE `+where, arg))
	if err != nil {
		return Product{}, err
	}
	list := []Product{p}
	if err := r.attachTags(ctx, list); err != nil {
		return Product{}, err
	}
	return list[0], nil
}

func (r *repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	return r.getOne(ctx, `p.id = $1`, id)
}

func (r *repository) GetProductBySlug(ctx context.Context, slug string) (Product, error) {
	return r.getOne(ctx, `p.slug = $1`, slug)
}

func wrapProductErr(err error, slug string) error {
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: slug %q taken", httpx.ErrDuplicate, slug)
	}
	return err
}

func (r *repository) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `INSERT INTO products AS p (slug, name, description, kind, base_price, currency, image_url, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
RETURNING `+productColumns, in.Slug, in.Name, in.Description, string(in.Kind), in.BasePrice, in.Currency, in.ImageURL, in.IsActive))
	if err != nil {
		return Product{}, wrapProductErr(err, in.Slug)
	}
	return p, nil
}

func (r *repository) UpdateProduct(ctx context.Context, id int64, in ProductInput) (Product, error) {
	_, err := scanProduct(r.pool.QueryRow(ctx, `UPDATE products AS p SET slug = $2, name = $3, description = $4, kind = $5, base_price = $6,
currency = $7, image_url = $8, is_active = $9, updated_at = NOW()
WHERE p.id = $1
RETURNING `+productColumns, id, in.Slug, in.Name, in.Description, string(in.Kind), in.BasePrice, in.Currency, in.ImageURL, in.IsActive))
	if err != nil {
		return Product{}, wrapProductErr(err, in.Slug)
	}
	return r.GetProduct(ctx, id)
}

func (r *repository) DeleteProduct(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: product is referenced by designs or orders; deactivate it instead", httpx.ErrConflict)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func (r *repository) ListTags(ctx context.Context) ([]Tag, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, slug FROM tags ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tags := []Tag{}
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func (r *repository) CreateTag(ctx context.Context, name, slug string) (Tag, error) {
	var t Tag
	err := r.pool.QueryRow(ctx, `INSERT INTO tags (name, slug) VALUES ($1, $2) RETURNING id, name, slug`, name, slug).Scan(&t.ID, &t.Name, &t.Slug)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Tag{}, fmt.Errorf("%w: tag %q exists", httpx.ErrDuplicate, slug)
		}
		return Tag{}, err
	}
	return t, nil
}

func (r *repository) DeleteTag(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tags WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func (r *repository) SetProductTags(ctx context.Context, productID int64, tagIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM product_tags WHERE product_id = $1`, productID); err != nil {
			return err
		}
		for _, id := range tagIDs {
			if _, err := tx.Exec(ctx, `INSERT INTO product_tags (product_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, productID, id); err != nil {
				if db.IsForeignKeyViolation(err) {
					return fmt.Errorf("%w: unknown product or tag", httpx.ErrValidation)
				}
				return err
			}
		}
		return nil
	})
}
