package designs

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/custshop/custshop/internal/platform/httpx"
)

// Repository defines design persistence.
type Repository interface {
	Create(ctx context.Context, ownerID int64, input CreateInput) (Design, error)
	Get(ctx context.Context, id int64) (Design, error)
	ListByOwner(ctx context.Context, ownerID int64, limit, offset int) ([]Design, int, error)
	ListByStatus(ctx context.Context, status Status, limit, offset int) ([]Design, int, error)
	SetImage(ctx context.Context, id int64, key string) error
	// Transition moves a design from one status to another. It returns httpx.ErrConflict
	// when the design is no longer in the from status.
	Transition(ctx context.Context, id int64, from, to Status, note string) (Design, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL design repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const designColumns = `id, owner_id, product_id, title, image_key, area, pos_x, pos_y, width, height, status, moderation_note, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDesign(row rowScanner) (Design, error) {
	var d Design
	err := row.Scan(&d.ID, &d.OwnerID, &d.ProductID, &d.Title, &d.ImageKey,
		&d.Placement.Area, &d.Placement.X, &d.Placement.Y, &d.Placement.Width, &d.Placement.Height,
		&d.Status, &d.ModerationNote, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Design{}, httpx.ErrNotFound
		}
		return Design{}, err
	}
	return d, nil
}

func (r *repository) Create(ctx context.Context, ownerID int64, in CreateInput) (Design, error) {
	return scanDesign(r.pool.QueryRow(ctx, `INSERT INTO designs (owner_id, product_id, title, area, pos_x, pos_y, width, height, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
RETURNING `+designColumns, ownerID, in.ProductID, in.Title, in.Placement.Area, in.Placement.X, in.Placement.Y,
		in.Placement.Width, in.Placement.Height, string(StatusDraft)))
}

func (r *repository) Get(ctx context.Context, id int64) (Design, error) {
	return scanDesign(r.pool.QueryRow(ctx, `SELECT `+designColumns+` FROM designs WHERE id = $1`, id))
}

func (r *repository) list(ctx context.Context, where string, arg any, limit, offset int) ([]Design, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM designs WHERE `+where, arg).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+designColumns+` FROM designs WHERE `+where+` ORDER BY updated_at DESC, id DESC LIMIT $2 OFFSET $3`, arg, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []Design{}
	for rows.Next() {
		d, err := scanDesign(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

func (r *repository) ListByOwner(ctx context.Context, ownerID int64, limit, offset int) ([]Design, int, error) {
	return r.list(ctx, `owner_id = $1`, ownerID, limit, offset)
}

func (r *repository) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]Design, int, error) {
	return r.list(ctx, `status = $1`, string(status), limit, offset)
}

func (r *repository) SetImage(ctx context.Context, id int64, key string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE designs SET image_key = $2, updated_at = NOW() WHERE id = $1`, id, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

func (r *repository) Transition(ctx context.Context, id int64, from, to Status, note string) (Design, error) {
	d, err := scanDesign(r.pool.QueryRow(ctx, `UPDATE designs SET status = $3, moderation_note = $4, updated_at = NOW()
WHERE id = $1 AND status = $2
RETURNING `+designColumns, id, string(from), string(to), note))
	if errors.Is(err, httpx.ErrNotFound) {
		return Design{}, httpx.ErrConflict
	}
	return d, err
}
