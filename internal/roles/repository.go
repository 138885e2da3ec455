package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/custshop/custshop/internal/permissions"
	"github.com/custshop/custshop/internal/platform/db"
	"github.com/custshop/custshop/internal/platform/httpx"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	CreateRole(ctx context.Context, input CreateInput) (Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string, mask permissions.Permission) (Role, error)
	DeleteRole(ctx context.Context, id int64) error
	UpsertSystemRole(ctx context.Context, role SystemRole) error
	UserRoles(ctx context.Context, userID int64) ([]Role, error)
	RoleHolders(ctx context.Context, roleID int64) ([]int64, error)
	ReplaceUserRoles(ctx context.Context, userID int64, attach, detach []int64) error
	UserMask(ctx context.Context, userID int64) (permissions.Permission, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = `id, name, description, permissions, is_system, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRole(row rowScanner) (Role, error) {
	var (
		role Role
		mask int64
	)
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &mask, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, httpx.ErrNotFound
		}
		return Role{}, err
	}
	role.Permissions = permissions.Permission(mask)
	role.Mask = uint32(mask)
	return role, nil
}

func collectRoles(rows pgx.Rows) ([]Role, error) {
	defer rows.Close()
	roles := []Role{}
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// ListRoles returns all roles.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY permissions, id`)
	if err != nil {
		return nil, err
	}
	return collectRoles(rows)
}

// GetRole fetches a role by id.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
}

// GetRoleByName fetches a role by its unique name.
func (r *Repository) GetRoleByName(ctx context.Context, name string) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1`, name))
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, input CreateInput) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `INSERT INTO roles (name, description, permissions, is_system, created_at, updated_at)
VALUES ($1, $2, $3, FALSE, NOW(), NOW())
RETURNING `+roleColumns, input.Name, input.Description, int64(input.Permissions)))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Role{}, fmt.Errorf("%w: role %q exists", httpx.ErrDuplicate, input.Name)
		}
		return Role{}, err
	}
	return role, nil
}

// UpdateRole writes name, description and mask.
func (r *Repository) UpdateRole(ctx context.Context, id int64, name, description string, mask permissions.Permission) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `UPDATE roles SET name = $2, description = $3, permissions = $4, updated_at = NOW()
WHERE id = $1
RETURNING `+roleColumns, id, name, description, int64(mask)))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Role{}, fmt.Errorf("%w: role %q exists", httpx.ErrDuplicate, name)
		}
		return Role{}, err
	}
	return role, nil
}

// DeleteRole removes a non-system role.
func (r *Repository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1 AND is_system = FALSE`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}

// UpsertSystemRole creates or resets a built-in role.
func (r *Repository) UpsertSystemRole(ctx context.Context, role SystemRole) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO roles (name, description, permissions, is_system, created_at, updated_at)
VALUES ($1, $2, $3, TRUE, NOW(), NOW())
ON CONFLICT (name) DO UPDATE SET permissions = EXCLUDED.permissions, is_system = TRUE, updated_at = NOW()`,
		role.Name, role.Description, int64(role.Permissions))
	return err
}

// UserRoles lists roles assigned to a user.
func (r *Repository) UserRoles(ctx context.Context, userID int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT r.id, r.name, r.description, r.permissions, r.is_system, r.created_at, r.updated_at
FROM roles r
JOIN user_roles ur ON ur.role_id = r.id
WHERE ur.user_id = $1
ORDER BY r.permissions, r.id`, userID)
	if err != nil {
		return nil, err
	}
	return collectRoles(rows)
}

// RoleHolders lists the ids of users assigned roleID.
func (r *Repository) RoleHolders(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM user_roles WHERE role_id = $1 ORDER BY user_id`, roleID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// ReplaceUserRoles attaches and detaches role assignments in one transaction.
func (r *Repository) ReplaceUserRoles(ctx context.Context, userID int64, attach, detach []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, id := range attach {
			if _, err := tx.Exec(ctx, `INSERT INTO user_roles (user_id, role_id, created_at) VALUES ($1, $2, NOW()) ON CONFLICT DO NOTHING`, userID, id); err != nil {
				if db.IsForeignKeyViolation(err) {
					return fmt.Errorf("%w: unknown user or role", httpx.ErrNotFound)
				}
				return err
			}
		}
		if len(detach) > 0 {
			if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = ANY($2)`, userID, detach); err != nil {
				return err
			}
		}
		return nil
	})
}

// UserMask returns the OR of every assigned role's mask.
func (r *Repository) UserMask(ctx context.Context, userID int64) (permissions.Permission, error) {
	var mask int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(bit_or(r.permissions), 0)
FROM roles r
JOIN user_roles ur ON ur.role_id = r.id
WHERE ur.user_id = $1`, userID).Scan(&mask)
	if err != nil {
		return permissions.None, err
	}
	return permissions.Permission(mask), nil
}

var _ RepositoryPort = (*Repository)(nil)
