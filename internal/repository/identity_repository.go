package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/academic-records/internal/models"
	"github.com/noah-isme/academic-records/pkg/database"
)

var identityTables = []string{"permissions", "roles", "role_permissions", "users", "user_roles"}

var (
	ensurePermissionSQL = ensureStatement(
		`INSERT INTO permissions (name, description) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
		`SELECT id FROM permissions WHERE name = $1`)
	ensureRoleSQL = ensureStatement(
		`INSERT INTO roles (name, description) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
		`SELECT id FROM roles WHERE name = $1`)
	ensureUserSQL = ensureStatement(
		`INSERT INTO users (name, email, username, password) VALUES ($1, $2, $3, $4) ON CONFLICT (email) DO NOTHING`,
		`SELECT id FROM users WHERE email = $2`)
)

// IdentityRepository reads and writes the identity store. Its user ids are
// the values other stores hold as models.UserRef.
type IdentityRepository struct {
	db *sqlx.DB
}

// NewIdentityRepository constructs the repository.
func NewIdentityRepository(db *sqlx.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// WithinTx runs fn inside one identity-store transaction.
func (r *IdentityRepository) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return database.RunInTx(ctx, r.db, nil, fn)
}

func (r *IdentityRepository) ext(ctx context.Context) sqlx.ExtContext {
	return database.Ext(ctx, r.db)
}

// EnsurePermission inserts by name unless present and fills p.ID.
func (r *IdentityRepository) EnsurePermission(ctx context.Context, p *models.Permission) (bool, error) {
	id, created, err := ensure(ctx, r.ext(ctx), "ensure permission", ensurePermissionSQL, p.Name, p.Description)
	p.ID = id
	return created, err
}

// EnsureRole inserts by name unless present and fills role.ID.
func (r *IdentityRepository) EnsureRole(ctx context.Context, role *models.Role) (bool, error) {
	id, created, err := ensure(ctx, r.ext(ctx), "ensure role", ensureRoleSQL, role.Name, role.Description)
	role.ID = id
	return created, err
}

// LinkRolePermissions grants missing permissions and returns how many were new.
func (r *IdentityRepository) LinkRolePermissions(ctx context.Context, links []models.RolePermission) (int, error) {
	const query = `INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	created := 0
	for _, link := range links {
		res, err := r.ext(ctx).ExecContext(ctx, query, link.RoleID, link.PermissionID)
		if err != nil {
			return created, fmt.Errorf("link role permission: %w", err)
		}
		if ok, err := affectedOne(res, "link role permission"); err != nil {
			return created, err
		} else if ok {
			created++
		}
	}
	return created, nil
}

// EnsureUser inserts by email unless present and fills u.ID. The stored
// password of an existing user is never overwritten.
func (r *IdentityRepository) EnsureUser(ctx context.Context, u *models.User) (bool, error) {
	id, created, err := ensure(ctx, r.ext(ctx), "ensure user", ensureUserSQL, u.Name, u.Email, u.Username, u.Password)
	u.ID = models.UserRef(id)
	return created, err
}

// LinkUserRoles assigns missing roles and returns how many were new.
func (r *IdentityRepository) LinkUserRoles(ctx context.Context, links []models.UserRoleLink) (int, error) {
	const query = `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	created := 0
	for _, link := range links {
		res, err := r.ext(ctx).ExecContext(ctx, query, link.UserID, link.RoleID)
		if err != nil {
			return created, fmt.Errorf("link user role: %w", err)
		}
		if ok, err := affectedOne(res, "link user role"); err != nil {
			return created, err
		} else if ok {
			created++
		}
	}
	return created, nil
}

// FindUserIDByEmail returns sql.ErrNoRows when no user has this email.
func (r *IdentityRepository) FindUserIDByEmail(ctx context.Context, email string) (models.UserRef, error) {
	var id models.UserRef
	if err := sqlx.GetContext(ctx, r.ext(ctx), &id, `SELECT id FROM users WHERE email = $1`, email); err != nil {
		return 0, err
	}
	return id, nil
}

// ExistingUserIDs returns the subset of ids present in the users table.
func (r *IdentityRepository) ExistingUserIDs(ctx context.Context, ids []models.UserRef) (map[models.UserRef]bool, error) {
	existing := make(map[models.UserRef]bool, len(ids))
	if len(ids) == 0 {
		return existing, nil
	}
	raw := make([]int64, len(ids))
	for i, id := range ids {
		raw[i] = id.Int64()
	}
	var found []int64
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &found, `SELECT id FROM users WHERE id = ANY($1)`, pq.Array(raw)); err != nil {
		return nil, fmt.Errorf("lookup user ids: %w", err)
	}
	for _, id := range found {
		existing[models.UserRef(id)] = true
	}
	return existing, nil
}

// Counts returns the row count of every identity table.
func (r *IdentityRepository) Counts(ctx context.Context) (Counts, error) {
	return countTables(ctx, r.ext(ctx), identityTables)
}
