package postgres

import (
	"context"
	"fmt"

	"github.com/RnD-Experts-Team/PNE-EO/internal/domain/user"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository writes the local mirror of upstream users. The local
// primary key is the upstream id, so created and updated events both
// resolve to an idempotent upsert.
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Upsert(ctx context.Context, u *user.User) error {
	const query = `
		INSERT INTO users (id, name, email, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, email = EXCLUDED.email, updated_at = NOW()
	`

	_, err := r.exec(ctx).Exec(ctx, query, u.ID, u.Name, u.Email)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}

	return nil
}

func (r *UserRepository) Exists(ctx context.Context, id int64) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`

	var exists bool
	if err := r.query(ctx).QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}

	return exists, nil
}

// UpdateProfile applies a partial update: nil fields are left untouched.
func (r *UserRepository) UpdateProfile(ctx context.Context, id int64, name, email *string) error {
	const query = `
		UPDATE users
		SET name = COALESCE($2, name), email = COALESCE($3, email), updated_at = NOW()
		WHERE id = $1
	`

	_, err := r.exec(ctx).Exec(ctx, query, id, name, email)
	if err != nil {
		return fmt.Errorf("update user profile: %w", err)
	}

	return nil
}

// Delete removes the user and rows depending on it. Conditional delete:
// a missing id is a no-op, not an error.
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	const deleteGroups = `DELETE FROM user_groups WHERE user_id = $1`
	const deleteUser = `DELETE FROM users WHERE id = $1`

	ex := r.exec(ctx)

	if _, err := ex.Exec(ctx, deleteGroups, id); err != nil {
		return fmt.Errorf("delete user groups: %w", err)
	}

	if _, err := ex.Exec(ctx, deleteUser, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	return nil
}

func (r *UserRepository) exec(ctx context.Context) interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
} {
	if tx := GetTx(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *UserRepository) query(ctx context.Context) interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
} {
	if tx := GetTx(ctx); tx != nil {
		return tx
	}
	return r.pool
}
