package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/zaya-storefront/internal/domain/auth"
)

const (
	getUserByTokenHashSQL = `SELECT id, email, display_name, is_admin, token_hash
		FROM users WHERE token_hash = $1`

	upsertUserSQL = `INSERT INTO users (id, email, display_name, is_admin, token_hash)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			display_name = EXCLUDED.display_name,
			is_admin = EXCLUDED.is_admin,
			token_hash = EXCLUDED.token_hash`
)

var _ auth.Repository = (*UserRepository)(nil)

// UserRepository provides user lookups backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// FindByTokenHash looks up a user by the HMAC-SHA256 hash of their token.
func (r *UserRepository) FindByTokenHash(ctx context.Context, hash string) (*auth.Identity, error) {
	var id auth.Identity
	err := r.pool.QueryRow(ctx, getUserByTokenHashSQL, hash).Scan(
		&id.UserID, &id.Email, &id.DisplayName, &id.IsAdmin, &id.TokenHash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("finding user by token hash: %w", err)
	}
	return &id, nil
}

// Upsert creates or replaces a user.
func (r *UserRepository) Upsert(ctx context.Context, id auth.Identity) error {
	_, err := r.pool.Exec(ctx, upsertUserSQL,
		id.UserID, id.Email, id.DisplayName, id.IsAdmin, id.TokenHash,
	)
	if err != nil {
		return fmt.Errorf("upserting user %q: %w", id.UserID, err)
	}
	return nil
}
