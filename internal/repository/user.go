package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/panel-commerce/internal/domain/user"
)

const getUserByKeyHashSQL = `SELECT id, name, class, node_group, is_shadow_banned
	FROM users WHERE api_key_hash = $1`

// ErrUserNotFound is returned when no user matches the given API key hash.
var ErrUserNotFound = errors.New("user not found")

var _ user.Repository = (*UserRepository)(nil)

// UserRepository resolves user contexts backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// FindByKeyHash looks up a user by the HMAC-SHA256 hash of their API key.
func (r *UserRepository) FindByKeyHash(ctx context.Context, hash string) (*user.User, error) {
	var u user.User
	err := r.pool.QueryRow(ctx, getUserByKeyHashSQL, hash).Scan(
		&u.ID, &u.Name, &u.Class, &u.NodeGroup, &u.IsShadowBanned,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("finding user by key hash: %w", err)
	}
	return &u, nil
}
