package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"stellium-ask/internal/domain"
	"stellium-ask/internal/domain/model"
	"stellium-ask/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*UserRepo)(nil)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) Save(ctx context.Context, qx any, u *model.User) error {
	const q = `
INSERT INTO users (id, credits, allow_message_storage, data_encrypted, created_at)
VALUES ($1,$2,$3,$4,COALESCE($5,NOW()))
ON CONFLICT (id) DO UPDATE SET
  allow_message_storage = EXCLUDED.allow_message_storage,
  data_encrypted = EXCLUDED.data_encrypted;`
	if _, err := pick(r.pool, qx).Exec(ctx, q, u.ID, u.Credits, u.AllowMessageStorage, u.DataEncrypted, nullableTime(u.CreatedAt)); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (r *UserRepo) FindByID(ctx context.Context, qx any, id string) (*model.User, error) {
	const q = `SELECT id, credits, allow_message_storage, data_encrypted, created_at FROM users WHERE id = $1;`
	var u model.User
	err := pick(r.pool, qx).QueryRow(ctx, q, id).
		Scan(&u.ID, &u.Credits, &u.AllowMessageStorage, &u.DataEncrypted, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}
