package repository

import (
	"context"

	"stellium-ask/internal/domain/model"
)

type UserRepository interface {
	Save(ctx context.Context, qx any, u *model.User) error
	FindByID(ctx context.Context, qx any, id string) (*model.User, error)
}
