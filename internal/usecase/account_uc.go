package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"stellium-ask/internal/domain/model"
	"stellium-ask/internal/domain/ports/repository"
)

// Compile-time check
var _ AccountUseCase = (*accountUC)(nil)

// AccountUseCase reads and updates the account fields this service owns: the
// profile view (credits plus privacy flags) and the storage preferences the
// message store honors.
type AccountUseCase interface {
	Profile(ctx context.Context, userID string) (*model.User, error)
	// SetPrivacy updates the storage preferences. Turning allowStorage off
	// stops future messages from being persisted; it does not erase history.
	SetPrivacy(ctx context.Context, userID string, allowStorage, encrypt bool) (*model.User, error)
}

type accountUC struct {
	users repository.UserRepository
	log   *zerolog.Logger
}

func NewAccountUseCase(users repository.UserRepository, logger *zerolog.Logger) *accountUC {
	l := logger.With().Str("component", "AccountUC").Logger()
	return &accountUC{users: users, log: &l}
}

func (uc *accountUC) Profile(ctx context.Context, userID string) (*model.User, error) {
	return uc.users.FindByID(ctx, nil, userID)
}

func (uc *accountUC) SetPrivacy(ctx context.Context, userID string, allowStorage, encrypt bool) (*model.User, error) {
	u, err := uc.users.FindByID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	u.AllowMessageStorage = allowStorage
	u.DataEncrypted = encrypt
	if err := uc.users.Save(ctx, nil, u); err != nil {
		return nil, err
	}
	uc.log.Info().Str("user_id", userID).
		Bool("allow_storage", allowStorage).
		Bool("encrypted", encrypt).
		Msg("privacy preferences updated")
	return u, nil
}
