package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"stellium-ask/internal/domain"
	"stellium-ask/internal/domain/ports/repository"
)

// Compile-time check
var _ EntitlementsUseCase = (*entitlementsUC)(nil)

// EntitlementsUseCase is the credits gate the conversation orchestrator
// consults. It owns affordability checks and the deduct/refund pair around a
// send; it does not decide when to gate.
type EntitlementsUseCase interface {
	Balance(ctx context.Context, userID string) (int, error)
	CanAfford(ctx context.Context, userID string, cost int) (bool, error)
	Deduct(ctx context.Context, userID string, cost int) (int, error)
	Refund(ctx context.Context, userID string, cost int) (int, error)
}

type entitlementsUC struct {
	ledger  repository.CreditLedger
	log     *zerolog.Logger
	devMode bool
}

// NewEntitlementsUseCase builds the gate. In dev mode every check passes and
// nothing is deducted.
func NewEntitlementsUseCase(ledger repository.CreditLedger, logger *zerolog.Logger, devMode bool) *entitlementsUC {
	l := logger.With().Str("component", "EntitlementsUC").Logger()
	return &entitlementsUC{ledger: ledger, log: &l, devMode: devMode}
}

func (uc *entitlementsUC) Balance(ctx context.Context, userID string) (int, error) {
	return uc.ledger.Balance(ctx, nil, userID)
}

func (uc *entitlementsUC) CanAfford(ctx context.Context, userID string, cost int) (bool, error) {
	if uc.devMode {
		return true, nil
	}
	bal, err := uc.ledger.Balance(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return bal >= cost, nil
}

func (uc *entitlementsUC) Deduct(ctx context.Context, userID string, cost int) (int, error) {
	if uc.devMode {
		return 0, nil
	}
	bal, err := uc.ledger.Deduct(ctx, nil, userID, cost)
	if err != nil {
		return 0, err
	}
	uc.log.Debug().Str("user_id", userID).Int("cost", cost).Int("balance", bal).Msg("credits deducted")
	return bal, nil
}

func (uc *entitlementsUC) Refund(ctx context.Context, userID string, cost int) (int, error) {
	if uc.devMode {
		return 0, nil
	}
	bal, err := uc.ledger.Refund(ctx, nil, userID, cost)
	if err != nil {
		return 0, err
	}
	uc.log.Debug().Str("user_id", userID).Int("cost", cost).Int("balance", bal).Msg("credits refunded")
	return bal, nil
}
