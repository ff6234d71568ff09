package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"stellium-ask/internal/domain"
	"stellium-ask/internal/domain/ports/repository"
)

var _ repository.CreditLedger = (*CreditLedgerRepo)(nil)

// CreditLedgerRepo keeps the per-user balance on the users row. Deduct is a
// single conditional UPDATE so concurrent sends cannot overdraw.
type CreditLedgerRepo struct {
	pool *pgxpool.Pool
}

func NewCreditLedgerRepo(pool *pgxpool.Pool) *CreditLedgerRepo {
	return &CreditLedgerRepo{pool: pool}
}

func (r *CreditLedgerRepo) Balance(ctx context.Context, qx any, userID string) (int, error) {
	const q = `SELECT credits FROM users WHERE id = $1;`
	var bal int
	if err := pick(r.pool, qx).QueryRow(ctx, q, userID).Scan(&bal); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("balance: %w", err)
	}
	return bal, nil
}

func (r *CreditLedgerRepo) Deduct(ctx context.Context, qx any, userID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: amount %d", domain.ErrInvalidArgument, amount)
	}
	const q = `
UPDATE users SET credits = credits - $2
WHERE id = $1 AND credits >= $2
RETURNING credits;`
	var bal int
	err := pick(r.pool, qx).QueryRow(ctx, q, userID, amount).Scan(&bal)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// either no such user or not enough credits; disambiguate
			if _, berr := r.Balance(ctx, qx, userID); errors.Is(berr, domain.ErrNotFound) {
				return 0, domain.ErrNotFound
			}
			return 0, domain.ErrInsufficientCredits
		}
		return 0, fmt.Errorf("deduct: %w", err)
	}
	return bal, nil
}

func (r *CreditLedgerRepo) Refund(ctx context.Context, qx any, userID string, amount int) (int, error) {
	return r.Grant(ctx, qx, userID, amount)
}

func (r *CreditLedgerRepo) Grant(ctx context.Context, qx any, userID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: amount %d", domain.ErrInvalidArgument, amount)
	}
	const q = `
UPDATE users SET credits = credits + $2
WHERE id = $1
RETURNING credits;`
	var bal int
	err := pick(r.pool, qx).QueryRow(ctx, q, userID, amount).Scan(&bal)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("grant: %w", err)
	}
	return bal, nil
}
