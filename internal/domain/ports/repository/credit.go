package repository

import "context"

// CreditLedger owns the per-user credit balance backing the paywall.
// Deduct is atomic: it only succeeds when the balance covers the amount.
type CreditLedger interface {
	Balance(ctx context.Context, qx any, userID string) (int, error)
	// Deduct subtracts amount and returns the new balance, or
	// domain.ErrInsufficientCredits without changing anything.
	Deduct(ctx context.Context, qx any, userID string, amount int) (int, error)
	// Refund returns amount to the balance (failed sends).
	Refund(ctx context.Context, qx any, userID string, amount int) (int, error)
	Grant(ctx context.Context, qx any, userID string, amount int) (int, error)
}
