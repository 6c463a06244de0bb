package wallet

import (
	"context"
	"errors"
	"fmt"

	"portfolio-trader-go/internal/backend"
	"portfolio-trader-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrInvalidAmount rejects non-positive top-up and withdrawal amounts.
var ErrInvalidAmount = errors.New("amount must be greater than zero")

// Service drives the cash top-up and withdrawal flow. Payment processing
// itself is external; the service only moves the balance once the processor
// reports the payment complete, and mirrors the adjustment into the local
// store so the ledger sees it as an opaque external balance change.
type Service struct {
	client   backend.Interface
	accounts store.AccountStore
	logger   *zap.Logger
}

// NewService creates a wallet Service.
func NewService(client backend.Interface, accounts store.AccountStore, logger *zap.Logger) *Service {
	return &Service{client: client, accounts: accounts, logger: logger}
}

// Balance returns the remote wallet cash balance.
func (s *Service) Balance(ctx context.Context) (decimal.Decimal, error) {
	return s.client.GetBalance(ctx)
}

// TopUp runs the two-step payment flow: create an intent, confirm it, then
// credit the local account. Returns the new balance reported by the backend.
func (s *Service) TopUp(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}

	clientSecret, err := s.client.CreatePaymentIntent(ctx, amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("top-up failed: %w", err)
	}

	newBalance, err := s.client.ConfirmPayment(ctx, clientSecret, amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("top-up failed: %w", err)
	}

	s.mirrorAdjustment(ctx, accountID, amount)
	s.logger.Info("Wallet top-up complete",
		zap.String("account_id", accountID),
		zap.String("amount", amount.String()),
		zap.String("new_balance", newBalance.String()),
	)
	return newBalance, nil
}

// Withdraw debits the remote wallet and mirrors the debit locally.
func (s *Service) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}

	newBalance, err := s.client.Withdraw(ctx, amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("withdrawal failed: %w", err)
	}

	s.mirrorAdjustment(ctx, accountID, amount.Neg())
	s.logger.Info("Wallet withdrawal complete",
		zap.String("account_id", accountID),
		zap.String("amount", amount.String()),
		zap.String("new_balance", newBalance.String()),
	)
	return newBalance, nil
}

// mirrorAdjustment applies the confirmed external balance change to the
// local store. The payment already settled remotely, so a local failure is
// logged for reconciliation rather than surfaced.
func (s *Service) mirrorAdjustment(ctx context.Context, accountID string, delta decimal.Decimal) {
	if _, err := s.accounts.AdjustBalance(ctx, accountID, delta); err != nil {
		s.logger.Error("Failed to mirror external balance adjustment",
			zap.String("account_id", accountID),
			zap.String("delta", delta.String()),
			zap.Error(err),
		)
	}
}
