package ledger

import (
	"context"
	"fmt"

	"portfolio-trader-go/internal/backend"
	"portfolio-trader-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Remote delegates trade commits to the backend's trading endpoints. The
// server enforces the same preconditions and atomicity as the local path;
// reads and valuation still come from the store, so Remote embeds Local for
// everything except Buy and Sell.
type Remote struct {
	*Local
	client backend.Interface
	logger *zap.Logger
}

var _ Ledger = (*Remote)(nil)

// NewRemote creates a Ledger that commits trades through the backend.
func NewRemote(local *Local, client backend.Interface, logger *zap.Logger) *Remote {
	return &Remote{Local: local, client: client, logger: logger}
}

func (r *Remote) Buy(ctx context.Context, accountID, symbol string, class models.AssetClass, quantity, pricePerUnit decimal.Decimal) (decimal.Decimal, error) {
	if !quantity.IsPositive() {
		return decimal.Zero, ErrInvalidQuantity
	}

	resp, err := r.client.PurchaseAsset(ctx, &backend.PurchaseRequest{
		Symbol:       symbol,
		IsCrypto:     class.IsCrypto(),
		Quantity:     quantity,
		PricePerUnit: pricePerUnit,
		TotalCost:    quantity.Mul(pricePerUnit),
	})
	if err != nil {
		return decimal.Zero, err
	}
	if resp.Message == "" {
		return decimal.Zero, fmt.Errorf("malformed purchase response for '%s'", symbol)
	}

	r.logger.Info("Remote buy committed",
		zap.String("account_id", accountID),
		zap.String("symbol", symbol),
		zap.String("new_balance", resp.Transaction.NewBalance.String()),
	)
	r.refreshAfterTrade(ctx, accountID)
	return resp.Transaction.NewBalance, nil
}

func (r *Remote) Sell(ctx context.Context, accountID, symbol string, class models.AssetClass, quantity, pricePerUnit decimal.Decimal) (decimal.Decimal, error) {
	if !quantity.IsPositive() {
		return decimal.Zero, ErrInvalidQuantity
	}

	resp, err := r.client.SellAsset(ctx, &backend.SellRequest{
		Symbol:       symbol,
		IsCrypto:     class.IsCrypto(),
		Quantity:     quantity,
		PricePerUnit: pricePerUnit,
		TotalValue:   quantity.Mul(pricePerUnit),
	})
	if err != nil {
		return decimal.Zero, err
	}
	if resp.Message == "" {
		return decimal.Zero, fmt.Errorf("malformed sell response for '%s'", symbol)
	}

	r.logger.Info("Remote sell committed",
		zap.String("account_id", accountID),
		zap.String("symbol", symbol),
		zap.String("new_balance", resp.Transaction.NewBalance.String()),
	)
	r.refreshAfterTrade(ctx, accountID)
	return resp.Transaction.NewBalance, nil
}
