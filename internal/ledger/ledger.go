package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"portfolio-trader-go/internal/models"
	"portfolio-trader-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ledger owns the cash balance and per-asset positions of user accounts and
// performs atomic trades against them.
type Ledger interface {
	// GetPosition returns the held quantity for symbol, zero when absent.
	// It never fails; read errors are logged and reported as zero.
	GetPosition(ctx context.Context, accountID, symbol string) decimal.Decimal

	// IsHeld reports whether the account holds a positive quantity of
	// symbol. Equality is by symbol, never by object identity.
	IsHeld(ctx context.Context, accountID, symbol string) bool

	// Refresh re-reads the account and values every held symbol at the
	// latest catalog price. Symbols missing from the catalog are logged
	// and skipped, not fatal.
	Refresh(ctx context.Context, accountID string) (*models.AccountSnapshot, error)

	// Buy purchases quantity units of symbol at pricePerUnit, debiting the
	// cash balance. Returns the new balance on success.
	Buy(ctx context.Context, accountID, symbol string, class models.AssetClass, quantity, pricePerUnit decimal.Decimal) (decimal.Decimal, error)

	// Sell disposes of quantity units of symbol at pricePerUnit, crediting
	// the cash balance. A sell that exhausts the position removes it.
	Sell(ctx context.Context, accountID, symbol string, class models.AssetClass, quantity, pricePerUnit decimal.Decimal) (decimal.Decimal, error)

	// Snapshot returns the most recently published valuation for the
	// account, or nil before the first Refresh.
	Snapshot(accountID string) *models.AccountSnapshot
}

// Local commits trades directly against the document store within one
// optimistic transaction covering balance and holding together.
type Local struct {
	accounts store.AccountStore
	catalog  store.Catalog
	logger   *zap.Logger

	mu        sync.RWMutex
	snapshots map[string]*models.AccountSnapshot
}

var _ Ledger = (*Local)(nil)

// NewLocal creates a Ledger that transacts directly against accounts.
func NewLocal(accounts store.AccountStore, catalog store.Catalog, logger *zap.Logger) *Local {
	return &Local{
		accounts:  accounts,
		catalog:   catalog,
		logger:    logger,
		snapshots: make(map[string]*models.AccountSnapshot),
	}
}

func (l *Local) GetPosition(ctx context.Context, accountID, symbol string) decimal.Decimal {
	state, err := l.accounts.Get(ctx, accountID)
	if err != nil {
		l.logger.Warn("Failed to read position, reporting zero",
			zap.String("account_id", accountID),
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		return decimal.Zero
	}
	return state.Quantity(symbol)
}

func (l *Local) IsHeld(ctx context.Context, accountID, symbol string) bool {
	return l.GetPosition(ctx, accountID, symbol).IsPositive()
}

func (l *Local) Buy(ctx context.Context, accountID, symbol string, class models.AssetClass, quantity, pricePerUnit decimal.Decimal) (decimal.Decimal, error) {
	if !quantity.IsPositive() {
		return decimal.Zero, ErrInvalidQuantity
	}
	cost := quantity.Mul(pricePerUnit)

	var newBalance decimal.Decimal
	err := l.accounts.Transact(ctx, accountID, func(st *store.AccountState) error {
		if cost.GreaterThan(st.Balance) {
			return ErrInsufficientFunds
		}
		if !st.Quantity(symbol).IsPositive() && st.DistinctSymbols(class) >= models.PositionLimit(class) {
			return limitError(class.IsCrypto())
		}
		st.Balance = st.Balance.Sub(cost)
		st.AddToHolding(symbol, class, quantity)
		newBalance = st.Balance
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	l.logger.Info("Buy committed",
		zap.String("account_id", accountID),
		zap.String("symbol", symbol),
		zap.String("quantity", quantity.String()),
		zap.String("cost", cost.String()),
	)
	l.refreshAfterTrade(ctx, accountID)
	return newBalance, nil
}

func (l *Local) Sell(ctx context.Context, accountID, symbol string, class models.AssetClass, quantity, pricePerUnit decimal.Decimal) (decimal.Decimal, error) {
	if !quantity.IsPositive() {
		return decimal.Zero, ErrInvalidQuantity
	}
	proceeds := quantity.Mul(pricePerUnit)

	var newBalance decimal.Decimal
	err := l.accounts.Transact(ctx, accountID, func(st *store.AccountState) error {
		if quantity.GreaterThan(st.Quantity(symbol)) {
			return ErrOversell
		}
		st.Balance = st.Balance.Add(proceeds)
		st.ReduceHolding(symbol, quantity)
		newBalance = st.Balance
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	l.logger.Info("Sell committed",
		zap.String("account_id", accountID),
		zap.String("symbol", symbol),
		zap.String("quantity", quantity.String()),
		zap.String("proceeds", proceeds.String()),
	)
	l.refreshAfterTrade(ctx, accountID)
	return newBalance, nil
}

// refreshAfterTrade runs the implicit post-trade refresh. The trade already
// committed, so a refresh failure is logged rather than surfaced.
func (l *Local) refreshAfterTrade(ctx context.Context, accountID string) {
	if _, err := l.Refresh(ctx, accountID); err != nil {
		l.logger.Warn("Post-trade refresh failed",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
	}
}

func (l *Local) Refresh(ctx context.Context, accountID string) (*models.AccountSnapshot, error) {
	state, err := l.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("refresh failed: %w", err)
	}

	snapshot := buildSnapshot(ctx, state, l.catalog, l.logger)

	l.mu.Lock()
	l.snapshots[accountID] = snapshot
	l.mu.Unlock()
	return snapshot, nil
}

func (l *Local) Snapshot(accountID string) *models.AccountSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshots[accountID]
}

// buildSnapshot joins holdings with catalog prices. Holdings whose symbol
// is missing from the catalog are skipped so one stale entry cannot fail
// the whole valuation.
func buildSnapshot(ctx context.Context, state *store.AccountState, catalog store.Catalog, logger *zap.Logger) *models.AccountSnapshot {
	snapshot := &models.AccountSnapshot{
		AccountID: state.AccountID,
		Balance:   state.Balance,
		Positions: make([]models.Position, 0, len(state.Holdings)),
		TakenAt:   time.Now(),
	}

	symbols := make([]string, 0, len(state.Holdings))
	for symbol := range state.Holdings {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	total := decimal.Zero
	for _, symbol := range symbols {
		h := state.Holdings[symbol]
		asset, err := catalog.Lookup(ctx, symbol, h.Class)
		if err != nil {
			if errors.Is(err, store.ErrAssetNotFound) {
				logger.Warn("Held symbol missing from catalog, skipping valuation",
					zap.String("account_id", state.AccountID),
					zap.String("symbol", symbol),
				)
				continue
			}
			logger.Error("Catalog lookup failed, skipping symbol",
				zap.String("symbol", symbol),
				zap.Error(err),
			)
			continue
		}

		value := h.Quantity.Mul(asset.Price)
		snapshot.Positions = append(snapshot.Positions, models.Position{
			Symbol:      symbol,
			Class:       h.Class,
			Quantity:    h.Quantity,
			Price:       asset.Price,
			MarketValue: value,
		})
		total = total.Add(value)
	}
	snapshot.TotalValue = total
	return snapshot
}
