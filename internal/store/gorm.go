package store

import (
	"context"
	"errors"
	"fmt"

	"portfolio-trader-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GormStore implements AccountStore on top of the relational schema, using
// a version column on the account row for optimistic concurrency.
type GormStore struct {
	db         *gorm.DB
	logger     *zap.Logger
	maxRetries int
}

var _ AccountStore = (*GormStore)(nil)

// NewGormStore creates an AccountStore backed by db. maxRetries bounds the
// conflict-retry loop in Transact.
func NewGormStore(db *gorm.DB, logger *zap.Logger, maxRetries int) *GormStore {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &GormStore{db: db, logger: logger, maxRetries: maxRetries}
}

func (s *GormStore) Get(ctx context.Context, accountID string) (*AccountState, error) {
	var account models.Account
	err := s.db.WithContext(ctx).Where("account_id = ?", accountID).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("account '%s': %w", accountID, ErrAccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read account '%s': %w", accountID, err)
	}

	var holdings []models.Holding
	if err := s.db.WithContext(ctx).Where("account_id = ?", accountID).Find(&holdings).Error; err != nil {
		return nil, fmt.Errorf("failed to read holdings for '%s': %w", accountID, err)
	}

	state := &AccountState{
		AccountID: accountID,
		Balance:   account.Balance,
		Holdings:  make(map[string]models.Holding, len(holdings)),
		version:   account.Version,
	}
	for _, h := range holdings {
		state.Holdings[h.Symbol] = h
	}
	return state, nil
}

func (s *GormStore) Transact(ctx context.Context, accountID string, fn TxFunc) error {
	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		current, err := s.Get(ctx, accountID)
		if err != nil {
			return err
		}

		next := current.clone()
		if err := fn(next); err != nil {
			return err
		}

		err = s.commit(ctx, current, next)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return err
		}
		lastErr = err
		s.logger.Debug("Account transaction lost a version race, retrying",
			zap.String("account_id", accountID),
			zap.Int("attempt", attempt+1),
		)
	}
	return fmt.Errorf("account '%s' transaction failed after %d attempts: %w", accountID, s.maxRetries, lastErr)
}

// commit writes next atomically, conditional on the version read into prev.
func (s *GormStore) commit(ctx context.Context, prev, next *AccountState) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Account{}).
			Where("account_id = ? AND version = ?", next.AccountID, prev.version).
			Updates(map[string]interface{}{
				"balance": next.Balance,
				"version": prev.version + 1,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update account '%s': %w", next.AccountID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}

		for symbol, h := range next.Holdings {
			if old, ok := prev.Holdings[symbol]; ok {
				if old.Quantity.Equal(h.Quantity) {
					continue
				}
				err := tx.Model(&models.Holding{}).
					Where("account_id = ? AND symbol = ?", next.AccountID, symbol).
					Update("quantity", h.Quantity).Error
				if err != nil {
					return fmt.Errorf("failed to update holding '%s': %w", symbol, err)
				}
			} else {
				created := h
				if err := tx.Create(&created).Error; err != nil {
					return fmt.Errorf("failed to create holding '%s': %w", symbol, err)
				}
			}
		}

		for symbol := range prev.Holdings {
			if _, ok := next.Holdings[symbol]; ok {
				continue
			}
			err := tx.Where("account_id = ? AND symbol = ?", next.AccountID, symbol).
				Delete(&models.Holding{}).Error
			if err != nil {
				return fmt.Errorf("failed to delete holding '%s': %w", symbol, err)
			}
		}
		return nil
	})
}

func (s *GormStore) Create(ctx context.Context, accountID string, balance decimal.Decimal) error {
	account := models.Account{AccountID: accountID, Balance: balance}
	if err := s.db.WithContext(ctx).FirstOrCreate(&account, models.Account{AccountID: accountID}).Error; err != nil {
		return fmt.Errorf("failed to create account '%s': %w", accountID, err)
	}
	return nil
}

func (s *GormStore) AdjustBalance(ctx context.Context, accountID string, delta decimal.Decimal) (decimal.Decimal, error) {
	var newBalance decimal.Decimal
	err := s.Transact(ctx, accountID, func(st *AccountState) error {
		next := st.Balance.Add(delta)
		if next.IsNegative() {
			return fmt.Errorf("balance adjustment of %s would overdraw account '%s'", delta, accountID)
		}
		st.Balance = next
		newBalance = next
		return nil
	})
	return newBalance, err
}

// GormCatalog implements Catalog over the seeded assets table.
type GormCatalog struct {
	db *gorm.DB
}

var _ Catalog = (*GormCatalog)(nil)

// NewGormCatalog creates a read-only catalog view over db.
func NewGormCatalog(db *gorm.DB) *GormCatalog {
	return &GormCatalog{db: db}
}

func (c *GormCatalog) Lookup(ctx context.Context, symbol string, class models.AssetClass) (*models.Asset, error) {
	var asset models.Asset
	err := c.db.WithContext(ctx).Where("symbol = ? AND class = ?", symbol, class).First(&asset).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("'%s' (%s): %w", symbol, class, ErrAssetNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up asset '%s': %w", symbol, err)
	}
	return &asset, nil
}
