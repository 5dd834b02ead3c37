package ledger

import (
	"context"
	"errors"

	"github.com/ksred/klear-trade/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// GetRecentEntries returns the user's latest entries, newest first.
func (d *Database) GetRecentEntries(ctx context.Context, userID string, limit int) ([]types.LedgerEntry, error) {
	var entries []types.LedgerEntry
	if err := d.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// LoadHistory reads the account and its full ledger in append order from
// one transaction, so the pair is a consistent snapshot.
func (d *Database) LoadHistory(ctx context.Context, userID, currency string) (*types.Account, []types.LedgerEntry, error) {
	var (
		account types.Account
		entries []types.LedgerEntry
	)
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND currency = ?", userID, currency).First(&account).Error; err != nil {
			return err
		}
		return tx.Where("account_id = ?", account.AccountID).Order("id ASC").Find(&entries).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	return &account, entries, nil
}
