package portfolio

import (
	"context"
	"errors"

	"github.com/ksred/klear-trade/internal/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// CreateAccountIfMissing inserts the account unless the user already has
// one in the same currency.
func (d *Database) CreateAccountIfMissing(ctx context.Context, account *types.Account) error {
	return d.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "currency"}},
			DoNothing: true,
		}).
		Create(account).Error
}

func (d *Database) GetAccount(ctx context.Context, userID, currency string) (*types.Account, error) {
	var account types.Account
	if err := d.db.WithContext(ctx).
		Where("user_id = ? AND currency = ?", userID, currency).
		First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (d *Database) GetPositions(ctx context.Context, userID string) ([]types.Position, error) {
	var positions []types.Position
	if err := d.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("asset_id").
		Find(&positions).Error; err != nil {
		return nil, err
	}
	return positions, nil
}

func (d *Database) GetRecentOrders(ctx context.Context, userID string, limit int) ([]types.Order, error) {
	var orders []types.Order
	if err := d.db.WithContext(ctx).
		Preload("Fills").
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}
