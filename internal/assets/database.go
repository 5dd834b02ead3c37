package assets

import (
	"context"

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

// InsertIfMissing creates the asset unless one with the same id already
// exists. Existing rows are never overwritten.
func (d *Database) InsertIfMissing(ctx context.Context, asset *types.Asset) (bool, error) {
	result := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "asset_id"}}, DoNothing: true}).
		Create(asset)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (d *Database) GetAsset(ctx context.Context, assetID string) (*types.Asset, error) {
	var asset types.Asset
	if err := d.db.WithContext(ctx).Where("asset_id = ?", assetID).First(&asset).Error; err != nil {
		return nil, err
	}
	return &asset, nil
}

func (d *Database) GetAssetBySymbol(ctx context.Context, symbol string) (*types.Asset, error) {
	var asset types.Asset
	if err := d.db.WithContext(ctx).Where("symbol = ?", symbol).First(&asset).Error; err != nil {
		return nil, err
	}
	return &asset, nil
}

func (d *Database) ListAssets(ctx context.Context) ([]types.Asset, error) {
	var assets []types.Asset
	if err := d.db.WithContext(ctx).Order("kind, symbol").Find(&assets).Error; err != nil {
		return nil, err
	}
	return assets, nil
}
