package migrations

import (
	"github.com/ksred/klear-trade/internal/auth"
	"github.com/ksred/klear-trade/internal/types"
	"gorm.io/gorm"
)

// CreateTradingSchema creates the asset, account, position, order, fill,
// ledger and user tables.
func CreateTradingSchema(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.Asset{},
		&types.Account{},
		&types.Position{},
		&types.Order{},
		&types.Fill{},
		&types.LedgerEntry{},
		&auth.User{},
	)
}
