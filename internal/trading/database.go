package trading

import (
	"context"
	"errors"
	"fmt"

	"github.com/ksred/klear-trade/internal/types"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var errOrderNotOpen = errors.New("order is no longer open")

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// Begin opens a unit of work bound to ctx. The caller must end it with
// Commit or Rollback; Rollback after Commit is a no-op so it can be deferred.
func (d *Database) Begin(ctx context.Context) (*UnitOfWork, error) {
	tx := d.db.WithContext(ctx).Begin()
	if err := tx.Error; err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return &UnitOfWork{tx: tx}, nil
}

func (d *Database) GetAsset(ctx context.Context, assetID string) (*types.Asset, error) {
	var asset types.Asset
	if err := d.db.WithContext(ctx).Where("asset_id = ?", assetID).First(&asset).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &asset, nil
}

func (d *Database) GetOrderByOrderIDAndUserID(ctx context.Context, orderID, userID string) (*types.Order, error) {
	var order types.Order
	if err := d.db.WithContext(ctx).
		Preload("Fills").
		Where("order_id = ? AND user_id = ?", orderID, userID).
		First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (d *Database) ListOrders(ctx context.Context, userID string, status types.OrderStatus, limit int) ([]types.Order, error) {
	q := d.db.WithContext(ctx).Preload("Fills").Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var orders []types.Order
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// UnitOfWork scopes every Account, Position, Order, Fill and Ledger write of
// one order to a single transaction.
type UnitOfWork struct {
	tx     *gorm.DB
	closed bool
}

func (u *UnitOfWork) Commit() error {
	if u.closed {
		return errors.New("unit of work already closed")
	}
	u.closed = true
	return u.tx.Commit().Error
}

func (u *UnitOfWork) Rollback() {
	if u.closed {
		return
	}
	u.closed = true
	u.tx.Rollback()
}

// Savepoint marks a point that RollbackTo can return to without discarding
// earlier writes in the same unit of work.
func (u *UnitOfWork) Savepoint(name string) error {
	return u.tx.SavePoint(name).Error
}

func (u *UnitOfWork) RollbackTo(name string) error {
	return u.tx.RollbackTo(name).Error
}

func (u *UnitOfWork) Asset(assetID string) (*types.Asset, error) {
	var asset types.Asset
	return first(u.tx.Where("asset_id = ?", assetID), &asset)
}

func (u *UnitOfWork) Account(userID, currency string) (*types.Account, error) {
	var account types.Account
	return first(u.tx.Where("user_id = ? AND currency = ?", userID, currency), &account)
}

func (u *UnitOfWork) Position(userID, assetID string) (*types.Position, error) {
	var position types.Position
	return first(u.tx.Where("user_id = ? AND asset_id = ?", userID, assetID), &position)
}

func (u *UnitOfWork) Order(orderID, userID string) (*types.Order, error) {
	var order types.Order
	return first(u.tx.Where("order_id = ? AND user_id = ?", orderID, userID), &order)
}

func (u *UnitOfWork) CreateOrder(order *types.Order) error {
	return u.tx.Create(order).Error
}

// TransitionOrder moves an open order to status. Orders that already left
// the open state are never touched again.
func (u *UnitOfWork) TransitionOrder(order *types.Order, status types.OrderStatus, reason string) error {
	result := u.tx.Model(&types.Order{}).
		Where("order_id = ? AND status = ?", order.OrderID, types.StatusOpen).
		Updates(map[string]interface{}{
			"status": status,
			"reason": reason,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errOrderNotOpen
	}
	order.Status = status
	order.Reason = reason
	return nil
}

func (u *UnitOfWork) CreateFill(fill *types.Fill) error {
	return u.tx.Create(fill).Error
}

func (u *UnitOfWork) SetBalance(account *types.Account, balance decimal.Decimal) error {
	result := u.tx.Model(&types.Account{}).
		Where("account_id = ?", account.AccountID).
		Update("balance", balance)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != 1 {
		return fmt.Errorf("account %s not updated", account.AccountID)
	}
	account.Balance = balance
	return nil
}

// SavePosition inserts a new position or updates qty and average price of
// an existing one.
func (u *UnitOfWork) SavePosition(position *types.Position) error {
	if position.ID == 0 {
		return u.tx.Create(position).Error
	}
	return u.tx.Model(position).Updates(map[string]interface{}{
		"qty":       position.Qty,
		"avg_price": position.AvgPrice,
	}).Error
}

func (u *UnitOfWork) DeletePosition(position *types.Position) error {
	return u.tx.
		Where("user_id = ? AND asset_id = ?", position.UserID, position.AssetID).
		Delete(&types.Position{}).Error
}

func (u *UnitOfWork) AppendLedger(entry *types.LedgerEntry) error {
	return u.tx.Create(entry).Error
}

func first[T any](q *gorm.DB, dest *T) (*T, error) {
	if err := q.First(dest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return dest, nil
}
