package trading

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/ksred/klear-trade/internal/types"
	"github.com/shopspring/decimal"
)

// avgPricePlaces bounds the precision of volume-weighted average prices.
const avgPricePlaces = 8

// fillPlan is the complete set of writes for one fill, computed before any
// of them is applied.
type fillPlan struct {
	fill       *types.Fill
	balance    decimal.Decimal
	change     decimal.Decimal
	position   *types.Position
	closeOut   bool
	ledgerMeta types.FillMeta
}

// planFill checks the account and position against a fill of the whole
// order at price and returns the resulting state.
func (s *Service) planFill(uow *UnitOfWork, order *types.Order, asset *types.Asset, account *types.Account, price decimal.Decimal) (*fillPlan, error) {
	notional := price.Mul(order.Qty)
	fee := notional.Mul(s.feeRate)

	plan := &fillPlan{
		fill: &types.Fill{
			FillID:    "FILL_" + uuid.New().String(),
			OrderID:   order.OrderID,
			Price:     price,
			Qty:       order.Qty,
			Fee:       fee,
			CreatedAt: s.now(),
		},
		ledgerMeta: types.FillMeta{
			OrderID: order.OrderID,
			Side:    order.Side,
			Symbol:  asset.Symbol,
			Price:   price,
			Qty:     order.Qty,
			Fee:     fee,
		},
	}

	position, err := uow.Position(order.UserID, order.AssetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load position: %w", err)
	}

	switch order.Side {
	case types.SideBuy:
		plan.change = notional.Add(fee).Neg()
		plan.balance = account.Balance.Add(plan.change)
		if plan.balance.IsNegative() {
			return nil, ErrInsufficientBalanceAfterFees
		}

		if position == nil {
			position = &types.Position{
				UserID:   order.UserID,
				AssetID:  order.AssetID,
				Qty:      order.Qty,
				AvgPrice: price,
			}
		} else {
			newQty := position.Qty.Add(order.Qty)
			cost := position.Qty.Mul(position.AvgPrice).Add(order.Qty.Mul(price))
			position.AvgPrice = cost.DivRound(newQty, avgPricePlaces)
			position.Qty = newQty
		}

	case types.SideSell:
		if position == nil {
			return nil, ErrNoPosition
		}
		if position.Qty.LessThan(order.Qty) {
			return nil, rejection(CodeInsufficientPositionQuantity,
				fmt.Sprintf("insufficient position quantity: have %s, selling %s", position.Qty, order.Qty))
		}
		plan.change = notional.Sub(fee)
		plan.balance = account.Balance.Add(plan.change)
		position.Qty = position.Qty.Sub(order.Qty)
		plan.closeOut = position.Qty.IsZero()
	}

	plan.position = position
	return plan, nil
}

// applyFill writes the fill, the position, the balance and the ledger entry.
func (s *Service) applyFill(uow *UnitOfWork, order *types.Order, account *types.Account, plan *fillPlan) error {
	if err := uow.CreateFill(plan.fill); err != nil {
		return fmt.Errorf("failed to create fill: %w", err)
	}

	if plan.closeOut {
		if err := uow.DeletePosition(plan.position); err != nil {
			return fmt.Errorf("failed to delete position: %w", err)
		}
	} else if err := uow.SavePosition(plan.position); err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}

	if err := uow.SetBalance(account, plan.balance); err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	meta, err := json.Marshal(plan.ledgerMeta)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger meta: %w", err)
	}
	entry := &types.LedgerEntry{
		EntryID:      "LED_" + uuid.New().String(),
		UserID:       order.UserID,
		AccountID:    account.AccountID,
		Change:       plan.change,
		BalanceAfter: plan.balance,
		RefType:      types.RefTypeTradeFill,
		RefID:        plan.fill.FillID,
		Meta:         string(meta),
		CreatedAt:    plan.fill.CreatedAt,
	}
	if err := uow.AppendLedger(entry); err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}
