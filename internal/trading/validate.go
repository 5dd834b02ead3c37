package trading

import (
	"fmt"
	"strings"

	"github.com/ksred/klear-trade/internal/types"
	"github.com/shopspring/decimal"
)

// tickEpsilon absorbs representation error in prices that reached us as
// binary floats before being parsed into decimals.
var tickEpsilon = decimal.New(1, -9)

// checkShape rejects requests that cannot become an order row at all.
func checkShape(req OrderRequest) *OrderError {
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.AssetID) == "" {
		return rejection(CodeInvalidOrder, "user id and asset id are required")
	}
	if !req.Side.Valid() {
		return rejection(CodeInvalidOrder, fmt.Sprintf("invalid side %q", req.Side))
	}
	if !req.Type.Valid() {
		return rejection(CodeInvalidOrder, fmt.Sprintf("invalid order type %q", req.Type))
	}
	return nil
}

// checkQuantity covers the checks that precede order creation: the order
// row requires qty > 0 and a limit price on limit orders.
func checkQuantity(req OrderRequest) *OrderError {
	if !req.Qty.IsPositive() {
		return ErrInvalidQuantity
	}
	if req.Type == types.OrderTypeLimit && (!req.LimitPrice.Valid || !req.LimitPrice.Decimal.IsPositive()) {
		return ErrMissingLimitPrice
	}
	return nil
}

// onTick reports whether price is a multiple of tick within tickEpsilon.
func onTick(price, tick decimal.Decimal) bool {
	if !tick.IsPositive() {
		return true
	}
	rem := price.Mod(tick).Abs()
	return rem.LessThanOrEqual(tickEpsilon) || tick.Sub(rem).LessThanOrEqual(tickEpsilon)
}

// notionalPrice is the price used for the min-notional and balance checks:
// the reference price for market orders, the limit price for limit orders.
// Zero means no price is known yet.
func notionalPrice(req OrderRequest, ref decimal.NullDecimal) decimal.Decimal {
	if req.Type == types.OrderTypeLimit {
		return req.LimitPrice.Decimal
	}
	if ref.Valid {
		return ref.Decimal
	}
	return decimal.Zero
}

// validate runs the business rules against the loaded asset and account.
// Sell-side position checks happen at execution time inside the same
// unit of work.
func validate(req OrderRequest, asset *types.Asset, account *types.Account, ref decimal.NullDecimal, feeRate decimal.Decimal) *OrderError {
	if req.Type == types.OrderTypeLimit && !onTick(req.LimitPrice.Decimal, asset.TickSize) {
		return rejection(CodeTickSizeViolation,
			fmt.Sprintf("price must be in increments of %s", asset.TickSize))
	}

	price := notionalPrice(req, ref)
	value := price.Mul(req.Qty)
	if price.IsPositive() && value.LessThan(asset.MinNotional) {
		return rejection(CodeBelowMinNotional,
			fmt.Sprintf("order value $%s must be at least $%s", value.StringFixed(2), asset.MinNotional.StringFixed(2)))
	}

	if req.Side == types.SideBuy && price.IsPositive() {
		required := value.Mul(decimal.NewFromInt(1).Add(feeRate))
		if account.Balance.LessThan(required) {
			return rejection(CodeInsufficientBalance,
				fmt.Sprintf("insufficient balance: need $%s, have $%s", required.StringFixed(2), account.Balance.StringFixed(2)))
		}
	}
	return nil
}

// crosses reports whether a limit order is marketable against ref.
func crosses(side types.Side, limit, ref decimal.Decimal) bool {
	if side == types.SideBuy {
		return limit.GreaterThanOrEqual(ref)
	}
	return limit.LessThanOrEqual(ref)
}
