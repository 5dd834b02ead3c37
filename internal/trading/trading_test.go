package trading

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ksred/klear-trade/internal/database"
	"github.com/ksred/klear-trade/internal/ledger"
	"github.com/ksred/klear-trade/internal/portfolio"
	"github.com/ksred/klear-trade/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testClock = time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func price(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(dec(s))
}

type fixture struct {
	t         *testing.T
	db        *gorm.DB
	svc       *Service
	portfolio *portfolio.Service
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "trading.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	seed := []types.Asset{
		{AssetID: "AAPL", Symbol: "AAPL", Name: "Apple Inc.", Kind: "stock", TickSize: dec("0.01"), MinNotional: dec("0.10"), Active: true},
		{AssetID: "BTCUSDT", Symbol: "BTCUSDT", Name: "Bitcoin", Kind: "crypto", TickSize: dec("0.01"), MinNotional: dec("10"), Active: true},
		{AssetID: "DEAD", Symbol: "DEAD", Name: "Delisted", Kind: "stock", TickSize: dec("0.01"), MinNotional: dec("0.10"), Active: false},
	}
	for i := range seed {
		require.NoError(t, db.Create(&seed[i]).Error)
	}

	opts = append([]Option{WithClock(func() time.Time { return testClock })}, opts...)
	return &fixture{
		t:         t,
		db:        db,
		svc:       NewService(db, nil, opts...),
		portfolio: portfolio.NewService(db),
	}
}

func (f *fixture) openAccount(balance string) string {
	f.t.Helper()
	userID := uuid.New().String()
	_, err := f.portfolio.OpenAccount(context.Background(), userID, dec(balance))
	require.NoError(f.t, err)
	return userID
}

func (f *fixture) balance(userID string) decimal.Decimal {
	f.t.Helper()
	account, err := f.portfolio.GetAccount(context.Background(), userID)
	require.NoError(f.t, err)
	return account.Balance
}

func (f *fixture) position(userID, assetID string) *types.Position {
	f.t.Helper()
	positions, err := f.portfolio.ListPositions(context.Background(), userID)
	require.NoError(f.t, err)
	for i := range positions {
		if positions[i].AssetID == assetID {
			return &positions[i]
		}
	}
	return nil
}

func (f *fixture) ledger(userID string) []types.LedgerEntry {
	f.t.Helper()
	var entries []types.LedgerEntry
	require.NoError(f.t, f.db.Where("user_id = ?", userID).Order("id").Find(&entries).Error)
	return entries
}

func (f *fixture) orderCount(userID string) int64 {
	f.t.Helper()
	var n int64
	require.NoError(f.t, f.db.Model(&types.Order{}).Where("user_id = ?", userID).Count(&n).Error)
	return n
}

func (f *fixture) reconcile(userID string) *ledger.Report {
	f.t.Helper()
	report, err := ledger.NewService(f.db).Reconcile(context.Background(), userID)
	require.NoError(f.t, err)
	return report
}

func (f *fixture) submit(userID, assetID string, side types.Side, qty string, ref decimal.NullDecimal) (*OrderResult, error) {
	return f.svc.SubmitOrder(context.Background(), OrderRequest{
		UserID:  userID,
		AssetID: assetID,
		Side:    side,
		Type:    types.OrderTypeMarket,
		Qty:     dec(qty),
	}, ref)
}

func (f *fixture) submitLimit(userID, assetID string, side types.Side, qty, limit string, ref decimal.NullDecimal) (*OrderResult, error) {
	return f.svc.SubmitOrder(context.Background(), OrderRequest{
		UserID:     userID,
		AssetID:    assetID,
		Side:       side,
		Type:       types.OrderTypeLimit,
		Qty:        dec(qty),
		LimitPrice: price(limit),
	}, ref)
}

func TestSubmitOrder_MarketBuyFills(t *testing.T) {
	f := newFixture(t)
	userID := f.openAccount("5000.00")

	result, err := f.submit(userID, "AAPL", types.SideBuy, "0.1", price("100.00"))
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, types.StatusFilled, result.Status)
	require.Len(t, result.Fills, 1)
	assert.True(t, result.Fills[0].Price.Equal(dec("100")))
	assert.True(t, result.Fills[0].Qty.Equal(dec("0.1")))
	assert.True(t, result.Fills[0].Fee.Equal(dec("0.01")))

	assert.True(t, f.balance(userID).Equal(dec("4989.99")), "balance %s", f.balance(userID))

	pos := f.position(userID, "AAPL")
	require.NotNil(t, pos)
	assert.True(t, pos.Qty.Equal(dec("0.1")))
	assert.True(t, pos.AvgPrice.Equal(dec("100")))

	entries := f.ledger(userID)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Change.Equal(dec("-10.01")))
	assert.True(t, entries[0].BalanceAfter.Equal(dec("4989.99")))
	assert.Equal(t, types.RefTypeTradeFill, entries[0].RefType)
	assert.Equal(t, result.Fills[0].ID, entries[0].RefID)

	var meta types.FillMeta
	require.NoError(t, json.Unmarshal([]byte(entries[0].Meta), &meta))
	assert.Equal(t, result.OrderID, meta.OrderID)
	assert.Equal(t, "AAPL", meta.Symbol)

	order, err := f.svc.GetOrder(context.Background(), userID, result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFilled, order.Status)
	assert.True(t, order.CreatedAt.Equal(testClock))
	require.Len(t, order.Fills, 1)

	assert.True(t, f.reconcile(userID).Consistent)
}

func TestSubmitOrder_InsufficientBalancePersistsRejection(t *testing.T) {
	f := newFixture(t)
	userID := f.openAccount("5000.00")

	result, err := f.submit(userID, "AAPL", types.SideBuy, "1000", price("100.00"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.False(t, result.Success)
	assert.Equal(t, CodeInsufficientBalance, result.Error)
	require.NotEmpty(t, result.OrderID)

	order, err := f.svc.GetOrder(context.Background(), userID, result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusRejected, order.Status)
	assert.Contains(t, order.Reason, "insufficient balance")

	assert.True(t, f.balance(userID).Equal(dec("5000")))
	assert.Nil(t, f.position(userID, "AAPL"))
	assert.Empty(t, f.ledger(userID))
}

func TestSubmitOrder_SellWithoutPosition(t *testing.T) {
	f := newFixture(t)
	userID := f.openAccount("5000.00")

	result, err := f.submit(userID, "AAPL", types.SideSell, "1", price("100.00"))
	assert.ErrorIs(t, err, ErrNoPosition)
	assert.Equal(t, CodeNoPosition, result.Error)
	assert.Equal(t, types.StatusRejected, result.Status)

	assert.True(t, f.balance(userID).Equal(dec("5000")))
	assert.Empty(t, f.ledger(userID))

	var fills int64
	require.NoError(t, f.db.Model(&types.Fill{}).Where("order_id = ?", result.OrderID).Count(&fills).Error)
	assert.Zero(t, fills)
}

func TestSubmitOrder_LimitBuyBelowReferenceRests(t *testing.T) {
	f := newFixture(t)
	userID := f.openAccount("5000.00")

	result, err := f.submitLimit(userID, "AAPL", types.SideBuy, "1", "99.00", price("100.00"))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, types.StatusOpen, result.Status)
	assert.Empty(t, result.Fills)

	assert.True(t, f.balance(userID).Equal(dec("5000")))
	assert.Nil(t, f.position(userID, "AAPL"))
	assert.Empty(t, f.ledger(userID))

	open, err := f.svc.ListOrders(context.Background(), userID, types.StatusOpen, 0)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.True(t, open[0].LimitPrice.Valid)
	assert.True(t, open[0].LimitPrice.Decimal.Equal(dec("99")))
}

func TestSubmitOrder_LimitCrossFillsAtLimitPrice(t *testing.T) {
	f := newFixture(t)
	userID := f.openAccount("5000.00")

	result, err := f.submitLimit(userID, "AAPL", types.SideBuy, "2", "101.00", price("100.00"))
	require.NoError(t, err)
	require.Len(t, result.Fills, 1)
	assert.True(t, result.Fills[0].Price.Equal(dec("101")))

	// 5000 - 202 - 0.202
	assert.True(t, f.balance(userID).Equal(dec("4797.798")))

	result, err = f.submitLimit(userID, "AAPL", types.SideSell, "1", "105.00", price("100.00"))
	require.NoError(t, err)
	assert.Equal(t, types.StatusOpen, result.Status)

	result, err = f.submitLimit(userID, "AAPL", types.SideSell, "1", "99.50", price("100.00"))
	require.NoError(t, err)
	assert.Equal(t, types.StatusFilled, result.Status)
	assert.True(t, result.Fills[0].Price.Equal(dec("99.5")))
}

func TestSubmitOrder_LimitWithoutReferenceRests(t *testing.T) {
	f := newFixture(t)
	userID := f.openAccount("5000.00")

	result, err := f.submitLimit(userID, "AAPL", types.SideBuy, "1", "50.00", decimal.NullDecimal{})
	require.NoError(t, err)
	assert.Equal(t, types.StatusOpen, result.Status)
}

func TestSubmitOrder_RejectionsWithoutOrderRow(t *testing.T) {
	f := newFixture(t)
	userID := f.openAccount("5000.00")

	tests := []struct {
		name string
		req  OrderRequest
		want *OrderError
	}{
		{
			name: "unknown asset",
			req:  OrderRequest{UserID: userID, AssetID: "NOPE", Side: types.SideBuy, Type: types.OrderTypeMarket, Qty: dec("1")},
			want: ErrAssetNotFound,
		},
		{
			name: "inactive asset",
			req:  OrderRequest{UserID: userID, AssetID: "DEAD", Side: types.SideBuy, Type: types.OrderTypeMarket, Qty: dec("1")},
			want: ErrAssetInactive,
		},
		{
			name: "unknown account",
			req:  OrderRequest{UserID: "ghost", AssetID: "AAPL", Side: types.SideBuy, Type: types.OrderTypeMarket, Qty: dec("1")},
			want: ErrAccountNotFound,
		},
		{
			name: "zero quantity",
			req:  OrderRequest{UserID: userID, AssetID: "AAPL", Side: types.SideBuy, Type: types.OrderTypeMarket, Qty: dec("0")},
			want: ErrInvalidQuantity,
		},
		{
			name: "negative quantity",
			req:  OrderRequest{UserID: userID, AssetID: "AAPL", Side: types.SideSell, Type: types.OrderTypeMarket, Qty: dec("-1")},
			want: ErrInvalidQuantity,
		},
		{
			name: "limit without price",
			req:  OrderRequest{UserID: userID, AssetID: "AAPL", Side: types.SideBuy, Type: types.OrderTypeLimit, Qty: dec("1")},
			want: ErrMissingLimitPrice,
		},
		{
			name: "bad side",
			req:  OrderRequest{UserID: userID, AssetID: "AAPL", Side: "hold", Type: types.OrderTypeMarket, Qty: dec("1")},
			want: ErrInvalidOrder,
		},
		{
			name: "bad type",
			req:  OrderRequest{UserID: userID, AssetID: "AAPL", Side: types.SideBuy, Type: "stop", Qty: dec("1")},
			want: ErrInvalidOrder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := f.svc.SubmitOrder(context.Background(), tt.req, price("100.00"))
			assert.ErrorIs(t, err, tt.want)
			assert.False(t, result.Success)
			assert.Equal(t, tt.want.Code, result.Error)
			assert.Empty(t, result.OrderID)
		})
	}

	assert.Zero(t, f.orderCount(userID))
	assert.Zero(t, f.orderCount("ghost"))
}

func TestSubmitOrder_RejectionsWithOrderRow(t *testing.T) {
	f := newFixture(t)
	userID := f.openAccount("5000.00")

	t.Run("tick size", func(t *testing.T) {
		result, err := f.submitLimit(userID, "AAPL", types.SideBuy, "1", "100.005", price("100.00"))
		assert.ErrorIs(t, err, ErrTickSizeViolation)
		assert.Equal(t, types.StatusRejected, result.Status)
		assert.NotEmpty(t, result.OrderID)
	})

	t.Run("min notional", func(t *testing.T) {
		result, err := f.submit(userID, "BTCUSDT", types.SideBuy, "0.01", price("100.00"))
		assert.ErrorIs(t, err, ErrBelowMinNotional)
		assert.Equal(t, types.StatusRejected, result.Status)
	})

	t.Run("no market price", func(t *testing.T) {
		result, err := f.submit(userID, "AAPL", types.SideBuy, "1", decimal.NullDecimal{})
		assert.ErrorIs(t, err, ErrNoMarketPrice)
		assert.Equal(t, CodeNoMarketPrice, result.Error)
		assert.Equal(t, types.StatusRejected, result.Status)
	})

	t.Run("non-positive reference counts as missing", func(t *testing.T) {
		_, err := f.submit(userID, "AAPL", types.SideBuy, "1", price("0"))
		assert.ErrorIs(t, err, ErrNoMarketPrice)
	})

	rejected, err := f.svc.ListOrders(context.Background(), userID, types.StatusRejected, 0)
	require.NoError(t, err)
	assert.Len(t, rejected, 4)
	for _, o := range rejected {
		assert.NotEmpty(t, o.Reason)
	}
	assert.True(t, f.balance(userID).Equal(dec("5000")))
	assert.Empty(t, f.ledger(userID))
}

func TestSubmitOrder_TickSizeToleratesFloatNoise(t *testing.T) {
	f := newFixture(t)
	userID := f.openAccount("5000.00")

	// 0.1 + 0.2 as a binary float
	result, err := f.submitLimit(userID, "AAPL", types.SideBuy, "1", "0.30000000000000004", decimal.NullDecimal{})
	require.NoError(t, err)
	assert.Equal(t, types.StatusOpen, result.Status)
}

func TestSubmitOrder_ReferenceSnappedToTick(t *testing.T) {
	f := newFixture(t)
	userID := f.openAccount("5000.00")

	result, err := f.submit(userID, "AAPL", types.SideBuy, "1", price("100.004"))
	require.NoError(t, err)
	assert.True(t, result.Fills[0].Price.Equal(dec("100")))
}

func TestSubmitOrder_WeightedAveragePrice(t *testing.T) {
	f := newFixture(t)
	userID := f.openAccount("5000.00")

	_, err := f.submit(userID, "AAPL", types.SideBuy, "1", price("100.00"))
	require.NoError(t, err)
	_, err = f.submit(userID, "AAPL", types.SideBuy, "3", price("104.00"))
	require.NoError(t, err)

	pos := f.position(userID, "AAPL")
	require.NotNil(t, pos)
	assert.True(t, pos.Qty.Equal(dec("4")))
	assert.True(t, pos.AvgPrice.Equal(dec("103")), "avg %s", pos.AvgPrice)
}

func TestSubmitOrder_SellReducesThenClosesPosition(t *testing.T) {
	f := newFixture(t)
	userID := f.openAccount("5000.00")

	_, err := f.submit(userID, "AAPL", types.SideBuy, "2", price("100.00"))
	require.NoError(t, err)
	assert.True(t, f.balance(userID).Equal(dec("4799.8")))

	_, err = f.submit(userID, "AAPL", types.SideSell, "1", price("110.00"))
	require.NoError(t, err)
	assert.True(t, f.balance(userID).Equal(dec("4909.69")))
	pos := f.position(userID, "AAPL")
	require.NotNil(t, pos)
	assert.True(t, pos.Qty.Equal(dec("1")))
	assert.True(t, pos.AvgPrice.Equal(dec("100")))

	result, err := f.submit(userID, "AAPL", types.SideSell, "2", price("110.00"))
	assert.ErrorIs(t, err, ErrInsufficientPositionQuantity)
	assert.Equal(t, CodeInsufficientPositionQuantity, result.Error)
	assert.True(t, f.balance(userID).Equal(dec("4909.69")))

	_, err = f.submit(userID, "AAPL", types.SideSell, "1", price("110.00"))
	require.NoError(t, err)
	assert.True(t, f.balance(userID).Equal(dec("5019.58")))
	assert.Nil(t, f.position(userID, "AAPL"))

	var rows int64
	require.NoError(t, f.db.Model(&types.Position{}).Where("user_id = ?", userID).Count(&rows).Error)
	assert.Zero(t, rows)

	report := f.reconcile(userID)
	assert.True(t, report.Consistent, "issues: %v", report.Issues)
	assert.Equal(t, 3, report.Entries)
}

func TestSubmitOrder_ResubmittingRejectionNeverMutates(t *testing.T) {
	f := newFixture(t)
	userID := f.openAccount("100.00")

	for i := 0; i < 3; i++ {
		_, err := f.submit(userID, "AAPL", types.SideBuy, "1", price("100.00"))
		assert.ErrorIs(t, err, ErrInsufficientBalance)
	}
	assert.True(t, f.balance(userID).Equal(dec("100")))
	assert.Empty(t, f.ledger(userID))
	assert.Nil(t, f.position(userID, "AAPL"))
	assert.EqualValues(t, 3, f.orderCount(userID))
}

func TestSubmitOrder_FeeRateOption(t *testing.T) {
	f := newFixture(t, WithFeeRate(dec("0.01")))
	userID := f.openAccount("1000.00")

	result, err := f.submit(userID, "AAPL", types.SideBuy, "1", price("100.00"))
	require.NoError(t, err)
	assert.True(t, result.Fills[0].Fee.Equal(dec("1")))
	assert.True(t, f.balance(userID).Equal(dec("899")))
}

func TestSubmitOrder_CancelledContextIsInternalError(t *testing.T) {
	f := newFixture(t)
	userID := f.openAccount("5000.00")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.svc.SubmitOrder(ctx, OrderRequest{
		UserID:  userID,
		AssetID: "AAPL",
		Side:    types.SideBuy,
		Type:    types.OrderTypeMarket,
		Qty:     dec("1"),
	}, price("100.00"))
	assert.ErrorIs(t, err, ErrInternal)
	assert.Equal(t, CodeInternalError, result.Error)
	assert.Zero(t, f.orderCount(userID))
	assert.True(t, f.balance(userID).Equal(dec("5000")))
}

func TestPlanFill_InsufficientBalanceAfterFees(t *testing.T) {
	f := newFixture(t)
	userID := f.openAccount("100.00")

	uow, err := f.svc.db.Begin(context.Background())
	require.NoError(t, err)
	defer uow.Rollback()

	asset, err := uow.Asset("AAPL")
	require.NoError(t, err)
	account, err := uow.Account(userID, types.DemoCurrency)
	require.NoError(t, err)

	order := &types.Order{OrderID: "o-1", UserID: userID, AssetID: "AAPL", Side: types.SideBuy, Qty: dec("1")}
	_, err = f.svc.planFill(uow, order, asset, account, dec("100.00"))
	assert.ErrorIs(t, err, ErrInsufficientBalanceAfterFees)
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	userID := f.openAccount("5000.00")
	ctx := context.Background()

	resting, err := f.submitLimit(userID, "AAPL", types.SideBuy, "1", "90.00", price("100.00"))
	require.NoError(t, err)

	order, err := f.svc.CancelOrder(ctx, userID, resting.OrderID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, order.Status)

	_, err = f.svc.CancelOrder(ctx, userID, resting.OrderID)
	assert.ErrorIs(t, err, ErrOrderNotCancellable)

	filled, err := f.submit(userID, "AAPL", types.SideBuy, "1", price("100.00"))
	require.NoError(t, err)
	_, err = f.svc.CancelOrder(ctx, userID, filled.OrderID)
	assert.ErrorIs(t, err, ErrOrderNotCancellable)

	_, err = f.svc.CancelOrder(ctx, "someone-else", resting.OrderID)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	got, err := f.svc.GetOrder(ctx, userID, filled.OrderID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFilled, got.Status)
}

func TestTransitionOrder_TerminalStatesAreFinal(t *testing.T) {
	f := newFixture(t)
	userID := f.openAccount("5000.00")

	result, err := f.submit(userID, "AAPL", types.SideBuy, "1", price("100.00"))
	require.NoError(t, err)

	uow, err := f.svc.db.Begin(context.Background())
	require.NoError(t, err)
	defer uow.Rollback()

	order, err := uow.Order(result.OrderID, userID)
	require.NoError(t, err)
	require.NotNil(t, order)

	err = uow.TransitionOrder(order, types.StatusRejected, "late")
	assert.ErrorIs(t, err, errOrderNotOpen)
	assert.Equal(t, types.StatusFilled, order.Status)
}

func TestGetOrder_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetOrder(context.Background(), "nobody", "missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestListOrders_NewestFirst(t *testing.T) {
	f := newFixture(t)
	userID := f.openAccount("5000.00")

	tick := testClock
	f.svc.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	var ids []string
	for i := 0; i < 3; i++ {
		result, err := f.submitLimit(userID, "AAPL", types.SideBuy, "1", "90.00", price("100.00"))
		require.NoError(t, err)
		ids = append(ids, result.OrderID)
	}

	orders, err := f.svc.ListOrders(context.Background(), userID, "", 2)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, ids[2], orders[0].OrderID)
	assert.Equal(t, ids[1], orders[1].OrderID)
}

func TestSubmitOrder_ConcurrentBuysNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	userID := f.openAccount("5000.00")

	const workers = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		filled   int
		rejected int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.submit(userID, "AAPL", types.SideBuy, "1", price("300.00"))
			mu.Lock()
			defer mu.Unlock()
			if err == nil && result.Success {
				filled++
				return
			}
			if assert.ErrorIs(t, err, ErrInsufficientBalance) {
				rejected++
			}
		}()
	}
	wg.Wait()

	// Each fill costs 300.30; 16 fit into 5000.
	assert.Equal(t, 16, filled)
	assert.Equal(t, 4, rejected)
	assert.True(t, f.balance(userID).Equal(dec("195.2")), "balance %s", f.balance(userID))

	pos := f.position(userID, "AAPL")
	require.NotNil(t, pos)
	assert.True(t, pos.Qty.Equal(dec("16")))

	report := f.reconcile(userID)
	assert.True(t, report.Consistent, "issues: %v", report.Issues)
	assert.Equal(t, 16, report.Entries)
	assert.Zero(t, f.svc.accounts.Len())
	assert.Zero(t, f.svc.positions.Len())
}

func TestSubmitOrder_ConcurrentUsersAreIndependent(t *testing.T) {
	f := newFixture(t)

	users := make([]string, 5)
	for i := range users {
		users[i] = f.openAccount("1000.00")
	}

	var wg sync.WaitGroup
	for _, userID := range users {
		for j := 0; j < 4; j++ {
			wg.Add(1)
			go func(userID string) {
				defer wg.Done()
				_, err := f.submit(userID, "AAPL", types.SideBuy, "1", price("100.00"))
				assert.NoError(t, err)
			}(userID)
		}
	}
	wg.Wait()

	for _, userID := range users {
		assert.True(t, f.balance(userID).Equal(dec("599.6")))
		assert.True(t, f.reconcile(userID).Consistent)
	}
}
