package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DemoCurrency is the only cash currency the platform books balances in.
const DemoCurrency = "USD"

// RefTypeTradeFill marks ledger entries produced by an order fill.
const RefTypeTradeFill = "trade_fill"

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

func (t OrderType) Valid() bool {
	return t == OrderTypeMarket || t == OrderTypeLimit
}

type OrderStatus string

const (
	StatusOpen      OrderStatus = "open"
	StatusFilled    OrderStatus = "filled"
	StatusRejected  OrderStatus = "rejected"
	StatusCancelled OrderStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s OrderStatus) Terminal() bool {
	return s == StatusFilled || s == StatusRejected || s == StatusCancelled
}

// Asset is a tradable instrument. Rows are written by the registry seed only.
type Asset struct {
	gorm.Model  `json:"-"`
	AssetID     string          `gorm:"uniqueIndex" json:"asset_id"`
	Symbol      string          `gorm:"uniqueIndex" json:"symbol"`
	Name        string          `json:"name"`
	Kind        string          `json:"kind"` // crypto or stock
	TickSize    decimal.Decimal `gorm:"type:text;not null" json:"tick_size"`
	MinNotional decimal.Decimal `gorm:"type:text;not null" json:"min_notional"`
	Active      bool            `json:"active"`
}

// Account holds a user's cash balance in one currency.
type Account struct {
	gorm.Model    `json:"-"`
	AccountID     string          `gorm:"uniqueIndex" json:"account_id"`
	UserID        string          `gorm:"uniqueIndex:idx_accounts_user_currency" json:"user_id"`
	Currency      string          `gorm:"uniqueIndex:idx_accounts_user_currency" json:"currency"`
	Balance       decimal.Decimal `gorm:"type:text;not null" json:"balance"`
	InitialCredit decimal.Decimal `gorm:"type:text;not null" json:"initial_credit"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Position is a user's holding in one asset. A row exists only while Qty > 0,
// so it is hard deleted rather than soft deleted.
type Position struct {
	ID        uint            `gorm:"primaryKey" json:"-"`
	UserID    string          `gorm:"uniqueIndex:idx_positions_user_asset" json:"user_id"`
	AssetID   string          `gorm:"uniqueIndex:idx_positions_user_asset" json:"asset_id"`
	Qty       decimal.Decimal `gorm:"type:text;not null" json:"qty"`
	AvgPrice  decimal.Decimal `gorm:"type:text;not null" json:"avg_price"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type Order struct {
	gorm.Model `json:"-"`
	OrderID    string              `gorm:"uniqueIndex" json:"order_id"`
	UserID     string              `gorm:"index" json:"user_id"`
	AssetID    string              `gorm:"index" json:"asset_id"`
	Side       Side                `json:"side"`
	Type       OrderType           `gorm:"column:order_type" json:"type"`
	Qty        decimal.Decimal     `gorm:"type:text;not null" json:"qty"`
	LimitPrice decimal.NullDecimal `gorm:"type:text" json:"limit_price"`
	Status     OrderStatus         `gorm:"index" json:"status"`
	Reason     string              `json:"reason,omitempty"`
	Fills      []Fill              `gorm:"foreignKey:OrderID;references:OrderID" json:"fills,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// Fill is an executed settlement of an order. Written once, never updated.
type Fill struct {
	ID        uint            `gorm:"primaryKey" json:"-"`
	FillID    string          `gorm:"uniqueIndex" json:"fill_id"`
	OrderID   string          `gorm:"index" json:"order_id"`
	Price     decimal.Decimal `gorm:"type:text;not null" json:"price"`
	Qty       decimal.Decimal `gorm:"type:text;not null" json:"qty"`
	Fee       decimal.Decimal `gorm:"type:text;not null" json:"fee"`
	CreatedAt time.Time       `json:"created_at"`
}

// LedgerEntry records one balance change. The autoincrement ID gives the
// append order used when replaying the running balance.
type LedgerEntry struct {
	ID           uint            `gorm:"primaryKey" json:"-"`
	EntryID      string          `gorm:"uniqueIndex" json:"entry_id"`
	UserID       string          `gorm:"index" json:"user_id"`
	AccountID    string          `gorm:"index" json:"account_id"`
	Change       decimal.Decimal `gorm:"type:text;not null" json:"change"`
	BalanceAfter decimal.Decimal `gorm:"type:text;not null" json:"balance_after"`
	RefType      string          `json:"ref_type"`
	RefID        string          `json:"ref_id"`
	Meta         string          `json:"meta"` // JSON object describing the source event
	CreatedAt    time.Time       `json:"created_at"`
}

// FillMeta is serialised into LedgerEntry.Meta for trade fills.
type FillMeta struct {
	OrderID string          `json:"orderId"`
	Side    Side            `json:"side"`
	Symbol  string          `json:"symbol"`
	Price   decimal.Decimal `json:"price"`
	Qty     decimal.Decimal `json:"qty"`
	Fee     decimal.Decimal `json:"fee"`
}
