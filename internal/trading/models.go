package trading

import (
	"net/http"

	"github.com/ksred/klear-trade/internal/types"
	"github.com/shopspring/decimal"
)

// OrderRequest is a caller's order submission.
type OrderRequest struct {
	UserID     string              `json:"-"`
	AssetID    string              `json:"asset_id"`
	Side       types.Side          `json:"side"`
	Type       types.OrderType     `json:"type"`
	Qty        decimal.Decimal     `json:"qty"`
	LimitPrice decimal.NullDecimal `json:"limit_price"`
}

// OrderResult is the outcome of one submission. OrderID is set whenever an
// order row was persisted, including rejected ones.
type OrderResult struct {
	Success bool              `json:"success"`
	OrderID string            `json:"order_id,omitempty"`
	Status  types.OrderStatus `json:"status,omitempty"`
	Fills   []FillResult      `json:"fills,omitempty"`
	Error   ErrorCode         `json:"error,omitempty"`
	Reason  string            `json:"reason,omitempty"`
}

type FillResult struct {
	ID    string          `json:"id"`
	Price decimal.Decimal `json:"price"`
	Qty   decimal.Decimal `json:"qty"`
	Fee   decimal.Decimal `json:"fee"`
}

type ErrorCode string

const (
	CodeAssetNotFound                ErrorCode = "AssetNotFound"
	CodeAccountNotFound              ErrorCode = "AccountNotFound"
	CodeOrderNotFound                ErrorCode = "OrderNotFound"
	CodeInvalidOrder                 ErrorCode = "InvalidOrder"
	CodeInvalidQuantity              ErrorCode = "InvalidQuantity"
	CodeMissingLimitPrice            ErrorCode = "MissingLimitPrice"
	CodeAssetInactive                ErrorCode = "AssetInactive"
	CodeTickSizeViolation            ErrorCode = "TickSizeViolation"
	CodeBelowMinNotional             ErrorCode = "BelowMinNotional"
	CodeInsufficientBalance          ErrorCode = "InsufficientBalance"
	CodeInsufficientBalanceAfterFees ErrorCode = "InsufficientBalanceAfterFees"
	CodeNoPosition                   ErrorCode = "NoPosition"
	CodeInsufficientPositionQuantity ErrorCode = "InsufficientPositionQuantity"
	CodeNoMarketPrice                ErrorCode = "NoMarketPrice"
	CodeOrderNotCancellable          ErrorCode = "OrderNotCancellable"
	CodeInternalError                ErrorCode = "InternalError"
)

// Category groups error codes by how callers should react to them.
type Category string

const (
	CategoryNotFound          Category = "NotFound"
	CategoryValidation        Category = "Validation"
	CategoryInsufficientFunds Category = "InsufficientFunds"
	CategoryNoMarketPrice     Category = "NoMarketPrice"
	CategoryConflict          Category = "Conflict"
	CategoryInternal          Category = "InternalError"
)

func (c ErrorCode) Category() Category {
	switch c {
	case CodeAssetNotFound, CodeAccountNotFound, CodeOrderNotFound, CodeNoPosition:
		return CategoryNotFound
	case CodeInvalidOrder, CodeInvalidQuantity, CodeMissingLimitPrice, CodeAssetInactive,
		CodeTickSizeViolation, CodeBelowMinNotional:
		return CategoryValidation
	case CodeInsufficientBalance, CodeInsufficientBalanceAfterFees, CodeInsufficientPositionQuantity:
		return CategoryInsufficientFunds
	case CodeNoMarketPrice:
		return CategoryNoMarketPrice
	case CodeOrderNotCancellable:
		return CategoryConflict
	default:
		return CategoryInternal
	}
}

// OrderError is returned for every unsuccessful submission. Two OrderErrors
// match under errors.Is when their codes are equal.
type OrderError struct {
	Code    ErrorCode
	Message string
	cause   error
}

func (e *OrderError) Error() string {
	return e.Message
}

func (e *OrderError) Unwrap() error {
	return e.cause
}

func (e *OrderError) Is(target error) bool {
	t, ok := target.(*OrderError)
	return ok && t.Code == e.Code
}

// ErrorCode and HTTPStatus let pkg/response render the error.
func (e *OrderError) ErrorCode() string {
	return string(e.Code)
}

func (e *OrderError) HTTPStatus() int {
	switch e.Code.Category() {
	case CategoryNotFound:
		return http.StatusNotFound
	case CategoryValidation:
		return http.StatusBadRequest
	case CategoryInsufficientFunds, CategoryNoMarketPrice:
		return http.StatusUnprocessableEntity
	case CategoryConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Sentinels for errors.Is.
var (
	ErrAssetNotFound                = &OrderError{Code: CodeAssetNotFound, Message: "asset not found"}
	ErrAccountNotFound              = &OrderError{Code: CodeAccountNotFound, Message: "account not found"}
	ErrOrderNotFound                = &OrderError{Code: CodeOrderNotFound, Message: "order not found"}
	ErrInvalidOrder                 = &OrderError{Code: CodeInvalidOrder, Message: "invalid order"}
	ErrInvalidQuantity              = &OrderError{Code: CodeInvalidQuantity, Message: "quantity must be positive"}
	ErrMissingLimitPrice            = &OrderError{Code: CodeMissingLimitPrice, Message: "limit price required for limit orders"}
	ErrAssetInactive                = &OrderError{Code: CodeAssetInactive, Message: "asset is not tradable"}
	ErrTickSizeViolation            = &OrderError{Code: CodeTickSizeViolation, Message: "price violates tick size"}
	ErrBelowMinNotional             = &OrderError{Code: CodeBelowMinNotional, Message: "order value below minimum notional"}
	ErrInsufficientBalance          = &OrderError{Code: CodeInsufficientBalance, Message: "insufficient balance"}
	ErrInsufficientBalanceAfterFees = &OrderError{Code: CodeInsufficientBalanceAfterFees, Message: "insufficient balance after fees"}
	ErrNoPosition                   = &OrderError{Code: CodeNoPosition, Message: "no position to sell"}
	ErrInsufficientPositionQuantity = &OrderError{Code: CodeInsufficientPositionQuantity, Message: "insufficient position quantity"}
	ErrNoMarketPrice                = &OrderError{Code: CodeNoMarketPrice, Message: "no market price available"}
	ErrOrderNotCancellable          = &OrderError{Code: CodeOrderNotCancellable, Message: "order is not open"}
	ErrInternal                     = &OrderError{Code: CodeInternalError, Message: "internal error processing order"}
)

func rejection(code ErrorCode, message string) *OrderError {
	return &OrderError{Code: code, Message: message}
}

func internalError(cause error) *OrderError {
	return &OrderError{Code: CodeInternalError, Message: ErrInternal.Message, cause: cause}
}
