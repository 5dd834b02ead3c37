package trading

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/klear-trade/internal/pricing"
	"github.com/ksred/klear-trade/internal/types"
	"github.com/ksred/klear-trade/pkg/response"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	// DefaultFeeRate is charged on the notional of every fill (0.1%).
	DefaultFeeRate = "0.001"
	// DefaultTxTimeout caps a single order's transaction.
	DefaultTxTimeout = 10 * time.Second

	executionSavepoint = "execution"
	defaultListLimit   = 50
	maxListLimit       = 500
)

// Service validates and executes orders one at a time per account.
type Service struct {
	db        *Database
	prices    pricing.Source
	feeRate   decimal.Decimal
	txTimeout time.Duration
	now       func() time.Time
	accounts  *keyedMutex
	positions *keyedMutex
}

type Option func(*Service)

func WithFeeRate(rate decimal.Decimal) Option {
	return func(s *Service) { s.feeRate = rate }
}

func WithTxTimeout(d time.Duration) Option {
	return func(s *Service) { s.txTimeout = d }
}

// WithClock replaces the timestamp source used for orders and fills.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new trading service. prices supplies reference
// prices for PlaceOrder; SubmitOrder takes the price from its caller.
func NewService(gormDB *gorm.DB, prices pricing.Source, opts ...Option) *Service {
	s := &Service{
		db:        NewDatabase(gormDB),
		prices:    prices,
		feeRate:   decimal.RequireFromString(DefaultFeeRate),
		txTimeout: DefaultTxTimeout,
		now:       time.Now,
		accounts:  newKeyedMutex(),
		positions: newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceOrder resolves the current reference price for the asset and submits
// the order. A missing price is passed through as absent so market orders
// reject with NoMarketPrice and limit orders rest.
func (s *Service) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	var ref decimal.NullDecimal
	if s.prices != nil {
		asset, err := s.db.GetAsset(ctx, req.AssetID)
		if err != nil {
			log.Error().Err(err).Str("asset_id", req.AssetID).Msg("failed to load asset for pricing")
			return failed("", internalError(err))
		}
		if asset != nil {
			if p, ok := s.prices.CurrentPrice(ctx, asset.Symbol); ok {
				ref = decimal.NewNullDecimal(p)
			}
		}
	}
	return s.SubmitOrder(ctx, req, ref)
}

// SubmitOrder validates and executes one order against referencePrice.
//
// Requests that fail before an order row can exist (unknown asset or
// account, malformed shape, non-positive quantity, missing limit price)
// persist nothing. Every other failure persists the order as rejected with
// its reason while discarding all balance, position, fill and ledger writes.
// The returned error is always an *OrderError and mirrors result.Error.
func (s *Service) SubmitOrder(ctx context.Context, req OrderRequest, referencePrice decimal.NullDecimal) (*OrderResult, error) {
	logger := log.With().
		Str("user_id", req.UserID).
		Str("asset_id", req.AssetID).
		Str("side", string(req.Side)).
		Str("type", string(req.Type)).
		Str("qty", req.Qty.String()).
		Str("service", "trading").
		Logger()

	if oerr := checkShape(req); oerr != nil {
		logger.Info().Str("reason", oerr.Message).Msg("order rejected before creation")
		return failed("", oerr)
	}

	unlock := lockOrder(s.accounts, s.positions, req.UserID, req.AssetID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	uow, err := s.db.Begin(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to begin order transaction")
		return failed("", internalError(err))
	}
	defer uow.Rollback()

	asset, err := uow.Asset(req.AssetID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load asset")
		return failed("", internalError(err))
	}
	if asset == nil {
		logger.Info().Msg("order rejected: asset not found")
		return failed("", ErrAssetNotFound)
	}
	if !asset.Active {
		return failed("", ErrAssetInactive)
	}

	account, err := uow.Account(req.UserID, types.DemoCurrency)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load account")
		return failed("", internalError(err))
	}
	if account == nil {
		logger.Info().Msg("order rejected: account not found")
		return failed("", ErrAccountNotFound)
	}

	if oerr := checkQuantity(req); oerr != nil {
		logger.Info().Str("reason", oerr.Message).Msg("order rejected before creation")
		return failed("", oerr)
	}

	ref := s.snapReference(referencePrice, asset)

	now := s.now()
	order := &types.Order{
		OrderID:   uuid.New().String(),
		UserID:    req.UserID,
		AssetID:   req.AssetID,
		Side:      req.Side,
		Type:      req.Type,
		Qty:       req.Qty,
		Status:    types.StatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.Type == types.OrderTypeLimit {
		order.LimitPrice = req.LimitPrice
	}
	if err := uow.CreateOrder(order); err != nil {
		logger.Error().Err(err).Msg("failed to create order")
		return failed("", internalError(err))
	}
	logger = logger.With().Str("order_id", order.OrderID).Logger()

	if oerr := validate(req, asset, account, ref, s.feeRate); oerr != nil {
		return s.reject(uow, order, oerr, logger)
	}

	var price decimal.Decimal
	switch req.Type {
	case types.OrderTypeMarket:
		if !ref.Valid {
			return s.reject(uow, order, ErrNoMarketPrice, logger)
		}
		price = ref.Decimal
	case types.OrderTypeLimit:
		if !ref.Valid || !crosses(req.Side, req.LimitPrice.Decimal, ref.Decimal) {
			if err := uow.Commit(); err != nil {
				logger.Error().Err(err).Msg("failed to commit resting order")
				return failed("", internalError(err))
			}
			logger.Info().Str("limit_price", req.LimitPrice.Decimal.String()).Msg("limit order resting")
			return &OrderResult{Success: true, OrderID: order.OrderID, Status: types.StatusOpen}, nil
		}
		price = req.LimitPrice.Decimal
	}

	if err := uow.Savepoint(executionSavepoint); err != nil {
		logger.Error().Err(err).Msg("failed to create savepoint")
		return failed("", internalError(err))
	}

	plan, err := s.planFill(uow, order, asset, account, price)
	if err == nil {
		err = s.applyFill(uow, order, account, plan)
	}
	if err == nil {
		err = uow.TransitionOrder(order, types.StatusFilled, "")
	}
	if err != nil {
		var oerr *OrderError
		if !errors.As(err, &oerr) {
			logger.Error().Err(err).Msg("fill execution failed")
			oerr = internalError(err)
		}
		if rbErr := uow.RollbackTo(executionSavepoint); rbErr != nil {
			logger.Error().Err(rbErr).Msg("failed to roll back execution")
			return failed("", internalError(rbErr))
		}
		return s.reject(uow, order, oerr, logger)
	}

	if err := uow.Commit(); err != nil {
		logger.Error().Err(err).Msg("failed to commit fill")
		return failed("", internalError(err))
	}

	logger.Info().
		Str("fill_id", plan.fill.FillID).
		Str("price", price.String()).
		Str("fee", plan.fill.Fee.String()).
		Str("balance_after", plan.balance.String()).
		Msg("order filled")

	return &OrderResult{
		Success: true,
		OrderID: order.OrderID,
		Status:  types.StatusFilled,
		Fills: []FillResult{{
			ID:    plan.fill.FillID,
			Price: plan.fill.Price,
			Qty:   plan.fill.Qty,
			Fee:   plan.fill.Fee,
		}},
	}, nil
}

// reject marks the order rejected and commits only that transition.
func (s *Service) reject(uow *UnitOfWork, order *types.Order, oerr *OrderError, logger zerolog.Logger) (*OrderResult, error) {
	if err := uow.TransitionOrder(order, types.StatusRejected, oerr.Message); err != nil {
		logger.Error().Err(err).Msg("failed to mark order rejected")
		return failed("", internalError(err))
	}
	if err := uow.Commit(); err != nil {
		logger.Error().Err(err).Msg("failed to commit rejected order")
		return failed("", internalError(err))
	}

	event := logger.Info()
	if oerr.Code == CodeInternalError {
		event = logger.Error()
	}
	event.Str("code", string(oerr.Code)).Str("reason", oerr.Message).Msg("order rejected")
	return failed(order.OrderID, oerr)
}

// snapReference drops non-positive reference prices and rounds the rest to
// the asset tick so every fill price lies on the tick grid.
func (s *Service) snapReference(ref decimal.NullDecimal, asset *types.Asset) decimal.NullDecimal {
	if !ref.Valid || !ref.Decimal.IsPositive() {
		return decimal.NullDecimal{}
	}
	snapped := pricing.SnapToTick(ref.Decimal, asset.TickSize)
	if !snapped.IsPositive() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(snapped)
}

func failed(orderID string, oerr *OrderError) (*OrderResult, error) {
	result := &OrderResult{
		Success: false,
		OrderID: orderID,
		Error:   oerr.Code,
		Reason:  oerr.Message,
	}
	if orderID != "" {
		result.Status = types.StatusRejected
	}
	return result, oerr
}

// CancelOrder cancels an open (resting) order owned by userID.
func (s *Service) CancelOrder(ctx context.Context, userID, orderID string) (*types.Order, error) {
	logger := log.With().
		Str("user_id", userID).
		Str("order_id", orderID).
		Str("service", "trading").
		Logger()

	unlock := s.accounts.Lock(userID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	uow, err := s.db.Begin(ctx)
	if err != nil {
		return nil, internalError(err)
	}
	defer uow.Rollback()

	order, err := uow.Order(orderID, userID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load order")
		return nil, internalError(err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.Status != types.StatusOpen {
		return nil, ErrOrderNotCancellable
	}

	if err := uow.TransitionOrder(order, types.StatusCancelled, "cancelled by user"); err != nil {
		if errors.Is(err, errOrderNotOpen) {
			return nil, ErrOrderNotCancellable
		}
		return nil, internalError(err)
	}
	if err := uow.Commit(); err != nil {
		logger.Error().Err(err).Msg("failed to commit cancellation")
		return nil, internalError(err)
	}

	logger.Info().Msg("order cancelled")
	return order, nil
}

// GetOrder returns an order with its fills.
func (s *Service) GetOrder(ctx context.Context, userID, orderID string) (*types.Order, error) {
	order, err := s.db.GetOrderByOrderIDAndUserID(ctx, orderID, userID)
	if err != nil {
		return nil, internalError(err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// ListOrders returns the user's orders newest first, optionally filtered by
// status. limit is clamped to [1, 500] and defaults to 50.
func (s *Service) ListOrders(ctx context.Context, userID string, status types.OrderStatus, limit int) ([]types.Order, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	orders, err := s.db.ListOrders(ctx, userID, status, limit)
	if err != nil {
		return nil, internalError(err)
	}
	return orders, nil
}

// GinHandlers contains HTTP handlers for trading endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for trading endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

type createOrderRequest struct {
	AssetID    string              `json:"asset_id" binding:"required"`
	Side       types.Side          `json:"side" binding:"required,oneof=buy sell"`
	Type       types.OrderType     `json:"type" binding:"required,oneof=market limit"`
	Qty        decimal.Decimal     `json:"qty"`
	LimitPrice decimal.NullDecimal `json:"limit_price"`
}

// CreateOrderHandler handles POST requests to submit orders
// Requires a valid JWT token; the reference price comes from the price source
func (h *GinHandlers) CreateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		if userID == "" {
			response.Unauthorized(c, "Missing authenticated user")
			return
		}

		var body createOrderRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		result, err := h.service.PlaceOrder(c.Request.Context(), OrderRequest{
			UserID:     userID,
			AssetID:    body.AssetID,
			Side:       body.Side,
			Type:       body.Type,
			Qty:        body.Qty,
			LimitPrice: body.LimitPrice,
		})
		response.Handle(c, result, err)
	}
}

// GetOrderStatusHandler handles GET requests to retrieve one order
// URL parameter: order_id
func (h *GinHandlers) GetOrderStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		if userID == "" {
			response.Unauthorized(c, "Missing authenticated user")
			return
		}

		orderID := c.Param("order_id")
		if orderID == "" {
			response.BadRequest(c, "Order ID is required")
			return
		}

		order, err := h.service.GetOrder(c.Request.Context(), userID, orderID)
		response.Handle(c, order, err)
	}
}

// ListOrdersHandler handles GET requests for order history
// Query parameters: status (optional), limit (default 50)
func (h *GinHandlers) ListOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		if userID == "" {
			response.Unauthorized(c, "Missing authenticated user")
			return
		}

		limit := defaultListLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				response.BadRequest(c, "limit must be an integer")
				return
			}
			limit = n
		}

		orders, err := h.service.ListOrders(c.Request.Context(), userID, types.OrderStatus(c.Query("status")), limit)
		response.Handle(c, orders, err)
	}
}

// CancelOrderHandler handles POST requests to cancel a resting order
// URL parameter: order_id
func (h *GinHandlers) CancelOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		if userID == "" {
			response.Unauthorized(c, "Missing authenticated user")
			return
		}

		order, err := h.service.CancelOrder(c.Request.Context(), userID, c.Param("order_id"))
		response.Handle(c, order, err)
	}
}
