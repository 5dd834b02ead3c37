package portfolio

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/klear-trade/internal/types"
	"github.com/ksred/klear-trade/pkg/response"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrAccountNotFound is returned by reads for users without an account.
var ErrAccountNotFound = errors.New("account not found")

const recentOrdersLimit = 100

// Service owns account opening and the account/position read projections.
// Balances and positions are only ever mutated by the trading engine.
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// OpenAccount creates the user's demo cash account credited with
// initialCredit. Opening an account that already exists returns it unchanged.
func (s *Service) OpenAccount(ctx context.Context, userID string, initialCredit decimal.Decimal) (*types.Account, error) {
	logger := log.With().
		Str("user_id", userID).
		Str("service", "portfolio").
		Logger()

	if userID == "" {
		return nil, errors.New("user id is required")
	}
	if initialCredit.IsNegative() {
		return nil, errors.New("initial credit must not be negative")
	}

	account := &types.Account{
		AccountID:     "ACC_" + uuid.New().String(),
		UserID:        userID,
		Currency:      types.DemoCurrency,
		Balance:       initialCredit,
		InitialCredit: initialCredit,
	}
	if err := s.db.CreateAccountIfMissing(ctx, account); err != nil {
		logger.Error().Err(err).Msg("failed to create account")
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	existing, err := s.db.GetAccount(ctx, userID, types.DemoCurrency)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrAccountNotFound
	}

	logger.Info().
		Str("account_id", existing.AccountID).
		Str("balance", existing.Balance.String()).
		Msg("account ready")
	return existing, nil
}

// GetAccount returns the user's cash account.
func (s *Service) GetAccount(ctx context.Context, userID string) (*types.Account, error) {
	account, err := s.db.GetAccount(ctx, userID, types.DemoCurrency)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

func (s *Service) ListPositions(ctx context.Context, userID string) ([]types.Position, error) {
	return s.db.GetPositions(ctx, userID)
}

// GetSummary returns the account, all open positions and the latest orders.
func (s *Service) GetSummary(ctx context.Context, userID string) (*Summary, error) {
	account, err := s.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	positions, err := s.db.GetPositions(ctx, userID)
	if err != nil {
		return nil, err
	}
	orders, err := s.db.GetRecentOrders(ctx, userID, recentOrdersLimit)
	if err != nil {
		return nil, err
	}
	return &Summary{
		Account:   account,
		Positions: positions,
		Orders:    orders,
	}, nil
}

// GinHandlers contains HTTP handlers for portfolio endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

func (h *GinHandlers) GetPortfolioHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		if userID == "" {
			response.Unauthorized(c, "Missing authenticated user")
			return
		}

		summary, err := h.service.GetSummary(c.Request.Context(), userID)
		if errors.Is(err, ErrAccountNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.Handle(c, summary, err)
	}
}
