package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ksred/klear-trade/internal/types"
	"github.com/ksred/klear-trade/pkg/response"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrAccountNotFound = errors.New("account not found")

const (
	defaultEntriesLimit = 100
	maxEntriesLimit     = 1000
)

// Service exposes the append-only ledger for audit. It never writes.
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// Report is the outcome of replaying one account's ledger.
type Report struct {
	UserID        string          `json:"user_id"`
	AccountID     string          `json:"account_id"`
	InitialCredit decimal.Decimal `json:"initial_credit"`
	Balance       decimal.Decimal `json:"balance"`
	LedgerSum     decimal.Decimal `json:"ledger_sum"`
	Entries       int             `json:"entries"`
	// SumMatches: sum(change) == balance - initial credit.
	SumMatches bool `json:"sum_matches"`
	// ChainIntact: each balance_after is the previous one plus change.
	ChainIntact bool `json:"chain_intact"`
	// LastMatches: the latest balance_after equals the current balance.
	LastMatches bool     `json:"last_matches"`
	Consistent  bool     `json:"consistent"`
	Issues      []string `json:"issues,omitempty"`
}

// Entries returns up to limit entries for the user, newest first.
func (s *Service) Entries(ctx context.Context, userID string, limit int) ([]types.LedgerEntry, error) {
	if limit <= 0 {
		limit = defaultEntriesLimit
	}
	if limit > maxEntriesLimit {
		limit = maxEntriesLimit
	}
	return s.db.GetRecentEntries(ctx, userID, limit)
}

// Reconcile replays the user's ledger against their account balance.
func (s *Service) Reconcile(ctx context.Context, userID string) (*Report, error) {
	logger := log.With().
		Str("user_id", userID).
		Str("service", "ledger").
		Logger()

	account, entries, err := s.db.LoadHistory(ctx, userID, types.DemoCurrency)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load ledger history")
		return nil, fmt.Errorf("failed to load ledger history: %w", err)
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}

	report := Replay(account, entries)
	report.UserID = userID

	if !report.Consistent {
		logger.Warn().
			Str("account_id", account.AccountID).
			Strs("issues", report.Issues).
			Msg("ledger reconciliation failed")
	} else {
		logger.Debug().Int("entries", report.Entries).Msg("ledger reconciled")
	}
	return report, nil
}

// Replay checks entries, in append order, against account.
func Replay(account *types.Account, entries []types.LedgerEntry) *Report {
	report := &Report{
		UserID:        account.UserID,
		AccountID:     account.AccountID,
		InitialCredit: account.InitialCredit,
		Balance:       account.Balance,
		LedgerSum:     decimal.Zero,
		Entries:       len(entries),
		ChainIntact:   true,
	}

	running := account.InitialCredit
	for _, e := range entries {
		report.LedgerSum = report.LedgerSum.Add(e.Change)
		running = running.Add(e.Change)
		if report.ChainIntact && !running.Equal(e.BalanceAfter) {
			report.ChainIntact = false
			report.Issues = append(report.Issues, fmt.Sprintf(
				"entry %s: balance_after %s, expected %s", e.EntryID, e.BalanceAfter, running))
		}
		if e.BalanceAfter.IsNegative() {
			report.Issues = append(report.Issues, fmt.Sprintf(
				"entry %s: negative balance_after %s", e.EntryID, e.BalanceAfter))
		}
	}

	report.SumMatches = report.LedgerSum.Equal(account.Balance.Sub(account.InitialCredit))
	if !report.SumMatches {
		report.Issues = append(report.Issues, fmt.Sprintf(
			"ledger sum %s does not match balance change %s", report.LedgerSum, account.Balance.Sub(account.InitialCredit)))
	}

	if len(entries) == 0 {
		report.LastMatches = account.Balance.Equal(account.InitialCredit)
	} else {
		report.LastMatches = entries[len(entries)-1].BalanceAfter.Equal(account.Balance)
	}
	if !report.LastMatches {
		report.Issues = append(report.Issues, "latest balance_after does not match account balance")
	}

	report.Consistent = report.SumMatches && report.ChainIntact && report.LastMatches && len(report.Issues) == 0
	return report
}

// GinHandlers contains HTTP handlers for ledger endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// ListEntriesHandler handles GET /ledger
// Query parameters: limit (default 100)
func (h *GinHandlers) ListEntriesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		if userID == "" {
			response.Unauthorized(c, "Missing authenticated user")
			return
		}

		limit := defaultEntriesLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				response.BadRequest(c, "limit must be an integer")
				return
			}
			limit = n
		}

		entries, err := h.service.Entries(c.Request.Context(), userID, limit)
		response.Handle(c, entries, err)
	}
}

// ReconcileHandler handles GET /ledger/reconcile
func (h *GinHandlers) ReconcileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		if userID == "" {
			response.Unauthorized(c, "Missing authenticated user")
			return
		}

		report, err := h.service.Reconcile(c.Request.Context(), userID)
		if errors.Is(err, ErrAccountNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.Handle(c, report, err)
	}
}
