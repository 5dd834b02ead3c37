package book

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ksred/klear-trade/internal/types"
	"github.com/ksred/klear-trade/pkg/response"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const defaultDepth = 20

// AssetLookup resolves the instrument a book belongs to.
type AssetLookup interface {
	GetBySymbol(ctx context.Context, symbol string) (*types.Asset, error)
}

// GinHandlers contains HTTP handlers for order book endpoints
type GinHandlers struct {
	books  *Manager
	assets AssetLookup
}

func NewGinHandlers(books *Manager, assets AssetLookup) *GinHandlers {
	return &GinHandlers{
		books:  books,
		assets: assets,
	}
}

type placeRequest struct {
	Price decimal.Decimal `json:"price"`
	Qty   decimal.Decimal `json:"qty"`
}

type placeResponse struct {
	Entry  Entry   `json:"entry"`
	Trades []Trade `json:"trades"`
}

// PlaceBidHandler handles POST /book/:symbol/bids
func (h *GinHandlers) PlaceBidHandler() gin.HandlerFunc {
	return h.place(SideBid)
}

// PlaceAskHandler handles POST /book/:symbol/asks
func (h *GinHandlers) PlaceAskHandler() gin.HandlerFunc {
	return h.place(SideAsk)
}

func (h *GinHandlers) place(side Side) gin.HandlerFunc {
	return func(c *gin.Context) {
		asset, ok := h.resolve(c)
		if !ok {
			return
		}

		var body placeRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		entry, trades, err := h.books.GetOrCreate(asset.Symbol).Place(side, Entry{Price: body.Price, Qty: body.Qty})
		if errors.Is(err, ErrInvalidEntry) {
			response.BadRequest(c, err.Error())
			return
		}
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		if len(trades) > 0 {
			log.Info().
				Str("symbol", asset.Symbol).
				Str("side", string(side)).
				Str("entry_id", entry.ID).
				Int("trades", len(trades)).
				Msg("book crossed")
		}
		if trades == nil {
			trades = []Trade{}
		}
		response.Success(c, placeResponse{Entry: entry, Trades: trades})
	}
}

// GetBookHandler returns the full snapshot, or aggregated levels when the
// depth query parameter is set.
func (h *GinHandlers) GetBookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		asset, ok := h.resolve(c)
		if !ok {
			return
		}

		b := h.books.GetOrCreate(asset.Symbol)
		raw := c.Query("depth")
		if raw == "" {
			response.Success(c, b.Snapshot())
			return
		}

		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			n = defaultDepth
		}
		response.Success(c, b.Depth(n))
	}
}

func (h *GinHandlers) resolve(c *gin.Context) (*types.Asset, bool) {
	symbol := strings.ToUpper(c.Param("symbol"))
	asset, err := h.assets.GetBySymbol(c.Request.Context(), symbol)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "Unknown symbol "+symbol)
			return nil, false
		}
		response.Handle(c, nil, err)
		return nil, false
	}
	if !asset.Active {
		response.BadRequest(c, "Asset is not tradable")
		return nil, false
	}
	return asset, true
}
