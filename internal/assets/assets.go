package assets

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/ksred/klear-trade/internal/types"
	"github.com/ksred/klear-trade/pkg/response"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service is the read-only asset registry. Assets are written once by Seed.
type Service struct {
	db *Database
}

// NewService creates a new asset registry with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// Seed inserts every catalog entry that is not yet present.
func (s *Service) Seed(ctx context.Context, catalog []CatalogEntry) error {
	logger := log.With().Str("service", "assets").Logger()

	created := 0
	for _, entry := range catalog {
		asset, err := entry.ToAsset()
		if err != nil {
			return err
		}
		inserted, err := s.db.InsertIfMissing(ctx, asset)
		if err != nil {
			return fmt.Errorf("failed to seed asset %s: %w", asset.AssetID, err)
		}
		if inserted {
			created++
		}
	}

	logger.Info().
		Int("catalog_size", len(catalog)).
		Int("created", created).
		Msg("asset registry seeded")
	return nil
}

// Get looks an asset up by id.
func (s *Service) Get(ctx context.Context, assetID string) (*types.Asset, error) {
	return s.db.GetAsset(ctx, assetID)
}

// GetBySymbol looks an asset up by ticker symbol.
func (s *Service) GetBySymbol(ctx context.Context, symbol string) (*types.Asset, error) {
	return s.db.GetAssetBySymbol(ctx, symbol)
}

func (s *Service) List(ctx context.Context) ([]types.Asset, error) {
	return s.db.ListAssets(ctx)
}

// GinHandlers contains HTTP handlers for asset endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

func (h *GinHandlers) ListAssetsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		assets, err := h.service.List(c.Request.Context())
		response.Handle(c, assets, err)
	}
}

func (h *GinHandlers) GetAssetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		asset, err := h.service.GetBySymbol(c.Request.Context(), c.Param("symbol"))
		response.Handle(c, asset, err)
	}
}
