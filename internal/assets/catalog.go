package assets

import (
	"fmt"
	"os"
	"strings"

	"github.com/ksred/klear-trade/internal/types"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// CatalogEntry is the file representation of an asset.
type CatalogEntry struct {
	ID          string `yaml:"id"`
	Symbol      string `yaml:"symbol"`
	Name        string `yaml:"name"`
	Kind        string `yaml:"kind"`
	TickSize    string `yaml:"tick_size"`
	MinNotional string `yaml:"min_notional"`
	Active      *bool  `yaml:"active"`
}

type catalogFile struct {
	Assets []CatalogEntry `yaml:"assets"`
}

// DefaultCatalog lists the demo instruments: ten crypto pairs and ten stocks,
// all with a 0.10 minimum order value.
var DefaultCatalog = []CatalogEntry{
	{ID: "BTCUSDT", Name: "Bitcoin", Kind: "crypto", TickSize: "0.01"},
	{ID: "ETHUSDT", Name: "Ethereum", Kind: "crypto", TickSize: "0.01"},
	{ID: "SOLUSDT", Name: "Solana", Kind: "crypto", TickSize: "0.001"},
	{ID: "BNBUSDT", Name: "BNB", Kind: "crypto", TickSize: "0.01"},
	{ID: "XRPUSDT", Name: "XRP", Kind: "crypto", TickSize: "0.0001"},
	{ID: "ADAUSDT", Name: "Cardano", Kind: "crypto", TickSize: "0.0001"},
	{ID: "DOGEUSDT", Name: "Dogecoin", Kind: "crypto", TickSize: "0.00001"},
	{ID: "MATICUSDT", Name: "Polygon", Kind: "crypto", TickSize: "0.0001"},
	{ID: "LTCUSDT", Name: "Litecoin", Kind: "crypto", TickSize: "0.01"},
	{ID: "DOTUSDT", Name: "Polkadot", Kind: "crypto", TickSize: "0.001"},
	{ID: "AAPL", Name: "Apple Inc.", Kind: "stock", TickSize: "0.01"},
	{ID: "MSFT", Name: "Microsoft Corporation", Kind: "stock", TickSize: "0.01"},
	{ID: "AMZN", Name: "Amazon.com Inc.", Kind: "stock", TickSize: "0.01"},
	{ID: "GOOGL", Name: "Alphabet Inc.", Kind: "stock", TickSize: "0.01"},
	{ID: "TSLA", Name: "Tesla Inc.", Kind: "stock", TickSize: "0.01"},
	{ID: "NVDA", Name: "NVIDIA Corporation", Kind: "stock", TickSize: "0.01"},
	{ID: "META", Name: "Meta Platforms Inc.", Kind: "stock", TickSize: "0.01"},
	{ID: "NFLX", Name: "Netflix Inc.", Kind: "stock", TickSize: "0.01"},
	{ID: "AMD", Name: "Advanced Micro Devices", Kind: "stock", TickSize: "0.01"},
	{ID: "JPM", Name: "JPMorgan Chase & Co.", Kind: "stock", TickSize: "0.01"},
}

const defaultMinNotional = "0.1"

// LoadCatalog reads a YAML catalog file of the form `assets: [...]`.
func LoadCatalog(path string) ([]CatalogEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read asset catalog: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse asset catalog: %w", err)
	}
	if len(file.Assets) == 0 {
		return nil, fmt.Errorf("asset catalog %s is empty", path)
	}
	return file.Assets, nil
}

// ToAsset validates an entry and converts it to the persisted model.
// Symbol defaults to the id and min notional to 0.1.
func (e CatalogEntry) ToAsset() (*types.Asset, error) {
	id := strings.TrimSpace(e.ID)
	if id == "" {
		return nil, fmt.Errorf("asset id is required")
	}
	symbol := strings.TrimSpace(e.Symbol)
	if symbol == "" {
		symbol = id
	}

	tick, err := decimal.NewFromString(e.TickSize)
	if err != nil {
		return nil, fmt.Errorf("asset %s: invalid tick_size %q: %w", id, e.TickSize, err)
	}
	if !tick.IsPositive() {
		return nil, fmt.Errorf("asset %s: tick_size must be positive", id)
	}

	minRaw := e.MinNotional
	if minRaw == "" {
		minRaw = defaultMinNotional
	}
	minNotional, err := decimal.NewFromString(minRaw)
	if err != nil {
		return nil, fmt.Errorf("asset %s: invalid min_notional %q: %w", id, minRaw, err)
	}
	if minNotional.IsNegative() {
		return nil, fmt.Errorf("asset %s: min_notional must not be negative", id)
	}

	active := true
	if e.Active != nil {
		active = *e.Active
	}

	return &types.Asset{
		AssetID:     id,
		Symbol:      symbol,
		Name:        e.Name,
		Kind:        e.Kind,
		TickSize:    tick,
		MinNotional: minNotional,
		Active:      active,
	}, nil
}
