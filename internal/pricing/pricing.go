package pricing

import (
	"context"
	"math/rand"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Source supplies the current reference price for a symbol.
type Source interface {
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, bool)
}

// FallbackPrices are the demo reference prices used when no live feed is wired.
var FallbackPrices = map[string]string{
	"BTCUSDT":   "43500.00",
	"ETHUSDT":   "2650.00",
	"SOLUSDT":   "205.80",
	"BNBUSDT":   "610.40",
	"XRPUSDT":   "2.831",
	"ADAUSDT":   "0.87",
	"DOGEUSDT":  "0.385",
	"MATICUSDT": "0.52",
	"LTCUSDT":   "104.20",
	"DOTUSDT":   "7.315",
	"AAPL":      "175.50",
	"MSFT":      "415.25",
	"AMZN":      "185.60",
	"GOOGL":     "2850.40",
	"TSLA":      "248.75",
	"NVDA":      "725.30",
	"META":      "505.10",
	"NFLX":      "640.80",
	"AMD":       "160.45",
	"JPM":       "198.30",
}

// Static returns fixed prices. Safe for concurrent use once built.
type Static map[string]decimal.Decimal

func (s Static) CurrentPrice(_ context.Context, symbol string) (decimal.Decimal, bool) {
	p, ok := s[symbol]
	return p, ok
}

// Simulated quotes a base price per symbol with a random variance applied on
// every read, mimicking a noisy venue.
type Simulated struct {
	mu       sync.Mutex
	base     map[string]decimal.Decimal
	variance float64 // fraction of the base price, e.g. 0.02 for +/-2%
	rng      *rand.Rand
}

// NewSimulated builds a simulated source from string prices.
func NewSimulated(base map[string]string, variance float64, seed int64) *Simulated {
	prices := make(map[string]decimal.Decimal, len(base))
	for symbol, raw := range base {
		prices[symbol] = decimal.RequireFromString(raw)
	}
	return &Simulated{
		base:     prices,
		variance: variance,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

func (s *Simulated) CurrentPrice(_ context.Context, symbol string) (decimal.Decimal, bool) {
	base, ok := s.base[symbol]
	if !ok {
		return decimal.Zero, false
	}
	if s.variance == 0 {
		return base, true
	}

	s.mu.Lock()
	jitter := s.rng.Float64()*2*s.variance - s.variance
	s.mu.Unlock()

	price := base.Mul(decimal.NewFromFloat(1 + jitter)).Round(8)
	log.Debug().
		Str("symbol", symbol).
		Str("base_price", base.String()).
		Str("quoted_price", price.String()).
		Msg("price variance applied")
	return price, true
}

// SnapToTick rounds price to the nearest multiple of tick. A non-positive
// tick leaves the price unchanged.
func SnapToTick(price, tick decimal.Decimal) decimal.Decimal {
	if !tick.IsPositive() {
		return price
	}
	return price.Div(tick).Round(0).Mul(tick)
}
