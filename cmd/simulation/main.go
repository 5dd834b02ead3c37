// Command simulation drives a running server with concurrent demo traders and
// checks every account's ledger afterwards.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ksred/klear-trade/internal/pricing"
)

var simulatedSymbols = []string{"AAPL", "MSFT", "AMZN", "GOOGL", "META", "BTCUSDT"}

type trader struct {
	username string
	userID   string
	token    string
}

type job struct {
	trader *trader
	seq    int
}

func main() {
	baseURL := flag.String("addr", envOr("SIM_BASE_URL", "http://localhost:8080"), "server base URL")
	numUsers := flag.Int("users", 3, "number of traders to register")
	ordersPerUser := flag.Int("orders", 40, "orders submitted per trader")
	numWorkers := flag.Int("workers", 4, "concurrent workers")
	bookOrders := flag.Int("book", 50, "random bids and asks posted to the order books")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flag.Parse()

	zlog.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	stats := newLatencyRecorder()
	client := newAPIClient(*baseURL, stats)
	results := newOutcomes()

	startTime := time.Now()

	ticks, err := loadTicks(client)
	if err != nil {
		zlog.Fatal().Err(err).Str("addr", *baseURL).Msg("Failed to list assets")
	}

	// Register traders
	traders := make([]*trader, 0, *numUsers)
	for i := 0; i < *numUsers; i++ {
		username := "sim-" + uuid.New().String()[:8]
		userID, token, err := client.register(username, "simulation-pass")
		if err != nil {
			zlog.Fatal().Err(err).Str("username", username).Msg("Failed to register trader")
		}
		traders = append(traders, &trader{username: username, userID: userID, token: token})
		zlog.Info().Str("username", username).Str("user_id", userID).Msg("Registered trader")
	}

	// Fan orders out to workers
	jobs := make(chan job)
	var wg sync.WaitGroup
	for w := 0; w < *numWorkers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(*seed + int64(worker)))
			for j := range jobs {
				body := randomOrder(rng, ticks)
				res, err := client.placeOrder(j.trader.token, body)
				if err != nil {
					results.add("transport_error")
					zlog.Error().Err(err).Str("username", j.trader.username).Msg("Order request failed")
					continue
				}
				if res.Success {
					results.add(res.Status)
				} else {
					results.add(res.Error)
				}
				zlog.Debug().
					Str("username", j.trader.username).
					Int("seq", j.seq).
					Interface("order", body).
					Str("status", res.Status).
					Str("error", res.Error).
					Msg("Order submitted")
			}
		}(w)
	}

	for i := 0; i < *ordersPerUser; i++ {
		for _, t := range traders {
			jobs <- job{trader: t, seq: i}
		}
	}
	close(jobs)
	wg.Wait()

	postBookOrders(client, rand.New(rand.NewSource(*seed)), *bookOrders)

	// Cancel anything still resting so the run leaves no open orders
	cancelled := 0
	for _, t := range traders {
		open, err := client.openOrders(t.token)
		if err != nil {
			zlog.Error().Err(err).Str("username", t.username).Msg("Failed to list open orders")
			continue
		}
		for _, o := range open {
			if err := client.cancel(t.token, o.OrderID); err != nil {
				zlog.Warn().Err(err).Str("order_id", o.OrderID).Msg("Cancel failed")
				continue
			}
			cancelled++
		}
	}

	// Verify every ledger
	inconsistent := 0
	for _, t := range traders {
		report, err := client.reconcile(t.token)
		if err != nil {
			inconsistent++
			zlog.Error().Err(err).Str("username", t.username).Msg("Reconcile failed")
			continue
		}
		if !report.Consistent {
			inconsistent++
			zlog.Error().Str("username", t.username).Strs("issues", report.Issues).Msg("Ledger inconsistent")
			continue
		}
		zlog.Info().
			Str("username", t.username).
			Int("entries", report.Entries).
			Str("balance", report.Balance.StringFixed(2)).
			Msg("Ledger consistent")
	}

	elapsed := time.Since(startTime)

	fmt.Println("\nSimulation Summary")
	fmt.Println(strings.Repeat("=", 40))
	fmt.Printf("Traders:             %d\n", len(traders))
	fmt.Printf("Orders submitted:    %d\n", results.total)
	fmt.Printf("Open orders cancelled: %d\n", cancelled)
	fmt.Printf("Inconsistent ledgers: %d\n", inconsistent)
	fmt.Printf("Elapsed:             %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Throughput:          %.1f orders/s\n", float64(results.total)/elapsed.Seconds())
	results.print()
	stats.print()

	if inconsistent > 0 {
		os.Exit(1)
	}
}

// loadTicks returns the tick size of every active simulated symbol.
func loadTicks(client *apiClient) (map[string]decimal.Decimal, error) {
	assets, err := client.listAssets()
	if err != nil {
		return nil, err
	}
	bySymbol := make(map[string]asset, len(assets))
	for _, a := range assets {
		bySymbol[a.Symbol] = a
	}

	ticks := make(map[string]decimal.Decimal)
	for _, sym := range simulatedSymbols {
		a, ok := bySymbol[sym]
		if !ok || !a.Active {
			continue
		}
		ticks[sym] = a.TickSize
	}
	if len(ticks) == 0 {
		return nil, fmt.Errorf("none of %v are tradable", simulatedSymbols)
	}
	return ticks, nil
}

// randomOrder builds a mostly-buy mix of market and limit orders. Limit
// prices sit within 2% of the fallback price so some cross and some rest.
func randomOrder(rng *rand.Rand, ticks map[string]decimal.Decimal) map[string]string {
	symbols := make([]string, 0, len(ticks))
	for _, sym := range simulatedSymbols {
		if _, ok := ticks[sym]; ok {
			symbols = append(symbols, sym)
		}
	}
	symbol := symbols[rng.Intn(len(symbols))]

	side := "buy"
	if rng.Float64() < 0.35 {
		side = "sell"
	}

	qty := decimal.NewFromInt(int64(rng.Intn(5) + 1))
	if symbol == "BTCUSDT" {
		qty = decimal.NewFromInt(int64(rng.Intn(50) + 1)).Shift(-3)
	}

	body := map[string]string{
		"asset_id": symbol,
		"side":     side,
		"type":     "market",
		"qty":      qty.String(),
	}

	if rng.Float64() < 0.3 {
		if base, ok := fallbackPrice(symbol); ok {
			drift := decimal.NewFromFloat(1 + (rng.Float64()*4-2)/100)
			body["type"] = "limit"
			body["limit_price"] = pricing.SnapToTick(base.Mul(drift), ticks[symbol]).String()
		}
	}
	return body
}

// postBookOrders sends random bids and asks around the fallback price so the
// books see crossing traffic.
func postBookOrders(client *apiClient, rng *rand.Rand, n int) {
	var trades int
	for i := 0; i < n; i++ {
		symbol := simulatedSymbols[rng.Intn(len(simulatedSymbols))]
		base, ok := fallbackPrice(symbol)
		if !ok {
			continue
		}
		price := base.Mul(decimal.NewFromFloat(1 + (rng.Float64()*2-1)/100)).Round(2)
		qty := decimal.NewFromInt(int64(rng.Intn(10) + 1))

		side := "bids"
		if rng.Intn(2) == 0 {
			side = "asks"
		}

		var placed struct {
			Trades []struct{} `json:"trades"`
		}
		_, err := client.do("place "+strings.TrimSuffix(side, "s"), client.http.R().SetBody(map[string]string{
			"price": price.String(),
			"qty":   qty.String(),
		}), http.MethodPost, "/api/v1/book/"+symbol+"/"+side, &placed)
		if err != nil {
			zlog.Warn().Err(err).Str("symbol", symbol).Msg("Book order failed")
			continue
		}
		trades += len(placed.Trades)
	}
	zlog.Info().Int("orders", n).Int("trades", trades).Msg("Order book traffic done")
}

func fallbackPrice(symbol string) (decimal.Decimal, bool) {
	raw, ok := pricing.FallbackPrices[symbol]
	if !ok {
		return decimal.Zero, false
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return price, true
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
