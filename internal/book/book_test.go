package book

import (
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func entry(price, qty string) Entry {
	return Entry{Price: d(price), Qty: d(qty)}
}

func TestMatch_PartialCrossLeavesRemainder(t *testing.T) {
	b := New("TEST")

	bid, err := b.Insert(SideBid, entry("10", "5"))
	require.NoError(t, err)
	ask, err := b.Insert(SideAsk, entry("9", "3"))
	require.NoError(t, err)

	trades := b.Match()
	require.Len(t, trades, 1)
	assert.Equal(t, bid.ID, trades[0].BidID)
	assert.Equal(t, ask.ID, trades[0].AskID)
	assert.True(t, trades[0].Qty.Equal(d("3")))

	snap := b.Snapshot()
	require.Len(t, snap.Bids, 1)
	assert.True(t, snap.Bids[0].Price.Equal(d("10")))
	assert.True(t, snap.Bids[0].Qty.Equal(d("2")))
	assert.Empty(t, snap.Asks)
}

func TestMatch_TradesAtRestingPrice(t *testing.T) {
	t.Run("resting bid", func(t *testing.T) {
		b := New("TEST")
		_, _, err := b.Place(SideBid, entry("10", "1"))
		require.NoError(t, err)
		_, trades, err := b.Place(SideAsk, entry("9", "1"))
		require.NoError(t, err)

		require.Len(t, trades, 1)
		assert.True(t, trades[0].Price.Equal(d("10")))
	})

	t.Run("resting ask", func(t *testing.T) {
		b := New("TEST")
		_, _, err := b.Place(SideAsk, entry("9", "1"))
		require.NoError(t, err)
		_, trades, err := b.Place(SideBid, entry("10", "1"))
		require.NoError(t, err)

		require.Len(t, trades, 1)
		assert.True(t, trades[0].Price.Equal(d("9")))
	})
}

func TestMatch_WalksMultipleLevels(t *testing.T) {
	b := New("TEST")
	for _, p := range []string{"101", "100", "102"} {
		_, err := b.Insert(SideAsk, entry(p, "1"))
		require.NoError(t, err)
	}
	_, trades, err := b.Place(SideBid, entry("101.5", "5"))
	require.NoError(t, err)

	require.Len(t, trades, 2)
	assert.True(t, trades[0].Price.Equal(d("100")))
	assert.True(t, trades[1].Price.Equal(d("101")))

	snap := b.Snapshot()
	require.Len(t, snap.Bids, 1)
	assert.True(t, snap.Bids[0].Qty.Equal(d("3")))
	require.Len(t, snap.Asks, 1)
	assert.True(t, snap.Asks[0].Price.Equal(d("102")))
}

func TestMatch_NoCrossLeavesBookUntouched(t *testing.T) {
	b := New("TEST")
	_, err := b.Insert(SideBid, entry("9", "1"))
	require.NoError(t, err)
	_, err = b.Insert(SideAsk, entry("10", "1"))
	require.NoError(t, err)

	assert.Empty(t, b.Match())
	snap := b.Snapshot()
	assert.Len(t, snap.Bids, 1)
	assert.Len(t, snap.Asks, 1)
}

func TestInsert_RejectsNonPositive(t *testing.T) {
	b := New("TEST")
	for _, e := range []Entry{entry("0", "1"), entry("1", "0"), entry("-1", "1"), entry("1", "-2")} {
		_, err := b.Insert(SideBid, e)
		assert.ErrorIs(t, err, ErrInvalidEntry)
	}
	_, err := b.Insert(Side("middle"), entry("1", "1"))
	assert.Error(t, err)
	assert.Empty(t, b.Snapshot().Bids)
}

func TestInsert_TiesKeepArrivalOrder(t *testing.T) {
	b := New("TEST")
	first, err := b.Insert(SideBid, entry("10", "1"))
	require.NoError(t, err)
	second, err := b.Insert(SideBid, entry("10", "2"))
	require.NoError(t, err)

	snap := b.Snapshot()
	require.Len(t, snap.Bids, 2)
	assert.Equal(t, first.ID, snap.Bids[0].ID)
	assert.Equal(t, second.ID, snap.Bids[1].ID)
}

func TestSnapshot_IsACopy(t *testing.T) {
	b := New("TEST")
	_, err := b.Insert(SideBid, entry("10", "1"))
	require.NoError(t, err)

	snap := b.Snapshot()
	snap.Bids[0].Qty = d("99")

	assert.True(t, b.Snapshot().Bids[0].Qty.Equal(d("1")))
}

func TestDepth_AggregatesLevels(t *testing.T) {
	b := New("TEST")
	for _, e := range []Entry{entry("10", "1"), entry("10", "2"), entry("9", "4"), entry("8", "1")} {
		_, err := b.Insert(SideBid, e)
		require.NoError(t, err)
	}

	depth := b.Depth(2)
	require.Len(t, depth.Bids, 2)
	assert.True(t, depth.Bids[0].Price.Equal(d("10")))
	assert.True(t, depth.Bids[0].Qty.Equal(d("3")))
	assert.Equal(t, 2, depth.Bids[0].Count)
	assert.True(t, depth.Bids[1].Price.Equal(d("9")))
	assert.Empty(t, depth.Asks)
	assert.Empty(t, b.Depth(0).Bids)
}

func TestManager_GetOrCreate(t *testing.T) {
	m := NewManager()

	_, ok := m.Get("AAPL")
	assert.False(t, ok)

	var wg sync.WaitGroup
	books := make([]*Book, 16)
	for i := range books {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			books[i] = m.GetOrCreate("AAPL")
		}(i)
	}
	wg.Wait()

	for _, b := range books {
		assert.Same(t, books[0], b)
	}
	assert.NotSame(t, books[0], m.GetOrCreate("MSFT"))
}

func genEntry(t *rapid.T, label string) Entry {
	return Entry{
		Price: decimal.New(rapid.Int64Range(1, 50).Draw(t, label+"-price"), -1),
		Qty:   decimal.NewFromInt(rapid.Int64Range(1, 10).Draw(t, label+"-qty")),
	}
}

func TestProperty_SidesStaySorted(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := New("TEST")
		n := rapid.IntRange(1, 60).Draw(t, "ops")
		for i := 0; i < n; i++ {
			side := SideBid
			if rapid.Bool().Draw(t, fmt.Sprintf("ask-%d", i)) {
				side = SideAsk
			}
			if _, _, err := b.Place(side, genEntry(t, fmt.Sprintf("e%d", i))); err != nil {
				t.Fatalf("place: %v", err)
			}

			snap := b.Snapshot()
			for j := 1; j < len(snap.Bids); j++ {
				if snap.Bids[j].Price.GreaterThan(snap.Bids[j-1].Price) {
					t.Fatalf("bids out of order: %s after %s", snap.Bids[j].Price, snap.Bids[j-1].Price)
				}
			}
			for j := 1; j < len(snap.Asks); j++ {
				if snap.Asks[j].Price.LessThan(snap.Asks[j-1].Price) {
					t.Fatalf("asks out of order: %s after %s", snap.Asks[j].Price, snap.Asks[j-1].Price)
				}
			}
			if len(snap.Bids) > 0 && len(snap.Asks) > 0 && !snap.Bids[0].Price.LessThan(snap.Asks[0].Price) {
				t.Fatalf("book left crossed: bid %s ask %s", snap.Bids[0].Price, snap.Asks[0].Price)
			}
		}
	})
}

func TestProperty_QuantityIsConserved(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := New("TEST")
		bidIn, askIn := decimal.Zero, decimal.Zero
		traded := decimal.Zero

		n := rapid.IntRange(1, 40).Draw(t, "ops")
		for i := 0; i < n; i++ {
			side := SideBid
			if rapid.Bool().Draw(t, fmt.Sprintf("ask-%d", i)) {
				side = SideAsk
			}
			e := genEntry(t, fmt.Sprintf("e%d", i))
			if side == SideBid {
				bidIn = bidIn.Add(e.Qty)
			} else {
				askIn = askIn.Add(e.Qty)
			}
			_, trades, err := b.Place(side, e)
			if err != nil {
				t.Fatalf("place: %v", err)
			}
			for _, tr := range trades {
				if !tr.Qty.IsPositive() {
					t.Fatalf("non-positive trade qty %s", tr.Qty)
				}
				traded = traded.Add(tr.Qty)
			}
		}

		snap := b.Snapshot()
		bidLeft, askLeft := decimal.Zero, decimal.Zero
		for _, e := range snap.Bids {
			bidLeft = bidLeft.Add(e.Qty)
		}
		for _, e := range snap.Asks {
			askLeft = askLeft.Add(e.Qty)
		}
		if !bidIn.Sub(traded).Equal(bidLeft) {
			t.Fatalf("bid qty not conserved: in %s traded %s left %s", bidIn, traded, bidLeft)
		}
		if !askIn.Sub(traded).Equal(askLeft) {
			t.Fatalf("ask qty not conserved: in %s traded %s left %s", askIn, traded, askLeft)
		}
	})
}
