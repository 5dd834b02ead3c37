package book

import (
	"errors"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrInvalidEntry = errors.New("price and quantity must be positive")

type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// Entry is one resting order on a book side.
type Entry struct {
	ID        string          `json:"id"`
	Price     decimal.Decimal `json:"price"`
	Qty       decimal.Decimal `json:"qty"`
	Timestamp time.Time       `json:"timestamp"`
	seq       uint64
}

// Trade is one cross between the best bid and the best ask.
type Trade struct {
	BidID     string          `json:"bid_id"`
	AskID     string          `json:"ask_id"`
	Price     decimal.Decimal `json:"price"`
	Qty       decimal.Decimal `json:"qty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Snapshot is a copy of both sides in priority order.
type Snapshot struct {
	Symbol string  `json:"symbol"`
	Bids   []Entry `json:"bids"`
	Asks   []Entry `json:"asks"`
}

// Level aggregates all entries resting at one price.
type Level struct {
	Price decimal.Decimal `json:"price"`
	Qty   decimal.Decimal `json:"qty"`
	Count int             `json:"count"`
}

type Depth struct {
	Symbol string  `json:"symbol"`
	Bids   []Level `json:"bids"`
	Asks   []Level `json:"asks"`
}

// bidLess orders bids by price descending, then arrival. Min() is the best bid.
func bidLess(a, b *Entry) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c > 0
	}
	return a.seq < b.seq
}

// askLess orders asks by price ascending, then arrival. Min() is the best ask.
func askLess(a, b *Entry) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c < 0
	}
	return a.seq < b.seq
}

// Book holds the resting bids and asks of one instrument.
type Book struct {
	symbol string
	mu     sync.Mutex
	bids   *btree.BTreeG[*Entry]
	asks   *btree.BTreeG[*Entry]
	seq    uint64
	now    func() time.Time
}

func New(symbol string) *Book {
	const degree = 32
	return &Book{
		symbol: symbol,
		bids:   btree.NewG[*Entry](degree, bidLess),
		asks:   btree.NewG[*Entry](degree, askLess),
		now:    time.Now,
	}
}

func (b *Book) Symbol() string {
	return b.symbol
}

// Insert adds an entry to one side. Missing ids and timestamps are filled in.
// Arrival order is the order of Insert calls, regardless of Timestamp.
func (b *Book) Insert(side Side, e Entry) (Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.insert(side, e)
}

// Match crosses the book until the best bid is below the best ask.
func (b *Book) Match() []Trade {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.match()
}

// Place inserts e and matches in one step, so no other caller can observe
// a crossed book.
func (b *Book) Place(side Side, e Entry) (Entry, []Trade, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	placed, err := b.insert(side, e)
	if err != nil {
		return Entry{}, nil, err
	}
	return placed, b.match(), nil
}

func (b *Book) insert(side Side, e Entry) (Entry, error) {
	if !e.Price.IsPositive() || !e.Qty.IsPositive() {
		return Entry{}, ErrInvalidEntry
	}

	var tree *btree.BTreeG[*Entry]
	switch side {
	case SideBid:
		tree = b.bids
	case SideAsk:
		tree = b.asks
	default:
		return Entry{}, errors.New("side must be bid or ask")
	}

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = b.now()
	}
	b.seq++
	e.seq = b.seq

	stored := e
	tree.ReplaceOrInsert(&stored)
	return e, nil
}

func (b *Book) match() []Trade {
	var trades []Trade
	for {
		bid, ok := b.bids.Min()
		if !ok {
			break
		}
		ask, ok := b.asks.Min()
		if !ok || bid.Price.LessThan(ask.Price) {
			break
		}

		qty := decimal.Min(bid.Qty, ask.Qty)
		// Trades print at the resting (earlier) order's price.
		price := ask.Price
		if bid.seq < ask.seq {
			price = bid.Price
		}

		bid.Qty = bid.Qty.Sub(qty)
		ask.Qty = ask.Qty.Sub(qty)
		if bid.Qty.IsZero() {
			b.bids.DeleteMin()
		}
		if ask.Qty.IsZero() {
			b.asks.DeleteMin()
		}

		trades = append(trades, Trade{
			BidID:     bid.ID,
			AskID:     ask.ID,
			Price:     price,
			Qty:       qty,
			Timestamp: b.now(),
		})
	}
	return trades
}

// Snapshot returns copies of both sides; callers cannot mutate the book.
func (b *Book) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Snapshot{
		Symbol: b.symbol,
		Bids:   collect(b.bids),
		Asks:   collect(b.asks),
	}
}

// Depth aggregates up to n price levels per side.
func (b *Book) Depth(n int) Depth {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Depth{
		Symbol: b.symbol,
		Bids:   levels(b.bids, n),
		Asks:   levels(b.asks, n),
	}
}

func collect(tree *btree.BTreeG[*Entry]) []Entry {
	out := make([]Entry, 0, tree.Len())
	tree.Ascend(func(e *Entry) bool {
		out = append(out, *e)
		return true
	})
	return out
}

func levels(tree *btree.BTreeG[*Entry], n int) []Level {
	out := make([]Level, 0)
	if n <= 0 {
		return out
	}
	tree.Ascend(func(e *Entry) bool {
		if len(out) > 0 && out[len(out)-1].Price.Equal(e.Price) {
			out[len(out)-1].Qty = out[len(out)-1].Qty.Add(e.Qty)
			out[len(out)-1].Count++
			return true
		}
		if len(out) >= n {
			return false
		}
		out = append(out, Level{Price: e.Price, Qty: e.Qty, Count: 1})
		return true
	})
	return out
}

// Manager owns one Book per symbol. Books are independent of each other.
type Manager struct {
	mu    sync.RWMutex
	books map[string]*Book
}

func NewManager() *Manager {
	return &Manager{
		books: make(map[string]*Book),
	}
}

// GetOrCreate returns the book for symbol, creating it on first use.
func (m *Manager) GetOrCreate(symbol string) *Book {
	m.mu.RLock()
	b, ok := m.books[symbol]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok = m.books[symbol]; ok {
		return b
	}
	b = New(symbol)
	m.books[symbol] = b
	return b
}

func (m *Manager) Get(symbol string) (*Book, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[symbol]
	return b, ok
}
