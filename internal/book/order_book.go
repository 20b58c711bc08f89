// Package book maintains the aggregated, price-indexed depth of one symbol as
// seen on a single venue.
package book

import (
	"iter"
	"sync"

	"github.com/igrmk/treemap/v2"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradecore/internal/domain"
)

type levels = treemap.TreeMap[decimal.Decimal, decimal.Decimal]

// OrderBook keeps both sides of one symbol's depth. Bids iterate from the
// highest price and asks from the lowest, so iteration order is always
// priority order. A crossed book is stored as received.
//
// The book is guarded by a reader/writer lock: the feed is the only writer and
// order submission reads it from arbitrary goroutines.
type OrderBook struct {
	symbol string

	mu           sync.RWMutex
	bids         *levels
	asks         *levels
	lastUpdateID int64
}

// New creates an empty OrderBook for symbol.
func New(symbol string) *OrderBook {
	return &OrderBook{
		symbol: symbol,
		bids: treemap.NewWithKeyCompare[decimal.Decimal, decimal.Decimal](func(a, b decimal.Decimal) bool {
			return a.GreaterThan(b)
		}),
		asks: treemap.NewWithKeyCompare[decimal.Decimal, decimal.Decimal](func(a, b decimal.Decimal) bool {
			return a.LessThan(b)
		}),
	}
}

// Symbol returns the instrument this book tracks.
func (b *OrderBook) Symbol() string {
	return b.symbol
}

func (b *OrderBook) side(s domain.Side) *levels {
	if s == domain.SideBid {
		return b.bids
	}
	return b.asks
}

// ApplySnapshot replaces both sides wholesale. Entries with a size <= 0 are
// dropped.
func (b *OrderBook) ApplySnapshot(snap domain.BookSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bids.Clear()
	b.asks.Clear()
	for _, lvl := range snap.Bids {
		if lvl.Size.IsPositive() {
			b.bids.Set(lvl.Price, lvl.Size)
		}
	}
	for _, lvl := range snap.Asks {
		if lvl.Size.IsPositive() {
			b.asks.Set(lvl.Price, lvl.Size)
		}
	}
	b.lastUpdateID = snap.LastUpdateID
}

// ApplyIncremental sets the size at price, removing the level when size is
// zero. Removing an absent level is a no-op.
func (b *OrderBook) ApplyIncremental(s domain.Side, price, size decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tree := b.side(s)
	if size.Sign() <= 0 {
		tree.Del(price)
		return
	}
	tree.Set(price, size)
}

// SetLastUpdateID records the venue sequence the book currently reflects.
func (b *OrderBook) SetLastUpdateID(id int64) {
	b.mu.Lock()
	b.lastUpdateID = id
	b.mu.Unlock()
}

// LastUpdateID returns the venue sequence of the last applied change.
func (b *OrderBook) LastUpdateID() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdateID
}

// Best returns the top level of side, or domain.ErrEmptyBook.
func (b *OrderBook) Best(s domain.Side) (domain.PriceLevel, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	it := b.side(s).Iterator()
	if !it.Valid() {
		return domain.PriceLevel{}, domain.ErrEmptyBook
	}
	return domain.PriceLevel{Price: it.Key(), Size: it.Value()}, nil
}

// Levels returns the number of price levels on side.
func (b *OrderBook) Levels(s domain.Side) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.side(s).Len()
}

// Depth yields up to n levels of side, best first. The sequence is evaluated
// lazily and can be ranged over any number of times; each pass holds the read
// lock until it finishes, so the loop body must not call back into the book.
func (b *OrderBook) Depth(s domain.Side, n int) iter.Seq[domain.PriceLevel] {
	return func(yield func(domain.PriceLevel) bool) {
		if n <= 0 {
			return
		}
		b.mu.RLock()
		defer b.mu.RUnlock()

		count := 0
		for it := b.side(s).Iterator(); it.Valid() && count < n; it.Next() {
			count++
			if !yield(domain.PriceLevel{Price: it.Key(), Size: it.Value()}) {
				return
			}
		}
	}
}

// Snapshot copies up to n levels per side (all levels when n <= 0).
func (b *OrderBook) Snapshot(n int) domain.BookSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return domain.BookSnapshot{
		Symbol:       b.symbol,
		LastUpdateID: b.lastUpdateID,
		Bids:         collect(b.bids, n),
		Asks:         collect(b.asks, n),
	}
}

func collect(tree *levels, n int) []domain.PriceLevel {
	size := tree.Len()
	if n > 0 && n < size {
		size = n
	}
	out := make([]domain.PriceLevel, 0, size)
	for it := tree.Iterator(); it.Valid() && len(out) < size; it.Next() {
		out = append(out, domain.PriceLevel{Price: it.Key(), Size: it.Value()})
	}
	return out
}
