package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side selects one half of an order book.
type Side int

const (
	SideBid Side = iota
	SideAsk
)

// String returns "bid" or "ask".
func (s Side) String() string {
	if s == SideBid {
		return "bid"
	}
	return "ask"
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == SideBid {
		return SideAsk
	}
	return SideBid
}

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// BookSnapshot is a full-depth bootstrap payload for one symbol. LastUpdateID
// is the venue sequence the snapshot reflects. Feeds that bridge a snapshot
// onto a diff stream require it to be positive.
type BookSnapshot struct {
	Symbol       string
	LastUpdateID int64
	Bids         []PriceLevel
	Asks         []PriceLevel
}

// DepthDiff is one decoded frame of the incremental depth stream. Every level
// names the new absolute size at that price; a zero size removes the level.
type DepthDiff struct {
	Symbol        string
	FirstUpdateID int64
	FinalUpdateID int64
	Bids          []PriceLevel
	Asks          []PriceLevel
	EventTime     time.Time
}

// MarketDataUpdate is one normalized tick published after the matching book
// mutation has been applied.
type MarketDataUpdate struct {
	Symbol   string
	Side     Side
	Price    decimal.Decimal
	Size     decimal.Decimal
	Venue    string
	UpdateID int64
}
