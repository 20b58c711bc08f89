package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// OrderbookCache mirrors live orderbook state to an external store.
type OrderbookCache interface {
	SetSnapshot(ctx context.Context, snap BookSnapshot) error
	UpdateLevel(ctx context.Context, symbol string, side Side, price, size decimal.Decimal) error
	GetSnapshot(ctx context.Context, symbol string) (BookSnapshot, error)
}

// StreamMessage is one entry read back from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamTail(ctx context.Context, stream string, count int) ([]StreamMessage, error)
}
