package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Sign returns +1 for buys and -1 for sells.
func (s OrderSide) Sign() decimal.Decimal {
	if s == OrderSideSell {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// OrderState is the lifecycle tag of a simulated order.
type OrderState int

const (
	OrderStatePendingNew OrderState = iota + 1
	OrderStateFilled
	OrderStateCanceled
)

func (s OrderState) String() string {
	switch s {
	case OrderStatePendingNew:
		return "pending_new"
	case OrderStateFilled:
		return "filled"
	case OrderStateCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// NewOrder is a caller's order intent. Values are passed by copy and never
// mutated after construction.
type NewOrder struct {
	OrderID string
	Symbol  string
	Side    OrderSide
	Price   decimal.Decimal
	Size    decimal.Decimal
}

// NewLimitOrder builds a NewOrder and rejects an empty id, an unknown side or a
// non-positive size.
func NewLimitOrder(orderID, symbol string, side OrderSide, price, size decimal.Decimal) (NewOrder, error) {
	if orderID == "" {
		return NewOrder{}, fmt.Errorf("%w: empty order id", ErrInvalidOrder)
	}
	if side != OrderSideBuy && side != OrderSideSell {
		return NewOrder{}, fmt.Errorf("%w: side %q", ErrInvalidOrder, side)
	}
	if !size.IsPositive() {
		return NewOrder{}, fmt.Errorf("%w: size must be > 0, got %s", ErrInvalidOrder, size)
	}
	return NewOrder{
		OrderID: orderID,
		Symbol:  symbol,
		Side:    side,
		Price:   price,
		Size:    size,
	}, nil
}

// IsBuy reports whether the order buys.
func (o NewOrder) IsBuy() bool { return o.Side == OrderSideBuy }

// SignedSize is +size for buys and -size for sells.
func (o NewOrder) SignedSize() decimal.Decimal { return o.Size.Mul(o.Side.Sign()) }

// ExecutionReport is the outcome of one submission or cancellation.
type ExecutionReport struct {
	ExecID    string
	OrderID   string
	Symbol    string
	Side      OrderSide
	ExecPrice decimal.Decimal // volume-weighted
	ExecSize  decimal.Decimal
	IsFill    bool
	Timestamp time.Time
}

// IsBuy reports whether the report belongs to a buy order.
func (r ExecutionReport) IsBuy() bool { return r.Side == OrderSideBuy }

// SignedSize is the filled quantity signed by side.
func (r ExecutionReport) SignedSize() decimal.Decimal { return r.ExecSize.Mul(r.Side.Sign()) }
