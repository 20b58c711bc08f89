package domain

import "github.com/shopspring/decimal"

// Position is the signed net exposure for one symbol. Buys are positive.
type Position struct {
	Symbol   string
	Quantity decimal.Decimal
}
