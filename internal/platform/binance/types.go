// Package binance implements the depth-stream and depth-snapshot endpoints of
// a Binance-compatible spot venue.
package binance

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradecore/internal/domain"
)

// DepthEvent is the wire shape of one "<symbol>@depth" frame. Both "e"/"E"
// and "U"/"u" are declared so the case-insensitive JSON matcher never folds
// one into the other.
type DepthEvent struct {
	EventType     string     `json:"e"`
	EventTime     int64      `json:"E"`
	Symbol        string     `json:"s"`
	FirstUpdateID int64      `json:"U"`
	FinalUpdateID int64      `json:"u"`
	Bids          [][]string `json:"b"`
	Asks          [][]string `json:"a"`
}

// DepthSnapshot is the REST /api/v3/depth response.
type DepthSnapshot struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// DecodeDepthEvent parses a raw frame. Frames that are not depth updates
// (subscription acks and the like) return ok == false and no error.
func DecodeDepthEvent(raw []byte) (diff domain.DepthDiff, ok bool, err error) {
	var ev DepthEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return domain.DepthDiff{}, false, fmt.Errorf("%w: decode depth frame: %v", domain.ErrProtocol, err)
	}
	if ev.EventType != "" && ev.EventType != "depthUpdate" {
		return domain.DepthDiff{}, false, nil
	}
	if ev.FinalUpdateID == 0 && ev.Bids == nil && ev.Asks == nil {
		return domain.DepthDiff{}, false, nil
	}
	return ev.ToDomain()
}

// ToDomain converts the event, parsing every price and size at full precision.
func (ev DepthEvent) ToDomain() (domain.DepthDiff, bool, error) {
	bids, err := parseLevels(ev.Bids)
	if err != nil {
		return domain.DepthDiff{}, false, fmt.Errorf("bids: %w", err)
	}
	asks, err := parseLevels(ev.Asks)
	if err != nil {
		return domain.DepthDiff{}, false, fmt.Errorf("asks: %w", err)
	}
	diff := domain.DepthDiff{
		Symbol:        strings.ToUpper(ev.Symbol),
		FirstUpdateID: ev.FirstUpdateID,
		FinalUpdateID: ev.FinalUpdateID,
		Bids:          bids,
		Asks:          asks,
	}
	if ev.EventTime > 0 {
		diff.EventTime = time.UnixMilli(ev.EventTime)
	}
	return diff, true, nil
}

// ToDomain converts the REST snapshot for symbol.
func (s DepthSnapshot) ToDomain(symbol string) (domain.BookSnapshot, error) {
	bids, err := parseLevels(s.Bids)
	if err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("bids: %w", err)
	}
	asks, err := parseLevels(s.Asks)
	if err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("asks: %w", err)
	}
	return domain.BookSnapshot{
		Symbol:       symbol,
		LastUpdateID: s.LastUpdateID,
		Bids:         bids,
		Asks:         asks,
	}, nil
}

func parseLevels(raw [][]string) ([]domain.PriceLevel, error) {
	out := make([]domain.PriceLevel, 0, len(raw))
	for i, pair := range raw {
		if len(pair) < 2 {
			return nil, fmt.Errorf("%w: level %d has %d fields", domain.ErrProtocol, i, len(pair))
		}
		price, err := decimal.NewFromString(pair[0])
		if err != nil {
			return nil, fmt.Errorf("%w: level %d price %q", domain.ErrProtocol, i, pair[0])
		}
		size, err := decimal.NewFromString(pair[1])
		if err != nil {
			return nil, fmt.Errorf("%w: level %d size %q", domain.ErrProtocol, i, pair[1])
		}
		if size.IsNegative() {
			return nil, fmt.Errorf("%w: level %d negative size %q", domain.ErrProtocol, i, pair[1])
		}
		out = append(out, domain.PriceLevel{Price: price, Size: size})
	}
	return out, nil
}
