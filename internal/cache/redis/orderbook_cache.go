package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradecore/internal/domain"
)

// updateLevelLua upserts or removes one level and refreshes the side's best
// price in the bbo hash.
//
// KEYS: zset, size hash, bbo hash. ARGV: price, size, "bid"|"ask".
const updateLevelLua = `
if tonumber(ARGV[2]) == 0 then
    redis.call('ZREM', KEYS[1], ARGV[1])
    redis.call('HDEL', KEYS[2], ARGV[1])
else
    redis.call('ZADD', KEYS[1], ARGV[1], ARGV[1])
    redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
end
local best
if ARGV[3] == 'bid' then
    best = redis.call('ZREVRANGE', KEYS[1], 0, 0)
else
    best = redis.call('ZRANGE', KEYS[1], 0, 0)
end
if best[1] then
    redis.call('HSET', KEYS[3], ARGV[3], best[1])
else
    redis.call('HDEL', KEYS[3], ARGV[3])
end
return 1
`

// OrderbookCache implements domain.OrderbookCache with sorted sets and hashes.
// Prices are stored as their exact decimal strings; the zset score is only
// used for ordering.
//
// Key schema:
//
//	book:{symbol}:bids     - sorted set of bid prices (score = price)
//	book:{symbol}:asks     - sorted set of ask prices (score = price)
//	book:{symbol}:bid:size - hash mapping price -> size for bids
//	book:{symbol}:ask:size - hash mapping price -> size for asks
//	book:{symbol}:bbo      - hash with fields "bid" and "ask" (best prices)
//	book:{symbol}:meta     - hash with "ts" and "last_update_id"
type OrderbookCache struct {
	rdb         *redis.Client
	updateLevel *redis.Script
}

// NewOrderbookCache creates an OrderbookCache backed by the given Client.
func NewOrderbookCache(c *Client) *OrderbookCache {
	return &OrderbookCache{
		rdb:         c.Underlying(),
		updateLevel: redis.NewScript(updateLevelLua),
	}
}

func bookBidsKey(symbol string) string    { return "book:" + symbol + ":bids" }
func bookAsksKey(symbol string) string    { return "book:" + symbol + ":asks" }
func bookBidSizeKey(symbol string) string { return "book:" + symbol + ":bid:size" }
func bookAskSizeKey(symbol string) string { return "book:" + symbol + ":ask:size" }
func bookBBOKey(symbol string) string     { return "book:" + symbol + ":bbo" }
func bookMetaKey(symbol string) string    { return "book:" + symbol + ":meta" }

func sideKeys(symbol string, side domain.Side) (zKey, hKey string) {
	if side == domain.SideBid {
		return bookBidsKey(symbol), bookBidSizeKey(symbol)
	}
	return bookAsksKey(symbol), bookAskSizeKey(symbol)
}

func score(price decimal.Decimal) float64 {
	f, _ := price.Float64()
	return f
}

// SetSnapshot atomically replaces the mirrored book for snap.Symbol.
func (oc *OrderbookCache) SetSnapshot(ctx context.Context, snap domain.BookSnapshot) error {
	sym := snap.Symbol
	bboKey := bookBBOKey(sym)

	pipe := oc.rdb.TxPipeline()
	pipe.Del(ctx, bookBidsKey(sym), bookAsksKey(sym), bookBidSizeKey(sym), bookAskSizeKey(sym), bboKey, bookMetaKey(sym))

	write := func(side domain.Side, levels []domain.PriceLevel) {
		zKey, hKey := sideKeys(sym, side)
		for _, lvl := range levels {
			p := lvl.Price.String()
			pipe.ZAdd(ctx, zKey, redis.Z{Score: score(lvl.Price), Member: p})
			pipe.HSet(ctx, hKey, p, lvl.Size.String())
		}
		if len(levels) > 0 {
			pipe.HSet(ctx, bboKey, side.String(), levels[0].Price.String())
		}
	}
	write(domain.SideBid, snap.Bids)
	write(domain.SideAsk, snap.Asks)

	pipe.HSet(ctx, bookMetaKey(sym),
		"ts", strconv.FormatInt(time.Now().UnixNano(), 10),
		"last_update_id", strconv.FormatInt(snap.LastUpdateID, 10),
	)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set orderbook snapshot %s: %w", sym, err)
	}
	return nil
}

// UpdateLevel applies one incremental level; size zero removes it.
func (oc *OrderbookCache) UpdateLevel(ctx context.Context, symbol string, side domain.Side, price, size decimal.Decimal) error {
	zKey, hKey := sideKeys(symbol, side)
	keys := []string{zKey, hKey, bookBBOKey(symbol)}
	p := price.String()

	if err := oc.updateLevel.Run(ctx, oc.rdb, keys, p, size.String(), side.String()).Err(); err != nil {
		return fmt.Errorf("redis: update level %s %s@%s: %w", symbol, side, p, err)
	}
	return nil
}

// GetSnapshot rebuilds the mirrored book, best-first on both sides. It returns
// domain.ErrNotFound if no snapshot was ever written for symbol.
func (oc *OrderbookCache) GetSnapshot(ctx context.Context, symbol string) (domain.BookSnapshot, error) {
	pipe := oc.rdb.Pipeline()
	bidsCmd := pipe.ZRevRange(ctx, bookBidsKey(symbol), 0, -1)
	asksCmd := pipe.ZRange(ctx, bookAsksKey(symbol), 0, -1)
	bidSizeCmd := pipe.HGetAll(ctx, bookBidSizeKey(symbol))
	askSizeCmd := pipe.HGetAll(ctx, bookAskSizeKey(symbol))
	metaCmd := pipe.HGetAll(ctx, bookMetaKey(symbol))

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return domain.BookSnapshot{}, fmt.Errorf("redis: get orderbook snapshot %s: %w", symbol, err)
	}

	meta, _ := metaCmd.Result()
	if len(meta) == 0 {
		return domain.BookSnapshot{}, domain.ErrNotFound
	}

	snap := domain.BookSnapshot{Symbol: symbol}
	if id, err := strconv.ParseInt(meta["last_update_id"], 10, 64); err == nil {
		snap.LastUpdateID = id
	}

	bidPrices, _ := bidsCmd.Result()
	bidSizes, _ := bidSizeCmd.Result()
	snap.Bids = parseLevels(bidPrices, bidSizes)

	askPrices, _ := asksCmd.Result()
	askSizes, _ := askSizeCmd.Result()
	snap.Asks = parseLevels(askPrices, askSizes)

	return snap, nil
}

func parseLevels(prices []string, sizes map[string]string) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(prices))
	for _, p := range prices {
		price, err := decimal.NewFromString(p)
		if err != nil {
			continue
		}
		size, err := decimal.NewFromString(sizes[p])
		if err != nil {
			continue
		}
		out = append(out, domain.PriceLevel{Price: price, Size: size})
	}
	return out
}

// Compile-time interface check.
var _ domain.OrderbookCache = (*OrderbookCache)(nil)
