package binance

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradecore/internal/domain"
)

func TestDecodeDepthEvent(t *testing.T) {
	t.Run("depth update", func(t *testing.T) {
		raw := []byte(`{"e":"depthUpdate","E":1700000000123,"s":"BTCUSDT","U":157,"u":160,
			"b":[["0.0024","10"],["0.0023","0"]],"a":[["0.0026","100.00000001"]]}`)

		diff, ok, err := DecodeDepthEvent(raw)
		require.NoError(t, err)
		require.True(t, ok)

		assert.Equal(t, "BTCUSDT", diff.Symbol)
		assert.Equal(t, int64(157), diff.FirstUpdateID)
		assert.Equal(t, int64(160), diff.FinalUpdateID)
		assert.Equal(t, int64(1700000000123), diff.EventTime.UnixMilli())
		require.Len(t, diff.Bids, 2)
		require.Len(t, diff.Asks, 1)
		assert.True(t, diff.Bids[1].Size.IsZero())
		assert.True(t, decimal.RequireFromString("100.00000001").Equal(diff.Asks[0].Size))
	})

	t.Run("non depth frame skipped", func(t *testing.T) {
		_, ok, err := DecodeDepthEvent([]byte(`{"result":null,"id":1}`))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, _, err := DecodeDepthEvent([]byte(`{"e":`))
		assert.ErrorIs(t, err, domain.ErrProtocol)
	})

	t.Run("malformed price", func(t *testing.T) {
		_, _, err := DecodeDepthEvent([]byte(`{"e":"depthUpdate","U":1,"u":2,"b":[["abc","1"]],"a":[]}`))
		assert.ErrorIs(t, err, domain.ErrProtocol)
	})

	t.Run("short level", func(t *testing.T) {
		_, _, err := DecodeDepthEvent([]byte(`{"e":"depthUpdate","U":1,"u":2,"b":[],"a":[["1.0"]]}`))
		assert.ErrorIs(t, err, domain.ErrProtocol)
	})
}

func TestDepthSnapshotToDomain(t *testing.T) {
	raw := DepthSnapshot{
		LastUpdateID: 1027024,
		Bids:         [][]string{{"4.00000000", "431.00000000"}},
		Asks:         [][]string{{"4.00000200", "12.00000000"}},
	}

	snap, err := raw.ToDomain("BNBBTC")
	require.NoError(t, err)
	assert.Equal(t, "BNBBTC", snap.Symbol)
	assert.Equal(t, int64(1027024), snap.LastUpdateID)
	assert.True(t, decimal.RequireFromString("4.000002").Equal(snap.Asks[0].Price))

	raw.Asks = [][]string{{"4.0", "-1"}}
	_, err = raw.ToDomain("BNBBTC")
	assert.ErrorIs(t, err, domain.ErrProtocol)
}
