package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradecore/internal/domain"
)

func TestParseKV(t *testing.T) {
	kv, err := ParseKV(strings.NewReader(`
# comment
symbols=BTCUSDT,ETHUSDT
risk.maxPosition = 100
not a pair
depth=abc
ratio=0.25
symbols=BTCUSDT,SOLUSDT
`))
	require.NoError(t, err)

	s, err := kv.String("symbols")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT,SOLUSDT", s)

	n, err := kv.Int("risk.maxPosition")
	require.NoError(t, err)
	assert.Equal(t, 100, n)

	f, err := kv.Float("ratio")
	require.NoError(t, err)
	assert.Equal(t, 0.25, f)

	d, err := kv.Decimal("ratio")
	require.NoError(t, err)
	assert.Equal(t, "0.25", d.String())

	_, err = kv.String("missing")
	assert.ErrorIs(t, err, domain.ErrMissingKey)

	_, err = kv.Int("depth")
	assert.ErrorIs(t, err, domain.ErrMalformedValue)

	_, err = kv.Float("depth")
	assert.ErrorIs(t, err, domain.ErrMalformedValue)

	assert.Equal(t, []string{"depth", "ratio", "risk.maxPosition", "symbols"}, kv.Keys())
}

func TestParseSymbols(t *testing.T) {
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, ParseSymbols(" btcusdt,,ETHUSDT, "))
	assert.Empty(t, ParseSymbols(""))
}
