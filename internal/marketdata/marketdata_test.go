package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderwatch/internal/config"
	"orderwatch/internal/domain"
	"orderwatch/internal/util"
)

func TestStaticOracle(t *testing.T) {
	ctx := context.Background()
	o := NewStaticOracle()

	_, err := o.Quote(ctx, "AAPL")
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)

	o.SetQuote("aapl", decimal.NewFromInt(100), decimal.NewFromInt(5000))
	q, err := o.Quote(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", q.Symbol)
	assert.True(t, q.Price.Equal(decimal.NewFromInt(100)))
	assert.True(t, q.Volume.Equal(decimal.NewFromInt(5000)))

	o.SetPrice("AAPL", decimal.NewFromInt(94))
	q, err = o.Quote(ctx, "aapl")
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(decimal.NewFromInt(94)))
	assert.True(t, q.Volume.Equal(decimal.NewFromInt(5000)), "SetPrice keeps volume")

	o.SetDown(true)
	_, err = o.Quote(ctx, "AAPL")
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
	o.SetDown(false)

	o.Remove("AAPL")
	_, err = o.Quote(ctx, "AAPL")
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestStaticOracleFromConfig(t *testing.T) {
	ctx := context.Background()
	o, err := NewStaticOracleFromConfig(config.PaperConfig{Quotes: map[string]config.PaperQuote{
		"aapl": {Price: "189.25", Volume: "52000"},
		"MSFT": {Price: "415"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 2, o.Len())

	q, err := o.Quote(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("189.25")))
	assert.True(t, q.Volume.Equal(decimal.NewFromInt(52000)))

	q, err = o.Quote(ctx, "msft")
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(decimal.NewFromInt(415)))

	_, err = NewStaticOracleFromConfig(config.PaperConfig{Quotes: map[string]config.PaperQuote{
		"AAPL": {Price: "0"},
	}})
	assert.ErrorContains(t, err, "AAPL")

	empty, err := NewStaticOracleFromConfig(config.PaperConfig{})
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
}

func TestRateLimitedOracle(t *testing.T) {
	static := NewStaticOracle()
	static.SetPrice("MSFT", decimal.NewFromInt(400))
	o := NewRateLimitedOracle(static, util.NewBurstRateLimiter(0.001, 1))
	assert.Equal(t, "static", o.Name())

	_, err := o.Quote(context.Background(), "MSFT")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = o.Quote(ctx, "MSFT")
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}
