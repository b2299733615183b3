package simulator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulateBuyRaisesExecutionPriceAboveMarket(t *testing.T) {
	cfg := DefaultTradingConfig()
	snap := MarketSnapshot{MarketPrice: 1.0, LiquidityUSD: 100_000, Volatility: 0.1}

	result, err := Simulate(cfg, Buy, 1_000, snap)
	require.NoError(t, err)
	assert.Greater(t, result.ExecutionPrice, snap.MarketPrice)
	assert.Greater(t, result.Slippage, 0.0)
}

func TestSimulateSellLowersExecutionPriceBelowMarket(t *testing.T) {
	cfg := DefaultTradingConfig()
	snap := MarketSnapshot{MarketPrice: 1.0, LiquidityUSD: 100_000, Volatility: 0.1}

	result, err := Simulate(cfg, Sell, 1_000, snap)
	require.NoError(t, err)
	assert.Less(t, result.ExecutionPrice, snap.MarketPrice)
}

func TestMarketImpactZeroBelowThreshold(t *testing.T) {
	cfg := DefaultTradingConfig()
	snap := MarketSnapshot{MarketPrice: 1.0, LiquidityUSD: 100_000}

	result, err := Simulate(cfg, Buy, cfg.ImpactThreshold-1, snap)
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.MarketImpact)

	result2, err := Simulate(cfg, Buy, cfg.ImpactThreshold+1, snap)
	require.NoError(t, err)
	assert.Greater(t, result2.MarketImpact, 0.0)
}

func TestSimulateRejectsNonPositiveLiquidityOrPrice(t *testing.T) {
	cfg := DefaultTradingConfig()
	_, err := Simulate(cfg, Buy, 100, MarketSnapshot{MarketPrice: 1, LiquidityUSD: 0})
	require.Error(t, err)

	_, err = Simulate(cfg, Buy, 100, MarketSnapshot{MarketPrice: 0, LiquidityUSD: 100})
	require.Error(t, err)
}

func TestPortfolioBuyThenSellRoundTrip(t *testing.T) {
	cfg := DefaultTradingConfig()
	snap := MarketSnapshot{MarketPrice: 2.0, LiquidityUSD: 500_000, Volatility: 0.05}

	p := NewPortfolio(10)
	_, err := p.ApplyBuy(cfg, "tok", 1, snap)
	require.NoError(t, err)
	require.Contains(t, p.Holdings, "tok")
	assert.Equal(t, 9.0, p.SolBalance)

	amount := p.Holdings["tok"].Amount
	_, err = p.ApplySell(cfg, "tok", amount, snap)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, p.SolBalance, 0.0)
}

func TestPortfolioRejectsBuyBeyondBalance(t *testing.T) {
	cfg := DefaultTradingConfig()
	snap := MarketSnapshot{MarketPrice: 1.0, LiquidityUSD: 100_000}
	p := NewPortfolio(1)

	_, err := p.ApplyBuy(cfg, "tok", 2, snap)
	require.Error(t, err)
	assert.Equal(t, 1.0, p.SolBalance, "a rejected buy must not mutate the portfolio")
}

func TestPortfolioRemovesHoldingBelowDustThreshold(t *testing.T) {
	cfg := DefaultTradingConfig()
	snap := MarketSnapshot{MarketPrice: 1.0, LiquidityUSD: 500_000}

	p := NewPortfolio(100)
	_, err := p.ApplyBuy(cfg, "tok", 1, snap)
	require.NoError(t, err)

	full := p.Holdings["tok"].Amount
	_, err = p.ApplySell(cfg, "tok", full, snap)
	require.NoError(t, err)
	_, present := p.Holdings["tok"]
	assert.False(t, present, "a fully closed position must be removed, not left at ~0")
}

func TestPortfolioRejectsSellBeyondHoldings(t *testing.T) {
	cfg := DefaultTradingConfig()
	snap := MarketSnapshot{MarketPrice: 1.0, LiquidityUSD: 100_000}
	p := NewPortfolio(10)

	_, err := p.ApplySell(cfg, "nonexistent", 1, snap)
	require.Error(t, err)
}
