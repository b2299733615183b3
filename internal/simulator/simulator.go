// Package simulator implements the paper-execution slippage model (§4.5)
// used both by virtual portfolios and by pre-trade sanity checks.
package simulator

import (
	"math"

	"github.com/ajitpratap0/cryptofunk/internal/errs"
)

// Side is the direction of a simulated trade.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

func (s Side) sign() float64 {
	if s == Sell {
		return -1
	}
	return 1
}

// DustThreshold is the minimum holding amount below which a position is
// considered fully closed and removed from the portfolio (§4.5).
const DustThreshold = 1e-4

// TradingConfig calibrates the slippage model; sol_price_usd is a parameter
// here rather than a hardcoded constant (spec.md §9 open question).
type TradingConfig struct {
	BaseSlippage        float64
	LiquidityFactor     float64
	VolatilityMultiplier float64
	ImpactThreshold     float64
	GasFeeSOL           float64
	SolPriceUSD         float64
}

// DefaultTradingConfig mirrors the teacher's MockExchange fee defaults,
// extended with the simulator's additional slippage-model parameters.
func DefaultTradingConfig() TradingConfig {
	return TradingConfig{
		BaseSlippage:         0.0005,
		LiquidityFactor:      0.01,
		VolatilityMultiplier: 0.002,
		ImpactThreshold:      10_000,
		GasFeeSOL:            0.000005,
		SolPriceUSD:          150.0,
	}
}

// MarketSnapshot is the market state a simulated trade is priced against.
type MarketSnapshot struct {
	MarketPrice  float64
	LiquidityUSD float64
	Volatility   float64 // 0..1
}

// ExecutionResult is the outcome of simulating one trade.
type ExecutionResult struct {
	Slippage       float64
	MarketImpact   float64
	ExecutionPrice float64
}

// Simulate computes the execution price for a trade of tradeValueUSD against
// snapshot, per §4.5's formulas. tradeValueUSD is the trade size expressed in
// USD regardless of side: amount_sol*sol_price_usd for a Buy, or
// amount_tokens*market_price for a Sell.
func Simulate(cfg TradingConfig, side Side, tradeValueUSD float64, snapshot MarketSnapshot) (ExecutionResult, error) {
	if snapshot.LiquidityUSD <= 0 {
		return ExecutionResult{}, errs.New(errs.KindInput, "simulator", "liquidity_usd must be positive")
	}
	if snapshot.MarketPrice <= 0 {
		return ExecutionResult{}, errs.New(errs.KindInput, "simulator", "market_price must be positive")
	}

	slippage := cfg.BaseSlippage +
		(tradeValueUSD/snapshot.LiquidityUSD)*cfg.LiquidityFactor +
		snapshot.Volatility*cfg.VolatilityMultiplier

	var impact float64
	if tradeValueUSD >= cfg.ImpactThreshold {
		impact = (tradeValueUSD / snapshot.LiquidityUSD) * 0.001
	}

	executionPrice := snapshot.MarketPrice * (1 + side.sign()*(slippage+impact))

	return ExecutionResult{
		Slippage:       slippage,
		MarketImpact:   impact,
		ExecutionPrice: executionPrice,
	}, nil
}

// Holding is one token position in a virtual portfolio.
type Holding struct {
	TokenAddress string
	Amount       float64
}

// Portfolio is a virtual portfolio tracked by the decision subsystem.
type Portfolio struct {
	SolBalance float64
	Holdings   map[string]*Holding
}

// NewPortfolio creates an empty portfolio seeded with solBalance.
func NewPortfolio(solBalance float64) *Portfolio {
	return &Portfolio{SolBalance: solBalance, Holdings: make(map[string]*Holding)}
}

// ApplyBuy executes a simulated Buy against the portfolio: debits SOL,
// credits tokens received. Returns ErrInput if the balance would go negative.
func (p *Portfolio) ApplyBuy(cfg TradingConfig, tokenAddress string, amountSOL float64, snapshot MarketSnapshot) (ExecutionResult, error) {
	if amountSOL > p.SolBalance {
		return ExecutionResult{}, errs.New(errs.KindInput, "simulator", "insufficient sol_balance for buy")
	}
	result, err := Simulate(cfg, Buy, amountSOL*cfg.SolPriceUSD, snapshot)
	if err != nil {
		return result, err
	}

	tokensReceived := (amountSOL * cfg.SolPriceUSD) / result.ExecutionPrice

	p.SolBalance -= amountSOL
	h, ok := p.Holdings[tokenAddress]
	if !ok {
		h = &Holding{TokenAddress: tokenAddress}
		p.Holdings[tokenAddress] = h
	}
	h.Amount += tokensReceived
	return result, nil
}

// ApplySell executes a simulated Sell: debits tokens, credits SOL net of
// gas_fee. Holdings that drop below DustThreshold are removed entirely.
func (p *Portfolio) ApplySell(cfg TradingConfig, tokenAddress string, amountTokens float64, snapshot MarketSnapshot) (ExecutionResult, error) {
	h, ok := p.Holdings[tokenAddress]
	if !ok || amountTokens > h.Amount {
		return ExecutionResult{}, errs.New(errs.KindInput, "simulator", "insufficient token holdings for sell")
	}

	result, err := Simulate(cfg, Sell, amountTokens*snapshot.MarketPrice, snapshot)
	if err != nil {
		return result, err
	}

	solReceived := (amountTokens*result.ExecutionPrice)/cfg.SolPriceUSD - cfg.GasFeeSOL
	if solReceived < 0 {
		solReceived = 0
	}

	h.Amount -= amountTokens
	if math.Abs(h.Amount) < DustThreshold {
		delete(p.Holdings, tokenAddress)
	}
	p.SolBalance += solReceived
	return result, nil
}
