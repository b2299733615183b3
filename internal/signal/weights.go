package signal

// BaseWeights is the configured, sign-bearing base weight per signal name
// (§6.4). A positive weight encodes opportunity; negative encodes risk.
var BaseWeights = map[string]float64{
	"volume_spike":         0.7,
	"price_momentum":       0.6,
	"new_listing":          0.5,
	"high_liquidity":       0.7,
	"high_volatility":      -0.3,
	"low_dev_allocation":   0.9,
	"no_freeze_function":   0.8,
	"rug_pull_indicators":  -0.9,
	"low_holder_count":     -0.4,
	"verified_contract":    0.8,
	"doxxed_team":          0.6,
	"suspicious_metadata":  -0.8,
	"pump_fun_listing":     0.6,
}

// FilterThresholds are the hard minimums a TokenCandidate must clear before
// it is scored at all (§4.1).
type FilterThresholds struct {
	MinVolumeUSD      float64
	MinLiquidityUSD   float64
	MaxRiskScore      float64
	MinOpportunity    float64
	TopSignalsCount   int
}

// DefaultFilterThresholds mirrors the teacher's configuration defaults style
// (sane values usable without a config file).
func DefaultFilterThresholds() FilterThresholds {
	return FilterThresholds{
		MinVolumeUSD:    1_000,
		MinLiquidityUSD: 1_000,
		MaxRiskScore:    0.85,
		MinOpportunity:  0,
		TopSignalsCount: 5,
	}
}
