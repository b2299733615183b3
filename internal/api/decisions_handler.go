package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/cryptofunk/internal/signal"
)

// analyzeTokensRequest is §6.2's POST /analyze/tokens body.
type analyzeTokensRequest struct {
	TokenProfiles []tokenProfileIn `json:"token_profiles" binding:"required"`
	Source        string           `json:"source"`
	Timestamp     time.Time        `json:"timestamp"`
}

// tokenProfileIn is the wire shape of a raw TokenCandidate (the ingress
// forwards on-chain observations, not pre-scored profiles, to this endpoint).
type tokenProfileIn struct {
	Address            string  `json:"address" binding:"required"`
	VolumeUSD          float64 `json:"volume_usd"`
	LiquidityUSD       float64 `json:"liquidity_usd"`
	PriceChange24h     float64 `json:"price_change_24h"`
	HolderCount        *int    `json:"holder_count,omitempty"`
	Platform           string  `json:"platform"`
	DevAllocationPct   *float64 `json:"dev_allocation_pct,omitempty"`
	HasFreezeFunction  *bool   `json:"has_freeze_function,omitempty"`
	HasMintAuthority   *bool   `json:"has_mint_authority,omitempty"`
	IsVerified         *bool   `json:"is_verified,omitempty"`
	IsDoxxedTeam       *bool   `json:"is_doxxed_team,omitempty"`
	SuspiciousMetadata *bool   `json:"suspicious_metadata,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	RawEventRef        string  `json:"raw_event_ref"`
}

func (t tokenProfileIn) toCandidate() signal.TokenCandidate {
	c := signal.TokenCandidate{
		Address:        t.Address,
		VolumeUSD:      t.VolumeUSD,
		LiquidityUSD:   t.LiquidityUSD,
		PriceChange24h: t.PriceChange24h,
		Platform:       signal.Platform(t.Platform),
		CreatedAt:      t.CreatedAt,
		RawEventRef:    t.RawEventRef,
	}
	if t.HolderCount != nil {
		c.HolderCount = *t.HolderCount
		c.Known.HolderCount = true
	}
	if t.DevAllocationPct != nil {
		c.DevAllocationPct = *t.DevAllocationPct
		c.Known.DevAllocationPct = true
	}
	if t.HasFreezeFunction != nil {
		c.HasFreezeFunction = *t.HasFreezeFunction
		c.Known.HasFreezeFunction = true
	}
	if t.HasMintAuthority != nil {
		c.HasMintAuthority = *t.HasMintAuthority
		c.Known.HasMintAuthority = true
	}
	if t.IsVerified != nil {
		c.IsVerified = *t.IsVerified
		c.Known.IsVerified = true
	}
	if t.IsDoxxedTeam != nil {
		c.IsDoxxedTeam = *t.IsDoxxedTeam
		c.Known.IsDoxxedTeam = true
	}
	if t.SuspiciousMetadata != nil {
		c.SuspiciousMetadata = *t.SuspiciousMetadata
		c.Known.SuspiciousMetadata = true
	}
	return c
}

// decisionOut is the wire shape of an AITradingDecision (§6.2).
type decisionOut struct {
	DecisionID      string   `json:"decision_id,omitempty"`
	TokenAddress    string   `json:"token_address"`
	Action          string   `json:"action"`
	Confidence      float64  `json:"confidence"`
	Reasoning       string   `json:"reasoning"`
	RiskAssessment  string   `json:"risk_assessment"`
	PositionSizePct float64  `json:"position_size_pct"`
	StopLossPct     *float64 `json:"stop_loss_pct,omitempty"`
	TakeProfitPct   *float64 `json:"take_profit_pct,omitempty"`
	Urgency         int      `json:"urgency"`
	StrategyType    string   `json:"strategy_type"`
	MultisigTxID    string   `json:"multisig_tx_id,omitempty"`
}

// handleAnalyzeTokens implements §6.2: POST /analyze/tokens.
func (s *Server) handleAnalyzeTokens(c *gin.Context) {
	if s.orchestrator == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "decision pipeline not configured"})
		return
	}

	var req analyzeTokensRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request", "detail": err.Error()})
		return
	}
	if len(req.TokenProfiles) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token_profiles must not be empty"})
		return
	}

	candidates := make([]signal.TokenCandidate, len(req.TokenProfiles))
	for i, p := range req.TokenProfiles {
		candidates[i] = p.toCandidate()
	}

	decisions, err := s.orchestrator.AnalyzeTokens(c.Request.Context(), candidates, req.Source)
	if err != nil {
		log.Error().Err(err).Msg("analyze tokens failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "analysis failed"})
		return
	}

	out := make([]decisionOut, len(decisions))
	for i, d := range decisions {
		out[i] = decisionOut{
			DecisionID:      d.ID,
			TokenAddress:    d.TokenAddress,
			Action:          string(d.Action),
			Confidence:      d.Confidence,
			Reasoning:       d.Reasoning,
			RiskAssessment:  string(d.RiskAssessment),
			PositionSizePct: d.PositionSizePct,
			StopLossPct:     d.StopLossPct,
			TakeProfitPct:   d.TakeProfitPct,
			Urgency:         d.Urgency,
			StrategyType:    d.StrategyType,
			MultisigTxID:    d.MultisigTxID,
		}
	}

	c.JSON(http.StatusOK, gin.H{"decisions": out})
}
