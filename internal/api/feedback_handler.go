package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/cryptofunk/internal/orchestrator"
	"github.com/ajitpratap0/cryptofunk/internal/signal"
)

// feedbackRequest is §6.3's POST /feedback body.
type feedbackRequest struct {
	TokenAddress  string          `json:"token_address" binding:"required"`
	DecisionID    string          `json:"decision_id,omitempty"`
	ActualResult  actualResultIn  `json:"actual_result" binding:"required"`
	MarketContext marketContextIn `json:"market_context"`
}

type actualResultIn struct {
	ProfitLossPct  float64  `json:"profit_loss_pct"`
	HoldingPeriodS float64  `json:"holding_period_s"`
	SignalsUsed    []string `json:"signals_used"`
}

type marketContextIn struct {
	Volatility     float64 `json:"volatility"`
	MemecoinSeason bool    `json:"memecoin_season"`
	RiskAppetite   float64 `json:"risk_appetite"`
	VolumeTrend    string  `json:"volume_trend"`
}

// handleFeedback implements §6.3: POST /feedback. It updates per-signal
// weights, per-agent-kind/pattern statistics, and ensemble accuracy.
func (s *Server) handleFeedback(c *gin.Context) {
	if s.orchestrator == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "feedback pipeline not configured"})
		return
	}

	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request", "detail": err.Error()})
		return
	}

	fr := orchestrator.FeedbackRequest{
		TokenAddress: req.TokenAddress,
		DecisionID:   req.DecisionID,
		ActualResult: orchestrator.ActualResult{
			ProfitLossPct:  req.ActualResult.ProfitLossPct,
			HoldingPeriodS: req.ActualResult.HoldingPeriodS,
			SignalsUsed:    req.ActualResult.SignalsUsed,
		},
		Market: signal.MarketContext{
			Volatility:     req.MarketContext.Volatility,
			MemecoinSeason: req.MarketContext.MemecoinSeason,
			RiskAppetite:   req.MarketContext.RiskAppetite,
			VolumeTrend:    signal.VolumeTrend(req.MarketContext.VolumeTrend),
		},
	}

	if err := s.orchestrator.RecordFeedback(c.Request.Context(), fr); err != nil {
		log.Error().Err(err).Str("token_address", req.TokenAddress).Msg("record feedback failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record feedback"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}
