package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/cryptofunk/internal/registry"
)

// handleRoot reports basic service identity.
func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "cryptofunk-decision-api",
		"version": "1.0.0",
		"status":  "running",
		"time":    time.Now().UTC(),
	})
}

// handleGetStatus returns comprehensive system status, consumed by the
// orchestrator's own health_check_interval sweep as well as operators.
func (s *Server) handleGetStatus(c *gin.Context) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	dbStatus := "not_configured"
	if s.db != nil {
		dbStatus = "healthy"
		if err := s.db.Ping(c.Request.Context()); err != nil {
			dbStatus = "unhealthy"
			log.Warn().Err(err).Msg("database health check failed")
		}
	}

	orchestratorStatus := "not_configured"
	if s.orchestrator != nil {
		orchestratorStatus = "configured"
	}

	systemStatus := "healthy"
	if dbStatus == "unhealthy" {
		systemStatus = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    systemStatus,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(startTime).Seconds(),
		"version":   "1.0.0",
		"components": gin.H{
			"database":     gin.H{"status": dbStatus},
			"orchestrator": gin.H{"status": orchestratorStatus},
		},
		"system": gin.H{
			"goroutines": runtime.NumGoroutine(),
			"memory": gin.H{
				"alloc_mb":       toMB(memStats.Alloc),
				"total_alloc_mb": toMB(memStats.TotalAlloc),
				"sys_mb":         toMB(memStats.Sys),
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		},
	})
}

// handleGetHealth is a lightweight liveness check for load balancers.
func (s *Server) handleGetHealth(c *gin.Context) {
	if s.db != nil {
		if err := s.db.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database unavailable",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC(),
	})
}

// handleListAgents reports the live registry snapshot (§4.7), not mock data.
func (s *Server) handleListAgents(c *gin.Context) {
	if s.registry == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "agent registry not available"})
		return
	}

	ids := s.registry.FindAvailable(registry.Query{})
	agents := make([]registry.Agent, 0, len(ids))
	for _, id := range ids {
		if agent, ok := s.registry.Get(id); ok {
			agents = append(agents, agent)
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"agents": agents,
		"total":  len(agents),
	})
}

// handleGetAgent returns a single registered agent by id.
func (s *Server) handleGetAgent(c *gin.Context) {
	if s.registry == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "agent registry not available"})
		return
	}

	agent, ok := s.registry.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
		return
	}

	c.JSON(http.StatusOK, agent)
}

var startTime = time.Now()

func toMB(bytes uint64) uint64 {
	return bytes / 1024 / 1024
}
