package api

// setupRoutes configures the Decision API (§6.2), Feedback API (§6.3), and
// health/status endpoints.
func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleRoot)
	s.router.GET("/health", s.handleGetHealth)
	s.router.GET("/status", s.handleGetStatus)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/agents", s.handleListAgents)
		v1.GET("/agents/:id", s.handleGetAgent)
	}

	s.router.POST("/analyze/tokens", s.handleAnalyzeTokens)
	s.router.POST("/feedback", s.handleFeedback)
}
