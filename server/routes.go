package main

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/optimal-cyber/launchpad-sub001/pkg/tokens"
)

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(withRequestContext(s.logger), recoverToError(s.logger))
	if len(s.cfg.CORS.AllowedOrigins) > 0 {
		r.Use(corsMiddleware(s.cfg.CORS.AllowedOrigins))
	}
	r.Use(s.limitBody)

	r.NoRoute(func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
			"success":    false,
			"error":      "route not found",
			"request_id": requestID(c),
		})
	})

	v1 := r.Group("/v1")
	v1.GET("/health", s.handleHealth)

	scanGroup := v1.Group("/scans")
	scanGroup.POST("", s.requireScope(tokens.ScopeScan), s.rateLimited("ingest", s.cfg.Limits.IngestPerMinute, time.Minute), s.handleIngestScan)
	scanGroup.GET("", s.requireScope(tokens.ScopeRead), s.handleListScans)
	scanGroup.GET("/stats", s.requireScope(tokens.ScopeRead), s.handleScanStats)
	scanGroup.GET("/:scan_id", s.requireScope(tokens.ScopeRead), s.handleGetScan)

	agentGroup := v1.Group("/agents")
	agentGroup.POST("", s.requireScope(tokens.ScopeWrite), s.handleRegisterAgent)
	agentGroup.POST("/heartbeat", s.requireScope(tokens.ScopeWrite), s.handleHeartbeat)
	agentGroup.GET("", s.requireScope(tokens.ScopeRead), s.handleListAgents)
	agentGroup.GET("/:agent_id", s.requireScope(tokens.ScopeRead), s.handleGetAgent)

	tokenGroup := v1.Group("/tokens", s.requireAdmin)
	tokenGroup.POST("", s.handleIssueToken)
	tokenGroup.GET("", s.handleListTokens)
	tokenGroup.DELETE("", s.handleRevokeToken)
	tokenGroup.DELETE("/:id", s.handleRevokeToken)

	ssoGroup := v1.Group("/sso")
	ssoGroup.GET("/services", s.handleSSOServices)
	ssoGroup.GET("/login/:service", s.handleSSOLogin)
	ssoGroup.GET("/callback", s.handleSSOCallback)
	ssoGroup.GET("/userinfo", s.handleSSOUserInfo)
	ssoGroup.POST("/logout", s.handleSSOLogout)

	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Agent-ID", requestIDHeader},
		ExposeHeaders: []string{"Content-Length", requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cors.New(cfg)
		}
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cors.New(cfg)
}

func (s *Server) limitBody(c *gin.Context) {
	if c.Request.Body != nil && s.cfg.Limits.MaxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.Limits.MaxBodyBytes)
	}
	c.Next()
}

func (s *Server) handleHealth(c *gin.Context) {
	respondOK(c, http.StatusOK, gin.H{
		"status":         "healthy",
		"version":        Version,
		"time":           s.now().UTC(),
		"uptime_seconds": int64(s.now().Sub(s.started).Seconds()),
		"sso_enabled":    s.sso != nil,
		"rate_limiter":   s.rateLimiter.Stats(),
	})
}
