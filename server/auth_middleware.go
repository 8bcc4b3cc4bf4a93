package main

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/optimal-cyber/launchpad-sub001/pkg/apperr"
	"github.com/optimal-cyber/launchpad-sub001/pkg/tokens"
)

const tokenContextKey = "api_token"

func bearerToken(c *gin.Context) (string, bool) {
	authz := c.GetHeader("Authorization")
	if len(authz) < 7 || !strings.EqualFold(authz[:7], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(authz[7:])
	return token, token != ""
}

// requireScope admits requests carrying a valid API token with scope. When
// token enforcement is disabled every request passes.
func (s *Server) requireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.cfg.Auth.RequireToken {
			c.Next()
			return
		}
		secret, ok := bearerToken(c)
		if !ok {
			respondError(c, apperr.Unauthorized("missing bearer token"), s.logger)
			return
		}
		rec, err := s.tokens.Validate(c.Request.Context(), secret, scope)
		if err != nil {
			respondError(c, err, s.logger)
			return
		}
		c.Set(tokenContextKey, rec)
		c.Next()
	}
}

func (s *Server) requireAdmin(c *gin.Context) {
	if s.cfg.Auth.AdminToken == "" {
		respondError(c, apperr.NotConfigured("token administration is disabled: no admin token configured"), s.logger)
		return
	}
	token, ok := bearerToken(c)
	if !ok {
		respondError(c, apperr.Unauthorized("missing bearer token"), s.logger)
		return
	}
	if !secureCompare(token, s.cfg.Auth.AdminToken) {
		respondError(c, apperr.Unauthorized("invalid bearer token"), s.logger)
		return
	}
	c.Next()
}

// rateLimited bounds requests per caller. Callers are keyed by token id, or
// by client IP when tokens are not enforced.
func (s *Server) rateLimited(bucket string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if v, ok := c.Get(tokenContextKey); ok {
			if rec, ok := v.(tokens.Record); ok {
				key = rec.ID
			}
		}
		if !s.rateLimiter.Allow(bucket+":"+key, limit, window) {
			respondError(c, apperr.RateLimited("rate limit exceeded, retry later"), s.logger)
			return
		}
		c.Next()
	}
}

func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
