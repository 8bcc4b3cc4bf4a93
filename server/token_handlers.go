package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/optimal-cyber/launchpad-sub001/pkg/apperr"
	"github.com/optimal-cyber/launchpad-sub001/pkg/tokens"
)

type issueTokenRequest struct {
	Name          string   `json:"name" validate:"max=128"`
	Description   string   `json:"description" validate:"max=1024"`
	Scopes        []string `json:"scopes" validate:"omitempty,max=16,dive,max=32"`
	ExpiresInDays *int     `json:"expires_in_days" validate:"omitempty,min=0"`
}

type issuedToken struct {
	tokens.Record
	Value string `json:"value"`
}

func (s *Server) handleIssueToken(c *gin.Context) {
	var req issueTokenRequest
	if err := decodeOptionalJSON(c, &req); err != nil {
		respondError(c, err, s.logger)
		return
	}

	issued, err := s.tokens.Issue(c.Request.Context(), tokens.IssueRequest{
		Name:          req.Name,
		Description:   req.Description,
		Scopes:        req.Scopes,
		ExpiresInDays: req.ExpiresInDays,
	})
	if err != nil {
		respondError(c, err, s.logger)
		return
	}

	reqLog := requestLogger(c, s.logger)
	reqLog.Info().
		Str("token_id", issued.Record.ID).
		Strs("scopes", issued.Record.Scopes).
		Msg("API token issued")

	respondOK(c, http.StatusCreated, gin.H{
		"token":   issuedToken{Record: issued.Record, Value: issued.Secret},
		"message": "Store this token securely; it will not be shown again",
	})
}

func (s *Server) handleListTokens(c *gin.Context) {
	recs, err := s.tokens.List(c.Request.Context())
	if err != nil {
		respondError(c, err, s.logger)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"count": len(recs), "tokens": recs})
}

func (s *Server) handleRevokeToken(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		id = strings.TrimSpace(c.Query("id"))
	}
	if id == "" {
		respondError(c, apperr.Validation("id is required"), s.logger)
		return
	}
	if err := s.tokens.Revoke(c.Request.Context(), id); err != nil {
		respondError(c, err, s.logger)
		return
	}
	reqLog := requestLogger(c, s.logger)
	reqLog.Info().Str("token_id", id).Msg("API token revoked")
	respondOK(c, http.StatusOK, gin.H{"id": id, "message": "token revoked"})
}
