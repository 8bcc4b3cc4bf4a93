package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/optimal-cyber/launchpad-sub001/pkg/apperr"
	"github.com/optimal-cyber/launchpad-sub001/pkg/sso"
)

// sessionID reads the SSO cookie, minting one when create is set.
func (s *Server) sessionID(c *gin.Context, create bool) string {
	if id, err := c.Cookie(s.cfg.SSO.CookieName); err == nil && id != "" {
		return id
	}
	if !create {
		return ""
	}
	id := uuid.NewString()
	s.setSessionCookie(c, id, 0)
	return id
}

func (s *Server) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.cfg.SSO.CookieName, value, maxAge, "/", "", s.cfg.SSO.CookieSecure, true)
}

func (s *Server) ssoClient(c *gin.Context) (*sso.Client, bool) {
	if s.sso == nil {
		respondError(c, apperr.NotConfigured("SSO is not enabled"), s.logger)
		return nil, false
	}
	return s.sso, true
}

func (s *Server) handleSSOServices(c *gin.Context) {
	services := s.services.List()
	respondOK(c, http.StatusOK, gin.H{
		"enabled":  s.sso != nil,
		"count":    len(services),
		"services": services,
	})
}

func (s *Server) handleSSOLogin(c *gin.Context) {
	client, ok := s.ssoClient(c)
	if !ok {
		return
	}
	access, err := client.InitiateAccess(c.Request.Context(), s.sessionID(c, true), c.Param("service"))
	if err != nil {
		respondError(c, err, s.logger)
		return
	}
	reqLog := requestLogger(c, s.logger)
	reqLog.Debug().
		Str("service", c.Param("service")).
		Bool("authenticated", access.Authenticated).
		Msg("SSO access initiated")
	c.Redirect(http.StatusFound, access.URL)
}

func (s *Server) handleSSOCallback(c *gin.Context) {
	client, ok := s.ssoClient(c)
	if !ok {
		return
	}
	if idpErr := strings.TrimSpace(c.Query("error")); idpErr != "" {
		respondError(c, apperr.Validation("identity provider returned %s", idpErr), s.logger)
		return
	}
	res, err := client.HandleCallback(c.Request.Context(), s.sessionID(c, false), c.Query("code"), c.Query("state"))
	if err != nil {
		respondError(c, err, s.logger)
		return
	}
	reqLog := requestLogger(c, s.logger)
	reqLog.Info().
		Str("service", res.ServiceID).
		Str("subject", res.Subject).
		Time("expires_at", res.ExpiresAt).
		Msg("SSO sign-in completed")
	c.Redirect(http.StatusFound, res.ServiceURL)
}

func (s *Server) handleSSOUserInfo(c *gin.Context) {
	client, ok := s.ssoClient(c)
	if !ok {
		return
	}
	id := s.sessionID(c, false)
	sess, err := client.Session(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, s.logger)
		return
	}
	profile, err := client.UserInfo(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, s.logger)
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"authenticated": id != "" && sess.Valid(s.now()),
		"subject":       sess.Subject,
		"profile":       profile,
	})
}

func (s *Server) handleSSOLogout(c *gin.Context) {
	client, ok := s.ssoClient(c)
	if !ok {
		return
	}
	if err := client.Logout(c.Request.Context(), s.sessionID(c, false)); err != nil {
		respondError(c, err, s.logger)
		return
	}
	s.setSessionCookie(c, "", -1)
	respondOK(c, http.StatusOK, gin.H{"message": "logged out"})
}
