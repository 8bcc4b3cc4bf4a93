package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/optimal-cyber/launchpad-sub001/pkg/agents"
	"github.com/optimal-cyber/launchpad-sub001/pkg/scans"
)

const agentIDHeader = "X-Agent-ID"

type registerAgentRequest struct {
	AgentID      string   `json:"agent_id" validate:"max=191"`
	Hostname     string   `json:"hostname" validate:"max=191"`
	OS           string   `json:"os"`
	OSVersion    string   `json:"os_version"`
	ScannerType  string   `json:"scanner_type"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities" validate:"omitempty,max=64"`
	RegisteredAt string   `json:"registered_at"`
}

type heartbeatRequest struct {
	AgentID             string `json:"agent_id" validate:"max=191"`
	Timestamp           string `json:"timestamp"`
	Status              string `json:"status"`
	ContainersMonitored *int   `json:"containers_monitored" validate:"omitempty,min=0"`
}

// agentID prefers the body value and falls back to the X-Agent-ID header.
func agentID(c *gin.Context, fromBody string) string {
	if id := strings.TrimSpace(fromBody); id != "" {
		return id
	}
	return strings.TrimSpace(c.GetHeader(agentIDHeader))
}

func (s *Server) heartbeatTimeout() time.Duration {
	return time.Duration(s.cfg.Agents.HeartbeatTimeoutS) * time.Second
}

func (s *Server) withEffectiveStatus(rec agents.Record) agents.Record {
	rec.Status = agents.EffectiveStatus(rec, s.now(), s.heartbeatTimeout())
	return rec
}

func (s *Server) handleRegisterAgent(c *gin.Context) {
	var req registerAgentRequest
	if err := decodeJSON(c, &req); err != nil {
		respondError(c, err, s.logger)
		return
	}

	reg := agents.Registration{
		AgentID:      agentID(c, req.AgentID),
		Hostname:     req.Hostname,
		OS:           req.OS,
		OSVersion:    req.OSVersion,
		ScannerType:  req.ScannerType,
		Version:      req.Version,
		Capabilities: req.Capabilities,
	}
	if strings.TrimSpace(req.RegisteredAt) != "" {
		ts, err := scans.ParseTimestamp(req.RegisteredAt)
		if err != nil {
			respondError(c, err, s.logger)
			return
		}
		reg.RegisteredAt = &ts
	}

	rec, err := s.agents.Register(c.Request.Context(), reg)
	if err != nil {
		respondError(c, err, s.logger)
		return
	}

	reqLog := requestLogger(c, s.logger)
	reqLog.Info().
		Str("agent_id", rec.AgentID).
		Str("hostname", rec.Hostname).
		Str("scanner", rec.ScannerType).
		Msg("agent registered")

	respondOK(c, http.StatusOK, gin.H{
		"agent_id":      rec.AgentID,
		"registered_at": rec.RegisteredAt,
		"agent":         rec,
		"message":       "agent registered",
	})
}

func (s *Server) handleHeartbeat(c *gin.Context) {
	var req heartbeatRequest
	if err := decodeJSON(c, &req); err != nil {
		respondError(c, err, s.logger)
		return
	}
	if strings.TrimSpace(req.Timestamp) != "" {
		if _, err := scans.ParseTimestamp(req.Timestamp); err != nil {
			respondError(c, err, s.logger)
			return
		}
	}

	rec, err := s.agents.Heartbeat(c.Request.Context(), agentID(c, req.AgentID))
	if err != nil {
		respondError(c, err, s.logger)
		return
	}

	reqLog := requestLogger(c, s.logger)
	entry := reqLog.Debug().Str("agent_id", rec.AgentID).Str("reported_status", req.Status)
	if req.ContainersMonitored != nil {
		entry = entry.Int("containers_monitored", *req.ContainersMonitored)
	}
	entry.Msg("heartbeat")

	respondOK(c, http.StatusOK, gin.H{
		"agent_id":       rec.AgentID,
		"last_heartbeat": rec.LastHeartbeat,
		"status":         rec.Status,
	})
}

func (s *Server) handleListAgents(c *gin.Context) {
	recs, err := s.agents.List(c.Request.Context())
	if err != nil {
		respondError(c, err, s.logger)
		return
	}
	out := make([]agents.Record, 0, len(recs))
	for _, rec := range recs {
		out = append(out, s.withEffectiveStatus(rec))
	}
	respondOK(c, http.StatusOK, gin.H{"count": len(out), "agents": out})
}

func (s *Server) handleGetAgent(c *gin.Context) {
	rec, err := s.agents.Get(c.Request.Context(), c.Param("agent_id"))
	if err != nil {
		respondError(c, err, s.logger)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"agent": s.withEffectiveStatus(rec)})
}
