package main

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/optimal-cyber/launchpad-sub001/pkg/apperr"
	"github.com/optimal-cyber/launchpad-sub001/pkg/policy"
	"github.com/optimal-cyber/launchpad-sub001/pkg/scans"
)

func (s *Server) handleIngestScan(c *gin.Context) {
	var payload scans.Payload
	if err := decodeJSON(c, &payload); err != nil {
		respondError(c, err, s.logger)
		return
	}
	if strings.TrimSpace(payload.AgentID) == "" {
		payload.AgentID = strings.TrimSpace(c.GetHeader(agentIDHeader))
	}

	rec, err := s.scans.Ingest(c.Request.Context(), payload)
	if err != nil {
		respondError(c, err, s.logger)
		return
	}
	eval := policy.Evaluate(rec.Summary, s.policy)

	reqLog := requestLogger(c, s.logger)
	reqLog.Info().
		Str("scan_id", rec.ScanID).
		Str("agent_id", rec.AgentID).
		Str("target", rec.Target).
		Int("critical", rec.Summary.Critical).
		Int("high", rec.Summary.High).
		Int("total", rec.Summary.Total).
		Bool("compliant", eval.Compliant).
		Msg("scan ingested")

	respondOK(c, http.StatusOK, gin.H{
		"scan_id":     rec.ScanID,
		"summary":     rec.Summary,
		"received_at": rec.ReceivedAt,
		"compliant":   eval.Compliant,
		"violations":  eval.Violations,
		"warnings":    eval.Warnings,
		"message":     "scan ingested",
	})
}

func (s *Server) handleListScans(c *gin.Context) {
	filter := scans.Filter{
		Target:  strings.TrimSpace(c.Query("target")),
		AgentID: strings.TrimSpace(c.Query("agent_id")),
	}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, apperr.Validation("limit must be an integer"), s.logger)
			return
		}
		filter.Limit = &limit
	}

	page, err := s.scans.Query(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, s.logger)
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"count": page.Count,
		"total": page.Total,
		"scans": page.Scans,
	})
}

func (s *Server) handleScanStats(c *gin.Context) {
	st, err := s.scans.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err, s.logger)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"stats": st, "capacity": s.scans.Capacity()})
}

func (s *Server) handleGetScan(c *gin.Context) {
	rec, err := s.scans.Get(c.Request.Context(), c.Param("scan_id"))
	if err != nil {
		respondError(c, err, s.logger)
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"scan":   rec,
		"policy": policy.Evaluate(rec.Summary, s.policy),
	})
}
