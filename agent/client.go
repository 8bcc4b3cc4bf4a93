package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/optimal-cyber/launchpad-sub001/pkg/scans"
)

const agentIDHeader = "X-Agent-ID"

// upstream is the agent's view of the control plane API.
type upstream struct {
	baseURL string
	token   string
	agentID string
	http    *http.Client
	retry   *retrier
}

type registration struct {
	AgentID      string   `json:"agent_id"`
	Hostname     string   `json:"hostname"`
	OS           string   `json:"os"`
	OSVersion    string   `json:"os_version"`
	ScannerType  string   `json:"scanner_type"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities"`
	RegisteredAt string   `json:"registered_at"`
}

type heartbeat struct {
	AgentID             string `json:"agent_id"`
	Timestamp           string `json:"timestamp"`
	Status              string `json:"status"`
	ContainersMonitored int    `json:"containers_monitored"`
}

// ingestResult is the control plane's verdict on an uploaded scan.
type ingestResult struct {
	ScanID     string        `json:"scan_id"`
	Summary    scans.Summary `json:"summary"`
	Compliant  bool          `json:"compliant"`
	Violations []string      `json:"violations"`
	Warnings   []string      `json:"warnings"`
}

type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (u *upstream) Register(ctx context.Context, reg registration) error {
	return u.retry.do(ctx, "register", func(ctx context.Context) error {
		return u.post(ctx, "/v1/agents", reg, nil)
	})
}

// Heartbeat is not retried; the next tick supersedes a lost beat.
func (u *upstream) Heartbeat(ctx context.Context, hb heartbeat) error {
	return u.post(ctx, "/v1/agents/heartbeat", hb, nil)
}

func (u *upstream) UploadScan(ctx context.Context, payload scans.Payload) (ingestResult, error) {
	var res ingestResult
	err := u.retry.do(ctx, "upload scan", func(ctx context.Context) error {
		return u.post(ctx, "/v1/scans", payload, &res)
	})
	return res, err
}

func (u *upstream) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "launchpad-agent/"+Version)
	if u.agentID != "" {
		req.Header.Set(agentIDHeader, u.agentID)
	}
	if u.token != "" {
		req.Header.Set("Authorization", "Bearer "+u.token)
	}

	resp, err := u.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env envelope
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &env) == nil && env.Error != "" {
			msg = env.Error
		}
		return &statusError{status: resp.StatusCode, message: msg}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
