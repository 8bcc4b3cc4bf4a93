// Package health runs the agent's startup checks: control plane reachability
// and presence of the scanner binary.
package health

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"time"
)

type HealthStatus struct {
	ServerReachable  bool      `json:"server_reachable"`
	ScannerAvailable bool      `json:"scanner_available"`
	ScannerPath      string    `json:"scanner_path,omitempty"`
	CheckedAt        time.Time `json:"checked_at"`
	Healthy          bool      `json:"healthy"`
	Issues           []string  `json:"issues,omitempty"`
}

type Options struct {
	ServerURL     string
	ScannerBinary string
	CheckServer   bool
	CheckScanner  bool
	HTTPClient    *http.Client
}

var lookPath = exec.LookPath

func Check(ctx context.Context, opts Options) *HealthStatus {
	status := &HealthStatus{
		Healthy:   true,
		Issues:    []string{},
		CheckedAt: time.Now().UTC(),
	}

	if opts.CheckServer {
		status.ServerReachable = checkServer(ctx, opts, status)
		if !status.ServerReachable {
			status.Healthy = false
		}
	}

	if opts.CheckScanner {
		path, err := lookPath(opts.ScannerBinary)
		if err != nil {
			status.Healthy = false
			status.Issues = append(status.Issues, fmt.Sprintf("scanner %q not found: %v", opts.ScannerBinary, err))
		} else {
			status.ScannerAvailable = true
			status.ScannerPath = path
		}
	}

	return status
}

func checkServer(ctx context.Context, opts Options, status *HealthStatus) bool {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(opts.ServerURL, "/")+"/v1/health", nil)
	if err != nil {
		status.Issues = append(status.Issues, fmt.Sprintf("invalid server url: %v", err))
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		status.Issues = append(status.Issues, fmt.Sprintf("cannot reach server: %v", err))
		return false
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		status.Issues = append(status.Issues, fmt.Sprintf("server unhealthy: %d", resp.StatusCode))
		return false
	}
	return true
}
