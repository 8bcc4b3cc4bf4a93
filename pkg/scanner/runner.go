package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/optimal-cyber/launchpad-sub001/pkg/scans"
)

const (
	TypeGrype = "grype"
	TypeTrivy = "trivy"
)

// commandFunc runs a binary and returns stdout and the exit code.
type commandFunc func(ctx context.Context, name string, args ...string) (stdout []byte, stderr []byte, exitCode int, err error)

type Runner struct {
	kind    string
	binary  string
	timeout time.Duration
	run     commandFunc
}

func NewRunner(kind, binary string, timeout time.Duration) (*Runner, error) {
	switch kind {
	case TypeGrype, TypeTrivy:
	default:
		return nil, fmt.Errorf("unsupported scanner %q", kind)
	}
	if binary == "" {
		binary = kind
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Runner{kind: kind, binary: binary, timeout: timeout, run: execCommand}, nil
}

func (r *Runner) Type() string { return r.kind }

// Scan runs the scanner against target. targetType "dir" and "filesystem"
// scan a path; anything else is treated as an image reference.
func (r *Runner) Scan(ctx context.Context, target, targetType string) ([]scans.Finding, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	fs := targetType == "dir" || targetType == "filesystem"
	switch r.kind {
	case TypeGrype:
		src := target
		if fs {
			src = "dir:" + target
		}
		out, stderr, code, err := r.run(ctx, r.binary, src, "-o", "json")
		if err != nil {
			return nil, err
		}
		// grype exits 1 when it finds vulnerabilities
		if code != 0 && code != 1 {
			return nil, fmt.Errorf("grype exited with %d: %s", code, strings.TrimSpace(string(stderr)))
		}
		return ParseGrype(out)
	default:
		mode := "image"
		if fs {
			mode = "fs"
		}
		out, stderr, code, err := r.run(ctx, r.binary, mode, "-f", "json", "--quiet", target)
		if err != nil {
			return nil, err
		}
		if code != 0 {
			return nil, fmt.Errorf("trivy exited with %d: %s", code, strings.TrimSpace(string(stderr)))
		}
		return ParseTrivy(out)
	}
}

// Version reports the installed scanner version, or "unknown".
func (r *Runner) Version(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch r.kind {
	case TypeGrype:
		out, _, code, err := r.run(ctx, r.binary, "version", "-o", "json")
		if err != nil || code != 0 {
			return unknownValue
		}
		var v struct {
			Version string `json:"version"`
		}
		if json.Unmarshal(out, &v) != nil || v.Version == "" {
			return unknownValue
		}
		return v.Version
	default:
		out, _, code, err := r.run(ctx, r.binary, "--version")
		if err != nil || code != 0 {
			return unknownValue
		}
		fields := strings.Fields(string(out))
		if len(fields) < 2 {
			return unknownValue
		}
		return fields[1]
	}
}

func execCommand(ctx context.Context, name string, args ...string) ([]byte, []byte, int, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		return stdout.Bytes(), stderr.Bytes(), exitErr.ExitCode(), nil
	}
	if err != nil {
		return nil, stderr.Bytes(), -1, fmt.Errorf("run %s: %w", name, err)
	}
	return stdout.Bytes(), stderr.Bytes(), 0, nil
}
