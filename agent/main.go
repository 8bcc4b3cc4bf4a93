package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/optimal-cyber/launchpad-sub001/pkg/config"
	"github.com/optimal-cyber/launchpad-sub001/pkg/health"
	"github.com/optimal-cyber/launchpad-sub001/pkg/hostinfo"
	"github.com/optimal-cyber/launchpad-sub001/pkg/logging"
	"github.com/optimal-cyber/launchpad-sub001/pkg/scanner"
	"github.com/optimal-cyber/launchpad-sub001/pkg/scans"
	"github.com/optimal-cyber/launchpad-sub001/pkg/telemetry"
)

var (
	configPath = flag.String("config", "/etc/launchpad/agent.yaml", "Config file path")
	serverURL  = flag.String("server", "", "Control plane URL (overrides config)")
	interval   = flag.Duration("interval", 0, "Scan interval (overrides config)")
	targets    = flag.String("targets", "", "Comma-separated scan targets (overrides config)")
	once       = flag.Bool("once", false, "Run a single scan cycle and exit")
	Version    = "dev"
)

const tracerName = "github.com/optimal-cyber/launchpad-sub001/agent"

var defaultCapabilities = []string{"container_scan", "image_scan", "filesystem_scan"}

// scanRunner is the subset of scanner.Runner the agent drives.
type scanRunner interface {
	Type() string
	Version(ctx context.Context) string
	Scan(ctx context.Context, target, targetType string) ([]scans.Finding, error)
}

type Agent struct {
	cfg    *config.AgentConfig
	logger zerolog.Logger
	id     string
	facts  hostinfo.Facts
	up     *upstream
	runner scanRunner
	now    func() time.Time
}

func main() {
	flag.Parse()

	cfg, err := config.LoadAgent(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *serverURL != "" {
		cfg.Server.URL = *serverURL
	}
	if *interval > 0 {
		cfg.Reporting.Interval = int(interval.Seconds())
	}
	if *targets != "" {
		cfg.Scanner.Targets = splitTargets(*targets)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging, os.Stdout).With().Str("component", "agent").Logger()
	logger.Info().Str("version", Version).Msg("Launchpad agent starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.SetupTracing(ctx, "launchpad-agent", Version, cfg.Tracing, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	if cfg.Server.APIToken == "" {
		logger.Warn().Msg("no API token configured; requests will be rejected if the server enforces tokens")
	}

	runner, err := scanner.NewRunner(cfg.Scanner.Type, cfg.Scanner.Binary, time.Duration(cfg.Scanner.TimeoutS)*time.Second)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid scanner configuration")
	}

	agent := newAgent(cfg, logger, hostinfo.NewCollector(10*time.Second).Collect(ctx), runner)
	logger.Info().
		Str("agent_id", agent.id).
		Str("server", cfg.Server.URL).
		Str("scanner", runner.Type()).
		Strs("targets", cfg.Scanner.Targets).
		Int("interval_s", cfg.Reporting.Interval).
		Msg("agent initialised")

	status := health.Check(ctx, health.Options{
		ServerURL:     cfg.Server.URL,
		ScannerBinary: cfg.Scanner.Binary,
		CheckServer:   cfg.Health.CheckServer,
		CheckScanner:  cfg.Health.CheckScanner,
		HTTPClient:    agent.up.http,
	})
	if !status.Healthy {
		logger.Warn().Strs("issues", status.Issues).Msg("health check reported issues")
	}

	if *once {
		agent.register(ctx)
		agent.scanAll(ctx)
		return
	}
	agent.run(ctx)
	logger.Info().Msg("agent stopped")
}

func newAgent(cfg *config.AgentConfig, logger zerolog.Logger, facts hostinfo.Facts, runner scanRunner) *Agent {
	id := cfg.Agent.ID
	if id == "" {
		id = generateAgentID(facts.Hostname, facts.Arch, strconv.Itoa(os.Getuid()))
	}
	return &Agent{
		cfg:    cfg,
		logger: logger.With().Str("agent_id", id).Logger(),
		id:     id,
		facts:  facts,
		up: &upstream{
			baseURL: cfg.Server.URL,
			token:   cfg.Server.APIToken,
			agentID: id,
			http:    &http.Client{Timeout: time.Duration(cfg.Server.RequestTimeout) * time.Second},
			retry:   newRetrier(cfg.Server.RetryInitialMs, cfg.Server.RetryMaxMs, cfg.Server.RetryMaxRetries, logger),
		},
		runner: runner,
		now:    time.Now,
	}
}

// generateAgentID derives a stable id from machine identity.
func generateAgentID(hostname, arch, uid string) string {
	sum := sha256.Sum256([]byte(hostname + "-" + arch + "-" + uid))
	return "agent-" + hex.EncodeToString(sum[:])[:12]
}

func splitTargets(raw string) []string {
	var out []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// run registers, then heartbeats and scans on their intervals until ctx ends.
func (a *Agent) run(ctx context.Context) {
	a.register(ctx)
	a.scanAll(ctx)

	heartbeats := time.NewTicker(time.Duration(a.cfg.Reporting.HeartbeatInterval) * time.Second)
	defer heartbeats.Stop()
	scansTick := time.NewTicker(time.Duration(a.cfg.Reporting.Interval) * time.Second)
	defer scansTick.Stop()
	jitter := time.Duration(a.cfg.Reporting.Jitter) * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeats.C:
			a.heartbeat(ctx)
		case <-scansTick.C:
			if jitter > 0 {
				if err := sleepCtx(ctx, time.Duration(rand.Int63n(int64(jitter)))); err != nil {
					return
				}
			}
			a.scanAll(ctx)
		}
	}
}

// register announces the agent. Failures are logged and the agent keeps
// scanning; uploads will still carry the agent id.
func (a *Agent) register(ctx context.Context) {
	caps := a.cfg.Agent.Capabilities
	if len(caps) == 0 {
		caps = defaultCapabilities
	}
	osVersion := a.facts.OSVersion
	if osVersion == "" {
		osVersion = a.facts.Kernel
	}
	reg := registration{
		AgentID:      a.id,
		Hostname:     a.facts.Hostname,
		OS:           a.facts.OS,
		OSVersion:    osVersion,
		ScannerType:  a.runner.Type(),
		Version:      Version,
		Capabilities: caps,
		RegisteredAt: a.now().UTC().Format(time.RFC3339Nano),
	}
	if err := a.up.Register(ctx, reg); err != nil {
		a.logger.Warn().Err(err).Msg("agent registration failed; continuing")
		return
	}
	a.logger.Info().Str("hostname", reg.Hostname).Msg("agent registered")
}

func (a *Agent) heartbeat(ctx context.Context) {
	err := a.up.Heartbeat(ctx, heartbeat{
		AgentID:   a.id,
		Timestamp: a.now().UTC().Format(time.RFC3339Nano),
		Status:    "healthy",
	})
	if err != nil {
		a.logger.Warn().Err(err).Msg("heartbeat failed")
	}
}

func (a *Agent) scanAll(ctx context.Context) {
	if len(a.cfg.Scanner.Targets) == 0 {
		a.logger.Debug().Msg("no scan targets configured")
		return
	}
	for _, target := range a.cfg.Scanner.Targets {
		if ctx.Err() != nil {
			return
		}
		if err := a.scanOne(ctx, target); err != nil {
			a.logger.Error().Err(err).Str("target", target).Msg("scan failed")
		}
	}
}

func (a *Agent) scanOne(ctx context.Context, target string) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "scan "+a.runner.Type())
	defer span.End()
	span.SetAttributes(attribute.String("scan.target", target))

	payload, err := a.buildPayload(ctx, target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scan failed")
		return err
	}
	res, err := a.up.UploadScan(ctx, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
		return fmt.Errorf("upload scan %s: %w", payload.ScanID, err)
	}

	entry := a.logger.Info()
	if !res.Compliant {
		entry = a.logger.Warn().Strs("violations", res.Violations)
	}
	entry.
		Str("scan_id", payload.ScanID).
		Str("target", target).
		Int("critical", res.Summary.Critical).
		Int("high", res.Summary.High).
		Int("total", res.Summary.Total).
		Bool("compliant", res.Compliant).
		Msg("scan uploaded")
	return nil
}

func (a *Agent) buildPayload(ctx context.Context, target string) (scans.Payload, error) {
	started := a.now()
	findings, err := a.runner.Scan(ctx, target, a.cfg.Scanner.TargetType)
	if err != nil {
		return scans.Payload{}, err
	}
	summary := scans.Summarize(findings)
	sha := sha256.Sum256([]byte(target))
	unix := started.Unix()

	return scans.Payload{
		ScanID:     uuid.NewString(),
		AgentID:    a.id,
		Timestamp:  started.UTC().Format(time.RFC3339Nano),
		TargetType: a.cfg.Scanner.TargetType,
		Target:     target,
		Findings:   findings,
		Summary:    &summary,
		Metadata: map[string]any{
			"scanner":         a.runner.Type(),
			"scanner_version": a.runner.Version(ctx),
			"agent_version":   Version,
			"hostname":        a.facts.Hostname,
			"platform":        runtime.GOOS + "/" + runtime.GOARCH,
			"duration_ms":     a.now().Sub(started).Milliseconds(),
		},
		Source: &scans.Source{
			PipelineID: unix,
			JobID:      unix + 1,
			SHA:        hex.EncodeToString(sha[:])[:12],
		},
	}, nil
}
