package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/optimal-cyber/launchpad-sub001/pkg/agents"
	"github.com/optimal-cyber/launchpad-sub001/pkg/policy"
	"github.com/optimal-cyber/launchpad-sub001/pkg/scans"
	"github.com/optimal-cyber/launchpad-sub001/pkg/sso"
	"github.com/optimal-cyber/launchpad-sub001/pkg/tokens"
)

var Version = "dev"

type options struct {
	server     string
	token      string
	adminToken string
	timeout    time.Duration
	json       bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}

func newRootCmd() *cobra.Command {
	o := &options{}
	rootCmd := &cobra.Command{
		Use:           "launchpad",
		Short:         "Launchpad - vulnerability scan control plane",
		Long:          "Inspect scanning agents and scan history, and manage API tokens on a Launchpad server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&o.server, "server", "s", envOr("LAUNCHPAD_SERVER_URL", "http://localhost:8080"), "Launchpad server URL")
	flags.StringVarP(&o.token, "token", "t", os.Getenv("LAUNCHPAD_API_TOKEN"), "API token for read endpoints")
	flags.StringVar(&o.adminToken, "admin-token", os.Getenv("LAUNCHPAD_ADMIN_TOKEN"), "Admin token for token management")
	flags.DurationVar(&o.timeout, "timeout", 15*time.Second, "Request timeout")
	flags.BoolVar(&o.json, "json", false, "Print raw JSON")

	rootCmd.AddCommand(
		statusCmd(o),
		agentsCmd(o),
		scansCmd(o),
		tokensCmd(o),
		ssoCmd(o),
		versionCmd(),
	)
	return rootCmd
}

// emit prints v as JSON when --json is set, and runs text otherwise.
func (o *options) emit(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	out := cmd.OutOrStdout()
	if o.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(out)
	return nil
}

type statsResponse struct {
	Stats    scans.Stats `json:"stats"`
	Capacity int         `json:"capacity"`
}

type agentsResponse struct {
	Count  int             `json:"count"`
	Agents []agents.Record `json:"agents"`
}

func statusCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show fleet and scan overview",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newAPIClient(o)
			ctx := cmd.Context()

			var health struct {
				Status  string `json:"status"`
				Version string `json:"version"`
			}
			if err := c.get(ctx, "/v1/health", nil, &health); err != nil {
				return err
			}
			var stats statsResponse
			if err := c.get(ctx, "/v1/scans/stats", nil, &stats); err != nil {
				return err
			}
			var fleet agentsResponse
			if err := c.get(ctx, "/v1/agents", nil, &fleet); err != nil {
				return err
			}
			active := 0
			for _, a := range fleet.Agents {
				if a.Status == agents.StatusActive {
					active++
				}
			}

			summary := map[string]any{"health": health, "stats": stats, "agents": fleet.Count, "active_agents": active}
			return o.emit(cmd, summary, func(w io.Writer) {
				f := stats.Stats.Findings
				fmt.Fprintf(w, "Launchpad Status\n")
				fmt.Fprintf(w, "================\n\n")
				fmt.Fprintf(w, "Server:            %s (%s, %s)\n", o.server, health.Status, health.Version)
				fmt.Fprintf(w, "Agents:            %d (%d active)\n", fleet.Count, active)
				fmt.Fprintf(w, "Scans stored:      %d of %d\n", stats.Stats.Scans, stats.Capacity)
				fmt.Fprintf(w, "Targets:           %d\n", stats.Stats.Targets)
				fmt.Fprintf(w, "Findings:          %d (critical %d, high %d, medium %d, low %d, unknown %d)\n",
					f.Total, f.Critical, f.High, f.Medium, f.Low, f.Unknown)
				if stats.Stats.LatestReceived != nil {
					fmt.Fprintf(w, "Last scan:         %s\n", ago(*stats.Stats.LatestReceived))
				}
			})
		},
	}
}

func agentsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:     "agents",
		Aliases: []string{"ls"},
		Short:   "List registered agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			var fleet agentsResponse
			if err := newAPIClient(o).get(cmd.Context(), "/v1/agents", nil, &fleet); err != nil {
				return err
			}
			return o.emit(cmd, fleet, func(out io.Writer) {
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "AGENT ID\tHOSTNAME\tSCANNER\tSTATUS\tLAST HEARTBEAT")
				for _, a := range fleet.Agents {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.AgentID, a.Hostname, a.ScannerType, a.Status, ago(a.LastHeartbeat))
				}
				w.Flush()
			})
		},
	}
}

type scansResponse struct {
	Count int            `json:"count"`
	Total int            `json:"total"`
	Scans []scans.Record `json:"scans"`
}

func scansCmd(o *options) *cobra.Command {
	var target, agentID string
	var limit int
	cmd := &cobra.Command{
		Use:   "scans",
		Short: "List recent scans",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if target != "" {
				q.Set("target", target)
			}
			if agentID != "" {
				q.Set("agent_id", agentID)
			}
			if limit != 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			var page scansResponse
			if err := newAPIClient(o).get(cmd.Context(), "/v1/scans", q, &page); err != nil {
				return err
			}
			return o.emit(cmd, page, func(out io.Writer) {
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "SCAN ID\tTARGET\tAGENT\tCRIT\tHIGH\tMED\tLOW\tTOTAL\tTIME")
				for _, s := range page.Scans {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
						s.ScanID, s.Target, s.AgentID,
						s.Summary.Critical, s.Summary.High, s.Summary.Medium, s.Summary.Low, s.Summary.Total,
						s.Timestamp.Format(time.RFC3339))
				}
				w.Flush()
				fmt.Fprintf(out, "\n%d of %d stored scans\n", page.Count, page.Total)
			})
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "Only scans whose target contains this text")
	cmd.Flags().StringVar(&agentID, "agent", "", "Only scans from this agent")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum scans to show (server default 50)")
	cmd.AddCommand(scanShowCmd(o))
	return cmd
}

func scanShowCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show [scan-id]",
		Short: "Show a scan and its policy verdict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Scan   scans.Record      `json:"scan"`
				Policy policy.Evaluation `json:"policy"`
			}
			if err := newAPIClient(o).get(cmd.Context(), "/v1/scans/"+url.PathEscape(args[0]), nil, &resp); err != nil {
				return err
			}
			return o.emit(cmd, resp, func(out io.Writer) {
				s := resp.Scan
				fmt.Fprintf(out, "Scan: %s\n", s.ScanID)
				fmt.Fprintf(out, "========================================\n\n")
				fmt.Fprintf(out, "Target:       %s (%s)\n", s.Target, s.TargetType)
				fmt.Fprintf(out, "Agent:        %s\n", s.AgentID)
				fmt.Fprintf(out, "Project:      %s\n", s.Project.Name)
				fmt.Fprintf(out, "Scanned:      %s\n", s.Timestamp.Format(time.RFC3339))
				fmt.Fprintf(out, "Received:     %s\n", s.ReceivedAt.Format(time.RFC3339))
				fmt.Fprintf(out, "Summary:      critical %d, high %d, medium %d, low %d, unknown %d (total %d)\n",
					s.Summary.Critical, s.Summary.High, s.Summary.Medium, s.Summary.Low, s.Summary.Unknown, s.Summary.Total)
				fmt.Fprintf(out, "Policy:       %s\n\n", resp.Policy.String())

				if len(s.Findings) == 0 {
					return
				}
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "VULNERABILITY\tSEVERITY\tPACKAGE\tVERSION\tFIXED IN\tSTATUS")
				for _, f := range s.Findings {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", f.VulnID, f.Severity, f.Package, f.Version, f.FixedVersion, f.Status)
				}
				w.Flush()
			})
		},
	}
}

func tokensCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Manage API tokens (requires --admin-token)",
	}
	cmd.AddCommand(tokenCreateCmd(o), tokenListCmd(o), tokenRevokeCmd(o))
	return cmd
}

type issuedToken struct {
	tokens.Record
	Value string `json:"value"`
}

func tokenCreateCmd(o *options) *cobra.Command {
	var name, description string
	var scopes []string
	var days int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue a new API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"name": name, "description": description, "scopes": scopes}
			if cmd.Flags().Changed("expires-in-days") {
				body["expires_in_days"] = days
			}
			var resp struct {
				Token issuedToken `json:"token"`
			}
			if err := newAPIClient(o).admin(cmd.Context(), http.MethodPost, "/v1/tokens", nil, body, &resp); err != nil {
				return err
			}
			return o.emit(cmd, resp.Token, func(out io.Writer) {
				fmt.Fprintf(out, "Token created: %s (%s)\n", resp.Token.ID, resp.Token.Name)
				fmt.Fprintf(out, "Scopes:        %s\n", strings.Join(resp.Token.Scopes, ", "))
				if resp.Token.ExpiresAt != nil {
					fmt.Fprintf(out, "Expires:       %s\n", resp.Token.ExpiresAt.Format(time.RFC3339))
				} else {
					fmt.Fprintf(out, "Expires:       never\n")
				}
				fmt.Fprintf(out, "\n%s\n\nStore this token securely; it will not be shown again.\n", resp.Token.Value)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Token name")
	cmd.Flags().StringVar(&description, "description", "", "Token description")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "Scopes (read, write, scan); repeatable")
	cmd.Flags().IntVar(&days, "expires-in-days", 0, "Expire after this many days (default never)")
	return cmd
}

func tokenListCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List API tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Count  int             `json:"count"`
				Tokens []tokens.Record `json:"tokens"`
			}
			if err := newAPIClient(o).admin(cmd.Context(), http.MethodGet, "/v1/tokens", nil, nil, &resp); err != nil {
				return err
			}
			return o.emit(cmd, resp, func(out io.Writer) {
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tPREFIX\tSCOPES\tEXPIRES\tLAST USED")
				for _, t := range resp.Tokens {
					expires := "never"
					if t.ExpiresAt != nil {
						expires = t.ExpiresAt.Format(time.RFC3339)
					}
					lastUsed := "never"
					if t.LastUsed != nil {
						lastUsed = ago(*t.LastUsed)
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", t.ID, t.Name, t.Prefix, strings.Join(t.Scopes, ","), expires, lastUsed)
				}
				w.Flush()
			})
		},
	}
}

func tokenRevokeCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke [token-id]",
		Short: "Revoke an API token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{"id": []string{args[0]}}
			if err := newAPIClient(o).admin(cmd.Context(), http.MethodDelete, "/v1/tokens", q, nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token %s revoked\n", args[0])
			return nil
		},
	}
}

func ssoCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sso",
		Short: "Inspect single sign-on configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "services",
		Short: "List services registered for SSO",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Enabled  bool                `json:"enabled"`
				Services []sso.ServiceConfig `json:"services"`
			}
			if err := newAPIClient(o).get(cmd.Context(), "/v1/sso/services", nil, &resp); err != nil {
				return err
			}
			return o.emit(cmd, resp, func(out io.Writer) {
				if !resp.Enabled {
					fmt.Fprintln(out, "SSO is disabled on this server")
				}
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "SERVICE\tURL\tCLIENT ID\tROLES")
				for _, s := range resp.Services {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.URL, s.ClientID, strings.Join(s.RequiredRoles, ","))
				}
				w.Flush()
			})
		},
	})
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "launchpad version %s\n", Version)
		},
	}
}

