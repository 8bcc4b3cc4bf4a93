package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	lastAuth  string
	lastQuery string
	lastBody  map[string]any
}

func (f *fakeAPI) server(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.lastAuth = r.Header.Get("Authorization")
		f.lastQuery = r.URL.RawQuery
		f.lastBody = nil
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&f.lastBody)
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/v1/health":
			_, _ = w.Write([]byte(`{"success":true,"status":"healthy","version":"1.2.3"}`))
		case r.URL.Path == "/v1/scans/stats":
			_, _ = w.Write([]byte(`{"success":true,"capacity":1000,"stats":{"scans":2,"targets":1,"agents":1,"findings":{"critical":1,"high":2,"medium":0,"low":0,"unknown":0,"total":3},"scans_by_agent":{"agent-1":2}}}`))
		case r.URL.Path == "/v1/agents":
			_, _ = w.Write([]byte(`{"success":true,"count":2,"agents":[{"agent_id":"agent-1","hostname":"build-01","scanner_type":"grype","status":"active","last_heartbeat":"2024-05-01T10:00:00Z"},{"agent_id":"agent-2","hostname":"build-02","scanner_type":"trivy","status":"inactive","last_heartbeat":"2024-04-01T10:00:00Z"}]}`))
		case r.URL.Path == "/v1/scans":
			_, _ = w.Write([]byte(`{"success":true,"count":1,"total":2,"scans":[{"scan_id":"s1","target":"nginx:1.25","agent_id":"agent-1","timestamp":"2024-05-01T10:00:00Z","summary":{"critical":1,"high":2,"total":3}}]}`))
		case r.URL.Path == "/v1/scans/missing":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"success":false,"error":"scan missing not found","request_id":"req-1"}`))
		case r.URL.Path == "/v1/scans/s1":
			_, _ = w.Write([]byte(`{"success":true,"scan":{"scan_id":"s1","target":"nginx:1.25","target_type":"image","agent_id":"agent-1","timestamp":"2024-05-01T10:00:00Z","received_at":"2024-05-01T10:00:01Z","project":{"name":"nginx"},"summary":{"critical":1,"total":1},"findings":[{"vuln_id":"CVE-2024-0001","severity":"CRITICAL","package":"openssl","version":"1.1.1","fixed_version":"1.1.1w","status":"OPEN"}]},"policy":{"compliant":false,"violations":["no-critical"],"warnings":[]}}`))
		case r.URL.Path == "/v1/tokens" && r.Method == http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"success":true,"token":{"id":"tok-1","name":"ci","token_prefix":"lp_abcdef...","scopes":["scan"],"created_at":"2024-05-01T10:00:00Z","expires_at":null,"status":"active","value":"lp_secretvalue"}}`))
		case r.URL.Path == "/v1/tokens" && r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`{"success":true,"count":1,"tokens":[{"id":"tok-1","name":"ci","token_prefix":"lp_abcdef...","scopes":["scan"],"created_at":"2024-05-01T10:00:00Z","status":"active"}]}`))
		case r.URL.Path == "/v1/tokens" && r.Method == http.MethodDelete:
			_, _ = w.Write([]byte(`{"success":true,"id":"tok-1"}`))
		case r.URL.Path == "/v1/sso/services":
			_, _ = w.Write([]byte(`{"success":true,"enabled":true,"services":[{"service_id":"gitlab","service_url":"https://gitlab.example.com","client_id":"gitlab-client"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestStatusSummarisesFleet(t *testing.T) {
	api := &fakeAPI{}
	srv := api.server(t)

	out, err := run(t, "status", "--server", srv.URL, "--token", "lp_read")
	require.NoError(t, err)
	require.Contains(t, out, "healthy, 1.2.3")
	require.Contains(t, out, "Agents:            2 (1 active)")
	require.Contains(t, out, "Scans stored:      2 of 1000")
	require.Equal(t, "Bearer lp_read", api.lastAuth)
}

func TestAgentsTable(t *testing.T) {
	srv := (&fakeAPI{}).server(t)
	out, err := run(t, "agents", "--server", srv.URL)
	require.NoError(t, err)
	require.Contains(t, out, "AGENT ID")
	require.Contains(t, out, "build-01")
	require.Contains(t, out, "inactive")
}

func TestScansPassesFilters(t *testing.T) {
	api := &fakeAPI{}
	srv := api.server(t)
	out, err := run(t, "scans", "--server", srv.URL, "--target", "nginx", "--agent", "agent-1", "-n", "5")
	require.NoError(t, err)
	require.Contains(t, out, "s1")
	require.Contains(t, out, "1 of 2 stored scans")
	require.Contains(t, api.lastQuery, "target=nginx")
	require.Contains(t, api.lastQuery, "agent_id=agent-1")
	require.Contains(t, api.lastQuery, "limit=5")
}

func TestScanShow(t *testing.T) {
	srv := (&fakeAPI{}).server(t)
	out, err := run(t, "scans", "show", "s1", "--server", srv.URL)
	require.NoError(t, err)
	require.Contains(t, out, "Scan: s1")
	require.Contains(t, out, "non-compliant: [no-critical]")
	require.Contains(t, out, "CVE-2024-0001")

	_, err = run(t, "scans", "show", "missing", "--server", srv.URL)
	require.ErrorContains(t, err, "404")
	require.ErrorContains(t, err, "request req-1")
}

func TestTokensCommandsUseAdminToken(t *testing.T) {
	api := &fakeAPI{}
	srv := api.server(t)

	out, err := run(t, "tokens", "create", "--server", srv.URL, "--admin-token", "adm",
		"--name", "ci", "--scope", "scan", "--expires-in-days", "30")
	require.NoError(t, err)
	require.Equal(t, "Bearer adm", api.lastAuth)
	require.Contains(t, out, "lp_secretvalue")
	require.Equal(t, "ci", api.lastBody["name"])
	require.EqualValues(t, 30, api.lastBody["expires_in_days"])
	require.Equal(t, []any{"scan"}, api.lastBody["scopes"])

	_, err = run(t, "tokens", "create", "--server", srv.URL, "--admin-token", "adm")
	require.NoError(t, err)
	require.NotContains(t, api.lastBody, "expires_in_days")

	out, err = run(t, "tokens", "list", "--server", srv.URL, "--admin-token", "adm")
	require.NoError(t, err)
	require.Contains(t, out, "tok-1")
	require.NotContains(t, out, "lp_secretvalue")

	out, err = run(t, "tokens", "revoke", "tok-1", "--server", srv.URL, "--admin-token", "adm")
	require.NoError(t, err)
	require.Equal(t, "id=tok-1", api.lastQuery)
	require.Contains(t, out, "revoked")
}

func TestSSOServicesJSON(t *testing.T) {
	srv := (&fakeAPI{}).server(t)
	out, err := run(t, "sso", "services", "--server", srv.URL, "--json")
	require.NoError(t, err)

	var resp struct {
		Enabled  bool `json:"enabled"`
		Services []struct {
			ID string `json:"service_id"`
		} `json:"services"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.True(t, resp.Enabled)
	require.Equal(t, "gitlab", resp.Services[0].ID)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, "launchpad version")
}
