package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func stubLookPath(t *testing.T, fn func(string) (string, error)) {
	t.Helper()
	orig := lookPath
	lookPath = fn
	t.Cleanup(func() { lookPath = orig })
}

func TestCheckHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	stubLookPath(t, func(name string) (string, error) { return "/usr/local/bin/" + name, nil })

	status := Check(context.Background(), Options{
		ServerURL:     srv.URL + "/",
		ScannerBinary: "grype",
		CheckServer:   true,
		CheckScanner:  true,
	})
	require.True(t, status.Healthy)
	require.True(t, status.ServerReachable)
	require.Equal(t, "/usr/local/bin/grype", status.ScannerPath)
	require.Empty(t, status.Issues)
}

func TestCheckReportsIssues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	stubLookPath(t, func(string) (string, error) { return "", errors.New("not in PATH") })

	status := Check(context.Background(), Options{
		ServerURL:     srv.URL,
		ScannerBinary: "trivy",
		CheckServer:   true,
		CheckScanner:  true,
	})
	require.False(t, status.Healthy)
	require.False(t, status.ServerReachable)
	require.False(t, status.ScannerAvailable)
	require.Len(t, status.Issues, 2)
}

func TestCheckSkipsDisabledChecks(t *testing.T) {
	status := Check(context.Background(), Options{})
	require.True(t, status.Healthy)
	require.Empty(t, status.Issues)
}
