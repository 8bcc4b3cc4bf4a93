package scanner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

const grypeFixture = `{
  "matches": [
    {
      "vulnerability": {
        "id": "CVE-2024-21626",
        "severity": "Critical",
        "description": "runc container breakout",
        "urls": ["https://nvd.nist.gov/vuln/detail/CVE-2024-21626"],
        "fix": {"versions": ["1.1.12"], "state": "fixed"},
        "cvss": [{"metrics": {"baseScore": 8.6}}]
      },
      "artifact": {"name": "runc", "version": "1.1.5"}
    },
    {
      "vulnerability": {"id": "GHSA-xxxx", "severity": "Low"},
      "artifact": {"name": "setuptools"}
    }
  ]
}`

const trivyFixture = `{
  "Results": [
    {"Target": "alpine", "Vulnerabilities": [
      {
        "VulnerabilityID": "CVE-2023-44487",
        "PkgName": "golang.org/x/net",
        "InstalledVersion": "0.15.0",
        "FixedVersion": "0.17.0",
        "Severity": "HIGH",
        "References": ["https://example.com/a"],
        "CVSS": {"nvd": {"V3Score": 7.5}}
      }
    ]},
    {"Target": "no vulns"}
  ]
}`

func TestParseGrype(t *testing.T) {
	findings, err := ParseGrype([]byte(grypeFixture))
	require.NoError(t, err)
	require.Len(t, findings, 2)

	f := findings[0]
	require.Equal(t, "CVE-2024-21626", f.VulnID)
	require.Equal(t, "Critical", f.Severity)
	require.Equal(t, "runc", f.Package)
	require.Equal(t, "1.1.12", f.FixedVersion)
	require.NotNil(t, f.CVSSScore)
	require.InDelta(t, 8.6, *f.CVSSScore, 0.001)
	require.Contains(t, string(f.RawData), "runc container breakout")

	require.Equal(t, "unknown", findings[1].Version)
	require.Empty(t, findings[1].FixedVersion)
	require.Nil(t, findings[1].CVSSScore)
	require.NotNil(t, findings[1].URLs)
}

func TestParseTrivy(t *testing.T) {
	findings, err := ParseTrivy([]byte(trivyFixture))
	require.NoError(t, err)
	require.Len(t, findings, 1)
	require.Equal(t, "CVE-2023-44487", findings[0].VulnID)
	require.Equal(t, "0.17.0", findings[0].FixedVersion)
	require.InDelta(t, 7.5, *findings[0].CVSSScore, 0.001)

	_, err = ParseTrivy([]byte("not json"))
	require.Error(t, err)
}

type recordedCall struct {
	name string
	args []string
}

func fakeRunner(t *testing.T, kind string, stdout string, code int) (*Runner, *[]recordedCall) {
	t.Helper()
	r, err := NewRunner(kind, "", 0)
	require.NoError(t, err)
	calls := &[]recordedCall{}
	r.run = func(_ context.Context, name string, args ...string) ([]byte, []byte, int, error) {
		*calls = append(*calls, recordedCall{name: name, args: args})
		return []byte(stdout), []byte("boom"), code, nil
	}
	return r, calls
}

func TestRunnerGrypeAcceptsExitOne(t *testing.T) {
	r, calls := fakeRunner(t, TypeGrype, grypeFixture, 1)
	findings, err := r.Scan(context.Background(), "/srv/app", "dir")
	require.NoError(t, err)
	require.Len(t, findings, 2)
	require.Equal(t, "grype", (*calls)[0].name)
	require.Equal(t, []string{"dir:/srv/app", "-o", "json"}, (*calls)[0].args)

	r, _ = fakeRunner(t, TypeGrype, "", 2)
	_, err = r.Scan(context.Background(), "nginx:latest", "image")
	require.ErrorContains(t, err, "boom")
}

func TestRunnerTrivy(t *testing.T) {
	r, calls := fakeRunner(t, TypeTrivy, trivyFixture, 0)
	findings, err := r.Scan(context.Background(), "nginx:latest", "image")
	require.NoError(t, err)
	require.Len(t, findings, 1)
	require.Equal(t, []string{"image", "-f", "json", "--quiet", "nginx:latest"}, (*calls)[0].args)
}

func TestRunnerVersion(t *testing.T) {
	r, _ := fakeRunner(t, TypeGrype, `{"version":"0.74.0"}`, 0)
	require.Equal(t, "0.74.0", r.Version(context.Background()))

	r, _ = fakeRunner(t, TypeTrivy, "Version: 0.49.1\n", 0)
	require.Equal(t, "0.49.1", r.Version(context.Background()))

	r, _ = fakeRunner(t, TypeTrivy, "", 0)
	r.run = func(context.Context, string, ...string) ([]byte, []byte, int, error) {
		return nil, nil, -1, errors.New("not found")
	}
	require.Equal(t, "unknown", r.Version(context.Background()))
}

func TestNewRunnerRejectsUnknown(t *testing.T) {
	_, err := NewRunner("clair", "", 0)
	require.Error(t, err)
}
