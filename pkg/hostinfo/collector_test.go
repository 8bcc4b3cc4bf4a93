package hostinfo

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCollect(t *testing.T) {
	facts := NewCollector(0).Collect(context.Background())
	require.NotEmpty(t, facts.Hostname)
	require.Equal(t, runtime.GOOS, facts.OS)
	require.Equal(t, runtime.GOARCH, facts.Arch)
}

func TestCollectReadsOSRelease(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("os-release is linux only")
	}
	path := filepath.Join(t.TempDir(), "os-release")
	require.NoError(t, os.WriteFile(path, []byte("NAME=\"Ubuntu\"\nVERSION_ID=\"22.04\"\nPRETTY_NAME=\"Ubuntu 22.04.4 LTS\"\n"), 0o600))

	c := NewCollector(0)
	c.osReleasePath = path
	facts := c.Collect(context.Background())
	require.Equal(t, "Ubuntu 22.04.4 LTS", facts.OSName)
	require.Equal(t, "22.04", facts.OSVersion)
}

func TestParseOSRelease(t *testing.T) {
	rel := parseOSRelease("# comment\nID=debian\nVERSION_ID='12'\nbroken line\n")
	require.Equal(t, "debian", rel["ID"])
	require.Equal(t, "12", rel["VERSION_ID"])
	require.Len(t, rel, 2)
}
