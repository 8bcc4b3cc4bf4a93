// Package hostinfo collects the host facts an agent reports when it registers.
package hostinfo

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"
)

type Facts struct {
	Hostname  string            `json:"hostname"`
	OS        string            `json:"os"`
	OSName    string            `json:"os_name"`
	OSVersion string            `json:"os_version"`
	Kernel    string            `json:"kernel"`
	Arch      string            `json:"arch"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// Collector runs host probes in parallel, bounded by a timeout.
type Collector struct {
	timeout       time.Duration
	osReleasePath string
	mu            sync.Mutex
	errors        map[string]string
}

func NewCollector(timeout time.Duration) *Collector {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Collector{timeout: timeout, osReleasePath: "/etc/os-release"}
}

func (c *Collector) Collect(ctx context.Context) Facts {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.mu.Lock()
	c.errors = make(map[string]string)
	c.mu.Unlock()

	facts := Facts{OS: runtime.GOOS, Arch: runtime.GOARCH}
	if hostname, err := os.Hostname(); err == nil {
		facts.Hostname = hostname
	} else {
		c.recordError("hostname", err.Error())
	}

	var (
		wg        sync.WaitGroup
		kernel    string
		osName    string
		osVersion string
	)
	probes := []struct {
		name string
		fn   func(context.Context)
	}{
		{"kernel", func(ctx context.Context) { kernel = c.probeKernel(ctx) }},
		{"os_info", func(ctx context.Context) { osName, osVersion = c.probeOSInfo(ctx) }},
	}
	for _, probe := range probes {
		wg.Add(1)
		go func(name string, fn func(context.Context)) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					c.recordError(name, fmt.Sprintf("panic: %v", r))
				}
			}()
			fn(ctx)
		}(probe.name, probe.fn)
	}
	wg.Wait()

	facts.Kernel = kernel
	facts.OSName = osName
	facts.OSVersion = osVersion
	if facts.OSVersion == "" {
		facts.OSVersion = kernel
	}

	c.mu.Lock()
	if len(c.errors) > 0 {
		facts.Errors = c.errors
	}
	c.mu.Unlock()
	return facts
}

func (c *Collector) recordError(probe, err string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors[probe] = err
}

func (c *Collector) probeKernel(ctx context.Context) string {
	if runtime.GOOS == "windows" {
		return ""
	}
	out, err := exec.CommandContext(ctx, "uname", "-r").Output()
	if err != nil {
		c.recordError("kernel", err.Error())
		return ""
	}
	return strings.TrimSpace(string(out))
}

func (c *Collector) probeOSInfo(ctx context.Context) (string, string) {
	switch runtime.GOOS {
	case "linux":
		data, err := os.ReadFile(c.osReleasePath)
		if err != nil {
			c.recordError("os_info", err.Error())
			return "", ""
		}
		rel := parseOSRelease(string(data))
		return rel["PRETTY_NAME"], rel["VERSION_ID"]
	case "darwin":
		out, err := exec.CommandContext(ctx, "sw_vers", "-productVersion").Output()
		if err != nil {
			c.recordError("os_info", err.Error())
			return "", ""
		}
		v := strings.TrimSpace(string(out))
		return "macOS " + v, v
	case "windows":
		out, err := exec.CommandContext(ctx, "powershell", "-Command",
			"(Get-CimInstance Win32_OperatingSystem).Version").Output()
		if err != nil {
			c.recordError("os_info", err.Error())
			return "", ""
		}
		v := strings.TrimSpace(string(out))
		return "Windows " + v, v
	}
	return "", ""
}

// parseOSRelease reads KEY=value lines, unquoting values.
func parseOSRelease(data string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		out[key] = strings.Trim(value, `"'`)
	}
	return out
}
