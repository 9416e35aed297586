package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_DefaultsAndYAML(t *testing.T) {
	path := writeConfig(t, `
portal:
  base_url: https://portal.example.org
  paths: [/internships, /jobs]
  protected_prefixes: [/dashboard]
timing:
  login_validity: 90m
limits:
  jobs_per_cycle: 6
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://portal.example.org", cfg.Portal.BaseURL)
	assert.Equal(t, []string{"/internships", "/jobs"}, cfg.Portal.Paths)
	assert.Equal(t, 90*time.Minute, cfg.Timing.LoginValidity)
	assert.Equal(t, 6, cfg.Limits.JobsPerCycle)

	//defaults
	assert.Equal(t, 2, cfg.Limits.MinPathsPerRun)
	assert.Equal(t, 3, cfg.Limits.MaxPathsPerRun)
	assert.Equal(t, 30*time.Second, cfg.Timing.NavigationTimeout)
	assert.Equal(t, 0.85, cfg.Validation.SimilarityThreshold)
	assert.Equal(t, "file", cfg.State.Backend)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "/login", cfg.Login.Path)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
portal:
  base_url: https://yaml.example.org
  paths: [/jobs]
login:
  credentials:
    - email: second@example.org
      password: pw2
`)
	t.Setenv("PORTAL_BASE_URL", "https://env.example.org")
	t.Setenv("PORTAL_LOGIN_EMAIL", "first@example.org")
	t.Setenv("PORTAL_LOGIN_PASSWORD", "pw1")
	t.Setenv("HEADLESS", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.org", cfg.Portal.BaseURL)
	require.Len(t, cfg.Login.Credentials, 2)
	assert.Equal(t, "first@example.org", cfg.Login.Credentials[0].Email)
	assert.Equal(t, "second@example.org", cfg.Login.Credentials[1].Email)
	assert.False(t, cfg.Browser.Headless)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing base url", body: "portal:\n  paths: [/jobs]\n"},
		{name: "missing paths", body: "portal:\n  base_url: https://x.org\n"},
		{name: "redis without url", body: "portal:\n  base_url: https://x.org\n  paths: [/jobs]\nstate:\n  backend: redis\n"},
		{name: "unknown backend", body: "portal:\n  base_url: https://x.org\n  paths: [/jobs]\nstate:\n  backend: etcd\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestIsProtected(t *testing.T) {
	cfg := &Config{Portal: PortalConfig{ProtectedPrefixes: []string{"/dashboard", "/student"}}}

	assert.True(t, cfg.IsProtected("/dashboard/internships"))
	assert.True(t, cfg.IsProtected("/student"))
	assert.False(t, cfg.IsProtected("/internships"))
}
