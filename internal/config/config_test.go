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
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestGetDefaults_Valid(t *testing.T) {
	cfg := GetDefaults()
	require.NoError(t, validateConfig(cfg))
	assert.Equal(t, 50*time.Millisecond, cfg.Rules.Timeout)
	assert.Equal(t, 10*1024*1024, cfg.Rules.MaxOutputBytes)
	assert.Equal(t, []string{"all"}, cfg.Privacy.Detectors)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9100
rules:
  timeout: 100ms
  custom:
    - id: tabs
      pattern: "\t"
      replacement: "  "
privacy:
  detectors: [Email, Phone]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 100*time.Millisecond, cfg.Rules.Timeout)
	require.Len(t, cfg.Rules.Custom, 1)
	assert.Equal(t, "tabs", cfg.Rules.Custom[0].ID)
	assert.Equal(t, []string{"Email", "Phone"}, cfg.Privacy.Detectors)

	// Untouched sections keep their defaults
	assert.Equal(t, "memory", cfg.Shield.Store)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9100\n")
	t.Setenv("FLOWPASTE_SERVER_PORT", "9200")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9200, cfg.Server.Port)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"LogLevel", "logging:\n  level: loud\n"},
		{"ShieldStore", "shield:\n  store: disk\n"},
		{"DuplicateRule", "rules:\n  custom:\n    - id: a\n      pattern: x\n    - id: a\n      pattern: y\n"},
		{"RuleWithoutID", "rules:\n  custom:\n    - pattern: x\n"},
		{"AuditWithoutURL", "audit:\n  enabled: true\n"},
		{"Timeout", "rules:\n  timeout: 0s\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
