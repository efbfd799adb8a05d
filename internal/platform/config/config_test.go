package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.OCR.SlowThreshold)
	assert.Equal(t, "none", cfg.Analysis.Provider)
	assert.Equal(t, "certproof.certifications", cfg.Certificate.KafkaTopic)
}

func TestLoad_FileOverlayKeepsUnsetDefaults(t *testing.T) {
	path := writeFile(t, `
server:
  addr: ":9090"
ocr:
  slow_threshold: 10s
analysis:
  provider: http
  url: http://analysis.local
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.OCR.SlowThreshold)
	assert.Equal(t, 2*time.Minute, cfg.OCR.Timeout)
	assert.Equal(t, "http://analysis.local", cfg.Analysis.URL)
	assert.Equal(t, 5, cfg.Analysis.FailureThreshold)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "server:\n  addr: \":9090\"\n")
	t.Setenv("CERTPROOF_ADDR", ":7070")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Certificate.KafkaBrokers)
}

func TestLoad_RejectsInvalidCombinations(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"http analysis without url", "analysis:\n  provider: http\n"},
		{"anthropic analysis without key", "analysis:\n  provider: anthropic\n"},
		{"unknown analysis provider", "analysis:\n  provider: carrier-pigeon\n"},
		{"unknown visual provider", "visual:\n  provider: fax\n"},
		{"ocr timeout below advisory", "ocr:\n  timeout: 5s\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeFile(t, "server: [unterminated"))
	assert.Error(t, err)
}
