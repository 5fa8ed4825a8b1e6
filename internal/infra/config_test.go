package infra

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
app:
  name: test-bot
  version: 0.1.0
trading:
  mode: paper
  venue: paper
risk:
  max_position_notional: "1000"
  max_total_exposure: "5000"
  max_open_positions: 5
  max_leverage: "3"
  daily_loss_limit: "200"
  require_protective: true
  duplicate_tolerance: "0.01"
  precision_tolerance: "0.001"
execution:
  max_retries: 3
  breaker_threshold: 5
  submit_timeout_ms: 5000
  reconcile_interval_ms: 30000
storage:
  path: data/test.db
logging:
  level: debug
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "paper", cfg.Trading.Mode)
	assert.True(t, cfg.Risk.RequireProtective)
	assert.Equal(t, 5*time.Second, cfg.SubmitTimeout())
	assert.Equal(t, 30*time.Second, cfg.ReconcileInterval())
	assert.True(t, RiskDecimal(cfg.Risk.MaxLeverage).Equal(RiskDecimal("3")))
}

func TestLoadConfig_EnvOverridesSecrets(t *testing.T) {
	t.Setenv("VENUE_ACCESS_KEY", "from-env")
	t.Setenv("VENUE_SECRET_KEY", "sekrit")

	cfg, err := LoadConfig(writeConfig(t, validYAML))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.API.AccessKey)
	assert.Equal(t, "sekrit", cfg.API.SecretKey)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  string
		replace string
	}{
		{"bad mode", "mode: paper", "mode: yolo"},
		{"no retries", "max_retries: 3", "max_retries: 0"},
		{"no storage", "path: data/test.db", "path: \"\""},
		{"bad decimal", `max_leverage: "3"`, `max_leverage: "lots"`},
		{"negative notional", `max_position_notional: "1000"`, `max_position_notional: "-5"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broken := strings.Replace(validYAML, tt.mutate, tt.replace, 1)
			_, err := LoadConfig(writeConfig(t, broken))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
