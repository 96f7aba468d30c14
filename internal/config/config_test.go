package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanyue-dev/ai-essay-grader/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.AppEnv)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "gpt-4o-mini", cfg.OracleModel)
	assert.Equal(t, 3*time.Minute, cfg.OracleTimeout)
	assert.InDelta(t, 0.70, cfg.SemanticThreshold, 1e-9)
	assert.InDelta(t, 0.85, cfg.SemanticFullCreditCutoff, 1e-9)
	assert.InDelta(t, 0.4, cfg.HybridAlgoWeight, 1e-9)
	assert.InDelta(t, 0.6, cfg.HybridAIWeight, 1e-9)
	assert.Equal(t, 10*time.Minute, cfg.JobTimeout)
	assert.Equal(t, 30*time.Second, cfg.HTTPRequestTimeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("PORT", "9090")
	t.Setenv("ORACLE_CALLS_PER_MIN", "120")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProd())
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 120, cfg.OracleCallsPerMin)
}

func TestEnvPredicates(t *testing.T) {
	assert.True(t, config.Config{AppEnv: "dev"}.IsDev())
	assert.True(t, config.Config{AppEnv: "PROD"}.IsProd())
	assert.True(t, config.Config{AppEnv: "test"}.IsTest())
	assert.False(t, config.Config{AppEnv: "test"}.IsProd())
}

func TestGetOracleBackoffConfig_TestEnvShortens(t *testing.T) {
	cfg := config.Config{
		AppEnv:                       "test",
		OracleBackoffMaxElapsedTime:  90 * time.Second,
		OracleBackoffInitialInterval: 2 * time.Second,
		OracleBackoffMaxInterval:     20 * time.Second,
		OracleBackoffMultiplier:      1.5,
	}
	maxElapsed, initial, maxInterval, multiplier := cfg.GetOracleBackoffConfig()
	assert.Equal(t, 5*time.Second, maxElapsed)
	assert.Equal(t, 100*time.Millisecond, initial)
	assert.Equal(t, time.Second, maxInterval)
	assert.Equal(t, 2.0, multiplier)

	cfg.AppEnv = "prod"
	maxElapsed, initial, maxInterval, multiplier = cfg.GetOracleBackoffConfig()
	assert.Equal(t, 90*time.Second, maxElapsed)
	assert.Equal(t, 2*time.Second, initial)
	assert.Equal(t, 20*time.Second, maxInterval)
	assert.Equal(t, 1.5, multiplier)
}
