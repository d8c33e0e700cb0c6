package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	cfg.LoadDefaults()

	require.Equal(t, ":8080", cfg.EndpointAddrHTTP)
	require.NotEmpty(t, cfg.DatabaseDSN)
	require.Equal(t, 15*time.Minute, cfg.AccessTokenValidityDuration)
	require.Equal(t, 15*time.Minute, cfg.PresignValidityDuration)
	require.NotEmpty(t, cfg.S3Bucket)
}

func TestApplyJSONFile_OverridesOnlyPresentFields(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"endpoint_addr_http": ":9090",
		"secret_key": "from-json",
		"access_token_validity_duration": "1h"
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg := &Config{}
	cfg.LoadDefaults()
	defaultDSN := cfg.DatabaseDSN

	require.NoError(t, applyJSONFile(cfg, path))

	require.Equal(t, ":9090", cfg.EndpointAddrHTTP)
	require.Equal(t, "from-json", cfg.SecretKey)
	require.Equal(t, time.Hour, cfg.AccessTokenValidityDuration)
	require.Equal(t, defaultDSN, cfg.DatabaseDSN, "absent fields keep their defaults")
}

func TestApplyJSONFile_Errors(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	cfg.LoadDefaults()

	require.Error(t, applyJSONFile(cfg, filepath.Join(t.TempDir(), "missing.json")))

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o600))
	require.Error(t, applyJSONFile(cfg, bad))
}
