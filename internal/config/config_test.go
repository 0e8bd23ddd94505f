package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/member-manager/internal/config"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	content, err := yaml.Marshal(map[string]any{
		"application": map[string]any{
			"name": "member-manager",
		},
		"process": map[string]any{
			"id":     "GpGKJdtAu2cqlEy2DK2mhGIs5i-anZUkCTsFNU5U9OE",
			"scopes": []string{"ACCESS_ADDRESS", "SIGN_TRANSACTION"},
		},
		"wallet": map[string]any{
			"keyfile": map[string]any{
				"source": "embedded",
				"value":  `{"kty":"RSA"}`,
			},
		},
		"valkey": map[string]any{
			"host": map[string]any{
				"source": "embedded",
				"value":  "localhost:6379",
			},
			"prefix": "members",
		},
		"action": map[string]any{
			"resultTimeout":        "45s",
			"serializePerIdentity": true,
		},
		"watch": map[string]any{
			"refreshInterval": "2m",
		},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o600))

	var cfg config.Config
	require.NoError(t, commoncfg.LoadConfig(&cfg, nil, dir))

	assert.Equal(t, "member-manager", cfg.Application.Name)
	assert.Equal(t, "GpGKJdtAu2cqlEy2DK2mhGIs5i-anZUkCTsFNU5U9OE", cfg.Process.ID)
	assert.Equal(t, []string{"ACCESS_ADDRESS", "SIGN_TRANSACTION"}, cfg.Process.Scopes)
	assert.Equal(t, "members", cfg.ValKey.Prefix)
	assert.Equal(t, 45*time.Second, cfg.Action.ResultTimeout)
	assert.True(t, cfg.Action.SerializePerIdentity)
	assert.Equal(t, 2*time.Minute, cfg.Watch.RefreshInterval)

	keyfile, err := commoncfg.LoadValueFromSourceRef(cfg.Wallet.Keyfile)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kty":"RSA"}`, string(keyfile))
}
