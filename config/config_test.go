package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitList(t *testing.T) {
	require.Equal(t, []string{"10.0.0.0/8", "192.168.1.0/24"}, splitList("10.0.0.0/8, 192.168.1.0/24"))
	require.Equal(t, []string{"a", "b", "c"}, splitList("a;b c"))
	require.Empty(t, splitList(""))
}

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("GATEWAY_MAX_SUM", "500.50")
	t.Setenv("GATEWAY_ALLOWED_CIDRS", "79.142.16.0/20")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "500.5", cfg.Gateway.MaxSum.String())
	require.Equal(t, "1", cfg.Gateway.MinSum.String())
	require.Equal(t, []string{"79.142.16.0/20"}, cfg.Gateway.AllowedCIDRs)
	require.Equal(t, "COIN", cfg.Webhook.LoyaltyCurrency)
	require.Equal(t, "5", cfg.Loyalty.DefaultCashbackRate.String())
	require.Equal(t, 100, cfg.RateLimit.Requests)
	require.Empty(t, cfg.Server.TrustedProxies)
}

func TestLoadTrustedProxies(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SERVER_TRUSTED_PROXIES", "10.0.0.1, 10.0.0.2")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.Server.TrustedProxies)
}
