package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/tapewatch/internal/common"
	"github.com/bobmcallan/tapewatch/internal/ratelimit"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tapewatch.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewAppWiresEverything(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "cache.json")
	path := writeConfig(t, `
watchlist = ["AAPL", "MSFT"]

[providers.finnhub]
api_key = "fh-key"

[providers.polygon]
api_key = "pg-key"

[cache]
path = "`+cachePath+`"

[logging]
level = "error"
`)

	a, err := NewApp(path)
	require.NoError(t, err)
	defer a.Close()

	assert.Len(t, a.Providers, 2)
	assert.Equal(t, "finnhub", a.Providers[0].Name(), "priority order is preserved")
	assert.Equal(t, "polygon", a.Providers[1].Name())
	assert.NotNil(t, a.Fetcher)
	assert.NotNil(t, a.Volume)
	assert.NotNil(t, a.Extended)
	assert.NotNil(t, a.Orchestrator)
	assert.Equal(t, []string{"AAPL", "MSFT"}, a.Config.Watchlist)
}

func TestNewAppFailsWithoutProviders(t *testing.T) {
	path := writeConfig(t, `watchlist = ["AAPL"]`)

	_, err := NewApp(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no data providers configured")
}

func TestBuildProvidersSkipsUnkeyed(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Providers.TwelveData.APIKey = "td-key"

	providers := buildProviders(cfg, ratelimit.NewLimiter(), common.NewSilentLogger())

	require.Len(t, providers, 1)
	assert.Equal(t, "twelve_data", providers[0].Name())
}
