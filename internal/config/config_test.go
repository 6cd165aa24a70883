package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("NIGHTSHIFT_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.DailyAPIBudget)
	assert.Equal(t, 0.2, cfg.APIBudgetReservePct)
	assert.Equal(t, 100, cfg.PriceBatchSize)
	assert.Equal(t, 5, cfg.WorkerCount)
	assert.Equal(t, 100, cfg.MinimumHistoryDays)
	assert.Equal(t, "21:00", cfg.MarketCloseUTC)
	require.Len(t, cfg.Providers, 3)
	assert.Equal(t, "yahoo", cfg.Providers[0].Name)
	assert.Equal(t, 1, cfg.Providers[0].Priority)
	assert.Equal(t, 0, cfg.Providers[0].RatePerDay)
	assert.Contains(t, cfg.Providers[0].Capabilities, "quote_batch")
	assert.Equal(t, "alphavantage", cfg.Providers[2].Name)
	assert.Equal(t, 500, cfg.Providers[2].RatePerDay)
}

func TestLoad_ProviderOverride(t *testing.T) {
	t.Setenv("NIGHTSHIFT_DATA_DIR", t.TempDir())
	t.Setenv("NIGHTSHIFT_PROVIDERS", "custom,1,7,42,quote_batch+fundamentals")
	t.Setenv("CUSTOM_API_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	require.Len(t, cfg.Providers, 1)
	p := cfg.Providers[0]
	assert.Equal(t, "custom", p.Name)
	assert.Equal(t, 7, p.RatePerMinute)
	assert.Equal(t, 42, p.RatePerDay)
	assert.Equal(t, []string{"quote_batch", "fundamentals"}, p.Capabilities)
	assert.Equal(t, "secret", p.APIKey)
}

func TestValidate_Rejects(t *testing.T) {
	t.Setenv("NIGHTSHIFT_DATA_DIR", t.TempDir())

	t.Run("bad reserve pct", func(t *testing.T) {
		t.Setenv("API_BUDGET_RESERVE_PCT", "1.5")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("bad batch size", func(t *testing.T) {
		t.Setenv("PRICE_BATCH_SIZE", "500")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("bad market close", func(t *testing.T) {
		t.Setenv("MARKET_CLOSE_UTC", "25:99")
		_, err := Load()
		assert.Error(t, err)
	})
}
