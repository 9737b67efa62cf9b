package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"dcapilot/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
platform: bybit
db_path: /tmp/test.db
journal_dir: /tmp/wal
poll_interval: 30s

bots:
  - pair: BTC_USDT
    amount: "50"
    frequency: weekly
    day_of_week: Monday
    execution_time: "09:30"
    max_total_investment: "5000"
    start_date: "2024-01-01"
    end_date: "2024-12-31"
    auto_start: true
  - pair: ETH_USDT
    amount: "25.5"
    frequency: monthly
    day_of_month: 31
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "bybit", cfg.Platform)
	require.Equal(t, "/tmp/test.db", cfg.DBPath)
	require.Equal(t, "/tmp/wal", cfg.JournalDir)
	require.Equal(t, 30*time.Second, cfg.PollInterval)
	require.Len(t, cfg.Bots, 2)

	weekly := cfg.Bots[0]
	require.Equal(t, domain.Pair{From: "BTC", To: "USDT"}, weekly.Pair)
	require.True(t, weekly.InvestmentAmount.Equal(decimal.NewFromInt(50)))
	require.Equal(t, domain.FrequencyWeekly, weekly.Frequency)
	require.NotNil(t, weekly.DayOfWeek)
	require.Equal(t, time.Monday, *weekly.DayOfWeek)
	require.Equal(t, 9, weekly.ExecutionHour)
	require.Equal(t, 30, weekly.ExecutionMinute)
	require.True(t, weekly.MaxTotalInvestment.Equal(decimal.NewFromInt(5000)))
	require.NotNil(t, weekly.StartDate)
	require.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *weekly.StartDate)
	require.True(t, weekly.AutoStart)

	monthly := cfg.Bots[1]
	require.Equal(t, domain.FrequencyMonthly, monthly.Frequency)
	require.Equal(t, 31, monthly.DayOfMonth)
	require.True(t, monthly.InvestmentAmount.Equal(decimal.NewFromFloat(25.5)))
	require.False(t, monthly.AutoStart)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
bots:
  - pair: BTC_USDT
    amount: "100"
    frequency: daily
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, DefaultPlatform, cfg.Platform)
	require.Equal(t, DefaultDBPath, cfg.DBPath)
	require.Equal(t, DefaultJournalDir, cfg.JournalDir)
	require.Equal(t, DefaultPollInterval, cfg.PollInterval)
}

func TestLoad_RejectsWeeklyWithoutDay(t *testing.T) {
	path := writeConfig(t, `
bots:
  - pair: BTC_USDT
    amount: "100"
    frequency: weekly
`)

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "day_of_week")
}

func TestLoad_RejectsUnknownPlatform(t *testing.T) {
	path := writeConfig(t, `
platform: kraken
bots:
  - pair: BTC_USDT
    amount: "100"
    frequency: daily
`)

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown platform")
}

func TestLoad_RejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"no bots": `platform: binance`,
		"bad pair": `
bots:
  - pair: BTCUSDT
    amount: "100"
    frequency: daily
`,
		"bad amount": `
bots:
  - pair: BTC_USDT
    amount: lots
    frequency: daily
`,
		"bad weekday": `
bots:
  - pair: BTC_USDT
    amount: "100"
    frequency: weekly
    day_of_week: someday
`,
		"bad time": `
bots:
  - pair: BTC_USDT
    amount: "100"
    frequency: daily
    execution_time: "25:99"
`,
		"bad date": `
bots:
  - pair: BTC_USDT
    amount: "100"
    frequency: daily
    start_date: "01/02/2024"
`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			require.Error(t, err)
		})
	}
}

func TestLoad_StaticPlatformRequiresPrice(t *testing.T) {
	path := writeConfig(t, `
platform: static
bots:
  - pair: BTC_USDT
    amount: "100"
    frequency: daily
`)

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "static_price")
}

func TestExample_RoundTrips(t *testing.T) {
	cfg, err := Load(writeConfig(t, Example()))
	require.NoError(t, err)
	require.Len(t, cfg.Bots, 1)
	require.Equal(t, domain.FrequencyWeekly, cfg.Bots[0].Frequency)
}
