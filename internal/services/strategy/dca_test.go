package strategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"dcapilot/internal/domain"
)

func dcaConfig(amount int64) domain.ScheduleConfig {
	return domain.ScheduleConfig{
		Pair:             domain.Pair{From: "BTC", To: "USDT"},
		InvestmentAmount: decimal.NewFromInt(amount),
		Frequency:        domain.FrequencyDaily,
		ExecutionHour:    9,
	}
}

func TestBuildTrade_QuantityAndFee(t *testing.T) {
	dca := NewDCA()
	quote := domain.PriceQuote{Price: decimal.NewFromInt(40000), AsOf: time.Now()}
	at := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	trade, err := dca.BuildTrade("s1", dcaConfig(50), quote, at)
	require.NoError(t, err)

	require.Equal(t, "BTCUSDT", trade.Symbol)
	require.Equal(t, domain.SideBuy, trade.Side)
	require.True(t, trade.Quantity.Equal(decimal.NewFromFloat(0.00125)), "got %s", trade.Quantity)
	require.True(t, trade.Value.Equal(decimal.NewFromInt(50)))
	require.True(t, trade.Fee.Equal(decimal.NewFromFloat(0.05)), "got %s", trade.Fee)
	require.True(t, trade.Cost().Equal(decimal.NewFromFloat(50.05)), "got %s", trade.Cost())
	require.Equal(t, at, trade.Timestamp)
}

func TestBuildTrade_RejectsNonPositivePrice(t *testing.T) {
	dca := NewDCA()

	_, err := dca.BuildTrade("s1", dcaConfig(50), domain.PriceQuote{Price: decimal.Zero}, time.Now())
	require.ErrorIs(t, err, domain.ErrNoPrice)

	_, err = dca.BuildTrade("s1", dcaConfig(50), domain.PriceQuote{Price: decimal.NewFromInt(-10)}, time.Now())
	require.ErrorIs(t, err, domain.ErrNoPrice)
}

func TestNextExecution_DelegatesToSchedule(t *testing.T) {
	dca := NewDCA()
	cfg := dcaConfig(100)

	from := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	require.Equal(t, cfg.NextExecutionTime(from), dca.NextExecution(cfg, from))
}

func TestDueOn_DelegatesToSchedule(t *testing.T) {
	dca := NewDCA()
	cfg := dcaConfig(100)
	cfg.Frequency = domain.FrequencyWeekly
	monday := time.Monday
	cfg.DayOfWeek = &monday

	require.True(t, dca.DueOn(cfg, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.False(t, dca.DueOn(cfg, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
}
