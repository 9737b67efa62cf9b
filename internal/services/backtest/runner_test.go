package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dcapilot/internal/domain"
	"dcapilot/internal/services/engine"
	"dcapilot/internal/services/pricer"
	"dcapilot/internal/services/strategy"
	"dcapilot/internal/storage"
	"dcapilot/internal/storage/memory"
)

func newRunner(source pricer.PriceSource) (*Runner, storage.Store) {
	store := memory.New()
	strat := strategy.NewDCA()
	eng := engine.New(store, strat, nil, zap.NewNop())
	return NewRunner(store, source, strat, eng, zap.NewNop()), store
}

func weeklyConfig(day time.Weekday, amount, maxTotal int64) domain.ScheduleConfig {
	cfg := domain.ScheduleConfig{
		Pair:             domain.Pair{From: "BTC", To: "USDT"},
		InvestmentAmount: decimal.NewFromInt(amount),
		Frequency:        domain.FrequencyWeekly,
		DayOfWeek:        &day,
		ExecutionHour:    9,
	}
	if maxTotal > 0 {
		cfg.MaxTotalInvestment = decimal.NewFromInt(maxTotal)
	}
	return cfg
}

func TestRun_WeeklyJanuary2024(t *testing.T) {
	// January 2024 has five Mondays: the 1st, 8th, 15th, 22nd and 29th.
	runner, store := newRunner(pricer.NewStaticPricer(decimal.NewFromInt(40000)))
	ctx := context.Background()

	result, err := runner.Run(ctx,
		weeklyConfig(time.Monday, 50, 0),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.Equal(t, 31, result.DaysChecked)
	require.Equal(t, 5, result.TradesExecuted)

	trades, err := store.ListTrades(ctx, result.SessionID)
	require.NoError(t, err)
	require.Len(t, trades, 5)
	for _, trade := range trades {
		require.True(t, trade.Quantity.Equal(decimal.NewFromFloat(0.00125)),
			"got %s", trade.Quantity)
	}

	metric, err := store.GetMetric(ctx, result.SessionID)
	require.NoError(t, err)
	require.True(t, metric.TotalInvested.Equal(decimal.NewFromFloat(250.25)),
		"got %s", metric.TotalInvested)

	session, err := store.GetSession(ctx, result.SessionID)
	require.NoError(t, err)
	require.Equal(t, domain.SessionCompleted, session.Status)
	require.NotNil(t, session.EndTime)
}

func TestRun_WeeklyAnchorInsideRange(t *testing.T) {
	runner, _ := newRunner(pricer.NewStaticPricer(decimal.NewFromInt(40000)))

	// Jan 1 2024 is a Monday, so Wednesday executions land on the 3rd
	// and the 10th within a ten day window.
	result, err := runner.Run(context.Background(),
		weeklyConfig(time.Wednesday, 50, 0),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.Equal(t, 10, result.DaysChecked)
	require.Equal(t, 2, result.TradesExecuted)
}

func TestRun_SkipsDaysWithoutPriceData(t *testing.T) {
	// only two of the five Mondays have data.
	table := map[string]decimal.Decimal{
		"2024-01-01": decimal.NewFromInt(40000),
		"2024-01-15": decimal.NewFromInt(42000),
	}
	runner, store := newRunner(pricer.NewStaticTable(table))
	ctx := context.Background()

	result, err := runner.Run(ctx,
		weeklyConfig(time.Monday, 50, 0),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.Equal(t, 31, result.DaysChecked)
	require.Equal(t, 2, result.TradesExecuted)

	trades, err := store.ListTrades(ctx, result.SessionID)
	require.NoError(t, err)
	require.Len(t, trades, 2)
}

func TestRun_HonorsScheduleEndDate(t *testing.T) {
	runner, _ := newRunner(pricer.NewStaticPricer(decimal.NewFromInt(40000)))

	cfg := weeklyConfig(time.Monday, 50, 0)
	end := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	cfg.EndDate = &end

	// Mondays past the schedule's end date stop producing trades even
	// though the replay range runs to the 31st.
	result, err := runner.Run(context.Background(), cfg,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.Equal(t, 31, result.DaysChecked)
	require.Equal(t, 3, result.TradesExecuted)
}

func TestRun_StopsEarlyOnBudgetExhaustion(t *testing.T) {
	runner, store := newRunner(pricer.NewStaticPricer(decimal.NewFromInt(40000)))
	ctx := context.Background()

	cfg := domain.ScheduleConfig{
		Pair:               domain.Pair{From: "BTC", To: "USDT"},
		InvestmentAmount:   decimal.NewFromInt(100),
		Frequency:          domain.FrequencyDaily,
		ExecutionHour:      9,
		MaxTotalInvestment: decimal.NewFromInt(250),
	}

	result, err := runner.Run(ctx, cfg,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	// the third daily purchase pushes totalInvested past the cap, so the
	// replay stops after three of the thirty-one days.
	require.Equal(t, 3, result.DaysChecked)
	require.Equal(t, 3, result.TradesExecuted)

	session, err := store.GetSession(ctx, result.SessionID)
	require.NoError(t, err)
	require.Equal(t, domain.SessionCompleted, session.Status)

	metric, err := store.GetMetric(ctx, result.SessionID)
	require.NoError(t, err)
	require.True(t, metric.TotalInvested.Equal(decimal.NewFromFloat(300.3)),
		"got %s", metric.TotalInvested)
}

func TestRun_CancellationStopsSession(t *testing.T) {
	runner, store := newRunner(pricer.NewStaticPricer(decimal.NewFromInt(40000)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := runner.Run(ctx,
		weeklyConfig(time.Monday, 50, 0),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, result.TradesExecuted)

	session, err := store.GetSession(context.Background(), result.SessionID)
	require.NoError(t, err)
	require.Equal(t, domain.SessionStopped, session.Status)
}

func TestRun_RejectsInvalidConfigAndRange(t *testing.T) {
	runner, _ := newRunner(pricer.NewStaticPricer(decimal.NewFromInt(40000)))
	ctx := context.Background()

	cfg := weeklyConfig(time.Monday, 50, 0)
	cfg.DayOfWeek = nil
	_, err := runner.Run(ctx, cfg,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)

	_, err = runner.Run(ctx, weeklyConfig(time.Monday, 50, 0),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
}

type unsupportedSource struct{}

func (unsupportedSource) Latest(_ context.Context, _ domain.Pair) (domain.PriceQuote, error) {
	return domain.PriceQuote{Price: decimal.NewFromInt(40000), AsOf: time.Now()}, nil
}

func (unsupportedSource) Historical(_ context.Context, _ domain.Pair, _ time.Time) (domain.PriceQuote, bool, error) {
	return domain.PriceQuote{}, false, pricer.ErrHistoricalUnsupported
}

func TestRun_AbortsWhenSourceLacksHistory(t *testing.T) {
	runner, _ := newRunner(unsupportedSource{})

	_, err := runner.Run(context.Background(),
		weeklyConfig(time.Monday, 50, 0),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, pricer.ErrHistoricalUnsupported)
}
