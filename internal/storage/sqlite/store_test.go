package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dcapilot/internal/domain"
	"dcapilot/internal/storage"
)

func openStore(t *testing.T, path string) *Store {
	t.Helper()

	store, err := New(path, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func tempStore(t *testing.T) *Store {
	t.Helper()
	return openStore(t, filepath.Join(t.TempDir(), "dcapilot.db"))
}

func weeklyBot(t *testing.T) *domain.Bot {
	t.Helper()

	monday := time.Monday
	bot, err := domain.NewBot(domain.ScheduleConfig{
		Pair:               domain.Pair{From: "BTC", To: "USDT"},
		InvestmentAmount:   decimal.NewFromInt(50),
		Frequency:          domain.FrequencyWeekly,
		DayOfWeek:          &monday,
		ExecutionHour:      9,
		ExecutionMinute:    30,
		MaxTotalInvestment: decimal.NewFromInt(500),
		AutoStart:          true,
	}, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return bot
}

func TestBotPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dcapilot.db")
	ctx := context.Background()

	bot := weeklyBot(t)
	store := openStore(t, path)
	require.NoError(t, store.CreateBot(ctx, bot))
	require.NoError(t, store.Close())

	reopened := openStore(t, path)
	got, err := reopened.GetBot(ctx, bot.ID)
	require.NoError(t, err)

	require.Equal(t, domain.BotActive, got.Status)
	require.Equal(t, bot.Config.Pair, got.Config.Pair)
	require.Equal(t, domain.FrequencyWeekly, got.Config.Frequency)
	require.NotNil(t, got.Config.DayOfWeek)
	require.Equal(t, time.Monday, *got.Config.DayOfWeek)
	require.True(t, got.Config.InvestmentAmount.Equal(decimal.NewFromInt(50)))
	require.Equal(t, 30, got.Config.ExecutionMinute)
	require.NotNil(t, got.NextExecutionTime)
	require.True(t, got.NextExecutionTime.Equal(*bot.NextExecutionTime))
	require.Nil(t, got.LastRun)
}

func TestGetBot_NotFound(t *testing.T) {
	store := tempStore(t)

	_, err := store.GetBot(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrBotNotFound)
}

func TestUpdateBot(t *testing.T) {
	store := tempStore(t)
	ctx := context.Background()

	bot := weeklyBot(t)
	require.NoError(t, store.CreateBot(ctx, bot))

	require.NoError(t, bot.Pause())
	require.NoError(t, store.UpdateBot(ctx, bot))
	require.Equal(t, int64(1), bot.Version)

	got, err := store.GetBot(ctx, bot.ID)
	require.NoError(t, err)
	require.Equal(t, domain.BotPaused, got.Status)
	require.Equal(t, int64(1), got.Version)

	require.ErrorIs(t, store.UpdateBot(ctx, weeklyBot(t)), domain.ErrBotNotFound)
}

func TestListDueBots(t *testing.T) {
	store := tempStore(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 8, 12, 0, 0, 0, time.UTC)

	due := weeklyBot(t)
	past := now.Add(-time.Hour)
	due.NextExecutionTime = &past
	require.NoError(t, store.CreateBot(ctx, due))

	notYet := weeklyBot(t)
	future := now.Add(time.Hour)
	notYet.NextExecutionTime = &future
	require.NoError(t, store.CreateBot(ctx, notYet))

	paused := weeklyBot(t)
	paused.NextExecutionTime = &past
	require.NoError(t, paused.Pause())
	require.NoError(t, store.CreateBot(ctx, paused))

	bots, err := store.ListDueBots(ctx, now)
	require.NoError(t, err)
	require.Len(t, bots, 1)
	require.Equal(t, due.ID, bots[0].ID)
}

func TestSessionRoundTrip(t *testing.T) {
	store := tempStore(t)
	ctx := context.Background()

	bot := weeklyBot(t)
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	session := domain.NewSession(bot.ID, domain.SessionLive, start, decimal.NewFromInt(500))
	require.NoError(t, store.CreateSession(ctx, session))

	got, err := store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SessionRunning, got.Status)
	require.True(t, got.StartTime.Equal(start))
	require.True(t, got.InitialBalance.Equal(decimal.NewFromInt(500)))
	require.Nil(t, got.EndTime)

	running, err := store.RunningSession(ctx, bot.ID, domain.SessionLive)
	require.NoError(t, err)
	require.Equal(t, session.ID, running.ID)

	session.Complete(start.AddDate(0, 1, 0), decimal.NewFromInt(480))
	require.NoError(t, store.UpdateSession(ctx, session))

	_, err = store.RunningSession(ctx, bot.ID, domain.SessionLive)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)

	got, err = store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SessionCompleted, got.Status)
	require.NotNil(t, got.EndTime)
	require.True(t, got.FinalBalance.Equal(decimal.NewFromInt(480)))
}

func TestApplyExecution(t *testing.T) {
	store := tempStore(t)
	ctx := context.Background()

	bot := weeklyBot(t)
	require.NoError(t, store.CreateBot(ctx, bot))
	session := domain.NewSession(bot.ID, domain.SessionLive, time.Now().UTC(), decimal.Zero)
	require.NoError(t, store.CreateSession(ctx, session))

	at := time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)
	trade, err := domain.NewTrade(session.ID, "BTCUSDT",
		decimal.NewFromInt(40000), decimal.NewFromFloat(0.00125),
		decimal.NewFromInt(50), decimal.NewFromFloat(0.05), at)
	require.NoError(t, err)
	metric := domain.ComputeMetric(session.ID, []domain.Trade{trade}, trade.Price)

	lastRun := at
	next := bot.Config.NextExecutionTime(at)
	bot.LastRun = &lastRun
	bot.NextExecutionTime = &next

	update := storage.ExecutionUpdate{
		Bot:             bot,
		Session:         session,
		Trade:           trade,
		Metric:          metric,
		ExpectedVersion: 0,
	}
	require.NoError(t, store.ApplyExecution(ctx, update))
	require.Equal(t, int64(1), bot.Version)

	trades, err := store.ListTrades(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.True(t, trades[0].Quantity.Equal(decimal.NewFromFloat(0.00125)))
	require.True(t, trades[0].Cost().Equal(decimal.NewFromFloat(50.05)))
	require.True(t, trades[0].Timestamp.Equal(at))

	got, err := store.GetBot(ctx, bot.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), got.Version)
	require.NotNil(t, got.LastRun)
	require.True(t, got.LastRun.Equal(at))

	stored, err := store.GetMetric(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stored.TotalTrades)
	require.True(t, stored.TotalInvested.Equal(decimal.NewFromFloat(50.05)))

	// a second writer still holding version 0 loses and commits nothing.
	update.ExpectedVersion = 0
	require.ErrorIs(t, store.ApplyExecution(ctx, update), domain.ErrConflict)

	trades, err = store.ListTrades(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	update.Bot = weeklyBot(t)
	require.ErrorIs(t, store.ApplyExecution(ctx, update), domain.ErrBotNotFound)
}

func TestGetMetric_NilWhenAbsent(t *testing.T) {
	store := tempStore(t)

	metric, err := store.GetMetric(context.Background(), "nothing")
	require.NoError(t, err)
	require.Nil(t, metric)
}
