// Command dcapilot runs scheduled dollar-cost-averaging purchase bots.
// It polls configured schedules against live exchange prices (Binance,
// Bybit) and can replay a schedule against historical prices in backtest
// mode.
//
// Usage:
//
//	dcapilot --config config.yaml
//	dcapilot --config config.yaml --backtest --from 2024-01-01 --to 2024-01-31
//	dcapilot --setup
//
// Required environment variables:
//
//	For Binance: BINANCE_API_KEY, BINANCE_API_SECRET
//	For Bybit: BYBIT_API_KEY, BYBIT_API_SECRET
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adshao/go-binance/v2"
	bybit "github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"dcapilot/config"
	"dcapilot/internal/domain"
	"dcapilot/internal/services/backtest"
	"dcapilot/internal/services/engine"
	"dcapilot/internal/services/poller"
	"dcapilot/internal/services/pricer"
	"dcapilot/internal/services/strategy"
	"dcapilot/internal/setup"
	"dcapilot/internal/storage"
	"dcapilot/internal/storage/journal"
	"dcapilot/internal/storage/memory"
	"dcapilot/internal/storage/sqlite"
)

func main() {
	var (
		configPath  = flag.String("config", "config.yaml", "path to yaml config")
		runSetup    = flag.Bool("setup", false, "launch the interactive setup wizard")
		runBacktest = flag.Bool("backtest", false, "replay the configured schedules against historical prices")
		fromStr     = flag.String("from", "", "backtest start date, YYYY-MM-DD")
		toStr       = flag.String("to", "", "backtest end date, YYYY-MM-DD")
	)
	flag.Parse()

	if *runSetup {
		if err := setup.RunTUI(); err != nil {
			log.Fatal(err)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	source, err := priceSource(cfg)
	if err != nil {
		logger.Fatal("failed to create price source", zap.Error(err))
	}

	if *runBacktest {
		if err := runBacktests(cfg, source, *fromStr, *toStr, logger); err != nil {
			logger.Fatal("backtest failed", zap.Error(err))
		}
		return
	}

	if err := runLive(cfg, source, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("poller stopped", zap.Error(err))
	}
}

func priceSource(cfg config.Config) (pricer.PriceSource, error) {
	switch cfg.Platform {
	case "binance":
		apiKey := os.Getenv("BINANCE_API_KEY")
		apiSecret := os.Getenv("BINANCE_API_SECRET")
		return pricer.NewBinancePricer(binance.NewClient(apiKey, apiSecret)), nil
	case "bybit":
		apiKey := os.Getenv("BYBIT_API_KEY")
		apiSecret := os.Getenv("BYBIT_API_SECRET")
		return pricer.NewBybitPricer(bybit.NewClient().WithAuth(apiKey, apiSecret)), nil
	case "static":
		return pricer.NewStaticPricer(cfg.StaticPrice), nil
	default:
		return nil, errors.Errorf("unsupported platform %q", cfg.Platform)
	}
}

// runBacktests replays every configured schedule over the requested range
// on an in-memory store, so backtests never touch the live database.
func runBacktests(cfg config.Config, source pricer.PriceSource, fromStr, toStr string, logger *zap.Logger) error {
	from, err := time.Parse(time.DateOnly, fromStr)
	if err != nil {
		return errors.Errorf("invalid --from date %q, expected YYYY-MM-DD", fromStr)
	}
	to, err := time.Parse(time.DateOnly, toStr)
	if err != nil {
		return errors.Errorf("invalid --to date %q, expected YYYY-MM-DD", toStr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := memory.New()
	defer store.Close()

	strat := strategy.NewDCA()
	eng := engine.New(store, strat, nil, logger)
	runner := backtest.NewRunner(store, source, strat, eng, logger)

	for _, schedule := range cfg.Bots {
		result, err := runner.Run(ctx, schedule, from, to)
		if err != nil {
			return err
		}

		metric, err := store.GetMetric(ctx, result.SessionID)
		if err != nil {
			return err
		}
		fields := []zap.Field{
			zap.String("pair", schedule.Pair.String()),
			zap.Int("days_checked", result.DaysChecked),
			zap.Int("trades_executed", result.TradesExecuted),
		}
		if metric != nil {
			fields = append(fields,
				zap.String("total_invested", metric.TotalInvested.String()),
				zap.String("total_value", metric.TotalValue.String()),
				zap.String("roi_percent", metric.ROIPercent.String()))
		}
		logger.Info("backtest result", fields...)
	}
	return nil
}

func runLive(cfg config.Config, source pricer.PriceSource, logger *zap.Logger) error {
	store, err := sqlite.New(cfg.DBPath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	jrnl, err := journal.Open(cfg.JournalDir)
	if err != nil {
		return err
	}
	defer jrnl.Close()

	eng := engine.New(store, strategy.NewDCA(), jrnl, logger)
	eng.ReportPendingIntents()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := reconcileBots(ctx, store, cfg.Bots, logger); err != nil {
		return err
	}

	p := poller.New(store, source, eng, cfg.PollInterval, logger)
	return p.Run(ctx)
}

// reconcileBots matches configured schedules against persisted bots so a
// restart resumes existing bots instead of spawning duplicates. Bots are
// matched by pair and frequency; a schedule with no match is created new.
func reconcileBots(ctx context.Context, store storage.Store, schedules []domain.ScheduleConfig, logger *zap.Logger) error {
	existing, err := store.ListBots(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list persisted bots")
	}

	now := time.Now()
	for _, schedule := range schedules {
		if bot := findBot(existing, schedule); bot != nil {
			logger.Info("resuming persisted bot",
				zap.String("bot", bot.ID),
				zap.String("pair", schedule.Pair.String()),
				zap.String("status", string(bot.Status)))
			continue
		}

		bot, err := domain.NewBot(schedule, now)
		if err != nil {
			return err
		}
		if err := store.CreateBot(ctx, bot); err != nil {
			return err
		}
		logger.Info("created bot",
			zap.String("bot", bot.ID),
			zap.String("pair", schedule.Pair.String()),
			zap.String("frequency", string(schedule.Frequency)),
			zap.String("status", string(bot.Status)))
	}
	return nil
}

func findBot(bots []*domain.Bot, schedule domain.ScheduleConfig) *domain.Bot {
	for _, bot := range bots {
		if bot.Config.Pair == schedule.Pair && bot.Config.Frequency == schedule.Frequency {
			return bot
		}
	}
	return nil
}
