package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/airylvat/trivia-league/bot"
	"github.com/airylvat/trivia-league/config"
	"github.com/airylvat/trivia-league/db"
	"github.com/airylvat/trivia-league/leaderboard"
	"github.com/airylvat/trivia-league/logging"
	"github.com/airylvat/trivia-league/metrics"
	"github.com/airylvat/trivia-league/payout"
	"github.com/airylvat/trivia-league/questions"
	"github.com/airylvat/trivia-league/trivia"
	"golang.org/x/sync/errgroup"
)

func main() {
	settings, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.NewLogger(logging.LogLevel(settings.LogLevel), os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, settings, logger); err != nil {
		logger.Error("bot stopped", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("bot shut down cleanly")
}

func run(ctx context.Context, settings *config.Settings, logger *logging.Logger) error {
	store, err := db.Open(ctx, settings.DatabaseURL, settings.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	var sources []questions.Source
	local, err := questions.LoadLocal(settings.QuestionsPath, nil)
	switch {
	case err == nil:
		logger.Info("loaded local question pool", "path", settings.QuestionsPath, "questions", local.Len())
		sources = append(sources, local)
	case errors.Is(err, questions.ErrNoPool):
		logger.Info("no local question pool, using OpenTDB only", "path", settings.QuestionsPath)
	default:
		logger.Warn("ignoring local question pool", "path", settings.QuestionsPath, "error", err.Error())
	}
	sources = append(sources, questions.NewOpenTDB(settings.OpenTDBURL, settings.OpenTDBCategory, nil))

	session, err := bot.NewSession(settings.DiscordToken)
	if err != nil {
		return err
	}
	out := bot.NewMessenger(session)
	alerter := bot.NewAdminAlerter(out, settings.AdminIDs, logger)

	engine := trivia.NewEngine(
		questions.NewFallback(logger, sources...),
		store,
		bot.NewBroadcaster(out, logger),
		settings.AnswerWindow(),
		trivia.WithAlerter(alerter),
		trivia.WithLogger(logger),
	)

	exporter := leaderboard.NewExporter(store, leaderboard.FileSink{Dir: settings.ExportDir}, logger)
	weekly, err := leaderboard.NewWeekly(settings.WeeklyExportSpec(), exporter, alerter, logger)
	if err != nil {
		return err
	}

	b := bot.NewBot(bot.Deps{
		Settings: settings,
		Session:  session,
		Out:      out,
		Rounds:   engine,
		Store:    store,
		Board:    exporter,
		Exports:  weekly,
		Payouts:  payout.NewEstimator(store, payout.NewTransferer(settings.PayoutsDryRun), logger),
		Logger:   logger,
	})

	server := metrics.SetupServer(settings.MetricsAddr, store.Ping)
	logger.Info("metrics server configured", "addr", settings.MetricsAddr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error { return weekly.Run(gctx) })
	g.Go(func() error { return b.Run(gctx) })
	err = g.Wait()

	if n := engine.AbortAll(); n > 0 {
		logger.Info("aborted running rounds on shutdown", "rounds", n)
	}
	return err
}
