// Command reaper expires overdue orders and closes ended rounds without
// running the HTTP server.  Use --once from cron, or run it as a
// long-lived sidecar.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/config"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/database"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/logger"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/service"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/worker"
)

func main() {
	flags := pflag.NewFlagSet("reaper", pflag.ContinueOnError)
	once := flags.Bool("once", false, "run a single sweep and exit")
	interval := flags.Duration("interval", 0, "time between sweeps (default REAPER_INTERVAL)")
	batch := flags.Int("batch", 0, "orders listed per query (default REAPER_BATCH)")
	concurrency := flags.Int("concurrency", 0, "orders expired in parallel (default REAPER_CONCURRENCY)")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := logger.New(logger.OptionsFromEnv())
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}
	rc := worker.ReaperConfig{
		Interval:     pick(*interval, cfg.ReaperInterval),
		Batch:        pick(*batch, cfg.ReaperBatch),
		Concurrency:  pick(*concurrency, cfg.ReaperConcurrency),
		OrderTimeout: cfg.TxTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, database.Params{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
	})
	if err != nil {
		log.Fatal("open database", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	deps := service.NewDeps(db, log, cfg.TxTimeout)
	reaper := worker.NewReaper(deps.Orders, service.NewOrderService(deps), service.NewRoundService(deps), rc, log)

	if *once {
		res := reaper.SweepOnce(ctx)
		log.Info("sweep finished",
			zap.Int("expired", res.Expired),
			zap.Int("failed", res.Failed),
			zap.Int64("rounds_closed", res.RoundsClosed))
		if res.Failed > 0 {
			_ = log.Sync()
			_ = db.Close()
			os.Exit(1)
		}
		return
	}

	var wg sync.WaitGroup
	reaper.Start(ctx, &wg)
	<-ctx.Done()
	wg.Wait()
}

func pick[T int | time.Duration](flag, def T) T {
	if flag > 0 {
		return flag
	}
	return def
}
