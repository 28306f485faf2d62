package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/config"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/database"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/handler"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/logger"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/metrics"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/middleware"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/queue"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/router"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/service"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/worker"
)

func main() {
	log := logger.New(logger.OptionsFromEnv())
	defer func() { _ = log.Sync() }()

	if err := run(log); err != nil {
		log.Error("server exited", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, database.Params{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
	})
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	if cfg.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
		log.Info("schema applied")
	}

	prizes, err := config.LoadPrizeTable(cfg.PrizeTableFile)
	if err != nil {
		return err
	}

	deps := service.NewDeps(db, log, cfg.TxTimeout)
	deps.BulkTxTimeout = cfg.BulkTxTimeout
	reservations := service.NewReservationService(deps)
	orders := service.NewOrderService(deps)
	inventory := service.NewInventoryService(deps)
	rounds := service.NewRoundService(deps)
	draws := service.NewDrawService(deps, prizes)

	var wg sync.WaitGroup
	worker.NewReaper(deps.Orders, orders, rounds, worker.ReaperConfig{
		Interval:     cfg.ReaperInterval,
		Batch:        cfg.ReaperBatch,
		Concurrency:  cfg.ReaperConcurrency,
		OrderTimeout: cfg.TxTimeout,
	}, log).Start(ctx, &wg)

	if cfg.MQEnabled {
		pub := queue.NewPublisher(cfg.RabbitURL, log)
		defer func() { _ = pub.Close() }()
		worker.NewOutboxDispatcher(deps.Outbox, pub, cfg.OutboxInterval, cfg.OutboxBatch, log).Start(ctx, &wg)

		confirm := queue.PaymentConfirmerFunc(func(ctx context.Context, orderID uint64, ref string) error {
			_, err := orders.ConfirmPayment(ctx, orderID, ref)
			return err
		})
		consumer := queue.NewPaymentConsumer(cfg.RabbitURL, confirm, service.Permanent, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("payment consumer stopped", zap.Error(err))
			}
		}()
	}

	rdb := config.NewRedisClient(ctx)
	if rdb == nil {
		log.Warn("redis unavailable, rate limiting and results cache disabled")
	} else {
		defer func() { _ = rdb.Close() }()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(metrics.HTTPMiddleware())
	e.Use(accessLog(log))

	router.Register(e, router.Handlers{
		Orders:  handler.NewOrderHandler(reservations, orders, cfg.HoldDuration, log),
		Tickets: handler.NewTicketHandler(inventory, log),
		Rounds:  handler.NewRoundHandler(rounds, draws, log),
		Health:  handler.Health(db),
	}, router.Options{
		JWTSecret:    cfg.JWTSecret,
		RateLimit:    middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log),
		ResultsCache: middleware.NewRedisCache(config.LoadCacheConfig(), rdb, log),
	})

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err = <-errCh:
	}
	stop()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if serr := e.Shutdown(shutdownCtx); serr != nil {
		log.Warn("http shutdown", zap.Error(serr))
	}
	wg.Wait()
	return err
}

// accessLog writes one zap line per request.
func accessLog(log *zap.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			log.Info("request", fields...)
			return nil
		},
	})
}
