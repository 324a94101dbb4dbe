package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cinema-ticketing/internal/app"
	"github.com/iliyamo/cinema-ticketing/internal/artifact"
	"github.com/iliyamo/cinema-ticketing/internal/config"
	"github.com/iliyamo/cinema-ticketing/internal/database"
	"github.com/iliyamo/cinema-ticketing/internal/handler"
	"github.com/iliyamo/cinema-ticketing/internal/middleware"
	"github.com/iliyamo/cinema-ticketing/internal/queue"
	"github.com/iliyamo/cinema-ticketing/internal/router"
	"github.com/iliyamo/cinema-ticketing/internal/tasks"
)

func main() {
	cfg := config.Load()
	config.ConfigureLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logrus.Fatal(err)
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logrus.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()
	if cfg.MigrateOnStart {
		if err := database.Migrate(context.Background(), db); err != nil {
			logrus.WithError(err).Fatal("migration failed")
		}
	}

	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
	}

	core, err := app.Build(cfg, db, rdb)
	if err != nil {
		logrus.WithError(err).Fatal("wiring failed")
	}

	// Ticket rendering goes to the worker when asynq is configured and
	// reachable, otherwise it runs inline after confirmation.
	if rdb != nil && cfg.AsynqRedisAddr != "" {
		client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.AsynqRedisAddr, Password: config.RedisOptions().Password})
		defer client.Close()
		core.Workflow.AddHook(tasks.Dispatcher{Client: client})
	} else {
		core.Workflow.AddHook(artifact.Hook{Renderer: core.Renderer, Store: core.Workflow})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.RabbitURL != "" {
		core.Workflow.AddHook(queue.Publisher{URL: cfg.RabbitURL})
		go func() {
			if err := (queue.BookingLedger{URL: cfg.RabbitURL}).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logrus.WithError(err).Error("booking ledger consumer stopped")
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handler.ErrorHandler(cfg.Production())
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger())

	guards := router.Guards{JWTSecret: cfg.JWTSecret}
	var ticketCache echo.MiddlewareFunc
	if rdb != nil {
		guards.RateLimit = middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
		ticketCache = middleware.NewRedisCache(config.LoadCacheConfig(), rdb)
	}

	router.RegisterRoutes(e, handler.Ready(db))
	router.RegisterTickets(e, cfg.Artifact.BaseURL, cfg.Artifact.Dir, ticketCache)
	router.RegisterCustomer(e, handler.NewCustomerHandler(core.Ledger, core.Reservations, core.Workflow), guards)
	router.RegisterAdmin(e, handler.NewAdminHandler(core.Workflow), guards)

	go func() {
		addr := ":" + cfg.Port
		logrus.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdown); err != nil {
		logrus.WithError(err).Error("shutdown")
	}
}
