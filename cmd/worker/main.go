package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cinema-ticketing/internal/app"
	"github.com/iliyamo/cinema-ticketing/internal/config"
	"github.com/iliyamo/cinema-ticketing/internal/database"
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

	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
	}
	core, err := app.Build(cfg, db, rdb)
	if err != nil {
		logrus.WithError(err).Fatal("wiring failed")
	}

	redisOpt := asynq.RedisClientOpt{Addr: cfg.AsynqRedisAddr, Password: config.RedisOptions().Password}
	handlers := &tasks.Handlers{Settlement: core.Workflow, Renderer: core.Renderer, Holds: core.Reservations}

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Logger: logrus.StandardLogger()})
	if err := tasks.RegisterPeriodic(scheduler); err != nil {
		logrus.WithError(err).Fatal("register periodic tasks")
	}
	if err := scheduler.Start(); err != nil {
		logrus.WithError(err).Fatal("scheduler start")
	}
	defer scheduler.Shutdown()

	srv := asynq.NewServer(redisOpt, tasks.ServerConfig(config.WorkerConcurrency()))
	if err := srv.Start(handlers.Mux()); err != nil {
		logrus.WithError(err).Fatal("worker start")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logrus.WithField("redis", cfg.AsynqRedisAddr).Info("worker running")
	<-ctx.Done()
	srv.Shutdown()
}
