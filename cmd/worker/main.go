/*
main.go - Mail queue worker

PURPOSE:
  Consumes the "royalty:send_mail" tasks the server enqueues when
  ROYALTY_REDIS_ADDR is set, and delivers them over SMTP. Failed deliveries
  are retried by asynq.

ENVIRONMENT:
  Same variables as the server; only ROYALTY_REDIS_ADDR (required),
  ROYALTY_SMTP_* and ROYALTY_LOG_LEVEL are read.
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/ritera/royalty-engine/config"
	"github.com/ritera/royalty-engine/logging"
	"github.com/ritera/royalty-engine/notify"
	"github.com/ritera/royalty-engine/royalty"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if cfg.RedisAddr == "" {
		log.Fatal("ROYALTY_REDIS_ADDR is required")
	}

	var gateway royalty.Notifier = notify.NewLog(log.Named("mail"))
	if cfg.SMTP.Enabled() {
		gateway = notify.NewSMTP(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)
	} else {
		log.Warn("ROYALTY_SMTP_HOST not set, mail is only logged")
	}

	mux := asynq.NewServeMux()
	notify.NewMailHandler(gateway, log.Named("mail")).Register(mux)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		asynq.Config{
			Queues:      map[string]int{notify.QueueMail: 10},
			Concurrency: 5,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				log.Warn("task failed",
					zap.String("type", task.Type()),
					zap.Int("retried", retried),
					zap.Int("max_retry", maxRetry),
					zap.Error(err),
				)
			}),
		},
	)

	if err := srv.Start(mux); err != nil {
		log.Fatal("worker failed to start", zap.Error(err))
	}
	log.Info("worker started", zap.String("redis", cfg.RedisAddr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("worker shutting down")
	srv.Shutdown()
	log.Info("worker stopped")
}
