package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mobtrack/backend/internal/config"
	"github.com/mobtrack/backend/internal/notifications"
	"github.com/mobtrack/backend/internal/observability"
	"github.com/mobtrack/backend/internal/queue"
	"github.com/mobtrack/backend/internal/queue/redisclient"
	"github.com/mobtrack/backend/internal/queue/worker"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	redisCli := redisclient.New(redisclient.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisCli.Close()

	if err := redisCli.Ping(ctx); err != nil {
		log.Error("redis connect failed", "err", err)
		os.Exit(1)
	}

	q := queue.New(redisCli.Raw())

	// mail goes over SMTP when configured, otherwise to the log
	var base notifications.Notifier
	if cfg.SMTPHost != "" {
		base = notifications.NewSMTPNotifier(notifications.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	} else {
		base = notifications.NewLogNotifier()
	}

	notifier := notifications.NewProtectedNotifier(base, notifications.ProtectedNotifierConfig{
		Timeout:          5 * time.Second,
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		HalfOpenMaxCalls: 2,
	})

	registry := prometheus.NewRegistry()
	prom := observability.NewProm(registry)

	host, _ := os.Hostname()
	workerID := host + "-" + strconv.Itoa(os.Getpid())

	w := worker.New(worker.Config{
		PollInterval:  100 * time.Millisecond,
		WorkerID:      workerID,
		Concurrency:   4,
		ShutdownGrace: 10 * time.Second,
	}, q, notifier, prom, log)

	log.Info("worker starting", "worker_id", workerID)

	if err := w.Run(ctx); err != nil {
		log.Error("worker stopped with error", "err", err)
	}

	log.Info("worker shutdown complete")
}
