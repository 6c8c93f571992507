package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mobtrack/backend/internal/jobs"
	"github.com/mobtrack/backend/internal/notifications"
	"github.com/mobtrack/backend/internal/observability"
	"github.com/mobtrack/backend/internal/queue"
)

type Config struct {
	PollInterval  time.Duration
	WorkerID      string
	Concurrency   int
	ShutdownGrace time.Duration
}

type Worker struct {
	cfg      Config
	queue    *queue.Queue
	notifier notifications.Notifier
	prom     *observability.Prom
	log      *slog.Logger
}

func New(cfg Config, q *queue.Queue, notifier notifications.Notifier, prom *observability.Prom, log *slog.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}

	return &Worker{
		cfg:      cfg,
		queue:    q,
		notifier: notifier,
		prom:     prom,
		log:      log,
	}
}

// Run blocks until ctx is cancelled, then waits out in-flight jobs up to the
// shutdown grace period.
func (w *Worker) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	sem := make(chan struct{}, w.cfg.Concurrency)

	// a side loop promotes delayed retries onto the ready list
	promoteDone := make(chan struct{})

	go func() {
		defer close(promoteDone)

		ticker := time.NewTicker(w.cfg.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, err := w.queue.PromoteDue(ctx)

				if err != nil && ctx.Err() == nil {
					w.log.Error("promote delayed jobs failed", "err", err)
				}
			}
		}
	}()

	for ctx.Err() == nil {
		j, err := w.queue.Dequeue(ctx, 2*time.Second)

		if err != nil {
			if err == queue.ErrNoJob || ctx.Err() != nil {
				continue
			}

			w.log.Error("dequeue failed", "err", err)
			// back off a little so a broken redis doesn't spin the loop
			select {
			case <-time.After(w.cfg.PollInterval):
			case <-ctx.Done():
			}
			continue
		}

		sem <- struct{}{}
		wg.Add(1)

		go func(j jobs.Job) {
			defer wg.Done()
			defer func() { <-sem }()

			w.process(ctx, j)
		}(j)
	}

	w.log.Info("worker received shutdown signal", "worker_id", w.cfg.WorkerID)

	done := make(chan struct{})

	go func() {
		wg.Wait()
		<-promoteDone
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(w.cfg.ShutdownGrace):
		w.log.Error("shutdown grace period expired with jobs in flight")
		return context.DeadlineExceeded
	}
}
