package worker

import (
	"context"
	"time"

	"github.com/mobtrack/backend/internal/jobs"
	"github.com/mobtrack/backend/internal/notifications"
)

// process executes one claimed job. Failures are retried through the delayed
// queue with exponential backoff until MaxTries, then dropped with a log
// line; email delivery is best-effort and must never bubble an error back to
// the request that enqueued it.
func (w *Worker) process(ctx context.Context, j jobs.Job) {
	if w.prom != nil {
		w.prom.JobsInFlight.Inc()
		defer w.prom.JobsInFlight.Dec()
	}

	start := time.Now()
	result := "done"

	err := w.execute(ctx, j)

	if err != nil {
		result = "failed"

		if j.Attempts+1 < j.MaxTries {
			result = "retry"
			w.retry(ctx, j, err)
		} else {
			w.log.Error("job dead-lettered",
				"job_id", j.ID,
				"job_type", string(j.Type),
				"attempts", j.Attempts+1,
				"err", err,
			)
		}
	}

	if w.prom != nil {
		w.prom.JobResults.WithLabelValues(string(j.Type), result).Inc()
		w.prom.JobDuration.WithLabelValues(string(j.Type), result).Observe(time.Since(start).Seconds())
	}
}

func (w *Worker) execute(ctx context.Context, j jobs.Job) error {
	payload, err := jobs.DecodePayload(j)

	if err != nil {
		return err
	}

	if err := jobs.ValidatePayload(j.Type, payload); err != nil {
		return err
	}

	switch p := payload.(type) {
	case jobs.SendPasswordResetPayload:
		return w.notifier.SendPasswordReset(ctx, notifications.SendPasswordResetInput{
			Email:      p.Email,
			Name:       p.Name,
			ResetToken: p.ResetToken,
		})

	default:
		return jobs.ErrInvalidJobType
	}
}

func (w *Worker) retry(ctx context.Context, j jobs.Job, cause error) {
	j.Attempts++
	j.Status = jobs.JobPending
	msg := cause.Error()
	j.LastError = &msg
	j.RunAt = time.Now().UTC().Add(ExponentialBackoff(j.Attempts))
	j.UpdatedAt = time.Now().UTC()

	if err := w.queue.Enqueue(ctx, j); err != nil {
		w.log.Error("re-enqueue failed", "job_id", j.ID, "err", err)
	} else {
		w.log.Warn("job scheduled for retry",
			"job_id", j.ID,
			"job_type", string(j.Type),
			"attempt", j.Attempts,
			"run_at", j.RunAt,
		)
	}
}
