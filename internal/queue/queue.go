package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/mobtrack/backend/internal/jobs"
	"github.com/redis/go-redis/v9"
)

const (
	readyKey   = "mobtrack:jobs:ready"
	delayedKey = "mobtrack:jobs:delayed"
)

var ErrNoJob = errors.New("no job available")

// Queue is a redis list of ready jobs plus a sorted set of delayed ones
// (score = unix run-at). Retries go through the delayed set.
type Queue struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

func (q *Queue) Enqueue(ctx context.Context, j jobs.Job) error {
	b, err := json.Marshal(j)

	if err != nil {
		return err
	}

	if j.RunAt.After(time.Now().UTC()) {
		return q.rdb.ZAdd(ctx, delayedKey, redis.Z{
			Score:  float64(j.RunAt.Unix()),
			Member: b,
		}).Err()
	}

	return q.rdb.LPush(ctx, readyKey, b).Err()
}

// PromoteDue moves every delayed job whose run-at has passed onto the ready
// list. Called periodically by the worker.
func (q *Queue) PromoteDue(ctx context.Context) (int, error) {
	now := time.Now().UTC().Unix()

	members, err := q.rdb.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now, 10),
	}).Result()

	if err != nil {
		return 0, err
	}

	moved := 0

	for _, m := range members {
		// remove first so two workers cannot both promote the same member
		removed, err := q.rdb.ZRem(ctx, delayedKey, m).Result()

		if err != nil {
			return moved, err
		}

		if removed == 0 {
			continue
		}

		if err := q.rdb.LPush(ctx, readyKey, m).Err(); err != nil {
			return moved, err
		}
		moved++
	}

	return moved, nil
}

// Dequeue blocks up to timeout for the next ready job.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (jobs.Job, error) {
	res, err := q.rdb.BRPop(ctx, timeout, readyKey).Result()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return jobs.Job{}, ErrNoJob
		}
		return jobs.Job{}, err
	}

	// BRPop returns [key, value]
	if len(res) != 2 {
		return jobs.Job{}, ErrNoJob
	}

	var j jobs.Job

	if err := json.Unmarshal([]byte(res[1]), &j); err != nil {
		return jobs.Job{}, err
	}

	return j, nil
}

func (q *Queue) Depth(ctx context.Context) (ready int64, delayed int64, err error) {
	ready, err = q.rdb.LLen(ctx, readyKey).Result()

	if err != nil {
		return
	}

	delayed, err = q.rdb.ZCard(ctx, delayedKey).Result()
	return
}
