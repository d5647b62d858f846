package queue

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrEmpty is returned by Pop when nothing arrived before the wait ran out.
var ErrEmpty = errors.New("queue: empty")

// JobQueue carries job ids from the API to the workers.
type JobQueue interface {
	Push(ctx context.Context, id string) error
	// Pop blocks up to wait for the next id.
	Pop(ctx context.Context, wait time.Duration) (string, error)
}

type redisQueue struct {
	rdb  *redis.Client
	name string
}

// NewRedisQueue is a FIFO list: LPUSH on one side, BRPOP on the other.
func NewRedisQueue(rdb *redis.Client, name string) JobQueue {
	return &redisQueue{rdb: rdb, name: name}
}

func (q *redisQueue) Push(ctx context.Context, id string) error {
	return q.rdb.LPush(ctx, q.name, id).Err()
}

func (q *redisQueue) Pop(ctx context.Context, wait time.Duration) (string, error) {
	res, err := q.rdb.BRPop(ctx, wait, q.name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrEmpty
		}
		return "", err
	}
	// res is [queueName, value]
	if len(res) < 2 || res[1] == "" {
		return "", ErrEmpty
	}
	return res[1], nil
}

type memoryQueue struct {
	ch chan string
}

// NewMemoryQueue serves a single process when Redis is disabled.
func NewMemoryQueue(size int) JobQueue {
	return &memoryQueue{ch: make(chan string, size)}
}

func (q *memoryQueue) Push(ctx context.Context, id string) error {
	select {
	case q.ch <- id:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *memoryQueue) Pop(ctx context.Context, wait time.Duration) (string, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case id := <-q.ch:
		return id, nil
	case <-timer.C:
		return "", ErrEmpty
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
