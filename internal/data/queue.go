package data

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"MedSol-RAG/internal/apperr"

	"github.com/redis/go-redis/v9"
)

// Task 队列中的一条摄取任务
type Task struct {
	Kind string `json:"kind"` // recording / document
	ID   string `json:"id"`
}

// TaskQueue 有界工作队列。超出容量时 Enqueue 立刻失败 (Busy)
type TaskQueue interface {
	Enqueue(ctx context.Context, task Task) error
	// Dequeue 阻塞等待，超时返回 (nil, false, nil)
	Dequeue(ctx context.Context, timeout time.Duration) (*Task, bool, error)
	Len(ctx context.Context) (int64, error)
}

// redisQueue Redis 列表实现 (LPush + BRPop)
type redisQueue struct {
	rdb   *redis.Client
	key   string
	bound int64
}

func NewRedisQueue(rdb *redis.Client, key string, bound int) TaskQueue {
	return &redisQueue{rdb: rdb, key: key, bound: int64(bound)}
}

func (q *redisQueue) Enqueue(ctx context.Context, task Task) error {
	if q.bound > 0 {
		n, err := q.rdb.LLen(ctx, q.key).Result()
		if err != nil {
			return err
		}
		if n >= q.bound {
			return apperr.Newf(apperr.Busy, "cola de ingesta llena (%d)", n)
		}
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.key, payload).Err()
}

func (q *redisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Task, bool, error) {
	result, err := q.rdb.BRPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var task Task
	if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
		return nil, false, err
	}
	return &task, true, nil
}

func (q *redisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}

// MemoryQueue 有界 channel 实现，测试和单机模式用
type MemoryQueue struct {
	ch chan Task
}

func NewMemoryQueue(bound int) *MemoryQueue {
	if bound <= 0 {
		bound = 64
	}
	return &MemoryQueue{ch: make(chan Task, bound)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, task Task) error {
	select {
	case q.ch <- task:
		return nil
	default:
		return apperr.New(apperr.Busy, "cola de ingesta llena")
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Task, bool, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case task := <-q.ch:
		return &task, true, nil
	case <-t.C:
		return nil, false, nil
	}
}

func (q *MemoryQueue) Len(_ context.Context) (int64, error) {
	return int64(len(q.ch)), nil
}
