package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Queue 任务队列。队列里只放 job_id，任务体在 JobStore。
type Queue struct {
	client    *redis.Client
	queueName string
}

func NewQueue(client *redis.Client, queueName string) *Queue {
	return &Queue{
		client:    client,
		queueName: queueName,
	}
}

// Push 将 job_id 加入队列
func (q *Queue) Push(ctx context.Context, jobID string) error {
	return q.client.LPush(ctx, q.queueName, jobID).Err()
}

// Pop 从队列获取 job_id（阻塞）。超时无任务返回空串。
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	result, err := q.client.BRPop(ctx, timeout, q.queueName).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil // 超时，无任务
		}
		return "", fmt.Errorf("failed to pop from queue: %w", err)
	}

	if len(result) < 2 {
		return "", nil
	}

	return result[1], nil
}

// Length 获取队列长度
func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.queueName).Result()
}

// Ping 连通性检查，给 /health 用
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}
