package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/qs3c/ai_analysis_server/internal/model"
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrResultNotFound = errors.New("result not found")
	ErrTerminalState  = errors.New("job already in terminal state")
)

const (
	jobKeyPrefix    = "job:"
	resultKeyPrefix = "result:"
)

// JobStore 任务存储。job:{id} 与 result:{id} 均为 JSON 字符串，
// 统一 TTL，到期后按不存在处理。
type JobStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewJobStore(client *redis.Client, ttl time.Duration) *JobStore {
	return &JobStore{
		client: client,
		ttl:    ttl,
	}
}

func jobKey(jobID string) string {
	return jobKeyPrefix + jobID
}

func resultKey(jobID string) string {
	return resultKeyPrefix + jobID
}

// Create 写入新任务
func (s *JobStore) Create(ctx context.Context, job *model.AnalysisJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return s.client.Set(ctx, jobKey(job.JobID), data, s.ttl).Err()
}

// Get 按 job_id 读取任务
func (s *JobStore) Get(ctx context.Context, jobID string) (*model.AnalysisJob, error) {
	data, err := s.client.Get(ctx, jobKey(jobID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	var job model.AnalysisJob
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// UpdateStatus 状态迁移。WATCH 乐观锁防止并发更新交错，
// 状态机只进不退，终态拒绝一切迁移。
func (s *JobStore) UpdateStatus(ctx context.Context, jobID string, status model.JobStatus, errMsg string) (*model.AnalysisJob, error) {
	key := jobKey(jobID)
	var updated *model.AnalysisJob

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Result()
		if err != nil {
			if err == redis.Nil {
				return ErrJobNotFound
			}
			return err
		}

		var job model.AnalysisJob
		if err := json.Unmarshal([]byte(data), &job); err != nil {
			return fmt.Errorf("failed to unmarshal job: %w", err)
		}

		if !job.Status.CanTransitionTo(status) {
			if job.Status.Terminal() {
				return ErrTerminalState
			}
			return fmt.Errorf("invalid status transition %s -> %s", job.Status, status)
		}

		now := time.Now().UTC()
		job.Status = status
		switch {
		case status == model.StatusProcessing:
			if job.StartedAt == nil {
				job.StartedAt = &now
			}
		case status.Terminal():
			job.CompletedAt = &now
			job.ErrorMessage = errMsg
		}

		payload, err := json.Marshal(&job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		})
		if err == nil {
			updated = &job
		}
		return err
	}

	// WATCH 冲突时重试几次
	for i := 0; i < 5; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if err == redis.TxFailedErr {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("failed to update job %s: too many transaction conflicts", jobID)
}

// StoreResult 写入终态结果
func (s *JobStore) StoreResult(ctx context.Context, jobID string, result *model.AnalysisResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	return s.client.Set(ctx, resultKey(jobID), data, s.ttl).Err()
}

// GetResult 按 job_id 读取结果
func (s *JobStore) GetResult(ctx context.Context, jobID string) (*model.AnalysisResult, error) {
	data, err := s.client.Get(ctx, resultKey(jobID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("failed to get result: %w", err)
	}

	var result model.AnalysisResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &result, nil
}

// ListStaleProcessing 扫描卡在 processing 超过 staleAfter 的任务，供回收任务重新入队
func (s *JobStore) ListStaleProcessing(ctx context.Context, staleAfter time.Duration) ([]string, error) {
	cutoff := time.Now().UTC().Add(-staleAfter)
	var stale []string

	iter := s.client.Scan(ctx, 0, jobKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Result()
		if err != nil {
			continue // 扫描与过期之间存在竞争，跳过即可
		}

		var job model.AnalysisJob
		if err := json.Unmarshal([]byte(data), &job); err != nil {
			continue
		}

		if job.Status != model.StatusProcessing || job.StartedAt == nil {
			continue
		}
		if job.StartedAt.Before(cutoff) {
			stale = append(stale, job.JobID)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan jobs: %w", err)
	}
	return stale, nil
}
