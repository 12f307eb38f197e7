package cron

import (
	"context"
	"log"
	"time"

	"github.com/qs3c/ai_analysis_server/internal/pkg/queue"
	"github.com/qs3c/ai_analysis_server/internal/repository"
)

// Service 后台定时任务：卡死任务回收 + 归档表清理。
type Service struct {
	store         *repository.JobStore
	queue         *queue.Queue
	history       *repository.HistoryRepository // 可为 nil
	staleAfter    time.Duration
	retentionDays int
	stopChan      chan struct{}
}

func NewService(
	store *repository.JobStore,
	q *queue.Queue,
	history *repository.HistoryRepository,
	staleAfter time.Duration,
	retentionDays int,
) *Service {
	return &Service{
		store:         store,
		queue:         q,
		history:       history,
		staleAfter:    staleAfter,
		retentionDays: retentionDays,
		stopChan:      make(chan struct{}),
	}
}

// Start 启动定时任务
func (s *Service) Start() {
	go s.runStaleRecovery()
	go s.runHistoryPrune()
	log.Println("Cron service started (stale recovery + history prune)")
}

// Stop 停止定时任务
func (s *Service) Stop() {
	close(s.stopChan)
	log.Println("Cron service stopped")
}

// runStaleRecovery 每 5 分钟扫描一次卡在 processing 的任务
func (s *Service) runStaleRecovery() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.recoverStaleJobs()
		}
	}
}

// recoverStaleJobs 把长时间停留在 processing 的任务重新入队。
// worker 崩溃或存储写入失败都会留下这种任务；重复投递由
// worker 侧的终态跳过保证无害。
func (s *Service) recoverStaleJobs() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	jobIDs, err := s.store.ListStaleProcessing(ctx, s.staleAfter)
	if err != nil {
		log.Printf("Stale recovery: failed to scan jobs: %v", err)
		return
	}
	if len(jobIDs) == 0 {
		return
	}

	requeued := 0
	for _, jobID := range jobIDs {
		if err := s.queue.Push(ctx, jobID); err != nil {
			log.Printf("Stale recovery: failed to requeue job %s: %v", jobID, err)
			continue
		}
		requeued++
	}
	log.Printf("Stale recovery: requeued %d/%d jobs", requeued, len(jobIDs))
}

// runHistoryPrune 每天清理一次过期归档
func (s *Service) runHistoryPrune() {
	if s.history == nil || s.retentionDays <= 0 {
		return
	}

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.pruneHistory()
		}
	}
}

func (s *Service) pruneHistory() {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
	deleted, err := s.history.DeleteOlderThan(cutoff)
	if err != nil {
		log.Printf("History prune: failed: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("History prune: removed %d records older than %s", deleted, cutoff.Format("2006-01-02"))
	}
}

// RunRecoveryNow 立即执行一次卡死任务回收（用于测试或手动触发）
func (s *Service) RunRecoveryNow() {
	s.recoverStaleJobs()
}
