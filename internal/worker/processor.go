package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/qs3c/ai_analysis_server/internal/model"
	"github.com/qs3c/ai_analysis_server/internal/pkg/pubsub"
	"github.com/qs3c/ai_analysis_server/internal/repository"
)

// Processor 任务处理器。从队列拿到 job_id 后负责完整生命周期：
// 状态迁移、流水线执行、结果落库、进度推送、归档、webhook 回调。
type Processor struct {
	store     *repository.JobStore
	runner    *Runner
	publisher *pubsub.Publisher
	history   *repository.HistoryRepository // 可为 nil（未配置归档库）
	webhook   *WebhookSender
}

func NewProcessor(
	store *repository.JobStore,
	runner *Runner,
	publisher *pubsub.Publisher,
	history *repository.HistoryRepository,
	webhook *WebhookSender,
) *Processor {
	return &Processor{
		store:     store,
		runner:    runner,
		publisher: publisher,
		history:   history,
		webhook:   webhook,
	}
}

// Process 处理单个任务。任何失败都收敛为 FAILED 终态并写入结构化
// 错误结果，绝不把 panic/error 抛回主循环。
func (p *Processor) Process(ctx context.Context, jobID string) (err error) {
	job, err := p.store.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			// 任务体已过期，队列残留的 id，忽略
			log.Printf("Job %s: not found in store, skipping", jobID)
			return nil
		}
		return fmt.Errorf("failed to get job: %w", err)
	}

	// 队列可能重复投递，终态任务直接跳过
	if job.Status.Terminal() {
		log.Printf("Job %s: already %s, skipping", jobID, job.Status)
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing job %s: %v", jobID, r)
			p.fail(ctx, job, err.Error())
		}
	}()

	job, err = p.store.UpdateStatus(ctx, jobID, model.StatusProcessing, "")
	if err != nil {
		if errors.Is(err, repository.ErrTerminalState) {
			return nil
		}
		return fmt.Errorf("failed to mark job processing: %w", err)
	}

	log.Printf("Job %s: processing for record %s", jobID, job.RecordID)

	// 进度推送辅助函数
	publishProgress := func(step string, chunkIndex, chunkTotal int) {
		p.publisher.PublishProgress(ctx, &pubsub.ProgressMessage{
			JobID:      jobID,
			RecordID:   job.RecordID,
			Status:     "processing",
			Step:       step,
			ChunkIndex: chunkIndex,
			ChunkTotal: chunkTotal,
		})
	}

	result, runErr := p.runner.Run(ctx, jobID, &job.Request, publishProgress)
	if runErr != nil {
		p.fail(ctx, job, runErr.Error())
		return nil // 已收敛为终态，不向主循环传播
	}

	if err := p.store.StoreResult(ctx, jobID, result); err != nil {
		// 存储不可用：保持 processing 状态，等回收任务重新入队
		log.Printf("Job %s: failed to store result, leaving in processing for recovery: %v", jobID, err)
		return err
	}

	if _, err := p.store.UpdateStatus(ctx, jobID, model.StatusSuccess, ""); err != nil {
		log.Printf("Job %s: failed to mark success: %v", jobID, err)
	}

	p.publisher.PublishProgress(ctx, &pubsub.ProgressMessage{
		JobID:    jobID,
		RecordID: job.RecordID,
		Status:   "completed",
		Step:     pubsub.StepDone,
	})

	p.archive(job, result, model.StatusSuccess, "")
	p.deliverWebhook(ctx, job, result)

	log.Printf("Job %s: completed in %.2fs, %d chunks",
		jobID, result.ProcessingStats.ProcessingTimeSeconds, result.ProcessingStats.ChunkCount)
	return nil
}

// fail 失败收敛：写入结构化错误结果 + FAILED 终态 + 进度推送
func (p *Processor) fail(ctx context.Context, job *model.AnalysisJob, errMsg string) {
	log.Printf("Job %s: failed: %s", job.JobID, errMsg)

	errResult := &model.AnalysisResult{
		RecordID:     job.RecordID,
		Status:       model.ResultFailed,
		ErrorMessage: errMsg,
		ProcessingStats: model.ProcessingStats{
			JobID: job.JobID,
		},
	}
	if err := p.store.StoreResult(ctx, job.JobID, errResult); err != nil {
		log.Printf("Job %s: failed to store error result: %v", job.JobID, err)
	}
	if _, err := p.store.UpdateStatus(ctx, job.JobID, model.StatusFailed, errMsg); err != nil {
		log.Printf("Job %s: failed to mark failed: %v", job.JobID, err)
	}

	p.publisher.PublishProgress(ctx, &pubsub.ProgressMessage{
		JobID:    job.JobID,
		RecordID: job.RecordID,
		Status:   "failed",
		Step:     pubsub.StepDone,
		Error:    errMsg,
	})

	p.archive(job, errResult, model.StatusFailed, errMsg)
	p.deliverWebhook(ctx, job, errResult)
}

// archive 终态任务写入归档库，失败只记日志
func (p *Processor) archive(job *model.AnalysisJob, result *model.AnalysisResult, status model.JobStatus, errMsg string) {
	if p.history == nil {
		return
	}

	entry := &model.JobHistory{
		JobID:          job.JobID,
		RecordID:       job.RecordID,
		Status:         string(status),
		ModelName:      job.Request.Model,
		ChunkCount:     result.ProcessingStats.ChunkCount,
		ContentChars:   len(job.Request.Content),
		ElapsedSeconds: result.ProcessingStats.ProcessingTimeSeconds,
		ErrorMessage:   errMsg,
		CreatedAt:      job.CreatedAt,
		CompletedAt:    time.Now().UTC(),
	}
	if err := p.history.Record(entry); err != nil {
		log.Printf("Job %s: failed to archive: %v", job.JobID, err)
	}
}

// deliverWebhook 旧版 webhook 模式的结果回调
func (p *Processor) deliverWebhook(ctx context.Context, job *model.AnalysisJob, result *model.AnalysisResult) {
	if job.Request.WebhookURL == "" || p.webhook == nil {
		return
	}
	if err := p.webhook.Send(ctx, job.Request.WebhookURL, result); err != nil {
		log.Printf("Job %s: webhook delivery failed: %v", job.JobID, err)
	}
}
