package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/qs3c/ai_analysis_server/config"
	"github.com/qs3c/ai_analysis_server/internal/model"
	"github.com/qs3c/ai_analysis_server/internal/model/dto"
	"github.com/qs3c/ai_analysis_server/internal/pkg/queue"
	"github.com/qs3c/ai_analysis_server/internal/repository"
	"github.com/qs3c/ai_analysis_server/internal/worker"
)

var (
	ErrEmptyContent    = model.ErrEmptyContent
	ErrContentTooLarge = model.ErrContentTooLarge
	ErrJobNotFound     = repository.ErrJobNotFound
)

const (
	StatusComplete   = "complete"
	StatusProcessing = "processing"
	StatusFailedStr  = "failed"
)

// AnalysisService 请求网关：先尝试限时同步处理，
// 超时或出错则落回「建任务 → 入队 → 返回 job_id」的异步路径。
type AnalysisService struct {
	store  *repository.JobStore
	queue  *queue.Queue
	runner *worker.Runner
	cfg    *config.AnalysisConfig
}

func NewAnalysisService(
	store *repository.JobStore,
	jobQueue *queue.Queue,
	runner *worker.Runner,
	cfg *config.AnalysisConfig,
) *AnalysisService {
	return &AnalysisService{
		store:  store,
		queue:  jobQueue,
		runner: runner,
		cfg:    cfg,
	}
}

type syncOutcome struct {
	result *model.AnalysisResult
	err    error
}

// Submit 处理 POST /request。
// 小内容且单块时在截止时间内赛跑同步路径；输了就丢弃结果转异步。
func (s *AnalysisService) Submit(ctx context.Context, req *model.AnalysisRequest) (*dto.SubmitResponse, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, ErrEmptyContent
	}
	if len(req.Content) > s.cfg.MaxContentSize {
		return nil, ErrContentTooLarge
	}

	if len(req.Content) < s.cfg.SmallContentThreshold {
		if resp := s.trySync(req); resp != nil {
			return resp, nil
		}
	}

	return s.enqueue(ctx, req)
}

// trySync 同步尝试。计算跑在独立 goroutine 里，截止时间到了
// 只是不再等它——底层外部调用无法中断，迟到的结果直接丢弃。
// 返回 nil 表示应走异步路径。
func (s *AnalysisService) trySync(req *model.AnalysisRequest) *dto.SubmitResponse {
	chunks := s.runner.PlanChunks(req)
	if len(chunks) != 1 {
		return nil
	}

	ch := make(chan syncOutcome, 1)
	go func() {
		// 故意不用请求的 context：软超时，而不是强制取消
		result, err := s.runner.Run(context.Background(), "", req, nil)
		ch <- syncOutcome{result: result, err: err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			log.Printf("Sync attempt failed for record %s, falling back to async: %v", req.RecordID, out.err)
			return nil
		}
		// 与异步路径的轮询口径一致：质量判定 FAILED 时 status 也报 failed
		status := StatusComplete
		if out.result.Status == model.ResultFailed {
			status = StatusFailedStr
		}
		return &dto.SubmitResponse{
			RecordID:        req.RecordID,
			Status:          status,
			AnalysisResult:  out.result.AnalysisResult,
			AnalysisName:    out.result.AnalysisName,
			ProcessingStats: &out.result.ProcessingStats,
		}
	case <-time.After(s.cfg.SyncDeadline()):
		log.Printf("Sync deadline exceeded for record %s, falling back to async", req.RecordID)
		return nil
	}
}

// enqueue 异步路径：持久化任务并推入队列
func (s *AnalysisService) enqueue(ctx context.Context, req *model.AnalysisRequest) (*dto.SubmitResponse, error) {
	job := model.NewJob(req)

	if err := s.store.Create(ctx, job); err != nil {
		return nil, err
	}
	if err := s.queue.Push(ctx, job.JobID); err != nil {
		return nil, err
	}

	log.Printf("Analysis job queued: %s for record %s", job.JobID, req.RecordID)

	return &dto.SubmitResponse{
		JobID:    job.JobID,
		RecordID: req.RecordID,
		Status:   StatusProcessing,
		Message:  "Analysis queued for background processing",
	}, nil
}

// SubmitAsync 处理旧版 POST /analyze：总是入队，结果走 webhook 回调
func (s *AnalysisService) SubmitAsync(ctx context.Context, req *model.AnalysisRequest) (*dto.AnalyzeResponse, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, ErrEmptyContent
	}
	if len(req.Content) > s.cfg.MaxContentSize {
		return nil, ErrContentTooLarge
	}

	resp, err := s.enqueue(ctx, req)
	if err != nil {
		return nil, err
	}

	return &dto.AnalyzeResponse{
		JobID:         resp.JobID,
		RecordID:      req.RecordID,
		Status:        "queued",
		Message:       "Analysis queued for background processing",
		EstimatedTime: "2-10 minutes depending on content size",
	}, nil
}

// Poll 处理 GET /response/{job_id}。
// 结果优先；无结果但任务还在跑返回 processing；都不在（或已过期）报 not found。
func (s *AnalysisService) Poll(ctx context.Context, jobID string) (*dto.PollResponse, error) {
	result, err := s.store.GetResult(ctx, jobID)
	if err == nil {
		resp := &dto.PollResponse{
			JobID:           jobID,
			RecordID:        result.RecordID,
			AnalysisResult:  result.AnalysisResult,
			AnalysisName:    result.AnalysisName,
			ProcessingStats: &result.ProcessingStats,
			ErrorMessage:    result.ErrorMessage,
		}
		if result.Status == model.ResultFailed {
			resp.Status = StatusFailedStr
		} else {
			resp.Status = StatusComplete
		}
		return resp, nil
	}
	if !errors.Is(err, repository.ErrResultNotFound) {
		return nil, err
	}

	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err // 包含 ErrJobNotFound
	}

	if job.Status.Terminal() {
		// 终态任务的结果已经过期（或写入失败），对调用方等同不存在
		return nil, ErrJobNotFound
	}

	return &dto.PollResponse{
		JobID:    jobID,
		RecordID: job.RecordID,
		Status:   StatusProcessing,
	}, nil
}

// Health 处理 GET /health
func (s *AnalysisService) Health(ctx context.Context) *dto.HealthResponse {
	resp := &dto.HealthResponse{
		Service:   "ai-analysis-server",
		Timestamp: float64(time.Now().UnixMilli()) / 1000,
	}
	if err := s.queue.Ping(ctx); err != nil {
		log.Printf("Health check failed: %v", err)
		resp.Status = "unhealthy"
		return resp
	}
	resp.Status = "healthy"
	resp.QueueConnected = true
	return resp
}
