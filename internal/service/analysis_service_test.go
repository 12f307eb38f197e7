package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/ai_analysis_server/config"
	"github.com/qs3c/ai_analysis_server/internal/model"
	"github.com/qs3c/ai_analysis_server/internal/pkg/chunker"
	"github.com/qs3c/ai_analysis_server/internal/pkg/queue"
	"github.com/qs3c/ai_analysis_server/internal/repository"
	"github.com/qs3c/ai_analysis_server/internal/testutil"
	"github.com/qs3c/ai_analysis_server/internal/worker"
)

// stubGenerator 同步路径用的生成桩
type stubGenerator struct {
	mu      sync.Mutex
	execErr error
	delay   time.Duration
	quality string
}

func (s *stubGenerator) ExecuteChunk(ctx context.Context, chunkContent string, req *model.AnalysisRequest) (string, error) {
	s.mu.Lock()
	err := s.execErr
	delay := s.delay
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return "", err
	}
	return "analysis of: " + chunkContent, nil
}

func (s *stubGenerator) GenerateName(ctx context.Context, analysis string) string {
	return "Stub Analysis Name"
}

func (s *stubGenerator) AssessQuality(ctx context.Context, analysis string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quality != "" {
		return s.quality
	}
	return model.ResultSuccess
}

func (s *stubGenerator) EnsureFormatConsistency(ctx context.Context, combined string, req *model.AnalysisRequest) string {
	return combined
}

type serviceEnv struct {
	mr      *miniredis.Miniredis
	store   *repository.JobStore
	queue   *queue.Queue
	gen     *stubGenerator
	cfg     *config.AnalysisConfig
	service *AnalysisService
}

func setupService(t *testing.T) *serviceEnv {
	t.Helper()

	mr, client := testutil.SetupTestRedis(t)

	cfg := &config.AnalysisConfig{
		SyncDeadlineSeconds:   5,
		SmallContentThreshold: 10000,
		MaxContentSize:        100000,
		ResultTTLHours:        24,
		QualityCheck:          true,
	}

	store := repository.NewJobStore(client, cfg.ResultTTL())
	jobQueue := queue.NewQueue(client, "analysis_queue")
	gen := &stubGenerator{}
	runner := worker.NewRunner(chunker.New(), gen, cfg)

	return &serviceEnv{
		mr:      mr,
		store:   store,
		queue:   jobQueue,
		gen:     gen,
		cfg:     cfg,
		service: NewAnalysisService(store, jobQueue, runner, cfg),
	}
}

func TestSubmit_EmptyContent(t *testing.T) {
	env := setupService(t)

	req := testutil.TestRequest(testutil.WithContent("   \n  "))
	_, err := env.service.Submit(context.Background(), req)
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestSubmit_ContentTooLarge(t *testing.T) {
	env := setupService(t)

	req := testutil.TestRequest(testutil.WithContent(strings.Repeat("x", 100001)))
	_, err := env.service.Submit(context.Background(), req)
	assert.ErrorIs(t, err, ErrContentTooLarge)
}

func TestSubmit_SmallContentSyncComplete(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	req := testutil.TestRequest(testutil.WithContent("small enough content"))
	resp, err := env.service.Submit(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, StatusComplete, resp.Status)
	assert.Equal(t, "analysis of: small enough content", resp.AnalysisResult)
	assert.Equal(t, "Stub Analysis Name", resp.AnalysisName)
	assert.Empty(t, resp.JobID, "sync completion has no job id")

	// Nothing was queued
	n, err := env.queue.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestSubmit_SyncQualityFailedReportsFailed(t *testing.T) {
	env := setupService(t)
	env.gen.quality = model.ResultFailed
	ctx := context.Background()

	req := testutil.TestRequest(testutil.WithContent("small enough content"))
	resp, err := env.service.Submit(ctx, req)
	require.NoError(t, err)

	// 与轮询口径一致：质量判定 FAILED 时同步响应也报 failed
	assert.Equal(t, StatusFailedStr, resp.Status)
	assert.Equal(t, "analysis of: small enough content", resp.AnalysisResult)

	n, err := env.queue.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "quality verdict is not a pipeline failure, no fallback")
}

func TestSubmit_SyncFailureFallsBackToAsync(t *testing.T) {
	env := setupService(t)
	env.gen.execErr = errors.New("claude unavailable")
	ctx := context.Background()

	req := testutil.TestRequest(testutil.WithContent("small content"))
	resp, err := env.service.Submit(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, StatusProcessing, resp.Status)
	require.NotEmpty(t, resp.JobID)

	// Job persisted as pending and queued for the worker
	job, err := env.store.Get(ctx, resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, job.Status)

	n, err := env.queue.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSubmit_LargeContentGoesAsync(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	req := testutil.TestRequest(testutil.WithContent(strings.Repeat("large content block ", 1000)))
	resp, err := env.service.Submit(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, StatusProcessing, resp.Status)
	require.NotEmpty(t, resp.JobID)

	jobID, err := env.queue.Pop(ctx, 1*time.Second)
	require.NoError(t, err)
	assert.Equal(t, resp.JobID, jobID)
}

func TestSubmitAsync(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	req := testutil.TestRequest(testutil.WithWebhook("http://example.com/hook"))
	resp, err := env.service.SubmitAsync(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, "queued", resp.Status)
	assert.NotEmpty(t, resp.JobID)
	assert.NotEmpty(t, resp.EstimatedTime)

	// Webhook URL travels with the persisted job
	job, err := env.store.Get(ctx, resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/hook", job.Request.WebhookURL)
}

func TestSubmitAsync_EmptyContent(t *testing.T) {
	env := setupService(t)

	req := testutil.TestRequest(testutil.WithContent(""))
	_, err := env.service.SubmitAsync(context.Background(), req)
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestPoll_UnknownJob(t *testing.T) {
	env := setupService(t)

	_, err := env.service.Poll(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestPoll_PendingJob(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	job := model.NewJob(testutil.TestRequest())
	require.NoError(t, env.store.Create(ctx, job))

	resp, err := env.service.Poll(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, resp.Status)
	assert.Equal(t, job.RecordID, resp.RecordID)
}

func TestPoll_SuccessResult(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	result := &model.AnalysisResult{
		RecordID:       "rec-1",
		Status:         model.ResultSuccess,
		AnalysisResult: "done",
		AnalysisName:   "Name",
		ProcessingStats: model.ProcessingStats{
			JobID:      "job-1",
			ChunkCount: 1,
		},
	}
	require.NoError(t, env.store.StoreResult(ctx, "job-1", result))

	resp, err := env.service.Poll(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, resp.Status)
	assert.Equal(t, "done", resp.AnalysisResult)
	assert.Equal(t, "Name", resp.AnalysisName)
}

func TestPoll_FailedResult(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	result := &model.AnalysisResult{
		RecordID:     "rec-1",
		Status:       model.ResultFailed,
		ErrorMessage: "all attempts exhausted",
	}
	require.NoError(t, env.store.StoreResult(ctx, "job-1", result))

	resp, err := env.service.Poll(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailedStr, resp.Status)
	assert.Equal(t, "all attempts exhausted", resp.ErrorMessage)
}

func TestPoll_TerminalJobWithoutResult(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	job := model.NewJob(testutil.TestRequest())
	require.NoError(t, env.store.Create(ctx, job))
	_, err := env.store.UpdateStatus(ctx, job.JobID, model.StatusProcessing, "")
	require.NoError(t, err)
	_, err = env.store.UpdateStatus(ctx, job.JobID, model.StatusSuccess, "")
	require.NoError(t, err)

	// The result key expired (or was never written): treated as not found
	_, err = env.service.Poll(ctx, job.JobID)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestHealth(t *testing.T) {
	env := setupService(t)

	resp := env.service.Health(context.Background())
	assert.Equal(t, "healthy", resp.Status)
	assert.True(t, resp.QueueConnected)
	assert.Equal(t, "ai-analysis-server", resp.Service)
	assert.Greater(t, resp.Timestamp, float64(0))
}

func TestHealth_RedisDown(t *testing.T) {
	env := setupService(t)
	env.mr.Close()

	resp := env.service.Health(context.Background())
	assert.Equal(t, "unhealthy", resp.Status)
	assert.False(t, resp.QueueConnected)
}
