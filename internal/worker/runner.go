package worker

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/qs3c/ai_analysis_server/config"
	"github.com/qs3c/ai_analysis_server/internal/model"
	"github.com/qs3c/ai_analysis_server/internal/pkg/chunker"
	"github.com/qs3c/ai_analysis_server/internal/pkg/pubsub"
)

// Generator 外部生成服务的执行接口，生产环境由 claude.Executor 实现
type Generator interface {
	ExecuteChunk(ctx context.Context, chunkContent string, req *model.AnalysisRequest) (string, error)
	GenerateName(ctx context.Context, analysis string) string
	AssessQuality(ctx context.Context, analysis string) string
	EnsureFormatConsistency(ctx context.Context, combined string, req *model.AnalysisRequest) string
}

// ProgressFunc 进度回调。step 为 pubsub 的阶段常量，
// chunkIndex/chunkTotal 仅在逐块处理阶段有意义。
type ProgressFunc func(step string, chunkIndex, chunkTotal int)

// Runner 单个请求的完整分析流水线：切块 → 逐块调用 → 按序聚合 →
// 可选格式统一 → 质量评估 → 命名 → 统计。
// 同步路径和后台 worker 共用同一条流水线，保证两条路径输出一致。
type Runner struct {
	chunker   *chunker.Chunker
	generator Generator
	cfg       *config.AnalysisConfig
}

func NewRunner(ch *chunker.Chunker, gen Generator, cfg *config.AnalysisConfig) *Runner {
	return &Runner{
		chunker:   ch,
		generator: gen,
		cfg:       cfg,
	}
}

// PlanChunks 只做切块，网关用它判断内容是否单块可同步处理
func (r *Runner) PlanChunks(req *model.AnalysisRequest) []chunker.Chunk {
	return r.chunker.Plan(req.Content, req.SystemPrompt, req.UserPrompt)
}

// Run 执行整条流水线。progress 可为 nil。
func (r *Runner) Run(ctx context.Context, jobID string, req *model.AnalysisRequest, progress ProgressFunc) (*model.AnalysisResult, error) {
	start := time.Now()
	report := func(step string, i, n int) {
		if progress != nil {
			progress(step, i, n)
		}
	}

	report(pubsub.StepChunking, 0, 0)
	chunks := r.PlanChunks(req)
	if len(chunks) == 0 {
		return nil, model.ErrEmptyContent
	}
	log.Printf("Job %s: content split into %d chunks", jobID, len(chunks))

	// 逐块串行处理；并行会撞外部服务的持续限流
	results := make([]string, 0, len(chunks))
	for _, ck := range chunks {
		report(pubsub.StepAnalyzing, ck.Index+1, ck.Total)
		log.Printf("Job %s: processing chunk %d/%d", jobID, ck.Index+1, ck.Total)

		text, err := r.generator.ExecuteChunk(ctx, ck.Content, req)
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d failed: %w", ck.Index+1, ck.Total, err)
		}
		results = append(results, text)

		// 块间停顿，缓和限流压力
		if ck.Index < ck.Total-1 && r.cfg.ChunkDelaySeconds > 0 {
			select {
			case <-time.After(time.Duration(r.cfg.ChunkDelaySeconds) * time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	report(pubsub.StepAggregating, 0, 0)
	combined := combineChunkResults(results)

	if len(results) > 1 && r.cfg.FormatConsistency {
		combined = r.generator.EnsureFormatConsistency(ctx, combined, req)
	}

	report(pubsub.StepFinalizing, 0, 0)
	status := model.ResultSuccess
	if r.cfg.QualityCheck {
		status = r.generator.AssessQuality(ctx, combined)
	}
	name := r.generator.GenerateName(ctx, combined)

	return &model.AnalysisResult{
		RecordID:       req.RecordID,
		Status:         status,
		AnalysisResult: combined,
		AnalysisName:   name,
		ProcessingStats: model.ProcessingStats{
			JobID:                 jobID,
			ChunkCount:            len(chunks),
			TotalCharacters:       len(combined),
			ProcessingTimeSeconds: roundSeconds(time.Since(start)),
		},
	}, nil
}

// combineChunkResults 按块序拼接结果。单块原样返回，
// 多块加分隔横幅，保持可读性。
func combineChunkResults(results []string) string {
	if len(results) == 1 {
		return results[0]
	}

	banner := strings.Repeat("=", 50)
	separator := "\n\n" + banner + " CHUNK SEPARATOR " + banner + "\n\n"
	header := banner + " COMBINED ANALYSIS RESULTS " + banner + "\n\n"
	return header + strings.Join(results, separator)
}

func roundSeconds(d time.Duration) float64 {
	return float64(int(d.Seconds()*100)) / 100
}
