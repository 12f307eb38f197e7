package claude

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/qs3c/ai_analysis_server/internal/model"
)

// ContentFilteredText 内容审核拒绝时的降级结果。
// 任务照常完成，调用方拿到的是带解释的哨兵文本而不是失败。
const ContentFilteredText = "[Content filtered: this section was declined by the content moderation policy and could not be analyzed]"

// Executor 带重试策略的执行器。对任务/队列一无所知，
// 只负责一次调用的弹性：超时、重试上限、退避、失败分类。
type Executor struct {
	client      *Client
	maxAttempts int
	cooldown    time.Duration // 限流后的固定冷却

	// 瞬时错误的指数退避参数
	backoffInitial time.Duration
	backoffMax     time.Duration
}

func NewExecutor(client *Client, maxAttempts int, cooldown time.Duration) *Executor {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if cooldown <= 0 {
		cooldown = 60 * time.Second
	}
	return &Executor{
		client:         client,
		maxAttempts:    maxAttempts,
		cooldown:       cooldown,
		backoffInitial: 4 * time.Second,
		backoffMax:     30 * time.Second,
	}
}

// ExecuteChunk 处理单块内容，按失败类别决定等待方式：
// 限流 → 固定冷却；瞬时错误 → 指数退避；审核拒绝 → 降级哨兵结果；
// 其余错误或重试耗尽 → 返回终态错误。
func (e *Executor) ExecuteChunk(ctx context.Context, chunkContent string, req *model.AnalysisRequest) (string, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.backoffInitial
	bo.MaxInterval = e.backoffMax
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0 // 次数由 maxAttempts 控制

	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		text, err := e.client.CompleteChunk(ctx, chunkContent, req)
		if err == nil {
			return text, nil
		}

		var wait time.Duration
		switch Classify(err) {
		case KindPolicy:
			log.Printf("Content policy rejection, returning filtered sentinel: %v", err)
			return ContentFilteredText, nil
		case KindRateLimit:
			lastErr = err
			wait = e.cooldown
			log.Printf("Rate limit hit (attempt %d/%d), cooling down %s", attempt, e.maxAttempts, wait)
		case KindTransient:
			lastErr = err
			wait = bo.NextBackOff()
			log.Printf("Transient claude error (attempt %d/%d), backing off %s: %v", attempt, e.maxAttempts, wait, err)
		default:
			return "", fmt.Errorf("claude call failed: %w", err)
		}

		if attempt == e.maxAttempts {
			break
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	return "", fmt.Errorf("claude call failed after %d attempts: %w", e.maxAttempts, lastErr)
}

// GenerateName 见 Client.GenerateName
func (e *Executor) GenerateName(ctx context.Context, analysis string) string {
	return e.client.GenerateName(ctx, analysis)
}

// AssessQuality 见 Client.AssessQuality
func (e *Executor) AssessQuality(ctx context.Context, analysis string) string {
	return e.client.AssessQuality(ctx, analysis)
}

// EnsureFormatConsistency 见 Client.EnsureFormatConsistency
func (e *Executor) EnsureFormatConsistency(ctx context.Context, combined string, req *model.AnalysisRequest) string {
	return e.client.EnsureFormatConsistency(ctx, combined, req)
}
