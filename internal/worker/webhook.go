package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/qs3c/ai_analysis_server/internal/model"
)

const (
	webhookTimeout     = 30 * time.Second
	webhookMaxAttempts = 3
)

// WebhookSender 把分析结果 POST 回调用方指定的地址。
// 回调失败不影响任务终态，重试耗尽后只记日志。
type WebhookSender struct {
	httpClient     *http.Client
	maxAttempts    int
	backoffInitial time.Duration
}

func NewWebhookSender() *WebhookSender {
	return &WebhookSender{
		httpClient:     &http.Client{Timeout: webhookTimeout},
		maxAttempts:    webhookMaxAttempts,
		backoffInitial: 2 * time.Second,
	}
}

// Send 投递结果，非 2xx 按失败处理并指数退避重试
func (s *WebhookSender) Send(ctx context.Context, url string, result *model.AnalysisResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.backoffInitial
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		lastErr = s.post(ctx, url, payload)
		if lastErr == nil {
			return nil
		}
		log.Printf("Webhook delivery to %s failed (attempt %d/%d): %v", url, attempt, s.maxAttempts, lastErr)

		if attempt == s.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(bo.NextBackOff()):
		}
	}
	return fmt.Errorf("webhook delivery failed after %d attempts: %w", s.maxAttempts, lastErr)
}

func (s *WebhookSender) post(ctx context.Context, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
