package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobStatus 任务状态机：pending → processing → success|failed
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusSuccess    JobStatus = "success"
	StatusFailed     JobStatus = "failed"
)

// Terminal 是否为终态
func (s JobStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// CanTransitionTo 状态只能前进，不能后退；终态不再变化。
// processing → processing 允许（队列可能重复投递）。
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case StatusPending:
		return next == StatusProcessing || next.Terminal()
	case StatusProcessing:
		return next == StatusProcessing || next.Terminal()
	}
	return false
}

// AnalysisJob 分析任务
type AnalysisJob struct {
	JobID        string          `json:"job_id"`
	RecordID     string          `json:"record_id"`
	Status       JobStatus       `json:"status"`
	Request      AnalysisRequest `json:"request_data"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// NewJob 创建新任务：生成 job_id，复制请求数据，初始状态 pending
func NewJob(req *AnalysisRequest) *AnalysisJob {
	return &AnalysisJob{
		JobID:     uuid.NewString(),
		RecordID:  req.RecordID,
		Status:    StatusPending,
		Request:   *req, // 值拷贝，调用方后续修改不影响任务
		CreatedAt: time.Now().UTC(),
	}
}

// AnalysisRequest 分析请求（来自 Coda 的预构建 prompt）
type AnalysisRequest struct {
	RecordID string `json:"record_id"`
	Content  string `json:"content"`

	SystemPrompt string `json:"system_prompt,omitempty"`
	UserPrompt   string `json:"user_prompt"`

	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`

	ExtendedThinking bool `json:"extended_thinking"`
	ThinkingBudget   int  `json:"thinking_budget,omitempty"`
	IncludeThinking  bool `json:"include_thinking"`

	// 旧版 webhook 模式专用，轮询模式下为空
	WebhookURL string `json:"webhook_url,omitempty"`
}

// Validate 内容必须非空（去除空白后）
func (r *AnalysisRequest) Validate() error {
	if strings.TrimSpace(r.Content) == "" {
		return ErrEmptyContent
	}
	return nil
}
