package dto

import (
	"fmt"
	"strings"

	"github.com/qs3c/ai_analysis_server/internal/model"
)

const (
	DefaultModel       = "claude-3-5-sonnet-20241022"
	DefaultMaxTokens   = 2000
	DefaultTemperature = 0.2
)

// SubmitRequest POST /request 请求体。
// Coda 公式单参数有长度限制，内容可拆成 source1..6 / target1..6 传入。
type SubmitRequest struct {
	RecordID string `json:"record_id" binding:"required"`
	Content  string `json:"content"`

	Source1 string `json:"source1"`
	Source2 string `json:"source2"`
	Source3 string `json:"source3"`
	Source4 string `json:"source4"`
	Source5 string `json:"source5"`
	Source6 string `json:"source6"`
	Target1 string `json:"target1"`
	Target2 string `json:"target2"`
	Target3 string `json:"target3"`
	Target4 string `json:"target4"`
	Target5 string `json:"target5"`
	Target6 string `json:"target6"`

	SystemPrompt string `json:"system_prompt"`
	UserPrompt   string `json:"user_prompt" binding:"required"`

	Model       string   `json:"model"`
	MaxTokens   int      `json:"max_tokens"`
	Temperature *float64 `json:"temperature"`

	ExtendedThinking bool `json:"extended_thinking"`
	ThinkingBudget   int  `json:"thinking_budget"`
	IncludeThinking  bool `json:"include_thinking"`
}

// ReconstructContent 从拆分字段还原完整内容。
// content 字段非空时直接使用，否则按原始约定拼装 TARGET/SOURCE 两段。
func (r *SubmitRequest) ReconstructContent() string {
	if r.Content != "" {
		return r.Content
	}

	fullSource := r.Source1 + r.Source2 + r.Source3 + r.Source4 + r.Source5 + r.Source6
	fullTarget := r.Target1 + r.Target2 + r.Target3 + r.Target4 + r.Target5 + r.Target6

	if fullTarget != "" {
		return fmt.Sprintf("**TARGET CONTENT:**\n%s\n\n**SOURCE CONTENT:**\n%s", fullTarget, fullSource)
	}
	if fullSource == "" {
		return ""
	}
	return fmt.Sprintf("**SOURCE CONTENT:**\n%s", fullSource)
}

// ToAnalysisRequest 转换为内部请求并填充默认值
func (r *SubmitRequest) ToAnalysisRequest() *model.AnalysisRequest {
	req := &model.AnalysisRequest{
		RecordID:         r.RecordID,
		Content:          r.ReconstructContent(),
		SystemPrompt:     r.SystemPrompt,
		UserPrompt:       r.UserPrompt,
		Model:            r.Model,
		MaxTokens:        r.MaxTokens,
		Temperature:      DefaultTemperature,
		ExtendedThinking: r.ExtendedThinking,
		ThinkingBudget:   r.ThinkingBudget,
		IncludeThinking:  r.IncludeThinking,
	}
	if strings.TrimSpace(req.Model) == "" {
		req.Model = DefaultModel
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = DefaultMaxTokens
	}
	if r.Temperature != nil {
		req.Temperature = *r.Temperature
	}
	return req
}

// AnalyzeRequest POST /analyze 请求体（旧版 webhook 模式）
type AnalyzeRequest struct {
	SubmitRequest
	WebhookURL string `json:"webhook_url" binding:"required"`
}

// ToAnalysisRequest 转换为内部请求，携带回调地址
func (r *AnalyzeRequest) ToAnalysisRequest() *model.AnalysisRequest {
	req := r.SubmitRequest.ToAnalysisRequest()
	req.WebhookURL = r.WebhookURL
	return req
}

// SubmitResponse POST /request 响应体
type SubmitResponse struct {
	JobID           string                 `json:"job_id,omitempty"`
	RecordID        string                 `json:"record_id"`
	Status          string                 `json:"status"` // complete / processing / failed
	AnalysisResult  string                 `json:"analysis_result,omitempty"`
	AnalysisName    string                 `json:"analysis_name,omitempty"`
	ProcessingStats *model.ProcessingStats `json:"processing_stats,omitempty"`
	Message         string                 `json:"message,omitempty"`
}

// PollResponse GET /response/{job_id} 响应体
type PollResponse struct {
	JobID           string                 `json:"job_id"`
	RecordID        string                 `json:"record_id,omitempty"`
	Status          string                 `json:"status"` // processing / complete / failed
	AnalysisResult  string                 `json:"analysis_result,omitempty"`
	AnalysisName    string                 `json:"analysis_name,omitempty"`
	ProcessingStats *model.ProcessingStats `json:"processing_stats,omitempty"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
}

// AnalyzeResponse POST /analyze 响应体
type AnalyzeResponse struct {
	JobID         string `json:"job_id"`
	RecordID      string `json:"record_id"`
	Status        string `json:"status"` // queued
	Message       string `json:"message"`
	EstimatedTime string `json:"estimated_time"`
}

// HealthResponse GET /health 响应体
type HealthResponse struct {
	Status         string  `json:"status"` // healthy / unhealthy
	QueueConnected bool    `json:"queue_connected"`
	Service        string  `json:"service"`
	Timestamp      float64 `json:"timestamp"`
}
