package model

import "errors"

var (
	ErrEmptyContent    = errors.New("content cannot be empty")
	ErrContentTooLarge = errors.New("content exceeds maximum size")
)

// 结果状态（面向 Coda 的大写约定，区别于内部 JobStatus）
const (
	ResultSuccess = "SUCCESS"
	ResultFailed  = "FAILED"
)

// ProcessingStats 处理统计
type ProcessingStats struct {
	JobID                 string  `json:"job_id"`
	ChunkCount            int     `json:"chunk_count"`
	TotalCharacters       int     `json:"total_characters"`
	ProcessingTimeSeconds float64 `json:"processing_time_seconds"`
}

// AnalysisResult 分析结果（终态负载，按 result:{job_id} 持久化）
type AnalysisResult struct {
	RecordID        string          `json:"record_id"`
	Status          string          `json:"status"` // SUCCESS / FAILED
	AnalysisResult  string          `json:"analysis_result,omitempty"`
	AnalysisName    string          `json:"analysis_name,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	ProcessingStats ProcessingStats `json:"processing_stats"`
}
