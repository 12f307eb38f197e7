package model

import "time"

// JobHistory 终态任务归档。Redis 里的记录 24 小时过期，
// 归档表留给事后排查，不参与 API 查询。
type JobHistory struct {
	ID             int64     `gorm:"primaryKey" json:"id"`
	JobID          string    `gorm:"size:64;uniqueIndex" json:"job_id"`
	RecordID       string    `gorm:"size:128;index" json:"record_id"`
	Status         string    `gorm:"size:20;index" json:"status"`
	ModelName      string    `gorm:"size:64" json:"model_name"`
	ChunkCount     int       `json:"chunk_count"`
	ContentChars   int       `json:"content_chars"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	ErrorMessage   string    `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
	CompletedAt    time.Time `json:"completed_at"`
}

func (JobHistory) TableName() string {
	return "job_history"
}
