package testutil

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/qs3c/ai_analysis_server/internal/model"
)

// SetupTestDB 创建测试归档库（SQLite 内存模式）
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect test database: %v", err)
	}

	if err := db.AutoMigrate(&model.JobHistory{}); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return db
}

// TestRequest 构造一个带默认值的分析请求
func TestRequest(opts ...func(*model.AnalysisRequest)) *model.AnalysisRequest {
	req := &model.AnalysisRequest{
		RecordID:    "rec-test-1",
		Content:     "Some content worth analyzing.",
		UserPrompt:  "Summarize this content.",
		Model:       "claude-3-5-sonnet-20241022",
		MaxTokens:   2000,
		Temperature: 0.2,
	}
	for _, opt := range opts {
		opt(req)
	}
	return req
}

// WithContent 设置请求内容
func WithContent(content string) func(*model.AnalysisRequest) {
	return func(r *model.AnalysisRequest) {
		r.Content = content
	}
}

// WithRecordID 设置记录 ID
func WithRecordID(recordID string) func(*model.AnalysisRequest) {
	return func(r *model.AnalysisRequest) {
		r.RecordID = recordID
	}
}

// WithWebhook 设置回调地址
func WithWebhook(url string) func(*model.AnalysisRequest) {
	return func(r *model.AnalysisRequest) {
		r.WebhookURL = url
	}
}
