package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/ai_analysis_server/internal/model"
)

// HistoryRepository 任务归档仓库
type HistoryRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) (*HistoryRepository, error) {
	if err := db.AutoMigrate(&model.JobHistory{}); err != nil {
		return nil, err
	}
	return &HistoryRepository{db: db}, nil
}

// Record 归档一条终态任务。job_id 唯一，重复投递时覆盖旧行。
func (r *HistoryRepository) Record(entry *model.JobHistory) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}},
		UpdateAll: true,
	}).Create(entry).Error
}

// GetByJobID 按 job_id 查询归档
func (r *HistoryRepository) GetByJobID(jobID string) (*model.JobHistory, error) {
	var entry model.JobHistory
	err := r.db.Where("job_id = ?", jobID).First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListRecent 最近完成的任务
func (r *HistoryRepository) ListRecent(limit int) ([]*model.JobHistory, error) {
	var entries []*model.JobHistory
	err := r.db.Order("completed_at DESC").Limit(limit).Find(&entries).Error
	return entries, err
}

// DeleteOlderThan 删除过旧的归档行，返回删除数量
func (r *HistoryRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	res := r.db.Where("completed_at < ?", cutoff).Delete(&model.JobHistory{})
	return res.RowsAffected, res.Error
}
