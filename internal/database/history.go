package database

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/qs3c/ai_analysis_server/config"
)

// NewHistoryDB 打开任务归档库。默认 sqlite 单文件，部署多实例时可切 mysql。
func NewHistoryDB(cfg *config.HistoryConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	switch cfg.Driver {
	case "mysql":
		return gorm.Open(mysql.Open(cfg.DSN), gormCfg)
	case "sqlite", "":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "analysis_history.db"
		}
		return gorm.Open(sqlite.Open(dsn), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported history driver: %s", cfg.Driver)
	}
}
