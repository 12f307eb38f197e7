package main

import (
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/qs3c/ai_analysis_server/config"
	"github.com/qs3c/ai_analysis_server/internal/database"
	"github.com/qs3c/ai_analysis_server/internal/model"
	"github.com/qs3c/ai_analysis_server/internal/repository"
)

var (
	dryRun        = flag.Bool("dry-run", true, "Dry run mode, don't actually delete records")
	retentionDays = flag.Int("retention-days", 0, "Days to keep job history (0 = use config value)")
)

func main() {
	flag.Parse()

	log.Println("🧹 Starting history cleanup task...")
	log.Printf("Mode: dry-run=%v", *dryRun)

	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.History.DSN == "" {
		log.Fatal("History database is not configured (history.dsn is empty)")
	}

	days := *retentionDays
	if days <= 0 {
		days = cfg.History.RetentionDays
	}
	if days <= 0 {
		log.Fatal("Retention days must be positive (set -retention-days or history.retention_days)")
	}

	// 连接归档库
	db, err := database.NewHistoryDB(&cfg.History)
	if err != nil {
		log.Fatalf("Failed to connect history database: %v", err)
	}
	historyRepo, err := repository.NewHistoryRepository(db)
	if err != nil {
		log.Fatalf("Failed to init history repository: %v", err)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	log.Printf("Cutoff: records completed before %s", cutoff.Format("2006-01-02 15:04:05"))

	// 统计待删除记录
	var expired int64
	if err := db.Model(&model.JobHistory{}).
		Where("completed_at < ?", cutoff).
		Count(&expired).Error; err != nil {
		log.Fatalf("Failed to count expired records: %v", err)
	}

	var total int64
	if err := db.Model(&model.JobHistory{}).Count(&total).Error; err != nil {
		log.Fatalf("Failed to count records: %v", err)
	}

	deleted := int64(0)
	if !*dryRun && expired > 0 {
		deleted, err = historyRepo.DeleteOlderThan(cutoff)
		if err != nil {
			log.Fatalf("Failed to delete expired records: %v", err)
		}
	}

	// 输出统计
	log.Println("\n" + strings.Repeat("=", 60))
	log.Println("📊 Cleanup Summary")
	log.Println(strings.Repeat("=", 60))
	log.Printf("Total records: %d", total)
	log.Printf("Expired records: %d", expired)
	log.Printf("Deleted records: %d", deleted)
	if *dryRun {
		log.Println("\n⚠️  DRY RUN MODE - No records were actually deleted")
		log.Println("   Run with -dry-run=false to actually delete records")
	} else {
		log.Println("\n✅ Cleanup completed!")
	}
	log.Println(strings.Repeat("=", 60))
}
