package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qs3c/ai_analysis_server/config"
	"github.com/qs3c/ai_analysis_server/internal/database"
	"github.com/qs3c/ai_analysis_server/internal/pkg/chunker"
	"github.com/qs3c/ai_analysis_server/internal/pkg/claude"
	"github.com/qs3c/ai_analysis_server/internal/pkg/cron"
	"github.com/qs3c/ai_analysis_server/internal/pkg/pubsub"
	"github.com/qs3c/ai_analysis_server/internal/pkg/queue"
	"github.com/qs3c/ai_analysis_server/internal/repository"
	"github.com/qs3c/ai_analysis_server/internal/worker"
)

func main() {
	// 加载配置
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	log.Println("Redis connected")

	// 初始化归档库（可选）
	var historyRepo *repository.HistoryRepository
	if cfg.History.DSN != "" {
		db, err := database.NewHistoryDB(&cfg.History)
		if err != nil {
			log.Printf("Warning: failed to connect history database, archiving disabled: %v", err)
		} else {
			historyRepo, err = repository.NewHistoryRepository(db)
			if err != nil {
				log.Printf("Warning: failed to init history repository: %v", err)
				historyRepo = nil
			} else {
				log.Println("History database connected")
			}
		}
	}

	// 初始化 Queue、任务存储和 Pub/Sub
	jobQueue := queue.NewQueue(rdb, cfg.Queue.AnalysisQueue)
	jobStore := repository.NewJobStore(rdb, cfg.Analysis.ResultTTL())
	publisher := pubsub.NewPublisher(rdb)

	// 初始化 Claude 客户端和分析流水线
	claudeClient, err := claude.NewClient(
		cfg.Claude.APIKey,
		cfg.Claude.BaseURL,
		cfg.Claude.UtilityModel,
		time.Duration(cfg.Claude.TimeoutSeconds)*time.Second,
	)
	if err != nil {
		log.Fatalf("Failed to init claude client: %v", err)
	}
	executor := claude.NewExecutor(claudeClient, cfg.Claude.MaxAttempts,
		time.Duration(cfg.Claude.CooldownSeconds)*time.Second)
	runner := worker.NewRunner(chunker.New(), executor, &cfg.Analysis)

	// 创建任务处理器
	processor := worker.NewProcessor(jobStore, runner, publisher, historyRepo, worker.NewWebhookSender())

	// 启动定时任务：卡死任务回收 + 归档清理
	cronService := cron.NewService(jobStore, jobQueue, historyRepo,
		cfg.Analysis.StaleAfter(), cfg.History.RetentionDays)
	cronService.Start()
	defer cronService.Stop()

	// 创建 context 用于优雅关闭
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Received shutdown signal")
		cancel()
	}()

	log.Printf("Worker started, max workers: %d", cfg.Queue.MaxWorkers)

	// 启动 worker 循环
	for i := 0; i < cfg.Queue.MaxWorkers; i++ {
		go func(workerID int) {
			for {
				select {
				case <-ctx.Done():
					log.Printf("Worker %d shutting down", workerID)
					return
				default:
					// 从队列获取任务
					jobID, err := jobQueue.Pop(ctx, time.Duration(cfg.Queue.PopTimeout)*time.Second)
					if err != nil {
						if ctx.Err() != nil {
							return
						}
						log.Printf("Worker %d: failed to pop job: %v", workerID, err)
						continue
					}

					if jobID == "" {
						continue // 超时，继续等待
					}

					log.Printf("Worker %d: processing job %s", workerID, jobID)
					if err := processor.Process(ctx, jobID); err != nil {
						log.Printf("Worker %d: job %s failed: %v", workerID, jobID, err)
					}
				}
			}
		}(i)
	}

	// 等待 context 取消
	<-ctx.Done()
	log.Println("Worker shutdown complete")
}
