package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/qs3c/ai_analysis_server/config"
	"github.com/qs3c/ai_analysis_server/internal/api"
	"github.com/qs3c/ai_analysis_server/internal/api/handler"
	"github.com/qs3c/ai_analysis_server/internal/database"
	"github.com/qs3c/ai_analysis_server/internal/pkg/chunker"
	"github.com/qs3c/ai_analysis_server/internal/pkg/claude"
	"github.com/qs3c/ai_analysis_server/internal/pkg/pubsub"
	"github.com/qs3c/ai_analysis_server/internal/pkg/queue"
	"github.com/qs3c/ai_analysis_server/internal/pkg/ws"
	"github.com/qs3c/ai_analysis_server/internal/repository"
	"github.com/qs3c/ai_analysis_server/internal/service"
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

	// 初始化 Queue 和任务存储
	jobQueue := queue.NewQueue(rdb, cfg.Queue.AnalysisQueue)
	jobStore := repository.NewJobStore(rdb, cfg.Analysis.ResultTTL())

	// 初始化 Claude 客户端（同步路径直接调用）
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

	// 初始化 Service
	analysisService := service.NewAnalysisService(jobStore, jobQueue, runner, &cfg.Analysis)

	// 初始化 WebSocket Hub，订阅进度消息转发给在线连接
	wsHub := ws.NewHub()
	subscriber := pubsub.NewSubscriber(rdb)
	go func() {
		err := subscriber.Subscribe(context.Background(), func(msg *pubsub.ProgressMessage) {
			if wsHub.HasSubscribers(msg.JobID) {
				wsHub.SendToJob(msg.JobID, &ws.Message{Type: msg.Type, Data: msg})
			}
		})
		if err != nil && err != context.Canceled {
			log.Printf("Progress subscription stopped: %v", err)
		}
	}()
	log.Println("WebSocket hub started")

	// 初始化 Handler 和 Router
	analysisHandler := handler.NewAnalysisHandler(analysisService)
	websocketHandler := handler.NewWebSocketHandler(wsHub)

	router := api.NewRouter(analysisHandler, websocketHandler, cfg)
	engine := router.Setup()

	// 启动服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Server starting on %s", addr)
	if err := engine.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
