package api

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/ai_analysis_server/config"
	"github.com/qs3c/ai_analysis_server/internal/api/handler"
	"github.com/qs3c/ai_analysis_server/internal/api/middleware"
)

type Router struct {
	analysisHandler  *handler.AnalysisHandler
	websocketHandler *handler.WebSocketHandler
	cfg              *config.Config
}

func NewRouter(
	analysisHandler *handler.AnalysisHandler,
	websocketHandler *handler.WebSocketHandler,
	cfg *config.Config,
) *Router {
	return &Router{
		analysisHandler:  analysisHandler,
		websocketHandler: websocketHandler,
		cfg:              cfg,
	}
}

// Setup 路由与原 Python 服务保持一致，挂在根路径上
func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	// Coda 轮询模式
	engine.POST("/request", r.analysisHandler.Submit)
	engine.GET("/response/:job_id", r.analysisHandler.Poll)

	// 旧版 webhook 模式
	engine.POST("/analyze", r.analysisHandler.Analyze)

	// 进度流
	engine.GET("/ws", r.websocketHandler.Handle)

	engine.GET("/health", r.analysisHandler.Health)

	return engine
}
