package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/ai_analysis_server/internal/model/dto"
	"github.com/qs3c/ai_analysis_server/internal/pkg/response"
	"github.com/qs3c/ai_analysis_server/internal/service"
)

type AnalysisHandler struct {
	analysisService *service.AnalysisService
}

func NewAnalysisHandler(analysisService *service.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{
		analysisService: analysisService,
	}
}

// Submit 提交分析请求（Coda 轮询模式）
// POST /request
func (h *AnalysisHandler) Submit(c *gin.Context) {
	var req dto.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.analysisService.Submit(c.Request.Context(), req.ToAnalysisRequest())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyContent),
			errors.Is(err, service.ErrContentTooLarge):
			response.ParamError(c, err.Error())
		default:
			response.ServerError(c, err.Error())
		}
		return
	}

	response.OK(c, resp)
}

// Poll 查询分析结果
// GET /response/:job_id
func (h *AnalysisHandler) Poll(c *gin.Context) {
	jobID := c.Param("job_id")
	if jobID == "" {
		response.ParamError(c, "job_id is required")
		return
	}

	resp, err := h.analysisService.Poll(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			response.NotFoundError(c, "Job not found or expired")
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.OK(c, resp)
}

// Analyze 提交分析请求（旧版 webhook 模式）
// POST /analyze
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	var req dto.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.analysisService.SubmitAsync(c.Request.Context(), req.ToAnalysisRequest())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyContent),
			errors.Is(err, service.ErrContentTooLarge):
			response.ParamError(c, err.Error())
		default:
			response.UnavailableError(c, err.Error())
		}
		return
	}

	response.OK(c, resp)
}

// Health 健康检查
// GET /health
// 不健康时仍返回完整的状态体，方便探活方看到 queue_connected
func (h *AnalysisHandler) Health(c *gin.Context) {
	resp := h.analysisService.Health(c.Request.Context())
	if resp.Status != "healthy" {
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	response.OK(c, resp)
}
