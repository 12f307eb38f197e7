package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorBody 错误响应结构，与原 FastAPI 服务保持一致的 detail 字段
type ErrorBody struct {
	Detail string `json:"detail"`
}

// OK 200 响应
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Error 错误响应
func Error(c *gin.Context, status int, detail string) {
	c.JSON(status, ErrorBody{Detail: detail})
}

// ParamError 400 参数错误
func ParamError(c *gin.Context, detail string) {
	Error(c, http.StatusBadRequest, detail)
}

// NotFoundError 404 资源不存在
func NotFoundError(c *gin.Context, detail string) {
	Error(c, http.StatusNotFound, detail)
}

// ServerError 500 服务器错误
func ServerError(c *gin.Context, detail string) {
	if detail == "" {
		detail = "internal server error"
	}
	Error(c, http.StatusInternalServerError, detail)
}

// UnavailableError 503 依赖不可用
func UnavailableError(c *gin.Context, detail string) {
	Error(c, http.StatusServiceUnavailable, detail)
}
