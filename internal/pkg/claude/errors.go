package claude

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind 失败分类，重试策略据此决定等待方式
type ErrorKind int

const (
	KindTerminal  ErrorKind = iota // 不可重试
	KindRateLimit                  // 限流，固定冷却后重试
	KindTransient                  // 网络/服务端瞬时错误，指数退避重试
	KindPolicy                     // 内容审核拒绝，降级为哨兵结果
)

// APIError Claude API 调用失败
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Type       string // API 返回的 error.type
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("claude api error (status %d, type %s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("claude api error: %s", e.Message)
}

// classifyStatus 按 HTTP 状态码和错误类型分类
func classifyStatus(status int, errType, message string) ErrorKind {
	switch {
	case status == 429 || errType == "rate_limit_error":
		return KindRateLimit
	case status == 529 || errType == "overloaded_error":
		return KindTransient
	case status >= 500:
		return KindTransient
	case isPolicyRejection(errType, message):
		return KindPolicy
	default:
		return KindTerminal
	}
}

func isPolicyRejection(errType, message string) bool {
	if errType == "permission_error" {
		return true
	}
	msg := strings.ToLower(message)
	return strings.Contains(msg, "content filtering") ||
		strings.Contains(msg, "content policy") ||
		strings.Contains(msg, "usage policy")
}

// Classify 判定任意错误的重试类别
func Classify(err error) ErrorKind {
	if err == nil {
		return KindTerminal
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}

	// 网络层错误视作瞬时错误
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "client.timeout") ||
		strings.Contains(msg, "eof") {
		return KindTransient
	}

	return KindTerminal
}
