package claude

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		errType  string
		message  string
		expected ErrorKind
	}{
		{name: "429 is rate limit", status: 429, expected: KindRateLimit},
		{name: "rate limit error type", status: 400, errType: "rate_limit_error", expected: KindRateLimit},
		{name: "529 overloaded", status: 529, expected: KindTransient},
		{name: "overloaded error type", status: 400, errType: "overloaded_error", expected: KindTransient},
		{name: "500 is transient", status: 500, expected: KindTransient},
		{name: "503 is transient", status: 503, expected: KindTransient},
		{name: "permission error is policy", status: 403, errType: "permission_error", expected: KindPolicy},
		{name: "content filtering message", status: 400, errType: "invalid_request_error", message: "Request blocked by content filtering policy", expected: KindPolicy},
		{name: "usage policy message", status: 400, message: "This violates our usage policy", expected: KindPolicy},
		{name: "plain 400 is terminal", status: 400, errType: "invalid_request_error", message: "max_tokens too large", expected: KindTerminal},
		{name: "401 is terminal", status: 401, errType: "authentication_error", expected: KindTerminal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, classifyStatus(tt.status, tt.errType, tt.message))
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorKind
	}{
		{name: "nil", err: nil, expected: KindTerminal},
		{name: "api error keeps its kind", err: &APIError{Kind: KindRateLimit}, expected: KindRateLimit},
		{name: "wrapped api error", err: fmt.Errorf("call failed: %w", &APIError{Kind: KindPolicy}), expected: KindPolicy},
		{name: "deadline exceeded", err: context.DeadlineExceeded, expected: KindTransient},
		{name: "connection reset", err: errors.New("read tcp: connection reset by peer"), expected: KindTransient},
		{name: "connection refused", err: errors.New("dial tcp: connection refused"), expected: KindTransient},
		{name: "client timeout", err: errors.New("Client.Timeout exceeded while awaiting headers"), expected: KindTransient},
		{name: "unexpected eof", err: errors.New("unexpected EOF"), expected: KindTransient},
		{name: "anything else", err: errors.New("invalid request"), expected: KindTerminal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.err))
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	err := &APIError{Kind: KindRateLimit, StatusCode: 429, Type: "rate_limit_error", Message: "slow down"}
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "slow down")

	bare := &APIError{Message: "no status"}
	assert.Contains(t, bare.Error(), "no status")
}
