package claude

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/ai_analysis_server/internal/model"
)

// flakyAPI 先返回 failures 次指定错误，之后成功
type flakyAPI struct {
	calls    int32
	failures int32
	status   int
	errType  string
	message  string
}

func (f *flakyAPI) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&f.calls, 1)
		if n <= f.failures {
			w.WriteHeader(f.status)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"type": "error",
				"error": map[string]string{
					"type":    f.errType,
					"message": f.message,
				},
			})
			return
		}
		json.NewEncoder(w).Encode(messagesResponse{Content: []contentBlock{
			{Type: "text", Text: "recovered"},
		}})
	}
}

func newTestExecutor(t *testing.T, api *flakyAPI) *Executor {
	t.Helper()

	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	client, err := NewClient("test-key", srv.URL, "", 0)
	require.NoError(t, err)

	e := NewExecutor(client, 3, 10*time.Millisecond)
	e.backoffInitial = 5 * time.Millisecond
	e.backoffMax = 20 * time.Millisecond
	return e
}

func testRequest() *model.AnalysisRequest {
	return &model.AnalysisRequest{
		Model:      "claude-3-5-sonnet-20241022",
		MaxTokens:  100,
		UserPrompt: "analyze",
	}
}

func TestExecuteChunk_SucceedsFirstTry(t *testing.T) {
	api := &flakyAPI{failures: 0}
	e := newTestExecutor(t, api)

	text, err := e.ExecuteChunk(context.Background(), "content", testRequest())
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, int32(1), atomic.LoadInt32(&api.calls))
}

func TestExecuteChunk_RetriesTransientErrors(t *testing.T) {
	api := &flakyAPI{failures: 2, status: 500, errType: "api_error", message: "internal error"}
	e := newTestExecutor(t, api)

	text, err := e.ExecuteChunk(context.Background(), "content", testRequest())
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, int32(3), atomic.LoadInt32(&api.calls))
}

func TestExecuteChunk_RetriesRateLimit(t *testing.T) {
	api := &flakyAPI{failures: 1, status: 429, errType: "rate_limit_error", message: "slow down"}
	e := newTestExecutor(t, api)

	text, err := e.ExecuteChunk(context.Background(), "content", testRequest())
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, int32(2), atomic.LoadInt32(&api.calls))
}

func TestExecuteChunk_ExhaustsAttempts(t *testing.T) {
	api := &flakyAPI{failures: 10, status: 500, errType: "api_error", message: "still broken"}
	e := newTestExecutor(t, api)

	_, err := e.ExecuteChunk(context.Background(), "content", testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int32(3), atomic.LoadInt32(&api.calls))
}

func TestExecuteChunk_TerminalErrorNoRetry(t *testing.T) {
	api := &flakyAPI{failures: 10, status: 400, errType: "invalid_request_error", message: "bad request"}
	e := newTestExecutor(t, api)

	_, err := e.ExecuteChunk(context.Background(), "content", testRequest())
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&api.calls), "terminal errors must not be retried")
}

func TestExecuteChunk_PolicyRejectionDegrades(t *testing.T) {
	api := &flakyAPI{failures: 10, status: 403, errType: "permission_error", message: "blocked by content policy"}
	e := newTestExecutor(t, api)

	text, err := e.ExecuteChunk(context.Background(), "content", testRequest())
	require.NoError(t, err, "policy rejection degrades to a sentinel, not an error")
	assert.Equal(t, ContentFilteredText, text)
	assert.Equal(t, int32(1), atomic.LoadInt32(&api.calls))
}

func TestExecuteChunk_ContextCancelledDuringWait(t *testing.T) {
	api := &flakyAPI{failures: 10, status: 429, errType: "rate_limit_error", message: "slow down"}

	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	client, err := NewClient("test-key", srv.URL, "", 0)
	require.NoError(t, err)

	// Long cooldown so cancellation wins the race
	e := NewExecutor(client, 3, 10*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err = e.ExecuteChunk(ctx, "content", testRequest())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewExecutor_Defaults(t *testing.T) {
	client := &Client{apiKey: "k", baseURL: "http://x", httpClient: http.DefaultClient}

	e := NewExecutor(client, 0, 0)
	assert.Equal(t, 3, e.maxAttempts)
	assert.Equal(t, 60*time.Second, e.cooldown)
}
