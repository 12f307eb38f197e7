package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/qs3c/ai_analysis_server/internal/model"
)

const (
	messagesPath     = "/v1/messages"
	anthropicVersion = "2023-06-01"

	// 单块响应上限，与请求的 max_tokens 取小
	maxTokensCeiling = 8192
)

// Client Anthropic Messages API 客户端
type Client struct {
	apiKey       string
	baseURL      string
	utilityModel string // 质量评估/命名用的廉价模型
	httpClient   *http.Client
}

// NewClient 创建客户端。baseURL 留空时用官方地址，测试时指向 httptest。
func NewClient(apiKey, baseURL, utilityModel string, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("claude api key is required")
	}
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	if utilityModel == "" {
		utilityModel = "claude-3-haiku-20240307"
	}
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &Client{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		utilityModel: utilityModel,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type thinkingConfig struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type messagesRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	System      string          `json:"system,omitempty"`
	Messages    []chatMessage   `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	Thinking    *thinkingConfig `json:"thinking,omitempty"`
}

type contentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Thinking string `json:"thinking,omitempty"`
}

type messagesResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Content    []contentBlock `json:"content"`
	Usage      *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage,omitempty"`
}

type errorResponse struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// CompleteChunk 处理单块内容：把块内容注入 Coda 预构建的 user prompt 后调用 API
func (c *Client) CompleteChunk(ctx context.Context, chunkContent string, req *model.AnalysisRequest) (string, error) {
	apiReq := messagesRequest{
		Model:     req.Model,
		MaxTokens: minInt(req.MaxTokens, maxTokensCeiling),
		System:    req.SystemPrompt,
		Messages: []chatMessage{
			{Role: "user", Content: injectContent(req.UserPrompt, chunkContent)},
		},
	}

	if req.ExtendedThinking {
		budget := req.ThinkingBudget
		if budget <= 0 {
			budget = 2048
		}
		ceiling := apiReq.MaxTokens - 200
		if budget > ceiling {
			budget = ceiling
		}
		if budget < 1024 {
			budget = 1024
		}
		apiReq.Thinking = &thinkingConfig{Type: "enabled", BudgetTokens: budget}
		// API 要求开启 thinking 时 temperature 必须为 1
		temp := 1.0
		apiReq.Temperature = &temp
	} else {
		temp := clampFloat(req.Temperature, 0.0, 1.0)
		apiReq.Temperature = &temp
	}

	start := time.Now()
	resp, err := c.complete(ctx, &apiReq)
	if err != nil {
		return "", err
	}

	result := extractText(resp, req.ExtendedThinking && req.IncludeThinking)
	log.Printf("Claude responded in %.2fs, returned %d characters (model %s)",
		time.Since(start).Seconds(), len(result), req.Model)
	return result, nil
}

// complete 一次原始 API 调用
func (c *Client) complete(ctx context.Context, apiReq *messagesRequest) (*messagesResponse, error) {
	payload, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+messagesPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("claude request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		var errResp errorResponse
		_ = json.Unmarshal(body, &errResp)
		return nil, &APIError{
			Kind:       classifyStatus(httpResp.StatusCode, errResp.Error.Type, errResp.Error.Message),
			StatusCode: httpResp.StatusCode,
			Type:       errResp.Error.Type,
			Message:    errResp.Error.Message,
		}
	}

	var resp messagesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}

// GenerateName 为分析结果生成简短标题。失败时降级为默认名，从不报错。
func (c *Client) GenerateName(ctx context.Context, analysis string) string {
	// 明显的错误结果不值得再花一次调用
	if strings.HasPrefix(analysis, "[Error processing") ||
		strings.Contains(truncate(analysis, 200), "Error code:") ||
		len(strings.TrimSpace(analysis)) < 50 {
		return "Processing Error"
	}

	prompt := fmt.Sprintf(
		"Generate a single professional title (5-7 words only, no extra text) for the following analysis: %s",
		truncate(analysis, 1500))

	temp := 0.1
	resp, err := c.complete(ctx, &messagesRequest{
		Model:       c.utilityModel,
		MaxTokens:   30,
		Temperature: &temp,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		log.Printf("Name generation failed: %v", err)
		return "AI Analysis Result"
	}

	name := strings.Trim(strings.TrimSpace(extractText(resp, false)), `"'.`)
	if len(name) > 50 {
		name = strings.TrimSpace(name[:50])
	}
	if name == "" {
		return "AI Analysis Result"
	}
	return name
}

const qualitySystemPrompt = "You are a strict quality checker for automated workflows. " +
	"IMMEDIATELY mark FAILED if the response refuses the analysis, points out content mismatches " +
	"instead of analyzing, offers multiple choice options, or asks the user what to do next. " +
	"These responses break workflows even if they seem helpful. " +
	"SUCCESS only means actual analysis was delivered."

// AssessQuality 判定综合结果是否真正完成了分析，返回 SUCCESS 或 FAILED。
// 评估本身失败/超时一律按 SUCCESS 处理，绝不因此拖垮主流程。
func (c *Client) AssessQuality(ctx context.Context, analysis string) string {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	prompt := fmt.Sprintf(
		"Analyze this AI response and determine if it successfully completed the requested analysis. "+
			"Respond with exactly one word: SUCCESS or FAILED.\n\n"+
			"FAILED indicators: refusals (\"I cannot provide the requested analysis\"), "+
			"mismatch complaints (\"doesn't match what I expected\", \"completely different subjects\"), "+
			"clarification requests (\"Would you like me to:\", \"Please advise\"), "+
			"error messages, or empty/nonsensical content.\n\n"+
			"SUCCESS indicators: substantive analysis, insights or structured results delivered "+
			"using whatever content was provided.\n\n"+
			"Response to analyze: %s",
		truncate(analysis, 1500))

	temp := 0.0
	resp, err := c.complete(ctx, &messagesRequest{
		Model:       c.utilityModel,
		MaxTokens:   10,
		System:      qualitySystemPrompt,
		Temperature: &temp,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		log.Printf("Quality assessment failed, defaulting to SUCCESS: %v", err)
		return model.ResultSuccess
	}

	verdict := strings.ToUpper(strings.TrimSpace(extractText(resp, false)))
	if verdict != model.ResultSuccess && verdict != model.ResultFailed {
		log.Printf("Unexpected quality assessment result: %s", verdict)
		return model.ResultSuccess
	}
	return verdict
}

// EnsureFormatConsistency 多块结果的统一格式化重写。失败返回原文。
func (c *Client) EnsureFormatConsistency(ctx context.Context, combined string, req *model.AnalysisRequest) string {
	prompt := fmt.Sprintf(
		"You previously processed this request in chunks. Here was the original prompt:\n%s\n\n"+
			"Now rewrite this entire analysis with consistent formatting throughout, following the "+
			"original requirements. Return the COMPLETE analysis with every single piece of content.\n\n"+
			"Do not add, remove, or modify any analysis content - only fix formatting inconsistencies.\n\n"+
			"Return the full reformatted analysis:\n%s",
		req.UserPrompt, combined)

	temp := 0.1
	resp, err := c.complete(ctx, &messagesRequest{
		Model:       req.Model,
		MaxTokens:   minInt(req.MaxTokens, maxTokensCeiling),
		Temperature: &temp,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		log.Printf("Format consistency check failed: %v", err)
		return combined
	}

	text := strings.TrimSpace(extractText(resp, false))
	if text == "" {
		return combined
	}
	return text
}

// injectContent 把块内容注入预构建 prompt。
// Coda 侧可以用占位符标记插入点，没有占位符就追加在末尾。
func injectContent(userPrompt, chunkContent string) string {
	placeholders := []string{"{{CONTENT}}", "{{CHUNK_CONTENT}}", "{{ANALYSIS_CONTENT}}", "{{DATA}}"}
	for _, ph := range placeholders {
		if strings.Contains(userPrompt, ph) {
			return strings.Replace(userPrompt, ph, chunkContent, 1)
		}
	}
	return userPrompt + "\n\n" + chunkContent
}

// extractText 汇总响应文本。includeThinking 时连 thinking 块一起输出。
func extractText(resp *messagesResponse, includeThinking bool) string {
	var parts []string
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			parts = append(parts, block.Text)
		case "thinking":
			if includeThinking {
				parts = append(parts, block.Thinking)
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// 回退到字符起始字节，避免切出半个字符
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
