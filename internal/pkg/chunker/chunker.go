package chunker

import (
	"strings"
	"unicode/utf8"
)

const (
	// 上下文预算，按保守的 Claude 输入上限
	maxContextTokens = 11000
	// prompt 之外再留的安全余量
	safetyBufferTokens = 500
	// 内容空间下限
	minContentTokens = 1000
	// 估算用的字符/token 比例
	charsPerToken = 4
	// prompt 为空时的保守估算
	defaultPromptTokens = 1000
)

// Chunk 一块有界内容，携带顺序信息
type Chunk struct {
	Index   int
	Total   int
	Content string
}

// Chunker 内容切分器。对相同输入结果确定，
// 各块按字节原样切自原文，顺序拼接可无损还原。
type Chunker struct{}

func New() *Chunker {
	return &Chunker{}
}

// Plan 把内容切成若干块，每块的 token 估算（内容 + 共享 prompt）
// 不超过上下文预算。优先在段落边界切，其次句子/空白，
// 实在没有安全边界才按字符硬切（不会切断多字节字符）。
func (c *Chunker) Plan(content, systemPrompt, userPrompt string) []Chunk {
	if content == "" {
		return nil
	}

	budget := c.contentByteBudget(systemPrompt, userPrompt)

	var parts []string
	rest := content
	for len(rest) > budget {
		cut := findSplit(rest, budget)
		parts = append(parts, rest[:cut])
		rest = rest[cut:]
	}
	parts = append(parts, rest)

	chunks := make([]Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = Chunk{
			Index:   i,
			Total:   len(parts),
			Content: p,
		}
	}
	return chunks
}

// contentByteBudget 扣除 prompt 开销后留给内容的字节数
func (c *Chunker) contentByteBudget(systemPrompt, userPrompt string) int {
	promptTokens := EstimateTokens(systemPrompt) + EstimateTokens(userPrompt)
	if promptTokens == 0 {
		promptTokens = defaultPromptTokens
	}

	available := maxContextTokens - promptTokens - safetyBufferTokens
	if available < minContentTokens {
		available = minContentTokens
	}
	return available * charsPerToken
}

// EstimateTokens 粗略 token 估算（约 4 字符/token）。
// 包里没有 Claude 的分词器，上下文预算本身留了余量。
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + charsPerToken - 1) / charsPerToken
}

// findSplit 在 budget 字节内找最靠后的安全切点。
// 返回值保证 0 < cut <= budget，调用方由此保证循环前进。
func findSplit(s string, budget int) int {
	window := s[:budget]

	// 段落边界
	if i := strings.LastIndex(window, "\n\n"); i > 0 {
		return i + 2
	}
	// 换行
	if i := strings.LastIndex(window, "\n"); i > 0 {
		return i + 1
	}
	// 句末
	if i := strings.LastIndex(window, ". "); i > 0 {
		return i + 2
	}
	// 空格
	if i := strings.LastIndex(window, " "); i > 0 {
		return i + 1
	}

	// 硬切，回退到字符起始字节
	cut := budget
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		cut = budget
	}
	return cut
}
