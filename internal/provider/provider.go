package provider

import "context"

// 核心只依赖这四个能力集，具体厂商在启动时注入

// ASRSegment 带时间戳的转写片段
type ASRSegment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	AvgLogProb float64 `json:"avg_logprob"`
}

type TranscribeHints struct {
	Language string
	Prompt   string
}

type TranscribeResult struct {
	Text       string
	Language   string
	DurationS  float64
	Confidence float64 // [0,1]
	Segments   []ASRSegment
}

// ASR 语音转写能力
type ASR interface {
	Transcribe(ctx context.Context, audio []byte, hints TranscribeHints) (*TranscribeResult, error)
}

// Message chat 消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompleteParams struct {
	Temperature float64
	MaxTokens   int
	Stop        []string
	JSONMode    bool // 强制 JSON 输出 (提取任务用)
}

// LLM 文本生成能力。RateLimited 与 ProviderUnavailable 在客户端内部做指数退避重试，最多共 3 次尝试
type LLM interface {
	Complete(ctx context.Context, messages []Message, params CompleteParams) (string, error)
}

// Embedder 向量化能力。同一输入必须产生完全相同的向量
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

type PdfResult struct {
	Text      string
	PageCount int
}

type ImageResult struct {
	Text       string
	Confidence float64 // [0,1]
}

// OCR 文档文本提取能力
type OCR interface {
	ExtractPdf(ctx context.Context, data []byte, maxPages int) (*PdfResult, error)
	ExtractImage(ctx context.Context, data []byte, lang string) (*ImageResult, error)
}
