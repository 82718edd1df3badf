package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"MedSol-RAG/internal/apperr"
)

// ChatConfig OpenAI 兼容 chat/completions 客户端配置
type ChatConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

type chatClient struct {
	base   string
	apiKey string
	model  string
	client *http.Client
	sleep  sleepFunc
}

// NewChatClient 构造 LLM 客户端
func NewChatClient(cfg ChatConfig) LLM {
	return &chatClient{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		client: pickHTTPClient(cfg.HTTPClient, 90*time.Second),
		sleep:  sleepCtx,
	}
}

func pickHTTPClient(custom *http.Client, timeout time.Duration) *http.Client {
	if custom != nil {
		return custom
	}
	return &http.Client{Timeout: timeout}
}

func (c *chatClient) Complete(ctx context.Context, messages []Message, params CompleteParams) (string, error) {
	payload := map[string]any{
		"model":       c.model,
		"messages":    messages,
		"temperature": params.Temperature,
	}
	if params.MaxTokens > 0 {
		payload["max_tokens"] = params.MaxTokens
	}
	if len(params.Stop) > 0 {
		payload["stop"] = params.Stop
	}
	if params.JSONMode {
		payload["response_format"] = map[string]string{"type": "json_object"}
	}

	var out string
	err := withRetry(ctx, c.sleep, func() error {
		var err error
		out, err = c.doChat(ctx, payload)
		return err
	})
	return out, err
}

func (c *chatClient) doChat(ctx context.Context, payload map[string]any) (string, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/chat/completions", c.base)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", apperr.Wrap(apperr.Timeout, "llm", err)
		}
		return "", apperr.Wrap(apperr.ProviderUnavailable, "llm", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if kerr := statusToErr("llm", resp.StatusCode, body); kerr != nil {
		return "", kerr
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", apperr.Wrap(apperr.ProviderUnavailable, "llm", err)
	}
	if len(parsed.Choices) == 0 {
		return "", apperr.New(apperr.ProviderUnavailable, "llm: respuesta sin choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// statusToErr HTTP 状态码到错误类型的映射
func statusToErr(stage string, code int, body []byte) error {
	switch {
	case code < 400:
		return nil
	case code == http.StatusTooManyRequests:
		return apperr.Newf(apperr.RateLimited, "%s: 429 (%s)", stage, truncBody(body))
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return apperr.Newf(apperr.Timeout, "%s: %d (%s)", stage, code, truncBody(body))
	case code == http.StatusBadRequest || code == http.StatusUnsupportedMediaType:
		return apperr.Newf(apperr.InvalidInput, "%s: %d (%s)", stage, code, truncBody(body))
	case code >= 500:
		return apperr.Newf(apperr.ProviderUnavailable, "%s: %d (%s)", stage, code, truncBody(body))
	default:
		return apperr.Newf(apperr.Internal, "%s: %d (%s)", stage, code, truncBody(body))
	}
}

func truncBody(body []byte) string {
	s := string(body)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
