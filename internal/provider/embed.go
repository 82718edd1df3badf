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

// EmbedConfig OpenAI 兼容 embeddings 端点配置
type EmbedConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	HTTPClient *http.Client
}

type embedClient struct {
	base   string
	apiKey string
	model  string
	dim    int
	client *http.Client
	sleep  sleepFunc
}

func NewEmbedClient(cfg EmbedConfig) Embedder {
	return &embedClient{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		dim:    cfg.Dimensions,
		client: pickHTTPClient(cfg.HTTPClient, 60*time.Second),
		sleep:  sleepCtx,
	}
}

func (c *embedClient) Dimension() int { return c.dim }

func (c *embedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	payload := map[string]any{
		"model": c.model,
		"input": text,
	}
	var out []float32
	err := withRetry(ctx, c.sleep, func() error {
		var err error
		out, err = c.doEmbed(ctx, payload)
		return err
	})
	return out, err
}

func (c *embedClient) doEmbed(ctx context.Context, payload map[string]any) ([]float32, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/embeddings", c.base)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperr.Wrap(apperr.Timeout, "embed", err)
		}
		return nil, apperr.Wrap(apperr.ProviderUnavailable, "embed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if kerr := statusToErr("embed", resp.StatusCode, body); kerr != nil {
		return nil, kerr
	}

	var parsed struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, apperr.Wrap(apperr.ProviderUnavailable, "embed", err)
	}
	if len(parsed.Data) == 0 {
		return nil, apperr.New(apperr.ProviderUnavailable, "embed: respuesta vacía")
	}
	vec := parsed.Data[0].Embedding
	if c.dim > 0 && len(vec) != c.dim {
		return nil, apperr.Newf(apperr.InvalidInput, "embed: dimensión %d, se esperaba %d", len(vec), c.dim)
	}
	return vec, nil
}
