package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"MedSol-RAG/internal/apperr"
)

// ASRConfig Whisper 兼容 audio/transcriptions 端点配置
type ASRConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

type whisperClient struct {
	base   string
	apiKey string
	model  string
	client *http.Client
	sleep  sleepFunc
}

func NewWhisperClient(cfg ASRConfig) ASR {
	return &whisperClient{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		// ASR 是最慢的外部调用，HTTP 超时放宽，截止时间由调用方 context 控制
		client: pickHTTPClient(cfg.HTTPClient, 10*time.Minute),
		sleep:  sleepCtx,
	}
}

// MedicalPrompt 医疗对话上下文提示，提高专业词汇的转写准确率
const MedicalPrompt = "Esta es una conversación médica entre un promotor de salud y un paciente. " +
	"Puede incluir nombres, edades, síntomas, diagnósticos y medicamentos."

func (c *whisperClient) Transcribe(ctx context.Context, audio []byte, hints TranscribeHints) (*TranscribeResult, error) {
	var out *TranscribeResult
	err := withRetry(ctx, c.sleep, func() error {
		var err error
		out, err = c.doTranscribe(ctx, audio, hints)
		return err
	})
	return out, err
}

func (c *whisperClient) doTranscribe(ctx context.Context, audio []byte, hints TranscribeHints) (*TranscribeResult, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(audio); err != nil {
		return nil, err
	}
	_ = w.WriteField("model", c.model)
	_ = w.WriteField("response_format", "verbose_json")
	if hints.Language != "" {
		_ = w.WriteField("language", hints.Language)
	}
	prompt := hints.Prompt
	if prompt == "" {
		prompt = MedicalPrompt
	}
	_ = w.WriteField("prompt", prompt)
	if err := w.Close(); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/audio/transcriptions", c.base)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperr.Wrap(apperr.Timeout, "asr", err)
		}
		return nil, apperr.Wrap(apperr.ProviderUnavailable, "asr", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnsupportedMediaType {
		return nil, apperr.Newf(apperr.InvalidMedia, "asr: %d (%s)", resp.StatusCode, truncBody(body))
	}
	if kerr := statusToErr("asr", resp.StatusCode, body); kerr != nil {
		return nil, kerr
	}

	var parsed struct {
		Text     string  `json:"text"`
		Language string  `json:"language"`
		Duration float64 `json:"duration"`
		Segments []struct {
			Start      float64 `json:"start"`
			End        float64 `json:"end"`
			Text       string  `json:"text"`
			AvgLogProb float64 `json:"avg_logprob"`
		} `json:"segments"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, apperr.Wrap(apperr.ProviderUnavailable, "asr", err)
	}

	result := &TranscribeResult{
		Text:      strings.TrimSpace(parsed.Text),
		Language:  parsed.Language,
		DurationS: parsed.Duration,
	}
	for _, s := range parsed.Segments {
		result.Segments = append(result.Segments, ASRSegment{
			Start:      s.Start,
			End:        s.End,
			Text:       strings.TrimSpace(s.Text),
			AvgLogProb: s.AvgLogProb,
		})
	}
	if result.DurationS == 0 && len(result.Segments) > 0 {
		result.DurationS = result.Segments[len(result.Segments)-1].End
	}
	result.Confidence = confidenceFromSegments(result.Segments, result.Text)
	return result, nil
}

// confidenceFromSegments 段落平均概率 → [0,1]；没有段落信息时用文本启发式
func confidenceFromSegments(segments []ASRSegment, text string) float64 {
	if len(segments) > 0 {
		sum := 0.0
		n := 0
		for _, s := range segments {
			if s.AvgLogProb != 0 {
				p := math.Exp2(s.AvgLogProb)
				if p > 1 {
					p = 1
				}
				sum += p
				n++
			}
		}
		if n > 0 {
			return sum / float64(n)
		}
	}

	// 启发式: 文本太短或带有明显的转写问题则降低置信度
	words := strings.Fields(text)
	if len(words) < 3 {
		return 0.2
	}
	conf := 0.8
	if strings.Contains(strings.ToLower(text), "[inaudible]") {
		conf -= 0.3
	}
	if strings.Contains(text, "...") {
		conf -= 0.1
	}
	if conf < 0.1 {
		conf = 0.1
	}
	return conf
}
