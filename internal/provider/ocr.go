package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"MedSol-RAG/internal/apperr"

	"github.com/ledongthuc/pdf"
)

// OCRConfig 文档提取配置。PDF 在本地解析，图片走 Tesseract HTTP sidecar
type OCRConfig struct {
	BaseURL    string // sidecar 地址，仅图片 OCR 需要
	HTTPClient *http.Client
}

type ocrClient struct {
	base   string
	client *http.Client
}

func NewOCRClient(cfg OCRConfig) OCR {
	return &ocrClient{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		client: pickHTTPClient(cfg.HTTPClient, 3*time.Minute),
	}
}

// ExtractPdf 本地 PDF 文本提取，超过 maxPages 的部分直接跳过 (不报错)
func (c *ocrClient) ExtractPdf(_ context.Context, data []byte, maxPages int) (*PdfResult, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidMedia, "ocr", err)
	}

	total := reader.NumPage()
	pages := total
	if maxPages > 0 && pages > maxPages {
		pages = maxPages
	}

	var sb strings.Builder
	for i := 1; i <= pages; i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			// 单页失败不终止整个文档
			continue
		}
		if strings.TrimSpace(text) != "" {
			fmt.Fprintf(&sb, "\n--- Página %d ---\n%s\n", i, text)
		}
	}

	return &PdfResult{
		Text:      cleanExtractedText(sb.String()),
		PageCount: total,
	}, nil
}

// ExtractImage 图片 OCR，委托给 Tesseract sidecar
func (c *ocrClient) ExtractImage(ctx context.Context, data []byte, lang string) (*ImageResult, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", "image.png")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if lang != "" {
		_ = w.WriteField("lang", lang)
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/ocr", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperr.Wrap(apperr.Timeout, "ocr", err)
		}
		return nil, apperr.Wrap(apperr.ProviderUnavailable, "ocr", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnsupportedMediaType {
		return nil, apperr.Newf(apperr.InvalidMedia, "ocr: %d (%s)", resp.StatusCode, truncBody(body))
	}
	if kerr := statusToErr("ocr", resp.StatusCode, body); kerr != nil {
		return nil, kerr
	}

	var parsed struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, apperr.Wrap(apperr.ProviderUnavailable, "ocr", err)
	}
	if parsed.Confidence > 1 {
		// sidecar 返回 0-100 的百分比时归一化
		parsed.Confidence = parsed.Confidence / 100.0
	}
	return &ImageResult{
		Text:       cleanExtractedText(parsed.Text),
		Confidence: parsed.Confidence,
	}, nil
}

// cleanExtractedText 去掉 OCR 噪音行并限制总长度
func cleanExtractedText(text string) string {
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	var meaningful []string
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if len(line) > 3 {
			meaningful = append(meaningful, line)
		}
	}
	result := strings.Join(meaningful, "\n")

	const maxLength = 50000
	if len(result) > maxLength {
		cut := maxLength
		for cut > 0 && !isUTF8Boundary(result, cut) {
			cut--
		}
		result = result[:cut] + "... [texto truncado]"
	}
	return result
}

func isUTF8Boundary(s string, i int) bool {
	return i == 0 || i == len(s) || (s[i]&0xC0) != 0x80
}
