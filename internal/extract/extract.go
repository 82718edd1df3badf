package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"MedSol-RAG/internal/provider"
)

// 输入超过 4000 字符时在句子边界截断
const maxInputChars = 4000

// DocumentMetadata 文档级医疗元数据
type DocumentMetadata struct {
	PatientName  string   `json:"patient_name"`
	DocumentDate string   `json:"document_date"`
	DocumentType string   `json:"document_type"`
	Conditions   []string `json:"medical_conditions"`
	Medications  []string `json:"medications"`
	Procedures   []string `json:"medical_procedures"`
}

// Service LLM 驱动的信息提取服务
type Service struct {
	llm provider.LLM
}

func NewService(llm provider.LLM) *Service {
	return &Service{llm: llm}
}

// ExtractStructured 提取结构化字段 (nombre/edad/fecha/diagnostico/medico/medicamentos/telefono/email)。
// JSON 解析失败重试一次；二次失败返回空 map (软错误，不中断流水线)。
func (s *Service) ExtractStructured(ctx context.Context, text string) (map[string]any, error) {
	raw, err := s.extractJSON(ctx, structuredSystemPrompt, text)
	if err != nil {
		return map[string]any{}, err
	}
	if raw == nil {
		return map[string]any{}, nil
	}
	return validateStructured(raw), nil
}

// ExtractUnstructured 提取非结构化字段 (sintomas/contexto/observaciones/emociones/urgencia/...)
func (s *Service) ExtractUnstructured(ctx context.Context, text string) (map[string]any, error) {
	raw, err := s.extractJSON(ctx, unstructuredSystemPrompt, text)
	if err != nil {
		return map[string]any{}, err
	}
	if raw == nil {
		return map[string]any{}, nil
	}
	return validateUnstructured(raw), nil
}

// ExtractDocumentMetadata 文档元数据提取 (OCR 文本 → 病人/日期/类型/条件/药物/操作)
func (s *Service) ExtractDocumentMetadata(ctx context.Context, text string) (*DocumentMetadata, error) {
	prompt := fmt.Sprintf(documentUserPrompt, TruncateAtSentence(text, maxInputChars))
	raw, err := s.callAndParse(ctx, documentSystemPrompt, prompt, false)
	if err != nil {
		return &DocumentMetadata{}, err
	}
	if raw == nil {
		// 重试一次
		raw, err = s.callAndParse(ctx, documentSystemPrompt, prompt+"\n\n"+strictJSONReminder, true)
		if err != nil || raw == nil {
			log.Printf("⚠️ extracción de metadata de documento falló, devolviendo vacío")
			return &DocumentMetadata{}, err
		}
	}

	meta := &DocumentMetadata{
		PatientName:  asString(raw["patient_name"]),
		DocumentDate: asString(raw["document_date"]),
		DocumentType: asString(raw["document_type"]),
		Conditions:   asStringList(raw["medical_conditions"]),
		Medications:  asStringList(raw["medications"]),
		Procedures:   asStringList(raw["medical_procedures"]),
	}
	return meta, nil
}

// extractJSON 调用 LLM 并解析 JSON；解析失败带提醒重试一次，仍失败返回 nil
func (s *Service) extractJSON(ctx context.Context, systemPrompt, text string) (map[string]any, error) {
	userPrompt := "TRANSCRIPCIÓN A ANALIZAR:\n" + TruncateAtSentence(text, maxInputChars)

	raw, err := s.callAndParse(ctx, systemPrompt, userPrompt, false)
	if err != nil {
		return nil, err
	}
	if raw != nil {
		return raw, nil
	}

	// 2. 带提醒重试
	raw, err = s.callAndParse(ctx, systemPrompt, userPrompt+"\n\n"+strictJSONReminder, true)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		log.Printf("⚠️ LLM no devolvió JSON válido tras reintento, devolviendo mapa vacío")
	}
	return raw, nil
}

// callAndParse 一次 LLM 调用 + JSON 解析。解析失败返回 (nil, nil)
func (s *Service) callAndParse(ctx context.Context, systemPrompt, userPrompt string, isRetry bool) (map[string]any, error) {
	resp, err := s.llm.Complete(ctx, []provider.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}, provider.CompleteParams{
		Temperature: 0.2,
		MaxTokens:   1500,
		JSONMode:    true,
	})
	if err != nil {
		return nil, err
	}

	cleaned := stripCodeFence(resp)
	var parsed map[string]any
	if jerr := json.Unmarshal([]byte(cleaned), &parsed); jerr != nil {
		if !isRetry {
			log.Printf("⚠️ respuesta no es JSON válido, reintentando: %v", jerr)
		}
		return nil, nil
	}
	return parsed, nil
}

// stripCodeFence 某些模型喜欢包一层 ```json ... ```
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

// TruncateAtSentence 超长输入在句子边界截断
func TruncateAtSentence(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && (text[cut]&0xC0) == 0x80 {
		cut--
	}
	truncated := text[:cut]
	// 回退到最后一个句子结束符
	for i := len(truncated) - 1; i > max/2; i-- {
		switch truncated[i] {
		case '.', '!', '?':
			return truncated[:i+1]
		}
	}
	return truncated
}

// validateStructured 字段级校验，不合法的值静默丢弃
func validateStructured(data map[string]any) map[string]any {
	out := map[string]any{}
	if v := asString(data["nombre"]); v != "" {
		out["nombre"] = v
	}
	if age, ok := asInt(data["edad"]); ok && age >= 0 && age <= 150 {
		out["edad"] = age
	}
	if v := asString(data["fecha"]); v != "" {
		out["fecha"] = v
	}
	if v := asString(data["diagnostico"]); v != "" {
		out["diagnostico"] = v
	}
	if v := asString(data["medico"]); v != "" {
		out["medico"] = v
	}
	if meds := asStringList(data["medicamentos"]); len(meds) > 0 {
		out["medicamentos"] = meds
	}
	if v := asString(data["telefono"]); v != "" {
		out["telefono"] = v
	}
	if v := asString(data["email"]); v != "" && strings.Contains(v, "@") {
		out["email"] = v
	}
	return out
}

var validUrgency = map[string]bool{"baja": true, "media": true, "alta": true}

func validateUnstructured(data map[string]any) map[string]any {
	out := map[string]any{}
	if syms := asStringList(data["sintomas"]); len(syms) > 0 {
		out["sintomas"] = syms
	}
	if v := asString(data["contexto"]); v != "" {
		out["contexto"] = v
	}
	if v := asString(data["observaciones"]); v != "" {
		out["observaciones"] = v
	}
	if emo := asStringList(data["emociones"]); len(emo) > 0 {
		out["emociones"] = emo
	}
	if v := strings.ToLower(asString(data["urgencia"])); validUrgency[v] {
		out["urgencia"] = v
	}
	if rec := asStringList(data["recomendaciones"]); len(rec) > 0 {
		out["recomendaciones"] = rec
	}
	if pre := asStringList(data["preguntas"]); len(pre) > 0 {
		out["preguntas"] = pre
	}
	if res := asStringList(data["respuestas"]); len(res) > 0 {
		out["respuestas"] = res
	}
	return out
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		var i int
		if _, err := fmt.Sscanf(strings.TrimSpace(n), "%d", &i); err == nil {
			return i, true
		}
	}
	return 0, false
}

func asStringList(v any) []string {
	var out []string
	switch list := v.(type) {
	case []any:
		for _, item := range list {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case []string:
		for _, s := range list {
			if strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	}
	return out
}
