package vector

import (
	"fmt"
	"strings"
)

// 组合文本的上限，留有余量避免超出 embedding 模型窗口
const maxPayloadChars = 8000

// BuildPayloadText 构造用于 embedding 的组合文本：
// 原始文本 + 医疗元数据的稳定序列化 (标签顺序固定: 病人、诊断、药物、症状、上下文)。
// 超长时在 UTF-8 边界截断。
func BuildPayloadText(text string, structured, unstructured map[string]any) string {
	parts := []string{text}

	if structured != nil {
		if v := stringField(structured, "nombre"); v != "" {
			parts = append(parts, fmt.Sprintf("Paciente: %s", v))
		}
		if v := stringField(structured, "diagnostico"); v != "" {
			parts = append(parts, fmt.Sprintf("Diagnóstico: %s", v))
		}
		if meds := stringList(structured, "medicamentos"); len(meds) > 0 {
			parts = append(parts, fmt.Sprintf("Medicamentos: %s", strings.Join(meds, ", ")))
		}
	}

	if unstructured != nil {
		if syms := stringList(unstructured, "sintomas"); len(syms) > 0 {
			parts = append(parts, fmt.Sprintf("Síntomas: %s", strings.Join(syms, ", ")))
		}
		if v := stringField(unstructured, "contexto"); v != "" {
			parts = append(parts, fmt.Sprintf("Contexto: %s", v))
		}
	}

	combined := strings.Join(parts, " | ")
	return TruncateUTF8(combined, maxPayloadChars)
}

// BuildDocumentPayloadText 文档版组合文本 (OCR 文本 + 病人/类型/条件/药物)
func BuildDocumentPayloadText(text, patientName, docType string, conditions, medications []string) string {
	parts := []string{text}
	if strings.TrimSpace(patientName) != "" {
		parts = append(parts, fmt.Sprintf("Paciente: %s", patientName))
	}
	if strings.TrimSpace(docType) != "" {
		parts = append(parts, fmt.Sprintf("Tipo de documento: %s", docType))
	}
	if len(conditions) > 0 {
		parts = append(parts, fmt.Sprintf("Condiciones: %s", strings.Join(conditions, ", ")))
	}
	if len(medications) > 0 {
		parts = append(parts, fmt.Sprintf("Medicamentos: %s", strings.Join(medications, ", ")))
	}
	return TruncateUTF8(strings.Join(parts, " | "), maxPayloadChars)
}

// TruncateUTF8 在 UTF-8 字符边界截断
func TruncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && (s[cut]&0xC0) == 0x80 {
		cut--
	}
	return s[:cut]
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func stringList(m map[string]any, key string) []string {
	var out []string
	switch v := m[key].(type) {
	case []string:
		out = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
