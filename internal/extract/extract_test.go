package extract

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"MedSol-RAG/internal/apperr"
	"MedSol-RAG/internal/provider"
)

// scriptedLLM devuelve respuestas en orden; agotadas repite la última
type scriptedLLM struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (s *scriptedLLM) Complete(_ context.Context, messages []provider.Message, _ provider.CompleteParams) (string, error) {
	s.calls++
	for _, m := range messages {
		s.prompts = append(s.prompts, m.Content)
	}
	if s.err != nil {
		return "", s.err
	}
	i := s.calls - 1
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}

func TestExtractStructured(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`{"nombre": "Pepito Gómez", "edad": 45, "diagnostico": "diabetes tipo 2", "medicamentos": ["metformina"], "email": "pepito@example.com"}`,
	}}
	svc := NewService(llm)

	got, err := svc.ExtractStructured(context.Background(), "transcripción de prueba")
	if err != nil {
		t.Fatal(err)
	}
	if got["nombre"] != "Pepito Gómez" {
		t.Fatalf("nombre = %v", got["nombre"])
	}
	if got["edad"] != 45 {
		t.Fatalf("edad = %v", got["edad"])
	}
	meds, ok := got["medicamentos"].([]string)
	if !ok || len(meds) != 1 || meds[0] != "metformina" {
		t.Fatalf("medicamentos = %v", got["medicamentos"])
	}
}

func TestExtractStructuredRetriesOnBadJSON(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		"esto no es JSON",
		`{"nombre": "Ana"}`,
	}}
	svc := NewService(llm)

	got, err := svc.ExtractStructured(context.Background(), "texto")
	if err != nil {
		t.Fatal(err)
	}
	if llm.calls != 2 {
		t.Fatalf("llamadas = %d, quiere 2 (un reintento)", llm.calls)
	}
	if got["nombre"] != "Ana" {
		t.Fatalf("nombre = %v", got["nombre"])
	}

	// el reintento lleva el recordatorio estricto
	found := false
	for _, p := range llm.prompts {
		if strings.Contains(p, "no fue JSON válido") {
			found = true
		}
	}
	if !found {
		t.Fatal("falta el recordatorio JSON en el reintento")
	}
}

func TestExtractStructuredEmptyOnDoubleFailure(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"basura", "más basura"}}
	svc := NewService(llm)

	got, err := svc.ExtractStructured(context.Background(), "texto")
	if err != nil {
		t.Fatal("fallo de parseo es un error blando, no debe propagarse")
	}
	if len(got) != 0 {
		t.Fatalf("mapa = %v, quiere vacío", got)
	}
	if llm.calls != 2 {
		t.Fatalf("llamadas = %d", llm.calls)
	}
}

func TestExtractStructuredProviderErrorPropagates(t *testing.T) {
	llm := &scriptedLLM{err: apperr.New(apperr.ProviderUnavailable, "caído")}
	svc := NewService(llm)

	_, err := svc.ExtractStructured(context.Background(), "texto")
	if apperr.KindOf(err) != apperr.ProviderUnavailable {
		t.Fatalf("kind = %s", apperr.KindOf(err))
	}
}

func TestValidateStructuredDropsInvalid(t *testing.T) {
	got := validateStructured(map[string]any{
		"nombre": "Luis",
		"edad":   float64(200), // fuera de [0,150]: se descarta en silencio
		"email":  "sin-arroba",
	})
	if _, ok := got["edad"]; ok {
		t.Fatal("edad fuera de rango debe descartarse")
	}
	if _, ok := got["email"]; ok {
		t.Fatal("email sin @ debe descartarse")
	}
	if got["nombre"] != "Luis" {
		t.Fatal("nombre válido debe conservarse")
	}
}

func TestExtractUnstructured(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`{"sintomas": ["dolor de cabeza", "mareos"], "urgencia": "ALTA", "contexto": "consulta general"}`,
	}}
	svc := NewService(llm)

	got, err := svc.ExtractUnstructured(context.Background(), "texto")
	if err != nil {
		t.Fatal(err)
	}
	syms, _ := got["sintomas"].([]string)
	if len(syms) != 2 || syms[0] != "dolor de cabeza" {
		t.Fatalf("sintomas = %v", got["sintomas"])
	}
	if got["urgencia"] != "alta" {
		t.Fatalf("urgencia = %v (debe normalizarse a minúsculas)", got["urgencia"])
	}
}

func TestExtractUnstructuredInvalidUrgency(t *testing.T) {
	llm := &scriptedLLM{responses: []string{`{"urgencia": "critica"}`}}
	svc := NewService(llm)

	got, _ := svc.ExtractUnstructured(context.Background(), "texto")
	if _, ok := got["urgencia"]; ok {
		t.Fatal("urgencia fuera del conjunto {baja,media,alta} debe descartarse")
	}
}

func TestExtractDocumentMetadata(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`{"patient_name": "Pepito Gómez", "document_type": "examen", "medical_conditions": ["diabetes"], "medications": ["metformina"]}`,
	}}
	svc := NewService(llm)

	meta, err := svc.ExtractDocumentMetadata(context.Background(), "Paciente: Pepito Gómez. Glucosa 180 mg/dL")
	if err != nil {
		t.Fatal(err)
	}
	if meta.PatientName != "Pepito Gómez" || meta.DocumentType != "examen" {
		t.Fatalf("metadata = %+v", meta)
	}
	if len(meta.Conditions) != 1 || meta.Conditions[0] != "diabetes" {
		t.Fatalf("conditions = %v", meta.Conditions)
	}
}

func TestStripCodeFence(t *testing.T) {
	in := "```json\n{\"a\": 1}\n```"
	if got := stripCodeFence(in); got != `{"a": 1}` {
		t.Fatalf("stripCodeFence = %q", got)
	}
}

func TestTruncateAtSentence(t *testing.T) {
	text := strings.Repeat("Esta es una frase. ", 400) // ~7600 caracteres
	got := TruncateAtSentence(text, 4000)
	if len(got) > 4000 {
		t.Fatalf("longitud = %d", len(got))
	}
	if !strings.HasSuffix(got, ".") {
		t.Fatalf("debe cortar en límite de frase, termina en %q", got[len(got)-10:])
	}

	short := "corto"
	if TruncateAtSentence(short, 4000) != short {
		t.Fatal("texto corto no debe tocarse")
	}
}

func TestRoundTripJSON(t *testing.T) {
	// el mapa validado debe sobrevivir una serialización ida y vuelta
	llm := &scriptedLLM{responses: []string{
		`{"nombre": "Ana", "diagnostico": "asma", "medicamentos": ["salbutamol"]}`,
	}}
	svc := NewService(llm)
	got, err := svc.ExtractStructured(context.Background(), "texto")
	if err != nil {
		t.Fatal(err)
	}

	encoded, err := json.Marshal(got)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["nombre"] != "Ana" || decoded["diagnostico"] != "asma" {
		t.Fatalf("round-trip alteró el mapa: %v", decoded)
	}
	meds, _ := decoded["medicamentos"].([]any)
	if len(meds) != 1 || meds[0] != "salbutamol" {
		t.Fatalf("medicamentos tras round-trip = %v", decoded["medicamentos"])
	}
}
