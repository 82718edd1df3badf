package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"MedSol-RAG/internal/dto"
	"MedSol-RAG/internal/provider"
	"MedSol-RAG/internal/vector"
)

// cannedLLM respuesta fija, registra el último prompt
type cannedLLM struct {
	answer     string
	err        error
	lastPrompt string
}

func (c *cannedLLM) Complete(_ context.Context, messages []provider.Message, _ provider.CompleteParams) (string, error) {
	if len(messages) > 0 {
		c.lastPrompt = messages[len(messages)-1].Content
	}
	return c.answer, c.err
}

func newChatService(idx vector.Index, llm provider.LLM) *ChatService {
	return NewChatService(NewQueryAnalyzer(), NewRetriever(idx, fakeEmbedder{}), llm, 5*time.Second, 5)
}

func TestChatFallbackOnEmptyIndex(t *testing.T) {
	idx := vector.NewMemoryIndex(4, "test-model")
	svc := newChatService(idx, &cannedLLM{answer: "no debería llamarse"})

	resp, err := svc.Chat(context.Background(), dto.ChatReq{Query: "¿Qué enfermedad tiene Pepito Gómez?"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Answer != FallbackAnswer {
		t.Fatalf("respuesta = %q", resp.Answer)
	}
	if resp.Confidence > 0.3 {
		t.Fatalf("confianza = %f, debe ser <= 0.3 sin contexto", resp.Confidence)
	}
	if len(resp.Sources) != 0 {
		t.Fatalf("fuentes = %d, quiere 0", len(resp.Sources))
	}
	if resp.Intent != string(IntentPatientInfo) {
		t.Fatalf("intent = %s", resp.Intent)
	}
}

func TestChatPatientInfoScenario(t *testing.T) {
	idx := seedIndex(t)
	llm := &cannedLLM{answer: "Pepito Gómez tiene diagnóstico de diabetes tipo 2 y reportó dolor de cabeza."}
	svc := newChatService(idx, llm)

	resp, err := svc.Chat(context.Background(), dto.ChatReq{Query: "¿Qué enfermedad tiene Pepito Gómez?"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Intent != string(IntentPatientInfo) {
		t.Fatalf("intent = %s", resp.Intent)
	}
	if !strings.Contains(resp.Answer, "Pepito") || !strings.Contains(resp.Answer, "diabetes") {
		t.Fatalf("respuesta = %q", resp.Answer)
	}
	// el vocabulario médico dispara el descargo de responsabilidad
	if !strings.Contains(resp.Answer, "profesional de la salud") {
		t.Fatal("falta el descargo médico")
	}
	if resp.Confidence < 0.6 {
		t.Fatalf("confianza = %f, quiere >= 0.6", resp.Confidence)
	}
	if len(resp.Sources) == 0 {
		t.Fatal("sin fuentes")
	}
	for _, src := range resp.Sources {
		if src.PatientName != "Pepito Gómez" {
			t.Fatalf("fuente de otro paciente: %s", src.PatientName)
		}
	}
	// el prompt lleva el contexto recuperado, no inventado
	if !strings.Contains(llm.lastPrompt, "Pepito Gómez") {
		t.Fatal("el contexto no llegó al prompt")
	}
}

func TestChatConditionListDistinctPatients(t *testing.T) {
	idx := seedIndex(t)
	llm := &cannedLLM{answer: "Pacientes con diabetes: Pepito Gómez y Ana Martínez. Total: 2."}
	svc := newChatService(idx, llm)

	resp, err := svc.Chat(context.Background(), dto.ChatReq{Query: "Listame los pacientes con diabetes"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Intent != string(IntentConditionList) {
		t.Fatalf("intent = %s", resp.Intent)
	}

	seen := map[string]bool{}
	for _, src := range resp.Sources {
		if seen[src.PatientName] {
			t.Fatalf("paciente duplicado en fuentes: %s", src.PatientName)
		}
		seen[src.PatientName] = true
	}
	if len(seen) != 2 {
		t.Fatalf("pacientes únicos = %d", len(seen))
	}
}

func TestChatEmptyLLMAnswerFallsBack(t *testing.T) {
	idx := seedIndex(t)
	svc := newChatService(idx, &cannedLLM{answer: "   "})

	resp, err := svc.Chat(context.Background(), dto.ChatReq{Query: "¿Qué enfermedad tiene Pepito Gómez?"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Answer != FallbackAnswer {
		t.Fatalf("respuesta vacía debe degradar al mensaje fijo: %q", resp.Answer)
	}
}

func TestChatExcludesSourcesWhenAsked(t *testing.T) {
	idx := seedIndex(t)
	svc := newChatService(idx, &cannedLLM{answer: "respuesta"})

	no := false
	resp, err := svc.Chat(context.Background(), dto.ChatReq{Query: "¿Qué enfermedad tiene Pepito Gómez?", IncludeSources: &no})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Sources) != 0 {
		t.Fatal("include_sources=false debe omitir fuentes")
	}
}

func TestChatRejectsUnknownFilterKeys(t *testing.T) {
	idx := seedIndex(t)
	svc := newChatService(idx, &cannedLLM{answer: "x"})

	_, err := svc.Chat(context.Background(), dto.ChatReq{
		Query:   "algo general",
		Filters: map[string]string{"inventado": "x"},
	})
	if err == nil {
		t.Fatal("clave de filtro fuera del conjunto cerrado debe fallar")
	}
}

func TestValidateAnswerTruncates(t *testing.T) {
	long := strings.Repeat("respuesta médica sobre diagnóstico ", 100)
	got := validateAnswer(long)
	// 2000 + elipsis + descargo
	if len(got) > maxAnswerChars+len(medicalDisclaimer)+10 {
		t.Fatalf("longitud = %d", len(got))
	}
	if !strings.Contains(got, "profesional de la salud") {
		t.Fatal("falta el descargo")
	}
}

func TestFollowUpSuggestions(t *testing.T) {
	plan := &QueryPlan{Intent: IntentPatientInfo, Entities: Entities{Patients: []string{"Ana"}}}
	got := followUpSuggestions(plan)
	if len(got) != 3 {
		t.Fatalf("sugerencias = %d", len(got))
	}
	for _, s := range got {
		if !strings.Contains(s, "Ana") {
			t.Errorf("sugerencia sin parametrizar: %q", s)
		}
	}

	generic := followUpSuggestions(&QueryPlan{Intent: IntentGeneralQuery})
	if len(generic) != 3 {
		t.Fatalf("sugerencias genéricas = %d", len(generic))
	}
}

func TestChatDeterministicWithFixedFakes(t *testing.T) {
	idx := seedIndex(t)
	llm := &cannedLLM{answer: "Respuesta fija sobre diabetes."}
	svc := newChatService(idx, llm)

	req := dto.ChatReq{Query: "¿Qué enfermedad tiene Pepito Gómez?"}
	a, err := svc.Chat(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	b, err := svc.Chat(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if a.Answer != b.Answer || a.Confidence != b.Confidence || len(a.Sources) != len(b.Sources) {
		t.Fatal("recuperar+generar debe ser determinista con fakes fijos")
	}
}
