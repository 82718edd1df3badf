package vector

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestBuildPayloadTextOrder(t *testing.T) {
	structured := map[string]any{
		"nombre":       "Pepito Gómez",
		"diagnostico":  "diabetes tipo 2",
		"medicamentos": []any{"metformina", "insulina"},
	}
	unstructured := map[string]any{
		"sintomas": []any{"dolor de cabeza", "mareos"},
		"contexto": "consulta de seguimiento",
	}

	got := BuildPayloadText("texto de la conversación", structured, unstructured)

	// etiquetas en orden fijo: paciente, diagnóstico, medicamentos, síntomas, contexto
	labels := []string{"Paciente:", "Diagnóstico:", "Medicamentos:", "Síntomas:", "Contexto:"}
	lastIdx := -1
	for _, label := range labels {
		idx := strings.Index(got, label)
		if idx < 0 {
			t.Fatalf("falta la etiqueta %q en %q", label, got)
		}
		if idx < lastIdx {
			t.Fatalf("etiqueta %q fuera de orden", label)
		}
		lastIdx = idx
	}

	if !strings.HasPrefix(got, "texto de la conversación") {
		t.Fatal("el texto original debe ir primero")
	}
	if !strings.Contains(got, "metformina, insulina") {
		t.Fatal("medicamentos mal serializados")
	}
}

func TestBuildPayloadTextEmptyMaps(t *testing.T) {
	got := BuildPayloadText("solo texto", nil, nil)
	if got != "solo texto" {
		t.Fatalf("sin metadata = %q", got)
	}
}

func TestBuildPayloadTextDeterministic(t *testing.T) {
	structured := map[string]any{"nombre": "Ana", "diagnostico": "asma"}
	a := BuildPayloadText("t", structured, nil)
	b := BuildPayloadText("t", structured, nil)
	if a != b {
		t.Fatal("la serialización debe ser estable")
	}
}

func TestBuildPayloadTextTruncation(t *testing.T) {
	long := strings.Repeat("ñ", 9000) // 2 bytes por carácter
	got := BuildPayloadText(long, nil, nil)
	if len(got) > maxPayloadChars {
		t.Fatalf("longitud %d supera el máximo %d", len(got), maxPayloadChars)
	}
	if !utf8.ValidString(got) {
		t.Fatal("el truncado rompió un carácter UTF-8")
	}
}

func TestTruncateUTF8Boundary(t *testing.T) {
	s := "aáé"
	for max := 0; max <= len(s); max++ {
		if got := TruncateUTF8(s, max); !utf8.ValidString(got) {
			t.Fatalf("TruncateUTF8(%q, %d) = %q inválido", s, max, got)
		}
	}
}
