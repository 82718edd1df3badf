package vector

import (
	"context"
	"testing"

	"MedSol-RAG/internal/apperr"
)

func mkVec(dim int, vals ...float32) []float32 {
	v := make([]float32, dim)
	copy(v, vals)
	return v
}

func TestMemoryUpsertReplaces(t *testing.T) {
	idx := NewMemoryIndex(3, "test-model")
	ctx := context.Background()

	entry := Entry{VectorID: "v1", SourceKind: SourceRecording, SourceID: "r1", Embedding: mkVec(3, 1)}
	if _, err := idx.Upsert(ctx, entry); err != nil {
		t.Fatal(err)
	}
	entry.PayloadText = "actualizado"
	if _, err := idx.Upsert(ctx, entry); err != nil {
		t.Fatal(err)
	}

	stats, _ := idx.Stats(ctx)
	if stats.Count != 1 {
		t.Fatalf("count = %d, quiere 1 (upsert debe reemplazar)", stats.Count)
	}
}

func TestMemoryDimensionMismatch(t *testing.T) {
	idx := NewMemoryIndex(3, "test-model")
	ctx := context.Background()

	_, err := idx.Upsert(ctx, Entry{VectorID: "v1", Embedding: []float32{1, 2}})
	if err == nil {
		t.Fatal("dimensión incorrecta debe fallar")
	}
	if apperr.KindOf(err) != apperr.InvalidInput {
		t.Fatalf("kind = %s", apperr.KindOf(err))
	}

	if _, err := idx.Search(ctx, []float32{1}, 5, nil, 0); err == nil {
		t.Fatal("búsqueda con dimensión incorrecta debe fallar")
	}
}

func TestMemorySearchOrderingAndThreshold(t *testing.T) {
	idx := NewMemoryIndex(2, "test-model")
	ctx := context.Background()

	// a apunta igual que la consulta, b parcialmente, c ortogonal
	idx.Upsert(ctx, Entry{VectorID: "a", SourceID: "a", Embedding: []float32{1, 0}})
	idx.Upsert(ctx, Entry{VectorID: "b", SourceID: "b", Embedding: []float32{1, 1}})
	idx.Upsert(ctx, Entry{VectorID: "c", SourceID: "c", Embedding: []float32{0, 1}})

	results, err := idx.Search(ctx, []float32{1, 0}, 10, nil, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("resultados = %d, quiere 2 (c queda bajo el umbral)", len(results))
	}
	if results[0].VectorID != "a" || results[1].VectorID != "b" {
		t.Fatalf("orden incorrecto: %s, %s", results[0].VectorID, results[1].VectorID)
	}
	if results[0].Score <= results[1].Score {
		t.Fatal("los scores deben ser descendentes")
	}
}

func TestMemorySearchTieBreak(t *testing.T) {
	idx := NewMemoryIndex(2, "test-model")
	ctx := context.Background()

	// mismos vectores → mismo score; desempate por fecha desc y luego source_id asc
	idx.Upsert(ctx, Entry{VectorID: "v1", SourceID: "zzz", Embedding: []float32{1, 0}, Metadata: Metadata{Date: "2025-01-02"}})
	idx.Upsert(ctx, Entry{VectorID: "v2", SourceID: "aaa", Embedding: []float32{1, 0}, Metadata: Metadata{Date: "2025-01-01"}})
	idx.Upsert(ctx, Entry{VectorID: "v3", SourceID: "bbb", Embedding: []float32{1, 0}, Metadata: Metadata{Date: "2025-01-01"}})

	results, err := idx.Search(ctx, []float32{1, 0}, 10, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"zzz", "aaa", "bbb"}
	for i, w := range want {
		if results[i].SourceID != w {
			t.Fatalf("posición %d = %s, quiere %s", i, results[i].SourceID, w)
		}
	}
}

func TestMemorySearchFilters(t *testing.T) {
	idx := NewMemoryIndex(2, "test-model")
	ctx := context.Background()

	idx.Upsert(ctx, Entry{VectorID: "v1", SourceID: "r1", Embedding: []float32{1, 0}, Metadata: Metadata{PatientName: "Ana"}})
	idx.Upsert(ctx, Entry{VectorID: "v2", SourceID: "r2", Embedding: []float32{1, 0}, Metadata: Metadata{PatientName: "Luis"}})

	results, err := idx.Search(ctx, []float32{1, 0}, 10, Filters{"patient_name": "Ana"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Metadata.PatientName != "Ana" {
		t.Fatalf("filtro no aplicado: %+v", results)
	}

	// clave fuera del conjunto cerrado
	if _, err := idx.Search(ctx, []float32{1, 0}, 10, Filters{"invented": "x"}, 0); err == nil {
		t.Fatal("clave de filtro desconocida debe fallar")
	}
}

func TestMemoryDeleteBySource(t *testing.T) {
	idx := NewMemoryIndex(2, "test-model")
	ctx := context.Background()

	idx.Upsert(ctx, Entry{VectorID: "v1", SourceKind: SourceRecording, SourceID: "r1", Embedding: []float32{1, 0}})
	idx.Upsert(ctx, Entry{VectorID: "v2", SourceKind: SourceDocument, SourceID: "d1", Embedding: []float32{1, 0}})

	if err := idx.DeleteBySource(ctx, SourceRecording, "r1"); err != nil {
		t.Fatal(err)
	}
	stats, _ := idx.Stats(ctx)
	if stats.Count != 1 {
		t.Fatalf("count = %d tras borrar por origen", stats.Count)
	}
}

func TestMemorySearchByFieldFuzzy(t *testing.T) {
	idx := NewMemoryIndex(2, "test-model")
	ctx := context.Background()

	idx.Upsert(ctx, Entry{VectorID: "v1", SourceID: "r1", Embedding: []float32{1, 0}, Metadata: Metadata{PatientName: "Pepito Gómez"}})
	idx.Upsert(ctx, Entry{VectorID: "v2", SourceID: "r2", Embedding: []float32{1, 0}, Metadata: Metadata{PatientName: "Ana Martínez"}})

	results, err := idx.SearchByField(ctx, "patient_name", "pepito gomez", MatchFuzzy, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Metadata.PatientName != "Pepito Gómez" {
		t.Fatalf("fuzzy no encontró al paciente: %+v", results)
	}
	if results[0].Score != 1.0 {
		t.Fatalf("score = %f, quiere 1.0 (exacto tras normalizar)", results[0].Score)
	}

	if _, err := idx.SearchByField(ctx, "diagnosis", "x", MatchExact, 10); err == nil {
		t.Fatal("solo patient_name está soportado")
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 0}, []float32{1, 0}); got < 0.999 {
		t.Fatalf("idénticos = %f", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Fatalf("ortogonales = %f", got)
	}
	if got := CosineSimilarity([]float32{0, 0}, []float32{1, 0}); got != 0 {
		t.Fatalf("vector cero = %f", got)
	}
}
