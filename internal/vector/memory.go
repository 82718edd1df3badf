package vector

import (
	"context"
	"math"
	"sort"
	"sync"

	"MedSol-RAG/internal/apperr"
)

// MemoryIndex 内存向量库。语义与 Qdrant 实现一致，测试和单机模式用
type MemoryIndex struct {
	mu      sync.RWMutex
	dim     int
	modelID string
	entries map[string]Entry
}

func NewMemoryIndex(dim int, modelID string) *MemoryIndex {
	return &MemoryIndex{
		dim:     dim,
		modelID: modelID,
		entries: make(map[string]Entry),
	}
}

func (m *MemoryIndex) Upsert(_ context.Context, entry Entry) (string, error) {
	if len(entry.Embedding) != m.dim {
		return "", apperr.Wrap(apperr.InvalidInput, "vector", ErrDimensionMismatch)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.VectorID] = entry
	return entry.VectorID, nil
}

func (m *MemoryIndex) Delete(_ context.Context, vectorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, vectorID)
	return nil
}

func (m *MemoryIndex) DeleteBySource(_ context.Context, sourceKind, sourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		if e.SourceKind == sourceKind && e.SourceID == sourceID {
			delete(m.entries, id)
		}
	}
	return nil
}

func (m *MemoryIndex) Search(_ context.Context, queryVector []float32, k int, filters Filters, minScore float64) ([]SearchResult, error) {
	if len(queryVector) != m.dim {
		return nil, apperr.Wrap(apperr.InvalidInput, "vector", ErrDimensionMismatch)
	}
	if err := ValidateFilters(filters); err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, "vector", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []SearchResult
	for _, e := range m.entries {
		if !matchesFilters(e.Metadata, filters) {
			continue
		}
		score := CosineSimilarity(queryVector, e.Embedding)
		if score >= minScore {
			results = append(results, SearchResult{Entry: e, Score: score})
		}
	}

	SortResults(results)
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (m *MemoryIndex) SearchByField(_ context.Context, field, value string, strategy MatchStrategy, k int) ([]SearchResult, error) {
	if field != "patient_name" {
		return nil, apperr.Newf(apperr.InvalidInput, "búsqueda por campo no soportada: %s", field)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []SearchResult
	for _, e := range m.entries {
		if e.Metadata.PatientName == "" {
			continue
		}
		switch strategy {
		case MatchExact:
			if e.Metadata.PatientName == value {
				results = append(results, SearchResult{Entry: e, Score: 1.0})
			}
		case MatchFuzzy:
			if score := FuzzyNameScore(value, e.Metadata.PatientName); score >= FuzzyThreshold {
				results = append(results, SearchResult{Entry: e, Score: score})
			}
		}
	}

	SortResults(results)
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (m *MemoryIndex) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		Count:      int64(len(m.entries)),
		Dimensions: m.dim,
		ModelID:    m.modelID,
		Collection: "memory",
	}, nil
}

// CosineSimilarity 余弦相似度，零向量返回 0
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// SortResults 统一排序: score desc → date desc → source_id asc
func SortResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Metadata.Date != results[j].Metadata.Date {
			return results[i].Metadata.Date > results[j].Metadata.Date
		}
		return results[i].SourceID < results[j].SourceID
	})
}
