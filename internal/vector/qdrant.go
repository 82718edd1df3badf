package vector

import (
	"context"
	"log"

	"MedSol-RAG/internal/apperr"

	qdrant "github.com/qdrant/go-client/qdrant"
)

// QdrantIndex Qdrant 实现
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dim        int
	modelID    string
}

func NewQdrantIndex(client *qdrant.Client, collection string, dim int, modelID string) *QdrantIndex {
	return &QdrantIndex{
		client:     client,
		collection: collection,
		dim:        dim,
		modelID:    modelID,
	}
}

// EnsureCollection 集合不存在则创建 (首次写入前调用)
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	collections, err := q.client.ListCollections(ctx)
	if err != nil {
		return apperr.Wrap(apperr.ProviderUnavailable, "vector", err)
	}
	for _, c := range collections {
		if c == q.collection {
			return nil
		}
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return apperr.Wrap(apperr.ProviderUnavailable, "vector", err)
	}
	log.Printf("🎉 Qdrant Collection '%s' 创建成功 (dim=%d)", q.collection, q.dim)
	return nil
}

func (q *QdrantIndex) Upsert(ctx context.Context, entry Entry) (string, error) {
	if len(entry.Embedding) != q.dim {
		return "", apperr.Wrap(apperr.InvalidInput, "vector", ErrDimensionMismatch)
	}
	if err := q.EnsureCollection(ctx); err != nil {
		return "", err
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewIDUUID(entry.VectorID),
				Vectors: qdrant.NewVectors(entry.Embedding...),
				Payload: qdrant.NewValueMap(payloadMap(entry)),
			},
		},
	})
	if err != nil {
		return "", apperr.Wrap(apperr.ProviderUnavailable, "vector", err)
	}
	return entry.VectorID, nil
}

func (q *QdrantIndex) Delete(ctx context.Context, vectorID string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(vectorID)),
	})
	if err != nil {
		return apperr.Wrap(apperr.ProviderUnavailable, "vector", err)
	}
	return nil
}

func (q *QdrantIndex) DeleteBySource(ctx context.Context, sourceKind, sourceID string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("source_kind", sourceKind),
				qdrant.NewMatch("source_id", sourceID),
			},
		}),
	})
	if err != nil {
		return apperr.Wrap(apperr.ProviderUnavailable, "vector", err)
	}
	return nil
}

func (q *QdrantIndex) Search(ctx context.Context, queryVector []float32, k int, filters Filters, minScore float64) ([]SearchResult, error) {
	if len(queryVector) != q.dim {
		return nil, apperr.Wrap(apperr.InvalidInput, "vector", ErrDimensionMismatch)
	}
	if err := ValidateFilters(filters); err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, "vector", err)
	}

	limit := uint64(k)
	threshold := float32(minScore)

	query := &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(queryVector...),
		Limit:          &limit,
		ScoreThreshold: &threshold,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(filters) > 0 {
		var must []*qdrant.Condition
		for field, value := range filters {
			must = append(must, qdrant.NewMatch(field, value))
		}
		query.Filter = &qdrant.Filter{Must: must}
	}

	points, err := q.client.Query(ctx, query)
	if err != nil {
		return nil, apperr.Wrap(apperr.ProviderUnavailable, "vector", err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, p := range points {
		results = append(results, SearchResult{
			Entry: entryFromPayload(p.Id.GetUuid(), p.Payload),
			Score: float64(p.Score),
		})
	}
	// Qdrant 只保证 score 排序，这里补上稳定的并列打破规则
	SortResults(results)
	return results, nil
}

func (q *QdrantIndex) SearchByField(ctx context.Context, field, value string, strategy MatchStrategy, k int) ([]SearchResult, error) {
	if field != "patient_name" {
		return nil, apperr.Newf(apperr.InvalidInput, "búsqueda por campo no soportada: %s", field)
	}

	if strategy == MatchExact {
		limit := uint32(k)
		points, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: q.collection,
			Filter: &qdrant.Filter{
				Must: []*qdrant.Condition{qdrant.NewMatch("patient_name", value)},
			},
			Limit:       &limit,
			WithPayload: qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, apperr.Wrap(apperr.ProviderUnavailable, "vector", err)
		}
		var results []SearchResult
		for _, p := range points {
			results = append(results, SearchResult{
				Entry: entryFromPayload(p.Id.GetUuid(), p.Payload),
				Score: 1.0,
			})
		}
		SortResults(results)
		return results, nil
	}

	// Fuzzy: 分页扫描带 patient_name 的点，在客户端打分
	var results []SearchResult
	var offset *qdrant.PointId
	pageSize := uint32(256)
	for {
		points, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: q.collection,
			Limit:          &pageSize,
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, apperr.Wrap(apperr.ProviderUnavailable, "vector", err)
		}
		if len(points) == 0 {
			break
		}
		for _, p := range points {
			entry := entryFromPayload(p.Id.GetUuid(), p.Payload)
			if entry.Metadata.PatientName == "" {
				continue
			}
			if score := FuzzyNameScore(value, entry.Metadata.PatientName); score >= FuzzyThreshold {
				results = append(results, SearchResult{Entry: entry, Score: score})
			}
		}
		if len(points) < int(pageSize) {
			break
		}
		offset = points[len(points)-1].Id
	}

	SortResults(results)
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (q *QdrantIndex) Stats(ctx context.Context) (Stats, error) {
	count, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
	})
	if err != nil {
		return Stats{}, apperr.Wrap(apperr.ProviderUnavailable, "vector", err)
	}
	return Stats{
		Count:      int64(count),
		Dimensions: q.dim,
		ModelID:    q.modelID,
		Collection: q.collection,
	}, nil
}

func payloadMap(entry Entry) map[string]any {
	m := map[string]any{
		"source_kind":  entry.SourceKind,
		"source_id":    entry.SourceID,
		"payload_text": entry.PayloadText,
	}
	meta := entry.Metadata
	if meta.PatientName != "" {
		m["patient_name"] = meta.PatientName
	}
	if meta.Diagnosis != "" {
		m["diagnosis"] = meta.Diagnosis
	}
	if meta.Symptoms != "" {
		m["symptoms"] = meta.Symptoms
	}
	if meta.Conditions != "" {
		m["conditions"] = meta.Conditions
	}
	if meta.Date != "" {
		m["date"] = meta.Date
	}
	if meta.SpeakerMix != "" {
		m["speaker_mix"] = meta.SpeakerMix
	}
	if meta.DocType != "" {
		m["doc_type"] = meta.DocType
	}
	if meta.Urgency != "" {
		m["urgency"] = meta.Urgency
	}
	return m
}

func entryFromPayload(id string, payload map[string]*qdrant.Value) Entry {
	get := func(key string) string {
		if v, ok := payload[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	return Entry{
		VectorID:    id,
		SourceKind:  get("source_kind"),
		SourceID:    get("source_id"),
		PayloadText: get("payload_text"),
		Metadata: Metadata{
			PatientName: get("patient_name"),
			Diagnosis:   get("diagnosis"),
			Symptoms:    get("symptoms"),
			Conditions:  get("conditions"),
			Date:        get("date"),
			SpeakerMix:  get("speaker_mix"),
			DocType:     get("doc_type"),
			Urgency:     get("urgency"),
		},
	}
}
