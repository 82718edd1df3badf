package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"MedSol-RAG/internal/apperr"
	"MedSol-RAG/internal/conf"
	"MedSol-RAG/internal/data"
	"MedSol-RAG/internal/diarize"
	"MedSol-RAG/internal/dto"
	"MedSol-RAG/internal/extract"
	"MedSol-RAG/internal/model"
	"MedSol-RAG/internal/provider"
	"MedSol-RAG/internal/repository"
	"MedSol-RAG/internal/vector"
)

// 文档关联录音的模糊匹配阈值
const linkThreshold = 0.85

// IngestService 摄取编排器 (C6)。
// 每条记录由单个 worker 串行推进，阶段之间用 CAS 状态转移持久化。
type IngestService struct {
	recordings repository.RecordingRepository
	documents  repository.DocumentRepository
	objects    data.ObjectStore
	queue      data.TaskQueue

	asr       provider.ASR
	ocr       provider.OCR
	embedder  provider.Embedder
	extractor *extract.Service
	diarizer  *diarize.Service
	index     vector.Index

	cfg *conf.Config
}

func NewIngestService(
	recordings repository.RecordingRepository,
	documents repository.DocumentRepository,
	objects data.ObjectStore,
	queue data.TaskQueue,
	asr provider.ASR,
	ocr provider.OCR,
	embedder provider.Embedder,
	extractor *extract.Service,
	diarizer *diarize.Service,
	index vector.Index,
	cfg *conf.Config,
) *IngestService {
	return &IngestService{
		recordings: recordings,
		documents:  documents,
		objects:    objects,
		queue:      queue,
		asr:        asr,
		ocr:        ocr,
		embedder:   embedder,
		extractor:  extractor,
		diarizer:   diarizer,
		index:      index,
		cfg:        cfg,
	}
}

// =================================================================================
// 1. 提交 (façade)
// =================================================================================

// SubmitAudio 校验 → 落库 → 存对象 → 入队。队列满返回 Busy
func (s *IngestService) SubmitAudio(ctx context.Context, filename string, size int64, r io.Reader) (*model.Recording, error) {
	// 1. 基本校验
	ext := strings.ToLower(filepath.Ext(filename))
	if size <= 0 {
		return nil, apperr.New(apperr.InvalidMedia, "archivo de audio vacío")
	}
	if size > s.cfg.Pipeline.AudioMaxBytes {
		return nil, apperr.Newf(apperr.InvalidMedia, "archivo demasiado grande (%d bytes, máximo %d)", size, s.cfg.Pipeline.AudioMaxBytes)
	}
	if ext != ".wav" && ext != ".mp3" {
		return nil, apperr.Newf(apperr.InvalidMedia, "extensión '%s' no permitida (wav, mp3)", ext)
	}

	payload, err := io.ReadAll(io.LimitReader(r, s.cfg.Pipeline.AudioMaxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(payload)) != size {
		size = int64(len(payload))
	}
	if size == 0 {
		return nil, apperr.New(apperr.InvalidMedia, "archivo de audio vacío")
	}
	if size > s.cfg.Pipeline.AudioMaxBytes {
		return nil, apperr.New(apperr.InvalidMedia, "archivo demasiado grande")
	}

	// 2. magic bytes (RIFF/WAVE o ID3/MP3 frame sync)
	if !sniffAudio(payload) {
		return nil, apperr.New(apperr.InvalidMedia, "formato de audio inválido")
	}

	// 3. 落库
	rec := &model.Recording{
		Filename: filename,
		FileSize: size,
		MimeType: mimeForExt(ext),
		Status:   model.StatusPending,
	}
	if err := s.recordings.Create(ctx, rec); err != nil {
		return nil, err
	}

	// 4. 原始音频入对象存储
	key := fmt.Sprintf("recordings/%s%s", rec.ID, ext)
	if err := s.objects.Put(ctx, key, bytes.NewReader(payload), size, rec.MimeType); err != nil {
		_ = s.recordings.Delete(ctx, rec.ID)
		return nil, err
	}
	if err := s.updateRecording(ctx, rec.ID, map[string]any{"storage_path": key}); err != nil {
		return nil, err
	}

	// 5. 入队 (有界，满了快速失败)
	if err := s.queue.Enqueue(ctx, data.Task{Kind: "recording", ID: rec.ID}); err != nil {
		_ = s.objects.Remove(ctx, key)
		_ = s.recordings.Delete(ctx, rec.ID)
		return nil, err
	}

	log.Printf("🚀 audio aceptado: %s (%s, %d bytes)", rec.ID, filename, size)
	rec.StoragePath = key
	return rec, nil
}

// SubmitDocument PDF/图片提交
func (s *IngestService) SubmitDocument(ctx context.Context, filename string, size int64, r io.Reader, meta dto.DocumentMeta) (*model.Document, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if size <= 0 {
		return nil, apperr.New(apperr.InvalidMedia, "documento vacío")
	}
	if size > s.cfg.Pipeline.DocumentMaxBytes {
		return nil, apperr.Newf(apperr.InvalidMedia, "documento demasiado grande (%d bytes, máximo %d)", size, s.cfg.Pipeline.DocumentMaxBytes)
	}

	kind := ""
	switch ext {
	case ".pdf":
		kind = model.FileKindPdf
	case ".jpg", ".jpeg", ".png", ".tiff", ".tif":
		kind = model.FileKindImage
	default:
		return nil, apperr.Newf(apperr.InvalidMedia, "extensión '%s' no soportada", ext)
	}

	payload, err := io.ReadAll(io.LimitReader(r, s.cfg.Pipeline.DocumentMaxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(payload)) == 0 {
		return nil, apperr.New(apperr.InvalidMedia, "documento vacío")
	}
	if int64(len(payload)) > s.cfg.Pipeline.DocumentMaxBytes {
		return nil, apperr.New(apperr.InvalidMedia, "documento demasiado grande")
	}
	if !sniffDocument(payload, kind) {
		return nil, apperr.New(apperr.InvalidMedia, "formato de documento inválido")
	}

	doc := &model.Document{
		Filename:     filename,
		FileSize:     int64(len(payload)),
		MimeType:     mimeForExt(ext),
		FileKind:     kind,
		Status:       model.StatusPending,
		PatientName:  meta.PatientName,
		DocumentType: meta.DocumentType,
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("documents/%s%s", doc.ID, ext)
	if err := s.objects.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), doc.MimeType); err != nil {
		_ = s.documents.Delete(ctx, doc.ID)
		return nil, err
	}
	if err := s.updateDocument(ctx, doc.ID, map[string]any{"storage_path": key}); err != nil {
		return nil, err
	}

	if err := s.queue.Enqueue(ctx, data.Task{Kind: "document", ID: doc.ID}); err != nil {
		_ = s.objects.Remove(ctx, key)
		_ = s.documents.Delete(ctx, doc.ID)
		return nil, err
	}

	log.Printf("🚀 documento aceptado: %s (%s, %s)", doc.ID, filename, kind)
	doc.StoragePath = key
	return doc, nil
}

// ProcessTask worker 入口
func (s *IngestService) ProcessTask(ctx context.Context, task data.Task) error {
	switch task.Kind {
	case "recording":
		return s.ProcessRecording(ctx, task.ID)
	case "document":
		return s.ProcessDocument(ctx, task.ID)
	default:
		return apperr.Newf(apperr.InvalidInput, "tarea desconocida: %s", task.Kind)
	}
}

// =================================================================================
// 2. 音频流水线: pending → transcribing → extracting → diarizing → indexing → completed
// =================================================================================

func (s *IngestService) ProcessRecording(ctx context.Context, id string) error {
	start := time.Now()

	rec, err := s.recordings.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status == model.StatusCompleted || rec.Status == model.StatusFailed {
		return nil // 终态，重放是幂等的
	}

	if rec.Status == model.StatusPending {
		if err := s.recordings.Transition(ctx, id, model.StatusPending, model.StatusTranscribing); err != nil {
			return err
		}
		rec.Status = model.StatusTranscribing
	}

	// 每个阶段前检查取消
	stages := []struct {
		status string
		run    func(context.Context, *model.Recording) error
	}{
		{model.StatusTranscribing, s.stageTranscribe},
		{model.StatusExtracting, s.stageExtract},
		{model.StatusDiarizing, s.stageDiarize},
		{model.StatusIndexing, s.stageIndexRecording},
	}

	for _, stage := range stages {
		if rec.Status != stage.status {
			continue
		}
		if ctx.Err() != nil {
			s.markRecordingFailed(id, apperr.Cancelled, stage.status, ctx.Err())
			return ctx.Err()
		}
		if err := stage.run(ctx, rec); err != nil {
			kind := apperr.KindOf(err)
			s.markRecordingFailed(id, kind, stage.status, err)
			return err
		}
		// 重新读取，拿到下一阶段状态和新的 updated_at
		rec, err = s.recordings.Get(ctx, id)
		if err != nil {
			return err
		}
	}

	if rec.Status == model.StatusCompleted {
		_ = s.updateRecording(context.Background(), id, map[string]any{
			"processing_ms": time.Since(start).Milliseconds(),
		})
		log.Printf("✅ recording %s completado (%.1fs)", id, time.Since(start).Seconds())
	}
	return nil
}

// stageTranscribe ASR 调用，成功后保存转写并推进到 extracting
func (s *IngestService) stageTranscribe(ctx context.Context, rec *model.Recording) error {
	audio, err := s.objects.Get(ctx, rec.StoragePath)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "transcribing", err)
	}

	asrCtx, cancel := context.WithTimeout(ctx, s.cfg.AI.ASRTimeout)
	defer cancel()

	result, err := s.asr.Transcribe(asrCtx, audio, provider.TranscribeHints{Language: "es"})
	if err != nil {
		return err
	}
	if strings.TrimSpace(result.Text) == "" {
		return apperr.New(apperr.InvalidMedia, "transcripción vacía")
	}

	// ASR 段落先存进列，diarize 阶段重建成带角色的段落
	segments, _ := json.Marshal(result.Segments)
	if err := s.updateRecording(ctx, rec.ID, map[string]any{
		"transcript":       result.Text,
		"language":         result.Language,
		"duration_s":       result.DurationS,
		"confidence":       result.Confidence,
		"model_used":       s.cfg.AI.ASRModel,
		"speaker_segments": segments,
	}); err != nil {
		return err
	}

	return s.recordings.Transition(ctx, rec.ID, model.StatusTranscribing, model.StatusExtracting)
}

// stageExtract 结构化 + 非结构化并行提取，解析失败是软错误 (空 map)
func (s *IngestService) stageExtract(ctx context.Context, rec *model.Recording) error {
	llmCtx, cancel := context.WithTimeout(ctx, 2*s.cfg.AI.LLMTimeout)
	defer cancel()

	var (
		wg           sync.WaitGroup
		structured   map[string]any
		unstructured map[string]any
		structErr    error
		unstructErr  error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		structured, structErr = s.extractor.ExtractStructured(llmCtx, rec.Transcript)
	}()
	go func() {
		defer wg.Done()
		unstructured, unstructErr = s.extractor.ExtractUnstructured(llmCtx, rec.Transcript)
	}()
	wg.Wait()

	// provider 挂掉是硬错误；JSON 解析失败已经在 extractor 里降级成空 map
	if structErr != nil {
		return structErr
	}
	if unstructErr != nil {
		return unstructErr
	}

	structuredJSON, _ := json.Marshal(structured)
	unstructuredJSON, _ := json.Marshal(unstructured)
	if err := s.updateRecording(ctx, rec.ID, map[string]any{
		"structured":   structuredJSON,
		"unstructured": unstructuredJSON,
	}); err != nil {
		return err
	}

	return s.recordings.Transition(ctx, rec.ID, model.StatusExtracting, model.StatusDiarizing)
}

// stageDiarize 说话人分离。失败不阻断流水线，只打标记
func (s *IngestService) stageDiarize(ctx context.Context, rec *model.Recording) error {
	var asrSegments []provider.ASRSegment
	if len(rec.SpeakerSegments) > 0 {
		_ = json.Unmarshal(rec.SpeakerSegments, &asrSegments)
	}

	audio, aerr := s.objects.Get(ctx, rec.StoragePath)
	if aerr != nil {
		audio = nil
	}

	result, derr := s.diarizer.Diarize(rec.Transcript, asrSegments, audio)
	if derr != nil || result == nil {
		log.Printf("⚠️ diarización falló para %s: %v", rec.ID, derr)
		_ = s.updateRecording(ctx, rec.ID, map[string]any{
			"diarization_processed": model.FlagFailed,
		})
	} else {
		segJSON, _ := json.Marshal(result.Segments)
		statsJSON, _ := json.Marshal(result.Stats)
		if err := s.updateRecording(ctx, rec.ID, map[string]any{
			"speaker_segments":      segJSON,
			"speaker_stats":         statsJSON,
			"diarization_processed": model.FlagTrue,
		}); err != nil {
			return err
		}
	}

	return s.recordings.Transition(ctx, rec.ID, model.StatusDiarizing, model.StatusIndexing)
}

// stageIndexRecording embedding + upsert。失败打 vector_failed 标记但仍完成
func (s *IngestService) stageIndexRecording(ctx context.Context, rec *model.Recording) error {
	var structured, unstructured map[string]any
	_ = json.Unmarshal(rec.Structured, &structured)
	_ = json.Unmarshal(rec.Unstructured, &unstructured)

	payloadText := vector.BuildPayloadText(rec.Transcript, structured, unstructured)

	err := s.indexPayload(ctx, vector.Entry{
		// vector_id 取记录 id，重放 Indexing 得到同一条向量
		VectorID:    rec.ID,
		SourceKind:  vector.SourceRecording,
		SourceID:    rec.ID,
		PayloadText: payloadText,
		Metadata:    recordingMetadata(rec, structured, unstructured),
	})

	now := time.Now()
	if err != nil {
		log.Printf("⚠️ indexación vectorial falló para %s: %v", rec.ID, err)
		if uerr := s.updateRecording(ctx, rec.ID, map[string]any{
			"vector_stored": model.FlagFailed,
			"processed_at":  &now,
		}); uerr != nil {
			return uerr
		}
	} else {
		if uerr := s.updateRecording(ctx, rec.ID, map[string]any{
			"vector_stored": model.FlagTrue,
			"vector_id":     rec.ID,
			"processed_at":  &now,
		}); uerr != nil {
			return uerr
		}
	}

	return s.recordings.Transition(ctx, rec.ID, model.StatusIndexing, model.StatusCompleted)
}

func (s *IngestService) indexPayload(ctx context.Context, entry vector.Entry) error {
	embedCtx, cancel := context.WithTimeout(ctx, s.cfg.AI.EmbedTimeout)
	defer cancel()

	vec, err := s.embedder.Embed(embedCtx, entry.PayloadText)
	if err != nil {
		return err
	}
	entry.Embedding = vec

	vecCtx, cancel2 := context.WithTimeout(ctx, s.cfg.Vector.Timeout)
	defer cancel2()
	_, err = s.index.Upsert(vecCtx, entry)
	return err
}

func recordingMetadata(rec *model.Recording, structured, unstructured map[string]any) vector.Metadata {
	meta := vector.Metadata{DocType: "transcription"}
	if structured != nil {
		if v, ok := structured["nombre"].(string); ok {
			meta.PatientName = v
		}
		if v, ok := structured["diagnostico"].(string); ok {
			meta.Diagnosis = v
		}
		if v, ok := structured["fecha"].(string); ok {
			meta.Date = v
		}
	}
	if meta.Date == "" {
		meta.Date = rec.CreatedAt.UTC().Format("2006-01-02")
	}
	if unstructured != nil {
		if syms, ok := unstructured["sintomas"].([]any); ok {
			var parts []string
			for _, s := range syms {
				if str, ok := s.(string); ok {
					parts = append(parts, str)
				}
			}
			meta.Symptoms = strings.Join(parts, ", ")
		}
		if v, ok := unstructured["urgencia"].(string); ok {
			meta.Urgency = v
		}
	}
	if rec.DiarizationProcessed == model.FlagTrue {
		meta.SpeakerMix = "promotor,paciente"
	}
	return meta
}

// =================================================================================
// 3. 文档流水线: pending → extracting → indexing → completed
// =================================================================================

func (s *IngestService) ProcessDocument(ctx context.Context, id string) error {
	start := time.Now()

	doc, err := s.documents.Get(ctx, id)
	if err != nil {
		return err
	}
	if doc.Status == model.StatusCompleted || doc.Status == model.StatusFailed {
		return nil
	}

	if doc.Status == model.StatusPending {
		if err := s.documents.Transition(ctx, id, model.StatusPending, model.StatusExtracting); err != nil {
			return err
		}
		doc.Status = model.StatusExtracting
	}

	if doc.Status == model.StatusExtracting {
		if ctx.Err() != nil {
			s.markDocumentFailed(id, apperr.Cancelled, model.StatusExtracting, ctx.Err())
			return ctx.Err()
		}
		if err := s.stageDocumentExtract(ctx, doc); err != nil {
			s.markDocumentFailed(id, apperr.KindOf(err), model.StatusExtracting, err)
			return err
		}
		doc, err = s.documents.Get(ctx, id)
		if err != nil {
			return err
		}
	}

	if doc.Status == model.StatusIndexing {
		if ctx.Err() != nil {
			s.markDocumentFailed(id, apperr.Cancelled, model.StatusIndexing, ctx.Err())
			return ctx.Err()
		}
		if err := s.stageDocumentIndex(ctx, doc); err != nil {
			s.markDocumentFailed(id, apperr.KindOf(err), model.StatusIndexing, err)
			return err
		}
	}

	_ = s.updateDocument(context.Background(), id, map[string]any{
		"processing_ms": time.Since(start).Milliseconds(),
	})
	log.Printf("✅ documento %s completado (%.1fs)", id, time.Since(start).Seconds())
	return nil
}

// stageDocumentExtract OCR/PDF 提取 + 医疗元数据
func (s *IngestService) stageDocumentExtract(ctx context.Context, doc *model.Document) error {
	raw, err := s.objects.Get(ctx, doc.StoragePath)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "extracting", err)
	}

	ocrCtx, cancel := context.WithTimeout(ctx, s.cfg.AI.OCRTimeout)
	defer cancel()

	patch := map[string]any{}
	var text string

	switch doc.FileKind {
	case model.FileKindPdf:
		result, err := s.ocr.ExtractPdf(ocrCtx, raw, s.cfg.Pipeline.PDFMaxPages)
		if err != nil {
			return err
		}
		text = result.Text
		patch["page_count"] = result.PageCount
	case model.FileKindImage:
		result, err := s.ocr.ExtractImage(ocrCtx, raw, s.cfg.AI.OCRLanguage)
		if err != nil {
			return err
		}
		// 置信度门槛，除非显式放行
		if result.Confidence < s.cfg.Pipeline.OCRMinConfidence && !s.cfg.Pipeline.OCRAllowLowConf {
			return apperr.Newf(apperr.InvalidMedia, "confianza OCR %.2f por debajo del umbral %.2f", result.Confidence, s.cfg.Pipeline.OCRMinConfidence)
		}
		text = result.Text
		patch["ocr_confidence"] = result.Confidence
		patch["page_count"] = 1
	default:
		return apperr.Newf(apperr.InvalidMedia, "tipo de documento desconocido: %s", doc.FileKind)
	}

	if strings.TrimSpace(text) == "" {
		return apperr.New(apperr.InvalidMedia, "documento sin texto extraíble")
	}
	patch["extracted_text"] = text
	patch["language"] = s.cfg.AI.OCRLanguage

	// 医疗元数据提取 (prompt 限定在文档相关字段)
	llmCtx, cancel2 := context.WithTimeout(ctx, s.cfg.AI.LLMTimeout)
	defer cancel2()
	meta, err := s.extractor.ExtractDocumentMetadata(llmCtx, text)
	if err != nil {
		return err
	}
	if meta.PatientName != "" && doc.PatientName == "" {
		patch["patient_name"] = meta.PatientName
	}
	if meta.DocumentDate != "" {
		patch["document_date"] = meta.DocumentDate
	}
	if meta.DocumentType != "" && doc.DocumentType == "" {
		patch["document_type"] = meta.DocumentType
	}
	if len(meta.Conditions) > 0 {
		j, _ := json.Marshal(meta.Conditions)
		patch["conditions"] = j
	}
	if len(meta.Medications) > 0 {
		j, _ := json.Marshal(meta.Medications)
		patch["medications"] = j
	}
	if len(meta.Procedures) > 0 {
		j, _ := json.Marshal(meta.Procedures)
		patch["procedures"] = j
	}

	if err := s.updateDocument(ctx, doc.ID, patch); err != nil {
		return err
	}
	return s.documents.Transition(ctx, doc.ID, model.StatusExtracting, model.StatusIndexing)
}

// stageDocumentIndex embedding + upsert + 关联录音
func (s *IngestService) stageDocumentIndex(ctx context.Context, doc *model.Document) error {
	var conditions, medications []string
	_ = json.Unmarshal(doc.Conditions, &conditions)
	_ = json.Unmarshal(doc.Medications, &medications)

	payloadText := vector.BuildDocumentPayloadText(doc.ExtractedText, doc.PatientName, doc.DocumentType, conditions, medications)

	date := doc.DocumentDate
	if date == "" {
		date = doc.CreatedAt.UTC().Format("2006-01-02")
	}
	err := s.indexPayload(ctx, vector.Entry{
		VectorID:    doc.ID,
		SourceKind:  vector.SourceDocument,
		SourceID:    doc.ID,
		PayloadText: payloadText,
		Metadata: vector.Metadata{
			PatientName: doc.PatientName,
			Conditions:  strings.Join(conditions, ", "),
			Date:        date,
			DocType:     doc.DocumentType,
		},
	})

	now := time.Now()
	patch := map[string]any{"processed_at": &now}
	if err != nil {
		log.Printf("⚠️ indexación vectorial falló para documento %s: %v", doc.ID, err)
		patch["vector_stored"] = model.FlagFailed
	} else {
		patch["vector_stored"] = model.FlagTrue
		patch["vector_id"] = doc.ID
	}

	// 按病人姓名模糊关联最相似的录音 (≥ 0.85)
	if doc.PatientName != "" {
		if recID := s.linkRecording(ctx, doc.PatientName); recID != "" {
			patch["recording_id"] = recID
		}
	}

	if uerr := s.updateDocument(ctx, doc.ID, patch); uerr != nil {
		return uerr
	}
	return s.documents.Transition(ctx, doc.ID, model.StatusIndexing, model.StatusCompleted)
}

// linkRecording 返回模糊匹配得分最高且 ≥ 0.85 的录音 id
func (s *IngestService) linkRecording(ctx context.Context, patientName string) string {
	recs, err := s.recordings.ListCompletedWithPatient(ctx, 200)
	if err != nil {
		return ""
	}
	bestID := ""
	bestScore := 0.0
	for _, rec := range recs {
		var structured map[string]any
		if err := json.Unmarshal(rec.Structured, &structured); err != nil {
			continue
		}
		name, _ := structured["nombre"].(string)
		if name == "" {
			continue
		}
		if score := vector.FuzzyNameScore(patientName, name); score >= linkThreshold && score > bestScore {
			bestScore = score
			bestID = rec.ID
		}
	}
	return bestID
}

// =================================================================================
// 4. 删除 / 失败标记 / 辅助
// =================================================================================

// DeleteRecording 删除记录并级联删除向量
func (s *IngestService) DeleteRecording(ctx context.Context, id string) error {
	if err := s.recordings.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.index.DeleteBySource(ctx, vector.SourceRecording, id); err != nil {
		log.Printf("⚠️ no se pudo borrar vectores de %s: %v", id, err)
	}
	return nil
}

func (s *IngestService) DeleteDocument(ctx context.Context, id string) error {
	if err := s.documents.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.index.DeleteBySource(ctx, vector.SourceDocument, id); err != nil {
		log.Printf("⚠️ no se pudo borrar vectores del documento %s: %v", id, err)
	}
	return nil
}

// markRecordingFailed 终态标记，用后台 context 保证取消时也能写入
func (s *IngestService) markRecordingFailed(id string, kind apperr.Kind, stage string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	now := time.Now()
	patch := map[string]any{
		"status":       model.StatusFailed,
		"error_kind":   string(kind),
		"error_msg":    fmt.Sprintf("[%s] %v", stage, cause),
		"processed_at": &now,
	}
	if err := s.updateRecording(ctx, id, patch); err != nil {
		log.Printf("❌ no se pudo marcar recording %s como failed: %v", id, err)
		return
	}
	log.Printf("❌ recording %s falló en %s: %v (%s)", id, stage, cause, kind)
}

func (s *IngestService) markDocumentFailed(id string, kind apperr.Kind, stage string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	now := time.Now()
	patch := map[string]any{
		"status":       model.StatusFailed,
		"error_kind":   string(kind),
		"error_msg":    fmt.Sprintf("[%s] %v", stage, cause),
		"processed_at": &now,
	}
	if err := s.updateDocument(ctx, id, patch); err != nil {
		log.Printf("❌ no se pudo marcar documento %s como failed: %v", id, err)
		return
	}
	log.Printf("❌ documento %s falló en %s: %v (%s)", id, stage, cause, kind)
}

// updateRecording 读取-CAS 重试循环 (同一记录只有一个 worker 在写，冲突罕见)
func (s *IngestService) updateRecording(ctx context.Context, id string, patch map[string]any) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		rec, err := s.recordings.Get(ctx, id)
		if err != nil {
			return err
		}
		lastErr = s.recordings.Update(ctx, id, rec.UpdatedAt, patch)
		if lastErr == nil || !apperr.Is(lastErr, apperr.Conflict) {
			return lastErr
		}
	}
	return lastErr
}

func (s *IngestService) updateDocument(ctx context.Context, id string, patch map[string]any) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		doc, err := s.documents.Get(ctx, id)
		if err != nil {
			return err
		}
		lastErr = s.documents.Update(ctx, id, doc.UpdatedAt, patch)
		if lastErr == nil || !apperr.Is(lastErr, apperr.Conflict) {
			return lastErr
		}
	}
	return lastErr
}

// sniffAudio RIFF/WAVE o ID3 / MP3 frame sync
func sniffAudio(data []byte) bool {
	if len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE" {
		return true
	}
	if len(data) >= 3 && string(data[0:3]) == "ID3" {
		return true
	}
	if len(data) >= 2 && data[0] == 0xFF && (data[1]&0xE0) == 0xE0 {
		return true
	}
	return false
}

func sniffDocument(data []byte, kind string) bool {
	if kind == model.FileKindPdf {
		return len(data) >= 5 && string(data[0:5]) == "%PDF-"
	}
	// PNG / JPEG / TIFF
	if len(data) >= 8 && bytes.Equal(data[0:8], []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}) {
		return true
	}
	if len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return true
	}
	if len(data) >= 4 && (string(data[0:4]) == "II*\x00" || string(data[0:4]) == "MM\x00*") {
		return true
	}
	return false
}

func mimeForExt(ext string) string {
	switch ext {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".tiff", ".tif":
		return "image/tiff"
	default:
		return "application/octet-stream"
	}
}
