package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"MedSol-RAG/internal/conf"
	"MedSol-RAG/internal/data"
	"MedSol-RAG/internal/diarize"
	"MedSol-RAG/internal/extract"
	"MedSol-RAG/internal/handler"
	"MedSol-RAG/internal/provider"
	"MedSol-RAG/internal/repository"
	"MedSol-RAG/internal/service"
	"MedSol-RAG/internal/vector"
	"MedSol-RAG/internal/worker"
)

func main() {
	// 1. 加载配置
	cfg := conf.LoadConfig()

	// 2. 初始化数据层 (Postgres, Redis, MinIO, Qdrant)
	d, cleanup, err := data.NewData(cfg)
	if err != nil {
		log.Fatalf("❌ 数据层初始化失败: %v", err)
	}
	defer cleanup()

	recordingRepo := repository.NewRecordingRepository(d.DB)
	documentRepo := repository.NewDocumentRepository(d.DB)
	objectStore := data.NewMinioStore(d.Minio, d.Bucket)
	taskQueue := data.NewRedisQueue(d.Redis, cfg.Pipeline.QueueKey, cfg.Pipeline.QueueBound)

	// 3. 初始化向量库 (集合不存在则创建)
	index := vector.NewQdrantIndex(d.Qdrant, cfg.Vector.Collection, cfg.Vector.Dimensions, cfg.AI.EmbedModel)
	if err := index.EnsureCollection(context.Background()); err != nil {
		// 向量库挂了不阻止主程序启动，索引阶段会以软失败记录
		log.Printf("⚠️ 无法初始化 Qdrant 集合: %v", err)
	}

	// 4. 初始化 Provider (ASR / LLM / Embeddings / OCR)
	asr := provider.NewWhisperClient(provider.ASRConfig{
		BaseURL: cfg.AI.ASRBaseURL,
		Model:   cfg.AI.ASRModel,
	})
	llm := provider.NewChatClient(provider.ChatConfig{
		BaseURL: cfg.AI.LLMBaseURL,
		APIKey:  cfg.AI.LLMAPIKey,
		Model:   cfg.AI.LLMModel,
	})
	embedder := provider.NewEmbedClient(provider.EmbedConfig{
		BaseURL:    cfg.AI.EmbedBaseURL,
		Model:      cfg.AI.EmbedModel,
		Dimensions: cfg.Vector.Dimensions,
	})
	ocr := provider.NewOCRClient(provider.OCRConfig{
		BaseURL: cfg.AI.OCRBaseURL,
	})

	// 5. 初始化服务层与 Worker
	extractor := extract.NewService(llm)
	diarizer := diarize.NewService(cfg.Diarize.MinSegmentSeconds)

	ingestService := service.NewIngestService(
		recordingRepo, documentRepo, objectStore, taskQueue,
		asr, ocr, embedder, extractor, diarizer, index, cfg,
	)
	analyzer := service.NewQueryAnalyzer()
	retriever := service.NewRetriever(index, embedder)
	chatService := service.NewChatService(analyzer, retriever, llm, cfg.AI.LLMTimeout, cfg.Pipeline.MaxResults)
	healthService := service.NewHealthService(d, index)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	worker.NewIngestWorker(taskQueue, ingestService).Start(workerCtx, cfg.Pipeline.Workers)

	// 6. 初始化 Handler
	uploadHandler := handler.NewUploadHandler(ingestService)
	recordHandler := handler.NewRecordHandler(recordingRepo, documentRepo, ingestService, chatService)
	chatHandler := handler.NewChatHandler(chatService)
	healthHandler := handler.NewHealthHandler(healthService)

	// 7. 初始化 Gin Web Server
	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// 8. 注册路由
	r.POST("/upload-audio", uploadHandler.UploadAudio)
	r.POST("/upload-document", uploadHandler.UploadDocument)

	r.GET("/transcriptions/:id", recordHandler.GetRecording)
	r.GET("/transcriptions", recordHandler.ListRecordings)
	r.DELETE("/transcriptions/:id", recordHandler.DeleteRecording)

	r.GET("/documents/search", recordHandler.SearchDocuments)
	r.GET("/documents/:id", recordHandler.GetDocument)
	r.GET("/documents", recordHandler.ListDocuments)
	r.DELETE("/documents/:id", recordHandler.DeleteDocument)

	r.POST("/chat", chatHandler.HandleChat)
	r.GET("/search", chatHandler.HandleSearch)

	r.GET("/vector-store/status", healthHandler.VectorStatus)
	r.GET("/health", healthHandler.Health)

	log.Printf("🚀 MedSol 后端已启动，监听端口 :%s", cfg.App.Port)
	if err := r.Run(":" + cfg.App.Port); err != nil {
		log.Fatalf("❌ Server 启动失败: %v", err)
	}
}
